package graph

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const feedSnapshotWrite = `
MERGE (fs:FeedSnapshot {id:$id})
ON CREATE SET fs.first_seen_at = datetime($obs), fs.observed_at = datetime($obs)
SET fs.last_seen_at = datetime($obs),
    fs.sort = $sort

WITH fs
UNWIND $rows AS row
MERGE (p:Post {id: row.id})
ON CREATE SET p.first_seen_at = datetime($obs), p.created_at = datetime(row.created_at)
SET p.last_seen_at = datetime($obs),
    p.title = coalesce(row.title, p.title),
    p.submolt = coalesce(row.submolt, p.submolt),
    p.score = coalesce(row.score, p.score)

MERGE (fs)-[r:CONTAINS]->(p)
ON CREATE SET r.first_seen_at = datetime($obs)
SET r.last_seen_at = datetime($obs),
    r.rank = row.rank
`

// WriteFeedSnapshot records the ranked order the feed served at one moment,
// anchored to the crawl that observed it. Ranks keep their original position
// even when an unidentifiable entry is skipped.
func (s *Store) WriteFeedSnapshot(ctx context.Context, crawlID, sortKey string, posts []map[string]any, observedAt time.Time) error {
	rows := feedRows(posts)
	snapshotID := crawlID + ":" + sortKey
	err := s.write(ctx, statement{feedSnapshotWrite, map[string]any{
		"id":   snapshotID,
		"sort": sortKey,
		"rows": rows,
		"obs":  isoTime(observedAt),
	}})
	if err != nil {
		return fmt.Errorf("writing feed snapshot %s: %w", snapshotID, err)
	}
	s.log.Debug("wrote feed snapshot", zap.String("id", snapshotID), zap.Int("rows", len(rows)))
	return nil
}
