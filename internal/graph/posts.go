package graph

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const postNodesUpsert = `
UNWIND $rows AS row
MERGE (p:Post {id: row.id})
ON CREATE SET p.first_seen_at = datetime($obs),
    p.created_at = CASE WHEN row.created_at IS NULL THEN datetime($obs) ELSE datetime(row.created_at) END
SET p.last_seen_at = datetime($obs),
    p.title = coalesce(row.title, p.title),
    p.content = coalesce(row.content, p.content),
    p.url = coalesce(row.url, p.url),
    p.submolt = coalesce(row.submolt, p.submolt),
    p.type = coalesce(row.type, p.type),
    p.score = coalesce(row.score, p.score),
    p.upvotes = coalesce(row.upvotes, p.upvotes),
    p.downvotes = coalesce(row.downvotes, p.downvotes),
    p.comment_count = coalesce(row.comment_count, p.comment_count),
    p.hot_score = coalesce(row.hot_score, p.hot_score),
    p.is_pinned = coalesce(row.is_pinned, p.is_pinned),
    p.is_locked = coalesce(row.is_locked, p.is_locked),
    p.is_deleted = coalesce(row.is_deleted, p.is_deleted),
    p.is_spam = coalesce(row.is_spam, p.is_spam),
    p.verification_status = coalesce(row.verification_status, p.verification_status),
    p.submolt_id = coalesce(row.submolt_id, p.submolt_id),
    p.updated_at = CASE WHEN row.updated_at IS NULL THEN p.updated_at ELSE datetime(row.updated_at) END
`

// Authors and communities referenced by a post are merged as stubs here so
// the AUTHORED and IN_SUBMOLT edges always have endpoints; profile and
// community upserts enrich them later.
const postRelsUpsert = `
UNWIND $rows AS row
MERGE (a:Agent {name: row.author_name})
ON CREATE SET a.first_seen_at = datetime($obs)
SET a.last_seen_at = datetime($obs),
    a.id = coalesce(row.author_id, a.id),
    a.display_name = coalesce(row.author_display_name, a.display_name),
    a.description = coalesce(row.author_description, a.description),
    a.avatar_url = coalesce(row.author_avatar_url, a.avatar_url),
    a.karma = coalesce(row.author_karma, a.karma),
    a.follower_count = coalesce(row.author_follower_count, a.follower_count),
    a.following_count = coalesce(row.author_following_count, a.following_count),
    a.is_claimed = coalesce(row.author_is_claimed, a.is_claimed),
    a.is_active = coalesce(row.author_is_active, a.is_active),
    a.created_at = CASE WHEN row.author_created_at IS NULL THEN a.created_at ELSE datetime(row.author_created_at) END,
    a.last_active = CASE WHEN row.author_last_active IS NULL THEN a.last_active ELSE datetime(row.author_last_active) END

WITH row, a
MERGE (s:Submolt {name: row.submolt})
ON CREATE SET s.first_seen_at = datetime($obs)
SET s.last_seen_at = datetime($obs)

WITH row, a, s
MATCH (p:Post {id: row.id})
MERGE (a)-[r1:AUTHORED]->(p)
ON CREATE SET r1.first_seen_at = datetime($obs), r1.created_at = p.created_at
SET r1.last_seen_at = datetime($obs)

MERGE (p)-[r2:IN_SUBMOLT]->(s)
ON CREATE SET r2.first_seen_at = datetime($obs), r2.created_at = p.created_at
SET r2.last_seen_at = datetime($obs)
`

// UpsertPosts merges post rows by id and wires their AUTHORED and IN_SUBMOLT
// edges. Underfilled rows are dropped whole, node and edges both.
func (s *Store) UpsertPosts(ctx context.Context, posts []map[string]any, observedAt time.Time) (int, error) {
	rows := postRows(posts)
	obs := isoTime(observedAt)
	for _, batch := range chunk(rows, postBatchSize) {
		err := s.write(ctx,
			statement{postNodesUpsert, map[string]any{"rows": batch, "obs": obs}},
			statement{postRelsUpsert, map[string]any{"rows": batch, "obs": obs}},
		)
		if err != nil {
			return 0, fmt.Errorf("upserting posts: %w", err)
		}
	}
	s.log.Debug("upserted posts", zap.Int("rows", len(rows)), zap.Int("dropped", len(posts)-len(rows)))
	return len(rows), nil
}
