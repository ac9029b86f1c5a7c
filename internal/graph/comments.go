package graph

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const commentNodesUpsert = `
UNWIND $rows AS row
MERGE (c:Comment {id: row.id})
ON CREATE SET c.first_seen_at = datetime($obs), c.created_at = datetime(row.created_at)
SET c.last_seen_at = datetime($obs),
    c.content = coalesce(row.content, c.content),
    c.score = coalesce(row.score, c.score),
    c.upvotes = coalesce(row.upvotes, c.upvotes),
    c.downvotes = coalesce(row.downvotes, c.downvotes),
    c.reply_count = coalesce(row.reply_count, c.reply_count),
    c.is_deleted = coalesce(row.is_deleted, c.is_deleted),
    c.is_spam = coalesce(row.is_spam, c.is_spam),
    c.verification_status = coalesce(row.verification_status, c.verification_status),
    c.depth = coalesce(row.depth, c.depth),
    c.updated_at = CASE WHEN row.updated_at IS NULL THEN c.updated_at ELSE datetime(row.updated_at) END
`

// REPLY_TO only materializes when the parent row survived its own filters,
// hence the MATCH rather than MERGE on the parent.
const commentRelsUpsert = `
UNWIND $rows AS row
MERGE (a:Agent {name: row.author_name})
ON CREATE SET a.first_seen_at = datetime($obs)
SET a.last_seen_at = datetime($obs),
    a.id = coalesce(row.author_id, a.id),
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
MATCH (c:Comment {id: row.id})
MATCH (p:Post {id: row.post_id})

MERGE (a)-[r1:AUTHORED]->(c)
ON CREATE SET r1.first_seen_at = datetime($obs), r1.created_at = c.created_at
SET r1.last_seen_at = datetime($obs)

MERGE (c)-[r2:ON_POST]->(p)
ON CREATE SET r2.first_seen_at = datetime($obs), r2.created_at = c.created_at
SET r2.last_seen_at = datetime($obs)

WITH row, c
WHERE row.parent_id IS NOT NULL
MATCH (parent:Comment {id: row.parent_id})
MERGE (c)-[r3:REPLY_TO]->(parent)
ON CREATE SET r3.first_seen_at = datetime($obs), r3.created_at = c.created_at
SET r3.last_seen_at = datetime($obs)
`

// UpsertComments flattens a reply tree and merges one row per comment,
// wiring AUTHORED, ON_POST and REPLY_TO edges.
func (s *Store) UpsertComments(ctx context.Context, postID string, tree []map[string]any, observedAt time.Time) (int, error) {
	rows := commentRows(postID, tree)
	obs := isoTime(observedAt)
	for _, batch := range chunk(rows, defaultBatchSize) {
		err := s.write(ctx,
			statement{commentNodesUpsert, map[string]any{"rows": batch, "obs": obs}},
			statement{commentRelsUpsert, map[string]any{"rows": batch, "obs": obs}},
		)
		if err != nil {
			return 0, fmt.Errorf("upserting comments for post %s: %w", postID, err)
		}
	}
	s.log.Debug("upserted comments", zap.String("post", postID), zap.Int("rows", len(rows)))
	return len(rows), nil
}
