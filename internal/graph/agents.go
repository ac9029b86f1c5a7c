package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

const agentUpsert = `
UNWIND $rows AS row
MERGE (a:Agent {name: row.name})
ON CREATE SET a.first_seen_at = datetime($obs),
              a.created_at = datetime(coalesce(row.created_at, $obs))
SET a.last_seen_at = datetime($obs),
    a.display_name = coalesce(row.display_name, a.display_name),
    a.description = coalesce(row.description, a.description),
    a.avatar_url = coalesce(row.avatar_url, a.avatar_url),
    a.status = coalesce(row.status, a.status),
    a.is_claimed = coalesce(row.is_claimed, a.is_claimed),
    a.is_active = coalesce(row.is_active, a.is_active),
    a.karma = coalesce(row.karma, a.karma),
    a.follower_count = coalesce(row.follower_count, a.follower_count),
    a.following_count = coalesce(row.following_count, a.following_count),
    a.owner_twitter_id = coalesce(row.owner_twitter_id, a.owner_twitter_id),
    a.owner_twitter_handle = coalesce(row.owner_twitter_handle, a.owner_twitter_handle),
    a.claimed_at = CASE WHEN row.claimed_at IS NULL THEN a.claimed_at ELSE datetime(row.claimed_at) END,
    a.last_active = CASE WHEN row.last_active IS NULL THEN a.last_active ELSE datetime(row.last_active) END,
    a.updated_at = CASE WHEN row.updated_at IS NULL THEN a.updated_at ELSE datetime(row.updated_at) END,
    a.profile_last_fetched_at = CASE
        WHEN $mark_profile THEN datetime($obs)
        ELSE a.profile_last_fetched_at
    END
`

// UpsertAgents merges agent rows by name; rows without one are dropped.
// markProfile stamps profile_last_fetched_at, distinguishing a deliberate
// profile fetch from incidental discovery, and drives staleness refresh.
func (s *Store) UpsertAgents(ctx context.Context, agents []map[string]any, observedAt time.Time, markProfile bool) (int, error) {
	rows := agentRows(agents)
	obs := isoTime(observedAt)
	for _, batch := range chunk(rows, defaultBatchSize) {
		err := s.write(ctx, statement{agentUpsert, map[string]any{
			"rows": batch, "obs": obs, "mark_profile": markProfile,
		}})
		if err != nil {
			return 0, fmt.Errorf("upserting agents: %w", err)
		}
	}
	s.log.Debug("upserted agents", zap.Int("rows", len(rows)), zap.Bool("mark_profile", markProfile))
	return len(rows), nil
}

// StaleAgentProfiles returns agents whose profile has never been fetched or
// was last fetched more than the staleness window ago, oldest first.
func (s *Store) StaleAgentProfiles(ctx context.Context, olderThanDays, limit int) ([]string, error) {
	q := `
	MATCH (a:Agent)
	WHERE a.name IS NOT NULL
	AND (
	    a.profile_last_fetched_at IS NULL OR
	    a.profile_last_fetched_at < datetime() - duration({days: $days})
	)
	RETURN a.name AS name
	ORDER BY coalesce(a.profile_last_fetched_at, datetime("1970-01-01T00:00:00Z")) ASC
	LIMIT $limit
	`
	session := s.session(ctx)
	defer session.Close(ctx)

	v, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, map[string]any{"days": olderThanDays, "limit": limit})
		if err != nil {
			return nil, err
		}
		var names []string
		for res.Next(ctx) {
			if name, ok := res.Record().Get("name"); ok {
				if n, ok := name.(string); ok && n != "" {
					names = append(names, n)
				}
			}
		}
		return names, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing stale agent profiles: %w", err)
	}
	names, _ := v.([]string)
	return names, nil
}
