package graph

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const submoltUpsert = `
UNWIND $rows AS row
MERGE (s:Submolt {name: row.name})
ON CREATE SET s.first_seen_at = datetime($obs), s.created_at = datetime(coalesce(row.created_at, $obs))
SET s.last_seen_at = datetime($obs),
    s.display_name = coalesce(row.display_name, s.display_name),
    s.description = coalesce(row.description, s.description),
    s.avatar_url = coalesce(row.avatar_url, s.avatar_url),
    s.banner_url = coalesce(row.banner_url, s.banner_url),
    s.banner_color = coalesce(row.banner_color, s.banner_color),
    s.theme_color = coalesce(row.theme_color, s.theme_color),
    s.subscriber_count = coalesce(row.subscriber_count, s.subscriber_count),
    s.post_count = coalesce(row.post_count, s.post_count),
    s.updated_at = CASE WHEN row.updated_at IS NULL THEN s.updated_at ELSE datetime(row.updated_at) END
`

// UpsertSubmolts merges community rows by name; rows without one are dropped.
func (s *Store) UpsertSubmolts(ctx context.Context, submolts []map[string]any, observedAt time.Time) (int, error) {
	rows := submoltRows(submolts)
	obs := isoTime(observedAt)
	for _, batch := range chunk(rows, defaultBatchSize) {
		err := s.write(ctx, statement{submoltUpsert, map[string]any{"rows": batch, "obs": obs}})
		if err != nil {
			return 0, fmt.Errorf("upserting submolts: %w", err)
		}
	}
	s.log.Debug("upserted submolts", zap.Int("rows", len(rows)))
	return len(rows), nil
}
