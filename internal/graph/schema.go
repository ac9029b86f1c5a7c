package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Every merge in the write model goes through one of these natural keys, so
// each gets a uniqueness constraint; time-ordered queries get range indexes.
var schemaStatements = []string{
	`CREATE CONSTRAINT agent_name IF NOT EXISTS FOR (a:Agent) REQUIRE a.name IS UNIQUE`,
	`CREATE CONSTRAINT submolt_name IF NOT EXISTS FOR (s:Submolt) REQUIRE s.name IS UNIQUE`,
	`CREATE CONSTRAINT post_id IF NOT EXISTS FOR (p:Post) REQUIRE p.id IS UNIQUE`,
	`CREATE CONSTRAINT comment_id IF NOT EXISTS FOR (c:Comment) REQUIRE c.id IS UNIQUE`,
	`CREATE CONSTRAINT xaccount_handle IF NOT EXISTS FOR (x:XAccount) REQUIRE x.handle IS UNIQUE`,
	`CREATE CONSTRAINT crawl_id IF NOT EXISTS FOR (cr:Crawl) REQUIRE cr.id IS UNIQUE`,
	`CREATE CONSTRAINT feed_snapshot_id IF NOT EXISTS FOR (fs:FeedSnapshot) REQUIRE fs.id IS UNIQUE`,
	`CREATE INDEX post_created_at IF NOT EXISTS FOR (p:Post) ON (p.created_at)`,
	`CREATE INDEX comment_created_at IF NOT EXISTS FOR (c:Comment) ON (c.created_at)`,
	`CREATE INDEX agent_profile_fetched_at IF NOT EXISTS FOR (a:Agent) ON (a.profile_last_fetched_at)`,
}

// EnsureSchema applies the constraints and indexes the write model depends
// on. Statements are idempotent and run one per transaction, as Neo4j
// requires for schema commands.
func (s *Store) EnsureSchema(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	s.log.Info("schema ensured", zap.Int("statements", len(schemaStatements)))
	return nil
}
