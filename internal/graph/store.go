// Package graph persists crawl observations into a bitemporal Neo4j property
// graph. Every node and relationship carries first_seen_at and last_seen_at
// stamps; entity fields update last-write-wins so a sparse later payload
// never erases an earlier richer one.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

const (
	postBatchSize    = 300
	defaultBatchSize = 500
)

// Config holds Neo4j connection settings.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

// Store wraps a Neo4j driver with the crawler's write model.
type Store struct {
	driver neo4j.DriverWithContext
	db     string
	log    *zap.Logger
}

// New connects to Neo4j and verifies connectivity before returning.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}
	db := cfg.Database
	if db == "" {
		db = "neo4j"
	}
	return &Store{driver: driver, db: db, log: logger.Named("graph")}, nil
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.db})
}

type statement struct {
	query  string
	params map[string]any
}

// write runs the given statements in order inside one managed transaction.
func (s *Store) write(ctx context.Context, stmts ...statement) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range stmts {
			res, err := tx.Run(ctx, st.query, st.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// isoTime renders a timestamp the way Cypher's datetime() parses it.
func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// chunk splits rows into batches of at most n, keeping any single
// transaction bounded.
func chunk(rows []map[string]any, n int) [][]map[string]any {
	if len(rows) == 0 {
		return nil
	}
	if n <= 0 {
		n = len(rows)
	}
	var out [][]map[string]any
	for start := 0; start < len(rows); start += n {
		end := start + n
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
