package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// BeginCrawl opens the run's bookkeeping node. Re-running with the same id
// keeps the original started_at.
func (s *Store) BeginCrawl(ctx context.Context, crawlID, mode string, cutoff time.Time) error {
	q := `
	MERGE (cr:Crawl {id:$id})
	ON CREATE SET cr.started_at = datetime($started_at)
	SET cr.mode = $mode, cr.cutoff = datetime($cutoff), cr.last_updated_at = datetime($started_at)
	`
	err := s.write(ctx, statement{q, map[string]any{
		"id":         crawlID,
		"mode":       mode,
		"cutoff":     isoTime(cutoff),
		"started_at": isoTime(time.Now()),
	}})
	if err != nil {
		return fmt.Errorf("beginning crawl %s: %w", crawlID, err)
	}
	return nil
}

// EndCrawl stamps the run as finished.
func (s *Store) EndCrawl(ctx context.Context, crawlID string) error {
	q := `
	MATCH (cr:Crawl {id:$id})
	SET cr.ended_at = datetime($ended_at), cr.last_updated_at = datetime($ended_at)
	`
	err := s.write(ctx, statement{q, map[string]any{
		"id":       crawlID,
		"ended_at": isoTime(time.Now()),
	}})
	if err != nil {
		return fmt.Errorf("ending crawl %s: %w", crawlID, err)
	}
	return nil
}

// Checkpoint reads a named scan offset off the crawl node, zero when the
// crawl or the property does not exist yet.
func (s *Store) Checkpoint(ctx context.Context, crawlID, prop string) (int, error) {
	q := `
	MATCH (cr:Crawl {id:$id})
	RETURN coalesce(cr[$prop], 0) AS v
	`
	session := s.session(ctx)
	defer session.Close(ctx)

	v, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, map[string]any{"id": crawlID, "prop": prop})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return int64(0), res.Err()
		}
		val, _ := res.Record().Get("v")
		return val, nil
	})
	if err != nil {
		return 0, fmt.Errorf("reading checkpoint %s: %w", prop, err)
	}
	n, _ := v.(int64)
	return int(n), nil
}

// SetCheckpoint persists a scan offset as a dynamic property on the crawl
// node, so each view's position survives a kill-and-restart.
func (s *Store) SetCheckpoint(ctx context.Context, crawlID, prop string, value int) error {
	q := `
	MATCH (cr:Crawl {id:$id})
	SET cr[$prop] = $value,
	    cr.last_updated_at = datetime($ts)
	`
	err := s.write(ctx, statement{q, map[string]any{
		"id":    crawlID,
		"prop":  prop,
		"value": value,
		"ts":    isoTime(time.Now()),
	}})
	if err != nil {
		return fmt.Errorf("writing checkpoint %s: %w", prop, err)
	}
	return nil
}

// LatestCutoff returns the most recent cutoff recorded by any crawl, for
// bounding an incremental run. ok is false when no crawl has one.
func (s *Store) LatestCutoff(ctx context.Context) (time.Time, bool, error) {
	q := `
	MATCH (cr:Crawl)
	WHERE cr.cutoff IS NOT NULL
	RETURN cr.cutoff AS cutoff
	ORDER BY cr.cutoff DESC
	LIMIT 1
	`
	session := s.session(ctx)
	defer session.Close(ctx)

	v, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, nil)
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		val, _ := res.Record().Get("cutoff")
		return val, nil
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading latest cutoff: %w", err)
	}
	t, ok := v.(time.Time)
	return t, ok, nil
}
