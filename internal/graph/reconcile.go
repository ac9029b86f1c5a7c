package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moltgraph/moltgraph/internal/payload"
)

// Membership edges are never deleted. Reconciliation closes open edges whose
// target is absent from the fresh observation (ended_at set), then merges the
// current set back open (ended_at cleared). Current state is "ended_at IS
// NULL"; history is the open/close trail.

const moderatorsEndMissing = `
MATCH (s:Submolt {name:$submolt})
OPTIONAL MATCH (a:Agent)-[r:MODERATES]->(s)
WHERE r.ended_at IS NULL AND NOT a.name IN $current
SET r.ended_at = datetime($obs), r.last_seen_at = datetime($obs)
`

const moderatorsMerge = `
UNWIND $rows AS row
MERGE (s:Submolt {name:$submolt})
ON CREATE SET s.first_seen_at = datetime($obs)
SET s.last_seen_at = datetime($obs)

MERGE (a:Agent {name: row.name})
ON CREATE SET a.first_seen_at = datetime($obs)
SET a.last_seen_at = datetime($obs),
    a.display_name = coalesce(row.display_name, a.display_name)

MERGE (a)-[r:MODERATES]->(s)
ON CREATE SET r.first_seen_at = datetime($obs)
SET r.last_seen_at = datetime($obs),
    r.role = coalesce(row.role, r.role),
    r.ended_at = NULL
`

// ReconcileModerators records the moderator set observed for a community,
// closing MODERATES edges for agents no longer listed.
func (s *Store) ReconcileModerators(ctx context.Context, submolt string, moderators []map[string]any, observedAt time.Time) error {
	names, rows := moderatorRows(moderators)
	obs := isoTime(observedAt)
	err := s.write(ctx,
		statement{moderatorsEndMissing, map[string]any{"submolt": submolt, "current": names, "obs": obs}},
		statement{moderatorsMerge, map[string]any{"submolt": submolt, "rows": rows, "obs": obs}},
	)
	if err != nil {
		return fmt.Errorf("reconciling moderators of %s: %w", submolt, err)
	}
	s.log.Debug("reconciled moderators", zap.String("submolt", submolt), zap.Int("current", len(names)))
	return nil
}

// moderatorRows normalizes the wire shapes a moderator entry arrives in:
// {name}, {agent_name}, {agent: "name"}, or a wrapper holding a full agent
// object under agent. Entries that resolve to no name are skipped.
func moderatorRows(moderators []map[string]any) (names []string, rows []map[string]any) {
	names = []string{}
	rows = []map[string]any{}
	for _, m := range moderators {
		if m == nil {
			continue
		}
		role, ok := m["role"]
		if !ok {
			role = "moderator"
		}

		name := payload.Text(m, "name", "agent_name")
		display := payload.Raw(m, "display_name", "displayName")
		if name == "" {
			switch agent := m["agent"].(type) {
			case string:
				name = strings.TrimSpace(agent)
			case map[string]any:
				name = payload.Text(agent, "name", "agent_name")
				if display == nil {
					display = payload.Raw(agent, "displayName", "display_name")
				}
			}
		}
		if name == "" {
			continue
		}
		names = append(names, name)
		rows = append(rows, map[string]any{
			"name":         name,
			"display_name": display,
			"role":         role,
		})
	}
	return names, rows
}

const similarEndMissing = `
MATCH (a:Agent {name:$agent})
OPTIONAL MATCH (a)-[r:SIMILAR_TO {source:$source}]->(b:Agent)
WHERE r.ended_at IS NULL AND NOT b.name IN $current
SET r.ended_at = datetime($obs), r.last_seen_at = datetime($obs)
`

const similarMerge = `
UNWIND $rows AS row
MERGE (a:Agent {name:$agent})
ON CREATE SET a.first_seen_at = datetime($obs)
SET a.last_seen_at = datetime($obs)

MERGE (b:Agent {name: row.other})
ON CREATE SET b.first_seen_at = datetime($obs)
SET b.last_seen_at = datetime($obs)

MERGE (a)-[r:SIMILAR_TO {source:$source}]->(b)
ON CREATE SET r.first_seen_at = datetime($obs)
SET r.last_seen_at = datetime($obs),
    r.ended_at = NULL
`

// ReconcileSimilar records the similar-agents list observed for one agent
// from one discovery source. Edges are keyed by source, so one source's
// silence never closes edges another source asserted.
func (s *Store) ReconcileSimilar(ctx context.Context, agent string, similar []string, observedAt time.Time, source string) error {
	current := similarNames(agent, similar)
	rows := make([]map[string]any, 0, len(current))
	for _, n := range current {
		rows = append(rows, map[string]any{"other": n})
	}
	obs := isoTime(observedAt)

	stmts := []statement{
		{similarEndMissing, map[string]any{"agent": agent, "source": source, "current": current, "obs": obs}},
	}
	if len(rows) > 0 {
		stmts = append(stmts, statement{similarMerge, map[string]any{"agent": agent, "rows": rows, "source": source, "obs": obs}})
	}
	if err := s.write(ctx, stmts...); err != nil {
		return fmt.Errorf("reconciling similar agents of %s: %w", agent, err)
	}
	s.log.Debug("reconciled similar agents",
		zap.String("agent", agent), zap.String("source", source), zap.Int("current", len(current)))
	return nil
}

// similarNames dedupes and sorts the fresh list, dropping blanks and the
// agent itself.
func similarNames(agent string, similar []string) []string {
	seen := make(map[string]struct{}, len(similar))
	out := []string{}
	for _, n := range similar {
		if n == "" || n == agent {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
