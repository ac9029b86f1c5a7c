// Package scan pages through one view of an unreliable listing API. The
// server may ignore offsets, serve cached pages, or lie about next offsets;
// the scanner detects each failure mode and stops instead of looping.
package scan

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moltgraph/moltgraph/internal/payload"
	"github.com/moltgraph/moltgraph/internal/telemetry"
)

// Outcome is the terminal state of a view scan.
type Outcome string

const (
	// Exhausted: the server served an empty page or declared no more pages.
	Exhausted Outcome = "exhausted"
	// RepeatDetected: the same leading page signature kept coming back.
	RepeatDetected Outcome = "repeat_detected"
	// StaleDetected: pages kept arriving but contributed nothing new.
	StaleDetected Outcome = "stale_detected"
	// PageCapReached: the configured per-view page budget ran out.
	PageCapReached Outcome = "page_cap_reached"
	// CutoffReached: a cutoff-bounded scan hit items at or past the cutoff.
	CutoffReached Outcome = "cutoff_reached"
)

// Page is one fetched batch plus the server's paging hints.
type Page struct {
	Items      []map[string]any
	NextOffset any
	HasMore    bool
}

// Fetcher returns one page of the view at the given offset.
type Fetcher func(ctx context.Context, offset int) (Page, error)

// Processor consumes the kept items of one page. An error aborts the scan
// before the page's offset is checkpointed.
type Processor func(ctx context.Context, items []map[string]any) error

// Checkpoints persists per-view offsets between runs.
type Checkpoints interface {
	Checkpoint(ctx context.Context, crawlID, key string) (int, error)
	SetCheckpoint(ctx context.Context, crawlID, key string, offset int) error
}

// Config bounds one view scan.
type Config struct {
	MaxPages       int // 0 = unbounded
	MaxStalePages  int
	MaxRepeatPages int
	SignatureSize  int
	// Cutoff bounds the scan to items created after it; zero disables. Only
	// meaningful for reverse-chronological views.
	Cutoff time.Time
}

// Result summarizes a finished view scan.
type Result struct {
	Outcome Outcome
	Pages   int
	Items   int
	NewIDs  int
	Offset  int
}

// Scanner drives one crawl run's view scans. The seen set is shared across
// views so staleness reflects run-wide novelty.
type Scanner struct {
	cfg     Config
	crawlID string
	ckpt    Checkpoints
	seen    *SeenSet
	log     *zap.Logger
}

// New builds a scanner. Zero thresholds fall back to the conservative
// defaults (10-id signature, 2 repeat pages, 4 stale pages).
func New(cfg Config, crawlID string, ckpt Checkpoints, seen *SeenSet, logger *zap.Logger) *Scanner {
	if cfg.SignatureSize <= 0 {
		cfg.SignatureSize = 10
	}
	if cfg.MaxRepeatPages <= 0 {
		cfg.MaxRepeatPages = 2
	}
	if cfg.MaxStalePages <= 0 {
		cfg.MaxStalePages = 4
	}
	return &Scanner{cfg: cfg, crawlID: crawlID, ckpt: ckpt, seen: seen, log: logger.Named("scan")}
}

// Run scans the view named by key until a terminal state, resuming from the
// key's persisted offset. The offset is checkpointed only after a page's
// items have been processed, so a kill loses at most the in-flight page.
func (s *Scanner) Run(ctx context.Context, key string, fetch Fetcher, process Processor) (Result, error) {
	offset, err := s.ckpt.Checkpoint(ctx, s.crawlID, key)
	if err != nil {
		return Result{}, fmt.Errorf("loading checkpoint %s: %w", key, err)
	}
	s.log.Info("scanning view", zap.String("view", key), zap.Int("offset", offset))

	var (
		res      = Result{Offset: offset}
		prevSig  string
		havePrev bool
		stale    int
		repeat   int
	)
	finish := func(o Outcome) (Result, error) {
		res.Outcome = o
		telemetry.ObserveScanOutcome(key, string(o))
		s.log.Info("view scan stopped",
			zap.String("view", key), zap.String("outcome", string(o)),
			zap.Int("pages", res.Pages), zap.Int("items", res.Items),
			zap.Int("new_ids", res.NewIDs), zap.Int("offset", res.Offset))
		return res, nil
	}

	for {
		page, err := fetch(ctx, offset)
		if err != nil {
			return res, fmt.Errorf("fetching %s at offset %d: %w", key, offset, err)
		}
		if len(page.Items) == 0 {
			return finish(Exhausted)
		}

		sig := signature(page.Items, s.cfg.SignatureSize)
		if havePrev && sig == prevSig {
			repeat++
		} else {
			repeat = 0
		}
		prevSig, havePrev = sig, true

		newIDs := 0
		for _, item := range page.Items {
			if s.seen.MarkIfNew(payload.ID(item, "id")) {
				newIDs++
			}
		}
		res.NewIDs += newIDs

		kept := page.Items
		sawOld := false
		if !s.cfg.Cutoff.IsZero() {
			kept, sawOld = splitAtCutoff(page.Items, s.cfg.Cutoff)
		}
		if len(kept) > 0 {
			if err := process(ctx, kept); err != nil {
				return res, fmt.Errorf("processing %s page at offset %d: %w", key, offset, err)
			}
		}
		res.Items += len(kept)

		oldOffset := offset
		offset = nextOffset(offset, page)
		res.Offset = offset
		if err := s.ckpt.SetCheckpoint(ctx, s.crawlID, key, offset); err != nil {
			return res, fmt.Errorf("saving checkpoint %s: %w", key, err)
		}
		res.Pages++
		telemetry.ObservePage(key)

		if s.cfg.Cutoff.IsZero() {
			if newIDs == 0 {
				stale++
			} else {
				stale = 0
			}
		} else {
			if len(kept) == 0 {
				stale++
			} else {
				stale = 0
			}
		}

		s.log.Debug("scanned page",
			zap.String("view", key), zap.Int("page", res.Pages),
			zap.Int("batch", len(page.Items)), zap.Int("kept", len(kept)),
			zap.Int("new_ids", newIDs),
			zap.Int("offset_from", oldOffset), zap.Int("offset_to", offset),
			zap.Int("repeat", repeat), zap.Int("stale", stale),
			zap.Bool("has_more", page.HasMore))

		if sawOld {
			return finish(CutoffReached)
		}
		if s.cfg.MaxPages > 0 && res.Pages >= s.cfg.MaxPages {
			return finish(PageCapReached)
		}
		if repeat >= s.cfg.MaxRepeatPages {
			return finish(RepeatDetected)
		}
		if stale >= s.cfg.MaxStalePages {
			return finish(StaleDetected)
		}
		if !page.HasMore {
			return finish(Exhausted)
		}
	}
}

// signature fingerprints a page by its leading item ids, catching a
// server/CDN that returns the same cached page regardless of offset.
func signature(items []map[string]any, n int) string {
	if len(items) < n {
		n = len(items)
	}
	ids := make([]string, 0, n)
	for _, item := range items[:n] {
		ids = append(ids, payload.ID(item, "id"))
	}
	return strings.Join(ids, "\n")
}

// nextOffset prefers the server-declared next offset when it is numeric and
// strictly advances; otherwise the batch length moves the window. This
// degrades gracefully when next_offset is absent, junk, or non-increasing.
func nextOffset(current int, page Page) int {
	if n, ok := asInt(page.NextOffset); ok && n > current {
		return n
	}
	return current + len(page.Items)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// splitAtCutoff keeps items created strictly after the cutoff and reports
// whether the page reached the cutoff. Items without a parseable timestamp
// are neither kept nor treated as old.
func splitAtCutoff(items []map[string]any, cutoff time.Time) (kept []map[string]any, sawOld bool) {
	kept = make([]map[string]any, 0, len(items))
	for _, item := range items {
		t, ok := parseTime(payload.Text(item, "created_at"))
		if !ok {
			continue
		}
		if t.After(cutoff) {
			kept = append(kept, item)
		} else {
			sawOld = true
		}
	}
	return kept, sawOld
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	// some deployments serve zoneless timestamps; Parse reads them as UTC
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
