package moltbook

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/moltgraph/moltgraph/internal/telemetry"
)

// Pacer spaces upstream requests to a requests-per-minute budget. It is a
// token bucket with burst 1, so the minimum interval between requests is
// 60s/rpm. Safe for concurrent use; under the current sequential pipeline
// it simply serializes the spacing.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer builds a Pacer for the given requests-per-minute budget. A
// non-positive budget disables pacing.
func NewPacer(perMinute int) *Pacer {
	if perMinute <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	interval := time.Minute / time.Duration(perMinute)
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next request slot, respecting the context.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveRateLimitWait(waited)
	}
	return nil
}
