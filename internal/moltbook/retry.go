package moltbook

import (
	"net/http"
	"strconv"
	"time"
)

// retryableStatus is the set of status codes worth repeating a request for.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// RetryPolicy decides whether and how long to wait before repeating a
// failed request. Decisions are pure functions of (status, headers,
// attempt); the transport loop owns the actual sleeping.
type RetryPolicy struct {
	MaxAttempts       int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	RateLimitCooldown time.Duration

	now func() time.Time
}

// NewRetryPolicy builds a policy with the given attempt ceiling and
// backoff window.
func NewRetryPolicy(maxAttempts int, initial, max, cooldown time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &RetryPolicy{
		MaxAttempts:       maxAttempts,
		BackoffInitial:    initial,
		BackoffMax:        max,
		RateLimitCooldown: cooldown,
		now:               time.Now,
	}
}

// Decide returns the wait before retrying a response with the given status,
// or false when the request should not be retried. attempt is zero-based.
//
// 429 waits are server-directed where possible: Retry-After first, then the
// platform's X-RateLimit-Reset epoch, then a fixed cooldown. A 429 never
// retries immediately.
func (p *RetryPolicy) Decide(status int, header http.Header, attempt int) (time.Duration, bool) {
	if !retryableStatus[status] {
		return 0, false
	}
	if attempt+1 >= p.MaxAttempts {
		return 0, false
	}
	if status == http.StatusTooManyRequests {
		return p.rateLimitWait(header), true
	}
	return p.Backoff(attempt), true
}

// DecideNetwork handles transport-level failures (connect, timeout): same
// exponential schedule, same attempt ceiling.
func (p *RetryPolicy) DecideNetwork(attempt int) (time.Duration, bool) {
	if attempt+1 >= p.MaxAttempts {
		return 0, false
	}
	return p.Backoff(attempt), true
}

// Backoff returns the exponential wait for a zero-based attempt index,
// capped at BackoffMax.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BackoffInitial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

func (p *RetryPolicy) rateLimitWait(header http.Header) time.Duration {
	const floor = time.Second

	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return maxDuration(time.Duration(secs)*time.Second, floor)
		}
		if at, err := http.ParseTime(v); err == nil {
			return maxDuration(at.Sub(p.now()), floor)
		}
	}
	if v := header.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseFloat(v, 64); err == nil {
			reset := time.Unix(0, int64(epoch*float64(time.Second)))
			return maxDuration(reset.Sub(p.now()), floor)
		}
	}
	return maxDuration(p.RateLimitCooldown, floor)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
