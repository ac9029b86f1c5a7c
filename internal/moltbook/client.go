// Package moltbook is the HTTP client for the Moltbook REST API. It paces
// every request to a requests-per-minute budget, retries rate-limit and
// transient upstream failures with exponential backoff, follows redirects
// manually so credentials survive cross-host hops, and tolerates the
// response-envelope drift the API has accumulated over time.
package moltbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moltgraph/moltgraph/internal/telemetry"
)

// Config carries the transport knobs for a Client.
type Config struct {
	BaseURL           string
	APIKey            string
	UserAgent         string
	RequestsPerMinute int
	MaxRetries        int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	RateLimitCooldown time.Duration
	Timeout           time.Duration
}

// Client talks to the Moltbook API. All methods are synchronous; the
// pacer serializes request spacing.
type Client struct {
	cfg   Config
	base  string
	http  *http.Client
	pacer *Pacer
	retry *RetryPolicy
	log   *zap.Logger
}

// New builds a Client. Redirects are never followed automatically: the
// stdlib redirect chain drops the Authorization header on cross-host hops,
// silently degrading calls to anonymous ones. Send follows one redirect by
// hand instead, reusing the original headers.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:  cfg,
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		pacer: NewPacer(cfg.RequestsPerMinute),
		retry: NewRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax, cfg.RateLimitCooldown),
		log:   logger.Named("moltbook"),
	}
}

type wireResponse struct {
	status int
	header http.Header
	body   []byte
}

// Send issues method path?params and returns the decoded JSON value. A 401
// surfaces as ErrAuthRequired without retry; retryable statuses and network
// failures are repeated per the retry policy; an empty body decodes to an
// empty object.
func (c *Client) Send(ctx context.Context, method, path string, params url.Values, useAuth bool) (any, error) {
	label := metricLabel(path)

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.do(ctx, method, path, params, useAuth)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s %s: %w", method, path, ctx.Err())
			}
			lastErr = fmt.Errorf("%s %s: %w", method, path, err)
			wait, retry := c.retry.DecideNetwork(attempt)
			if !retry {
				return nil, lastErr
			}
			telemetry.ObserveRetry("network")
			c.log.Warn("request failed; backing off",
				zap.String("path", path), zap.Duration("wait", wait), zap.Error(err))
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}
		telemetry.ObserveRequest(label, resp.status, time.Since(start))

		switch {
		case resp.status == http.StatusUnauthorized:
			return nil, fmt.Errorf("%s %s: %w", method, path, ErrAuthRequired)

		case retryableStatus[resp.status]:
			lastErr = &APIError{StatusCode: resp.status, Method: method, Path: path}
			wait, retry := c.retry.Decide(resp.status, resp.header, attempt)
			if !retry {
				return nil, lastErr
			}
			reason := "server_error"
			if resp.status == http.StatusTooManyRequests {
				reason = "rate_limited"
				telemetry.ObserveRateLimitWait(wait)
			}
			telemetry.ObserveRetry(reason)
			c.log.Warn("retryable status; waiting",
				zap.String("path", path), zap.Int("status", resp.status), zap.Duration("wait", wait))
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			continue

		case resp.status >= 200 && resp.status < 300:
			if len(bytes.TrimSpace(resp.body)) == 0 {
				return map[string]any{}, nil
			}
			var v any
			if err := json.Unmarshal(resp.body, &v); err != nil {
				return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
			}
			return v, nil

		default:
			return nil, &APIError{StatusCode: resp.status, Method: method, Path: path}
		}
	}
}

// do performs a single HTTP exchange, following at most one redirect
// manually with the original headers reattached.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, useAuth bool) (*wireResponse, error) {
	target := c.base + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req, useAuth)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if isRedirect(resp.StatusCode) {
		loc := resp.Header.Get("Location")
		drainClose(resp.Body)
		if loc == "" {
			return nil, fmt.Errorf("redirect from %s without location", target)
		}
		dest, err := resp.Request.URL.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("resolve redirect %q: %w", loc, err)
		}
		c.log.Debug("following redirect once",
			zap.String("from", target), zap.String("to", dest.String()))

		req, err = http.NewRequestWithContext(ctx, method, dest.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("build redirect request: %w", err)
		}
		c.setHeaders(req, useAuth)
		resp, err = c.http.Do(req)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &wireResponse{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// setHeaders applies the canonical header set. Unauthenticated calls add
// no-cache hints: the CDN serves fresher pages to anonymous listing
// requests.
func (c *Client) setHeaders(req *http.Request, useAuth bool) {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	if useAuth {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	} else {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// metricLabel collapses path parameters so metrics stay low-cardinality.
func metricLabel(path string) string {
	known := map[string]bool{
		"agents": true, "me": true, "profile": true, "submolts": true,
		"moderators": true, "posts": true, "comments": true, "feed": true,
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		if !known[s] {
			segs[i] = ":id"
		}
	}
	return "/" + strings.Join(segs, "/")
}
