package moltbook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	return New(Config{
		BaseURL:           baseURL,
		APIKey:            "test-key",
		UserAgent:         "moltgraph-test",
		RequestsPerMinute: 0,
		MaxRetries:        4,
		BackoffInitial:    5 * time.Millisecond,
		BackoffMax:        20 * time.Millisecond,
		RateLimitCooldown: 25 * time.Millisecond,
		Timeout:           5 * time.Second,
	}, zap.NewNop())
}

func TestSendRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	resp, err := newTestClient(ts.URL).Send(context.Background(), http.MethodGet, "/posts", nil, false)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"ok": true}, resp)
	require.Equal(t, int32(3), calls.Load())
}

func TestSendRateLimitedWaitsCooldown(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	start := time.Now()
	_, err := newTestClient(ts.URL).Send(context.Background(), http.MethodGet, "/posts", nil, false)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond,
		"a 429 without headers must wait out the fallback cooldown")
}

func TestSendExhaustsAttemptsAndSurfacesLastError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Send(context.Background(), http.MethodGet, "/posts", nil, false)
	require.Error(t, err)
	require.True(t, IsStatus(err, http.StatusBadGateway), "got %v", err)
	require.Equal(t, int32(4), calls.Load(), "every configured attempt is spent")
}

func TestSendAuthRequiredIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Send(context.Background(), http.MethodGet, "/feed", nil, false)
	require.ErrorIs(t, err, ErrAuthRequired)
	require.Equal(t, int32(1), calls.Load())
}

func TestSendNonRetryableStatusSurfacesImmediately(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Send(context.Background(), http.MethodGet, "/posts/gone", nil, false)
	require.True(t, IsStatus(err, http.StatusNotFound), "got %v", err)
	require.Equal(t, int32(1), calls.Load())
}

func TestSendEmptyBodyNormalizesToEmptyObject(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	resp, err := newTestClient(ts.URL).Send(context.Background(), http.MethodGet, "/agents/me", nil, true)
	require.NoError(t, err)
	require.Equal(t, map[string]any{}, resp)
}

func TestSendFollowsRedirectOncePreservingAuth(t *testing.T) {
	t.Parallel()

	var destCalls atomic.Int32
	var gotAuth atomic.Value
	dest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		destCalls.Add(1)
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{"moved":true}`))
	}))
	defer dest.Close()

	var srcCalls atomic.Int32
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srcCalls.Add(1)
		// cross-host redirect: the stdlib auto-follower would strip
		// the Authorization header here
		http.Redirect(w, r, dest.URL+"/api/v1/posts", http.StatusFound)
	}))
	defer src.Close()

	resp, err := newTestClient(src.URL).Send(context.Background(), http.MethodGet, "/posts", nil, true)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"moved": true}, resp)
	require.Equal(t, int32(1), srcCalls.Load())
	require.Equal(t, int32(1), destCalls.Load())
	require.Equal(t, "Bearer test-key", gotAuth.Load())
}

func TestSendNeverFollowsSecondRedirect(t *testing.T) {
	t.Parallel()

	var finalCalls atomic.Int32
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		finalCalls.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer final.Close()

	hop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer hop.Close()

	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, hop.URL, http.StatusFound)
	}))
	defer src.Close()

	_, err := newTestClient(src.URL).Send(context.Background(), http.MethodGet, "/posts", nil, false)
	require.True(t, IsStatus(err, http.StatusFound), "second redirect surfaces as-is, got %v", err)
	require.Equal(t, int32(0), finalCalls.Load())
}

func TestPublicFirstFallsBackToAuthOn401(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"submolts":[{"name":"agents"}]}`))
	}))
	defer ts.Close()

	subs, err := newTestClient(ts.URL).ListSubmolts(context.Background(), 100, 0, "popular")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "agents", subs[0]["name"])
	require.Equal(t, int32(2), calls.Load())
}

func TestPublicRequestsCarryNoCacheHeaders(t *testing.T) {
	t.Parallel()

	var cacheControl atomic.Value
	var auth atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cacheControl.Store(r.Header.Get("Cache-Control"))
		auth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{"posts":[]}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).ListPosts(context.Background(), PostsQuery{Sort: "new", Limit: 50})
	require.NoError(t, err)
	require.Equal(t, "no-cache", cacheControl.Load())
	require.Equal(t, "", auth.Load())
}

func TestEndpointShapes(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/agents/me":
			w.Write([]byte(`{"agent":{"name":"me-bot"}}`))
		case "/posts/p1/comments":
			w.Write([]byte(`[{"id":"c1"},{"id":"c2"}]`))
		case "/posts":
			w.Write([]byte(`[{"id":"p1"}]`))
		case "/submolts/general":
			w.Write([]byte(`{"submolt":{"name":"general","subscriber_count":9}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)
	ctx := context.Background()

	me, err := c.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "me-bot", me["name"])

	comments, err := c.Comments(ctx, "p1", "new", 200)
	require.NoError(t, err)
	require.Len(t, comments, 2)

	env, err := c.ListPosts(ctx, PostsQuery{Sort: "new", Limit: 10})
	require.NoError(t, err)
	require.Len(t, ExtractList(env, "posts"), 1, "bare arrays are re-wrapped as envelopes")

	sub, err := c.GetSubmolt(ctx, "general")
	require.NoError(t, err)
	require.Equal(t, "general", sub["name"])
}

func TestSendContextCancellation(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(ts.URL).Send(ctx, http.MethodGet, "/posts", nil, false)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
}
