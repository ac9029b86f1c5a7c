package scan

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memCheckpoints struct {
	vals map[string]int
	sets []string
}

func (m *memCheckpoints) Checkpoint(_ context.Context, crawlID, key string) (int, error) {
	return m.vals[crawlID+"/"+key], nil
}

func (m *memCheckpoints) SetCheckpoint(_ context.Context, crawlID, key string, offset int) error {
	if m.vals == nil {
		m.vals = make(map[string]int)
	}
	m.vals[crawlID+"/"+key] = offset
	m.sets = append(m.sets, fmt.Sprintf("%s=%d", key, offset))
	return nil
}

func items(ids ...string) []map[string]any {
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]any{"id": id})
	}
	return out
}

func newScanner(cfg Config, ckpt Checkpoints) *Scanner {
	return New(cfg, "run-1", ckpt, NewSeenSet(), zap.NewNop())
}

func TestScannerRepeatDetected(t *testing.T) {
	t.Parallel()

	same := items("a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l")
	fetch := func(context.Context, int) (Page, error) {
		return Page{Items: same, HasMore: true}, nil
	}
	processed := 0
	process := func(_ context.Context, batch []map[string]any) error {
		processed += len(batch)
		return nil
	}

	ckpt := &memCheckpoints{}
	res, err := newScanner(Config{}, ckpt).Run(context.Background(), "posts_new", fetch, process)
	require.NoError(t, err)
	require.Equal(t, RepeatDetected, res.Outcome)
	require.Equal(t, 3, res.Pages, "first page plus two identical signatures")
	require.Equal(t, 12, res.NewIDs)
	require.Equal(t, 36, res.Offset, "fallback advance adds the batch size")
	require.Equal(t, 36, processed)
}

func TestScannerStaleDetected(t *testing.T) {
	t.Parallel()

	// A pool of known ids served in rotating order: signatures differ page
	// to page, so only the novelty heuristic can catch the dead offset.
	pool := make([]string, 20)
	for i := range pool {
		pool[i] = fmt.Sprintf("id-%02d", i)
	}
	calls := 0
	fetch := func(context.Context, int) (Page, error) {
		rot := calls % len(pool)
		calls++
		rotated := append(append([]string{}, pool[rot:]...), pool[:rot]...)
		return Page{Items: items(rotated...), HasMore: true}, nil
	}

	res, err := newScanner(Config{}, &memCheckpoints{}).Run(context.Background(), "posts_top", fetch,
		func(context.Context, []map[string]any) error { return nil })
	require.NoError(t, err)
	require.Equal(t, StaleDetected, res.Outcome)
	require.Equal(t, 5, res.Pages, "one novel page plus the stale threshold")
	require.Equal(t, 20, res.NewIDs)
}

func TestScannerExhausted(t *testing.T) {
	t.Parallel()

	t.Run("no more pages", func(t *testing.T) {
		fetch := func(context.Context, int) (Page, error) {
			return Page{Items: items("a", "b"), HasMore: false}, nil
		}
		res, err := newScanner(Config{}, &memCheckpoints{}).Run(context.Background(), "v", fetch,
			func(context.Context, []map[string]any) error { return nil })
		require.NoError(t, err)
		require.Equal(t, Exhausted, res.Outcome)
		require.Equal(t, 1, res.Pages)
	})

	t.Run("empty batch", func(t *testing.T) {
		fetch := func(context.Context, int) (Page, error) {
			return Page{HasMore: true}, nil
		}
		called := false
		res, err := newScanner(Config{}, &memCheckpoints{}).Run(context.Background(), "v", fetch,
			func(context.Context, []map[string]any) error { called = true; return nil })
		require.NoError(t, err)
		require.Equal(t, Exhausted, res.Outcome)
		require.Zero(t, res.Pages)
		require.False(t, called)
	})
}

func TestScannerPageCap(t *testing.T) {
	t.Parallel()

	n := 0
	fetch := func(context.Context, int) (Page, error) {
		n++
		return Page{Items: items(fmt.Sprintf("p%d-a", n), fmt.Sprintf("p%d-b", n)), HasMore: true}, nil
	}
	res, err := newScanner(Config{MaxPages: 3}, &memCheckpoints{}).Run(context.Background(), "v", fetch,
		func(context.Context, []map[string]any) error { return nil })
	require.NoError(t, err)
	require.Equal(t, PageCapReached, res.Outcome)
	require.Equal(t, 3, res.Pages)
}

func TestNextOffset(t *testing.T) {
	t.Parallel()

	five := items("a", "b", "c", "d", "e")
	cases := []struct {
		name    string
		current int
		page    Page
		want    int
	}{
		{"numeric jump", 0, Page{Items: five, NextOffset: float64(50)}, 50},
		{"non-increasing ignored", 50, Page{Items: five, NextOffset: float64(40)}, 55},
		{"equal ignored", 50, Page{Items: five, NextOffset: float64(50)}, 55},
		{"string numeric", 10, Page{Items: five, NextOffset: "25"}, 25},
		{"junk string", 10, Page{Items: five, NextOffset: "soon"}, 15},
		{"absent", 10, Page{Items: five}, 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := nextOffset(tc.current, tc.page); got != tc.want {
				t.Fatalf("nextOffset(%d, %v) = %d, want %d", tc.current, tc.page.NextOffset, got, tc.want)
			}
		})
	}
}

func TestScannerCheckpointResume(t *testing.T) {
	t.Parallel()

	ckpt := &memCheckpoints{vals: map[string]int{"run-1/v": 40}}
	var fetched []int
	fetch := func(_ context.Context, offset int) (Page, error) {
		fetched = append(fetched, offset)
		if len(fetched) == 2 {
			return Page{Items: items("x", "y"), HasMore: false}, nil
		}
		return Page{Items: items("a", "b"), HasMore: true}, nil
	}

	res, err := newScanner(Config{}, ckpt).Run(context.Background(), "v", fetch,
		func(context.Context, []map[string]any) error { return nil })
	require.NoError(t, err)
	require.Equal(t, Exhausted, res.Outcome)
	require.Equal(t, []int{40, 42}, fetched, "scan resumes at the persisted offset")
	require.Equal(t, []string{"v=42", "v=44"}, ckpt.sets, "offset persists after every processed page")
	require.Equal(t, 44, ckpt.vals["run-1/v"])
}

func TestScannerProcessorErrorKeepsCheckpoint(t *testing.T) {
	t.Parallel()

	ckpt := &memCheckpoints{}
	page := 0
	fetch := func(context.Context, int) (Page, error) {
		page++
		return Page{Items: items(fmt.Sprintf("p%d-a", page), fmt.Sprintf("p%d-b", page)), HasMore: true}, nil
	}
	boom := errors.New("graph down")
	process := func(context.Context, []map[string]any) error {
		if page == 2 {
			return boom
		}
		return nil
	}

	res, err := newScanner(Config{}, ckpt).Run(context.Background(), "v", fetch, process)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, res.Pages)
	require.Equal(t, 2, ckpt.vals["run-1/v"], "the failed page is not checkpointed")
}

func TestScannerCutoffStop(t *testing.T) {
	t.Parallel()

	cutoff := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	stamp := func(s string) map[string]any {
		return map[string]any{"id": s, "created_at": s}
	}
	pages := [][]map[string]any{
		{
			stamp("2025-06-12T09:00:00Z"),
			stamp("2025-06-11T12:00:00Z"),
			stamp("2025-06-11T03:00:00Z"),
		},
		{
			stamp("2025-06-10T01:00:00Z"),
			{"id": "junk-ts", "created_at": "not a time"},
			stamp("2025-06-10T00:00:00Z"), // at the cutoff: old
			stamp("2025-06-09T22:00:00Z"),
		},
		{
			stamp("2025-06-08T00:00:00Z"),
		},
	}
	call := 0
	fetch := func(context.Context, int) (Page, error) {
		p := pages[call]
		call++
		return Page{Items: p, HasMore: true}, nil
	}
	var processed [][]map[string]any
	process := func(_ context.Context, batch []map[string]any) error {
		processed = append(processed, batch)
		return nil
	}

	res, err := newScanner(Config{Cutoff: cutoff}, &memCheckpoints{}).Run(context.Background(), "v", fetch, process)
	require.NoError(t, err)
	require.Equal(t, CutoffReached, res.Outcome)
	require.Equal(t, 2, res.Pages, "the page straddling the cutoff is the last one fetched")
	require.Equal(t, 4, res.Items)
	require.Len(t, processed, 2)
	require.Len(t, processed[0], 3)
	require.Len(t, processed[1], 1, "only items newer than the cutoff are kept")
	require.Equal(t, "2025-06-10T01:00:00Z", processed[1][0]["id"])
}

func TestScannerCutoffAllOldPage(t *testing.T) {
	t.Parallel()

	cutoff := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	fetch := func(context.Context, int) (Page, error) {
		return Page{Items: []map[string]any{
			{"id": "old", "created_at": "2025-06-01T00:00:00Z"},
		}, HasMore: true}, nil
	}
	called := false
	res, err := newScanner(Config{Cutoff: cutoff}, &memCheckpoints{}).Run(context.Background(), "v", fetch,
		func(context.Context, []map[string]any) error { called = true; return nil })
	require.NoError(t, err)
	require.Equal(t, CutoffReached, res.Outcome)
	require.Equal(t, 1, res.Pages)
	require.False(t, called, "an all-old page has nothing to process")
}

func TestSignature(t *testing.T) {
	t.Parallel()

	a := signature(items("a", "b", "c"), 10)
	b := signature(items("a", "b", "c"), 10)
	c := signature(items("a", "b", "d"), 10)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)

	long := items("a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k")
	tail := items("a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "z")
	require.Equal(t, signature(long, 10), signature(tail, 10), "only the leading ids count")
}

func TestSeenSet(t *testing.T) {
	t.Parallel()

	s := NewSeenSet()
	require.True(t, s.MarkIfNew("a"))
	require.False(t, s.MarkIfNew("a"))
	require.False(t, s.MarkIfNew(""))
	require.True(t, s.MarkIfNew("b"))
	require.True(t, s.Has("a"))
	require.False(t, s.Has("c"))
	require.Equal(t, 2, s.Len())
}
