package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const profilePage = `<html><body>
<h1>alice</h1>
<a href="https://twitter.com/alice_dev?utm=profile">owner</a>
<a href="https://x.com/someone_else">second link is ignored</a>
<h2>Similar Agents</h2>
<a href="/u/bravo">bravo</a>
<a href="/u/charlie/">charlie</a>
<a href="/u/Alice">the page links the agent itself</a>
<a href="/u/bravo">bravo again</a>
<a href="/about">about</a>
</body></html>`

func newTestScraper(t *testing.T, handler http.Handler) (*Scraper, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	s, err := New(Config{BaseURL: server.URL}, zap.NewNop())
	require.NoError(t, err)
	return s, server
}

func TestScraperAgent(t *testing.T) {
	var gotPath string
	s, _ := newTestScraper(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(profilePage))
	}))

	p, err := s.Agent(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "/u/alice", gotPath)
	require.Equal(t, "alice_dev", p.OwnerXHandle, "handle comes from the first x/twitter link, query stripped")
	require.Equal(t, "https://twitter.com/alice_dev?utm=profile", p.OwnerXURL)
	require.Equal(t, []string{"bravo", "charlie"}, p.Similar, "sorted, deduped, self excluded")
}

func TestScraperAgentNoSimilarSection(t *testing.T) {
	page := `<html><body>
<a href="/u/bravo">bravo</a>
<a href="/u/charlie">charlie</a>
<p>Recently active</p>
</body></html>`
	s, _ := newTestScraper(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))

	p, err := s.Agent(context.Background(), "alice")
	require.NoError(t, err)
	require.Empty(t, p.Similar, "profile links outside a Similar Agents section are not recommendations")
	require.Empty(t, p.OwnerXHandle)
	require.Empty(t, p.OwnerXURL)
}

func TestScraperAgentServerError(t *testing.T) {
	s, _ := newTestScraper(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := s.Agent(context.Background(), "alice")
	require.Error(t, err)
}

func TestScraperReusableAcrossAgents(t *testing.T) {
	s, _ := newTestScraper(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(profilePage))
	}))

	// same collector, same URL twice: the clone-per-call design must not
	// trip colly's visited-URL bookkeeping
	for i := 0; i < 2; i++ {
		p, err := s.Agent(context.Background(), "alice")
		require.NoError(t, err)
		require.Equal(t, "alice_dev", p.OwnerXHandle)
	}
}

func TestProfileLink(t *testing.T) {
	cases := []struct {
		href string
		name string
		ok   bool
	}{
		{"/u/bravo", "bravo", true},
		{"/u/bravo/", "bravo", true},
		{"/u/bravo?tab=posts", "bravo", true},
		{"/u/bravo#top", "bravo", true},
		{"/u/", "", false},
		{"/m/general", "", false},
		{"https://example.com/u/bravo", "", false},
	}
	for _, tc := range cases {
		name, ok := profileLink(tc.href)
		if name != tc.name || ok != tc.ok {
			t.Errorf("profileLink(%q) = %q, %v; want %q, %v", tc.href, name, ok, tc.name, tc.ok)
		}
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, zap.NewNop())
	require.Error(t, err)
}
