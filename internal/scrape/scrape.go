// Package scrape pulls the facts the JSON API never exposes off an agent's
// public profile page: the human owner's X link and the "Similar Agents"
// sidebar. Page structure is not a contract, so everything here is best
// effort and callers treat failures as missing data.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Source tags SIMILAR_TO edges derived from profile pages.
const Source = "html_profile"

const defaultUserAgent = "MoltGraphCrawler/0.1"

var xLinkPattern = regexp.MustCompile(`(x\.com|twitter\.com)/([^/?#]+)`)

// Profile holds what one page yielded. Zero values mean the page did not
// carry the fact.
type Profile struct {
	OwnerXHandle string
	OwnerXURL    string
	Similar      []string
}

// Config for the profile scraper.
type Config struct {
	BaseURL        string // site root, e.g. https://www.moltbook.com
	UserAgent      string
	RequestTimeout time.Duration
}

// Scraper fetches public profile pages. Safe to reuse across agents; each
// call clones the base collector so per-page state never leaks.
type Scraper struct {
	base    *colly.Collector
	baseURL string
	log     *zap.Logger
}

// New builds a scraper against the site root.
func New(cfg Config, logger *zap.Logger) (*Scraper, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("scrape: base URL required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	// the orchestrator decides when a profile is worth refetching
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	return &Scraper{
		base:    base,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		log:     logger.Named("scrape"),
	}, nil
}

// Agent fetches /u/{name} and extracts the owner's X link plus similar-agent
// names. The similar list is only trusted when the page actually renders a
// "Similar Agents" section; stray /u/ links elsewhere would otherwise pass
// as recommendations.
func (s *Scraper) Agent(ctx context.Context, agentName string) (Profile, error) {
	c := s.base.Clone()

	var (
		xLink      string
		similar    []string
		hasSimilar bool
	)
	self := strings.ToLower(agentName)

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if xLink == "" && (strings.Contains(href, "x.com/") || strings.Contains(href, "twitter.com/")) {
			xLink = href
		}
		if name, ok := profileLink(href); ok && strings.ToLower(name) != self {
			similar = append(similar, name)
		}
	})
	c.OnHTML("body", func(e *colly.HTMLElement) {
		if strings.Contains(e.Text, "Similar Agents") {
			hasSimilar = true
		}
	})

	var fetchErr error
	c.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = fmt.Errorf("status %d", r.StatusCode)
		}
		fetchErr = err
	})

	pageURL := s.baseURL + "/u/" + url.PathEscape(agentName)
	if err := c.Visit(pageURL); err != nil {
		return Profile{}, fmt.Errorf("visiting %s: %w", pageURL, err)
	}
	c.Wait()
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	if fetchErr != nil {
		return Profile{}, fmt.Errorf("fetching %s: %w", pageURL, fetchErr)
	}

	var p Profile
	if m := xLinkPattern.FindStringSubmatch(xLink); m != nil {
		p.OwnerXHandle = m[2]
		p.OwnerXURL = xLink
	}
	if hasSimilar {
		p.Similar = dedupSorted(similar)
	}
	s.log.Debug("scraped profile page",
		zap.String("agent", agentName),
		zap.Bool("owner_x", p.OwnerXHandle != ""),
		zap.Int("similar", len(p.Similar)))
	return p, nil
}

// profileLink extracts the agent name from an internal /u/ href.
func profileLink(href string) (string, bool) {
	name, ok := strings.CutPrefix(href, "/u/")
	if !ok {
		return "", false
	}
	if i := strings.IndexAny(name, "/?#"); i >= 0 {
		name = name[:i]
	}
	return name, name != ""
}

func dedupSorted(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
