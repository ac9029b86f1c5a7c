// Package crawl runs the mirroring pipeline against the live API: seed,
// scan, enrich, snapshot. One pipeline serves both run kinds; a full run
// scans every configured view unbounded, an incremental run scans the
// reverse-chronological views down to the previous run's start time.
package crawl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moltgraph/moltgraph/internal/config"
	"github.com/moltgraph/moltgraph/internal/extract"
	"github.com/moltgraph/moltgraph/internal/graph"
	"github.com/moltgraph/moltgraph/internal/moltbook"
	"github.com/moltgraph/moltgraph/internal/scan"
	"github.com/moltgraph/moltgraph/internal/scrape"
	"github.com/moltgraph/moltgraph/internal/telemetry"
)

// Mode selects the run parameterization.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

func (m Mode) idPrefix() string {
	if m == ModeIncremental {
		return "incr"
	}
	return "full"
}

// API is the slice of the Moltbook client the pipeline drives.
type API interface {
	Me(ctx context.Context) (map[string]any, error)
	AgentProfile(ctx context.Context, name string) (map[string]any, error)
	ListSubmolts(ctx context.Context, limit, offset int, sort string) ([]map[string]any, error)
	GetSubmolt(ctx context.Context, name string) (map[string]any, error)
	Moderators(ctx context.Context, name string) ([]map[string]any, error)
	ListPosts(ctx context.Context, q moltbook.PostsQuery) (map[string]any, error)
	GetPost(ctx context.Context, id string) (map[string]any, error)
	Comments(ctx context.Context, postID, sort string, limit int) ([]map[string]any, error)
	SubmoltFeed(ctx context.Context, name, sort string, limit, offset int) (map[string]any, error)
	Feed(ctx context.Context, sort string, limit, offset int) (map[string]any, error)
}

// Graph is the slice of the graph store the pipeline writes through.
type Graph interface {
	BeginCrawl(ctx context.Context, crawlID, mode string, cutoff time.Time) error
	EndCrawl(ctx context.Context, crawlID string) error
	Checkpoint(ctx context.Context, crawlID, prop string) (int, error)
	SetCheckpoint(ctx context.Context, crawlID, prop string, value int) error
	LatestCutoff(ctx context.Context) (time.Time, bool, error)
	UpsertAgents(ctx context.Context, agents []map[string]any, observedAt time.Time, markProfile bool) (int, error)
	StaleAgentProfiles(ctx context.Context, olderThanDays, limit int) ([]string, error)
	UpsertSubmolts(ctx context.Context, submolts []map[string]any, observedAt time.Time) (int, error)
	UpsertPosts(ctx context.Context, posts []map[string]any, observedAt time.Time) (int, error)
	UpsertComments(ctx context.Context, postID string, tree []map[string]any, observedAt time.Time) (int, error)
	ReconcileModerators(ctx context.Context, submolt string, moderators []map[string]any, observedAt time.Time) error
	ReconcileSimilar(ctx context.Context, agent string, similar []string, observedAt time.Time, source string) error
	WriteFeedSnapshot(ctx context.Context, crawlID, sortKey string, posts []map[string]any, observedAt time.Time) error
	UpsertOwnerAccount(ctx context.Context, agentName string, acct graph.OwnerAccount, observedAt time.Time) error
}

// Scraper is the optional HTML profile collaborator.
type Scraper interface {
	Agent(ctx context.Context, name string) (scrape.Profile, error)
}

// Runner executes crawl runs.
type Runner struct {
	cfg         config.CrawlConfig
	api         API
	store       Graph
	scraper     Scraper // nil disables the HTML stage
	scrapeLimit int
	log         *zap.Logger
}

// New wires the pipeline. A nil scraper disables HTML enrichment;
// scrapeLimit caps how many profile pages it visits (0 = all).
func New(cfg config.CrawlConfig, api API, store Graph, scraper Scraper, scrapeLimit int, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:         cfg,
		api:         api,
		store:       store,
		scraper:     scraper,
		scrapeLimit: scrapeLimit,
		log:         logger.Named("crawl"),
	}
}

// Result summarizes one run. Counts are written rows, not distinct
// entities; the same row observed twice counts twice.
type Result struct {
	CrawlID   string
	Mode      Mode
	Posts     int
	Comments  int
	Submolts  int
	Profiles  int
	Moderated int
	Scraped   int
	Failures  int
	Outcomes  map[string]string // view checkpoint key -> scan outcome
}

// runState is the cross-stage memory of one run: which posts were seen or
// commented, every submolt reference, every author name.
type runState struct {
	seen      *scan.SeenSet
	commented map[string]struct{}
	trees     map[string][]map[string]any
	agents    map[string]struct{}
	submolts  *extract.SubmoltSet
	top       []map[string]any
}

func newRunState() *runState {
	return &runState{
		seen:      scan.NewSeenSet(),
		commented: make(map[string]struct{}),
		trees:     make(map[string][]map[string]any),
		agents:    make(map[string]struct{}),
		submolts:  extract.NewSubmoltSet(),
	}
}

func (st *runState) noteAgent(name string) {
	if name != "" {
		st.agents[name] = struct{}{}
	}
}

func (st *runState) agentNames() []string {
	names := make([]string, 0, len(st.agents))
	for n := range st.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes one crawl. resumeID continues an earlier run under its
// existing id, picking every view up from its persisted offset; empty
// starts a fresh run. The only fatal error after startup is failing to
// open the Crawl record; every stage after that is isolated.
func (r *Runner) Run(ctx context.Context, mode Mode, resumeID string) (Result, error) {
	observed := time.Now().UTC()
	crawlID := resumeID
	if crawlID == "" {
		crawlID = mode.idPrefix() + ":" + uuid.NewString()
	}
	res := Result{CrawlID: crawlID, Mode: mode, Outcomes: make(map[string]string)}

	// The baseline must be read before this run records its own cutoff.
	var cutoff time.Time
	if mode == ModeIncremental {
		t, ok, err := r.store.LatestCutoff(ctx)
		switch {
		case err != nil:
			return res, fmt.Errorf("loading cutoff baseline: %w", err)
		case ok:
			cutoff = t
		default:
			r.log.Info("no prior cutoff; incremental run scans unbounded")
		}
	}

	if err := r.store.BeginCrawl(ctx, crawlID, string(mode), observed); err != nil {
		return res, fmt.Errorf("opening crawl %s: %w", crawlID, err)
	}
	telemetry.ObserveRun(string(mode))
	r.log.Info("crawl started",
		zap.String("crawl_id", crawlID),
		zap.String("mode", string(mode)),
		zap.Time("cutoff", cutoff),
		zap.Bool("resumed", resumeID != ""))

	st := newRunState()

	r.runStage(ctx, &res, "identity", func(ctx context.Context) error {
		return r.seedIdentity(ctx, observed)
	})
	r.runStage(ctx, &res, "submolt_seed", func(ctx context.Context) error {
		return r.seedSubmolts(ctx, st, &res, observed)
	})

	for _, v := range r.viewsFor(mode) {
		r.runStage(ctx, &res, "posts_scan", func(ctx context.Context) error {
			out, err := r.scanView(ctx, st, &res, crawlID, v, cutoff, observed)
			if err != nil {
				return fmt.Errorf("view %s: %w", v, err)
			}
			res.Outcomes[v.Key()] = string(out.Outcome)
			return nil
		})
	}

	if r.cfg.SubmoltFeeds && r.cfg.SubmoltFeedMaxPages > 0 {
		r.runStage(ctx, &res, "submolt_feeds", func(ctx context.Context) error {
			return r.scanSubmoltFeeds(ctx, st, &res, crawlID, observed)
		})
	}

	r.runStage(ctx, &res, "discovered_submolts", func(ctx context.Context) error {
		return r.flushSubmolts(ctx, st, &res, observed)
	})

	if r.cfg.RefreshModerators && r.cfg.ModeratorsLimit > 0 {
		r.runStage(ctx, &res, "moderators", func(ctx context.Context) error {
			return r.refreshModerators(ctx, st, &res, observed)
		})
	}

	if r.cfg.FetchProfiles {
		r.runStage(ctx, &res, "profiles", func(ctx context.Context) error {
			return r.refreshProfiles(ctx, st, &res, mode, observed)
		})
	}

	if r.cfg.FeedSnapshot {
		r.runStage(ctx, &res, "feed_snapshot", func(ctx context.Context) error {
			return r.snapshotFeed(ctx, crawlID, observed)
		})
	}

	if r.scraper != nil {
		r.runStage(ctx, &res, "html_enrichment", func(ctx context.Context) error {
			return r.scrapeProfiles(ctx, st, &res, observed)
		})
	}

	if err := r.store.EndCrawl(ctx, crawlID); err != nil {
		res.Failures++
		telemetry.ObserveStageFailure("end_crawl")
		r.log.Error("closing crawl failed", zap.String("crawl_id", crawlID), zap.Error(err))
	}

	r.log.Info("crawl finished",
		zap.String("crawl_id", crawlID),
		zap.Int("posts", res.Posts),
		zap.Int("comments", res.Comments),
		zap.Int("submolts", res.Submolts),
		zap.Int("profiles", res.Profiles),
		zap.Int("moderated", res.Moderated),
		zap.Int("scraped", res.Scraped),
		zap.Int("stage_failures", res.Failures))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// runStage isolates one stage: a failure is logged and counted, never
// propagated. Stages are skipped once the run context is canceled.
func (r *Runner) runStage(ctx context.Context, res *Result, name string, fn func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	if err := fn(ctx); err != nil {
		res.Failures++
		telemetry.ObserveStageFailure(name)
		r.log.Error("stage failed; run continues", zap.String("stage", name), zap.Error(err))
	}
}

// viewsFor returns the configured views, reduced on incremental runs to the
// reverse-chronological ones: only those can honor a cutoff.
func (r *Runner) viewsFor(mode Mode) []View {
	views := ParseViews(r.cfg.Views)
	if mode == ModeIncremental {
		var kept []View
		for _, v := range views {
			if v.Sort == "new" {
				kept = append(kept, v)
			}
		}
		views = kept
	}
	if len(views) == 0 {
		views = []View{{Sort: "new"}}
	}
	return views
}
