package crawl

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/moltgraph/moltgraph/internal/extract"
	"github.com/moltgraph/moltgraph/internal/graph"
	"github.com/moltgraph/moltgraph/internal/moltbook"
	"github.com/moltgraph/moltgraph/internal/payload"
	"github.com/moltgraph/moltgraph/internal/scan"
	"github.com/moltgraph/moltgraph/internal/scrape"
	"github.com/moltgraph/moltgraph/internal/telemetry"
)

// seedIdentity records the crawling account's own agent row.
func (r *Runner) seedIdentity(ctx context.Context, observed time.Time) error {
	me, err := r.api.Me(ctx)
	if err != nil {
		return err
	}
	if len(me) == 0 {
		return nil
	}
	_, err = r.store.UpsertAgents(ctx, []map[string]any{me}, observed, true)
	return err
}

// seedSubmolts writes the popular top slice. Offset paging on /submolts is
// ignored in production, so one slice is all there is; optionally each
// seeded submolt is swapped for its detail payload.
func (r *Runner) seedSubmolts(ctx context.Context, st *runState, res *Result, observed time.Time) error {
	if r.cfg.SubmoltTopLimit <= 0 {
		return nil
	}
	rows, err := r.api.ListSubmolts(ctx, r.cfg.SubmoltTopLimit, 0, "popular")
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	st.top = rows
	n, err := r.store.UpsertSubmolts(ctx, rows, observed)
	if err != nil {
		return err
	}
	res.Submolts += n
	telemetry.ObserveRows("submolts", n)
	r.log.Info("seeded top submolts", zap.Int("count", n))

	if !r.cfg.EnrichSubmolts {
		return nil
	}
	enriched := make([]map[string]any, 0, len(rows))
	for _, s := range rows {
		name := payload.Text(s, "name")
		if name == "" {
			continue
		}
		if r.cfg.EnrichSubmoltsLimit > 0 && len(enriched) >= r.cfg.EnrichSubmoltsLimit {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		det, err := r.api.GetSubmolt(ctx, name)
		if err != nil || len(det) == 0 {
			enriched = append(enriched, s)
			continue
		}
		enriched = append(enriched, det)
	}
	if len(enriched) == 0 {
		return nil
	}
	n, err = r.store.UpsertSubmolts(ctx, enriched, observed)
	if err != nil {
		return err
	}
	res.Submolts += n
	telemetry.ObserveRows("submolts", n)
	return nil
}

// scanView pages through one posts view. Only "new" views take the cutoff;
// top/hot orderings are not chronological, so a cutoff there would stop on
// whatever old post happens to rank high.
func (r *Runner) scanView(ctx context.Context, st *runState, res *Result, crawlID string, v View, cutoff, observed time.Time) (scan.Result, error) {
	cfg := scan.Config{
		MaxPages:       r.cfg.MaxPages,
		MaxStalePages:  r.cfg.MaxStalePages,
		MaxRepeatPages: r.cfg.MaxRepeatPages,
	}
	if v.Sort == "new" {
		cfg.Cutoff = cutoff
	}
	sc := scan.New(cfg, crawlID, r.store, st.seen, r.log)

	fetch := func(ctx context.Context, offset int) (scan.Page, error) {
		env, err := r.api.ListPosts(ctx, moltbook.PostsQuery{
			Sort:   v.Sort,
			Limit:  r.cfg.PageSize,
			Offset: offset,
			Window: v.Window,
		})
		if err != nil {
			return scan.Page{}, err
		}
		return pageFromEnvelope(env), nil
	}
	return sc.Run(ctx, v.Key(), fetch, func(ctx context.Context, items []map[string]any) error {
		return r.processPosts(ctx, st, res, items, observed)
	})
}

// processPosts is the per-page workhorse: discover referenced submolts and
// authors, optionally swap in detail payloads, write the batch, then fetch
// each post's comment tree at most once per run.
func (r *Runner) processPosts(ctx context.Context, st *runState, res *Result, batch []map[string]any, observed time.Time) error {
	for _, p := range batch {
		st.submolts.Add(p["submolt"])
		st.noteAgent(extract.AuthorName(p))
	}

	upserts := batch
	if r.cfg.FetchPostDetails {
		upserts = r.enrichPosts(ctx, st, batch)
	}

	n, err := r.store.UpsertPosts(ctx, upserts, observed)
	if err != nil {
		return err
	}
	res.Posts += n
	telemetry.ObserveRows("posts", n)

	if !r.cfg.Comments {
		return nil
	}
	for _, p := range batch {
		pid := payload.ID(p, "id")
		if pid == "" {
			continue
		}
		if _, done := st.commented[pid]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		tree, cached := st.trees[pid]
		if cached {
			delete(st.trees, pid)
		} else {
			fetched, err := r.api.Comments(ctx, pid, "new", r.cfg.CommentsLimit)
			if err != nil {
				r.log.Debug("comment fetch failed", zap.String("post_id", pid), zap.Error(err))
			} else {
				tree = fetched
			}
		}
		st.commented[pid] = struct{}{}
		if len(tree) == 0 {
			continue
		}

		wrote, err := r.store.UpsertComments(ctx, pid, tree, observed)
		if err != nil {
			r.log.Warn("comment upsert failed", zap.String("post_id", pid), zap.Error(err))
			continue
		}
		res.Comments += wrote
		telemetry.ObserveRows("comments", wrote)
		for _, name := range extract.CommentAuthors(tree) {
			st.noteAgent(name)
		}
	}
	return nil
}

// enrichPosts swaps each listed post for its detail payload when one can be
// fetched, and caches any embedded comment tree for the comments pass. The
// detail tree is the complete nesting; the comments endpoint truncates.
func (r *Runner) enrichPosts(ctx context.Context, st *runState, batch []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(batch))
	for _, p := range batch {
		pid := payload.ID(p, "id")
		if pid == "" {
			continue
		}
		det, err := r.api.GetPost(ctx, pid)
		if err != nil || len(det) == 0 {
			out = append(out, p)
			continue
		}
		out = append(out, det)
		if r.cfg.Comments && r.cfg.CommentsFromPostDetail {
			if _, done := st.commented[pid]; !done {
				if tree := moltbook.ExtractList(det, "comments"); len(tree) > 0 {
					st.trees[pid] = tree
				}
			}
		}
	}
	return out
}

// scanSubmoltFeeds widens coverage through per-submolt feeds; posts that
// never surface in global views still show up on their home submolt.
func (r *Runner) scanSubmoltFeeds(ctx context.Context, st *runState, res *Result, crawlID string, observed time.Time) error {
	names := st.submolts.Names()
	if r.cfg.SubmoltFeedLimit > 0 && len(names) > r.cfg.SubmoltFeedLimit {
		names = names[:r.cfg.SubmoltFeedLimit]
	}
	if len(names) == 0 {
		return nil
	}
	feedSort := r.cfg.SubmoltFeedSort
	if feedSort == "" {
		feedSort = "new"
	}
	r.log.Info("scanning submolt feeds", zap.Int("submolts", len(names)), zap.String("sort", feedSort))

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		sc := scan.New(scan.Config{
			MaxPages:       r.cfg.SubmoltFeedMaxPages,
			MaxStalePages:  r.cfg.MaxStalePages,
			MaxRepeatPages: r.cfg.MaxRepeatPages,
		}, crawlID, r.store, st.seen, r.log)

		fetch := func(ctx context.Context, offset int) (scan.Page, error) {
			env, err := r.api.SubmoltFeed(ctx, name, feedSort, r.cfg.PageSize, offset)
			if err != nil {
				return scan.Page{}, err
			}
			return pageFromEnvelope(env), nil
		}
		process := func(ctx context.Context, items []map[string]any) error {
			for _, p := range items {
				st.submolts.Add(p["submolt"])
				st.noteAgent(extract.AuthorName(p))
			}
			n, err := r.store.UpsertPosts(ctx, items, observed)
			if err != nil {
				return err
			}
			res.Posts += n
			telemetry.ObserveRows("posts", n)
			return nil
		}
		if _, err := sc.Run(ctx, submoltFeedKey(name), fetch, process); err != nil {
			r.log.Warn("submolt feed scan failed", zap.String("submolt", name), zap.Error(err))
		}
	}
	return nil
}

// flushSubmolts writes every submolt representation accumulated during
// scanning, richest version per name.
func (r *Runner) flushSubmolts(ctx context.Context, st *runState, res *Result, observed time.Time) error {
	rows := st.submolts.Rows()
	if len(rows) == 0 {
		return nil
	}
	n, err := r.store.UpsertSubmolts(ctx, rows, observed)
	if err != nil {
		return err
	}
	res.Submolts += n
	telemetry.ObserveRows("submolts", n)
	r.log.Info("upserted discovered submolts", zap.Int("count", n))
	return nil
}

// refreshModerators reconciles MODERATES for a bounded set of submolts:
// every discovery of the run plus the seeded top slice, first come first
// served. An empty moderator payload is skipped rather than closing the
// whole set; transient empties would otherwise end every moderator.
func (r *Runner) refreshModerators(ctx context.Context, st *runState, res *Result, observed time.Time) error {
	names := st.submolts.Names()
	have := make(map[string]struct{}, len(names))
	for _, n := range names {
		have[n] = struct{}{}
	}
	for _, row := range st.top {
		n := payload.Text(row, "name")
		if n == "" {
			continue
		}
		if _, dup := have[n]; dup {
			continue
		}
		have[n] = struct{}{}
		names = append(names, n)
	}
	if r.cfg.ModeratorsLimit > 0 && len(names) > r.cfg.ModeratorsLimit {
		names = names[:r.cfg.ModeratorsLimit]
	}
	if len(names) == 0 {
		return nil
	}
	r.log.Info("refreshing moderators", zap.Int("submolts", len(names)))

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		mods, err := r.api.Moderators(ctx, name)
		if err != nil {
			r.log.Debug("moderator fetch failed", zap.String("submolt", name), zap.Error(err))
			continue
		}
		if len(mods) == 0 {
			continue
		}
		if err := r.store.ReconcileModerators(ctx, name, mods, observed); err != nil {
			r.log.Warn("moderator reconcile failed", zap.String("submolt", name), zap.Error(err))
			continue
		}
		res.Moderated++
		if rows := moderatorAgents(mods); len(rows) > 0 {
			if _, err := r.store.UpsertAgents(ctx, rows, observed, true); err != nil {
				r.log.Warn("moderator agent upsert failed", zap.String("submolt", name), zap.Error(err))
			}
		}
		for _, m := range mods {
			st.noteAgent(moderatorName(m))
		}
	}
	return nil
}

// refreshProfiles fetches full profiles for agents discovered this run;
// incremental runs also sweep agents whose stored profile has gone stale.
// Profile payloads may embed the owner's X account, written alongside.
func (r *Runner) refreshProfiles(ctx context.Context, st *runState, res *Result, mode Mode, observed time.Time) error {
	names := st.agentNames()
	if mode == ModeIncremental {
		stale, err := r.store.StaleAgentProfiles(ctx, r.cfg.ProfileRefreshDays, r.cfg.ProfileRefreshLimit)
		if err != nil {
			r.log.Warn("stale profile query failed", zap.Error(err))
		} else if len(stale) > 0 {
			names = mergeNames(names, stale)
		}
	}
	if r.cfg.ProfileLimit > 0 && len(names) > r.cfg.ProfileLimit {
		names = names[:r.cfg.ProfileLimit]
	}
	if len(names) == 0 {
		return nil
	}
	r.log.Info("refreshing agent profiles", zap.Int("agents", len(names)))

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		prof, err := r.api.AgentProfile(ctx, name)
		if err != nil {
			r.log.Debug("profile fetch failed", zap.String("agent", name), zap.Error(err))
			continue
		}
		agent, _ := prof["agent"].(map[string]any)
		if len(agent) == 0 {
			continue
		}
		if _, err := r.store.UpsertAgents(ctx, []map[string]any{agent}, observed, true); err != nil {
			r.log.Warn("profile upsert failed", zap.String("agent", name), zap.Error(err))
			continue
		}
		res.Profiles++
		if acct := ownerAccount(agent); acct.Handle != "" {
			if err := r.store.UpsertOwnerAccount(ctx, name, acct, observed); err != nil {
				r.log.Warn("owner account upsert failed", zap.String("agent", name), zap.Error(err))
			}
		}
	}
	telemetry.ObserveRows("profiles", res.Profiles)
	return nil
}

// snapshotFeed freezes the authenticated account's ranked feed view. An
// empty feed still gets its snapshot node; "observed empty" is a fact.
func (r *Runner) snapshotFeed(ctx context.Context, crawlID string, observed time.Time) error {
	env, err := r.api.Feed(ctx, r.cfg.FeedSort, r.cfg.FeedLimit, 0)
	if err != nil {
		return err
	}
	posts := moltbook.ExtractList(env, "posts", "data")
	if err := r.store.WriteFeedSnapshot(ctx, crawlID, r.cfg.FeedSort, posts, observed); err != nil {
		return err
	}
	r.log.Info("feed snapshot written", zap.String("sort", r.cfg.FeedSort), zap.Int("posts", len(posts)))
	return nil
}

// scrapeProfiles is the optional HTML pass over agents seen this run:
// owner X link plus similar-agent recommendations, best effort per agent.
func (r *Runner) scrapeProfiles(ctx context.Context, st *runState, res *Result, observed time.Time) error {
	names := st.agentNames()
	if r.scrapeLimit > 0 && len(names) > r.scrapeLimit {
		names = names[:r.scrapeLimit]
	}
	if len(names) == 0 {
		return nil
	}
	r.log.Info("scraping profile pages", zap.Int("agents", len(names)))

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := r.scraper.Agent(ctx, name)
		if err != nil {
			r.log.Debug("profile scrape failed", zap.String("agent", name), zap.Error(err))
			continue
		}
		if p.OwnerXHandle != "" {
			acct := graph.OwnerAccount{Handle: p.OwnerXHandle, URL: p.OwnerXURL}
			if err := r.store.UpsertOwnerAccount(ctx, name, acct, observed); err != nil {
				r.log.Warn("owner account upsert failed", zap.String("agent", name), zap.Error(err))
			}
		}
		if len(p.Similar) > 0 {
			if err := r.store.ReconcileSimilar(ctx, name, p.Similar, observed, scrape.Source); err != nil {
				r.log.Warn("similar reconcile failed", zap.String("agent", name), zap.Error(err))
			}
		}
		res.Scraped++
	}
	return nil
}

// pageFromEnvelope reads a listing envelope's batch and paging hints.
func pageFromEnvelope(env map[string]any) scan.Page {
	return scan.Page{
		Items:      moltbook.ExtractList(env, "posts", "data"),
		NextOffset: env["next_offset"],
		HasMore:    truthy(env["has_more"]),
	}
}

// truthy reads has_more the way its producer means it: the field arrives as
// a bool, number or string depending on deployment, and empty means no.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

// moderatorAgents lifts agent rows out of the varying moderator payload
// shapes so the agent upsert does not silently drop them.
func moderatorAgents(mods []map[string]any) []map[string]any {
	rows := make([]map[string]any, 0, len(mods))
	for _, m := range mods {
		switch a := m["agent"].(type) {
		case map[string]any:
			rows = append(rows, a)
			continue
		case string:
			if a != "" {
				rows = append(rows, map[string]any{"name": a})
				continue
			}
		}
		if name, ok := m["name"].(string); ok && name != "" {
			rows = append(rows, m)
			continue
		}
		if name, ok := m["agent_name"].(string); ok && name != "" {
			rows = append(rows, map[string]any{"name": name})
		}
	}
	return rows
}

// moderatorName resolves the agent name from any moderator payload shape.
func moderatorName(m map[string]any) string {
	if n := payload.Text(m, "name", "agent_name"); n != "" {
		return n
	}
	switch a := m["agent"].(type) {
	case string:
		return a
	case map[string]any:
		return payload.Text(a, "name")
	}
	return ""
}

// mergeNames unions two name lists, sorted.
func mergeNames(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, n := range a {
		set[n] = struct{}{}
	}
	for _, n := range b {
		set[n] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ownerAccount reads the owner's X account out of a profile payload. The
// owner block is optional and its field names drift like everything else;
// a blank handle means the profile named no owner.
func ownerAccount(agent map[string]any) graph.OwnerAccount {
	owner, _ := agent["owner"].(map[string]any)
	if len(owner) == 0 {
		return graph.OwnerAccount{}
	}
	handle := extract.CleanHandle(payload.Text(owner, "x_handle", "xHandle"))
	if handle == "" {
		return graph.OwnerAccount{}
	}
	url := payload.Text(owner, "x_url", "xUrl")
	if url == "" {
		url = "https://x.com/" + handle
	}
	return graph.OwnerAccount{
		Handle:         handle,
		URL:            url,
		Name:           payload.Text(owner, "x_name", "xName"),
		AvatarURL:      payload.Text(owner, "x_avatar", "xAvatar"),
		Bio:            payload.Text(owner, "x_bio", "xBio"),
		FollowerCount:  payload.Int(owner, "x_follower_count", "xFollowerCount"),
		FollowingCount: payload.Int(owner, "x_following_count", "xFollowingCount"),
		Verified:       payload.Bool(owner, "x_verified", "xVerified"),
	}
}
