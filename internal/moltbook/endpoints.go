package moltbook

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Endpoint helpers. Listing endpoints are fetched public-first: anonymous
// requests dodge personalized/cached first pages, and a 401 falls back to
// one authenticated retry. Identity and feed endpoints always authenticate.

// Me fetches the authenticated agent's own profile.
func (c *Client) Me(ctx context.Context) (map[string]any, error) {
	resp, err := c.Send(ctx, http.MethodGet, "/agents/me", nil, true)
	if err != nil {
		return nil, err
	}
	return ExtractObject(resp, "agent"), nil
}

// AgentProfile fetches an agent's full profile payload. The envelope is
// returned whole; callers dig out the agent object and any embedded owner
// account fields.
func (c *Client) AgentProfile(ctx context.Context, name string) (map[string]any, error) {
	params := url.Values{"name": []string{name}}
	resp, err := c.Send(ctx, http.MethodGet, "/agents/profile", params, true)
	if err != nil {
		return nil, err
	}
	if m, ok := resp.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{}, nil
}

// ListSubmolts fetches a page of submolts.
func (c *Client) ListSubmolts(ctx context.Context, limit, offset int, sort string) ([]map[string]any, error) {
	params := url.Values{
		"limit":  []string{strconv.Itoa(limit)},
		"offset": []string{strconv.Itoa(offset)},
		"sort":   []string{sort},
	}
	resp, err := c.publicFirst(ctx, "/submolts", params)
	if err != nil {
		return nil, err
	}
	return ExtractList(resp, "submolts", "data"), nil
}

// GetSubmolt fetches one submolt's detail object.
func (c *Client) GetSubmolt(ctx context.Context, name string) (map[string]any, error) {
	resp, err := c.publicFirst(ctx, "/submolts/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}
	return ExtractObject(resp, "submolt"), nil
}

// Moderators fetches a submolt's moderator list. Payload item shape varies
// by deployment; normalization happens at the store boundary.
func (c *Client) Moderators(ctx context.Context, name string) ([]map[string]any, error) {
	resp, err := c.publicFirst(ctx, "/submolts/"+url.PathEscape(name)+"/moderators", withBuster(nil))
	if err != nil {
		return nil, err
	}
	return ExtractList(resp, "moderators", "data"), nil
}

// PostsQuery parameterizes a ListPosts page.
type PostsQuery struct {
	Sort    string
	Limit   int
	Offset  int
	Window  string // time window for top/hot sorts; empty for none
	Submolt string // restrict to one submolt; empty for global
}

// ListPosts fetches a page of posts and returns the whole envelope, which
// may carry has_more/next_offset pagination hints alongside the batch.
func (c *Client) ListPosts(ctx context.Context, q PostsQuery) (map[string]any, error) {
	params := url.Values{
		"sort":   []string{q.Sort},
		"limit":  []string{strconv.Itoa(q.Limit)},
		"offset": []string{strconv.Itoa(q.Offset)},
	}
	if q.Window != "" {
		params.Set("time", q.Window)
	}
	if q.Submolt != "" {
		params.Set("submolt", q.Submolt)
	}
	resp, err := c.publicFirst(ctx, "/posts", withBuster(params))
	if err != nil {
		return nil, err
	}
	return asEnvelope(resp, "posts"), nil
}

// GetPost fetches one post's detail object, which may embed its comment
// tree.
func (c *Client) GetPost(ctx context.Context, id string) (map[string]any, error) {
	resp, err := c.publicFirst(ctx, "/posts/"+url.PathEscape(id), withBuster(nil))
	if err != nil {
		return nil, err
	}
	return ExtractObject(resp, "post"), nil
}

// Comments fetches a post's comment tree.
func (c *Client) Comments(ctx context.Context, postID, sort string, limit int) ([]map[string]any, error) {
	params := url.Values{
		"sort":  []string{sort},
		"limit": []string{strconv.Itoa(limit)},
	}
	resp, err := c.publicFirst(ctx, "/posts/"+url.PathEscape(postID)+"/comments", params)
	if err != nil {
		return nil, err
	}
	return ExtractList(resp, "comments", "data", "posts"), nil
}

// SubmoltFeed fetches a page of one submolt's feed. Public only; there is
// no authenticated variant of this endpoint.
func (c *Client) SubmoltFeed(ctx context.Context, name, sort string, limit, offset int) (map[string]any, error) {
	params := url.Values{
		"sort":   []string{sort},
		"limit":  []string{strconv.Itoa(limit)},
		"offset": []string{strconv.Itoa(offset)},
	}
	resp, err := c.Send(ctx, http.MethodGet, "/submolts/"+url.PathEscape(name)+"/feed", withBuster(params), false)
	if err != nil {
		return nil, err
	}
	return asEnvelope(resp, "posts"), nil
}

// Feed fetches a page of the authenticated account's feed.
func (c *Client) Feed(ctx context.Context, sort string, limit, offset int) (map[string]any, error) {
	params := url.Values{
		"sort":   []string{sort},
		"limit":  []string{strconv.Itoa(limit)},
		"offset": []string{strconv.Itoa(offset)},
	}
	resp, err := c.Send(ctx, http.MethodGet, "/feed", params, true)
	if err != nil {
		return nil, err
	}
	return asEnvelope(resp, "posts"), nil
}

// publicFirst sends without credentials and repeats once with them when the
// endpoint unexpectedly demands auth.
func (c *Client) publicFirst(ctx context.Context, path string, params url.Values) (any, error) {
	resp, err := c.Send(ctx, http.MethodGet, path, params, false)
	if errors.Is(err, ErrAuthRequired) {
		c.log.Debug("public fetch unauthorized; retrying with auth", zap.String("path", path))
		return c.Send(ctx, http.MethodGet, path, params, true)
	}
	return resp, err
}

// withBuster adds a millisecond cache-buster param; CDN nodes have been
// observed serving the same cached page regardless of offset.
func withBuster(params url.Values) url.Values {
	if params == nil {
		params = url.Values{}
	}
	params.Set("shuffle", strconv.FormatInt(time.Now().UnixMilli(), 10))
	return params
}

// asEnvelope keeps envelope objects as-is and wraps bare arrays under key
// so pagination-hint probing stays uniform for callers.
func asEnvelope(resp any, key string) map[string]any {
	if m, ok := resp.(map[string]any); ok {
		return m
	}
	if list, ok := resp.([]any); ok {
		return map[string]any{key: list}
	}
	return map[string]any{}
}
