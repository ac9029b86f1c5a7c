package graph

import (
	"github.com/moltgraph/moltgraph/internal/extract"
	"github.com/moltgraph/moltgraph/internal/payload"
)

// The row tables below map one wire entity each. The API mixes camelCase and
// snake_case spellings across deployments; fields known to drift list both.
// A nil value means "not observed" and leaves the stored field untouched.

func normalizeAgent(x map[string]any) map[string]any {
	return map[string]any{
		"name":                 strOrNil(payload.Text(x, "name")),
		"display_name":         payload.Raw(x, "displayName", "display_name"),
		"description":          payload.Raw(x, "description"),
		"status":               payload.Raw(x, "status"),
		"karma":                payload.Int(x, "karma"),
		"owner_twitter_id":     payload.Raw(x, "owner_twitter_id"),
		"owner_twitter_handle": payload.Raw(x, "owner_twitter_handle"),
		"updated_at":           payload.Raw(x, "updated_at"),
		"claimed_at":           payload.Raw(x, "claimed_at"),
		"avatar_url":           payload.Raw(x, "avatarUrl", "avatar_url"),
		"follower_count":       payload.Int(x, "followerCount", "follower_count"),
		"following_count":      payload.Int(x, "followingCount", "following_count"),
		"is_claimed":           payload.Bool(x, "isClaimed", "is_claimed"),
		"is_active":            payload.Bool(x, "isActive", "is_active"),
		"created_at":           payload.Raw(x, "createdAt", "created_at"),
		"last_active":          payload.Raw(x, "lastActive", "last_active"),
	}
}

func normalizeSubmolt(x map[string]any) map[string]any {
	return map[string]any{
		"name":             strOrNil(payload.Text(x, "name")),
		"display_name":     payload.Raw(x, "display_name", "displayName"),
		"description":      payload.Raw(x, "description"),
		"avatar_url":       payload.Raw(x, "avatarUrl", "avatar_url"),
		"banner_url":       payload.Raw(x, "bannerUrl", "banner_url"),
		"banner_color":     payload.Raw(x, "bannerColor", "banner_color"),
		"theme_color":      payload.Raw(x, "themeColor", "theme_color"),
		"subscriber_count": payload.Int(x, "subscriberCount", "subscriber_count"),
		"post_count":       payload.Int(x, "postCount", "post_count"),
		"created_at":       payload.Raw(x, "createdAt", "created_at"),
		"updated_at":       payload.Raw(x, "updatedAt", "updated_at"),
	}
}

func normalizePost(p map[string]any) map[string]any {
	sub := p["submolt"]
	subObj, _ := sub.(map[string]any)

	row := map[string]any{
		"id":                  strOrNil(payload.ID(p, "id")),
		"title":               payload.Raw(p, "title"),
		"content":             payload.Raw(p, "content"),
		"url":                 payload.Raw(p, "url"),
		"submolt":             strOrNil(extract.SubmoltName(sub)),
		"submolt_id":          strOrNil(payload.ID(subObj, "id")),
		"type":                payload.Raw(p, "type"),
		"score":               payload.Int(p, "score"),
		"upvotes":             payload.Int(p, "upvotes"),
		"downvotes":           payload.Int(p, "downvotes"),
		"comment_count":       payload.Int(p, "comment_count"),
		"hot_score":           payload.Raw(p, "hot_score"),
		"is_pinned":           payload.Bool(p, "is_pinned"),
		"is_locked":           payload.Bool(p, "is_locked"),
		"is_deleted":          payload.Bool(p, "is_deleted"),
		"is_spam":             payload.Raw(p, "is_spam"),
		"verification_status": payload.Raw(p, "verification_status"),
		"created_at":          payload.Raw(p, "created_at"),
		"updated_at":          payload.Raw(p, "updated_at"),
	}
	addAuthorFields(row, p)
	row["author_display_name"] = payload.Raw(authorObject(p), "displayName", "display_name")
	return row
}

func normalizeComment(x map[string]any) map[string]any {
	row := map[string]any{
		"id":                  strOrNil(payload.ID(x, "id")),
		"post_id":             strOrNil(payload.ID(x, "post_id")),
		"parent_id":           strOrNil(payload.ID(x, "parent_id")),
		"content":             payload.Raw(x, "content"),
		"upvotes":             payload.Int(x, "upvotes"),
		"downvotes":           payload.Int(x, "downvotes"),
		"score":               payload.Int(x, "score"),
		"reply_count":         payload.Int(x, "reply_count"),
		"is_deleted":          payload.Bool(x, "is_deleted"),
		"is_spam":             payload.Raw(x, "is_spam"),
		"verification_status": payload.Raw(x, "verification_status"),
		"depth":               payload.Int(x, "depth"),
		"created_at":          payload.Raw(x, "created_at"),
		"updated_at":          payload.Raw(x, "updated_at"),
	}
	addAuthorFields(row, x)
	return row
}

// addAuthorFields copies the author block shared by post and comment rows.
func addAuthorFields(row, item map[string]any) {
	author := authorObject(item)
	row["author_name"] = strOrNil(extract.AuthorName(item))
	row["author_id"] = authorID(item, author)
	row["author_description"] = payload.Raw(author, "description")
	row["author_avatar_url"] = payload.Raw(author, "avatarUrl", "avatar_url")
	row["author_karma"] = payload.Int(author, "karma")
	row["author_follower_count"] = payload.Int(author, "followerCount", "follower_count")
	row["author_following_count"] = payload.Int(author, "followingCount", "following_count")
	row["author_is_claimed"] = payload.Bool(author, "isClaimed", "is_claimed")
	row["author_is_active"] = payload.Bool(author, "isActive", "is_active")
	row["author_created_at"] = payload.Raw(author, "createdAt", "created_at")
	row["author_last_active"] = payload.Raw(author, "lastActive", "last_active")
}

// agentRows normalizes agent payloads, dropping any without a name.
func agentRows(agents []map[string]any) []map[string]any {
	rows := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		if payload.Text(a, "name") == "" {
			continue
		}
		rows = append(rows, normalizeAgent(a))
	}
	return rows
}

// submoltRows normalizes community payloads, dropping any without a name.
func submoltRows(submolts []map[string]any) []map[string]any {
	rows := make([]map[string]any, 0, len(submolts))
	for _, sm := range submolts {
		if payload.Text(sm, "name") == "" {
			continue
		}
		rows = append(rows, normalizeSubmolt(sm))
	}
	return rows
}

// postRows normalizes post payloads. A row must carry id, created_at, a
// resolvable author name and a community reference; anything less is dropped
// whole so the graph never holds a post it cannot attribute.
func postRows(posts []map[string]any) []map[string]any {
	rows := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		if payload.ID(p, "id") == "" || payload.Raw(p, "created_at") == nil {
			continue
		}
		row := normalizePost(p)
		if row["author_name"] == nil || row["submolt"] == nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// commentRows flattens a reply tree and normalizes each comment, defaulting
// post_id to the containing post. Rows missing id, created_at or an author
// are dropped.
func commentRows(postID string, tree []map[string]any) []map[string]any {
	flat := extract.FlattenComments(tree)
	rows := make([]map[string]any, 0, len(flat))
	for _, c := range flat {
		if payload.ID(c, "id") == "" || payload.Raw(c, "created_at") == nil {
			continue
		}
		row := normalizeComment(c)
		if row["post_id"] == nil {
			row["post_id"] = strOrNil(postID)
		}
		if row["author_name"] == nil || row["post_id"] == nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// feedRows maps feed entries into snapshot rows, keeping each entry's
// original rank even when an unidentifiable one is skipped.
func feedRows(posts []map[string]any) []map[string]any {
	rows := make([]map[string]any, 0, len(posts))
	for i, p := range posts {
		id := payload.ID(p, "id")
		if id == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"id":         id,
			"title":      payload.Raw(p, "title"),
			"submolt":    strOrNil(extract.SubmoltName(p["submolt"])),
			"score":      payload.Int(p, "score"),
			"created_at": payload.Raw(p, "created_at"),
			"rank":       i + 1,
		})
	}
	return rows
}

func authorObject(item map[string]any) map[string]any {
	m, _ := item["author"].(map[string]any)
	return m
}

func authorID(item, author map[string]any) any {
	if id := payload.ID(author, "id"); id != "" {
		return id
	}
	return strOrNil(payload.ID(item, "author_id"))
}

func strOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
