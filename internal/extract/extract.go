// Package extract derives entity references from drifting API payloads:
// community and author identities, and flattened comment trees.
package extract

import (
	"strings"

	"github.com/moltgraph/moltgraph/internal/payload"
)

// SubmoltName resolves a community reference, which the API serves either as
// a bare name or as an embedded object.
func SubmoltName(ref any) string {
	switch v := ref.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		return payload.Text(v, "name")
	}
	return ""
}

// AuthorName resolves the author of a post or comment. The author arrives as
// a nested agent object, a bare name string, or a flat author_name field
// depending on endpoint and deployment vintage.
func AuthorName(item map[string]any) string {
	switch v := item["author"].(type) {
	case map[string]any:
		return payload.Text(v, "name")
	case string:
		return strings.TrimSpace(v)
	}
	return payload.Text(item, "author_name", "authorName")
}

// FlattenComments walks an arbitrarily deep reply tree and returns one row
// per comment in pre-order. Each row carries its immediate parent's id under
// parent_id; roots keep whatever parent_id they arrived with, usually none.
// The nested replies list is stripped from every row.
func FlattenComments(tree []map[string]any) []map[string]any {
	type frame struct {
		node   map[string]any
		parent any
	}
	var out []map[string]any

	stack := make([]frame, 0, len(tree))
	for i := len(tree) - 1; i >= 0; i-- {
		if tree[i] != nil {
			stack = append(stack, frame{node: tree[i]})
		}
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		row := make(map[string]any, len(f.node))
		for k, v := range f.node {
			if k == "replies" {
				continue
			}
			row[k] = v
		}
		if payload.ID(row, "parent_id") == "" {
			row["parent_id"] = f.parent
		}
		out = append(out, row)

		replies := childMaps(f.node["replies"])
		for i := len(replies) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: replies[i], parent: f.node["id"]})
		}
	}
	return out
}

// CommentAuthors collects the distinct author names across a reply tree, in
// first-seen order.
func CommentAuthors(tree []map[string]any) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, row := range FlattenComments(tree) {
		name := AuthorName(row)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// childMaps coerces a raw replies value into comment maps, dropping anything
// that is not an object.
func childMaps(v any) []map[string]any {
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// CleanHandle canonicalizes an X handle: surrounding whitespace and leading
// @ signs are stripped and the rest lowercased. Returns "" when nothing
// usable remains.
func CleanHandle(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimLeft(h, "@")
	h = strings.TrimSpace(h)
	return strings.ToLower(h)
}

// SubmoltSet accumulates community references discovered while scanning. For
// each name it keeps an overlay of every object seen, so later sightings
// enrich rather than replace earlier ones.
type SubmoltSet struct {
	refs  map[string]map[string]any
	order []string
}

// NewSubmoltSet returns an empty set.
func NewSubmoltSet() *SubmoltSet {
	return &SubmoltSet{refs: make(map[string]map[string]any)}
}

// Add records a reference and returns the resolved name, or "" when the
// reference carries none. Bare names only establish presence; objects merge
// their fields over what was seen before.
func (s *SubmoltSet) Add(ref any) string {
	name := SubmoltName(ref)
	if name == "" {
		return ""
	}
	cur, ok := s.refs[name]
	if !ok {
		cur = map[string]any{"name": name}
		s.refs[name] = cur
		s.order = append(s.order, name)
	}
	if obj, ok := ref.(map[string]any); ok {
		for k, v := range obj {
			cur[k] = v
		}
		cur["name"] = name
	}
	return name
}

// Len reports how many distinct communities have been seen.
func (s *SubmoltSet) Len() int { return len(s.refs) }

// Names returns the community names in discovery order.
func (s *SubmoltSet) Names() []string {
	return append([]string(nil), s.order...)
}

// Rows returns the accumulated references in discovery order, ready for a
// bulk upsert.
func (s *SubmoltSet) Rows() []map[string]any {
	rows := make([]map[string]any, 0, len(s.order))
	for _, name := range s.order {
		rows = append(rows, s.refs[name])
	}
	return rows
}
