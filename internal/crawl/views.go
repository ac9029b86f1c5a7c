package crawl

import "strings"

// View is one listing ordering of the posts endpoint, optionally bounded to
// a time window (top/hot sorts).
type View struct {
	Sort   string
	Window string
}

// Key is the checkpoint property recording this view's scan offset.
func (v View) Key() string {
	w := v.Window
	if w == "" {
		w = "na"
	}
	return "posts_offset_" + v.Sort + "_" + w
}

func (v View) String() string {
	if v.Window == "" {
		return v.Sort
	}
	return v.Sort + ":" + v.Window
}

// ParseViews reads the comma-separated views setting, "new,top:day,hot:week".
// Sorts the server does not recognize are harmless; it ignores them.
func ParseViews(s string) []View {
	var views []View
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sortKey, window, _ := strings.Cut(part, ":")
		sortKey = strings.TrimSpace(sortKey)
		if sortKey == "" {
			continue
		}
		views = append(views, View{Sort: sortKey, Window: strings.TrimSpace(window)})
	}
	return views
}

// submoltFeedKey is the checkpoint property for one submolt's feed scan.
func submoltFeedKey(name string) string {
	return "submolt_feed_offset_" + name
}
