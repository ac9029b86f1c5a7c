package moltbook

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", s, err)
	}
	return v
}

func TestExtractList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp string
		keys []string
		want int
	}{
		{"bare array", `[{"id":"a"},{"id":"b"}]`, []string{"posts"}, 2},
		{"wrapped first key", `{"posts":[{"id":"a"}],"count":1}`, []string{"posts", "data"}, 1},
		{"wrapped fallback key", `{"data":[{"id":"a"},{"id":"b"},{"id":"c"}]}`, []string{"posts", "data"}, 3},
		{"key order wins", `{"data":[{"id":"x"}],"posts":[{"id":"a"},{"id":"b"}]}`, []string{"posts", "data"}, 2},
		{"non-list under key", `{"posts":"nope"}`, []string{"posts"}, 0},
		{"scalar", `42`, []string{"posts"}, 0},
		{"null", `null`, []string{"posts"}, 0},
		{"mixed items dropped", `[{"id":"a"},"junk",3,{"id":"b"}]`, []string{"posts"}, 2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractList(decode(t, tt.resp), tt.keys...)
			if len(got) != tt.want {
				t.Fatalf("ExtractList() returned %d items, want %d", len(got), tt.want)
			}
		})
	}
}

func TestExtractObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		resp    string
		keys    []string
		wantKey string
		wantVal string
	}{
		{"nested under key", `{"agent":{"name":"bot1"}}`, []string{"agent"}, "name", "bot1"},
		{"fallback to whole object", `{"name":"bot2","karma":3}`, []string{"agent"}, "name", "bot2"},
		{"second candidate", `{"profile":{"name":"bot3"}}`, []string{"agent", "profile"}, "name", "bot3"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractObject(decode(t, tt.resp), tt.keys...)
			if got[tt.wantKey] != tt.wantVal {
				t.Fatalf("ExtractObject()[%q] = %v, want %q", tt.wantKey, got[tt.wantKey], tt.wantVal)
			}
		})
	}

	t.Run("non-object yields empty", func(t *testing.T) {
		t.Parallel()
		if got := ExtractObject(decode(t, `[1,2]`), "agent"); len(got) != 0 {
			t.Fatalf("expected empty map, got %v", got)
		}
		if got := ExtractObject(nil, "agent"); len(got) != 0 {
			t.Fatalf("expected empty map for nil, got %v", got)
		}
	})
}
