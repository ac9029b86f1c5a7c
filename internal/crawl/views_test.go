package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseViews(t *testing.T) {
	t.Parallel()

	views := ParseViews("new, top:day ,hot:week,,:junk")
	require.Equal(t, []View{
		{Sort: "new"},
		{Sort: "top", Window: "day"},
		{Sort: "hot", Window: "week"},
	}, views)
}

func TestViewKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "posts_offset_new_na", View{Sort: "new"}.Key())
	require.Equal(t, "posts_offset_top_day", View{Sort: "top", Window: "day"}.Key())
}

func TestViewString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "new", View{Sort: "new"}.String())
	require.Equal(t, "top:week", View{Sort: "top", Window: "week"}.String())
}
