package templates

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/chronomaps/internal/chronomap"
	"github.com/joeblew999/chronomaps/internal/content"
	"github.com/joeblew999/chronomaps/internal/timeline"
)

func TestTimelineRendersPointsAndTicks(t *testing.T) {
	r, err := New("")
	require.NoError(t, err)

	html, err := r.Timeline(timeline.Frame{
		Width:  800,
		Height: timeline.Height,
		Ticks: []timeline.Tick{
			{X: 10.123, Long: true, Label: "2020"},
			{X: 20},
		},
		Points: []timeline.Point{
			{ID: 7, Index: 0, CX: 100, CY: 40, Radius: 16, Clustered: 1, Type: "image", Title: "Flood"},
			{ID: 9, Index: 1, CX: 200, CY: 40, Radius: 16, Clustered: 3, Type: "note", Title: "Rain"},
		},
		Hover:      &timeline.Hover{Index: 0, X: 100, Title: "Flood"},
		State:      "1/1/0/0",
		Transition: 300 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(html, `<svg id="timeline"`))
	assert.Contains(t, html, `translate(10.12,0)`)
	assert.Contains(t, html, `>2020</text>`)
	assert.Contains(t, html, `data-item="7"`)
	assert.Contains(t, html, `href="#icon-image"`)
	assert.Contains(t, html, `class="badge"`)
	assert.Contains(t, html, `--transition: 300ms`)
	assert.Contains(t, html, `class="hover-title"`)
	assert.Equal(t, 1, strings.Count(html, "clustered"), "only the badge point is clustered")
}

func TestPageShell(t *testing.T) {
	r, err := New("")
	require.NoError(t, err)

	snap := content.Snapshot{
		Settings: content.Settings{Title: "Harbour", Subtitle: "Since 1850"},
		Items: []*content.ContentItem{
			{ID: 2, Title: "Later", Type: content.MediaNote, PostTimestamp: time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)},
			{ID: 1, Title: "Earlier", Type: content.MediaImage, PostTimestamp: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)},
			{ID: 3, Title: "Undated"},
		},
	}
	data, err := NewPageData("harbour", "view-1", snap)
	require.NoError(t, err)
	require.Len(t, data.Cards, 2)
	assert.Equal(t, "card-1", data.Cards[0].ElementID)
	assert.Equal(t, "1 Mar 2020", data.Cards[0].Date)

	html, err := r.Page(data)
	require.NoError(t, err)
	assert.Contains(t, html, "<title>Harbour</title>")
	assert.Contains(t, html, `/api/v1/views/view-1/stream`)
	assert.Contains(t, html, `id="zone-media"`)
	assert.Contains(t, html, `id="card-2"`)
	assert.Contains(t, html, `id="base"`)
	assert.Contains(t, html, `id="detail"`)
	assert.Less(t, strings.Index(html, "card-1"), strings.Index(html, "card-2"))
	assert.NotContains(t, html, "Undated")
	assert.Contains(t, html, `id="strip"`)
	assert.Contains(t, html, `data-zoom="2"`)
	assert.Contains(t, html, `class="toggle-map"`)
}

func TestStripPatch(t *testing.T) {
	r, err := New("")
	require.NoError(t, err)

	items := content.BuildTimeline([]*content.ContentItem{
		{ID: 5, Title: "Dock", Type: content.MediaImage, PostTimestamp: time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)},
	})
	html, err := r.Strip(chronomap.Strip{Items: items, DateFormat: "2006"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(html, `<ol id="strip" class="strip">`))
	assert.Contains(t, html, `id="card-5"`)
	assert.Contains(t, html, "<time>1999</time>")
}
