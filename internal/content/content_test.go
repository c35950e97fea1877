package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/chronomaps/internal/baserow"
)

func link(values ...string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = map[string]any{"id": float64(i + 1), "value": v}
	}
	return out
}

func related(ids ...int) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = map[string]any{"id": float64(id), "value": "x"}
	}
	return out
}

func fixtureRows() (layers, authors, rows []baserow.Row) {
	layers = []baserow.Row{
		{"Name": "Flood", "On_Layers": link("water", "rivers")},
		{"Name": "Roads", "On_Layers": link("roads")},
	}
	authors = []baserow.Row{
		{"Name": "ana", "Email": "ana@example.org", "Status": map[string]any{"id": 1.0, "value": "Editor"}},
		{"Name": "bo", "Status": "Pending"},
	}
	rows = []baserow.Row{
		{
			"id": 3.0, "Title": "later", "Status": "Published", "Type": "image",
			"Post_Timestamp": "2023-05-01T10:00:00Z", "Geo": "#5/40/-73.9",
			"Authors": link("ana"), "Map_Layer": link("Flood"), "Related": related(1, 99),
			"Image": []any{map[string]any{"url": "https://img/3.jpg"}},
		},
		{
			"id": 1.0, "Title": "earlier", "Status": "Published", "Type": "note",
			"Post_Timestamp": "2023-01-01", "Alt_Post_Timestamp": "1999-12-31",
			"Authors": link("ana", "bo"), "Map_Layer": link("Roads", "Flood"), "Related": related(3),
			"Tags": link("a", "b"),
		},
		{
			"id": 2.0, "Title": "draft", "Status": "Draft", "Type": "note",
			"Post_Timestamp": "2023-02-01", "Authors": link("ana"), "Map_Layer": []any{},
		},
		{
			"id": 4.0, "Title": "pending author", "Status": "Published", "Type": "note",
			"Post_Timestamp": "2023-02-01", "Authors": link("bo"), "Map_Layer": []any{},
		},
	}
	return layers, authors, rows
}

func TestParseItems(t *testing.T) {
	items, all := ParseItems(fixtureRows())

	assert.Equal(t, []string{"water", "rivers", "roads"}, all)
	require.Len(t, items, 2)

	first, second := items[0], items[1]
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 3, second.ID)

	assert.Equal(t, []string{"roads", "water", "rivers"}, first.MapLayers)
	assert.Empty(t, first.OffMapLayers)
	assert.Equal(t, []string{"water", "rivers"}, second.MapLayers)
	assert.Equal(t, []string{"roads"}, second.OffMapLayers)

	assert.Equal(t, time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), first.AltPostTimestamp)
	assert.Equal(t, second.PostTimestamp, second.AltPostTimestamp)

	require.Len(t, second.Related, 1)
	assert.Same(t, first, second.Related[0])
	require.Len(t, first.Related, 1)
	assert.Same(t, second, first.Related[0])

	assert.Equal(t, "https://img/3.jpg", second.Image)
	assert.Equal(t, []string{"a", "b"}, first.Tags)
	assert.Len(t, first.Authors, 2)
	assert.Equal(t, "ana@example.org", first.Authors[0].Email)
}

func TestParseSettings(t *testing.T) {
	s := ParseSettings([]baserow.Row{
		{"Key": "Title", "Value": "Floods"},
		{"Key": "Subtitle", "Value": "A century of water"},
		{"Key": "Default_Map_View", "Value": "#4/31/35"},
		{"Key": "Show_Tooltips", "Value": "true"},
		{"Key": "Logo", "Image": []any{map[string]any{"url": "https://logo.png"}}},
		{"Key": "Mapbox_Key", "Value": "pk.abc"},
	})
	assert.Equal(t, "Floods", s.Title)
	assert.Equal(t, "Floods", s.InfobarTitle)
	assert.Equal(t, "A century of water", s.InfobarSubtitle)
	assert.Equal(t, "..", s.ParentLink)
	assert.Equal(t, "#4/31/35", s.MapView)
	assert.True(t, s.ShowTooltips)
	assert.Equal(t, "https://logo.png", s.Logo)
	assert.Equal(t, "pk.abc", s.MapboxKey)
}

func TestParseDirectory(t *testing.T) {
	entries := ParseDirectory([]baserow.Row{
		{"Title": "Floods", "URL_Slug": "floods", "Database_Token": "tok", "Database_ID": 12.0},
		{"Title": "No slug", "Database_ID": 3.0},
		{"Title": "Bad id", "URL_Slug": "bad", "Database_ID": "x"},
	})
	require.Len(t, entries, 1)
	assert.Equal(t, DirectoryEntry{Title: "Floods", Slug: "floods", DatabaseToken: "tok", DatabaseID: 12}, entries[0])
}

func TestBuildTimeline(t *testing.T) {
	a := &ContentItem{ID: 1, PostTimestamp: time.Unix(300, 0)}
	b := &ContentItem{ID: 2, AltPostTimestamp: time.Unix(100, 0)}
	c := &ContentItem{ID: 3}

	tl := BuildTimeline([]*ContentItem{a, b, c})
	require.Len(t, tl, 2)
	assert.Equal(t, 2, tl[0].ID)
	assert.Equal(t, 1, tl[1].ID)
	assert.Same(t, tl[1], tl[0].Next)
	assert.Same(t, tl[0], tl[1].Prev)
	assert.Equal(t, []int{1}, tl[1].Indexes)
	assert.Equal(t, 1, tl[1].Clustered)

	lo, hi, ok := DateRange(tl)
	require.True(t, ok)
	assert.Equal(t, time.Unix(80, 0), lo)
	assert.Equal(t, time.Unix(320, 0), hi)
}

type fakeSource struct {
	snaps []Snapshot
	err   error
	calls int
}

func (f *fakeSource) Fetch(context.Context) (Snapshot, error) {
	f.calls++
	if f.err != nil {
		return Snapshot{}, f.err
	}
	s := f.snaps[0]
	if len(f.snaps) > 1 {
		f.snaps = f.snaps[1:]
	}
	return s, nil
}

type memStore struct {
	saved map[string]Snapshot
}

func (m *memStore) LoadSnapshot(_ context.Context, slug string) (Snapshot, bool, error) {
	s, ok := m.saved[slug]
	return s, ok, nil
}

func (m *memStore) SaveSnapshot(_ context.Context, slug string, s Snapshot) error {
	m.saved[slug] = s
	return nil
}

func TestRepositoryReadyFiresOnce(t *testing.T) {
	src := &fakeSource{snaps: []Snapshot{
		{Settings: Settings{Title: "one"}},
		{Settings: Settings{Title: "two"}},
	}}
	store := &memStore{saved: map[string]Snapshot{}}
	repo := NewRepository(src, RepositoryOptions{Slug: "floods", Store: store})

	_, err := repo.Current()
	assert.ErrorIs(t, err, ErrNotReady)

	ready := 0
	repo.Ready().Subscribe(func() { ready++ })
	var titles []string
	repo.Updated().Subscribe(func(s Snapshot) { titles = append(titles, s.Settings.Title) })

	require.NoError(t, repo.Refresh(context.Background()))
	require.NoError(t, repo.Refresh(context.Background()))

	assert.Equal(t, 1, ready)
	assert.Equal(t, []string{"one", "two"}, titles)
	assert.Equal(t, "two", store.saved["floods"].Settings.Title)

	late := ""
	repo.Updated().Subscribe(func(s Snapshot) { late = s.Settings.Title })
	assert.Equal(t, "two", late)
}

func TestRepositoryWarmFromCache(t *testing.T) {
	a := &ContentItem{ID: 1, RelatedIDs: []int{2}}
	b := &ContentItem{ID: 2}
	store := &memStore{saved: map[string]Snapshot{"floods": {Items: []*ContentItem{a, b}}}}
	repo := NewRepository(&fakeSource{err: errors.New("offline")}, RepositoryOptions{Slug: "floods", Store: store})

	require.NoError(t, repo.Warm(context.Background()))
	assert.True(t, repo.Ready().Fired())
	assert.Same(t, b, a.Related[0])

	err := repo.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, err, repo.LastError())

	s, err := repo.Current()
	require.NoError(t, err)
	assert.Len(t, s.Items, 2)
}
