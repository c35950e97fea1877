package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/chronomaps/internal/content"
)

func TestChronomapCRUD(t *testing.T) {
	dir := t.TempDir()
	bus := NewEventBus()
	events := bus.Subscribe()
	s := NewChronomapService(dir, bus)

	m, err := s.Create(Chronomap{Title: "Harbour History!", DatabaseID: 7, DatabaseToken: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "harbour_history", m.Slug)
	assert.Equal(t, Event{Resource: "chronomaps", Action: "created", ID: "harbour_history"}, <-events)

	_, err = s.Create(Chronomap{Title: "Harbour History", DatabaseID: 8})
	assert.ErrorIs(t, err, ErrExists)

	updated, err := s.Update("harbour_history", Chronomap{Title: "Harbour", DatabaseID: 9})
	require.NoError(t, err)
	assert.Equal(t, "secret", updated.DatabaseToken, "an empty token keeps the stored one")
	assert.Equal(t, "updated", (<-events).Action)

	_, err = s.Update("nope", Chronomap{Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	reloaded := NewChronomapService(dir, nil)
	got, ok := reloaded.Get("harbour_history")
	require.True(t, ok)
	assert.Equal(t, 9, got.DatabaseID)
	assert.Equal(t, "secret", got.DatabaseToken)

	info, err := os.Stat(filepath.Join(dir, "chronomaps.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, s.Delete("harbour_history"))
	assert.ErrorIs(t, s.Delete("harbour_history"), ErrNotFound)
	assert.Empty(t, s.List())
}

func TestChronomapPublicHidesToken(t *testing.T) {
	m := Chronomap{Slug: "a", DatabaseToken: "secret"}
	assert.Empty(t, m.Public().DatabaseToken)
	assert.Equal(t, "secret", m.DatabaseToken)
}

func TestChronomapYAMLRoundTrip(t *testing.T) {
	s := NewChronomapService(t.TempDir(), nil)
	_, err := s.Create(Chronomap{Slug: "b", Title: "B", DatabaseID: 2})
	require.NoError(t, err)
	_, err = s.Create(Chronomap{Slug: "a", Title: "A", DatabaseID: 1})
	require.NoError(t, err)

	data, err := s.ExportYAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "database_id: 1")

	other := NewChronomapService(t.TempDir(), nil)
	added, err := other.ImportYAML(data)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, s.List(), other.List())

	added, err = other.ImportYAML(data)
	require.NoError(t, err)
	assert.Zero(t, added, "a second import only updates")
}

func TestGenerateSlug(t *testing.T) {
	assert.Equal(t, "the_great_flood_1927", generateSlug("The Great Flood (1927)"))
	assert.Equal(t, "a-b", generateSlug(" A-B "))
}

type stubSource struct {
	mu    sync.Mutex
	snap  content.Snapshot
	err   error
	calls int
}

func (s *stubSource) Fetch(context.Context) (content.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return content.Snapshot{}, s.err
	}
	snap := s.snap
	snap.FetchedAt = time.Unix(int64(s.calls), 0)
	return snap, nil
}

func newContent(t *testing.T, src *stubSource) (*ChronomapService, *ContentService, *EventBus) {
	t.Helper()
	bus := NewEventBus()
	maps := NewChronomapService(t.TempDir(), bus)
	_, err := maps.Create(Chronomap{Slug: "floods", Title: "Floods", DatabaseID: 1})
	require.NoError(t, err)
	contents := NewContentService(maps, bus, ContentOptions{
		Source: func(Chronomap) content.Source { return src },
	})
	t.Cleanup(contents.Close)
	return maps, contents, bus
}

func TestContentSnapshotWaitsForFirstFetch(t *testing.T) {
	src := &stubSource{snap: content.Snapshot{Settings: content.Settings{Title: "Floods"}}}
	_, contents, _ := newContent(t, src)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := contents.Snapshot(ctx, "floods")
	require.NoError(t, err)
	assert.Equal(t, "Floods", snap.Settings.Title)

	_, err = contents.Snapshot(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContentSnapshotReportsFetchError(t *testing.T) {
	src := &stubSource{err: errors.New("offline")}
	_, contents, _ := newContent(t, src)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := contents.Snapshot(ctx, "floods")
	assert.ErrorIs(t, err, content.ErrNotReady)
}

func TestContentRestartsOnUpdate(t *testing.T) {
	src := &stubSource{snap: content.Snapshot{}}
	maps, contents, _ := newContent(t, src)

	first, err := contents.Repository("floods")
	require.NoError(t, err)
	again, err := contents.Repository("floods")
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, err = maps.Update("floods", Chronomap{Title: "Floods", DatabaseID: 2})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		next, err := contents.Repository("floods")
		return err == nil && next != first
	}, time.Second, 10*time.Millisecond)
}

func TestViewLifecycle(t *testing.T) {
	src := &stubSource{snap: content.Snapshot{
		Settings: content.Settings{Title: "Floods"},
		Items: []*content.ContentItem{{
			ID:            1,
			Title:         "one",
			Status:        content.StatusPublished,
			PostTimestamp: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			Geo:           "#4/10/20",
		}},
	}}
	maps, contents, bus := newContent(t, src)
	views := NewViewService(maps, contents, bus, nil, nil)
	t.Cleanup(views.CloseAll)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	id, view, err := views.Open(ctx, ViewRequest{Slug: "floods", Desktop: true, Width: 800})
	require.NoError(t, err)
	assert.Equal(t, 1, views.Len())
	view.Start("")

	deadline := time.After(time.Second)
	for created := false; !created; {
		select {
		case p := <-view.Patches():
			created = p.Map != nil
		case <-deadline:
			t.Fatal("no map patch")
		}
	}

	got, ok := views.Get(id)
	require.True(t, ok)
	assert.Same(t, view, got)

	require.NoError(t, views.Close(id))
	assert.ErrorIs(t, views.Close(id), ErrNotFound)
	<-view.Done()

	_, _, err = views.Open(ctx, ViewRequest{Slug: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletingChronomapClosesViews(t *testing.T) {
	src := &stubSource{snap: content.Snapshot{}}
	maps, contents, bus := newContent(t, src)
	views := NewViewService(maps, contents, bus, nil, nil)
	t.Cleanup(views.CloseAll)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, view, err := views.Open(ctx, ViewRequest{Slug: "floods"})
	require.NoError(t, err)

	require.NoError(t, maps.Delete("floods"))
	select {
	case <-view.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("view still running")
	}
	assert.Eventually(t, func() bool { return views.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestReapClosesDetachedViews(t *testing.T) {
	src := &stubSource{snap: content.Snapshot{}}
	maps, contents, bus := newContent(t, src)
	views := NewViewService(maps, contents, bus, nil, nil)
	t.Cleanup(views.CloseAll)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	id, _, err := views.Open(ctx, ViewRequest{Slug: "floods"})
	require.NoError(t, err)

	_, detach, err := views.Attach(id)
	require.NoError(t, err)
	assert.Zero(t, views.Reap(0), "attached views are kept")

	detach()
	detach()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, views.Reap(time.Millisecond))
	assert.Zero(t, views.Len())

	_, _, err = views.Attach(id)
	assert.ErrorIs(t, err, ErrNotFound)
}
