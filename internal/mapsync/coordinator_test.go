package mapsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/chronomaps/internal/content"
	"github.com/joeblew999/chronomaps/internal/geoview"
	"github.com/joeblew999/chronomaps/internal/loop"
	"github.com/joeblew999/chronomaps/internal/maphandler"
)

type recorder struct {
	cmds []maphandler.Command
}

func (r *recorder) Send(cmd maphandler.Command) { r.cmds = append(r.cmds, cmd) }

func (r *recorder) count(op, mapID string) int {
	n := 0
	for _, c := range r.cmds {
		if c.Op == op && c.Map == mapID {
			n++
		}
	}
	return n
}

func (r *recorder) last(op, mapID string) (maphandler.Command, bool) {
	for i := len(r.cmds) - 1; i >= 0; i-- {
		if r.cmds[i].Op == op && r.cmds[i].Map == mapID {
			return r.cmds[i], true
		}
	}
	return maphandler.Command{}, false
}

// countingBackend counts JumpTo calls per map.
type countingBackend struct {
	maphandler.Backend
	jumps map[string]int
}

func (b *countingBackend) JumpTo(m *maphandler.Map, opts geoview.FlyToOptions) {
	b.jumps[m.ID]++
	b.Backend.JumpTo(m, opts)
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func setup(t *testing.T, opts Options) (*Coordinator, *loop.Virtual, *recorder, *countingBackend) {
	t.Helper()
	rec := &recorder{}
	b := &countingBackend{Backend: maphandler.NewVector(maphandler.Config{AccessToken: "pk"}, rec), jumps: map[string]int{}}
	v := loop.NewVirtual(t0)
	c := New(v, b, opts)
	c.Init()
	v.Flush()
	return c, v, rec, b
}

func item(id, index int, geo string) *content.TimelineItem {
	return &content.TimelineItem{
		ContentItem: &content.ContentItem{ID: id, Title: "item", Type: content.MediaImage, Geo: geo,
			MapLayers: []string{"water"}, OffMapLayers: []string{"roads"}},
		Index: index,
	}
}

func TestMirrorDoesNotPingPong(t *testing.T) {
	c, _, _, b := setup(t, Options{})

	c.HandleEvent(maphandler.MapEvent{Type: maphandler.EventMove, Map: "base", Camera: &geoview.FlyToOptions{
		Center: &geoview.LatLon{Lat: 12, Lon: 34},
		Zoom:   geoview.Float(6),
	}})

	assert.Equal(t, 1, b.jumps["detail"])
	assert.Equal(t, 0, b.jumps["base"])
	cam := c.Detail().Camera()
	require.NotNil(t, cam.Center)
	assert.Equal(t, geoview.LatLon{Lat: 12, Lon: 34}, *cam.Center)
	assert.Equal(t, 6.0, *cam.Zoom)

	c.HandleEvent(maphandler.MapEvent{Type: maphandler.EventMove, Map: "detail", Camera: &geoview.FlyToOptions{
		Zoom: geoview.Float(7),
	}})
	assert.Equal(t, 1, b.jumps["base"])
	assert.Equal(t, 1, b.jumps["detail"])
	assert.Equal(t, 7.0, *c.Base().Camera().Zoom)
}

func TestSettleFiresOnceAfterLastMoveEnd(t *testing.T) {
	c, v, _, _ := setup(t, Options{})

	var at []time.Time
	c.MoveSettled().Subscribe(func(struct{}) { at = append(at, v.Now()) })

	c.HandleEvent(maphandler.MapEvent{Type: maphandler.EventMoveEnd, Map: "base"})
	v.Advance(600 * time.Millisecond)
	c.HandleEvent(maphandler.MapEvent{Type: maphandler.EventMoveEnd, Map: "detail"})
	moved := v.Now()

	v.Advance(999 * time.Millisecond)
	assert.Empty(t, at)
	v.Advance(time.Millisecond)
	require.Len(t, at, 1)
	assert.Equal(t, moved.Add(time.Second), at[0])

	v.Advance(5 * time.Second)
	assert.Len(t, at, 1)
}

func TestMarkersRebuiltAndFittedOnce(t *testing.T) {
	c, v, rec, _ := setup(t, Options{})

	a := item(1, 0, "#5/10/20")
	b := item(2, 1, "#5/20/40")
	none := item(3, 2, "")
	c.SetItems([]*content.TimelineItem{a, b, none})
	c.RefreshMarkers()
	v.Advance(50 * time.Millisecond)
	c.RefreshMarkers()
	v.Advance(99 * time.Millisecond)
	assert.Equal(t, 0, rec.count(maphandler.OpAddMarker, "base"))
	v.Advance(time.Millisecond)

	assert.Equal(t, 2, rec.count(maphandler.OpAddMarker, "base"))
	assert.Equal(t, 2, rec.count(maphandler.OpAddMarker, "detail"))
	old := c.Markers()
	require.Len(t, old, 4)

	assert.Equal(t, 1, rec.count(maphandler.OpFitBounds, "base"))
	center := c.Base().Camera().Center
	require.NotNil(t, center)
	assert.InDelta(t, 30, center.Lon, 1e-6)

	c.SetItems([]*content.TimelineItem{a})
	v.Advance(100 * time.Millisecond)
	for _, mk := range old {
		assert.True(t, mk.Removed())
	}
	assert.Len(t, c.Markers(), 2)
	assert.Equal(t, 1, rec.count(maphandler.OpFitBounds, "base"))
}

func TestDefaultViewReplacesFit(t *testing.T) {
	c, v, rec, _ := setup(t, Options{DefaultView: "#7/1/2"})
	c.SetItems([]*content.TimelineItem{item(1, 0, "#5/10/20")})
	v.Advance(100 * time.Millisecond)

	assert.Equal(t, 0, rec.count(maphandler.OpFitBounds, "base"))
	assert.Equal(t, 7.0, *c.Base().Camera().Zoom)
	assert.Equal(t, 7.0, *c.Detail().Camera().Zoom)
}

func TestMarkerEventsReachOwner(t *testing.T) {
	c, v, _, _ := setup(t, Options{})
	it := item(42, 0, "#5/40.0/-73.9")
	c.SetItems([]*content.TimelineItem{it})
	v.Advance(100 * time.Millisecond)

	var selected []*content.TimelineItem
	var hovered []*content.TimelineItem
	c.ItemSelected().Subscribe(func(i *content.TimelineItem) { selected = append(selected, i) })
	c.ItemHovered().Subscribe(func(i *content.TimelineItem) { hovered = append(hovered, i) })

	id := MarkerID(c.Base(), 42)
	c.HandleEvent(maphandler.MapEvent{Type: maphandler.EventMarkerEnter, Marker: id})
	c.HandleEvent(maphandler.MapEvent{Type: maphandler.EventMarkerClick, Marker: id})
	c.HandleEvent(maphandler.MapEvent{Type: maphandler.EventMarkerLeave, Marker: id})

	assert.Equal(t, []*content.TimelineItem{it}, selected)
	assert.Equal(t, []*content.TimelineItem{it, nil}, hovered)
}

func TestApplyMapViewFliesDetail(t *testing.T) {
	c, _, rec, _ := setup(t, Options{})
	pad := geoview.Padding{Top: 10, Bottom: 300}

	c.ApplyMapView(item(42, 0, "#5/40.0/-73.9"), geoview.FlyToOptions{Speed: geoview.Float(2), Padding: &pad})

	cmd, ok := rec.last(maphandler.OpFlyTo, "detail")
	require.True(t, ok)
	assert.Equal(t, 5.0, *cmd.Options.Zoom)
	assert.Equal(t, geoview.LatLon{Lat: 40, Lon: -73.9}, *cmd.Options.Center)
	assert.Equal(t, 2.0, *cmd.Options.Speed)
	assert.Equal(t, pad, *cmd.Options.Padding)

	layers, ok := rec.last(maphandler.OpLayers, "detail")
	require.True(t, ok)
	assert.Equal(t, map[string]bool{"water": true, "roads": false}, layers.Layers)

	n := rec.count(maphandler.OpFlyTo, "detail")
	c.ApplyMapView(item(1, 0, ""), geoview.FlyToOptions{Speed: geoview.Float(2)})
	assert.Equal(t, n, rec.count(maphandler.OpFlyTo, "detail"))
}

func TestMapStateRoundTrip(t *testing.T) {
	c, _, rec, _ := setup(t, Options{})
	c.HandleEvent(maphandler.MapEvent{Type: maphandler.EventMove, Map: "base", Camera: &geoview.FlyToOptions{
		Center: &geoview.LatLon{Lat: 3, Lon: 4}, Zoom: geoview.Float(5),
	}})
	c.SaveMapState()

	c.FlyTo(c.LastMapState())
	cmd, ok := rec.last(maphandler.OpFlyTo, "base")
	require.True(t, ok)
	assert.Equal(t, geoview.LatLon{Lat: 3, Lon: 4}, *cmd.Options.Center)
}

func TestSelectorPublishesCamera(t *testing.T) {
	c, _, _, b := setup(t, Options{})
	var views []string
	c.SelectorMoved().Subscribe(func(s string) { views = append(views, s) })

	sel := c.OpenSelector("picker", "#4/10/20", true)
	require.NotNil(t, sel)
	assert.True(t, sel.Interactive())

	c.HandleEvent(maphandler.MapEvent{Type: maphandler.EventMoveEnd, Map: sel.ID, Camera: &geoview.FlyToOptions{
		Center: &geoview.LatLon{Lat: 1, Lon: 2}, Zoom: geoview.Float(6),
	}})
	require.Len(t, views, 1)
	got := geoview.Decode(views[0])
	assert.Equal(t, 6.0, *got.Zoom)
	assert.Equal(t, geoview.LatLon{Lat: 1, Lon: 2}, *got.Center)
	assert.Empty(t, b.jumps, "selector moves are not mirrored")

	c.CloseSelector()
	assert.True(t, sel.Removed())
	assert.Nil(t, c.Selector())
}

func TestCloseIsSafe(t *testing.T) {
	c, v, _, _ := setup(t, Options{})
	c.SetItems([]*content.TimelineItem{item(1, 0, "#5/10/20")})
	c.Close()
	v.Advance(time.Minute)

	assert.True(t, c.Base().Removed())
	c.Resize()
	c.FlyTo(geoview.FlyToOptions{Zoom: geoview.Float(3)})
	c.ApplyMapView(item(1, 0, "#5/10/20"), geoview.FlyToOptions{})
}

// echoSurface plays the browser: every jump comes back later as a move
// event on the map that was jumped.
type echoSurface struct {
	sched     *loop.Virtual
	c         *Coordinator
	delivered int
}

func (s *echoSurface) Send(cmd maphandler.Command) {
	if cmd.Op != maphandler.OpJumpTo || cmd.Options == nil || s.delivered >= 50 {
		return
	}
	cam := *cmd.Options
	s.sched.Post(func() {
		s.delivered++
		s.c.HandleEvent(maphandler.MapEvent{Type: maphandler.EventMove, Map: cmd.Map, Camera: &cam})
	})
}

func TestMirrorSurvivesSurfaceEchoes(t *testing.T) {
	v := loop.NewVirtual(t0)
	surface := &echoSurface{sched: v}
	b := &countingBackend{Backend: maphandler.NewVector(maphandler.Config{AccessToken: "pk"}, surface), jumps: map[string]int{}}
	c := New(v, b, Options{})
	surface.c = c
	c.Init()
	v.Flush()

	for i := 1; i <= 3; i++ {
		c.HandleEvent(maphandler.MapEvent{Type: maphandler.EventMove, Map: "base", Camera: &geoview.FlyToOptions{
			Center: &geoview.LatLon{Lat: float64(i), Lon: 34},
			Zoom:   geoview.Float(6),
		}})
	}
	v.Flush()

	assert.Equal(t, 3, surface.delivered)
	assert.Equal(t, 3, b.jumps["detail"])
	assert.Equal(t, 0, b.jumps["base"])
	assert.Equal(t, 3.0, c.Base().Camera().Center.Lat)
	assert.Equal(t, 3.0, c.Detail().Camera().Center.Lat)
}
