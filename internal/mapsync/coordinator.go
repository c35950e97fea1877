// Package mapsync keeps the base and detail maps of a view in step, owns the
// item markers, and reports when camera movement has settled.
//
// Every method must be called on the view's scheduler goroutine.
package mapsync

import (
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/joeblew999/chronomaps/internal/content"
	"github.com/joeblew999/chronomaps/internal/geoview"
	"github.com/joeblew999/chronomaps/internal/loop"
	"github.com/joeblew999/chronomaps/internal/maphandler"
	"github.com/joeblew999/chronomaps/internal/stream"
	"github.com/joeblew999/chronomaps/internal/telemetry"
)

// Options tunes a Coordinator.
type Options struct {
	// SettleDelay is the quiet period after the last moveend before
	// MoveSettled fires.
	SettleDelay time.Duration
	// MarkerRefreshDelay collapses bursts of refresh requests.
	MarkerRefreshDelay time.Duration
	// DefaultView is the chronomap's configured camera. When empty the base
	// map is fitted to the markers instead.
	DefaultView string
	Logger      *slog.Logger
}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		SettleDelay:        1000 * time.Millisecond,
		MarkerRefreshDelay: 100 * time.Millisecond,
	}
}

// Coordinator owns the maps of one view.
type Coordinator struct {
	sched   loop.Scheduler
	backend maphandler.Backend
	opts    Options
	logger  *slog.Logger

	base     *maphandler.Map
	detail   *maphandler.Map
	selector *maphandler.Map

	syncing      bool
	lastMapState geoview.FlyToOptions
	fitted       bool

	settle  *stream.Debouncer[struct{}]
	refresh *stream.Debouncer[struct{}]

	items   []*content.TimelineItem
	markers []*maphandler.Marker

	moveSettled   *stream.Emitter[struct{}]
	itemHovered   *stream.Emitter[*content.TimelineItem]
	itemSelected  *stream.Emitter[*content.TimelineItem]
	selectorMoved *stream.Emitter[string]

	mirrorJumps      metric.Int64Counter
	mirrorSuppressed metric.Int64Counter
	settles          metric.Int64Counter
	refreshes        metric.Int64Counter
}

// New creates a coordinator over backend. Maps are created by Init.
func New(sched loop.Scheduler, backend maphandler.Backend, opts Options) *Coordinator {
	def := DefaultOptions()
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = def.SettleDelay
	}
	if opts.MarkerRefreshDelay <= 0 {
		opts.MarkerRefreshDelay = def.MarkerRefreshDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		sched:         sched,
		backend:       backend,
		opts:          opts,
		logger:        logger.With("component", "mapsync", "backend", string(backend.Kind())),
		moveSettled:   stream.NewEmitter[struct{}](),
		itemHovered:   stream.NewEmitter[*content.TimelineItem](),
		itemSelected:  stream.NewEmitter[*content.TimelineItem](),
		selectorMoved: stream.NewEmitter[string](),

		mirrorJumps:      telemetry.Counter("chronomaps.mapsync.mirror_jumps", "Mirror jumpTo calls between base and detail maps"),
		mirrorSuppressed: telemetry.Counter("chronomaps.mapsync.mirror_suppressed", "Move events skipped by the mirror guard"),
		settles:          telemetry.Counter("chronomaps.mapsync.settles", "moveSettled events"),
		refreshes:        telemetry.Counter("chronomaps.mapsync.marker_refreshes", "Marker refresh passes"),
	}
	c.settle = stream.NewDebouncer(sched, opts.SettleDelay, func(struct{}) {
		telemetry.Inc(c.settles)
		c.moveSettled.Publish(struct{}{})
	})
	c.refresh = stream.NewDebouncer(sched, opts.MarkerRefreshDelay, func(struct{}) {
		c.rebuildMarkers()
	})
	return c
}

// MoveSettled fires once camera movement on every map has been quiet for
// the settle delay.
func (c *Coordinator) MoveSettled() *stream.Emitter[struct{}] { return c.moveSettled }

// ItemHovered publishes the item under the pointer, or nil when it leaves.
func (c *Coordinator) ItemHovered() *stream.Emitter[*content.TimelineItem] { return c.itemHovered }

// ItemSelected publishes the item whose marker was clicked.
func (c *Coordinator) ItemSelected() *stream.Emitter[*content.TimelineItem] { return c.itemSelected }

// SelectorMoved publishes the encoded camera of an interactive selector map
// each time it stops moving.
func (c *Coordinator) SelectorMoved() *stream.Emitter[string] { return c.selectorMoved }

// Backend returns the map backend.
func (c *Coordinator) Backend() maphandler.Backend { return c.backend }

// Base returns the base map handle.
func (c *Coordinator) Base() *maphandler.Map { return c.base }

// Detail returns the detail map handle.
func (c *Coordinator) Detail() *maphandler.Map { return c.detail }

// Init creates the base and detail maps and wires mirroring and settle
// detection.
func (c *Coordinator) Init() {
	if c.base != nil {
		return
	}
	c.base, c.detail = c.backend.CreateMaps()
	c.fitted = false

	for _, m := range []*maphandler.Map{c.base, c.detail} {
		m.OnMove(func(cam geoview.FlyToOptions) { c.mirror(m, cam) })
		m.OnMoveEnd(func() { c.settle.Push(struct{}{}) })
	}
	c.RefreshMarkers()
}

// mirror copies the camera of from onto the other map. The guard turns the
// move events that the jump itself raises into no-ops.
func (c *Coordinator) mirror(from *maphandler.Map, cam geoview.FlyToOptions) {
	if c.syncing {
		telemetry.Inc(c.mirrorSuppressed)
		return
	}
	c.syncing = true
	defer func() { c.syncing = false }()

	for _, to := range []*maphandler.Map{c.base, c.detail} {
		if to == from || to.Removed() {
			continue
		}
		telemetry.Inc(c.mirrorJumps)
		c.backend.JumpTo(to, cam.Camera())
	}
}

// HandleEvent forwards a surface event to the backend.
func (c *Coordinator) HandleEvent(ev maphandler.MapEvent) {
	c.backend.HandleEvent(ev)
}

// SetItems replaces the item list and schedules a marker refresh.
func (c *Coordinator) SetItems(items []*content.TimelineItem) {
	c.items = items
	c.RefreshMarkers()
}

// RefreshMarkers schedules a marker rebuild.
func (c *Coordinator) RefreshMarkers() {
	c.refresh.Push(struct{}{})
}

func (c *Coordinator) rebuildMarkers() {
	if c.base == nil {
		return
	}
	telemetry.Inc(c.refreshes)

	for _, mk := range c.markers {
		c.backend.RemoveMarker(mk)
	}
	c.markers = nil

	views := make([]string, 0, len(c.items))
	for _, it := range c.items {
		at, ok := geoview.Center(it.Geo)
		if !ok {
			continue
		}
		views = append(views, it.Geo)
		for _, m := range []*maphandler.Map{c.base, c.detail} {
			mk := c.backend.CreateMarker(maphandler.MarkerElement{
				ItemID: it.ID,
				Index:  it.Index,
				Kind:   string(it.Type),
				Title:  it.Title,
			}, at, m)
			if mk == nil {
				continue
			}
			mk.OnClick(func() { c.itemSelected.Publish(it) })
			mk.OnHover(func(entered bool) {
				if entered {
					c.itemHovered.Publish(it)
				} else {
					c.itemHovered.Publish(nil)
				}
			})
			c.markers = append(c.markers, mk)
		}
	}
	c.logger.Debug("markers refreshed", "items", len(c.items), "markers", len(c.markers))

	if c.fitted {
		return
	}
	if def := geoview.Decode(c.opts.DefaultView); !def.IsZero() {
		c.fitted = true
		c.backend.JumpTo(c.base, def)
		return
	}
	if b, ok := geoview.Bounds(views); ok {
		c.fitted = true
		c.backend.FitBounds(c.base, b)
	}
}

// Markers returns the live markers.
func (c *Coordinator) Markers() []*maphandler.Marker { return c.markers }

// Resize asks both maps to re-measure.
func (c *Coordinator) Resize() {
	c.backend.Resize(c.base)
	c.backend.Resize(c.detail)
}

// FlyTo animates the base map.
func (c *Coordinator) FlyTo(opts geoview.FlyToOptions) {
	c.backend.FlyTo(c.base, opts)
}

// ApplyMapView switches the detail map to item's layers and flies it to the
// item's geo view merged with extra. Items without a location only change
// layers.
func (c *Coordinator) ApplyMapView(item *content.TimelineItem, extra geoview.FlyToOptions) {
	if item == nil {
		return
	}
	c.backend.ApplyLayerVisibility(c.detail, item.MapLayers, item.OffMapLayers)
	view := geoview.Decode(item.Geo)
	if view.Center == nil {
		return
	}
	c.backend.FlyTo(c.detail, geoview.Merge(view, extra))
}

// SaveMapState records the base camera so it can be restored later.
func (c *Coordinator) SaveMapState() {
	c.lastMapState = c.base.Camera()
}

// LastMapState returns the camera recorded by SaveMapState.
func (c *Coordinator) LastMapState() geoview.FlyToOptions { return c.lastMapState }

// OpenSelector creates a picker map positioned at view, replacing any open
// one. Interactive selectors publish their camera on SelectorMoved.
func (c *Coordinator) OpenSelector(element, view string, interactive bool) *maphandler.Map {
	c.CloseSelector()
	m := c.backend.CreateSelectorMap(element, geoview.Decode(view), interactive)
	if interactive {
		m.OnMoveEnd(func() { c.selectorMoved.Publish(geoview.Encode(m.Camera())) })
	}
	c.selector = m
	return m
}

// Selector returns the open selector map, if any.
func (c *Coordinator) Selector() *maphandler.Map { return c.selector }

// CloseSelector removes the selector map.
func (c *Coordinator) CloseSelector() {
	if c.selector != nil {
		c.backend.RemoveMap(c.selector)
		c.selector = nil
	}
}

// Close stops pending timers and removes every map.
func (c *Coordinator) Close() {
	c.settle.Stop()
	c.refresh.Stop()
	c.CloseSelector()
	for _, mk := range c.markers {
		c.backend.RemoveMarker(mk)
	}
	c.markers = nil
	c.backend.RemoveMap(c.base)
	c.backend.RemoveMap(c.detail)
}

// MarkerID returns the element id the coordinator's markers use for item
// on map m.
func MarkerID(m *maphandler.Map, itemID int) string {
	return m.ID + "-marker-" + strconv.Itoa(itemID)
}
