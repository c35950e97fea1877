// Package selection sequences the transitions between "nothing selected"
// and "item X selected" across the timeline, the maps and the content pane.
//
// A transition is a fixed series of effects separated by waits. Starting a
// new transition cancels the one in flight, and every delayed step checks
// that its sequence is still current before touching anything.
package selection

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/joeblew999/chronomaps/internal/content"
	"github.com/joeblew999/chronomaps/internal/geoview"
	"github.com/joeblew999/chronomaps/internal/loop"
	"github.com/joeblew999/chronomaps/internal/stream"
	"github.com/joeblew999/chronomaps/internal/telemetry"
)

// Mode is how much room the detail map gets next to the content.
type Mode string

const (
	ModeMap      Mode = "Map"
	ModeSmallMap Mode = "SmallMap"
	ModeMedia    Mode = "Media"
	ModeMore     Mode = "More"
)

// Zone is a named region of the content pane watched for visibility.
type Zone string

const (
	ZoneMedia       Zone = "media"
	ZoneDescription Zone = "description"
	ZoneMapFiller   Zone = "map-filler"
)

// Zones lists the watched regions in the order they are armed.
var Zones = []Zone{ZoneMedia, ZoneDescription, ZoneMapFiller}

func (z Zone) mode() (Mode, bool) {
	switch z {
	case ZoneMedia:
		return ModeMedia, true
	case ZoneDescription:
		return ModeMore, true
	case ZoneMapFiller:
		return ModeMap, true
	}
	return "", false
}

// Timeline is the part of the timeline engine a transition drives.
type Timeline interface {
	ScrollTo(t time.Time) string
}

// Maps is the part of the map coordinator a transition drives.
type Maps interface {
	ApplyMapView(item *content.TimelineItem, extra geoview.FlyToOptions)
	FlyTo(opts geoview.FlyToOptions)
	SaveMapState()
	LastMapState() geoview.FlyToOptions
	RefreshMarkers()
	MoveSettled() *stream.Emitter[struct{}]
}

// Layout is the page surface: the item strip, the detail pane and the
// content scroller.
type Layout interface {
	ScrollStripTo(item *content.TimelineItem, smooth bool)
	ScrollToZone(zone Zone, smooth bool)
	SetDetailOpen(open bool)
	SetContentVisible(visible bool)
	SetMapMode(mode Mode)
	ArmZones(zones []Zone, threshold float64)
	DisarmZones()
}

// StateSink records the selected item id. Zero means none.
type StateSink interface {
	SetSelectedItemID(id int)
}

// Options tunes a Machine.
type Options struct {
	// ActivationDebounce is the quiet period before a passive activation
	// (an item scrolled into view) becomes a selection.
	ActivationDebounce time.Duration
	// ModeDebounce keeps the map mode from flapping during scroll momentum.
	ModeDebounce time.Duration
	// LayoutFallback bounds the wait for scroll-end or transition-end.
	LayoutFallback time.Duration
	// SettleFallback bounds the wait for the maps to settle.
	SettleFallback time.Duration
	// ChangingRelease is how long activations stay suppressed after a
	// transition has settled.
	ChangingRelease time.Duration
	// DeselectDelay is the time between collapsing the detail pane and
	// hiding the content.
	DeselectDelay time.Duration
	// DeselectDuration is the fly-back animation length.
	DeselectDuration time.Duration
	ZoneThreshold    float64
	FlySpeed         float64
	DetailPadding    geoview.Padding
	Logger           *slog.Logger
}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		ActivationDebounce: 1000 * time.Millisecond,
		ModeDebounce:       1000 * time.Millisecond,
		LayoutFallback:     1000 * time.Millisecond,
		SettleFallback:     3000 * time.Millisecond,
		ChangingRelease:    1000 * time.Millisecond,
		DeselectDelay:      1000 * time.Millisecond,
		DeselectDuration:   1000 * time.Millisecond,
		ZoneThreshold:      0.75,
		FlySpeed:           2,
		DetailPadding:      geoview.Uniform(50),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ActivationDebounce <= 0 {
		o.ActivationDebounce = def.ActivationDebounce
	}
	if o.ModeDebounce <= 0 {
		o.ModeDebounce = def.ModeDebounce
	}
	if o.LayoutFallback <= 0 {
		o.LayoutFallback = def.LayoutFallback
	}
	if o.SettleFallback <= 0 {
		o.SettleFallback = def.SettleFallback
	}
	if o.ChangingRelease <= 0 {
		o.ChangingRelease = def.ChangingRelease
	}
	if o.DeselectDelay <= 0 {
		o.DeselectDelay = def.DeselectDelay
	}
	if o.DeselectDuration <= 0 {
		o.DeselectDuration = def.DeselectDuration
	}
	if o.ZoneThreshold <= 0 {
		o.ZoneThreshold = def.ZoneThreshold
	}
	if o.FlySpeed <= 0 {
		o.FlySpeed = def.FlySpeed
	}
	if o.DetailPadding == (geoview.Padding{}) {
		o.DetailPadding = def.DetailPadding
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type phase int

const (
	phaseLayout phase = iota
	phaseSettle
	phaseShown
)

// sequence is one transition in flight.
type sequence struct {
	item      *content.TimelineItem
	phase     phase
	wantEnd   string
	timers    []loop.Timer
	cancels   []func()
	holding   bool
	cancelled bool
}

// Machine is the selection state machine of one view. Every method must be
// called on the view's scheduler goroutine.
type Machine struct {
	sched    loop.Scheduler
	timeline Timeline
	maps     Maps
	layout   Layout
	sink     StateSink
	opts     Options
	logger   *slog.Logger

	items      []*content.TimelineItem
	current    *content.TimelineItem
	detailOpen bool
	armed      bool
	mode       Mode
	changing   int
	seq        *sequence

	activations *stream.Debouncer[*content.TimelineItem]
	modes       *stream.Debouncer[Mode]

	selected    *stream.Replay[*content.TimelineItem]
	modeChanges *stream.Replay[Mode]

	started   metric.Int64Counter
	cancelled metric.Int64Counter
}

// New creates an idle machine.
func New(sched loop.Scheduler, tl Timeline, maps Maps, layout Layout, sink StateSink, opts Options) *Machine {
	opts = opts.withDefaults()
	m := &Machine{
		sched:       sched,
		timeline:    tl,
		maps:        maps,
		layout:      layout,
		sink:        sink,
		opts:        opts,
		logger:      opts.Logger.With("component", "selection"),
		mode:        ModeMedia,
		selected:    stream.NewReplay[*content.TimelineItem](),
		modeChanges: stream.NewReplay[Mode](),
		started:     telemetry.Counter("chronomaps.selection.transitions", "Selection transitions started"),
		cancelled:   telemetry.Counter("chronomaps.selection.cancelled", "Selection transitions cancelled mid-flight"),
	}
	m.activations = stream.NewDebouncer(sched, opts.ActivationDebounce, func(it *content.TimelineItem) {
		if m.changing > 0 {
			return
		}
		m.Select(it)
	})
	m.modes = stream.NewDebouncer(sched, opts.ModeDebounce, m.setMode)
	return m
}

// Selected publishes the selected item whenever it changes; nil is Idle.
func (m *Machine) Selected() *stream.Replay[*content.TimelineItem] { return m.selected }

// Modes publishes the map mode.
func (m *Machine) Modes() *stream.Replay[Mode] { return m.modeChanges }

// Current returns the selected item, or nil.
func (m *Machine) Current() *content.TimelineItem { return m.current }

// DetailOpen reports whether the detail pane is expanded.
func (m *Machine) DetailOpen() bool { return m.detailOpen }

// Mode returns the current map mode.
func (m *Machine) Mode() Mode { return m.mode }

// Changing reports whether a transition is holding activations off.
func (m *Machine) Changing() bool { return m.changing > 0 }

// Armed reports whether the content zones are being watched.
func (m *Machine) Armed() bool { return m.armed }

// SetItems replaces the items Goto resolves ids against.
func (m *Machine) SetItems(items []*content.TimelineItem) {
	m.items = items
	if m.current == nil {
		return
	}
	if it := m.Lookup(m.current.ID); it != nil {
		m.current = it
		if m.seq != nil && m.seq.item.ID == it.ID {
			m.seq.item = it
		}
	}
}

// Lookup finds an item by id.
func (m *Machine) Lookup(id int) *content.TimelineItem {
	for _, it := range m.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// Goto selects the item with id, or deselects when id is zero. It reports
// false when id is unknown, leaving the selection untouched.
func (m *Machine) Goto(id int) bool {
	if id == 0 {
		m.Select(nil)
		return true
	}
	it := m.Lookup(id)
	if it == nil {
		return false
	}
	m.Select(it)
	return true
}

// Activate reports that item scrolled into view. It becomes a selection
// once activations have been quiet for ActivationDebounce, unless a
// transition is under way.
func (m *Machine) Activate(item *content.TimelineItem) {
	if item == nil || m.changing > 0 {
		return
	}
	m.activations.Push(item)
}

// Select makes item current. Selecting the current item does nothing and
// nil deselects.
func (m *Machine) Select(item *content.TimelineItem) {
	if item == m.current || (item != nil && m.current != nil && item.ID == m.current.ID) {
		return
	}
	if item == nil {
		m.deselect()
		return
	}

	m.cancelSequence()
	m.logger.Debug("selecting item", "id", item.ID, "title", item.Title)
	telemetry.Inc(m.started)

	m.current = item
	m.sink.SetSelectedItemID(item.ID)
	m.selected.Publish(item)

	seq := &sequence{item: item, phase: phaseLayout, holding: true}
	m.seq = seq
	m.changing++

	wasOpen := m.detailOpen
	m.timeline.ScrollTo(item.Time)
	m.layout.ScrollStripTo(item, wasOpen)
	if !wasOpen {
		m.modes.Stop()
		m.setMode(ModeSmallMap)
		m.maps.SaveMapState()
		seq.wantEnd = "transitionend"
	} else {
		seq.wantEnd = "scrollend"
	}
	m.detailOpen = true
	m.layout.SetDetailOpen(true)

	padding := m.opts.DetailPadding
	m.maps.ApplyMapView(item, geoview.FlyToOptions{
		Speed:   geoview.Float(m.opts.FlySpeed),
		Padding: &padding,
	})
	m.maps.RefreshMarkers()

	m.after(seq, m.opts.LayoutFallback, func() { m.layoutDone(seq) })
}

// ScrollEnded reports that the item strip finished scrolling.
func (m *Machine) ScrollEnded() { m.layoutEvent("scrollend") }

// TransitionEnded reports that the detail pane finished opening.
func (m *Machine) TransitionEnded() { m.layoutEvent("transitionend") }

func (m *Machine) layoutEvent(name string) {
	seq := m.seq
	if seq == nil || seq.phase != phaseLayout || seq.wantEnd != name {
		return
	}
	m.layoutDone(seq)
}

func (m *Machine) layoutDone(seq *sequence) {
	if seq != m.seq || seq.phase != phaseLayout {
		return
	}
	seq.phase = phaseSettle
	seq.cancels = append(seq.cancels, m.maps.MoveSettled().Subscribe(func(struct{}) { m.settled(seq) }))
	m.after(seq, m.opts.SettleFallback, func() { m.settled(seq) })
}

func (m *Machine) settled(seq *sequence) {
	if seq != m.seq || seq.phase != phaseSettle {
		return
	}
	seq.phase = phaseShown
	m.unsubscribe(seq)

	m.layout.SetContentVisible(true)
	m.layout.ScrollToZone(ZoneMedia, true)
	m.armed = true
	m.layout.ArmZones(Zones, m.opts.ZoneThreshold)
	m.logger.Debug("item shown", "id", seq.item.ID)

	m.after(seq, m.opts.ChangingRelease, func() { m.release(seq) })
}

func (m *Machine) deselect() {
	m.cancelSequence()
	m.logger.Debug("deselecting item", "id", m.current.ID)

	m.current = nil
	m.sink.SetSelectedItemID(0)
	m.selected.Publish(nil)

	seq := &sequence{phase: phaseShown}
	m.seq = seq

	if m.detailOpen {
		if last := m.maps.LastMapState(); !last.IsZero() {
			padding := geoview.Uniform(0)
			m.maps.FlyTo(geoview.Merge(last.Camera(), geoview.FlyToOptions{
				Padding:  &padding,
				Duration: geoview.Float(float64(m.opts.DeselectDuration.Milliseconds())),
			}))
		}
	}
	m.detailOpen = false
	m.layout.SetDetailOpen(false)

	m.after(seq, m.opts.DeselectDelay, func() {
		if seq != m.seq {
			return
		}
		m.layout.SetContentVisible(false)
		m.maps.RefreshMarkers()
		m.disarm()
	})
}

// Intersected reports that zone became the most visible content region
// with the given visibility ratio.
func (m *Machine) Intersected(zone Zone, ratio float64) {
	if !m.armed || ratio < m.opts.ZoneThreshold {
		return
	}
	if mode, ok := zone.mode(); ok {
		m.modes.Push(mode)
	}
}

// ToggleMapMode scrolls between the media and the full map.
func (m *Machine) ToggleMapMode() {
	if m.mode == ModeMap || m.mode == ModeSmallMap {
		m.layout.ScrollToZone(ZoneMedia, true)
		return
	}
	m.layout.ScrollToZone(ZoneMapFiller, true)
}

// ToggleDescriptionMode scrolls between the media and the description.
func (m *Machine) ToggleDescriptionMode() {
	if m.mode == ModeMore {
		m.layout.ScrollToZone(ZoneMedia, true)
		return
	}
	m.layout.ScrollToZone(ZoneDescription, true)
}

// Stop cancels everything pending.
func (m *Machine) Stop() {
	m.cancelSequence()
	m.seq = nil
	m.activations.Stop()
	m.modes.Stop()
}

func (m *Machine) setMode(mode Mode) {
	if mode == m.mode {
		return
	}
	m.mode = mode
	m.layout.SetMapMode(mode)
	m.modeChanges.Publish(mode)
}

func (m *Machine) disarm() {
	if !m.armed {
		return
	}
	m.armed = false
	m.modes.Stop()
	m.layout.DisarmZones()
}

func (m *Machine) after(seq *sequence, d time.Duration, fn func()) {
	seq.timers = append(seq.timers, m.sched.AfterFunc(d, func() {
		if seq.cancelled {
			return
		}
		fn()
	}))
}

func (m *Machine) release(seq *sequence) {
	if seq.holding {
		seq.holding = false
		m.changing--
	}
}

func (m *Machine) unsubscribe(seq *sequence) {
	for _, cancel := range seq.cancels {
		cancel()
	}
	seq.cancels = nil
}

func (m *Machine) cancelSequence() {
	seq := m.seq
	if seq == nil || seq.cancelled {
		return
	}
	if seq.phase != phaseShown {
		telemetry.Inc(m.cancelled)
	}
	seq.cancelled = true
	for _, t := range seq.timers {
		t.Stop()
	}
	seq.timers = nil
	m.unsubscribe(seq)
	m.release(seq)
}
