// Package timeline is the zoomable time axis of a chronomap view: scale and
// zoom transform, calendar ticks, item clustering, and the zoom state string
// shared with the URL.
//
// An Engine is driven from one scheduler goroutine. User gestures publish
// local zoom changes; states applied from outside are marked controlled so
// the zoom events they cause are not echoed back.
package timeline

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/joeblew999/chronomaps/internal/content"
	"github.com/joeblew999/chronomaps/internal/loop"
	"github.com/joeblew999/chronomaps/internal/stream"
)

// Layout constants, in pixels.
const (
	TextHeight      = 16
	TickHeight      = 56
	TickHeightInner = 16
	Radius          = 16
	RadiusClustered = 12
	IconPadding     = 4
	HoverHeight     = 34
	Height          = TextHeight + TickHeight/2 + Radius + HoverHeight
)

const noHover = -1

// Options configures an Engine.
type Options struct {
	Width float64
	// MinDate and MaxDate pin the domain. When zero the domain follows the
	// items (content.DateRange).
	MinDate, MaxDate time.Time
	TickCount        int
	Radius           float64
	FallbackK        float64
	MinK, MaxK       float64
	// Limitless disables the scale and translate extents.
	Limitless bool
	// Passive makes single points ignore the pointer and disables wheel
	// zoom; clusters still expand on click.
	Passive           bool
	ZoomDebounce      time.Duration
	ControlledRelease time.Duration
	ScrollDuration    time.Duration
	ZoomByDuration    time.Duration
	Location          *time.Location
	Seed              uint64
	Logger            *slog.Logger
}

// DefaultOptions returns the stock layout and timings.
func DefaultOptions() Options {
	return Options{
		Width:             1000,
		TickCount:         40,
		Radius:            Radius,
		FallbackK:         10000,
		MinK:              1,
		MaxK:              100000,
		ZoomDebounce:      500 * time.Millisecond,
		ControlledRelease: 500 * time.Millisecond,
		ScrollDuration:    1000 * time.Millisecond,
		ZoomByDuration:    300 * time.Millisecond,
		Location:          time.UTC,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.TickCount <= 0 {
		o.TickCount = d.TickCount
	}
	if o.Radius <= 0 {
		o.Radius = d.Radius
	}
	if o.FallbackK <= 0 {
		o.FallbackK = d.FallbackK
	}
	if o.MinK <= 0 {
		o.MinK = d.MinK
	}
	if o.MaxK <= 0 {
		o.MaxK = d.MaxK
	}
	if o.ZoomDebounce <= 0 {
		o.ZoomDebounce = d.ZoomDebounce
	}
	if o.ControlledRelease <= 0 {
		o.ControlledRelease = d.ControlledRelease
	}
	if o.ScrollDuration <= 0 {
		o.ScrollDuration = d.ScrollDuration
	}
	if o.ZoomByDuration <= 0 {
		o.ZoomByDuration = d.ZoomByDuration
	}
	if o.Location == nil {
		o.Location = d.Location
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

var (
	defaultMin = time.Date(1820, time.January, 1, 0, 0, 0, 0, time.UTC)
	defaultMax = time.Date(2120, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// ZoomChange is a zoom state produced by the user.
type ZoomChange struct {
	State       string
	Center      time.Time
	IncludeTime bool
}

// Engine is one timeline instance.
type Engine struct {
	sched  loop.Scheduler
	opts   Options
	logger *slog.Logger

	width   float64
	items   []*content.TimelineItem
	minDate time.Time
	maxDate time.Time

	started bool
	base    Scale
	t       Transform

	zoomX         float64
	zoomK         float64
	firstTick     float64
	tickIndicator int

	zooming    bool
	controlled bool
	hover      int
	transition time.Duration

	zoomDebounce *stream.Debouncer[ZoomChange]
	release      *stream.Debouncer[struct{}]

	rnd    *rand.Rand
	jitter map[int][2]float64

	changes  *stream.Emitter[stream.Update[ZoomChange]]
	selected *stream.Emitter[*content.TimelineItem]
	frames   *stream.Replay[Frame]
}

// New creates an engine. Nothing is laid out until Start.
func New(sched loop.Scheduler, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		sched:     sched,
		opts:      opts,
		logger:    opts.Logger.With("component", "timeline"),
		width:     opts.Width,
		zoomX:     math.NaN(),
		zoomK:     1,
		firstTick: math.NaN(),
		hover:     noHover,
		rnd:       rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		jitter:    map[int][2]float64{},
		changes:   stream.NewEmitter[stream.Update[ZoomChange]](),
		selected:  stream.NewEmitter[*content.TimelineItem](),
		frames:    stream.NewReplay[Frame](),
	}
	e.zoomDebounce = stream.NewDebouncer(sched, opts.ZoomDebounce, func(c ZoomChange) {
		e.zooming = false
		e.changes.Publish(stream.Update[ZoomChange]{Value: c, Origin: stream.Local})
	})
	e.release = stream.NewDebouncer(sched, opts.ControlledRelease, func(struct{}) {
		e.controlled = false
	})
	e.setDomain()
	return e
}

// Changes publishes user-driven zoom states once the gesture has been quiet
// for the zoom debounce.
func (e *Engine) Changes() *stream.Emitter[stream.Update[ZoomChange]] { return e.changes }

// Selected publishes single items clicked on the axis.
func (e *Engine) Selected() *stream.Emitter[*content.TimelineItem] { return e.selected }

// Frames replays the latest rendered frame.
func (e *Engine) Frames() *stream.Replay[Frame] { return e.frames }

// Start lays the axis out on the next scheduler turn.
func (e *Engine) Start() {
	e.sched.AfterFunc(0, e.init)
}

// Resize re-initialises the axis for a new width.
func (e *Engine) Resize(width float64) {
	e.sched.Post(func() {
		if width > 0 {
			e.width = width
		}
		e.init()
	})
}

// SetItems replaces the items. An unpinned domain follows them.
func (e *Engine) SetItems(items []*content.TimelineItem) {
	e.items = items
	e.setDomain()
	if e.started {
		e.init()
	}
}

// Items returns the current items.
func (e *Engine) Items() []*content.TimelineItem { return e.items }

func (e *Engine) setDomain() {
	switch {
	case !e.opts.MinDate.IsZero() && !e.opts.MaxDate.IsZero():
		e.minDate, e.maxDate = e.opts.MinDate, e.opts.MaxDate
	default:
		if lo, hi, ok := content.DateRange(e.items); ok {
			e.minDate, e.maxDate = lo, hi
		} else {
			e.minDate, e.maxDate = defaultMin, defaultMax
		}
	}
}

func (e *Engine) init() {
	e.started = true
	e.base = NewScale(e.minDate, e.maxDate, e.width)
	e.t = Identity
	e.render()
	e.applyState()
}

func (e *Engine) extent() extent {
	return extent{minK: e.opts.MinK, maxK: e.opts.MaxK, width: e.width, limitless: e.opts.Limitless}
}

func (e *Engine) view() view { return view{base: e.base, t: e.t} }

// State is the parsed form of a zoom state string
// "<centerMs>/<k>/<firstTickMs>/<tickIndicator>".
type State struct {
	Center    float64
	K         float64
	FirstTick float64
	Indicator int
	HasTick   bool
}

// ParseState reads a zoom state. ok is false when center and k are not both
// present.
func ParseState(s string) (st State, ok bool) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 {
		return State{}, false
	}
	st.Center = parseNum(parts[0])
	st.K = parseNum(parts[1])
	if len(parts) == 4 {
		st.FirstTick = parseNum(parts[2])
		if n, err := strconv.Atoi(strings.TrimSpace(parts[3])); err == nil && (n == 0 || n == 1) {
			st.Indicator = n
			st.HasTick = true
		}
	}
	return st, true
}

func (s State) String() string {
	first := "0"
	if !math.IsNaN(s.FirstTick) {
		first = strconv.FormatInt(int64(s.FirstTick), 10)
	}
	return strconv.FormatInt(int64(math.Trunc(s.Center)), 10) + "/" +
		strconv.FormatFloat(s.K, 'f', -1, 64) + "/" +
		first + "/" + strconv.Itoa(s.Indicator)
}

func parseNum(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Current returns the engine's zoom state.
func (e *Engine) Current() State {
	return State{Center: e.zoomX, K: e.zoomK, FirstTick: e.firstTick, Indicator: e.tickIndicator, HasTick: true}
}

// Transform returns the current zoom transform.
func (e *Engine) Transform() Transform { return e.t }

// Controlled reports whether an external state is being applied.
func (e *Engine) Controlled() bool { return e.controlled }

// Zooming reports whether a user zoom is waiting to be published.
func (e *Engine) Zooming() bool { return e.zooming }

// ApplyExternal applies a zoom state that came from outside. It is dropped
// while the user is zooming.
func (e *Engine) ApplyExternal(state string) {
	if e.zooming {
		return
	}
	e.sched.Post(func() {
		e.controlled = true
		if st, ok := ParseState(state); ok {
			e.zoomX, e.zoomK = st.Center, st.K
			if st.HasTick {
				e.firstTick, e.tickIndicator = st.FirstTick, st.Indicator
			}
		}
		if e.started {
			e.applyState()
		}
		e.release.Push(struct{}{})
	})
}

func (e *Engine) applyState() {
	if math.IsNaN(e.zoomX) || math.IsInf(e.zoomX, 0) || !(e.zoomK > 0) {
		return
	}
	newX := e.base.At(e.zoomX) * e.zoomK
	e.setTransform(Transform{X: e.width/2 - newX, K: e.zoomK})
}

func (e *Engine) setTransform(t Transform) {
	if !t.Valid() {
		return
	}
	e.t = t
	e.onZoom()
}

func (e *Engine) onZoom() {
	v := e.view()
	e.zoomX = math.Round(v.invert(e.width / 2))
	e.zoomK = e.t.K
	e.render()
	if e.controlled {
		return
	}
	span := v.invert(e.width) - v.invert(0)
	change := ZoomChange{
		State:       e.Current().String(),
		Center:      fromMS(e.zoomX, e.opts.Location),
		IncludeTime: span < 3*durDay,
	}
	e.sched.Post(func() {
		e.zooming = true
		e.zoomDebounce.Push(change)
	})
}

// ScrollTo centers t at the current zoom and returns its label.
func (e *Engine) ScrollTo(t time.Time) string {
	if !e.started {
		e.zoomX = ms(t)
		return FormatTick(t.In(e.opts.Location), 0)
	}
	newX := e.base.At(ms(t)) * e.zoomK
	e.transition = e.opts.ScrollDuration
	e.setTransform(Transform{X: e.width/2 - newX, K: e.zoomK})
	return FormatTick(t.In(e.opts.Location), e.spanHours())
}

// ZoomBy scales around the center.
func (e *Engine) ZoomBy(k float64) {
	if !e.started || !(k > 0) {
		return
	}
	e.transition = e.opts.ZoomByDuration
	e.setTransform(e.extent().scaleAt(e.t, e.t.K*k, e.width/2))
}

// Pan drags the axis by dx pixels.
func (e *Engine) Pan(dx float64) {
	if !e.started {
		return
	}
	e.setTransform(e.extent().constrain(Transform{X: e.t.X + dx, K: e.t.K}))
}

// Wheel zooms around pixel x by a wheel delta.
func (e *Engine) Wheel(deltaY, x float64) {
	if !e.started || e.opts.Passive {
		return
	}
	k := e.t.K * math.Pow(2, -deltaY*0.002)
	e.setTransform(e.extent().scaleAt(e.t, k, x))
}

// Click handles a click on the point of item index. Clusters zoom in on
// themselves; single items scroll into the center and are published.
func (e *Engine) Click(index int) {
	it := e.item(index)
	if it == nil || !e.reacts(it) {
		return
	}
	if it.Clustered > 1 {
		e.zoomK = it.K
		e.ScrollTo(it.CenterTimestamp)
		return
	}
	e.ScrollTo(it.Time)
	e.selected.Publish(it)
}

// PointerEnter highlights the point of item index.
func (e *Engine) PointerEnter(index int) {
	it := e.item(index)
	if it == nil || !e.reacts(it) {
		return
	}
	e.SetHover(index)
}

// PointerLeave clears the highlight if it belongs to item index's point.
func (e *Engine) PointerLeave(index int) {
	it := e.item(index)
	if it == nil || !e.reacts(it) || e.hover == noHover {
		return
	}
	for _, i := range it.Indexes {
		if i == e.hover {
			e.SetHover(noHover)
			return
		}
	}
}

// SetHover highlights index; a negative index clears the highlight.
func (e *Engine) SetHover(index int) {
	if index < 0 {
		index = noHover
	}
	e.hover = index
	if e.started {
		e.render()
	}
}

// Hovered returns the highlighted index, or -1.
func (e *Engine) Hovered() int { return e.hover }

// Stop cancels pending timers.
func (e *Engine) Stop() {
	e.zoomDebounce.Stop()
	e.release.Stop()
}

func (e *Engine) item(index int) *content.TimelineItem {
	if index < 0 || index >= len(e.items) {
		return nil
	}
	return e.items[index]
}

func (e *Engine) reacts(it *content.TimelineItem) bool {
	return !e.opts.Passive || it.Clustered > 1
}

func (e *Engine) spanHours() float64 {
	v := e.view()
	return (math.Trunc(v.invert(e.width)) - math.Trunc(v.invert(0))) / durHour
}

// updateIndicator flips the label parity when the first tick moves to a new
// value.
func (e *Engine) updateIndicator(value float64, i int) {
	if i == 0 && value != e.firstTick {
		e.firstTick = value
		e.tickIndicator = 1 - e.tickIndicator
	}
}

func (e *Engine) jitterAt(pos int) (float64, float64) {
	j, ok := e.jitter[pos]
	if !ok {
		j = [2]float64{e.rnd.Float64() * 3, e.rnd.Float64() * 3}
		e.jitter[pos] = j
	}
	return j[0], j[1]
}

func (e *Engine) render() {
	v := e.view()
	lo, hi := math.Trunc(v.invert(0)), math.Trunc(v.invert(e.width))
	span := (hi - lo) / durHour

	ticks := Ticks(lo, hi, e.opts.TickCount, e.opts.Location)
	frame := Frame{
		Width:      e.width,
		Height:     Height,
		Ticks:      make([]Tick, 0, len(ticks)),
		Transition: e.transition,
	}
	for i, tk := range ticks {
		e.updateIndicator(ms(tk), i)
		long := i%2 == e.tickIndicator
		tick := Tick{X: v.at(ms(tk)), Value: tk, Long: long}
		if long {
			tick.Label = FormatTick(tk, span)
		}
		frame.Ticks = append(frame.Ticks, tick)
	}

	clusterer{
		base:      e.base,
		view:      v,
		width:     e.width,
		radius:    e.opts.Radius,
		fallbackK: e.opts.FallbackK,
		loc:       e.opts.Location,
		jitter:    e.jitterAt,
	}.run(e.items)

	frame.Points = make([]Point, 0, len(e.items))
	for _, it := range e.items {
		hovered := false
		for _, i := range it.Indexes {
			if i == e.hover {
				hovered = true
			}
		}
		r := e.opts.Radius - 1
		if !hovered && it.Clustered > 1 {
			r = RadiusClustered - 1
		}
		frame.Points = append(frame.Points, Point{
			ID:        it.ID,
			Index:     it.Index,
			X:         it.X,
			CX:        it.CX,
			CY:        it.CY,
			Radius:    r,
			Clustered: it.Clustered,
			Hovered:   hovered,
			Type:      string(it.Type),
			Title:     it.Title,
		})
		if it.Index == e.hover {
			frame.Hover = &Hover{Index: it.Index, X: it.X, Title: it.Title}
		}
	}

	frame.State = e.Current().String()
	e.transition = 0
	e.frames.Publish(frame)
}
