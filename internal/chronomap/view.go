// Package chronomap assembles one browser session of a chronomap: the map
// coordinator, the timeline engine, the selection machine and the URL state,
// all running on a single scheduler.
package chronomap

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/joeblew999/chronomaps/internal/content"
	"github.com/joeblew999/chronomaps/internal/loop"
	"github.com/joeblew999/chronomaps/internal/maphandler"
	"github.com/joeblew999/chronomaps/internal/mapsync"
	"github.com/joeblew999/chronomaps/internal/selection"
	"github.com/joeblew999/chronomaps/internal/stream"
	"github.com/joeblew999/chronomaps/internal/timeline"
	"github.com/joeblew999/chronomaps/internal/urlstate"
)

// Options configures a View.
type Options struct {
	Slug      string
	Desktop   bool
	Sync      mapsync.Options
	Timeline  timeline.Options
	Selection selection.Options
	URL       urlstate.Options
	// FitPadding is the pixel inset used when fitting the base map.
	FitPadding float64
	// OutboxSize is the channel buffer of Patches. Patches that do not fit
	// wait in a backlog where frames, signals and mirror jumps coalesce.
	OutboxSize int
	Logger     *slog.Logger
}

// Signals is the page state the browser binds to.
type Signals struct {
	DetailOpen     bool    `json:"detailOpen"`
	ContentVisible bool    `json:"contentVisible"`
	MapMode        string  `json:"mapMode"`
	SelectedItemID int     `json:"selectedItemId"`
	ZonesArmed     bool    `json:"zonesArmed"`
	ZoneThreshold  float64 `json:"zoneThreshold,omitempty"`
}

// Scroll asks the browser to bring an element into view.
type Scroll struct {
	Target string `json:"target"`
	Smooth bool   `json:"smooth"`
	// Inline centers the element horizontally instead of vertically.
	Inline bool `json:"inline,omitempty"`
}

// Navigation is a URL fragment write.
type Navigation struct {
	Fragment string `json:"fragment"`
	Replace  bool   `json:"replace"`
}

// Patch is one update for the browser. Exactly one field is set.
type Patch struct {
	Map      *maphandler.Command `json:"map,omitempty"`
	Frame    *timeline.Frame     `json:"frame,omitempty"`
	Signals  *Signals            `json:"signals,omitempty"`
	Scroll   *Scroll             `json:"scroll,omitempty"`
	Navigate *Navigation         `json:"navigate,omitempty"`
	Strip    *Strip              `json:"strip,omitempty"`
}

// Strip is the row of item cards under the timeline.
type Strip struct {
	Items      []*content.TimelineItem `json:"items"`
	DateFormat string                  `json:"dateFormat,omitempty"`
}

// CardID is the element id of an item's card in the strip.
func CardID(itemID int) string { return "card-" + strconv.Itoa(itemID) }

// ZoneID is the element id of a content zone.
func ZoneID(z selection.Zone) string { return "zone-" + string(z) }

// View is one session. Its exported methods are safe to call from any
// goroutine; they hand work to the scheduler.
type View struct {
	sched  loop.Scheduler
	opts   Options
	logger *slog.Logger

	backend maphandler.Backend
	maps    *mapsync.Coordinator
	axis    *timeline.Engine
	sel     *selection.Machine
	urls    *urlstate.Service

	settings content.Settings
	items    []*content.TimelineItem
	signals  Signals
	pending  int
	started  bool

	outbox  chan Patch
	backlog []Patch
	retry   loop.Timer
	done    chan struct{}
	closed  bool
	cancels []func()
}

// New builds a view for snap on sched. Nothing is sent to the browser until
// Start.
func New(sched loop.Scheduler, snap content.Snapshot, opts Options) *View {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 1024
	}
	if opts.FitPadding <= 0 {
		opts.FitPadding = 50
	}
	if opts.Timeline.TickCount == 0 && !opts.Desktop {
		opts.Timeline.TickCount = 12
	}
	logger := opts.Logger.With("component", "view", "chronomap", opts.Slug)
	opts.Sync.Logger = logger
	opts.Timeline.Logger = logger
	opts.Selection.Logger = logger
	opts.URL.Logger = logger
	opts.Sync.DefaultView = snap.Settings.MapView

	v := &View{
		sched:    sched,
		opts:     opts,
		logger:   logger,
		settings: snap.Settings,
		signals:  Signals{MapMode: string(selection.ModeMedia)},
		outbox:   make(chan Patch, opts.OutboxSize),
		done:     make(chan struct{}),
	}

	v.backend = maphandler.New(maphandler.Config{
		AccessToken:      snap.Settings.MapboxKey,
		Style:            snap.Settings.MapStyle,
		BackgroundStyle:  snap.Settings.BackgroundMapStyle,
		StyleLayers:      snap.Layers,
		Background:       snap.Settings.MapBackground,
		BackgroundBounds: snap.Settings.MapBackgroundBound,
		Desktop:          opts.Desktop,
		FitPadding:       opts.FitPadding,
	}, maphandler.SurfaceFunc(func(cmd maphandler.Command) {
		v.emit(Patch{Map: &cmd})
	}))
	v.maps = mapsync.New(sched, v.backend, opts.Sync)
	v.axis = timeline.New(sched, opts.Timeline)
	v.urls = urlstate.New(sched, urlstate.RouterFunc(func(fragment string, replace bool) {
		v.emit(Patch{Navigate: &Navigation{Fragment: fragment, Replace: replace}})
	}), opts.URL)
	v.sel = selection.New(sched, v.axis, v.maps, layout{v}, v.urls, opts.Selection)

	v.setItems(snap.Items)
	v.wire()
	return v
}

func (v *View) wire() {
	v.cancels = append(v.cancels,
		v.axis.Changes().Subscribe(func(u stream.Update[timeline.ZoomChange]) {
			if u.Origin == stream.Local {
				v.urls.SetTimelineState(u.Value.State)
			}
		}),
		v.axis.Frames().Subscribe(func(f timeline.Frame) {
			v.emit(Patch{Frame: &f})
		}),
		v.axis.Selected().Subscribe(v.sel.Select),
		v.maps.ItemSelected().Subscribe(v.sel.Select),
		v.maps.ItemHovered().Subscribe(func(it *content.TimelineItem) {
			if it == nil {
				v.axis.SetHover(-1)
				return
			}
			v.axis.SetHover(it.Index)
		}),
		v.urls.Current().Subscribe(func(u stream.Update[urlstate.State]) {
			if u.Origin != stream.External {
				return
			}
			v.applyExternal(u.Value)
		}),
		v.sel.Selected().Subscribe(func(it *content.TimelineItem) {
			v.signals.SelectedItemID = 0
			if it != nil {
				v.signals.SelectedItemID = it.ID
			}
			v.pushSignals()
		}),
	)
}

func (v *View) applyExternal(st urlstate.State) {
	if st.TimelineState != "" {
		v.axis.ApplyExternal(st.TimelineState)
	}
	v.pending = 0
	if !v.sel.Goto(st.SelectedItemID) {
		// Items may not have loaded yet; select once they arrive.
		v.pending = st.SelectedItemID
	}
}

func (v *View) setItems(items []*content.ContentItem) {
	v.items = content.BuildTimeline(items)
	v.axis.SetItems(v.items)
	v.maps.SetItems(v.items)
	v.sel.SetItems(v.items)
	if v.pending != 0 && v.sel.Goto(v.pending) {
		v.pending = 0
	}
}

// Start creates the maps, lays out the timeline and loads state from the
// URL fragment the page was opened with. Only the first call has an effect.
func (v *View) Start(fragment string) {
	v.sched.Post(func() {
		if v.started || v.closed {
			return
		}
		v.started = true
		v.maps.Init()
		v.axis.Start()
		v.pushSignals()
		v.urls.InitFromURL(fragment)
	})
}

// Update replaces the content with a fresher snapshot.
func (v *View) Update(snap content.Snapshot) {
	v.sched.Post(func() {
		if v.closed {
			return
		}
		old := v.items
		v.settings = snap.Settings
		v.setItems(snap.Items)
		if v.started && !sameCards(old, v.items) {
			v.emit(Patch{Strip: &Strip{Items: v.items, DateFormat: v.settings.PostDateFormat}})
		}
	})
}

// sameCards reports whether a and b draw the same strip.
func sameCards(a, b []*content.TimelineItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Title != y.Title || x.Type != y.Type || x.Image != y.Image || !x.Time.Equal(y.Time) {
			return false
		}
	}
	return true
}

// Patches delivers updates for the browser. It is closed by Close.
func (v *View) Patches() <-chan Patch { return v.outbox }

// Done is closed once Close has run on the scheduler.
func (v *View) Done() <-chan struct{} { return v.done }

// Close stops every component and closes Patches.
func (v *View) Close() {
	v.sched.Post(func() {
		if v.closed {
			return
		}
		v.closed = true
		if v.retry != nil {
			v.retry.Stop()
		}
		v.backlog = nil
		for _, cancel := range v.cancels {
			cancel()
		}
		v.sel.Stop()
		v.axis.Stop()
		v.urls.Stop()
		v.maps.Close()
		close(v.outbox)
		close(v.done)
	})
}

// Settings returns the chronomap settings the view was built with.
func (v *View) Settings() content.Settings { return v.settings }

// Items returns the timeline items. Call on the scheduler.
func (v *View) Items() []*content.TimelineItem { return v.items }

// Coordinator, Timeline, Selection and URLState expose the components for
// inspection. Call their methods on the scheduler only.
func (v *View) Coordinator() *mapsync.Coordinator { return v.maps }
func (v *View) Timeline() *timeline.Engine       { return v.axis }
func (v *View) Selection() *selection.Machine    { return v.sel }
func (v *View) URLState() *urlstate.Service      { return v.urls }

// Signals returns the page state. Call on the scheduler.
func (v *View) Signals() Signals { return v.signals }

func (v *View) pushSignals() {
	s := v.signals
	v.emit(Patch{Signals: &s})
}

func (v *View) emit(p Patch) {
	if v.closed {
		return
	}
	v.flushBacklog()
	if len(v.backlog) == 0 {
		select {
		case v.outbox <- p:
			return
		default:
			v.logger.Warn("outbox full, queueing patches")
		}
	}
	if key := coalesceKey(p); key != "" {
		for i, q := range v.backlog {
			if coalesceKey(q) == key {
				v.backlog = append(v.backlog[:i], v.backlog[i+1:]...)
				break
			}
		}
	}
	v.backlog = append(v.backlog, p)
	v.scheduleRetry()
}

const backlogRetry = 20 * time.Millisecond

func (v *View) scheduleRetry() {
	if v.retry != nil {
		return
	}
	v.retry = v.sched.AfterFunc(backlogRetry, func() {
		v.retry = nil
		if v.closed {
			return
		}
		v.flushBacklog()
		if len(v.backlog) > 0 {
			v.scheduleRetry()
		}
	})
}

func (v *View) flushBacklog() {
	for len(v.backlog) > 0 {
		select {
		case v.outbox <- v.backlog[0]:
			v.backlog[0] = Patch{}
			v.backlog = v.backlog[1:]
		default:
			return
		}
	}
}

// coalesceKey names the patches where only the latest matters. Everything
// else is delivered in full.
func coalesceKey(p Patch) string {
	switch {
	case p.Frame != nil:
		return "frame"
	case p.Signals != nil:
		return "signals"
	case p.Strip != nil:
		return "strip"
	case p.Map != nil && (p.Map.Op == maphandler.OpJumpTo || p.Map.Op == maphandler.OpResize):
		return p.Map.Op + ":" + p.Map.Map
	}
	return ""
}

// layout is the selection machine's view of the page.
type layout struct{ v *View }

func (l layout) ScrollStripTo(item *content.TimelineItem, smooth bool) {
	l.v.emit(Patch{Scroll: &Scroll{Target: CardID(item.ID), Smooth: smooth, Inline: true}})
}

func (l layout) ScrollToZone(zone selection.Zone, smooth bool) {
	l.v.emit(Patch{Scroll: &Scroll{Target: ZoneID(zone), Smooth: smooth}})
}

func (l layout) SetDetailOpen(open bool) {
	l.v.signals.DetailOpen = open
	l.v.pushSignals()
}

func (l layout) SetContentVisible(visible bool) {
	l.v.signals.ContentVisible = visible
	l.v.pushSignals()
}

func (l layout) SetMapMode(mode selection.Mode) {
	l.v.signals.MapMode = string(mode)
	l.v.pushSignals()
	l.v.maps.Resize()
}

func (l layout) ArmZones(_ []selection.Zone, threshold float64) {
	l.v.signals.ZonesArmed = true
	l.v.signals.ZoneThreshold = threshold
	l.v.pushSignals()
}

func (l layout) DisarmZones() {
	l.v.signals.ZonesArmed = false
	l.v.pushSignals()
}
