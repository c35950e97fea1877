// Package urlstate holds the {timeline state, selected item} pair of a view
// and mirrors it into the URL fragment.
package urlstate

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/joeblew999/chronomaps/internal/loop"
	"github.com/joeblew999/chronomaps/internal/stream"
	"github.com/joeblew999/chronomaps/internal/telemetry"
)

const separator = "//"

// State is what the URL fragment encodes. SelectedItemID is zero when no
// item is selected.
type State struct {
	TimelineState  string `json:"timelineState"`
	SelectedItemID int    `json:"selectedItemId,omitempty"`
}

// Fragment renders s as `timelineState[//selectedItemId]`.
func (s State) Fragment() string {
	if s.SelectedItemID == 0 {
		return s.TimelineState
	}
	return s.TimelineState + separator + strconv.Itoa(s.SelectedItemID)
}

// ParseFragment reads a fragment written by Fragment. A leading '#' is
// ignored and an unparsable id means no selection.
func ParseFragment(fragment string) State {
	fragment = strings.TrimPrefix(fragment, "#")
	ts, rest, found := strings.Cut(fragment, separator)
	st := State{TimelineState: ts}
	if found {
		if id, err := strconv.Atoi(rest); err == nil && id > 0 {
			st.SelectedItemID = id
		}
	}
	return st
}

// Router applies fragments to the browser location. Replace rewrites the
// current history entry; otherwise a new entry is pushed.
type Router interface {
	Navigate(fragment string, replace bool)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(fragment string, replace bool)

// Navigate calls f.
func (f RouterFunc) Navigate(fragment string, replace bool) { f(fragment, replace) }

type write int

const (
	writeNone write = iota
	writeReplace
	writePush
)

// Options tunes a Service.
type Options struct {
	// Debounce is how long timeline changes must be quiet before the
	// fragment is replaced.
	Debounce time.Duration
	Logger   *slog.Logger
}

// Service is scoped to one view. Every method must be called on the view's
// scheduler goroutine.
type Service struct {
	sched  loop.Scheduler
	router Router
	logger *slog.Logger

	timelineState string
	selectedID    int

	last    State
	hasLast bool

	current *stream.Replay[stream.Update[State]]
	replace *stream.Debouncer[string]
	writes  metric.Int64Counter
}

// New creates a service writing through router.
func New(sched loop.Scheduler, router Router, opts Options) *Service {
	if opts.Debounce <= 0 {
		opts.Debounce = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Service{
		sched:   sched,
		router:  router,
		logger:  opts.Logger.With("component", "urlstate"),
		current: stream.NewReplay[stream.Update[State]](),
		writes:  telemetry.Counter("chronomaps.urlstate.writes", "URL fragment writes"),
	}
	s.replace = stream.NewDebouncer(sched, opts.Debounce, func(fragment string) {
		s.navigate(fragment, true)
	})
	return s
}

// Current publishes every distinct state. Updates that came from the URL
// are tagged External.
func (s *Service) Current() *stream.Replay[stream.Update[State]] { return s.current }

// State returns the fields as last set, including changes not yet
// published.
func (s *Service) State() State {
	return State{TimelineState: s.timelineState, SelectedItemID: s.selectedID}
}

// SetTimelineState records a timeline zoom state. The fragment is replaced
// once changes stop for the debounce period.
func (s *Service) SetTimelineState(state string) {
	s.timelineState = state
	s.push(s.State(), stream.Local, writeReplace)
}

// SetSelectedItemID records the selected item. The fragment is pushed as a
// new history entry right away.
func (s *Service) SetSelectedItemID(id int) {
	s.selectedID = id
	s.push(s.State(), stream.Local, writePush)
}

// InitFromURL loads state from a fragment on first load or navigation. It
// never writes the URL back.
func (s *Service) InitFromURL(fragment string) {
	st := ParseFragment(fragment)
	s.timelineState, s.selectedID = st.TimelineState, st.SelectedItemID
	s.push(st, stream.External, writeNone)
}

// Stop drops a pending fragment write.
func (s *Service) Stop() { s.replace.Stop() }

func (s *Service) push(st State, origin stream.Origin, w write) {
	s.sched.Post(func() {
		if s.hasLast && st == s.last {
			return
		}
		s.last, s.hasLast = st, true
		s.current.Publish(stream.Update[State]{Value: st, Origin: origin})

		switch w {
		case writePush:
			s.replace.Stop()
			s.navigate(st.Fragment(), false)
		case writeReplace:
			s.replace.Push(st.Fragment())
		}
	})
}

func (s *Service) navigate(fragment string, replace bool) {
	s.logger.Debug("navigate", "fragment", fragment, "replace", replace)
	telemetry.Inc(s.writes)
	s.router.Navigate(fragment, replace)
}
