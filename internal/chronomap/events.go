package chronomap

import (
	"fmt"

	"github.com/joeblew999/chronomaps/internal/maphandler"
	"github.com/joeblew999/chronomaps/internal/selection"
)

// Browser event types.
const (
	EventMap               = "map"
	EventTimelineClick     = "timeline-click"
	EventTimelineEnter     = "timeline-enter"
	EventTimelineLeave     = "timeline-leave"
	EventTimelineWheel     = "timeline-wheel"
	EventTimelinePan       = "timeline-pan"
	EventTimelineZoom      = "timeline-zoom"
	EventScrollEnd         = "scrollend"
	EventTransitionEnd     = "transitionend"
	EventIntersect         = "intersect"
	EventActivate          = "activate"
	EventSelect            = "select"
	EventNavigate          = "navigate"
	EventResize            = "resize"
	EventToggleMap         = "toggle-map"
	EventToggleDescription = "toggle-description"
)

// Event is something that happened in the browser.
type Event struct {
	Type string `json:"type" enum:"map,timeline-click,timeline-enter,timeline-leave,timeline-wheel,timeline-pan,timeline-zoom,scrollend,transitionend,intersect,activate,select,navigate,resize,toggle-map,toggle-description"`

	Map *maphandler.MapEvent `json:"map,omitempty" doc:"Map library event, for type map"`

	Index    int     `json:"index,omitempty" doc:"Timeline point index"`
	ItemID   int     `json:"itemId,omitempty" doc:"Item id for select and activate; 0 deselects"`
	DeltaY   float64 `json:"deltaY,omitempty"`
	X        float64 `json:"x,omitempty"`
	DX       float64 `json:"dx,omitempty"`
	K        float64 `json:"k,omitempty" doc:"Zoom factor for timeline-zoom"`
	Zone     string  `json:"zone,omitempty" enum:"media,description,map-filler"`
	Ratio    float64 `json:"ratio,omitempty"`
	Fragment string  `json:"fragment,omitempty"`
	Width    float64 `json:"width,omitempty" doc:"Timeline width in pixels, for resize"`
}

// Validate rejects events that cannot be dispatched.
func (e Event) Validate() error {
	switch e.Type {
	case EventMap:
		if e.Map == nil {
			return fmt.Errorf("%s event without map payload", e.Type)
		}
	case EventTimelineClick, EventTimelineEnter, EventTimelineLeave, EventTimelineWheel,
		EventTimelinePan, EventTimelineZoom, EventScrollEnd, EventTransitionEnd,
		EventIntersect, EventActivate, EventSelect, EventNavigate, EventResize,
		EventToggleMap, EventToggleDescription:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// HandleEvent queues ev for the scheduler.
func (v *View) HandleEvent(ev Event) {
	v.sched.Post(func() {
		if v.closed {
			return
		}
		v.dispatch(ev)
	})
}

func (v *View) dispatch(ev Event) {
	switch ev.Type {
	case EventMap:
		if ev.Map != nil {
			v.maps.HandleEvent(*ev.Map)
		}
	case EventTimelineClick:
		v.axis.Click(ev.Index)
	case EventTimelineEnter:
		v.axis.PointerEnter(ev.Index)
	case EventTimelineLeave:
		v.axis.PointerLeave(ev.Index)
	case EventTimelineWheel:
		v.axis.Wheel(ev.DeltaY, ev.X)
	case EventTimelinePan:
		v.axis.Pan(ev.DX)
	case EventTimelineZoom:
		v.axis.ZoomBy(ev.K)
	case EventScrollEnd:
		v.sel.ScrollEnded()
	case EventTransitionEnd:
		v.sel.TransitionEnded()
	case EventIntersect:
		v.sel.Intersected(selection.Zone(ev.Zone), ev.Ratio)
	case EventActivate:
		v.sel.Activate(v.sel.Lookup(ev.ItemID))
	case EventSelect:
		if ev.ItemID == 0 {
			v.sel.Select(nil)
			return
		}
		if it := v.sel.Lookup(ev.ItemID); it != nil {
			v.sel.Select(it)
		}
	case EventNavigate:
		v.urls.InitFromURL(ev.Fragment)
	case EventResize:
		v.maps.Resize()
		if ev.Width > 0 {
			v.axis.Resize(ev.Width)
		}
	case EventToggleMap:
		v.sel.ToggleMapMode()
	case EventToggleDescription:
		v.sel.ToggleDescriptionMode()
	default:
		v.logger.Debug("ignoring event", "type", ev.Type)
	}
}
