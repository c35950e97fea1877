package templates

import (
	"github.com/joeblew999/chronomaps/internal/timeline"
)

// TimelineID is the element id of the timeline SVG.
const TimelineID = "timeline"

// TimelineData is a frame positioned for drawing.
type TimelineData struct {
	timeline.Frame
	// AxisY is the baseline the ticks grow up from.
	AxisY float64
	// LabelY is the baseline of tick labels, relative to AxisY.
	LabelY float64
	// HoverY is the baseline of the hover title.
	HoverY float64
}

// NewTimelineData lays out f.
func NewTimelineData(f timeline.Frame) TimelineData {
	return TimelineData{
		Frame:  f,
		AxisY:  f.Height - timeline.TextHeight,
		LabelY: timeline.TextHeight - 4,
		HoverY: timeline.HoverHeight / 2,
	}
}

// Timeline renders the SVG of f.
func (r *Renderer) Timeline(f timeline.Frame) (string, error) {
	return r.Render("timeline", NewTimelineData(f))
}
