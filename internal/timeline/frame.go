package timeline

import "time"

// Frame is everything the surface needs to draw the axis once.
type Frame struct {
	Width      float64       `json:"width"`
	Height     float64       `json:"height"`
	Ticks      []Tick        `json:"ticks"`
	Points     []Point       `json:"points"`
	Hover      *Hover        `json:"hover,omitempty"`
	State      string        `json:"state"`
	Transition time.Duration `json:"transition"`
}

// Tick is one axis tick. Only long ticks carry a label.
type Tick struct {
	X     float64   `json:"x"`
	Value time.Time `json:"value"`
	Long  bool      `json:"long"`
	Label string    `json:"label,omitempty"`
}

// Point is one item marker. Clustered items share X and are drawn as a
// numbered badge.
type Point struct {
	ID        int     `json:"id"`
	Index     int     `json:"index"`
	X         float64 `json:"x"`
	CX        float64 `json:"cx"`
	CY        float64 `json:"cy"`
	Radius    float64 `json:"r"`
	Clustered int     `json:"clustered"`
	Hovered   bool    `json:"hovered"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
}

// Single reports whether the point is drawn as a plain icon.
func (p Point) Single() bool { return p.Clustered <= 1 }

// Hover is the floating title of the highlighted item.
type Hover struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Title string  `json:"title"`
}

// TickY is the length of a tick line, negative because ticks point up.
func (t Tick) TickY() float64 {
	if t.Long {
		return -TickHeight
	}
	return -TickHeightInner
}
