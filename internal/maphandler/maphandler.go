// Package maphandler puts the two supported map libraries behind one
// capability interface. Backends never touch a real map: they keep a camera
// model per map and send Commands to a Surface (the browser), which applies
// them and reports library events back through HandleEvent.
package maphandler

import (
	"github.com/paulmach/orb"

	"github.com/joeblew999/chronomaps/internal/geoview"
)

// Kind names a backend.
type Kind string

const (
	KindVector Kind = "vector"
	KindRaster Kind = "raster"
)

// Role distinguishes the maps a view owns.
type Role string

const (
	RoleBase     Role = "base"
	RoleDetail   Role = "detail"
	RoleSelector Role = "selector"
)

// Backend is the capability set every map library must provide. Calls that
// target a removed or nil map are no-ops.
type Backend interface {
	Kind() Kind
	CreateMaps() (base, detail *Map)
	Resize(m *Map)
	FlyTo(m *Map, opts geoview.FlyToOptions)
	JumpTo(m *Map, opts geoview.FlyToOptions)
	FitBounds(m *Map, b orb.Bound)
	ApplyLayerVisibility(m *Map, on, off []string)
	CreateMarker(el MarkerElement, at geoview.LatLon, m *Map) *Marker
	RemoveMarker(mk *Marker)
	CreateSelectorMap(element string, pos geoview.FlyToOptions, interactive bool) *Map
	RemoveMap(m *Map)
	// HandleEvent applies an event reported by the surface.
	HandleEvent(ev MapEvent)
}

// Command is one instruction for the rendering surface.
type Command struct {
	Op      string                `json:"op"`
	Map     string                `json:"map"`
	Backend Kind                  `json:"backend"`
	Options *geoview.FlyToOptions `json:"options,omitempty"`
	Bounds  *[2][2]float64        `json:"bounds,omitempty"` // [[minLon,minLat],[maxLon,maxLat]]
	Layers  map[string]bool       `json:"layers,omitempty"`
	Marker  *MarkerElement        `json:"marker,omitempty"`
	At      *geoview.LatLon       `json:"at,omitempty"`
	Setup   map[string]any        `json:"setup,omitempty"`
}

// Command ops.
const (
	OpCreate       = "create"
	OpRemove       = "remove"
	OpResize       = "resize"
	OpFlyTo        = "flyTo"
	OpJumpTo       = "jumpTo"
	OpFitBounds    = "fitBounds"
	OpLayers       = "layers"
	OpAddMarker    = "addMarker"
	OpRemoveMarker = "removeMarker"
)

// Surface receives commands.
type Surface interface {
	Send(cmd Command)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(Command)

// Send calls f.
func (f SurfaceFunc) Send(cmd Command) { f(cmd) }

// Event types reported by the surface.
const (
	EventMove        = "move"
	EventMoveEnd     = "moveend"
	EventResize      = "resize"
	EventMarkerClick = "marker-click"
	EventMarkerEnter = "marker-enter"
	EventMarkerLeave = "marker-leave"
)

// MapEvent is a map library event forwarded by the surface.
type MapEvent struct {
	Type   string                `json:"type"`
	Map    string                `json:"map,omitempty"`
	Marker string                `json:"marker,omitempty"`
	Camera *geoview.FlyToOptions `json:"camera,omitempty"`
	Width  float64               `json:"width,omitempty"`
	Height float64               `json:"height,omitempty"`
}

// Config carries the per-chronomap settings that pick and shape a backend.
type Config struct {
	AccessToken      string
	Style            string // detail map style (vector) or tile URL (raster)
	BackgroundStyle  string // base map style (vector)
	StyleLayers      []string
	Background       string // raster image overlay
	BackgroundBounds string // "a,b,c,d"
	Desktop          bool
	MinZoom          float64
	FitPadding       float64
}

// New picks a backend: vector when an access token is configured, raster
// otherwise.
func New(cfg Config, surface Surface) Backend {
	if cfg.AccessToken != "" {
		return NewVector(cfg, surface)
	}
	return NewRaster(cfg, surface)
}

// KindFor reports which backend New would build.
func KindFor(cfg Config) Kind {
	if cfg.AccessToken != "" {
		return KindVector
	}
	return KindRaster
}
