package maphandler

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/joeblew999/chronomaps/internal/geoview"
)

const (
	vectorTileSize = 512
	vectorMaxZoom  = 22
	earthRadius    = 6378137.0
	maxMercatorLat = 85.051129
)

// Vector drives a hosted vector-tile map service. It supports bearing,
// pitch, per-layer visibility and a geocoder on the selector map.
type Vector struct {
	registry
	cfg  Config
	base *Map
}

// NewVector creates a vector backend.
func NewVector(cfg Config, surface Surface) *Vector {
	if cfg.MinZoom == 0 {
		cfg.MinZoom = 3
	}
	return &Vector{registry: newRegistry(KindVector, surface), cfg: cfg}
}

// Kind returns KindVector.
func (v *Vector) Kind() Kind { return KindVector }

// CreateMaps creates the base and detail maps.
func (v *Vector) CreateMaps() (*Map, *Map) {
	start := geoview.FlyToOptions{
		Center:  &geoview.LatLon{},
		Zoom:    geoview.Float(v.cfg.MinZoom),
		Bearing: geoview.Float(0),
		Pitch:   geoview.Float(0),
	}
	base := v.add(newMap(string(RoleBase), RoleBase, start))
	detail := v.add(newMap(string(RoleDetail), RoleDetail, start))
	v.base = base

	v.send(Command{Op: OpCreate, Map: base.ID, Options: &start, Setup: map[string]any{
		"token":       v.cfg.AccessToken,
		"style":       v.cfg.BackgroundStyle,
		"minZoom":     v.cfg.MinZoom,
		"attribution": false,
		"navigation":  v.cfg.Desktop,
	}})
	v.send(Command{Op: OpCreate, Map: detail.ID, Options: &start, Setup: map[string]any{
		"token":       v.cfg.AccessToken,
		"style":       v.cfg.Style,
		"minZoom":     v.cfg.MinZoom,
		"attribution": false,
	}})
	return base, detail
}

// Resize asks the surface to re-measure the map.
func (v *Vector) Resize(m *Map) {
	if m.Removed() {
		return
	}
	v.send(Command{Op: OpResize, Map: m.ID})
}

// FlyTo animates m. Camera fields missing from opts are taken from the base
// map.
func (v *Vector) FlyTo(m *Map, opts geoview.FlyToOptions) {
	if m.Removed() {
		return
	}
	full := geoview.Merge(v.base.Camera(), opts)
	m.camera = full.Camera()
	v.send(Command{Op: OpFlyTo, Map: m.ID, Options: &full})
}

// JumpTo moves m without animation. The library reports move and moveend
// synchronously, so the handlers run before JumpTo returns.
func (v *Vector) JumpTo(m *Map, opts geoview.FlyToOptions) {
	if m.Removed() {
		return
	}
	cam := opts.Camera()
	m.jumped(cam)
	v.send(Command{Op: OpJumpTo, Map: m.ID, Options: &cam})
	m.moved(cam)
	m.moveEnded()
}

// FitBounds frames b on m without animation.
func (v *Vector) FitBounds(m *Map, b orb.Bound) {
	if m.Removed() {
		return
	}
	center, zoom := mercatorFit(b, m.Width, m.Height, v.fitPadding(), v.cfg.MinZoom)
	bounds := [2][2]float64{{b.Min.Lon(), b.Min.Lat()}, {b.Max.Lon(), b.Max.Lat()}}
	pad := geoview.Uniform(v.fitPadding())
	v.send(Command{Op: OpFitBounds, Map: m.ID, Bounds: &bounds, Options: &geoview.FlyToOptions{
		Padding: &pad,
		Animate: geoview.Bool(false),
	}})
	m.moved(geoview.FlyToOptions{Center: &center, Zoom: geoview.Float(zoom)})
	m.moveEnded()
}

// ApplyLayerVisibility shows on and hides off, skipping layers the style
// does not contain.
func (v *Vector) ApplyLayerVisibility(m *Map, on, off []string) {
	if m.Removed() {
		return
	}
	changes := map[string]bool{}
	for _, name := range on {
		if v.hasLayer(name) {
			changes[name] = true
		}
	}
	for _, name := range off {
		if v.hasLayer(name) {
			changes[name] = false
		}
	}
	if len(changes) == 0 {
		return
	}
	for name, visible := range changes {
		m.layers[name] = visible
	}
	v.send(Command{Op: OpLayers, Map: m.ID, Layers: changes})
}

// CreateMarker places an element at a coordinate.
func (v *Vector) CreateMarker(el MarkerElement, at geoview.LatLon, m *Map) *Marker {
	return v.addMarker(el, at, m)
}

// RemoveMarker removes a marker.
func (v *Vector) RemoveMarker(mk *Marker) { v.removeMarker(mk) }

// CreateSelectorMap builds the auxiliary picker map.
func (v *Vector) CreateSelectorMap(element string, pos geoview.FlyToOptions, interactive bool) *Map {
	m := v.add(newMap(v.nextSelectorID(), RoleSelector, pos))
	m.interactive = interactive
	setup := map[string]any{
		"element":     element,
		"token":       v.cfg.AccessToken,
		"style":       v.cfg.BackgroundStyle,
		"interactive": interactive,
		"attribution": false,
	}
	if interactive {
		setup["geocoder"] = true
		setup["navigation"] = true
	}
	cam := m.Camera()
	v.send(Command{Op: OpCreate, Map: m.ID, Options: &cam, Setup: setup})
	return m
}

// RemoveMap tears a map down.
func (v *Vector) RemoveMap(m *Map) { v.removeMap(m) }

// HandleEvent applies a surface event.
func (v *Vector) HandleEvent(ev MapEvent) {
	if v.dispatch(ev) {
		return
	}
	m, ok := v.lookup(ev.Map)
	if !ok {
		return
	}
	switch ev.Type {
	case EventMove:
		if ev.Camera != nil {
			m.surfaceMoved(*ev.Camera)
		}
	case EventMoveEnd:
		if ev.Camera != nil {
			m.camera = geoview.Merge(m.camera, ev.Camera.Camera()).Camera()
		}
		m.moveEnded()
	}
}

func (v *Vector) hasLayer(name string) bool {
	if len(v.cfg.StyleLayers) == 0 {
		return true
	}
	for _, l := range v.cfg.StyleLayers {
		if l == name {
			return true
		}
	}
	return false
}

func (v *Vector) fitPadding() float64 {
	return fitPadding(v.cfg)
}

// mercatorFit returns the camera that frames b inside a width x height
// viewport with uniform padding.
func mercatorFit(b orb.Bound, width, height, padding, minZoom float64) (geoview.LatLon, float64) {
	lo := project.WGS84.ToMercator(clampLat(b.Min))
	hi := project.WGS84.ToMercator(clampLat(b.Max))

	availW := math.Max(width-2*padding, 1)
	availH := math.Max(height-2*padding, 1)
	world := 2 * math.Pi * earthRadius

	zoom := float64(vectorMaxZoom)
	if dx := hi[0] - lo[0]; dx > 0 {
		zoom = math.Min(zoom, math.Log2(availW*world/(dx*vectorTileSize)))
	}
	if dy := hi[1] - lo[1]; dy > 0 {
		zoom = math.Min(zoom, math.Log2(availH*world/(dy*vectorTileSize)))
	}
	zoom = math.Max(zoom, minZoom)

	mid := orb.Point{(lo[0] + hi[0]) / 2, (lo[1] + hi[1]) / 2}
	return geoview.FromPoint(project.Mercator.ToWGS84(mid)), zoom
}

func clampLat(p orb.Point) orb.Point {
	return orb.Point{p[0], math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p[1]))}
}

func fitPadding(cfg Config) float64 {
	if cfg.FitPadding > 0 {
		return cfg.FitPadding
	}
	return 50
}
