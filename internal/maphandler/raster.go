package maphandler

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/joeblew999/chronomaps/internal/geoview"
)

const (
	rasterMaxZoom     = 18
	rasterMarkerSize  = 32
	osmTileURL        = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	osmAttribution    = "&copy; OpenStreetMap contributors"
	selectorStartZoom = 3
)

// rasterMaxBounds limits panning on the Simple CRS plane, [[lat,lng],[lat,lng]].
var rasterMaxBounds = [2][2]float64{{-1, -1}, {1, 2}}

// Raster drives a raster-tile library on a flat Simple CRS with an optional
// image background. It has no bearing, pitch or style layers.
type Raster struct {
	registry
	cfg Config
}

// NewRaster creates a raster backend.
func NewRaster(cfg Config, surface Surface) *Raster {
	if cfg.MinZoom == 0 {
		cfg.MinZoom = 3
	}
	return &Raster{registry: newRegistry(KindRaster, surface), cfg: cfg}
}

// Kind returns KindRaster.
func (r *Raster) Kind() Kind { return KindRaster }

// CreateMaps creates the base and detail maps.
func (r *Raster) CreateMaps() (*Map, *Map) {
	start := geoview.FlyToOptions{Center: &geoview.LatLon{}, Zoom: geoview.Float(r.cfg.MinZoom)}
	base := r.add(newMap(string(RoleBase), RoleBase, start))
	detail := r.add(newMap(string(RoleDetail), RoleDetail, start))

	for _, m := range []*Map{base, detail} {
		setup := map[string]any{
			"crs":       "simple",
			"maxBounds": rasterMaxBounds,
			"minZoom":   r.cfg.MinZoom,
		}
		if r.cfg.Style != "" {
			setup["tiles"] = r.cfg.Style
		}
		if bg, ok := ParseBackgroundBounds(r.cfg.BackgroundBounds); ok && r.cfg.Background != "" {
			setup["image"] = r.cfg.Background
			setup["imageBounds"] = bg
		}
		r.send(Command{Op: OpCreate, Map: m.ID, Options: &start, Setup: setup})
	}
	return base, detail
}

// Resize asks the surface to invalidate the map size.
func (r *Raster) Resize(m *Map) {
	if m.Removed() {
		return
	}
	r.send(Command{Op: OpResize, Map: m.ID})
}

// FlyTo animates m. Missing fields keep m's current camera.
func (r *Raster) FlyTo(m *Map, opts geoview.FlyToOptions) {
	if m.Removed() {
		return
	}
	full := flatten(geoview.Merge(m.Camera(), opts))
	m.camera = full.Camera()
	r.send(Command{Op: OpFlyTo, Map: m.ID, Options: &full})
}

// JumpTo is FlyTo without animation; the library reports the move
// synchronously.
func (r *Raster) JumpTo(m *Map, opts geoview.FlyToOptions) {
	if m.Removed() {
		return
	}
	full := flatten(geoview.Merge(m.Camera(), opts.Camera()))
	full.Animate = geoview.Bool(false)
	m.jumped(full.Camera())
	r.send(Command{Op: OpJumpTo, Map: m.ID, Options: &full})
	m.moved(full)
	m.moveEnded()
}

// FitBounds frames b on m without animation. The zoom snaps down to a whole
// level as the library does.
func (r *Raster) FitBounds(m *Map, b orb.Bound) {
	if m.Removed() {
		return
	}
	pad := fitPadding(r.cfg)
	availW := math.Max(m.Width-2*pad, 1)
	availH := math.Max(m.Height-2*pad, 1)

	zoom := float64(rasterMaxZoom)
	if dx := b.Max.Lon() - b.Min.Lon(); dx > 0 {
		zoom = math.Min(zoom, math.Log2(availW/dx))
	}
	if dy := b.Max.Lat() - b.Min.Lat(); dy > 0 {
		zoom = math.Min(zoom, math.Log2(availH/dy))
	}
	zoom = math.Max(math.Floor(zoom), r.cfg.MinZoom)
	center := geoview.FromPoint(b.Center())

	bounds := [2][2]float64{{b.Min.Lon(), b.Min.Lat()}, {b.Max.Lon(), b.Max.Lat()}}
	padding := geoview.Uniform(pad)
	r.send(Command{Op: OpFitBounds, Map: m.ID, Bounds: &bounds, Options: &geoview.FlyToOptions{
		Padding: &padding,
		Animate: geoview.Bool(false),
	}})
	m.moved(geoview.FlyToOptions{Center: &center, Zoom: geoview.Float(zoom)})
	m.moveEnded()
}

// ApplyLayerVisibility does nothing: raster maps have no style layers.
func (r *Raster) ApplyLayerVisibility(*Map, []string, []string) {}

// CreateMarker places a fixed-size div icon.
func (r *Raster) CreateMarker(el MarkerElement, at geoview.LatLon, m *Map) *Marker {
	el.Width, el.Height = rasterMarkerSize, rasterMarkerSize
	return r.addMarker(el, at, m)
}

// RemoveMarker removes a marker.
func (r *Raster) RemoveMarker(mk *Marker) { r.removeMarker(mk) }

// CreateSelectorMap builds the picker map on OpenStreetMap tiles.
func (r *Raster) CreateSelectorMap(element string, pos geoview.FlyToOptions, interactive bool) *Map {
	start := geoview.Merge(geoview.FlyToOptions{
		Center: &geoview.LatLon{},
		Zoom:   geoview.Float(selectorStartZoom),
	}, flatten(pos))
	m := r.add(newMap(r.nextSelectorID(), RoleSelector, start))
	m.interactive = interactive

	cam := m.Camera()
	r.send(Command{Op: OpCreate, Map: m.ID, Options: &cam, Setup: map[string]any{
		"element":     element,
		"tiles":       osmTileURL,
		"attribution": osmAttribution,
		"maxZoom":     19,
		"interactive": interactive,
	}})
	return m
}

// RemoveMap tears a map down.
func (r *Raster) RemoveMap(m *Map) { r.removeMap(m) }

// HandleEvent applies a surface event.
func (r *Raster) HandleEvent(ev MapEvent) {
	if r.dispatch(ev) {
		return
	}
	m, ok := r.lookup(ev.Map)
	if !ok {
		return
	}
	switch ev.Type {
	case EventMove:
		if ev.Camera != nil {
			m.surfaceMoved(flatten(*ev.Camera))
		}
	case EventMoveEnd:
		if ev.Camera != nil {
			m.camera = geoview.Merge(m.camera, flatten(ev.Camera.Camera())).Camera()
		}
		m.moveEnded()
	}
}

// flatten drops bearing and pitch.
func flatten(o geoview.FlyToOptions) geoview.FlyToOptions {
	o.Bearing = nil
	o.Pitch = nil
	return o
}

// ParseBackgroundBounds reads "a,b,c,d" into [[a,b],[c,d]].
func ParseBackgroundBounds(s string) ([2][2]float64, bool) {
	var out [2][2]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return out, false
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, false
		}
		vals[i] = v
	}
	out[0] = [2]float64{vals[0], vals[1]}
	out[1] = [2]float64{vals[2], vals[3]}
	return out, true
}
