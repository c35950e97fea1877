package maphandler

import (
	"fmt"
	"math"

	"github.com/joeblew999/chronomaps/internal/geoview"
)

// Map is a handle to one map instance and its camera model.
type Map struct {
	ID     string
	Role   Role
	Width  float64
	Height float64

	camera      geoview.FlyToOptions
	removed     bool
	interactive bool
	layers      map[string]bool
	onMove      []func(geoview.FlyToOptions)
	onMoveEnd   []func()

	// jumps holds cameras sent with JumpTo whose move events the surface
	// has not reported back yet.
	jumps []geoview.FlyToOptions
}

const maxPendingJumps = 16

func newMap(id string, role Role, camera geoview.FlyToOptions) *Map {
	return &Map{
		ID:          id,
		Role:        role,
		Width:       1024,
		Height:      768,
		camera:      camera.Camera(),
		interactive: true,
		layers:      map[string]bool{},
	}
}

// Camera returns the last known camera.
func (m *Map) Camera() geoview.FlyToOptions {
	if m == nil {
		return geoview.FlyToOptions{}
	}
	return m.camera
}

// Removed reports whether the map has been torn down.
func (m *Map) Removed() bool { return m == nil || m.removed }

// Interactive reports whether the user can move the map.
func (m *Map) Interactive() bool { return m != nil && m.interactive }

// LayerVisible reports a layer's visibility and whether it was ever set.
func (m *Map) LayerVisible(name string) (visible, known bool) {
	if m == nil {
		return false, false
	}
	visible, known = m.layers[name]
	return visible, known
}

// OnMove registers a handler for camera movement.
func (m *Map) OnMove(fn func(geoview.FlyToOptions)) {
	if m != nil {
		m.onMove = append(m.onMove, fn)
	}
}

// OnMoveEnd registers a handler for the end of a movement.
func (m *Map) OnMoveEnd(fn func()) {
	if m != nil {
		m.onMoveEnd = append(m.onMoveEnd, fn)
	}
}

func (m *Map) moved(cam geoview.FlyToOptions) {
	m.camera = geoview.Merge(m.camera, cam.Camera()).Camera()
	for _, fn := range m.onMove {
		if m.removed {
			return
		}
		fn(m.camera)
	}
}

// jumped records a camera the surface will echo back as a move event.
func (m *Map) jumped(cam geoview.FlyToOptions) {
	if len(m.jumps) == maxPendingJumps {
		m.jumps = m.jumps[1:]
	}
	m.jumps = append(m.jumps, cam)
}

// echo reports whether cam is the surface reporting one of our own jumps.
// The matched jump and any older ones are forgotten.
func (m *Map) echo(cam geoview.FlyToOptions) bool {
	for i, j := range m.jumps {
		if sameCamera(j, cam) {
			m.jumps = m.jumps[i+1:]
			m.camera = geoview.Merge(m.camera, cam.Camera()).Camera()
			return true
		}
	}
	return false
}

// surfaceMoved applies a move reported by the surface. Echoes of JumpTo
// update the camera without notifying, so mirrored maps do not bounce.
func (m *Map) surfaceMoved(cam geoview.FlyToOptions) {
	if m.echo(cam) {
		return
	}
	m.moved(cam)
}

const cameraTolerance = 1e-6

// sameCamera compares the fields set on want against got.
func sameCamera(want, got geoview.FlyToOptions) bool {
	if want.Center != nil {
		if got.Center == nil || !near(want.Center.Lat, got.Center.Lat) || !near(want.Center.Lon, got.Center.Lon) {
			return false
		}
	}
	for _, f := range [][2]*float64{{want.Zoom, got.Zoom}, {want.Bearing, got.Bearing}, {want.Pitch, got.Pitch}} {
		if f[0] != nil && (f[1] == nil || !near(*f[0], *f[1])) {
			return false
		}
	}
	return true
}

func near(a, b float64) bool { return math.Abs(a-b) <= cameraTolerance }

func (m *Map) moveEnded() {
	for _, fn := range m.onMoveEnd {
		if m.removed {
			return
		}
		fn()
	}
}

// MarkerElement describes what the surface should draw for a marker.
type MarkerElement struct {
	ID     string `json:"id"`
	ItemID int    `json:"itemId"`
	Index  int    `json:"index"`
	Kind   string `json:"kind,omitempty"`
	Title  string `json:"title,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Marker is a placed marker.
type Marker struct {
	Element MarkerElement
	At      geoview.LatLon
	Map     *Map

	removed bool
	onClick []func()
	onHover []func(entered bool)
}

// OnClick registers a click handler.
func (mk *Marker) OnClick(fn func()) {
	if mk != nil {
		mk.onClick = append(mk.onClick, fn)
	}
}

// OnHover registers a handler called with true on enter and false on leave.
func (mk *Marker) OnHover(fn func(entered bool)) {
	if mk != nil {
		mk.onHover = append(mk.onHover, fn)
	}
}

// Removed reports whether the marker is gone.
func (mk *Marker) Removed() bool { return mk == nil || mk.removed }

// registry tracks live maps and markers for event routing.
type registry struct {
	kind      Kind
	surface   Surface
	maps      map[string]*Map
	markers   map[string]*Marker
	selectors int
}

func newRegistry(kind Kind, surface Surface) registry {
	if surface == nil {
		surface = SurfaceFunc(func(Command) {})
	}
	return registry{
		kind:    kind,
		surface: surface,
		maps:    map[string]*Map{},
		markers: map[string]*Marker{},
	}
}

func (r *registry) send(cmd Command) {
	cmd.Backend = r.kind
	r.surface.Send(cmd)
}

func (r *registry) add(m *Map) *Map {
	r.maps[m.ID] = m
	return m
}

func (r *registry) nextSelectorID() string {
	r.selectors++
	return fmt.Sprintf("selector-%d", r.selectors)
}

func (r *registry) removeMap(m *Map) {
	if m.Removed() {
		return
	}
	for id, mk := range r.markers {
		if mk.Map == m {
			mk.removed = true
			delete(r.markers, id)
		}
	}
	m.removed = true
	delete(r.maps, m.ID)
	r.send(Command{Op: OpRemove, Map: m.ID})
}

func (r *registry) addMarker(el MarkerElement, at geoview.LatLon, m *Map) *Marker {
	if m.Removed() {
		return nil
	}
	if el.ID == "" {
		el.ID = fmt.Sprintf("%s-marker-%d", m.ID, el.ItemID)
	}
	if old, ok := r.markers[el.ID]; ok {
		r.removeMarker(old)
	}
	mk := &Marker{Element: el, At: at, Map: m}
	r.markers[el.ID] = mk
	r.send(Command{Op: OpAddMarker, Map: m.ID, Marker: &el, At: &at})
	return mk
}

func (r *registry) removeMarker(mk *Marker) {
	if mk.Removed() {
		return
	}
	mk.removed = true
	delete(r.markers, mk.Element.ID)
	if !mk.Map.Removed() {
		el := mk.Element
		r.send(Command{Op: OpRemoveMarker, Map: mk.Map.ID, Marker: &el})
	}
}

// dispatch routes marker and resize events. It reports whether the event
// was consumed.
func (r *registry) dispatch(ev MapEvent) bool {
	switch ev.Type {
	case EventMarkerClick, EventMarkerEnter, EventMarkerLeave:
		mk, ok := r.markers[ev.Marker]
		if !ok || mk.Removed() {
			return true
		}
		switch ev.Type {
		case EventMarkerClick:
			for _, fn := range mk.onClick {
				fn()
			}
		default:
			entered := ev.Type == EventMarkerEnter
			for _, fn := range mk.onHover {
				fn(entered)
			}
		}
		return true
	case EventResize:
		if m, ok := r.maps[ev.Map]; ok {
			if ev.Width > 0 {
				m.Width = ev.Width
			}
			if ev.Height > 0 {
				m.Height = ev.Height
			}
		}
		return true
	}
	return false
}

func (r *registry) lookup(id string) (*Map, bool) {
	m, ok := r.maps[id]
	if !ok || m.Removed() {
		return nil, false
	}
	return m, true
}
