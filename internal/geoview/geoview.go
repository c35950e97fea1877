// Package geoview encodes and decodes camera positions as compact view
// strings of the form <scheme>#<zoom>/<lat>/<lon>[/<bearing>][/<pitch>].
//
// The format is stored in content rows and handed back by location pickers,
// so it must stay stable.
package geoview

import (
	"math"
	"strconv"
	"strings"
)

// Scheme is the prefix written in front of encoded views. Decoding accepts
// any prefix, including none.
const Scheme = "https://labs.mapbox.com/location-helper/"

// LatLon is a geographic coordinate.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Padding is an asymmetric viewport inset in pixels.
type Padding struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// Uniform returns a padding of p on every side.
func Uniform(p float64) Padding {
	return Padding{Top: p, Bottom: p, Left: p, Right: p}
}

// FlyToOptions is a camera position plus animation hints. Nil fields are
// unspecified, which is distinct from an explicit zero.
type FlyToOptions struct {
	Center   *LatLon  `json:"center,omitempty"`
	Zoom     *float64 `json:"zoom,omitempty"`
	Bearing  *float64 `json:"bearing,omitempty"`
	Pitch    *float64 `json:"pitch,omitempty"`
	Padding  *Padding `json:"padding,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
	Duration *float64 `json:"duration,omitempty"` // milliseconds
	Curve    *float64 `json:"curve,omitempty"`
	Animate  *bool    `json:"animate,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// IsZero reports whether no field is set.
func (o FlyToOptions) IsZero() bool {
	return o.Center == nil && o.Zoom == nil && o.Bearing == nil && o.Pitch == nil &&
		o.Padding == nil && o.Speed == nil && o.Duration == nil && o.Curve == nil &&
		o.Animate == nil
}

// Camera returns only the camera fields (center, zoom, bearing, pitch).
func (o FlyToOptions) Camera() FlyToOptions {
	return FlyToOptions{Center: o.Center, Zoom: o.Zoom, Bearing: o.Bearing, Pitch: o.Pitch}
}

// Merge returns base with every field set in override replacing it.
func Merge(base, override FlyToOptions) FlyToOptions {
	out := base
	if override.Center != nil {
		c := *override.Center
		out.Center = &c
	}
	if override.Zoom != nil {
		out.Zoom = Float(*override.Zoom)
	}
	if override.Bearing != nil {
		out.Bearing = Float(*override.Bearing)
	}
	if override.Pitch != nil {
		out.Pitch = Float(*override.Pitch)
	}
	if override.Padding != nil {
		p := *override.Padding
		out.Padding = &p
	}
	if override.Speed != nil {
		out.Speed = Float(*override.Speed)
	}
	if override.Duration != nil {
		out.Duration = Float(*override.Duration)
	}
	if override.Curve != nil {
		out.Curve = Float(*override.Curve)
	}
	if override.Animate != nil {
		out.Animate = Bool(*override.Animate)
	}
	return out
}

// Encode renders the camera fields of o with the default scheme.
func Encode(o FlyToOptions) string {
	return EncodeWithScheme(Scheme, o)
}

// EncodeWithScheme renders the camera fields of o after scheme. Unset
// mandatory fields are written empty, which decodes back to "no camera".
func EncodeWithScheme(scheme string, o FlyToOptions) string {
	fields := []string{num(o.Zoom), "", ""}
	if o.Center != nil {
		fields[1] = num(&o.Center.Lat)
		fields[2] = num(&o.Center.Lon)
	}
	if o.Bearing != nil || o.Pitch != nil {
		fields = append(fields, num(o.Bearing))
	}
	if o.Pitch != nil {
		fields = append(fields, num(o.Pitch))
	}
	return scheme + "#" + strings.Join(fields, "/")
}

// Decode parses a view string. It never fails: anything it cannot read
// yields an empty FlyToOptions.
func Decode(view string) FlyToOptions {
	_, frag, ok := strings.Cut(view, "#")
	if !ok {
		return FlyToOptions{}
	}
	if i := strings.IndexByte(frag, '#'); i >= 0 {
		frag = frag[:i]
	}
	parts := strings.Split(frag, "/")
	if len(parts) < 3 {
		return FlyToOptions{}
	}

	zoom, okZ := parse(parts[0])
	lat, okLat := parse(parts[1])
	lon, okLon := parse(parts[2])
	if !okZ || !okLat || !okLon {
		return FlyToOptions{}
	}

	o := FlyToOptions{
		Center: &LatLon{Lat: lat, Lon: lon},
		Zoom:   Float(zoom),
	}
	if len(parts) > 3 {
		if b, ok := parse(parts[3]); ok {
			o.Bearing = Float(b)
		}
	}
	if len(parts) > 4 {
		if p, ok := parse(parts[4]); ok {
			o.Pitch = Float(p)
		}
	}
	return o
}

// Center decodes only the center of a view string.
func Center(view string) (LatLon, bool) {
	o := Decode(view)
	if o.Center == nil {
		return LatLon{}, false
	}
	return *o.Center, true
}

func parse(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func num(v *float64) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return ""
	}
	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
