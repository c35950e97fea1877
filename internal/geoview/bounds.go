package geoview

import (
	"github.com/paulmach/orb"
)

// Point converts a coordinate to an orb point (x = lon, y = lat).
func (ll LatLon) Point() orb.Point {
	return orb.Point{ll.Lon, ll.Lat}
}

// FromPoint converts an orb point back to a coordinate.
func FromPoint(p orb.Point) LatLon {
	return LatLon{Lat: p.Lat(), Lon: p.Lon()}
}

// Bounds returns the box spanning the centers of every decodable view.
// ok is false when none decode.
func Bounds(views []string) (b orb.Bound, ok bool) {
	for _, v := range views {
		c, found := Center(v)
		if !found {
			continue
		}
		p := c.Point()
		if !ok {
			b = orb.Bound{Min: p, Max: p}
			ok = true
			continue
		}
		b = b.Extend(p)
	}
	return b, ok
}
