// Package markertiles exports the located items of a chronomap as a GeoJSON
// FeatureCollection and as a PMTiles archive of gzipped MVT point tiles.
package markertiles

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/chronomaps/internal/content"
	"github.com/joeblew999/chronomaps/internal/geoview"
)

// ErrNoTiles is returned when no item has a usable location.
var ErrNoTiles = errors.New("markertiles: no located items")

// DefaultLayer is the MVT layer name.
const DefaultLayer = "markers"

const maxZoomLimit = 14

// Options controls tiling.
type Options struct {
	MinZoom int
	MaxZoom int
	Layer   string
	// Name is written into the archive metadata.
	Name string
}

func (o Options) normalized() Options {
	if o.MinZoom < 0 {
		o.MinZoom = 0
	}
	if o.MaxZoom <= 0 || o.MaxZoom > maxZoomLimit {
		o.MaxZoom = maxZoomLimit
	}
	if o.MinZoom > o.MaxZoom {
		o.MinZoom = o.MaxZoom
	}
	if o.Layer == "" {
		o.Layer = DefaultLayer
	}
	return o
}

// Stats describes a written archive.
type Stats struct {
	Features int
	Tiles    int
}

// Features returns one point feature per item whose geo view decodes.
func Features(items []*content.ContentItem) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, it := range items {
		center, ok := geoview.Center(it.Geo)
		if !ok {
			continue
		}
		f := geojson.NewFeature(center.Point())
		f.ID = it.ID
		f.Properties["id"] = it.ID
		f.Properties["title"] = it.Title
		f.Properties["type"] = string(it.Type)
		if ts, ok := it.Timestamp(); ok {
			f.Properties["timestamp"] = ts.UTC().Format(time.RFC3339)
		}
		if zoom := geoview.Decode(it.Geo).Zoom; zoom != nil {
			f.Properties["zoom"] = *zoom
		}
		fc.Append(f)
	}
	return fc
}

// Write tiles the located items and writes a PMTiles archive to w.
func Write(w io.Writer, items []*content.ContentItem, opts Options) (Stats, error) {
	opts = opts.normalized()
	fc := Features(items)
	if len(fc.Features) == 0 {
		return Stats{}, ErrNoTiles
	}

	var tiles []tileData
	for z := opts.MinZoom; z <= opts.MaxZoom; z++ {
		zoomTiles, err := tileZoom(fc, maptile.Zoom(z), opts.Layer)
		if err != nil {
			return Stats{}, fmt.Errorf("zoom %d: %w", z, err)
		}
		tiles = append(tiles, zoomTiles...)
	}

	bound := fc.Features[0].Geometry.Bound()
	for _, f := range fc.Features[1:] {
		bound = bound.Union(f.Geometry.Bound())
	}
	center := bound.Center()
	h := Header{
		MinZoom:     uint8(opts.MinZoom),
		MaxZoom:     uint8(opts.MaxZoom),
		MinLonE7:    e7(bound.Min.Lon()),
		MinLatE7:    e7(bound.Min.Lat()),
		MaxLonE7:    e7(bound.Max.Lon()),
		MaxLatE7:    e7(bound.Max.Lat()),
		CenterZoom:  uint8(opts.MinZoom),
		CenterLonE7: e7(center.Lon()),
		CenterLatE7: e7(center.Lat()),
	}
	metadata := map[string]any{
		"name":        opts.Name,
		"format":      "pbf",
		"compression": "gzip",
		"minzoom":     opts.MinZoom,
		"maxzoom":     opts.MaxZoom,
		"vector_layers": []map[string]any{{
			"id":      opts.Layer,
			"minzoom": opts.MinZoom,
			"maxzoom": opts.MaxZoom,
			"fields": map[string]string{
				"id": "Number", "title": "String", "type": "String", "timestamp": "String", "zoom": "Number",
			},
		}},
	}
	if err := writeArchive(w, h, tiles, metadata); err != nil {
		return Stats{}, fmt.Errorf("write pmtiles: %w", err)
	}
	return Stats{Features: len(fc.Features), Tiles: len(tiles)}, nil
}

// tileZoom groups the points by tile and encodes each tile.
func tileZoom(fc *geojson.FeatureCollection, z maptile.Zoom, layerName string) ([]tileData, error) {
	groups := make(map[maptile.Tile][]*geojson.Feature)
	for _, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		t := maptile.At(p, z)
		groups[t] = append(groups[t], f)
	}

	out := make([]tileData, 0, len(groups))
	for t, features := range groups {
		data, err := encodeTile(t, features, layerName)
		if err != nil {
			return nil, err
		}
		out = append(out, tileData{id: ZxyToID(uint8(t.Z), t.X, t.Y), data: data})
	}
	return out, nil
}

// encodeTile projects copies of the features, since ProjectToTile mutates
// geometry in place.
func encodeTile(t maptile.Tile, features []*geojson.Feature, layerName string) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		p := f.Geometry.(orb.Point)
		clone := geojson.NewFeature(orb.Point{p[0], p[1]})
		clone.ID = f.ID
		for k, v := range f.Properties {
			clone.Properties[k] = v
		}
		fc.Append(clone)
	}

	layer := mvt.NewLayer(layerName, fc)
	layer.ProjectToTile(t)
	return mvt.MarshalGzipped(mvt.Layers{layer})
}

func e7(v float64) int32 {
	return int32(math.Round(v * 1e7))
}
