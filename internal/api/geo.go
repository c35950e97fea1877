package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/chronomaps/internal/geoview"
)

type DecodeInput struct {
	View string `query:"view" required:"true" doc:"Geo-view string" example:"https://labs.mapbox.com/location-helper/#12/40.7/-74.0"`
}

type DecodeBody struct {
	Valid   bool                 `json:"valid" doc:"Whether the view carried a camera"`
	Camera  geoview.FlyToOptions `json:"camera" doc:"Decoded camera"`
	Encoded string               `json:"encoded,omitempty" doc:"Canonical form of the view"`
}

type EncodeBody struct {
	Zoom    float64  `json:"zoom" minimum:"0" maximum:"24" doc:"Zoom level"`
	Lat     float64  `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude"`
	Lon     float64  `json:"lon" minimum:"-180" maximum:"180" doc:"Longitude"`
	Bearing *float64 `json:"bearing,omitempty" doc:"Bearing in degrees"`
	Pitch   *float64 `json:"pitch,omitempty" minimum:"0" maximum:"85" doc:"Pitch in degrees"`
}

type ViewBody struct {
	View string `json:"view" doc:"Geo-view string"`
}

// RegisterGeo registers the geo-view codec routes.
func (h *APIHandler) RegisterGeo(api huma.API) {
	huma.Get(api, "/api/v1/geo/decode", h.DecodeView, huma.OperationTags("geo"))
	huma.Post(api, "/api/v1/geo/encode", h.EncodeView, huma.OperationTags("geo"))
}

func (h *APIHandler) DecodeView(ctx context.Context, input *DecodeInput) (*struct{ Body DecodeBody }, error) {
	cam := geoview.Decode(input.View)
	body := DecodeBody{Valid: !cam.IsZero(), Camera: cam}
	if body.Valid {
		body.Encoded = geoview.Encode(cam)
	}
	return &struct{ Body DecodeBody }{Body: body}, nil
}

func (h *APIHandler) EncodeView(ctx context.Context, input *struct{ Body EncodeBody }) (*struct{ Body ViewBody }, error) {
	in := input.Body
	cam := geoview.FlyToOptions{
		Center:  &geoview.LatLon{Lat: in.Lat, Lon: in.Lon},
		Zoom:    geoview.Float(in.Zoom),
		Bearing: in.Bearing,
		Pitch:   in.Pitch,
	}
	return &struct{ Body ViewBody }{Body: ViewBody{View: geoview.Encode(cam)}}, nil
}
