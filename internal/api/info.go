package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	Chronomaps int      `json:"chronomaps" doc:"Registered chronomaps"`
	Views      int      `json:"views" doc:"Live views"`
	Cache      bool     `json:"cache" doc:"Whether the snapshot cache is available"`
	Features   []string `json:"features" doc:"Available features"`
}

// RegisterInfo registers the service info route.
func (h *APIHandler) RegisterInfo(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

func (h *APIHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"baserow", "datastar", "geojson", "pmtiles"}
	if h.svc.Cache != nil {
		features = append(features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:       "chronomaps",
		Version:    Version,
		Chronomaps: len(h.svc.Chronomaps.List()),
		Views:      h.svc.Views.Len(),
		Cache:      h.svc.Cache != nil,
		Features:   features,
	}}, nil
}
