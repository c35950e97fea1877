package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/chronomaps/internal/db"
)

type CacheOutput struct {
	Body struct {
		Snapshots []db.SnapshotInfo `json:"snapshots" doc:"Cached snapshots"`
	}
}

// RegisterCache registers the snapshot cache routes.
func (h *APIHandler) RegisterCache(api huma.API) {
	huma.Get(api, "/api/v1/cache", h.ListCache, huma.OperationTags("cache"))
	huma.Delete(api, "/api/v1/cache/{slug}", h.DeleteCache, huma.OperationTags("cache"))
}

// ListCache returns the snapshots cached in DuckDB.
func (h *APIHandler) ListCache(ctx context.Context, input *struct{}) (*CacheOutput, error) {
	if h.svc.Cache == nil {
		return nil, huma.Error503ServiceUnavailable("Cache not available")
	}
	snaps, err := h.svc.Cache.ListSnapshots(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list snapshots", err)
	}
	out := &CacheOutput{}
	out.Body.Snapshots = snaps
	return out, nil
}

func (h *APIHandler) DeleteCache(ctx context.Context, input *SlugInput) (*struct{ Body MessageBody }, error) {
	if h.svc.Cache == nil {
		return nil, huma.Error503ServiceUnavailable("Cache not available")
	}
	if err := h.svc.Cache.DeleteSnapshot(ctx, input.Slug); err != nil {
		return nil, huma.Error500InternalServerError("Failed to delete snapshot", err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Snapshot deleted"}}, nil
}
