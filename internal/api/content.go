package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/chronomaps/internal/content"
	"github.com/joeblew999/chronomaps/internal/humastar"
	"github.com/joeblew999/chronomaps/internal/markertiles"
	"github.com/joeblew999/chronomaps/internal/service"
)

// snapshotWait bounds how long a request waits for a first fetch.
const snapshotWait = 10 * time.Second

type ItemsInput struct {
	SlugInput
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Page size"`
}

type ItemsOutput struct {
	Body humastar.PageBody[*content.ContentItem]
}

type SettingsOutput struct {
	Body content.Settings
}

type RefreshBody struct {
	Items     int       `json:"items" doc:"Items in the new snapshot"`
	FetchedAt time.Time `json:"fetchedAt" doc:"When the snapshot was fetched"`
}

type FileOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

// RegisterContent registers the content routes of a chronomap.
func (h *APIHandler) RegisterContent(api huma.API) {
	huma.Get(api, "/api/v1/chronomaps/{slug}/items", h.GetItems, huma.OperationTags("content"))
	huma.Get(api, "/api/v1/chronomaps/{slug}/settings", h.GetSettings, huma.OperationTags("content"))
	huma.Post(api, "/api/v1/chronomaps/{slug}/refresh", h.Refresh, huma.OperationTags("content"))
	huma.Get(api, "/api/v1/chronomaps/{slug}/markers.geojson", h.GetMarkersGeoJSON, huma.OperationTags("content"))
	huma.Get(api, "/api/v1/chronomaps/{slug}/markers.pmtiles", h.GetMarkersPMTiles, huma.OperationTags("content"))
}

func (h *APIHandler) snapshot(ctx context.Context, slug string) (content.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, snapshotWait)
	defer cancel()
	snap, err := h.svc.Content.Snapshot(ctx, slug)
	if err != nil {
		return content.Snapshot{}, contentError(err)
	}
	return snap, nil
}

func (h *APIHandler) GetItems(ctx context.Context, input *ItemsInput) (*ItemsOutput, error) {
	snap, err := h.snapshot(ctx, input.Slug)
	if err != nil {
		return nil, err
	}
	return &ItemsOutput{Body: humastar.NewPage(snap.Items, input.Offset, input.Limit)}, nil
}

func (h *APIHandler) GetSettings(ctx context.Context, input *SlugInput) (*SettingsOutput, error) {
	snap, err := h.snapshot(ctx, input.Slug)
	if err != nil {
		return nil, err
	}
	settings := snap.Settings
	settings.MapboxKey = ""
	return &SettingsOutput{Body: settings}, nil
}

func (h *APIHandler) Refresh(ctx context.Context, input *SlugInput) (*struct{ Body RefreshBody }, error) {
	snap, err := h.svc.Content.Refresh(ctx, input.Slug)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error502BadGateway("refresh failed", err)
	}
	return &struct{ Body RefreshBody }{Body: RefreshBody{Items: len(snap.Items), FetchedAt: snap.FetchedAt}}, nil
}

func (h *APIHandler) GetMarkersGeoJSON(ctx context.Context, input *SlugInput) (*FileOutput, error) {
	snap, err := h.snapshot(ctx, input.Slug)
	if err != nil {
		return nil, err
	}
	data, err := markertiles.Features(snap.Items).MarshalJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encode markers", err)
	}
	return &FileOutput{ContentType: "application/geo+json", Body: data}, nil
}

func (h *APIHandler) GetMarkersPMTiles(ctx context.Context, input *SlugInput) (*FileOutput, error) {
	snap, err := h.snapshot(ctx, input.Slug)
	if err != nil {
		return nil, err
	}
	opts := h.svc.Tiles
	opts.Name = input.Slug
	var buf bytes.Buffer
	if _, err := markertiles.Write(&buf, snap.Items, opts); err != nil {
		if errors.Is(err, markertiles.ErrNoTiles) {
			return nil, huma.Error404NotFound("chronomap has no located items")
		}
		return nil, huma.Error500InternalServerError("build markers", err)
	}
	return &FileOutput{
		ContentType:        "application/vnd.pmtiles",
		ContentDisposition: fmt.Sprintf(`attachment; filename="%s.pmtiles"`, input.Slug),
		Body:               buf.Bytes(),
	}, nil
}

func contentError(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, content.ErrNotReady):
		return huma.Error503ServiceUnavailable("content not loaded yet", err)
	default:
		return huma.Error500InternalServerError("load content", err)
	}
}
