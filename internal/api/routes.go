// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/chronomaps/internal/db"
	"github.com/joeblew999/chronomaps/internal/humastar"
	"github.com/joeblew999/chronomaps/internal/markertiles"
	"github.com/joeblew999/chronomaps/internal/service"
)

// Version is reported by /health and /api/v1/info.
const Version = "1.0.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Chronomaps *service.ChronomapService
	Content    *service.ContentService
	Views      *service.ViewService
	// Cache is nil when the snapshot database could not be opened.
	Cache *db.Store
	Tiles markertiles.Options
}

// Types

type SlugInput struct {
	Slug string `path:"slug" doc:"Chronomap slug" example:"harbour_history"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// ChronomapBody is a chronomap without its database token, plus the
// actions that apply to it.
type ChronomapBody struct {
	service.Chronomap
}

var chronomapActions = []humastar.ActionDef{
	{Rel: "refresh", Pattern: "/api/v1/chronomaps/%s/refresh", Method: "POST", Title: "Refetch content"},
	{Rel: "views", Pattern: "/api/v1/chronomaps/%s/views", Method: "POST", Title: "Open a view"},
	{Rel: "delete", Pattern: "/api/v1/chronomaps/%s", Method: "DELETE", Title: "Remove chronomap"},
}

// Actions implements humastar.Actor.
func (b ChronomapBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.Slug, chronomapActions)
}

type ChronomapOutput struct {
	Body ChronomapBody
}

type ChronomapsOutput struct {
	Body []service.Chronomap
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every REST route on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterChronomaps registers chronomap CRUD routes.
func (h *APIHandler) RegisterChronomaps(api huma.API) {
	huma.Get(api, "/api/v1/chronomaps", h.GetChronomaps, huma.OperationTags("chronomaps"))
	huma.Post(api, "/api/v1/chronomaps", h.CreateChronomap, huma.OperationTags("chronomaps"))
	huma.Get(api, "/api/v1/chronomaps/{slug}", h.GetChronomap, huma.OperationTags("chronomaps"))
	huma.Put(api, "/api/v1/chronomaps/{slug}", h.PutChronomap, huma.OperationTags("chronomaps"))
	huma.Delete(api, "/api/v1/chronomaps/{slug}", h.DeleteChronomap, huma.OperationTags("chronomaps"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetChronomaps(ctx context.Context, input *struct{}) (*ChronomapsOutput, error) {
	maps := h.svc.Chronomaps.List()
	for i := range maps {
		maps[i] = maps[i].Public()
	}
	return &ChronomapsOutput{Body: maps}, nil
}

func (h *APIHandler) CreateChronomap(ctx context.Context, input *struct{ Body service.Chronomap }) (*ChronomapOutput, error) {
	created, err := h.svc.Chronomaps.Create(input.Body)
	if err != nil {
		return nil, serviceError(err)
	}
	return &ChronomapOutput{Body: ChronomapBody{created.Public()}}, nil
}

func (h *APIHandler) GetChronomap(ctx context.Context, input *SlugInput) (*ChronomapOutput, error) {
	m, ok := h.svc.Chronomaps.Get(input.Slug)
	if !ok {
		return nil, huma.Error404NotFound("chronomap not found")
	}
	return &ChronomapOutput{Body: ChronomapBody{m.Public()}}, nil
}

func (h *APIHandler) PutChronomap(ctx context.Context, input *struct {
	SlugInput
	Body service.Chronomap
}) (*ChronomapOutput, error) {
	updated, err := h.svc.Chronomaps.Update(input.Slug, input.Body)
	if err != nil {
		return nil, serviceError(err)
	}
	return &ChronomapOutput{Body: ChronomapBody{updated.Public()}}, nil
}

func (h *APIHandler) DeleteChronomap(ctx context.Context, input *SlugInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Chronomaps.Delete(input.Slug); err != nil {
		return nil, serviceError(err)
	}
	if h.svc.Cache != nil {
		if err := h.svc.Cache.DeleteSnapshot(ctx, input.Slug); err != nil {
			return nil, huma.Error500InternalServerError("chronomap deleted, cache not cleared", err)
		}
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Chronomap deleted"}}, nil
}

// serviceError maps service sentinels to HTTP errors.
func serviceError(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrExists):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, service.ErrInvalid):
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}
