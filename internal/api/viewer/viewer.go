// Package viewer streams live chronomap views to the browser over Datastar
// SSE and takes the browser's events back.
package viewer

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/chronomaps/internal/chronomap"
	"github.com/joeblew999/chronomaps/internal/humastar"
	"github.com/joeblew999/chronomaps/internal/service"
	"github.com/joeblew999/chronomaps/internal/templates"
)

// Browser events dispatched on the document by the stream.
const (
	EventMapCommand = "chronomap-map"
	EventScroll     = "chronomap-scroll"
	EventNavigate   = "chronomap-navigate"
)

type ViewInput struct {
	ID string `path:"id" doc:"View id"`
}

type StreamInput struct {
	ViewInput
	Fragment string `query:"fragment" doc:"URL fragment the page was opened with"`
}

type EventInput struct {
	ViewInput
	Body chronomap.Event
}

// Handler serves the viewer stream and event routes.
type Handler struct {
	humastar.Handler
	views  *service.ViewService
	logger *slog.Logger
}

func NewHandler(views *service.ViewService, renderer *templates.Renderer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Handler: humastar.Handler{Renderer: renderer},
		views:   views,
		logger:  logger.With("component", "viewer"),
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/views/{id}/stream", h.Stream, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/views/{id}/events", h.PostEvent, huma.OperationTags("viewer"))
}

// Stream starts the view and forwards its patches until the browser goes
// away or the view closes.
func (h *Handler) Stream(ctx context.Context, input *StreamInput) (*huma.StreamResponse, error) {
	view, detach, err := h.views.Attach(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("view not found")
	}
	return h.Handler.Stream(func(sse humastar.SSE) {
		defer detach()
		view.Start(input.Fragment)
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-view.Patches():
				if !ok {
					return
				}
				if err := h.send(sse, p); err != nil {
					h.logger.Debug("stream ended", "view", input.ID, "error", err)
					return
				}
			}
		}
	}), nil
}

func (h *Handler) send(sse humastar.SSE, p chronomap.Patch) error {
	switch {
	case p.Signals != nil:
		return sse.Signals(p.Signals)
	case p.Frame != nil:
		html, err := h.Renderer.Timeline(*p.Frame)
		if err != nil {
			h.logger.Error("render timeline", "error", err)
			return nil
		}
		return sse.Morph(html)
	case p.Strip != nil:
		html, err := h.Renderer.Strip(*p.Strip)
		if err != nil {
			h.logger.Error("render strip", "error", err)
			return nil
		}
		return sse.Morph(html)
	case p.Map != nil:
		return sse.Dispatch(EventMapCommand, p.Map)
	case p.Scroll != nil:
		return sse.Dispatch(EventScroll, p.Scroll)
	case p.Navigate != nil:
		return sse.Dispatch(EventNavigate, p.Navigate)
	}
	return nil
}

// PostEvent hands a browser event to its view.
func (h *Handler) PostEvent(ctx context.Context, input *EventInput) (*struct{}, error) {
	if err := input.Body.Validate(); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	view, ok := h.views.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("view not found")
	}
	view.HandleEvent(input.Body)
	return nil, nil
}
