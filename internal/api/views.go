package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/chronomaps/internal/service"
)

type OpenViewBody struct {
	Fragment string  `json:"fragment,omitempty" doc:"URL fragment the page was opened with" example:"1700000000000/2/0/0//42"`
	Width    float64 `json:"width,omitempty" minimum:"0" doc:"Timeline width in pixels"`
	Desktop  bool    `json:"desktop" doc:"Desktop layout"`
}

type ViewIDInput struct {
	ID string `path:"id" format:"uuid" doc:"View id"`
}

type ViewCreatedBody struct {
	ID     string `json:"id" doc:"View id"`
	Stream string `json:"stream" doc:"Datastar stream of the view"`
	Events string `json:"events" doc:"Where the browser posts its events"`
}

// RegisterViews registers the view lifecycle routes. The stream and event
// routes live in the viewer package.
func (h *APIHandler) RegisterViews(api huma.API) {
	huma.Post(api, "/api/v1/chronomaps/{slug}/views", h.OpenView, huma.OperationTags("views"))
	huma.Delete(api, "/api/v1/views/{id}", h.CloseView, huma.OperationTags("views"))
}

func (h *APIHandler) OpenView(ctx context.Context, input *struct {
	SlugInput
	Body OpenViewBody
}) (*struct{ Body ViewCreatedBody }, error) {
	ctx, cancel := context.WithTimeout(ctx, snapshotWait)
	defer cancel()
	id, _, err := h.svc.Views.Open(ctx, service.ViewRequest{
		Slug:     input.Slug,
		Fragment: input.Body.Fragment,
		Width:    input.Body.Width,
		Desktop:  input.Body.Desktop,
	})
	if err != nil {
		return nil, contentError(err)
	}
	return &struct{ Body ViewCreatedBody }{Body: ViewCreatedBody{
		ID:     id,
		Stream: "/api/v1/views/" + id + "/stream",
		Events: "/api/v1/views/" + id + "/events",
	}}, nil
}

func (h *APIHandler) CloseView(ctx context.Context, input *ViewIDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Views.Close(input.ID); err != nil {
		return nil, serviceError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "View closed"}}, nil
}
