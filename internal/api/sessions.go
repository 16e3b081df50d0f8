package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/geoportal/internal/apperr"
	"github.com/joeblew999/geoportal/internal/humastar"
	"github.com/joeblew999/geoportal/internal/layers"
	"github.com/joeblew999/geoportal/internal/popup"
	"github.com/joeblew999/geoportal/internal/service"
)

var sessionActions = []humastar.ActionDef{
	{Rel: "state", Pattern: "/api/v1/sessions/%s/state", Method: "PUT", Title: "Replace the map state"},
	{Rel: "click", Pattern: "/api/v1/sessions/%s/click", Method: "POST", Title: "Click a sensor or field"},
	{Rel: "series", Pattern: "/api/v1/sessions/%s/series", Method: "POST", Title: "Load the popup time series"},
	{Rel: "delete", Pattern: "/api/v1/sessions/%s", Method: "DELETE", Title: "Close the session"},
}

type SessionIDInput struct {
	ID string `path:"id" doc:"Session id" format:"uuid"`
}

// SessionBody is a snapshot of one map session.
type SessionBody struct {
	ID           string           `json:"id" doc:"Session id" format:"uuid"`
	State        service.State    `json:"state" doc:"Last applied state"`
	Attached     []layers.Overlay `json:"attached" doc:"Attached stack, bottom to top"`
	ActiveMarker string           `json:"activeMarker,omitempty" doc:"Highlighted sensor"`
	Popup        *popup.Content   `json:"popup,omitempty" doc:"Open popup"`
}

func (b SessionBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, sessionActions)
}

type SessionSyncBody struct {
	ID     string             `json:"id" doc:"Session id" format:"uuid"`
	Result service.SyncResult `json:"result" doc:"Reconciliation caused by the request"`
}

func (b SessionSyncBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, sessionActions)
}

type SessionStateInput struct {
	SessionIDInput
	Body service.State
}

type SessionClickInput struct {
	SessionIDInput
	Body service.Click
}

// RegisterSessions registers the JSON session routes. The viewer drives
// the same sessions over SSE.
func (h *APIHandler) RegisterSessions(api huma.API) {
	huma.Get(api, "/api/v1/sessions", h.ListSessions, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions", h.CreateSession, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}", h.GetSession, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{id}", h.DeleteSession, huma.OperationTags("sessions"))
	huma.Put(api, "/api/v1/sessions/{id}/state", h.PutSessionState, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{id}/click", h.ClickSession, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{id}/series", h.SessionSeries, huma.OperationTags("sessions"))
}

func (h *APIHandler) ListSessions(ctx context.Context, input *struct{}) (*struct{ Body []string }, error) {
	return &struct{ Body []string }{Body: h.svc.Sessions.List()}, nil
}

func (h *APIHandler) CreateSession(ctx context.Context, input *struct{}) (*struct{ Body SessionSyncBody }, error) {
	sess := h.svc.Sessions.Create()
	res := sess.Update(ctx, service.DefaultState(h.svc.Config))
	return &struct{ Body SessionSyncBody }{Body: SessionSyncBody{ID: sess.ID, Result: res}}, nil
}

func (h *APIHandler) GetSession(ctx context.Context, input *SessionIDInput) (*struct{ Body SessionBody }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	body := SessionBody{
		ID:           sess.ID,
		State:        sess.State(),
		Attached:     sess.Attached(),
		ActiveMarker: sess.ActiveMarker(),
	}
	if c, ok := sess.Popup(); ok {
		body.Popup = &c
	}
	return &struct{ Body SessionBody }{Body: body}, nil
}

func (h *APIHandler) DeleteSession(ctx context.Context, input *SessionIDInput) (*struct{}, error) {
	if err := h.svc.Sessions.Delete(input.ID); err != nil {
		return nil, toHuma(err)
	}
	return &struct{}{}, nil
}

func (h *APIHandler) PutSessionState(ctx context.Context, input *SessionStateInput) (*struct{ Body SessionSyncBody }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	st := input.Body
	if st.MarkersPath, err = h.svc.Sources.Resolve(st.MarkersPath); err != nil {
		return nil, toHuma(err)
	}
	res := sess.Update(ctx, st)
	return &struct{ Body SessionSyncBody }{Body: SessionSyncBody{ID: sess.ID, Result: res}}, nil
}

func (h *APIHandler) ClickSession(ctx context.Context, input *SessionClickInput) (*struct{ Body SessionSyncBody }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	res := sess.Click(ctx, input.Body)
	return &struct{ Body SessionSyncBody }{Body: SessionSyncBody{ID: sess.ID, Result: res}}, nil
}

func (h *APIHandler) SessionSeries(ctx context.Context, input *SessionIDInput) (*struct{ Body popup.Content }, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	c, ok := sess.LoadSeries(ctx)
	if !ok {
		return nil, toHuma(apperr.NotFound("session %s has no open popup", input.ID))
	}
	return &struct{ Body popup.Content }{Body: c}, nil
}

func (h *APIHandler) session(id string) (*service.Session, error) {
	sess, ok := h.svc.Sessions.Get(id)
	if !ok {
		return nil, huma.Error404NotFound("session not found")
	}
	return sess, nil
}
