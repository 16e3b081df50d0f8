// Package viewer contains the Datastar SSE handlers that drive one map
// session from the browser: state changes, clicks, lazy series loading
// and the stream of debounced load results.
package viewer

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/geoportal/internal/config"
	"github.com/joeblew999/geoportal/internal/humastar"
	"github.com/joeblew999/geoportal/internal/popup"
	"github.com/joeblew999/geoportal/internal/service"
	"github.com/joeblew999/geoportal/internal/templates"
)

// Selectors of the page regions the handlers patch.
const (
	selLayers  = "#layers"
	selToasts  = "#toasts"
	selPopup   = "#popup"
	selSeries  = "#popup-series"
	selSources = "#sources"
	selEvents  = "#events"
)

// Handler serves the viewer SSE routes.
type Handler struct {
	humastar.Handler
	cfg      *config.Config
	sessions *service.SessionStore
	sources  *service.SourceService
	bus      *service.EventBus
}

// NewHandler creates the viewer handler.
func NewHandler(cfg *config.Config, sessions *service.SessionStore, sources *service.SourceService, bus *service.EventBus, r *templates.Renderer) *Handler {
	return &Handler{
		Handler:  humastar.Handler{Renderer: r},
		cfg:      cfg,
		sessions: sessions,
		sources:  sources,
		bus:      bus,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/viewer/sessions", h.CreateSession, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/sessions/{id}/state", h.UpdateState, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/sessions/{id}/click", h.Click, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/sessions/{id}/series", h.LoadSeries, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/sessions/{id}/events", h.Events, huma.OperationTags("viewer"))
}

// SessionSignalsInput carries the Datastar signals posted for a session.
type SessionSignalsInput struct {
	ID      string `path:"id" doc:"Session id"`
	RawBody []byte
}

type SessionInput struct {
	ID string `path:"id" doc:"Session id"`
}

// PopupView is the data of the popup fragments.
type PopupView struct {
	SessionID string
	Popup     popup.Content
	ChartURL  string
}

func (h *Handler) CreateSession(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	st := service.DefaultState(h.cfg)
	if len(input.RawBody) > 0 {
		signals, err := input.MustParse()
		if err != nil {
			return nil, err
		}
		if st, err = h.stateFrom(signals, st); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
	}
	sess := h.sessions.Create()

	return h.Stream(func(sse humastar.SSE) {
		res := sess.Update(ctx, st)
		sse.Signals(map[string]any{"sessionId": sess.ID})
		sse.Replace(h.Render("session-stream", sess.ID), selEvents)
		if files, err := h.sources.List(); err == nil {
			sse.Patch(h.Render("source-list", files), selSources)
		}
		h.sendResult(sse, sess.ID, res)
	}), nil
}

func (h *Handler) UpdateState(ctx context.Context, input *SessionSignalsInput) (*huma.StreamResponse, error) {
	sess, signals, err := h.sessionSignals(input)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		st, err := h.stateFrom(signals, sess.State())
		if err != nil {
			sse.Error(err.Error())
			return
		}
		h.sendResult(sse, sess.ID, sess.Update(ctx, st))
	}), nil
}

func (h *Handler) Click(ctx context.Context, input *SessionSignalsInput) (*huma.StreamResponse, error) {
	sess, signals, err := h.sessionSignals(input)
	if err != nil {
		return nil, err
	}
	c := service.Click{
		Kind:  popup.Kind(signals.String("clickKind")),
		Layer: signals.String("clickLayer"),
		ID:    signals.String("clickId"),
		Lat:   signals.Float("clickLat"),
		Lon:   signals.Float("clickLon"),
	}
	return h.Stream(func(sse humastar.SSE) {
		h.sendResult(sse, sess.ID, sess.Click(ctx, c))
	}), nil
}

func (h *Handler) LoadSeries(ctx context.Context, input *SessionSignalsInput) (*huma.StreamResponse, error) {
	sess, ok := h.sessions.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("session not found")
	}
	return h.Stream(func(sse humastar.SSE) {
		c, ok := sess.LoadSeries(ctx)
		if !ok {
			sse.Error("No popup is open")
			return
		}
		sse.Replace(h.Render("popup-series", h.popupView(sess.ID, c)), selSeries)
	}), nil
}

// Events streams the results of debounced loads for one session until the
// client goes away.
func (h *Handler) Events(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	if _, ok := h.sessions.Get(input.ID); !ok {
		return nil, huma.Error404NotFound("session not found")
	}
	return h.Stream(func(sse humastar.SSE) {
		ch, unsubscribe := h.bus.Subscribe(input.ID)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if ev.Result == nil {
					continue
				}
				h.sendResult(sse, ev.ID, *ev.Result)
				sse.DispatchCustomEvent("session-changed", map[string]any{
					"action": ev.Action, "id": ev.ID,
				})
			}
		}
	}), nil
}

// sendResult patches the layer list, toasts and popup, and hands the plan
// and fits to the map client as a custom event.
func (h *Handler) sendResult(sse humastar.SSE, id string, res service.SyncResult) {
	sse.Patch(h.Render("layer-list", res.Attached), selLayers)
	if len(res.Toasts) > 0 {
		sse.Append(h.Render("toasts", res.Toasts), selToasts)
	}
	if res.Popup != nil {
		sse.Patch(h.Render("popup", h.popupView(id, *res.Popup)), selPopup)
	} else {
		sse.Patch("", selPopup)
	}
	sse.DispatchCustomEvent("map-sync", res)
}

func (h *Handler) popupView(id string, c popup.Content) PopupView {
	v := PopupView{SessionID: id, Popup: c}
	switch c.Kind {
	case popup.Sensor:
		v.ChartURL = "/api/v1/series/sensors/" + url.PathEscape(c.ID) + "/chart.png"
	case popup.Field:
		v.ChartURL = "/api/v1/series/fields/" + url.PathEscape(c.ID) + "/chart.png"
	}
	return v
}

func (h *Handler) sessionSignals(input *SessionSignalsInput) (*service.Session, humastar.Signals, error) {
	sess, ok := h.sessions.Get(input.ID)
	if !ok {
		return nil, nil, huma.Error404NotFound("session not found")
	}
	signals, err := humastar.ParseSignals(input.RawBody)
	if err != nil {
		return nil, nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return sess, signals, nil
}

// stateFrom overlays the posted signals on base. Signals the page does not
// send keep their value from base.
func (h *Handler) stateFrom(signals humastar.Signals, base service.State) (service.State, error) {
	st := base
	if err := signals.Decode(&st); err != nil {
		return base, err
	}
	p, err := h.sources.Resolve(st.MarkersPath)
	if err != nil {
		return base, err
	}
	st.MarkersPath = p
	return st, nil
}

// PageSignals is the initial data-signals object of the viewer page.
func PageSignals(cfg *config.Config) (string, error) {
	st := service.DefaultState(cfg)
	b, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	signals := map[string]any{}
	if err := json.Unmarshal(b, &signals); err != nil {
		return "", err
	}
	signals["sessionId"] = ""
	signals["clickKind"] = ""
	signals["clickLayer"] = ""
	signals["clickId"] = ""
	signals["clickLat"] = 0
	signals["clickLon"] = 0
	signals["error"] = ""
	signals["success"] = ""
	b, err = json.Marshal(signals)
	return string(b), err
}
