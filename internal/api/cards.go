package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/pjsk-cards/internal/adjust"
	"github.com/ashureev/pjsk-cards/internal/card"
	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/identity"
	"github.com/go-chi/chi/v5"
)

// currentHeadline heads the summary returned by GET on a card.
const currentHeadline = "📋 当前配置"

// CardHandler handles card, session and command endpoints for one identity.
type CardHandler struct {
	*Handler
	onDelete func(domain.Identity)
}

// NewCardHandler creates a new card handler.
func NewCardHandler(base *Handler) *CardHandler {
	return &CardHandler{Handler: base}
}

// cardResponse is the JSON shape of a render result. Image is base64 PNG.
type cardResponse struct {
	State       domain.RenderState `json:"state"`
	Headline    string             `json:"headline"`
	Summary     string             `json:"summary"`
	Image       []byte             `json:"image,omitempty"`
	RenderError string             `json:"render_error,omitempty"`
}

func newCardResponse(res card.Result) cardResponse {
	resp := cardResponse{
		State:    res.State,
		Headline: res.Headline,
		Summary:  res.Summary,
		Image:    res.Image,
	}
	if res.RenderErr != nil {
		resp.RenderError = res.RenderErr.Error()
	}
	return resp
}

type drawRequest struct {
	Text string `json:"text"`
}

type inputRequest struct {
	Input string `json:"input"`
}

type commandRequest struct {
	Text string `json:"text"`
}

// RegisterRoutes registers card routes. mw runs after the identity has
// been resolved from the URL.
func (h *CardHandler) RegisterRoutes(r chi.Router, live http.Handler, mw ...func(http.Handler) http.Handler) {
	path := "/{" + identity.PlatformParam + "}/{" + identity.ConversationParam + "}"

	r.Route("/api/cards"+path, func(r chi.Router) {
		r.Use(identity.Middleware)
		r.Use(mw...)

		r.Get("/", h.GetCard)
		r.Delete("/", h.DeleteCard)
		r.Post("/draw", h.Draw)
		r.Post("/adjust", h.Adjust)
		r.Post("/command", h.Command)

		r.Get("/session", h.GetSession)
		r.Post("/session", h.StartSession)
		r.Post("/session/input", h.SubmitInput)
		r.Delete("/session", h.CancelSession)
	})

	if live != nil {
		r.With(identity.Middleware).Get("/ws/cards"+path, live.ServeHTTP)
	}
}

// GetCard returns the stored configuration and its summary.
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	st, ok, err := h.store.Get(r.Context(), id)
	if err != nil {
		EngineError(w, err)
		return
	}
	if !ok {
		EngineError(w, domain.ErrNoState)
		return
	}
	JSON(w, http.StatusOK, cardResponse{
		State:    st,
		Headline: currentHeadline,
		Summary:  card.Summary(st, currentHeadline),
	})
}

// DeleteCard forgets the stored configuration.
func (h *CardHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	removed, err := h.store.Delete(r.Context(), id)
	if err != nil {
		EngineError(w, err)
		return
	}
	if !removed {
		EngineError(w, domain.ErrNoState)
		return
	}
	if h.onDelete != nil {
		h.onDelete(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Draw creates or refreshes the card. The body is optional.
func (h *CardHandler) Draw(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	var req drawRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	res, err := h.engine.Draw(r.Context(), id, req.Text)
	status := http.StatusOK
	if res.Headline == card.HeadlineCreated {
		status = http.StatusCreated
	}
	h.writeResult(w, id, res, err, status)
}

// Adjust applies one adjustment.
func (h *CardHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	var req adjust.Request
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.Apply(r.Context(), id, req)
	h.writeResult(w, id, res, err, http.StatusOK)
}

// Command runs a raw chat line through the command layer.
func (h *CardHandler) Command(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	var req commandRequest
	if !decode(w, r, &req) {
		return
	}
	reply, err := h.commands.Handle(r.Context(), id, req.Text)
	body := map[string]interface{}{
		"handled": reply.Handled,
		"text":    reply.Text,
	}
	if reply.Result != nil {
		body["result"] = newCardResponse(*reply.Result)
	}
	if reply.Session != nil {
		body["session"] = reply.Session
	}
	if err != nil {
		body["error"] = err.Error()
	}
	JSON(w, StatusFor(err), body)
}

// GetSession returns the running interactive session.
func (h *CardHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	sess, ok := h.sessions.Get(id)
	if !ok {
		EngineError(w, domain.ErrNoActiveSession)
		return
	}
	JSON(w, http.StatusOK, sess)
}

// StartSession opens the interactive flow, replacing a running one.
func (h *CardHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	out, err := h.sessions.Start(r.Context(), id)
	if err != nil {
		EngineError(w, err)
		return
	}
	JSON(w, http.StatusCreated, out)
}

// SubmitInput feeds one reply to the interactive flow.
func (h *CardHandler) SubmitInput(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	var req inputRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.sessions.Submit(r.Context(), id, req.Input)
	body := map[string]interface{}{
		"session": out.Session,
		"prompt":  out.Prompt,
	}
	if out.Result != nil {
		body["result"] = newCardResponse(*out.Result)
	}
	if err != nil {
		body["error"] = err.Error()
	}
	JSON(w, StatusFor(err), body)
}

// CancelSession ends the interactive flow.
func (h *CardHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	cancelled, err := h.sessions.Cancel(r.Context(), id)
	if err != nil {
		EngineError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// writeResult writes a mutation result. A render failure still returns the
// saved configuration, with 502.
func (h *CardHandler) writeResult(w http.ResponseWriter, id domain.Identity, res card.Result, err error, okStatus int) {
	if err == nil {
		JSON(w, okStatus, newCardResponse(res))
		return
	}
	if res.Headline == "" {
		EngineError(w, err)
		return
	}
	slog.Warn("Card saved but render failed",
		"platform", id.Platform,
		"conversation", id.Conversation,
		"error", err)
	JSON(w, StatusFor(err), newCardResponse(res))
}
