// Package api provides HTTP handlers for the card engine.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/pjsk-cards/internal/adjust"
	"github.com/ashureev/pjsk-cards/internal/character"
	"github.com/ashureev/pjsk-cards/internal/command"
	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/session"
	"github.com/ashureev/pjsk-cards/internal/state"
	"github.com/ashureev/pjsk-cards/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Handler provides common handler utilities.
type Handler struct {
	store    *state.Store
	engine   *adjust.Engine
	sessions *session.Controller
	commands *command.Handler
	catalog  *character.Catalog
	repo     store.Repository
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(st *state.Store, engine *adjust.Engine, sessions *session.Controller, commands *command.Handler, catalog *character.Catalog, repo store.Repository) *Handler {
	if repo == nil {
		repo = store.Nop{}
	}
	return &Handler{
		store:    st,
		engine:   engine,
		sessions: sessions,
		commands: commands,
		catalog:  catalog,
		repo:     repo,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	var ve *domain.ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve), errors.Is(err, domain.ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoState), errors.Is(err, domain.ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrRenderFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// EngineError writes err with its mapped status. Validation errors carry
// the offending field.
func EngineError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := map[string]string{"error": err.Error()}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		body["error"] = ve.Message
		body["field"] = ve.Field
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		body["error"] = "internal error"
	}
	JSON(w, status, body)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
