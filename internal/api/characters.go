package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CharacterHandler serves the read-only character catalog.
type CharacterHandler struct {
	*Handler
}

// NewCharacterHandler creates a new character handler.
func NewCharacterHandler(base *Handler) *CharacterHandler {
	return &CharacterHandler{Handler: base}
}

// RegisterRoutes registers character routes.
func (h *CharacterHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/characters", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/groups", h.Groups)
		r.Get("/{name}", h.Detail)
	})
}

// List returns the roster in selection order.
func (h *CharacterHandler) List(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.catalog.Roster())
}

// Groups returns the characters by group.
func (h *CharacterHandler) Groups(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.catalog.Groups())
}

// Detail resolves a name or alias to its entry.
func (h *CharacterHandler) Detail(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.catalog.Detail(chi.URLParam(r, "name"))
	if !ok {
		Error(w, http.StatusNotFound, "unknown character")
		return
	}
	JSON(w, http.StatusOK, entry)
}
