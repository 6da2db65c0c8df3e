package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all panel routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Gate state.
	r.Get("/state", h.State)

	// Document collection.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents", h.CreateDocument)
	r.Get("/documents/types", h.SupportedTypes)
	r.Post("/documents/refresh", h.RefreshDocuments)
	r.Delete("/documents/{id}", h.DeleteDocument)
	r.Post("/documents/{id}/open", h.OpenDocument)
	r.Post("/documents/{id}/pdf", h.ConvertDocument)
	r.Post("/documents/{id}/navigate", h.NavigateDocument)

	// Settings (admin-only, enforced in the handlers).
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.SaveSettings)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
