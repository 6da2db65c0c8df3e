package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/officeboard/panel/internal/apperr"
	"github.com/officeboard/panel/internal/bridge"
	"github.com/officeboard/panel/internal/creator"
	"github.com/officeboard/panel/internal/documents"
	"github.com/officeboard/panel/internal/models"
	"github.com/officeboard/panel/internal/session"
	"github.com/officeboard/panel/internal/settings"
)

// Gate views consumed by the view layer.
const (
	ViewLoading          = "loading"
	ViewInstallation     = "installation"
	ViewSettingsRequired = "settings_required"
	ViewContactAdmin     = "contact_admin"
	ViewSettings         = "settings"
	ViewDocuments        = "documents"
)

// Handler holds the panel route handlers.
type Handler struct {
	session  *session.Manager
	settings *settings.Store
	docs     *documents.Store
	creator  *creator.Creator
	emitter  *bridge.Emitter
}

// NewHandler creates a new Handler.
func NewHandler(sess *session.Manager, st *settings.Store, docs *documents.Store, cr *creator.Creator, em *bridge.Emitter) *Handler {
	return &Handler{session: sess, settings: st, docs: docs, creator: cr, emitter: em}
}

// gateView resolves the application gate for the view layer.
func (h *Handler) gateView() string {
	switch {
	case h.session.Loading() || h.settings.Loading():
		return ViewLoading
	case !h.session.Authorized() || h.docs.AuthError():
		return ViewInstallation
	case h.docs.ServerConfigError() && h.session.Admin():
		return ViewSettingsRequired
	case h.docs.ServerConfigError():
		return ViewContactAdmin
	case !h.settings.HasSettings():
		return ViewSettings
	default:
		return ViewDocuments
	}
}

// State handles GET /api/state.
func (h *Handler) State(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"view":                h.gateView(),
		"loading":             h.session.Loading(),
		"authorized":          h.session.Authorized(),
		"admin":               h.session.Admin(),
		"has_settings":        h.settings.HasSettings(),
		"auth_error":          h.docs.AuthError(),
		"server_config_error": h.docs.ServerConfigError(),
		"converting":          h.docs.Converting(),
	})
}

// ListDocuments handles GET /api/documents. A q parameter updates the
// stored search query before the filtered view is returned.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("q") {
		h.docs.SetSearchQuery(q.Get("q"))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":   h.docs.Filtered(),
		"total":       len(h.docs.Documents()),
		"cursor":      h.docs.Cursor(),
		"initialized": h.docs.Initialized(),
		"loading":     h.docs.Loading(),
	})
}

// CreateDocument handles POST /api/documents.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	h.creator.SetName(req.Name)
	h.creator.SetType(req.Type)
	file, err := h.creator.Create(r.Context())
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		} else {
			slog.Error("create document failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadGateway, errorBody("failed to create a new document"))
		}
		return
	}
	h.creator.Reset()

	if err := h.emitter.DocumentCreated(r.Context(), *file); err != nil {
		slog.Warn("document_created broadcast failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusCreated, file)
}

// DeleteDocument handles DELETE /api/documents/{id}.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, ok := h.docs.Get(id)
	if !ok {
		doc = models.Document{ID: id}
	}
	if err := h.docs.Delete(r.Context(), doc); err != nil {
		slog.Error("delete document failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("failed to delete the document"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConvertDocument handles POST /api/documents/{id}/pdf.
func (h *Handler) ConvertDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, ok := h.docs.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	fileURL, err := h.docs.DownloadPDF(r.Context(), doc)
	if err != nil {
		slog.Error("convert document failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("could not get converted document"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_url": fileURL})
}

// OpenDocument handles POST /api/documents/{id}/open: launches the backend
// editor for the document through the board.
func (h *Handler) OpenDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, ok := h.docs.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	if err := h.docs.Open(r.Context(), doc); err != nil {
		if apperr.IsAuth(err) {
			writeJSON(w, http.StatusUnauthorized, errorBody("not authorized"))
			return
		}
		slog.Error("open document failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("failed to open the document"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NavigateDocument handles POST /api/documents/{id}/navigate.
func (h *Handler) NavigateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, ok := h.docs.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	if err := h.docs.Navigate(r.Context(), doc); err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody("could not navigate to the document"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshDocuments handles POST /api/documents/refresh: refreshes the local
// listing and broadcasts the refresh to peers.
func (h *Handler) RefreshDocuments(w http.ResponseWriter, r *http.Request) {
	if err := h.emitter.RefreshDocuments(r.Context()); err != nil {
		slog.Warn("refresh broadcast failed", slog.String("error", err.Error()))
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetSettings handles GET /api/settings. Settings are admin-only.
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	if !h.session.Admin() {
		writeJSON(w, http.StatusForbidden, errorBody("access denied"))
		return
	}
	writeJSON(w, http.StatusOK, h.settings.Snapshot())
}

// SaveSettings handles PUT /api/settings.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	if !h.session.Admin() {
		writeJSON(w, http.StatusForbidden, errorBody("access denied"))
		return
	}

	var req struct {
		Address string `json:"address"`
		Header  string `json:"header"`
		Secret  string `json:"secret"`
		Demo    bool   `json:"demo"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	// Demo mode needs no credentials; a regular save does.
	if !req.Demo {
		if err := settings.ValidateForm(req.Address, req.Header, req.Secret); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}

	h.settings.SetAddress(req.Address)
	h.settings.SetHeader(req.Header)
	h.settings.SetSecret(req.Secret)
	h.settings.SetDemo(req.Demo)

	if err := h.settings.Save(r.Context()); err != nil {
		if apperr.KindOf(err) == apperr.KindAccessDenied {
			writeJSON(w, http.StatusForbidden, errorBody("access denied"))
			return
		}
		slog.Warn("save settings failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, h.settings.Snapshot())
}

// SupportedTypes handles GET /api/documents/types.
func (h *Handler) SupportedTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"types": creator.SupportedTypes()})
}
