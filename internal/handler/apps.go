package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/service"
)

// AppHandler serves the application registry endpoints.
type AppHandler struct {
	apps   *service.AppService
	logger *slog.Logger
}

// NewAppHandler creates a new AppHandler.
func NewAppHandler(apps *service.AppService, logger *slog.Logger) *AppHandler {
	return &AppHandler{apps: apps, logger: logger}
}

type createAppRequest struct {
	Name flexString `json:"name"`
}

// Create registers a new app and returns its credentials once.
// POST /api/apps/create
func (h *AppHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	creds, err := h.apps.Create(r.Context(), string(req.Name))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.AppCreatedResponse{Success: true, App: creds})
}

// List returns every app with key counts.
// GET /api/apps
func (h *AppHandler) List(w http.ResponseWriter, r *http.Request) {
	apps, err := h.apps.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.AppListResponse{Success: true, Apps: apps})
}

// Delete removes an app and all of its keys.
// DELETE /api/apps/{id}
func (h *AppHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.apps.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if !deleted {
		writeFailure(w, service.ErrAppNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.Result{Success: true})
}

// Rotate replaces an app's secret and returns the new credentials once.
// POST /api/apps/{id}/rotate
func (h *AppHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	creds, err := h.apps.Rotate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.AppCreatedResponse{Success: true, App: creds})
}
