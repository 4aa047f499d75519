package handler

import (
	"log/slog"
	"net/http"

	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/service"
)

// SettingsHandler serves deployment-wide settings.
type SettingsHandler struct {
	settings *service.SettingsService
	logger   *slog.Logger
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settings *service.SettingsService, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

// updateSettingsRequest accepts both {"settings":{"keyFormat":...}} and the
// flat {"keyFormat":...} form.
type updateSettingsRequest struct {
	Settings  *model.Settings `json:"settings"`
	KeyFormat string          `json:"keyFormat"`
}

// Get returns the current settings.
// GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SettingsResponse{Success: true, Settings: settings})
}

// Update replaces the provided settings.
// POST /api/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	in := model.Settings{KeyFormat: req.KeyFormat}
	if req.Settings != nil {
		in = *req.Settings
	}

	settings, err := h.settings.Update(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SettingsResponse{Success: true, Settings: settings})
}
