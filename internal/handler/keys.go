package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/server/middleware"
	"github.com/keypanel/keypanel/internal/service"
)

// KeyHandler serves the key lifecycle endpoints. Every route runs behind
// middleware.AuthenticateApp and acts on the app it resolved.
type KeyHandler struct {
	keys   *service.KeyService
	logger *slog.Logger
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(keys *service.KeyService, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{keys: keys, logger: logger}
}

type generateRequest struct {
	Days model.Days `json:"days"`
	Note flexString `json:"note"`
}

type validateRequest struct {
	Key  flexString `json:"key"`
	HWID flexString `json:"hwid"`
}

type banRequest struct {
	Key flexString `json:"key"`
	Ban flexBool   `json:"ban"`
}

type noteRequest struct {
	Key  flexString `json:"key"`
	Note flexString `json:"note"`
}

type keyRequest struct {
	Key flexString `json:"key"`
}

type extendRequest struct {
	Key  flexString `json:"key"`
	Days model.Days `json:"days"`
}

// app returns the authenticated app, writing a 401 if there is none.
func (h *KeyHandler) app(w http.ResponseWriter, r *http.Request) (*model.App, bool) {
	app := middleware.GetApp(r.Context())
	if app == nil {
		writeJSON(w, http.StatusUnauthorized, model.ErrorResponse{Error: service.ErrUnauthenticated.Error()})
		return nil, false
	}
	return app, true
}

// Generate issues a new license key.
// POST /api/keys/generate
func (h *KeyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	key, err := h.keys.Generate(r.Context(), app, req.Days, string(req.Note))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.KeyGeneratedResponse{
		Success: true,
		Key:     key.Key,
		Expires: key.Expires,
		Note:    key.Note,
	})
}

// Validate checks a key for a client and binds its hardware id on first use.
// POST /api/keys/validate
func (h *KeyHandler) Validate(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	var req validateRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	res, err := h.keys.Validate(r.Context(), app, string(req.Key), string(req.HWID))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Ban bans or unbans a key.
// POST /api/keys/ban
func (h *KeyHandler) Ban(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	var req banRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	banned := bool(req.Ban)
	if err := h.keys.SetBanned(r.Context(), app, string(req.Key), banned); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.BanResponse{Success: true, Banned: banned})
}

// Note replaces the note of a key.
// POST /api/keys/note
func (h *KeyHandler) Note(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.keys.UpdateNote(r.Context(), app, string(req.Key), string(req.Note)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Result{Success: true})
}

// ResetHWID clears the hardware binding of a key.
// POST /api/keys/reset-hwid
func (h *KeyHandler) ResetHWID(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	var req keyRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.keys.ResetHWID(r.Context(), app, string(req.Key)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Result{Success: true})
}

// Extend pushes a key's expiry forward.
// POST /api/keys/extend
func (h *KeyHandler) Extend(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	var req extendRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	expires, err := h.keys.Extend(r.Context(), app, string(req.Key), req.Days)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ExtendResponse{Success: true, Expires: expires})
}

// Delete removes a key. A missing key is reported as deleted=false.
// DELETE /api/keys/{key}
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}

	deleted, err := h.keys.Delete(r.Context(), app, chi.URLParam(r, "key"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.DeleteResponse{Success: true, Deleted: deleted})
}

// List returns the app's keys with derived status and remaining time.
// GET /api/keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}

	keys, err := h.keys.List(r.Context(), app)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.KeyListResponse{Success: true, Keys: keys})
}

// Stats returns aggregate key counts for the app.
// GET /api/stats
func (h *KeyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}

	stats, err := h.keys.Stats(r.Context(), app)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
