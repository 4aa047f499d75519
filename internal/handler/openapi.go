package handler

import (
	"net/http"

	"github.com/keypanel/keypanel/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI 3.1 description of the API.
type OpenAPIHandler struct {
	adminAuth bool
}

// NewOpenAPIHandler creates a new OpenAPIHandler. adminAuth marks the
// app-management routes as bearer-protected.
func NewOpenAPIHandler(adminAuth bool) *OpenAPIHandler {
	return &OpenAPIHandler{adminAuth: adminAuth}
}

// ServeSpec returns the document with the request's own origin as server.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	doc := openapi.Generate(openapi.Options{
		BaseURL:   baseURL(r),
		AdminAuth: h.adminAuth,
	})
	writeJSON(w, http.StatusOK, doc)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd == "http" || fwd == "https" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
