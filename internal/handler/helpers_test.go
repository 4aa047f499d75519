package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/service"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// ---------------------------------------------------------------------------
// flexBool / flexString tests
// ---------------------------------------------------------------------------

func TestFlexBool(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{`{"ban":true}`, true},
		{`{"ban":false}`, false},
		{`{"ban":null}`, false},
		{`{}`, false},
		{`{"ban":0}`, false},
		{`{"ban":1}`, true},
		{`{"ban":-0.5}`, true},
		{`{"ban":""}`, false},
		{`{"ban":"false"}`, true},
		{`{"ban":{}}`, true},
		{`{"ban":[]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			var req banRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if bool(req.Ban) != tt.want {
				t.Errorf("ban = %v, want %v", req.Ban, tt.want)
			}
		})
	}
}

func TestFlexString(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"key":"ABC-123"}`, "ABC-123"},
		{`{"key":42}`, "42"},
		{`{"key":null}`, ""},
		{`{"key":true}`, ""},
		{`{"key":{"a":1}}`, ""},
		{`{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			var req keyRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if string(req.Key) != tt.want {
				t.Errorf("key = %q, want %q", req.Key, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// readJSON tests
// ---------------------------------------------------------------------------

func TestReadJSONEmptyBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(""))
	req := generateRequest{Note: "keep"}
	if err := readJSON(r, &req); err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if req.Note != "keep" || req.Days.Set {
		t.Errorf("empty body changed request: %+v", req)
	}
}

func TestReadJSONMalformed(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader("{nope"))
	var req generateRequest
	if err := readJSON(r, &req); err == nil {
		t.Error("expected decode error")
	}
}

// ---------------------------------------------------------------------------
// writeServiceError tests
// ---------------------------------------------------------------------------

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"input error", service.ErrKeyNotFound, http.StatusOK, "Key not found"},
		{"wrapped input error", fmt.Errorf("import: %w", service.ErrInvalidDocument), http.StatusOK, "import: Invalid import document"},
		{"auth error", service.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid app credentials"},
		{"store failure", errors.New("database is locked"), http.StatusInternalServerError, internalErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(rr, httptest.NewRequest("POST", "/api/keys/ban", nil), discardLogger, tt.err)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body struct {
				Success *bool  `json:"success"`
				Error   string `json:"error"`
			}
			json.NewDecoder(rr.Body).Decode(&body)
			if body.Error != tt.wantError {
				t.Errorf("error = %q, want %q", body.Error, tt.wantError)
			}
			if body.Success != nil && *body.Success {
				t.Error("success should be false")
			}
		})
	}
}

func TestStoreFailureDoesNotLeakDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(rr, httptest.NewRequest("GET", "/api/keys", nil), discardLogger,
		errors.New("open /var/lib/keypanel/keypanel.db: permission denied"))
	if strings.Contains(rr.Body.String(), "permission denied") {
		t.Errorf("response leaks error detail: %s", rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Handler tests without the credential guard
// ---------------------------------------------------------------------------

func TestKeyHandlerWithoutAppIsUnauthorized(t *testing.T) {
	h := NewKeyHandler(nil, discardLogger)
	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest("GET", "/api/keys", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
	var body model.ErrorResponse
	json.NewDecoder(rr.Body).Decode(&body)
	if body.Error != "Missing app credentials" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestOpenAPIHandlerUsesRequestOrigin(t *testing.T) {
	tests := []struct {
		name  string
		proto string
		want  string
	}{
		{"plain", "", "http://panel.example:8080"},
		{"behind tls proxy", "https", "https://panel.example:8080"},
		{"bogus proto ignored", "gopher", "http://panel.example:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://panel.example:8080/openapi.json", nil)
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			rr := httptest.NewRecorder()
			NewOpenAPIHandler(false).ServeSpec(rr, req)

			var doc struct {
				Servers []struct {
					URL string `json:"url"`
				} `json:"servers"`
			}
			json.NewDecoder(rr.Body).Decode(&doc)
			if len(doc.Servers) != 1 || doc.Servers[0].URL != tt.want {
				t.Errorf("servers = %+v, want %s", doc.Servers, tt.want)
			}
		})
	}
}
