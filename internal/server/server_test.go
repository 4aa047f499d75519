package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/server/middleware"
	"github.com/keypanel/keypanel/internal/service"
	"github.com/keypanel/keypanel/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const testJWTSecret = "test-secret-for-jwt-integration-tests"

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server   *Server
	store    *store.Store
	services *service.Services
}

// newTestEnv creates a fresh test environment with an in-memory store and a
// fully wired Server. jwtSecret enables the admin gate when non-empty.
func newTestEnv(t *testing.T, jwtSecret string) *testEnv {
	t.Helper()

	st, err := store.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	services := service.New(st, jwtSecret, logger)

	cfg := DefaultConfig()
	cfg.ValidateRateLimit = 0
	return &testEnv{
		server:   New(cfg, st, services, logger),
		store:    st,
		services: services,
	}
}

// do executes an HTTP request against the test server and returns the recorder.
// headers is an optional map of header key-value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// doApp executes a request authenticated with an app's credential pair.
func (e *testEnv) doApp(t *testing.T, method, path string, body io.Reader, app *model.AppCredentials) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		middleware.HeaderOwnerID:   app.OwnerID,
		middleware.HeaderSecretKey: app.SecretKey,
	})
}

// createApp registers an app through the API and returns its credentials.
func (e *testEnv) createApp(t *testing.T, name string) *model.AppCredentials {
	t.Helper()
	rr := e.do(t, "POST", "/api/apps/create", jsonBody(t, map[string]string{"name": name}), nil)
	assertStatus(t, rr, http.StatusOK)

	var resp model.AppCreatedResponse
	decodeJSON(t, rr, &resp)
	if !resp.Success || resp.App == nil {
		t.Fatalf("createApp(%q): %s", name, rr.Body.String())
	}
	return resp.App
}

// generate issues a key for app and returns the response.
func (e *testEnv) generate(t *testing.T, app *model.AppCredentials, body any) model.KeyGeneratedResponse {
	t.Helper()
	rr := e.doApp(t, "POST", "/api/keys/generate", jsonBody(t, body), app)
	assertStatus(t, rr, http.StatusOK)

	var resp model.KeyGeneratedResponse
	decodeJSON(t, rr, &resp)
	if !resp.Success {
		t.Fatalf("generate: %s", rr.Body.String())
	}
	return resp
}

// validate checks a key for app and returns the result.
func (e *testEnv) validate(t *testing.T, app *model.AppCredentials, key, hwid string) model.ValidationResult {
	t.Helper()
	rr := e.doApp(t, "POST", "/api/keys/validate", jsonBody(t, map[string]string{"key": key, "hwid": hwid}), app)
	assertStatus(t, rr, http.StatusOK)

	var res model.ValidationResult
	decodeJSON(t, rr, &res)
	return res
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func assertContentType(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	got := rr.Header().Get("Content-Type")
	if got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health check tests
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "")

	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t, "")

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Status != "ok" || resp.Checks["store"] != "ok" {
		t.Errorf("readyz = %+v", resp)
	}
}

func TestReadyzStoreClosed(t *testing.T) {
	env := newTestEnv(t, "")
	env.store.Close()

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusServiceUnavailable)
}

func TestOpenAPIDocument(t *testing.T) {
	env := newTestEnv(t, "")

	rr := env.do(t, "GET", "/openapi.json", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var doc struct {
		OpenAPI string                     `json:"openapi"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	decodeJSON(t, rr, &doc)
	if doc.OpenAPI != "3.1.0" {
		t.Errorf("openapi = %q", doc.OpenAPI)
	}
	for _, p := range []string{"/api/apps/create", "/api/keys/validate", "/api/stats"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Errorf("document missing %s", p)
		}
	}
}

// ---------------------------------------------------------------------------
// End-to-end scenarios
// ---------------------------------------------------------------------------

func TestScenarioBindThenMismatch(t *testing.T) {
	env := newTestEnv(t, "")
	app := env.createApp(t, "Acme")

	gen := env.generate(t, app, map[string]any{"days": 1, "note": "trial"})
	if gen.Note != "trial" {
		t.Errorf("note = %q, want trial", gen.Note)
	}

	first := env.validate(t, app, gen.Key, "ABC")
	if !first.Valid || first.HWID != "ABC" {
		t.Fatalf("first validate = %+v, want valid with hwid ABC", first)
	}

	second := env.validate(t, app, gen.Key, "XYZ")
	if second.Valid || second.Reason != model.ReasonHWIDMismatch {
		t.Errorf("second validate = %+v, want hwid_mismatch", second)
	}

	again := env.validate(t, app, gen.Key, "ABC")
	if !again.Valid {
		t.Errorf("same hwid should still validate: %+v", again)
	}
}

func TestScenarioBannedShowsInList(t *testing.T) {
	env := newTestEnv(t, "")
	app := env.createApp(t, "Acme")
	gen := env.generate(t, app, map[string]any{"days": 30})

	rr := env.doApp(t, "POST", "/api/keys/ban", jsonBody(t, map[string]any{"key": gen.Key, "ban": true}), app)
	assertStatus(t, rr, http.StatusOK)
	var ban model.BanResponse
	decodeJSON(t, rr, &ban)
	if !ban.Success || !ban.Banned {
		t.Fatalf("ban = %+v", ban)
	}

	rr = env.doApp(t, "GET", "/api/keys", nil, app)
	assertStatus(t, rr, http.StatusOK)
	var list model.KeyListResponse
	decodeJSON(t, rr, &list)
	if len(list.Keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(list.Keys))
	}
	k := list.Keys[0]
	if k.Status != model.StatusBanned {
		t.Errorf("status = %q, want banned", k.Status)
	}
	if k.Expires <= time.Now().Unix() {
		t.Errorf("expires = %d, want in the future", k.Expires)
	}

	if res := env.validate(t, app, gen.Key, "HW"); res.Reason != model.ReasonBanned {
		t.Errorf("validate banned = %+v", res)
	}
}

func TestScenarioAppsAreIsolated(t *testing.T) {
	env := newTestEnv(t, "")
	a := env.createApp(t, "Alpha")
	b := env.createApp(t, "Bravo")

	gen := env.generate(t, a, map[string]any{"days": 7})
	if gen.Expires-time.Now().Unix() > 7*model.SecondsPerDay {
		t.Errorf("expires too far out: %d", gen.Expires)
	}

	if res := env.validate(t, b, gen.Key, "HW"); res.Reason != model.ReasonNotFound {
		t.Errorf("other app validate = %+v, want not_found", res)
	}

	rr := env.doApp(t, "GET", "/api/stats", nil, b)
	var stats model.KeyStats
	decodeJSON(t, rr, &stats)
	if stats.Total != 0 {
		t.Errorf("other app stats = %+v, want empty", stats)
	}
}

func TestKeyLifecycle(t *testing.T) {
	env := newTestEnv(t, "")
	app := env.createApp(t, "Acme")
	gen := env.generate(t, app, map[string]any{"days": "2"})

	// note
	rr := env.doApp(t, "POST", "/api/keys/note", jsonBody(t, map[string]string{"key": gen.Key, "note": "vip"}), app)
	var res model.Result
	decodeJSON(t, rr, &res)
	if !res.Success {
		t.Errorf("note: %+v", res)
	}

	// bind, reset, rebind
	env.validate(t, app, gen.Key, "ONE")
	rr = env.doApp(t, "POST", "/api/keys/reset-hwid", jsonBody(t, map[string]string{"key": gen.Key}), app)
	assertStatus(t, rr, http.StatusOK)
	if v := env.validate(t, app, gen.Key, "TWO"); !v.Valid || v.HWID != "TWO" {
		t.Errorf("rebind after reset = %+v", v)
	}

	// extend
	rr = env.doApp(t, "POST", "/api/keys/extend", jsonBody(t, map[string]any{"key": gen.Key, "days": 3}), app)
	var ext model.ExtendResponse
	decodeJSON(t, rr, &ext)
	if !ext.Success || ext.Expires != gen.Expires+3*model.SecondsPerDay {
		t.Errorf("extend = %+v, want expires %d", ext, gen.Expires+3*model.SecondsPerDay)
	}

	// stats
	rr = env.doApp(t, "GET", "/api/stats", nil, app)
	var stats model.KeyStats
	decodeJSON(t, rr, &stats)
	if stats.Total != 1 || stats.Active != 1 || stats.Used != 1 || stats.HWIDLocked != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// delete twice
	for i, want := range []bool{true, false} {
		rr = env.doApp(t, "DELETE", "/api/keys/"+gen.Key, nil, app)
		assertStatus(t, rr, http.StatusOK)
		var del model.DeleteResponse
		decodeJSON(t, rr, &del)
		if !del.Success || del.Deleted != want {
			t.Errorf("delete #%d = %+v, want deleted=%v", i+1, del, want)
		}
	}
}

func TestSoftFailures(t *testing.T) {
	env := newTestEnv(t, "")
	app := env.createApp(t, "Acme")

	tests := []struct {
		name      string
		path      string
		body      any
		wantError string
	}{
		{"invalid duration", "/api/keys/generate", map[string]any{"days": 0}, "Invalid duration"},
		{"negative duration", "/api/keys/generate", map[string]any{"days": -3}, "Invalid duration"},
		{"ban missing key", "/api/keys/ban", map[string]any{"key": "NOPE", "ban": true}, "Key not found"},
		{"note missing key", "/api/keys/note", map[string]any{"key": "NOPE", "note": "x"}, "Key not found"},
		{"extend missing key", "/api/keys/extend", map[string]any{"key": "NOPE", "days": 1}, "Key not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.doApp(t, "POST", tt.path, jsonBody(t, tt.body), app)
			assertStatus(t, rr, http.StatusOK)
			var res model.Result
			decodeJSON(t, rr, &res)
			if res.Success || res.Error != tt.wantError {
				t.Errorf("result = %+v, want error %q", res, tt.wantError)
			}
		})
	}
}

func TestValidateReasons(t *testing.T) {
	env := newTestEnv(t, "")
	app := env.createApp(t, "Acme")
	gen := env.generate(t, app, map[string]any{})

	tests := []struct {
		name string
		key  string
		hwid string
		want string
	}{
		{"no key", "", "HW", model.ReasonNoKey},
		{"no hwid", gen.Key, "", model.ReasonNoHWID},
		{"unknown key", "ZZZZ", "HW", model.ReasonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.validate(t, app, tt.key, tt.hwid)
			if res.Valid || res.Reason != tt.want {
				t.Errorf("validate = %+v, want %s", res, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// App registry
// ---------------------------------------------------------------------------

func TestAppRegistry(t *testing.T) {
	env := newTestEnv(t, "")
	app := env.createApp(t, "Acme")
	if len(app.ID) != 16 || len(app.OwnerID) != 16 || len(app.SecretKey) != 64 {
		t.Errorf("credentials = %+v", app)
	}
	env.generate(t, app, map[string]any{"days": 1})

	// duplicate name, any case
	rr := env.do(t, "POST", "/api/apps/create", jsonBody(t, map[string]string{"name": "ACME"}), nil)
	var res model.Result
	decodeJSON(t, rr, &res)
	if res.Success || res.Error != "App name already exists" {
		t.Errorf("duplicate create = %+v", res)
	}

	// listing never exposes the secret
	rr = env.do(t, "GET", "/api/apps", nil, nil)
	if strings.Contains(rr.Body.String(), app.SecretKey) {
		t.Error("app list leaks the secret key")
	}
	var list model.AppListResponse
	decodeJSON(t, rr, &list)
	if len(list.Apps) != 1 || list.Apps[0].KeyCount != 1 || list.Apps[0].ActiveKeys != 1 {
		t.Errorf("apps = %+v", list.Apps)
	}

	// rotate invalidates the old secret
	rr = env.do(t, "POST", "/api/apps/"+app.ID+"/rotate", nil, nil)
	var rotated model.AppCreatedResponse
	decodeJSON(t, rr, &rotated)
	if !rotated.Success || rotated.App.SecretKey == app.SecretKey {
		t.Fatalf("rotate = %+v", rotated)
	}
	rr = env.doApp(t, "GET", "/api/keys", nil, app)
	assertStatus(t, rr, http.StatusUnauthorized)
	rr = env.doApp(t, "GET", "/api/keys", nil, rotated.App)
	assertStatus(t, rr, http.StatusOK)

	// delete, then delete again
	rr = env.do(t, "DELETE", "/api/apps/"+app.ID, nil, nil)
	decodeJSON(t, rr, &res)
	if !res.Success {
		t.Errorf("delete = %+v", res)
	}
	rr = env.do(t, "DELETE", "/api/apps/"+app.ID, nil, nil)
	res = model.Result{}
	decodeJSON(t, rr, &res)
	if res.Success || res.Error != "App not found" {
		t.Errorf("second delete = %+v", res)
	}

	// deleted app's credentials stop working
	rr = env.doApp(t, "GET", "/api/keys", nil, rotated.App)
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestCreateAppShortName(t *testing.T) {
	env := newTestEnv(t, "")
	rr := env.do(t, "POST", "/api/apps/create", jsonBody(t, map[string]string{"name": " a "}), nil)
	assertStatus(t, rr, http.StatusOK)
	var res model.Result
	decodeJSON(t, rr, &res)
	if res.Success || res.Error != "App name must be at least 2 characters" {
		t.Errorf("result = %+v", res)
	}
}

// ---------------------------------------------------------------------------
// Guards
// ---------------------------------------------------------------------------

func TestAppCredentialGuard(t *testing.T) {
	env := newTestEnv(t, "")
	app := env.createApp(t, "Acme")

	tests := []struct {
		name      string
		headers   map[string]string
		wantError string
	}{
		{"no headers", nil, "Missing app credentials"},
		{"owner only", map[string]string{middleware.HeaderOwnerID: app.OwnerID}, "Missing app credentials"},
		{"wrong secret", map[string]string{
			middleware.HeaderOwnerID:   app.OwnerID,
			middleware.HeaderSecretKey: "WRONG",
		}, "Invalid app credentials"},
		{"unknown owner", map[string]string{
			middleware.HeaderOwnerID:   "NOBODY",
			middleware.HeaderSecretKey: app.SecretKey,
		}, "Invalid app credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "GET", "/api/keys", nil, tt.headers)
			assertStatus(t, rr, http.StatusUnauthorized)
			var resp model.ErrorResponse
			decodeJSON(t, rr, &resp)
			if resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
		})
	}
}

func TestAdminGate(t *testing.T) {
	env := newTestEnv(t, testJWTSecret)

	rr := env.do(t, "GET", "/api/apps", nil, nil)
	assertStatus(t, rr, http.StatusUnauthorized)

	token, err := env.services.Auth.IssueAdminJWT("operator", time.Hour)
	if err != nil {
		t.Fatalf("IssueAdminJWT: %v", err)
	}
	rr = env.do(t, "GET", "/api/apps", nil, map[string]string{"Authorization": "Bearer " + token})
	assertStatus(t, rr, http.StatusOK)

	rr = env.do(t, "GET", "/api/settings", nil, map[string]string{"Authorization": "Bearer garbage"})
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t, "")
	app := env.createApp(t, "Acme")

	rr := env.doApp(t, "POST", "/api/keys/generate", strings.NewReader("{not json"), app)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestSettingsFormatAppliesToGeneration(t *testing.T) {
	env := newTestEnv(t, "")
	app := env.createApp(t, "Acme")

	rr := env.do(t, "GET", "/api/settings", nil, nil)
	var got model.SettingsResponse
	decodeJSON(t, rr, &got)
	if got.Settings.KeyFormat != model.DefaultKeyFormat {
		t.Errorf("default format = %q", got.Settings.KeyFormat)
	}

	rr = env.do(t, "POST", "/api/settings", jsonBody(t, map[string]any{"settings": map[string]string{"keyFormat": "XXXX-XXXX"}}), nil)
	decodeJSON(t, rr, &got)
	if !got.Success || got.Settings.KeyFormat != "XXXX-XXXX" {
		t.Fatalf("update = %+v", got)
	}

	gen := env.generate(t, app, map[string]any{"days": 1})
	if len(gen.Key) != 9 || gen.Key[4] != '-' {
		t.Errorf("key %q does not follow XXXX-XXXX", gen.Key)
	}

	for _, body := range []any{
		map[string]string{"keyFormat": "ABC"},
		map[string]any{"settings": map[string]string{"keyFormat": ""}},
		map[string]any{"settings": map[string]string{}},
	} {
		rr = env.do(t, "POST", "/api/settings", jsonBody(t, body), nil)
		assertStatus(t, rr, http.StatusOK)
		var res model.Result
		decodeJSON(t, rr, &res)
		if res.Success || res.Error != service.ErrInvalidFormat.Error() {
			t.Errorf("POST /api/settings %v = %+v, want invalid format", body, res)
		}
	}

	rr = env.do(t, "GET", "/api/settings", nil, nil)
	decodeJSON(t, rr, &got)
	if got.Settings.KeyFormat != "XXXX-XXXX" {
		t.Errorf("format after rejected updates = %q", got.Settings.KeyFormat)
	}
}

func TestValidateRateLimit(t *testing.T) {
	st, err := store.NewStore("")
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	services := service.New(st, "", logger)

	cfg := DefaultConfig()
	cfg.ValidateRateLimit = 1
	env := &testEnv{server: New(cfg, st, services, logger), store: st, services: services}
	app := env.createApp(t, "Acme")

	env.validate(t, app, "ANY", "HW")
	rr := env.doApp(t, "POST", "/api/keys/validate", jsonBody(t, map[string]string{"key": "ANY", "hwid": "HW"}), app)
	assertStatus(t, rr, http.StatusTooManyRequests)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	app := env.createApp(t, "Metered")
	key := env.generate(t, app, map[string]any{"days": 1}).Key
	env.validate(t, app, key, "HW-1")
	env.validate(t, app, key, "HW-2")
	env.do(t, "GET", "/healthz", nil, nil)

	rr := env.do(t, "GET", "/metrics", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	body := rr.Body.String()

	for _, want := range []string{
		`keypanel_keys_generated_total 1`,
		`keypanel_keys_validations_total{result="valid"} 1`,
		`keypanel_keys_validations_total{result="hwid_mismatch"} 1`,
		`keypanel_http_requests_total{method="GET",route="/healthz",status="200"} 1`,
		`keypanel_http_requests_total{method="POST",route="/api/keys/validate",status="200"} 2`,
		`keypanel_apps 1`,
		`keypanel_license_keys 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	st, err := store.NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := DefaultConfig()
	cfg.Metrics = false
	srv := New(cfg, st, service.New(st, "", logger), logger)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("GET /metrics with metrics off = %d, want 404", rr.Code)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	st, err := store.NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.ShutdownTimeout = time.Second
	srv := New(cfg, st, service.New(st, "", logger), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestAPIRateLimit(t *testing.T) {
	st, err := store.NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := DefaultConfig()
	cfg.RateLimit = 2
	cfg.ValidateRateLimit = 0
	srv := New(cfg, st, service.New(st, "", logger), logger)

	var last int
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, httptest.NewRequest("GET", "/api/apps", nil))
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", last)
	}

	// Probes are outside /api and never limited.
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("/healthz = %d under API limit", rr.Code)
	}
}

func TestGenerateWithFullKeySpaceIsSoftFailure(t *testing.T) {
	env := newTestEnv(t, "")
	app := env.createApp(t, "Acme")
	if err := env.services.Settings.SetKeyFormat(context.Background(), "X"); err != nil {
		t.Fatalf("SetKeyFormat: %v", err)
	}

	var res model.Result
	for i := 0; i < 200; i++ {
		rr := env.doApp(t, "POST", "/api/keys/generate", jsonBody(t, map[string]any{"days": 1}), app)
		assertStatus(t, rr, http.StatusOK)
		res = model.Result{}
		decodeJSON(t, rr, &res)
		if !res.Success {
			break
		}
	}
	if res.Success || res.Error != service.ErrKeySpaceFull.Error() {
		t.Errorf("last generate = %+v, want %q", res, service.ErrKeySpaceFull)
	}
}
