package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/keypanel/keypanel/internal/model"
)

type fakeCounter struct {
	apps, keys int
	err        error
}

func (f fakeCounter) CountApps(context.Context) (int, error) { return f.apps, f.err }
func (f fakeCounter) CountKeys(context.Context) (int, error) { return f.keys, f.err }

func TestKeyEvents(t *testing.T) {
	m := New(nil)
	m.KeyGenerated()
	m.KeyGenerated()
	m.KeyValidated(model.ValidationResult{Valid: true})
	m.KeyValidated(model.Rejected(model.ReasonExpired))
	m.KeyValidated(model.Rejected(model.ReasonExpired))

	if got := testutil.ToFloat64(m.generated); got != 2 {
		t.Errorf("generated = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.validations.WithLabelValues(resultValid)); got != 1 {
		t.Errorf("valid = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.validations.WithLabelValues(model.ReasonExpired)); got != 2 {
		t.Errorf("expired = %v, want 2", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New(nil)
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Delete("/api/keys/{key}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, key := range []string{"AAA", "BBB", "CCC"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("DELETE", "/api/keys/"+key, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("DELETE", "/api/keys/{key}", "200")); got != 3 {
		t.Errorf("DELETE /api/keys/{key} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched 404 = %v, want 1", got)
	}
}

func TestInventoryGauges(t *testing.T) {
	m := New(fakeCounter{apps: 3, keys: 42})
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body := rr.Body.String()
	for _, want := range []string{"keypanel_apps 3", "keypanel_license_keys 42", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestInventoryGaugeOnStoreError(t *testing.T) {
	m := New(fakeCounter{err: errors.New("closed")})
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rr.Body.String(), "keypanel_apps -1") {
		t.Errorf("expected -1 sentinel for failed count, got:\n%s", rr.Body.String())
	}
}
