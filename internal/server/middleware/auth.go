package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/service"
)

type contextKeyAuth string

const (
	// AppKey is the context key for the authenticated app.
	AppKey contextKeyAuth = "auth_app"
	// AdminKey is the context key for the authenticated admin principal.
	AdminKey contextKeyAuth = "auth_admin"
)

// Credential headers sent by client applications.
const (
	HeaderOwnerID   = "X-Owner-ID"
	HeaderSecretKey = "X-Secret-Key"
)

// AppAuthenticator resolves app credentials. *service.AuthService
// implements it.
type AppAuthenticator interface {
	Authenticate(ctx context.Context, ownerID, secretKey string) (*model.App, error)
}

// AdminValidator verifies admin bearer tokens. *service.AuthService
// implements it.
type AdminValidator interface {
	AdminEnabled() bool
	ValidateAdminJWT(token string) (*service.AdminPrincipal, error)
}

// AuthenticateApp returns an HTTP middleware that resolves the app named by
// the X-Owner-ID and X-Secret-Key headers. On success the app is attached to
// the request context. Missing or invalid credentials get a 401.
func AuthenticateApp(auth AppAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			app, err := auth.Authenticate(r.Context(),
				r.Header.Get(HeaderOwnerID), r.Header.Get(HeaderSecretKey))
			if err != nil {
				switch {
				case errors.Is(err, service.ErrUnauthenticated),
					errors.Is(err, service.ErrInvalidCredentials):
					logger.DebugContext(r.Context(), "app authentication failed",
						"owner_id", r.Header.Get(HeaderOwnerID),
						"error", err,
					)
					writeAuthError(w, http.StatusUnauthorized, err.Error())
				default:
					logger.ErrorContext(r.Context(), "app authentication error", "error", err)
					writeAuthError(w, http.StatusInternalServerError, "Internal error")
				}
				return
			}

			annotateApp(r.Context(), app.Name)
			ctx := context.WithValue(r.Context(), AppKey, app)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns an HTTP middleware that demands a valid admin bearer
// token. When admin tokens are not configured it lets every request through.
func RequireAdmin(auth AdminValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !auth.AdminEnabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "Admin token required")
				return
			}
			p, err := auth.ValidateAdminJWT(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid admin token")
				return
			}
			ctx := context.WithValue(r.Context(), AdminKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetApp extracts the authenticated app from the context. Returns nil if
// the request did not pass AuthenticateApp.
func GetApp(ctx context.Context) *model.App {
	if app, ok := ctx.Value(AppKey).(*model.App); ok {
		return app
	}
	return nil
}

// GetAdmin extracts the admin principal from the context.
func GetAdmin(ctx context.Context) *service.AdminPrincipal {
	if p, ok := ctx.Value(AdminKey).(*service.AdminPrincipal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	writeJSONStatus(w, status, model.ErrorResponse{Error: message})
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
