package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/store"
)

const jwtIssuer = "keypanel"

// unknownOwnerHash stands in for the stored hash when the owner id is unknown.
var unknownOwnerHash = store.HashSecret("keypanel-unknown-owner")

// AdminPrincipal identifies the holder of an admin token.
type AdminPrincipal struct {
	Subject string
}

// AuthService authenticates app credential pairs and admin tokens.
type AuthService struct {
	store     *store.Store
	jwtSecret []byte
}

// NewAuthService creates an AuthService. An empty jwtSecret disables admin
// tokens; AdminEnabled then reports false.
func NewAuthService(st *store.Store, jwtSecret string) *AuthService {
	return &AuthService{
		store:     st,
		jwtSecret: []byte(jwtSecret),
	}
}

// Authenticate resolves the app owning the (ownerID, secretKey) pair.
func (s *AuthService) Authenticate(ctx context.Context, ownerID, secretKey string) (*model.App, error) {
	if ownerID == "" || secretKey == "" {
		return nil, ErrUnauthenticated
	}

	app, err := s.store.GetAppByOwner(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		// Unknown owners go through the same hash and compare as known ones.
		subtle.ConstantTimeCompare([]byte(store.HashSecret(secretKey)), []byte(unknownOwnerHash))
		return nil, ErrInvalidCredentials
	}

	got := store.HashSecret(secretKey)
	if subtle.ConstantTimeCompare([]byte(got), []byte(app.SecretHash)) != 1 {
		return nil, ErrInvalidCredentials
	}
	return app, nil
}

// AdminEnabled reports whether admin tokens are configured.
func (s *AuthService) AdminEnabled() bool {
	return len(s.jwtSecret) > 0
}

// IssueAdminJWT creates a signed admin token for subject.
func (s *AuthService) IssueAdminJWT(subject string, ttl time.Duration) (string, error) {
	if !s.AdminEnabled() {
		return "", errors.New("auth.jwt_secret is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    jwtIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateAdminJWT verifies an admin bearer token.
func (s *AuthService) ValidateAdminJWT(tokenStr string) (*AdminPrincipal, error) {
	if !s.AdminEnabled() {
		return nil, ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(jwtIssuer))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return &AdminPrincipal{Subject: claims.Subject}, nil
}
