// Package service holds the keypanel business logic: the app registry, the
// credential guard, the key lifecycle engine, settings and bulk transfer.
package service

import (
	"log/slog"

	"github.com/keypanel/keypanel/internal/store"
)

// Services bundles every service built over one store. Apps and Keys share
// a lock table so app deletion and key mutations never interleave.
type Services struct {
	Apps     *AppService
	Keys     *KeyService
	Auth     *AuthService
	Settings *SettingsService
	Transfer *TransferService
}

// New wires all services over st.
func New(st *store.Store, jwtSecret string, logger *slog.Logger) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	locks := NewLocks()
	settings := NewSettingsService(st, logger)
	return &Services{
		Apps:     NewAppService(st, locks, logger),
		Keys:     NewKeyService(st, settings, locks, logger),
		Auth:     NewAuthService(st, jwtSecret),
		Settings: settings,
		Transfer: NewTransferService(st, logger),
	}
}
