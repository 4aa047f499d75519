package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keypanel/keypanel/internal/keygen"
	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/store"
)

const (
	defaultDays = 1
	// Attempts made to find an unused token before giving up.
	maxGenerateAttempts = 5
	// Rereads allowed when a key changes under a validation.
	maxBindAttempts = 3
)

// KeyService runs the license key lifecycle for one authenticated app at a
// time. Mutations on an app are serialized through Locks; reads see the
// latest committed state.
type KeyService struct {
	store    *store.Store
	settings *SettingsService
	locks    *Locks
	logger   *slog.Logger
	now      func() time.Time
	observer Observer
}

// Observer is told about key lifecycle events. Metrics implement it.
type Observer interface {
	KeyValidated(res model.ValidationResult)
	KeyGenerated()
}

// SetObserver installs o. It must be called before the service is shared.
func (s *KeyService) SetObserver(o Observer) {
	s.observer = o
}

// NewKeyService creates a KeyService.
func NewKeyService(st *store.Store, settings *SettingsService, locks *Locks, logger *slog.Logger) *KeyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyService{store: st, settings: settings, locks: locks, logger: logger, now: time.Now}
}

// ResolveDays applies the duration policy: an absent or unreadable value
// means one day, an explicit value below one is rejected.
func ResolveDays(d model.Days) (int, error) {
	if !d.Set {
		return defaultDays, nil
	}
	if d.N < 1 {
		return 0, ErrInvalidDuration
	}
	return d.N, nil
}

// Generate issues a new key for app, valid for the given number of days.
func (s *KeyService) Generate(ctx context.Context, app *model.App, days model.Days, note string) (*model.LicenseKey, error) {
	n, err := ResolveDays(days)
	if err != nil {
		return nil, err
	}
	format, err := s.settings.KeyFormat(ctx)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(app.ID)
	defer unlock()

	now := s.now().Unix()
	key := &model.LicenseKey{
		AppID:   app.ID,
		Created: now,
		Expires: now + int64(n)*model.SecondsPerDay,
		Note:    note,
	}

	for attempt := 1; ; attempt++ {
		token, err := keygen.NewLicenseKey(format)
		if err != nil {
			return nil, err
		}
		key.Key = token

		err = s.store.InsertKey(ctx, key)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAppNotFound
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("generate key: %w", err)
		}
		if attempt == maxGenerateAttempts {
			s.logger.Warn("no unused license key found", "app", app.Name, "format", format, "attempts", attempt)
			return nil, ErrKeySpaceFull
		}
		s.logger.Warn("license key collision, regenerating", "app", app.Name, "attempt", attempt)
	}

	s.logger.Info("key generated", "app", app.Name, "key", key.Key, "days", n)
	if s.observer != nil {
		s.observer.KeyGenerated()
	}
	return key, nil
}

// Validate checks a key presented by a client and binds hwid on first use.
// Checks run in a fixed order and stop at the first failure.
func (s *KeyService) Validate(ctx context.Context, app *model.App, token, hwid string) (model.ValidationResult, error) {
	res, err := s.validate(ctx, app, token, hwid)
	if err == nil && s.observer != nil {
		s.observer.KeyValidated(res)
	}
	return res, err
}

func (s *KeyService) validate(ctx context.Context, app *model.App, token, hwid string) (model.ValidationResult, error) {
	if token == "" {
		return model.Rejected(model.ReasonNoKey), nil
	}
	if hwid == "" {
		return model.Rejected(model.ReasonNoHWID), nil
	}

	unlock := s.locks.Lock(app.ID)
	defer unlock()

	// The bind is conditional on the key still looking as it was read. A
	// writer outside this process can change it in between, so reread and
	// check again.
	for attempt := 1; ; attempt++ {
		key, err := s.store.GetKey(ctx, app.ID, token)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return model.Rejected(model.ReasonNotFound), nil
			}
			return model.ValidationResult{}, fmt.Errorf("validate key: %w", err)
		}

		now := s.now().Unix()
		if key.Banned {
			return model.Rejected(model.ReasonBanned), nil
		}
		if key.Expires < now {
			res := model.Rejected(model.ReasonExpired)
			res.ExpiredAt = key.Expires
			return res, nil
		}
		if key.HWIDLocked() && *key.HWID != hwid {
			return model.Rejected(model.ReasonHWIDMismatch), nil
		}

		bound, err := s.store.BindKey(ctx, key, hwid, now)
		if err != nil {
			return model.ValidationResult{}, fmt.Errorf("validate key: %w", err)
		}
		if bound {
			return model.ValidationResult{
				Valid:   true,
				Created: key.Created,
				Expires: key.Expires,
				HWID:    hwid,
			}, nil
		}
		if attempt == maxBindAttempts {
			return model.ValidationResult{}, fmt.Errorf("validate key: key kept changing after %d attempts", attempt)
		}
		s.logger.Debug("key changed during validation, rereading", "app", app.Name, "attempt", attempt)
	}
}

// SetBanned bans or unbans a key. Expiry and hwid are left alone.
func (s *KeyService) SetBanned(ctx context.Context, app *model.App, token string, banned bool) error {
	err := s.mutate(app, func() error {
		return s.store.SetKeyBanned(ctx, app.ID, token, banned)
	})
	if err == nil {
		s.logger.Info("key ban updated", "app", app.Name, "key", token, "banned", banned)
	}
	return err
}

// UpdateNote replaces the note of a key.
func (s *KeyService) UpdateNote(ctx context.Context, app *model.App, token, note string) error {
	return s.mutate(app, func() error {
		return s.store.SetKeyNote(ctx, app.ID, token, note)
	})
}

// ResetHWID clears the hardware binding so the next successful validation
// binds again.
func (s *KeyService) ResetHWID(ctx context.Context, app *model.App, token string) error {
	err := s.mutate(app, func() error {
		return s.store.ClearKeyHWID(ctx, app.ID, token)
	})
	if err == nil {
		s.logger.Info("key hwid reset", "app", app.Name, "key", token)
	}
	return err
}

// Extend pushes the expiry of a key forward. Time is added to the current
// expiry, or to now if the key has already expired. Returns the new expiry.
func (s *KeyService) Extend(ctx context.Context, app *model.App, token string, days model.Days) (int64, error) {
	n, err := ResolveDays(days)
	if err != nil {
		return 0, err
	}

	var expires int64
	err = s.mutate(app, func() error {
		var err error
		expires, err = s.store.ExtendKey(ctx, app.ID, token, s.now().Unix(), int64(n)*model.SecondsPerDay)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("key extended", "app", app.Name, "key", token, "days", n)
	return expires, nil
}

// Delete removes a key. A missing key reports false without error.
func (s *KeyService) Delete(ctx context.Context, app *model.App, token string) (bool, error) {
	unlock := s.locks.Lock(app.ID)
	defer unlock()

	deleted, err := s.store.DeleteKey(ctx, app.ID, token)
	if err != nil {
		return false, fmt.Errorf("delete key: %w", err)
	}
	if deleted {
		s.logger.Info("key deleted", "app", app.Name, "key", token)
	}
	return deleted, nil
}

// List returns every key of app with its derived status and remaining time,
// in creation order.
func (s *KeyService) List(ctx context.Context, app *model.App) ([]model.KeyView, error) {
	keys, err := s.store.ListKeys(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	now := s.now().Unix()
	views := make([]model.KeyView, len(keys))
	for i := range keys {
		views[i] = keys[i].View(now)
	}
	return views, nil
}

// Stats aggregates the keys of app in a single pass.
func (s *KeyService) Stats(ctx context.Context, app *model.App) (model.KeyStats, error) {
	keys, err := s.store.ListKeys(ctx, app.ID)
	if err != nil {
		return model.KeyStats{}, err
	}
	now := s.now().Unix()
	var stats model.KeyStats
	for i := range keys {
		stats.Add(&keys[i], now)
	}
	return stats, nil
}

// mutate runs one store write under the app lock and maps a missing key to
// ErrKeyNotFound.
func (s *KeyService) mutate(app *model.App, write func() error) error {
	unlock := s.locks.Lock(app.ID)
	defer unlock()

	if err := write(); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("update key: %w", err)
	}
	return nil
}
