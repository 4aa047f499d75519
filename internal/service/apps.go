package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/keypanel/keypanel/internal/keygen"
	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/store"
)

const minAppNameLen = 2

// AppService manages registered applications and their credentials.
type AppService struct {
	store  *store.Store
	locks  *Locks
	logger *slog.Logger
	now    func() time.Time
}

// NewAppService creates an AppService. locks must be shared with the
// KeyService operating on the same store.
func NewAppService(st *store.Store, locks *Locks, logger *slog.Logger) *AppService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppService{store: st, locks: locks, logger: logger, now: time.Now}
}

// Create registers a new app and returns its credentials. The raw secret is
// only available in this return value.
func (s *AppService) Create(ctx context.Context, name string) (*model.AppCredentials, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < minAppNameLen {
		return nil, ErrInvalidName
	}

	if _, err := s.store.GetAppByName(ctx, name); err == nil {
		return nil, ErrDuplicateName
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	id, err := keygen.NewID()
	if err != nil {
		return nil, err
	}
	ownerID, err := keygen.NewID()
	if err != nil {
		return nil, err
	}
	secret, err := keygen.NewSecret()
	if err != nil {
		return nil, err
	}

	app := &model.App{
		ID:         id,
		Name:       name,
		OwnerID:    ownerID,
		SecretHash: store.HashSecret(secret),
		Created:    s.now().Unix(),
	}
	if err := s.store.CreateApp(ctx, app); err != nil {
		// Two concurrent creates with the same name both pass the lookup;
		// the unique index decides.
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("create app: %w", err)
	}

	s.logger.Info("app created", "app", app.Name, "id", app.ID)

	return &model.AppCredentials{
		ID:        app.ID,
		Name:      app.Name,
		OwnerID:   app.OwnerID,
		SecretKey: secret,
		Created:   app.Created,
	}, nil
}

// List returns every app with its key counts. Secrets are never included.
func (s *AppService) List(ctx context.Context) ([]model.AppSummary, error) {
	return s.store.ListAppSummaries(ctx, s.now().Unix())
}

// Get returns an app by ID.
func (s *AppService) Get(ctx context.Context, id string) (*model.App, error) {
	app, err := s.store.GetApp(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAppNotFound
	}
	return app, err
}

// Resolve finds an app by ID or, failing that, by name.
func (s *AppService) Resolve(ctx context.Context, ref string) (*model.App, error) {
	app, err := s.store.GetApp(ctx, ref)
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	app, err = s.store.GetAppByName(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAppNotFound
	}
	return app, err
}

// Delete removes an app and all of its keys. Deleting an unknown id reports
// false without error.
func (s *AppService) Delete(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	deleted, err := s.store.DeleteApp(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete app: %w", err)
	}
	if deleted {
		s.logger.Info("app deleted", "id", id)
	}
	return deleted, nil
}

// Rotate issues a fresh secret for an app. The old secret stops working
// immediately.
func (s *AppService) Rotate(ctx context.Context, id string) (*model.AppCredentials, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	app, err := s.store.GetApp(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, err
	}

	secret, err := keygen.NewSecret()
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateAppSecret(ctx, id, store.HashSecret(secret)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, fmt.Errorf("rotate secret: %w", err)
	}

	s.logger.Info("app secret rotated", "app", app.Name, "id", app.ID)

	return &model.AppCredentials{
		ID:        app.ID,
		Name:      app.Name,
		OwnerID:   app.OwnerID,
		SecretKey: secret,
		Created:   app.Created,
	}, nil
}
