package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/keypanel/keypanel/internal/keygen"
	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/store"
)

// SettingKeyFormat is the settings row holding the key format template.
const SettingKeyFormat = "key_format"

// SettingsService reads and writes deployment-wide settings.
type SettingsService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewSettingsService creates a SettingsService.
func NewSettingsService(st *store.Store, logger *slog.Logger) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{store: st, logger: logger}
}

// KeyFormat returns the configured template, or the default if none is set.
func (s *SettingsService) KeyFormat(ctx context.Context) (string, error) {
	v, err := s.store.GetSetting(ctx, SettingKeyFormat)
	if errors.Is(err, store.ErrNotFound) || (err == nil && v == "") {
		return model.DefaultKeyFormat, nil
	}
	if err != nil {
		return "", fmt.Errorf("read key format: %w", err)
	}
	return v, nil
}

// SetKeyFormat validates and stores a new template. It applies to every app.
func (s *SettingsService) SetKeyFormat(ctx context.Context, format string) error {
	if err := keygen.ValidateFormat(format); err != nil {
		return ErrInvalidFormat
	}
	if err := s.store.SetSetting(ctx, SettingKeyFormat, format); err != nil {
		return fmt.Errorf("write key format: %w", err)
	}
	s.logger.Info("key format updated", "format", format)
	return nil
}

// Get returns all settings with defaults applied.
func (s *SettingsService) Get(ctx context.Context) (model.Settings, error) {
	format, err := s.KeyFormat(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	return model.Settings{KeyFormat: format}, nil
}

// Update applies in and returns the result. The key format is the only
// setting, so an empty one is rejected like any other invalid template.
func (s *SettingsService) Update(ctx context.Context, in model.Settings) (model.Settings, error) {
	if err := s.SetKeyFormat(ctx, in.KeyFormat); err != nil {
		return model.Settings{}, err
	}
	return s.Get(ctx)
}
