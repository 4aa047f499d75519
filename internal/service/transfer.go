package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keypanel/keypanel/internal/keygen"
	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/store"
)

// legacySettingNames maps setting names used by legacy panel documents
// to settings rows.
var legacySettingNames = map[string]string{
	"keyFormat":      SettingKeyFormat,
	SettingKeyFormat: SettingKeyFormat,
}

// ImportSummary reports what an import wrote.
type ImportSummary struct {
	Apps     int `json:"apps"`
	Keys     int `json:"keys"`
	Settings int `json:"settings"`
}

// TransferService moves whole-panel documents in and out of the store.
type TransferService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewTransferService creates a TransferService.
func NewTransferService(st *store.Store, logger *slog.Logger) *TransferService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransferService{store: st, logger: logger}
}

// Import loads doc in one transaction. Raw secrets are hashed on the way in.
// With replace set, existing apps and keys are removed first.
func (s *TransferService) Import(ctx context.Context, doc *model.Document, replace bool) (ImportSummary, error) {
	var batch store.Batch
	seenNames := make(map[string]bool, len(doc.Apps))

	for _, da := range doc.Apps {
		name := strings.TrimSpace(da.Name)
		if len([]rune(name)) < minAppNameLen {
			return ImportSummary{}, fmt.Errorf("%w: app %q: %v", ErrInvalidDocument, da.Name, ErrInvalidName)
		}
		if seenNames[strings.ToLower(name)] {
			return ImportSummary{}, fmt.Errorf("%w: app %q: %v", ErrInvalidDocument, name, ErrDuplicateName)
		}
		seenNames[strings.ToLower(name)] = true

		if da.ID == "" || da.OwnerID == "" {
			return ImportSummary{}, fmt.Errorf("%w: app %q is missing id or ownerId", ErrInvalidDocument, name)
		}

		hash := da.SecretHash
		if da.SecretKey != "" {
			hash = store.HashSecret(da.SecretKey)
		}
		if hash == "" {
			return ImportSummary{}, fmt.Errorf("%w: app %q has no secret", ErrInvalidDocument, name)
		}

		batch.Apps = append(batch.Apps, model.App{
			ID:         da.ID,
			Name:       name,
			OwnerID:    da.OwnerID,
			SecretHash: hash,
			Created:    da.Created,
		})

		seenKeys := make(map[string]bool, len(da.Keys))
		for _, k := range da.Keys {
			if k.Key == "" {
				return ImportSummary{}, fmt.Errorf("%w: app %q has a key without a token", ErrInvalidDocument, name)
			}
			// Later records win, matching how the legacy panel overwrote
			// duplicates.
			if seenKeys[k.Key] {
				batch.Keys = dropKey(batch.Keys, da.ID, k.Key)
			}
			seenKeys[k.Key] = true
			k.AppID = da.ID
			batch.Keys = append(batch.Keys, k)
		}
	}

	batch.Settings = make(map[string]string)
	for name, value := range doc.Settings {
		row, ok := legacySettingNames[name]
		if !ok {
			s.logger.Warn("ignoring unknown setting", "setting", name)
			continue
		}
		if row == SettingKeyFormat && keygen.ValidateFormat(value) != nil {
			return ImportSummary{}, fmt.Errorf("%w: %v", ErrInvalidDocument, ErrInvalidFormat)
		}
		batch.Settings[row] = value
	}

	if err := s.store.Import(ctx, batch, replace); err != nil {
		return ImportSummary{}, fmt.Errorf("import: %w", err)
	}

	summary := ImportSummary{Apps: len(batch.Apps), Keys: len(batch.Keys), Settings: len(batch.Settings)}
	s.logger.Info("import complete", "apps", summary.Apps, "keys", summary.Keys, "replace", replace)
	return summary, nil
}

// Export dumps every app, key and setting. Secrets are written as hashes.
func (s *TransferService) Export(ctx context.Context) (*model.Document, error) {
	apps, err := s.store.ListApps(ctx)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{Apps: make([]model.DocumentApp, 0, len(apps))}
	for _, app := range apps {
		keys, err := s.store.ListKeys(ctx, app.ID)
		if err != nil {
			return nil, err
		}
		doc.Apps = append(doc.Apps, model.DocumentApp{
			ID:         app.ID,
			Name:       app.Name,
			OwnerID:    app.OwnerID,
			SecretHash: app.SecretHash,
			Created:    app.Created,
			Keys:       keys,
		})
	}

	settings, err := s.store.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	doc.Settings = settings
	return doc, nil
}

func dropKey(keys []model.LicenseKey, appID, token string) []model.LicenseKey {
	out := keys[:0]
	for _, k := range keys {
		if k.AppID == appID && k.Key == token {
			continue
		}
		out = append(out, k)
	}
	return out
}
