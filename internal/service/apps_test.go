package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/keypanel/keypanel/internal/model"
)

func TestCreateApp(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()

	creds, err := svc.Apps.Create(ctx, "  Acme  ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if creds.Name != "Acme" {
		t.Errorf("name = %q, want trimmed %q", creds.Name, "Acme")
	}
	hex16 := regexp.MustCompile(`^[0-9A-F]{16}$`)
	if !hex16.MatchString(creds.ID) || !hex16.MatchString(creds.OwnerID) {
		t.Errorf("id/ownerId not 16 hex chars: %q %q", creds.ID, creds.OwnerID)
	}
	if creds.ID == creds.OwnerID {
		t.Error("id and ownerId must be drawn independently")
	}
	if len(creds.SecretKey) != 64 {
		t.Errorf("secret length = %d, want 64", len(creds.SecretKey))
	}
	if creds.Created == 0 {
		t.Error("created not set")
	}
}

func TestCreateAppValidation(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()

	if _, err := svc.Apps.Create(ctx, "Acme"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{"empty", "", ErrInvalidName},
		{"one char", "A", ErrInvalidName},
		{"spaces around one char", "  A  ", ErrInvalidName},
		{"duplicate", "Acme", ErrDuplicateName},
		{"duplicate other case", "ACME", ErrDuplicateName},
		{"duplicate with spaces", " acme ", ErrDuplicateName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Apps.Create(ctx, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := svc.Apps.Create(ctx, "ab"); err != nil {
		t.Errorf("two-character name should be accepted: %v", err)
	}
}

func TestListApps(t *testing.T) {
	svc, _ := newKeyFixtureServices(t)
	ctx := context.Background()

	apps, err := svc.Apps.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("got %d apps, want 1", len(apps))
	}
	got := apps[0]
	if got.Name != "Acme" || got.KeyCount != 3 || got.ActiveKeys != 1 {
		t.Errorf("summary = %+v, want Acme with 3 keys, 1 active", got)
	}
}

// newKeyFixtureServices creates Acme with one active, one banned and one
// expired key.
func newKeyFixtureServices(t *testing.T) (*Services, *model.App) {
	t.Helper()
	svc, app, clock := newKeyFixture(t)
	ctx := context.Background()

	svc.Keys.Generate(ctx, app, model.DaysOf(1), "")
	banned, _ := svc.Keys.Generate(ctx, app, model.DaysOf(30), "")
	svc.Keys.Generate(ctx, app, model.DaysOf(30), "")
	svc.Keys.SetBanned(ctx, app, banned.Key, true)
	clock.Advance(25 * time.Hour)
	return svc, app
}

func TestDeleteApp(t *testing.T) {
	svc, app := newKeyFixtureServices(t)
	ctx := context.Background()

	deleted, err := svc.Apps.Delete(ctx, app.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Error("Delete should report true for an existing app")
	}

	keys, _ := svc.Keys.List(ctx, app)
	if len(keys) != 0 {
		t.Errorf("keys survived app deletion: %d", len(keys))
	}

	deleted, err = svc.Apps.Delete(ctx, app.ID)
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if deleted {
		t.Error("deleting an unknown app should report false")
	}

	// Requests holding a stale app context find nothing.
	if _, err := svc.Keys.Generate(ctx, app, model.DaysOf(1), ""); !errors.Is(err, ErrAppNotFound) {
		t.Errorf("Generate on deleted app: got %v, want ErrAppNotFound", err)
	}
}

func TestResolveApp(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()
	creds, _ := svc.Apps.Create(ctx, "Acme")

	byID, err := svc.Apps.Resolve(ctx, creds.ID)
	if err != nil || byID.Name != "Acme" {
		t.Fatalf("Resolve by id = %v, %v", byID, err)
	}
	byName, err := svc.Apps.Resolve(ctx, "acme")
	if err != nil || byName.ID != creds.ID {
		t.Fatalf("Resolve by name = %v, %v", byName, err)
	}
	if _, err := svc.Apps.Resolve(ctx, "missing"); !errors.Is(err, ErrAppNotFound) {
		t.Errorf("Resolve missing: got %v, want ErrAppNotFound", err)
	}
}

func TestRotateUnknownApp(t *testing.T) {
	svc, _ := newTestServices(t)
	if _, err := svc.Apps.Rotate(context.Background(), "NOPE"); !errors.Is(err, ErrAppNotFound) {
		t.Errorf("got %v, want ErrAppNotFound", err)
	}
}
