package janitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/store"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// mockStore implements Store for testing.
type mockStore struct {
	mu       sync.Mutex
	cutoffs  []int64
	settings map[string]string
	err      error
}

func newMockStore() *mockStore {
	return &mockStore{settings: make(map[string]string)}
}

func (m *mockStore) PruneExpiredKeys(_ context.Context, before int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.cutoffs = append(m.cutoffs, before)
	return 2, nil
}

func (m *mockStore) SetSetting(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[name] = value
	return nil
}

func (m *mockStore) sweeps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cutoffs)
}

func TestNew_DisabledWithoutGrace(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Hour} {
		if j := New(newMockStore(), d, time.Minute, discardLogger); j != nil {
			t.Errorf("New(pruneAfter=%v) = %v, want nil", d, j)
		}
	}
}

func TestNilJanitorIsSafe(t *testing.T) {
	var j *Janitor
	j.Start()
	if n := j.Sweep(context.Background()); n != 0 {
		t.Errorf("Sweep on nil = %d", n)
	}
	j.Shutdown()
}

func TestSweepCutoffAndLastRun(t *testing.T) {
	st := newMockStore()
	j := New(st, 48*time.Hour, time.Minute, discardLogger)
	j.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	if n := j.Sweep(context.Background()); n != 2 {
		t.Errorf("Sweep = %d, want 2", n)
	}
	if want := int64(1_700_000_000 - 2*model.SecondsPerDay); st.cutoffs[0] != want {
		t.Errorf("cutoff = %d, want %d", st.cutoffs[0], want)
	}
	if st.settings[SettingLastRun] != "1700000000" {
		t.Errorf("last run = %q", st.settings[SettingLastRun])
	}
}

func TestSweepFailureIsNotRecorded(t *testing.T) {
	st := newMockStore()
	st.err = errors.New("disk full")
	j := New(st, time.Hour, time.Minute, discardLogger)

	if n := j.Sweep(context.Background()); n != 0 {
		t.Errorf("Sweep = %d, want 0", n)
	}
	if _, ok := st.settings[SettingLastRun]; ok {
		t.Error("failed sweep should not record a run")
	}
}

func TestStartSweepsImmediatelyAndShutdownStops(t *testing.T) {
	st := newMockStore()
	j := New(st, time.Hour, time.Hour, discardLogger)
	j.Start()

	deadline := time.Now().Add(2 * time.Second)
	for st.sweeps() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	j.Shutdown()

	if st.sweeps() != 1 {
		t.Errorf("sweeps = %d, want 1", st.sweeps())
	}
}

func TestSweepAgainstStore(t *testing.T) {
	st, err := store.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	app := &model.App{ID: "APP1", Name: "Acme", OwnerID: "OWN1", SecretHash: store.HashSecret("s"), Created: 1}
	if err := st.CreateApp(ctx, app); err != nil {
		t.Fatalf("CreateApp: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)
	for token, expires := range map[string]int64{
		"LONG-GONE": now.Add(-72 * time.Hour).Unix(),
		"RECENT":    now.Add(-1 * time.Hour).Unix(),
		"LIVE":      now.Add(24 * time.Hour).Unix(),
	} {
		key := &model.LicenseKey{AppID: app.ID, Key: token, Created: 1, Expires: expires}
		if err := st.InsertKey(ctx, key); err != nil {
			t.Fatalf("InsertKey(%s): %v", token, err)
		}
	}

	j := New(st, 24*time.Hour, time.Hour, discardLogger)
	j.now = func() time.Time { return now }
	if n := j.Sweep(ctx); n != 1 {
		t.Errorf("Sweep removed %d keys, want 1", n)
	}

	keys, err := st.ListKeys(ctx, app.ID)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("remaining keys = %d, want 2", len(keys))
	}
	if v, err := st.GetSetting(ctx, SettingLastRun); err != nil || v != "1700000000" {
		t.Errorf("last run = %q, %v", v, err)
	}
}
