package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/store"
)

// openSharedServices opens n independent Services over one SQLite directory,
// the way a running server and CLI invocations share a data dir.
func openSharedServices(t *testing.T, n int) []*Services {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	out := make([]*Services, n)
	for i := range out {
		st, err := store.NewStore(dir)
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		t.Cleanup(func() { st.Close() })
		out[i] = New(st, "", logger)
	}
	return out
}

func TestBanFromAnotherProcessSurvivesValidation(t *testing.T) {
	shared := openSharedServices(t, 2)
	server, cli := shared[0], shared[1]
	ctx := context.Background()

	creds, err := server.Apps.Create(ctx, "Acme")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	app, err := server.Apps.Get(ctx, creds.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	const rounds = 40
	lost := 0
	for i := 0; i < rounds; i++ {
		key, err := server.Keys.Generate(ctx, app, model.DaysOf(30), "")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}

		var g errgroup.Group
		for j := 0; j < 5; j++ {
			g.Go(func() error {
				_, err := server.Keys.Validate(ctx, app, key.Key, "HW-1")
				return err
			})
		}
		g.Go(func() error {
			return cli.Keys.SetBanned(ctx, app, key.Key, true)
		})
		if err := g.Wait(); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}

		res, err := server.Keys.Validate(ctx, app, key.Key, "HW-1")
		if err != nil {
			t.Fatalf("Validate after ban: %v", err)
		}
		if res.Valid || res.Reason != model.ReasonBanned {
			lost++
		}
	}
	if lost > 0 {
		t.Errorf("%d of %d acknowledged bans were overwritten", lost, rounds)
	}
}

func TestHWIDResetFromAnotherProcessAllowsRebind(t *testing.T) {
	shared := openSharedServices(t, 2)
	server, cli := shared[0], shared[1]
	ctx := context.Background()

	creds, _ := server.Apps.Create(ctx, "Acme")
	app, _ := server.Apps.Get(ctx, creds.ID)
	key, err := server.Keys.Generate(ctx, app, model.DaysOf(1), "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if res, _ := server.Keys.Validate(ctx, app, key.Key, "HW-1"); !res.Valid {
		t.Fatalf("first validate = %+v", res)
	}
	if err := cli.Keys.ResetHWID(ctx, app, key.Key); err != nil {
		t.Fatalf("ResetHWID: %v", err)
	}
	res, _ := server.Keys.Validate(ctx, app, key.Key, "HW-2")
	if !res.Valid || res.HWID != "HW-2" {
		t.Errorf("validate after reset = %+v, want bound to HW-2", res)
	}
}
