// Package janitor periodically removes license keys that have been expired
// for longer than a configured grace period.
package janitor

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// SettingLastRun records the epoch second of the last completed sweep.
const SettingLastRun = "janitor.last_run"

// DefaultInterval is how often a sweep runs.
const DefaultInterval = time.Hour

// Store is what the janitor needs from the persistence layer.
type Store interface {
	PruneExpiredKeys(ctx context.Context, before int64) (int64, error)
	SetSetting(ctx context.Context, name, value string) error
}

// Janitor runs prune sweeps on a ticker.
type Janitor struct {
	store      Store
	pruneAfter time.Duration
	interval   time.Duration
	logger     *slog.Logger
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Janitor that deletes keys expired for longer than
// pruneAfter. Returns nil if pruneAfter is not positive, which disables
// pruning; all methods are safe on a nil Janitor.
func New(store Store, pruneAfter, interval time.Duration, logger *slog.Logger) *Janitor {
	if pruneAfter <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:      store,
		pruneAfter: pruneAfter,
		interval:   interval,
		logger:     logger,
		now:        time.Now,
	}
}

// Start begins the background loop. It sweeps immediately and then on every
// tick. Non-blocking.
func (j *Janitor) Start() {
	if j == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		j.Sweep(ctx)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.Sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the background loop and waits for an in-flight sweep.
func (j *Janitor) Shutdown() {
	if j == nil {
		return
	}
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

// Sweep deletes every key whose expiry lies more than pruneAfter in the past
// and returns the number removed. Failures are logged, not returned.
func (j *Janitor) Sweep(ctx context.Context) int64 {
	if j == nil {
		return 0
	}
	now := j.now()
	cutoff := now.Add(-j.pruneAfter).Unix()

	n, err := j.store.PruneExpiredKeys(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Error("prune expired keys", "error", err)
		}
		return 0
	}
	if n > 0 {
		j.logger.Info("pruned expired keys", "count", n, "cutoff", cutoff)
	}

	if err := j.store.SetSetting(ctx, SettingLastRun, strconv.FormatInt(now.Unix(), 10)); err != nil && ctx.Err() == nil {
		j.logger.Warn("record janitor run", "error", err)
	}
	return n
}
