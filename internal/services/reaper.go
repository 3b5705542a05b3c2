package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-translation-backend/internal/metrics"
)

// Purger deletes windows that expired at or before cutoff.
type Purger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reaper periodically removes windows that expired more than Retention ago.
// Active windows are never touched; expired rows already have no effect on
// lookups or quota, so reaping is storage hygiene only.
type Reaper struct {
	Store     Purger
	Interval  time.Duration
	Retention time.Duration
	Log       zerolog.Logger
	Now       func() time.Time
}

// RunOnce performs a single purge pass.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	retention := r.Retention
	if retention < 0 {
		retention = 0
	}
	n, err := r.Store.PurgeExpired(ctx, now.UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	metrics.Purged(n)
	return n, nil
}

// Run purges once at startup and then every Interval until ctx is done.
// A non-positive Interval disables the loop after the first pass.
func (r *Reaper) Run(ctx context.Context) {
	r.pass(ctx)
	if r.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Reaper) pass(ctx context.Context) {
	n, err := r.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.Log.Error().Err(err).Msg("window purge failed")
		}
		return
	}
	if n > 0 {
		r.Log.Info().Int64("purged", n).Msg("expired windows purged")
	}
}
