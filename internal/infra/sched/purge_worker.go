package sched

import (
	"context"
	"sync/atomic"
	"time"

	"discord-render-bot/internal/domain/ports/repository"
	"discord-render-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const initialDelay = 60 * time.Second

// PurgeWorker periodically deletes aged terminal jobs. The first run fires
// 60 s after start, then every interval. A running flag drops overlapping
// ticks; the store's purge is atomic, so a crash mid-tick leaves the DB
// consistent.
type PurgeWorker struct {
	purger   repository.Purger
	maxAge   time.Duration
	interval time.Duration
	log      *zerolog.Logger

	running atomic.Bool
}

func NewPurgeWorker(purger repository.Purger, maxAge, interval time.Duration, logger *zerolog.Logger) *PurgeWorker {
	wlog := logger.With().Str("component", "PurgeWorker").Logger()
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &PurgeWorker{purger: purger, maxAge: maxAge, interval: interval, log: &wlog}
}

func (w *PurgeWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("max_age", w.maxAge).Msg("starting purge worker")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(initialDelay):
		w.tick(ctx)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping purge worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Tick runs one purge pass immediately; used by the manual purge command.
// maxAge <= 0 uses the configured retention.
func (w *PurgeWorker) Tick(ctx context.Context, maxAge time.Duration) (int, int, error) {
	if maxAge <= 0 {
		maxAge = w.maxAge
	}
	if !w.running.CompareAndSwap(false, true) {
		w.log.Debug().Msg("purge tick already running; dropping")
		return 0, 0, nil
	}
	defer w.running.Store(false)

	cutoff := time.Now().Add(-maxAge)
	jobs, upscales, err := w.purger.PurgeOld(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	metrics.AddPurged(jobs, upscales)
	w.log.Info().Int("jobs_deleted", jobs).Int("upscale_deleted", upscales).
		Time("cutoff", cutoff).Msg("purge completed")
	return jobs, upscales, nil
}

func (w *PurgeWorker) tick(ctx context.Context) {
	if _, _, err := w.Tick(ctx, 0); err != nil {
		w.log.Error().Err(err).Msg("purge tick failed")
	}
}
