// Package worker runs the background maintenance loop: tally
// reconciliation against the vote table and trending score refresh.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/setvote/setvote/internal/app/trending"
	"github.com/setvote/setvote/internal/domain"
	"github.com/setvote/setvote/internal/platform/metrics"
)

// Reconciler repairs denormalized counters that drifted from the vote
// table. Under the engine's guarded transactions drift should never
// happen; this pass is the safety net and the drift detector.
type Reconciler struct {
	shows    domain.ShowRepository
	tally    domain.TallyReconciler
	trending *trending.Service
	clock    domain.Clock
	logger   *slog.Logger
	interval time.Duration
}

func NewReconciler(
	shows domain.ShowRepository,
	tally domain.TallyReconciler,
	trendingSvc *trending.Service,
	clk domain.Clock,
	logger *slog.Logger,
	interval time.Duration,
) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		shows:    shows,
		tally:    tally,
		trending: trendingSvc,
		clock:    clk,
		logger:   logger,
		interval: interval,
	}
}

// Run loops until the context ends. A failed pass is logged and retried
// on the next tick rather than stopping the worker.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil {
			r.logger.Error("reconciliation pass failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce reconciles every open show and refreshes trending scores.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	shows, err := r.shows.ListOpen(ctx, r.clock.Now())
	if err != nil {
		return err
	}

	for _, show := range shows {
		repairs, err := r.tally.ReconcileShow(ctx, show.ID)
		if err != nil {
			return err
		}
		metrics.AddTallyRepairs("song_tally", repairs.SongTallies)
		metrics.AddTallyRepairs("show_counter", repairs.ShowCounters)
		if repairs.SongTallies > 0 || repairs.ShowCounters > 0 {
			// Any repair means a writer bypassed the tally store.
			r.logger.Warn("repaired drifted tallies",
				"show", show.ID,
				"song_tallies", repairs.SongTallies,
				"show_counters", repairs.ShowCounters)
		}
	}

	if r.trending != nil {
		start := time.Now()
		if err := r.trending.Refresh(ctx); err != nil {
			return err
		}
		metrics.ObserveTrendingRefresh(time.Since(start).Seconds())
	}

	return nil
}
