// Package daemon repeats the reconciler on an interval with graceful
// shutdown on SIGINT/SIGTERM.
package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskhopper/hopper/pkg/log"
	"github.com/taskhopper/hopper/pkg/reconciler"
)

// PassFunc runs one reconciliation pass. Run logs and continues regardless
// of the returned stats; a panic inside a pass is recovered, logged, and
// counted as one error of that pass.
type PassFunc func(ctx context.Context) reconciler.Stats

// Loop runs passes on an interval until interrupted.
type Loop struct {
	Interval time.Duration
	Pass     PassFunc
}

// NewLoop returns a Loop that calls pass every interval.
func NewLoop(interval time.Duration, pass PassFunc) *Loop {
	return &Loop{Interval: interval, Pass: pass}
}

// Run blocks, running passes until SIGINT/SIGTERM or ctx is cancelled. It
// returns when a clean shutdown has happened. A shutdown signal lets the
// in-flight pass finish; it only short-circuits the inter-pass sleep.
func (l *Loop) Run(ctx context.Context) {
	logger := log.WithComponent("daemon")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	shutdown := false
	for !shutdown {
		stats := func() (s reconciler.Stats) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().Interface("panic", rec).Msg("reconciliation pass panicked")
					s.Errors++
				}
			}()
			return l.Pass(ctx)
		}()
		logger.Info().
			Int("leases_scanned", stats.LeasesScanned).
			Int("leases_reclaimed", stats.LeasesReclaimed).
			Int("unassigned_matched", stats.UnassignedMatched).
			Int("assigned_spawned", stats.AssignedSpawned).
			Int("tasks_spawned", stats.TasksSpawned).
			Int("errors", stats.Errors).
			Msg("reconciliation pass complete")

		shutdown = l.sleepOrShutdown(ctx, sigCh)
	}
	logger.Info().Msg("shutdown signal received, exiting")
}

// sleepOrShutdown sleeps in one-second ticks up to Interval, checking for a
// shutdown signal or context cancellation between ticks.
func (l *Loop) sleepOrShutdown(ctx context.Context, sigCh <-chan os.Signal) bool {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	elapsed := time.Duration(0)
	for elapsed < l.Interval {
		select {
		case <-sigCh:
			return true
		case <-ctx.Done():
			return true
		case <-ticker.C:
			elapsed += time.Second
		}
	}
	return false
}
