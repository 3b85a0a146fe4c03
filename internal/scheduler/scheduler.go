// Package scheduler drives periodic weather refreshes so the dashboard
// stays current without user interaction.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/fairway-conditions/internal/observability"
)

// refreshTimeout bounds a single scheduled refresh pass.
const refreshTimeout = 30 * time.Second

// Refresher is the piece of the pipeline the scheduler pokes.
type Refresher interface {
	Refresh(ctx context.Context)
}

// Scheduler re-fetches weather on a fixed interval. A zero or negative
// interval disables it entirely.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	interval  time.Duration
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New creates a scheduler around the given refresher.
func New(refresher Refresher, interval time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		interval:  interval,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start schedules the refresh job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("periodic refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		s.logger.Debug("scheduled weather refresh")
		s.refresher.Refresh(ctx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.metrics.RefreshRunning.Set(1)
	s.logger.Info("periodic refresh started", "interval", s.interval)
	return nil
}

// Stop halts the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.metrics.RefreshRunning.Set(0)
}
