// Package janitor periodically removes stale workspace entries on a cron
// schedule, keeping the execution directory from filling up with uploads
// and command by-products.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/sanduku/internal/config"
	"github.com/jkaninda/sanduku/internal/observability"
	"github.com/jkaninda/sanduku/internal/workspace"
)

// Janitor sweeps the workspace on a cron schedule.
type Janitor struct {
	ws       *workspace.Workspace
	schedule cron.Schedule
	maxAge   time.Duration
	metrics  *observability.MetricsCollector
	logger   *slog.Logger
}

// New creates a Janitor from config. The cron expression uses the standard
// five-field form (minute, hour, day of month, month, day of week).
func New(cfg *config.JanitorConfig, ws *workspace.Workspace, metrics *observability.MetricsCollector, logger *slog.Logger) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cfg.SweepSchedule())
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.SweepSchedule(), err)
	}
	return &Janitor{
		ws:       ws,
		schedule: schedule,
		maxAge:   cfg.MaxAge(),
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Start begins the sweep loop. Returns a cancel function.
func (j *Janitor) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		j.logger.InfoContext(ctx, "janitor started",
			slog.String("workspace", j.ws.Root),
			slog.Duration("max_age", j.maxAge),
		)

		for {
			next := j.schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				j.logger.Info("janitor stopped")
				return
			case <-timer.C:
				j.sweep(ctx)
			}
		}
	}()

	return cancel
}

// sweep runs a single sweep cycle.
func (j *Janitor) sweep(ctx context.Context) {
	removed, err := j.ws.Sweep(j.maxAge)
	if err != nil {
		j.logger.ErrorContext(ctx, "workspace sweep failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if j.metrics != nil {
		j.metrics.FilesSweptTotal.Add(float64(removed))
	}
	if removed > 0 {
		j.logger.InfoContext(ctx, "workspace swept",
			slog.Int("removed", removed),
		)
	}
}
