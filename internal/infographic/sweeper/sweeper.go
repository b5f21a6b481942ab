// Package sweeper fails projects whose planning never finished.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

// Sweeper marks projects stuck in pending as failed.
type Sweeper struct {
	projects   domain.ProjectStore
	staleAfter time.Duration
	now        func() time.Time
}

func New(projects domain.ProjectStore, staleAfter time.Duration) *Sweeper {
	return &Sweeper{projects: projects, staleAfter: staleAfter, now: time.Now}
}

// RunOnce performs a single sweep and returns the number of projects marked.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.staleAfter)
	n, err := s.projects.MarkStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.LoggerFromContext(ctx).Info("stale projects marked failed",
			slog.Int64("count", n),
			slog.Time("cutoff", cutoff),
		)
	}
	return n, nil
}

// Start schedules RunOnce with a seconds-aware cron spec. The returned cron
// must be stopped by the caller.
func (s *Sweeper) Start(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			observability.LoggerFromContext(ctx).Error("sweep failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	observability.LoggerFromContext(ctx).Info("sweeper scheduled",
		slog.String("schedule", spec),
		slog.Duration("stale_after", s.staleAfter),
	)
	c.Start()
	return c, nil
}
