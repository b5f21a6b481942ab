package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mauripsale/infographic-agent-pro/config"
	"github.com/mauripsale/infographic-agent-pro/internal/bootstrap"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/repository"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/sweeper"
	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

// RunSweep marks stale projects failed, once or on the configured schedule
// until interrupted.
func RunSweep(scheduled bool) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := observability.Init(cfg.App.LogLevel, "infographic-worker", cfg.App.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{
		DSN:      cfg.Database.DSN,
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	projects := repository.NewProjectRepository(bootstrap.SQLDB(pool))
	sweep := sweeper.New(projects, cfg.Sweeper.StaleAfter)

	if !scheduled {
		n, err := sweep.RunOnce(ctx)
		if err != nil {
			log.Fatalf("sweep: %v", err)
		}
		logger.Info("sweep finished", slog.Int64("marked", n))
		return
	}

	cr, err := sweep.Start(ctx, cfg.Sweeper.Schedule)
	if err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	<-ctx.Done()
	<-cr.Stop().Done()
}
