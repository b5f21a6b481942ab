package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"

	"github.com/mauripsale/infographic-agent-pro/config"
	"github.com/mauripsale/infographic-agent-pro/internal/auth"
	authmw "github.com/mauripsale/infographic-agent-pro/internal/auth/middleware"
	"github.com/mauripsale/infographic-agent-pro/internal/bootstrap"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/export"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/generation"
	infohttp "github.com/mauripsale/infographic-agent-pro/internal/infographic/http"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/repository"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/service"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/sweeper"
	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

const serviceName = "infographic-agent-pro"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := observability.Init(cfg.App.LogLevel, serviceName, cfg.App.Version)
	bootstrap.SetGinMode(cfg.App.Environment)

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
	if err := projects.EnsureSchema(ctx); err != nil {
		log.Fatalf("db schema: %v", err)
	}

	rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		if cfg.Storage.SessionBackend == config.SessionBackendRedis {
			log.Fatalf("redis: %v", err)
		}
		logger.Warn("redis unavailable, health will report it", slog.Any("error", err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var fbApp *firebase.App
	if cfg.UsesFirebase() {
		fbApp, err = auth.InitializeFirebase(ctx, cfg.Firebase)
		if err != nil {
			log.Fatalf("firebase: %v", err)
		}
	}

	var sessions domain.SessionStore
	switch cfg.Storage.SessionBackend {
	case config.SessionBackendFirestore:
		fs, err := fbApp.Firestore(ctx)
		if err != nil {
			log.Fatalf("firestore: %v", err)
		}
		defer fs.Close()
		sessions = repository.NewFirestoreSessionStore(fs)
	default:
		sessions = repository.NewRedisSessionStore(rdb)
	}

	var verifier authmw.TokenVerifier
	if cfg.App.AuthMode == config.AuthModeFirebase {
		verifier, err = auth.AuthClient(ctx, fbApp)
		if err != nil {
			log.Fatalf("firebase auth: %v", err)
		}
	}

	store, err := bootstrap.OpenArtifactStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("artifacts: %v", err)
	}

	orch := service.NewOrchestrator(sessions, projects, store, cfg.Generation.Concurrency)
	handler := infohttp.New(
		orch,
		generation.NewFactory(cfg.Generation),
		export.NewExporter(store),
		export.NewSlidesExporter(store),
		cfg.Generation.APIKey,
	)

	sweep := sweeper.New(projects, cfg.Sweeper.StaleAfter)
	cr, err := sweep.Start(ctx, cfg.Sweeper.Schedule)
	if err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	defer cr.Stop()

	r := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:    serviceName,
		Version:        cfg.App.Version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DB:             pool,
		Redis:          rdb,
		Verifier:       verifier,
		Infograph:      handler,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Streams in flight get a grace period; their writes use a detached
	// context and finish on their own.
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
}
