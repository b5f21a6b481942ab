package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/mauripsale/infographic-agent-pro/config"
	"github.com/mauripsale/infographic-agent-pro/internal/bootstrap"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/export"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/repository"
	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

// RunExport builds a zip or pdf of a stored project and prints the result
// as JSON.
func RunExport(args []string) {
	if len(args) < 3 {
		log.Fatal("usage: worker export <owner> <projectID> <zip|pdf>")
	}
	owner, projectID, format := args[0], args[1], args[2]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	observability.Init(cfg.App.LogLevel, "infographic-worker", cfg.App.Version)
	ctx := context.Background()

	pool, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{
		DSN:      cfg.Database.DSN,
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	project, err := repository.NewProjectRepository(bootstrap.SQLDB(pool)).Get(ctx, owner, projectID)
	if err != nil {
		log.Fatalf("project: %v", err)
	}

	store, err := bootstrap.OpenArtifactStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("artifacts: %v", err)
	}
	exp := export.NewExporter(store)

	var res export.Result
	switch format {
	case "zip":
		res, err = exp.Zip(ctx, owner, projectID, project.Script)
	case "pdf":
		res, err = exp.PDF(ctx, owner, projectID, project.Script)
	default:
		log.Fatalf("unknown format: %s", format)
	}
	if err != nil {
		log.Fatalf("export: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatalf("encode: %v", err)
	}
}
