package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pim-core/internal/cost"
	"github.com/sells-group/pim-core/internal/pipeline"
	"github.com/sells-group/pim-core/internal/pipeline/module"
	"github.com/sells-group/pim-core/internal/store"
	"github.com/sells-group/pim-core/internal/versioned"
	"github.com/sells-group/pim-core/pkg/ai"
)

// app bundles the wired components a command needs.
type app struct {
	repo   store.Store
	values *versioned.Store
	engine *pipeline.Engine
}

func (a *app) Close() {
	_ = a.repo.Close()
}

// initApp opens the configured store backend and wires the versioned store
// and execution engine on top of it.
func initApp(ctx context.Context) (*app, error) {
	var repo store.Store
	var err error
	switch cfg.Store.Driver {
	case "postgres":
		repo, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		repo, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}

	values := versioned.New(repo, cfg.Pipeline.ConfidenceThreshold)

	var client ai.Client
	if cfg.Anthropic.Key != "" {
		client = ai.NewClient(cfg.Anthropic.Key, cfg.Anthropic.RequestsPerMinute)
	}
	registry := module.NewRegistry(client, cfg.Anthropic.Model, int64(cfg.Anthropic.MaxTokens))
	calc := cost.NewCalculator(cfg.Pricing)
	engine := pipeline.NewEngine(repo, values, registry, calc, cfg.Anthropic.Model, cfg.Pipeline.Concurrency)

	return &app{repo: repo, values: values, engine: engine}, nil
}
