package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

// loadConfig reads --config and applies the command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDir != "" {
		cfg.Shards.Source = config.SourceDir
		cfg.Shards.Dir = flagDir
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	return cfg, nil
}

// setupCLILogging keeps logs on stderr so stdout carries only results.
func setupCLILogging(cfg *config.Config) {
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")
}

// shardSource is the configured source plus whatever it holds open. db is
// nil for the directory source.
type shardSource struct {
	source.Source
	dir *source.Dir
	db  *postgres.Client
}

func (s *shardSource) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func openSource(ctx context.Context, cfg *config.Config) (*shardSource, error) {
	switch cfg.Shards.Source {
	case config.SourcePostgres:
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("opening shard database: %w", err)
		}
		return &shardSource{Source: source.NewPostgres(db), db: db}, nil
	default:
		dir, err := source.NewDir(cfg.Shards.Dir, cfg.Shards.Include, cfg.Shards.Exclude)
		if err != nil {
			return nil, err
		}
		return &shardSource{Source: dir, dir: dir}, nil
	}
}

// loadEngine opens the source and performs the first reload. The returned
// closer releases the source.
func loadEngine(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*engine.Engine, *engine.Report, io.Closer, error) {
	src, err := openSource(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	eng := engine.New(src, cfg.Shards, m)
	report, err := eng.Reload(ctx)
	if err != nil {
		src.Close()
		return nil, nil, nil, err
	}
	return eng, report, src, nil
}
