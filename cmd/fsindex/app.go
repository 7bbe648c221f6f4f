package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dshills/fsindex/internal/config"
	"github.com/dshills/fsindex/internal/indexer"
	"github.com/dshills/fsindex/internal/searcher"
	"github.com/dshills/fsindex/internal/storage"
)

// app holds the components shared by all commands
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	backend  storage.Backend
	indexer  *indexer.Indexer
	searcher *searcher.Searcher

	shutdownTracing func(context.Context) error
}

// newApp loads the configuration and wires backend, indexer and searcher
func newApp() (*app, error) {
	logger := newLogger(os.Stderr)
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var shutdownTracing func(context.Context) error
	if traceSpans {
		if shutdownTracing, err = setupTracing(os.Stderr); err != nil {
			return nil, err
		}
	}

	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}

	mapping := storage.DefaultMapping()
	if cfg.Storage.MappingFile != "" {
		if mapping, err = storage.LoadMapping(cfg.Storage.MappingFile); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlite, err := storage.NewSQLiteBackend(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	sqlite.SetLogger(logger)

	retry := storage.DefaultRetryConfig()
	retry.MaxRetries = cfg.Storage.MaxRetries
	backend := storage.NewRetryingBackend(sqlite, retry, logger)

	srch := searcher.NewSearcher(backend, cfg.Storage.Index)
	idx := indexer.New(backend, rules, indexer.Options{
		Roots:            cfg.Directories,
		Index:            cfg.Storage.Index,
		Mapping:          mapping,
		BulkSize:         cfg.Storage.BulkSize,
		Workers:          cfg.Workers,
		ExtendedMetadata: cfg.ExtendedMetadata,
		DumpOnError:      cfg.DumpDocumentsOnError,
		DumpDir:          cfg.DumpDirectory,
		CollectVisited:   verbose,
		OnChanged:        srch.Invalidate,
		Logger:           logger,
	})

	logger.Debug("configuration loaded",
		slog.Any("directories", cfg.Directories),
		slog.String("database", cfg.Storage.Path),
		slog.String("driver", storage.DriverName),
		slog.Int("exclusions", rules.Len()))

	return &app{
		cfg:      cfg,
		logger:   logger,
		backend:  backend,
		indexer:  idx,
		searcher: srch,

		shutdownTracing: shutdownTracing,
	}, nil
}

// Close flushes pending spans and releases the backend
func (a *app) Close() error {
	if a.shutdownTracing != nil {
		_ = a.shutdownTracing(context.Background())
	}
	return a.backend.Close()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
