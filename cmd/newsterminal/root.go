package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SwarmMonkey/NewsTerminal/internal/batch"
	"github.com/SwarmMonkey/NewsTerminal/internal/catalog"
	"github.com/SwarmMonkey/NewsTerminal/internal/client"
	"github.com/SwarmMonkey/NewsTerminal/internal/config"
	"github.com/SwarmMonkey/NewsTerminal/internal/fetcher"
	"github.com/SwarmMonkey/NewsTerminal/internal/memcache"
	"github.com/SwarmMonkey/NewsTerminal/internal/refetch"
	"github.com/SwarmMonkey/NewsTerminal/internal/store"
	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "newsterminal",
		Short:         "Terminal client for the aggregated news snapshot API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		newSourcesCommand(opts),
		newFetchCommand(opts),
		newWatchCommand(opts),
	)

	return cmd
}

// engine bundles everything a command needs to resolve snapshots.
type engine struct {
	cfg         *config.Config
	logger      *slog.Logger
	catalog     *catalog.Catalog
	cache       *memcache.Cache
	bus         *refetch.Bus
	fetcher     *fetcher.Fetcher
	coordinator *batch.Coordinator
	closeStore  func() error
}

func (e *engine) close() {
	e.bus.Close()
	if e.closeStore != nil {
		if err := e.closeStore(); err != nil {
			e.logger.Warn("close persistent store", "error", err)
		}
	}
}

// buildEngine wires the full cache stack from configuration.
func buildEngine(opts *rootOptions, logOutput io.Writer) (*engine, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	level := cfg.Level()
	if opts.logLevel != "" {
		if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
			return nil, fmt.Errorf("build engine: invalid log level %q", opts.logLevel)
		}
	}
	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{Level: level}))

	sourceCatalog, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	persistent, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	apiClient, err := client.New(cfg.Endpoint.BaseURL,
		client.WithToken(cfg.ResolvedToken()),
		client.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	cache := memcache.New()
	bus := refetch.NewBus(refetch.WithLogger(logger))

	sourceFetcher, err := fetcher.New(apiClient, cache, persistent, bus, sourceCatalog,
		fetcher.WithLogger(logger),
		fetcher.WithAttemptTimeout(cfg.AttemptTimeout()),
		fetcher.WithRetryPolicy(cfg.Sync.MaxRetries, 0, cfg.MaxBackoff()),
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	coordinator, err := batch.New(apiClient, cache, bus, sourceCatalog,
		batch.WithLogger(logger),
		batch.WithSyncInterval(cfg.BatchInterval()),
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	return &engine{
		cfg:         cfg,
		logger:      logger,
		catalog:     sourceCatalog,
		cache:       cache,
		bus:         bus,
		fetcher:     sourceFetcher,
		coordinator: coordinator,
		closeStore:  closeStore,
	}, nil
}

func buildStore(cfg *config.Config, logger *slog.Logger) (newsfeed.PersistentStore, func() error, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		sqliteStore, err := store.OpenSQLiteStore(cfg.StatePath(), logger)
		if err != nil {
			return nil, nil, err
		}
		return sqliteStore, sqliteStore.Close, nil
	case "none":
		return store.NewNoopStore(), nil, nil
	default:
		fileStore, err := store.NewFileStore(cfg.StatePath(), logger)
		if err != nil {
			return nil, nil, err
		}
		return fileStore, nil, nil
	}
}

func stderrOrDiscard(cmd *cobra.Command) io.Writer {
	if out := cmd.ErrOrStderr(); out != nil {
		return out
	}

	return os.Stderr
}
