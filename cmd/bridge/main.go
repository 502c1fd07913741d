package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carelink-bridge/internal/bridge"
	"carelink-bridge/internal/carelink"
	"carelink-bridge/internal/config"
	"carelink-bridge/internal/filter"
	"carelink-bridge/internal/nightscout"
	"carelink-bridge/internal/observability"
	"carelink-bridge/internal/storage"
	chstore "carelink-bridge/internal/storage/clickhouse"
	"carelink-bridge/internal/storage/memory"
	"carelink-bridge/internal/storage/migrations"
	pgstore "carelink-bridge/internal/storage/postgres"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "[bridge] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatalf("Config: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, logger, cfg)

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// run wires the source, targets and runner, then blocks until ctx ends or intake fails.
func run(ctx context.Context, logger *log.Logger, cfg *config.Config) error {
	metrics := observability.NewMetrics("", nil)

	base, err := url.Parse(cfg.CareLinkBaseURL)
	if err != nil {
		return fmt.Errorf("parse carelink base url: %w", err)
	}

	source, err := carelink.NewClient(cfg.Username, cfg.Password,
		carelink.WithBaseURL(base),
		carelink.WithMaxRetryDuration(cfg.MaxRetryDuration()),
		carelink.WithLogger(logger),
		carelink.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("create carelink client: %w", err)
	}

	var targets []bridge.Target
	// mirror backs the /status and /entries endpoints; the last configured store wins.
	var mirror storage.EntryStore

	if cfg.DryRun {
		logger.Println("Dry run: entries are kept in memory, nothing is uploaded")
		store := memory.NewEntryStore()
		targets = append(targets, bridge.NewStoreTarget("memory", store))
		mirror = store
	} else {
		endpoint := cfg.Endpoint()
		logger.Printf("Uploading to %s", endpoint)
		targets = append(targets, nightscout.NewClient(endpoint, nightscout.WithAPISecret(cfg.APISecret)))
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		store := pgstore.NewEntryStore(pool)
		targets = append(targets, bridge.NewStoreTarget("postgres", store))
		mirror = store
		logger.Println("Mirroring entries to PostgreSQL")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()

		store := chstore.NewEntryStore(conn)
		targets = append(targets, bridge.NewStoreTarget("clickhouse", store))
		mirror = store
		logger.Println("Mirroring entries to ClickHouse")
	}

	runner := bridge.NewRunner(bridge.RunnerOptions{
		Source:        source,
		Targets:       targets,
		Limit:         cfg.SGVLimit,
		Interval:      cfg.Interval(),
		FilterOptions: filter.Options{ResendLatestTrend: cfg.ResendLatestTrend},
		Logger:        logger,
		Verbose:       cfg.Verbose(),
		Metrics:       metrics,
	})

	// Start metrics server if enabled
	if cfg.MetricsAddr != "" {
		go startHTTPServer(logger, cfg.MetricsAddr, runner, mirror)
	}

	logger.Println("Starting bridge...")
	return runner.Run(ctx)
}

// startHTTPServer serves health, metrics, status and, with a mirror, stored entries.
func startHTTPServer(logger *log.Logger, addr string, runner *bridge.Runner, mirror storage.EntryStore) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.Handle("/status", bridge.StatusHandler(runner, mirror))
	if mirror != nil {
		mux.Handle("/entries", bridge.EntriesHandler(mirror))
	}

	logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
	}
}
