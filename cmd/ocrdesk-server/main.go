// Package main provides the ocrdesk desk server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/backend"
	"github.com/raphaelgruber/ocrdesk/internal/config"
	"github.com/raphaelgruber/ocrdesk/internal/db"
	"github.com/raphaelgruber/ocrdesk/internal/metrics"
	"github.com/raphaelgruber/ocrdesk/internal/notify"
	"github.com/raphaelgruber/ocrdesk/internal/pgstore"
	"github.com/raphaelgruber/ocrdesk/internal/prefs"
	"github.com/raphaelgruber/ocrdesk/internal/server"
	"github.com/raphaelgruber/ocrdesk/internal/service"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all jobs from the persistent store on startup (testing only)")
	envFile := flag.String("env", ".env", "dotenv file to seed the environment from")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("starting ocrdesk-server",
		"port", cfg.ServerPort,
		"backend", cfg.APIBaseURL,
		"store", cfg.Store,
		"advance_mode", cfg.AdvanceMode,
	)

	mc := metrics.NewCollector()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, closeStore, err := openStore(ctx, cfg, mc, logger, *wipeDB || os.Getenv("OCRDESK_WIPE_DB") == "true")
	cancel()
	if err != nil {
		slog.Error("failed to open job store", "store", cfg.Store, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	api := backend.New(cfg.APIBaseURL,
		backend.WithTimeout(cfg.ClientTimeout),
		backend.WithMetrics(mc),
		backend.WithLogger(logger),
	)
	advancer, err := service.NewAdvancer(cfg.AdvanceMode, api,
		backend.PollOptions{Interval: cfg.PollInterval, MaxAttempts: cfg.PollMaxAttempts},
		cfg.SimulateInterval, logger)
	if err != nil {
		slog.Error("invalid advance mode", "error", err)
		os.Exit(1)
	}

	toasts := notify.NewQueue(cfg.ToastTTL, logger)
	defer toasts.Close()

	tracker := service.NewTracker(store, advancer,
		service.WithToasts(toasts),
		service.WithMetrics(mc),
		service.WithLogger(logger),
	)
	defer tracker.Close()

	srv := server.New(server.Deps{
		Tracker:   tracker,
		Extractor: service.NewExtractor(api),
		Converter: service.NewConverter(api, logger),
		Backend:   api,
		Toasts:    toasts,
		Metrics:   mc,
		Prefs:     prefs.Open(cfg.PrefsFile),
		Logger:    logger,
		Version:   Version,
	})
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // Long for synchronous extraction
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("API available", "url", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort))
		slog.Info("job events available", "url", fmt.Sprintf("ws://localhost:%d/api/ws", cfg.ServerPort))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// openStore builds the configured job store. The returned function releases it.
func openStore(ctx context.Context, cfg config.Config, mc *metrics.Collector, logger *slog.Logger, wipe bool) (service.Store, func(), error) {
	switch cfg.Store {
	case config.StoreMemory, "":
		return service.NewMemoryStore(cfg.JobCapacity), func() {}, nil

	case config.StoreSurreal:
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger, mc)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to surrealdb: %w", err)
		}
		closeFn := func() {
			if err := client.Close(context.Background()); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		}
		if err := client.InitSchema(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("initialize schema: %w", err)
		}
		if wipe {
			if err := client.WipeData(ctx); err != nil {
				closeFn()
				return nil, nil, err
			}
		}
		return db.NewJobStore(client, cfg.JobCapacity), closeFn, nil

	case config.StorePostgres:
		store, err := pgstore.Open(ctx, cfg.PostgresDSN, cfg.JobCapacity, mc, logger)
		if err != nil {
			return nil, nil, err
		}
		if wipe {
			if err := store.WipeData(ctx); err != nil {
				store.Close()
				return nil, nil, err
			}
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q (want %s, %s or %s)",
			cfg.Store, config.StoreMemory, config.StoreSurreal, config.StorePostgres)
	}
}
