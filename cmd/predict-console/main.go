package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"predict-console/internal/api"
	"predict-console/internal/backend"
	"predict-console/internal/config"
	"predict-console/internal/console"
	"predict-console/internal/proxy"
	"predict-console/internal/storage"
	"predict-console/internal/supervisor"
	"predict-console/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel)

	logConfig(logger, cfg)

	features := cfg.Features()

	target, err := url.Parse(cfg.BackendURL)
	if err != nil {
		logger.Error("invalid backend url", "err", err)
		os.Exit(2)
	}

	store := openStore(cfg, features, logger)

	var metrics *supervisor.Metrics
	if features.Metrics {
		metrics = supervisor.NewMetrics()
	}

	var eventBus *supervisor.EventBus
	if features.Events {
		eventBus = supervisor.NewEventBus(1000)
	}

	var healthChecker *supervisor.HealthChecker
	if features.API {
		healthChecker = supervisor.NewHealthChecker(
			cfg.BackendURL+cfg.HealthPath,
			cfg.HealthCheckInterval,
			cfg.HealthCheckTimeout,
			metrics,
			eventBus,
			logger,
		)
	}

	var tracker *supervisor.Tracker
	if features.API || features.Metrics {
		tracker = supervisor.NewTracker(store, eventBus, metrics, logger)
	}

	var apiServer *api.Server
	if features.API {
		apiServer = api.NewServer(store, cfg, logger)
	}

	// The page controllers call the console's own /api so their traffic is
	// proxied and tracked like a browser's.
	client, err := backend.NewClient(cfg.APIBaseURL(), cfg.APIPrefix, cfg.BackendTimeout)
	if err != nil {
		logger.Error("failed to create backend client", "err", err)
		os.Exit(2)
	}
	sessions := console.NewSessions(client, cfg.SessionTTL, logger)

	assets, err := web.Assets()
	if err != nil {
		logger.Error("failed to load web assets", "err", err)
		os.Exit(2)
	}
	pages, err := proxy.NewPages(cfg, sessions, assets, metrics, logger)
	if err != nil {
		logger.Error("failed to load page templates", "err", err)
		os.Exit(2)
	}

	h := proxy.NewHandler(cfg, target, pages, assets, apiServer, tracker, eventBus, metrics, healthChecker, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting predict-console",
		"listen", cfg.ListenAddr,
		"backend", cfg.BackendURL,
		"mode", cfg.Mode,
		"api_base", cfg.APIBaseURL(),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	sessions.Shutdown()
	if healthChecker != nil {
		healthChecker.Shutdown()
	}
	if eventBus != nil {
		eventBus.Shutdown()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close storage", "err", err)
		}
	}
}

// openStore picks the call store. A SQLite store that cannot be opened falls
// back to memory so the console still starts.
func openStore(cfg config.Config, features config.Features, logger *slog.Logger) storage.Store {
	if !features.Storage {
		return nil
	}

	switch cfg.Storage {
	case config.StorageSQLite:
		s, err := storage.NewSQLiteStore(cfg.StoragePath, cfg.StorageMaxRows, logger)
		if err == nil {
			logger.Info("using sqlite storage", "path", cfg.StoragePath, "max_rows", cfg.StorageMaxRows)
			return s
		}
		logger.Warn("sqlite storage unavailable, falling back to memory", "path", cfg.StoragePath, "err", err)
	case config.StorageMemory:
	default:
		return nil
	}

	logger.Info("using memory storage", "max_rows", cfg.StorageMaxRows)
	return storage.NewMemoryStore(cfg.StorageMaxRows)
}

func newLogger(level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	switch level {
	case "debug":
		lvl.Set(slog.LevelDebug)
	case "info":
		lvl.Set(slog.LevelInfo)
	case "warn", "warning":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}

func logConfig(logger *slog.Logger, cfg config.Config) {
	variants := make([]string, len(cfg.Variants))
	for i, v := range cfg.Variants {
		variants[i] = string(v)
	}

	logger.Info("configuration",
		"mode", string(cfg.Mode),
		"listen_addr", cfg.ListenAddr,
		"backend_url", cfg.BackendURL,
		"console_api_url", cfg.ConsoleAPIURL,
		"api_prefix", cfg.APIPrefix,
		"proxy_strip_prefix", cfg.ProxyStripPrefix,
		"proxy_change_origin", cfg.ProxyChangeOrigin,
		"health_path", cfg.HealthPath,
		"variants", strings.Join(variants, ","),
		"backend_timeout", cfg.BackendTimeout,
		"upload_max", humanize.IBytes(uint64(cfg.UploadMaxBytes)),
		"session_ttl", cfg.SessionTTL,
		"storage", string(cfg.Storage),
		"storage_path", cfg.StoragePath,
		"storage_max_rows", cfg.StorageMaxRows,
		"health_check_interval", cfg.HealthCheckInterval,
		"cors_allow_origin", cfg.CORSAllowOrigin,
		"flush_interval", cfg.FlushInterval,
		"log_level", cfg.LogLevel,
	)
}
