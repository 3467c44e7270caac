package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/use-agent/pagehealth/analyzer"
	"github.com/use-agent/pagehealth/api"
	"github.com/use-agent/pagehealth/artifacts"
	"github.com/use-agent/pagehealth/browser"
	"github.com/use-agent/pagehealth/config"
	"github.com/use-agent/pagehealth/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("pagehealth starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxSessions", cfg.Browser.MaxSessions,
		"dataDir", cfg.Artifacts.DataDir,
		"version", config.Version,
	)
	if err := cfg.Artifacts.Validate(); err != nil {
		slog.Error("invalid artifact configuration", "error", err)
		os.Exit(1)
	}

	// ── 3. Browser pool ─────────────────────────────────────────────
	// Startup failures are not fatal: runs report them as issues and
	// the next run retries the launch.
	pool := browser.NewPool(cfg.Browser)
	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.Analyzer.LaunchTimeout)
	if err := pool.Start(startCtx); err != nil {
		slog.Warn("browser not available at startup", "error", err)
	}
	cancelStart()
	defer pool.Close()

	// ── 4. Artifacts + analyzer ─────────────────────────────────────
	store := artifacts.NewStore(cfg.Artifacts.DataDir)
	an := analyzer.New(pool, store, cfg.Analyzer)

	mirror, err := artifacts.NewMirror(cfg.Artifacts)
	if err != nil {
		slog.Error("failed to initialise artifact mirror", "error", err)
		os.Exit(1)
	}
	if mirror != nil {
		an.SetMirror(mirror)
		slog.Info("artifact mirror enabled", "endpoint", cfg.Artifacts.S3Endpoint, "bucket", cfg.Artifacts.S3Bucket)
	}

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()
	router := api.NewRouter(appCtx, api.Deps{
		Runner:   an,
		Stats:    pool,
		Store:    store,
		Notifier: webhook.DefaultDispatcher(),
	}, cfg, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// A run can take a launch, a navigation and two captures.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	an.Wait()
	slog.Info("pagehealth stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
