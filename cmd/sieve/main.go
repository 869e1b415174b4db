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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/use-agent/sieve/api"
	"github.com/use-agent/sieve/config"
	"github.com/use-agent/sieve/engine"
	"github.com/use-agent/sieve/monitoring"
	"github.com/use-agent/sieve/scraper"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("sieve starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"impersonate", cfg.Engine.Impersonate,
	)

	// ── 3. Metrics registry ─────────────────────────────────────────
	var (
		gatherer prometheus.Gatherer
		metrics  *monitoring.Metrics
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = monitoring.NewMetrics(reg)
		gatherer = reg
	}

	// ── 4. Initialise engine ────────────────────────────────────────
	eng := engine.New(engine.Options{
		Transport:        scraper.NewTransport(cfg.Engine.Impersonate),
		UserAgent:        cfg.Engine.UserAgent,
		MaxBodyBytes:     cfg.Engine.MaxBodyBytes,
		RobotsAgent:      cfg.Engine.RobotsAgent,
		PolicyTTL:        cfg.Engine.PolicyTTL,
		PolicyFailureTTL: cfg.Engine.PolicyFailureTTL,
		PolicyTimeout:    cfg.Engine.PolicyTimeout,
		PolicyCacheSize:  cfg.Engine.PolicyCacheSize,
		OriginIdleTTL:    cfg.Engine.OriginIdleTTL,
		WaybackEndpoint:  cfg.Engine.WaybackEndpoint,
		Metrics:          metrics,
	})
	defer eng.Close()

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(eng, cfg, gatherer, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
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

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("sieve stopped")
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
