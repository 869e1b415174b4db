package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/use-agent/sieve/api/handler"
	"github.com/use-agent/sieve/api/middleware"
	"github.com/use-agent/sieve/config"
	"github.com/use-agent/sieve/webhook"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     RateLimit (per client IP)
//
// Health and metrics sit outside the rate limit so probes always work.
// gatherer may be nil to disable /metrics.
func NewRouter(sc handler.Scraper, cfg *config.Config, gatherer prometheus.Gatherer, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		slog.Warn("router: invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	if cfg.Metrics.Enabled && gatherer != nil {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(sc, startTime))

	limited := v1.Group("")
	limited.Use(middleware.RateLimit(cfg.RateLimit))

	limited.POST("/scrape", handler.Scrape(sc))
	limited.POST("/batch/scrape", handler.PostBatch(sc, cfg.Batch.Concurrency, webhook.NewNotifier(nil, nil)))

	return r
}
