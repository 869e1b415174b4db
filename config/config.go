package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Engine    EngineConfig
	RateLimit RateLimitConfig
	Batch     BatchConfig
	Metrics   MetricsConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration // default: 15s

	// TrustedProxies are the proxy addresses whose forwarding headers are
	// trusted when resolving the client IP. Empty trusts none.
	TrustedProxies []string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// EngineConfig controls the scrape engine. Per-scrape knobs (retries,
// timeouts, fallback, rate) are request-scoped and not configured here.
type EngineConfig struct {
	// UserAgent is sent with page and robots requests.
	UserAgent string // default: scraper.DefaultUserAgent

	// RobotsAgent is the token matched against robots.txt User-agent groups.
	RobotsAgent string // default: "sieve"

	// Impersonate enables the Chrome TLS fingerprint transport.
	Impersonate bool // default: false

	// MaxBodyBytes caps the size of a fetched page.
	MaxBodyBytes int64 // default: 10 MiB

	PolicyTTL        time.Duration // default: 1h
	PolicyFailureTTL time.Duration // default: 1m
	PolicyTimeout    time.Duration // default: 5s
	PolicyCacheSize  int           // default: 10000

	// OriginIdleTTL is how long an unused per-origin limiter is kept.
	OriginIdleTTL time.Duration // default: 1h

	// WaybackEndpoint is the archive availability API.
	WaybackEndpoint string // default: "https://archive.org/wayback/available"
}

// RateLimitConfig controls per-client API rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client IP.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per client IP.
	Burst int // default: 10
}

// BatchConfig controls batch fan-out.
type BatchConfig struct {
	// Concurrency is the number of URLs scraped at once per batch.
	Concurrency int // default: 5
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   // default: true
	Path    string // default: "/metrics"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            envOr("SIEVE_HOST", "0.0.0.0"),
			Port:            envIntOr("SIEVE_PORT", 8080),
			Mode:            envOr("SIEVE_MODE", "release"),
			ShutdownTimeout: envDurationOr("SIEVE_SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedProxies:  envSliceOr("SIEVE_TRUSTED_PROXIES", nil),
		},
		Log: LogConfig{
			Level:  envOr("SIEVE_LOG_LEVEL", "info"),
			Format: envOr("SIEVE_LOG_FORMAT", "json"),
		},
		Engine: EngineConfig{
			UserAgent:        os.Getenv("SIEVE_USER_AGENT"),
			RobotsAgent:      envOr("SIEVE_ROBOTS_AGENT", "sieve"),
			Impersonate:      envBoolOr("SIEVE_IMPERSONATE", false),
			MaxBodyBytes:     int64(envIntOr("SIEVE_MAX_BODY_BYTES", 10<<20)),
			PolicyTTL:        envDurationOr("SIEVE_POLICY_TTL", time.Hour),
			PolicyFailureTTL: envDurationOr("SIEVE_POLICY_FAILURE_TTL", time.Minute),
			PolicyTimeout:    envDurationOr("SIEVE_POLICY_TIMEOUT", 5*time.Second),
			PolicyCacheSize:  envIntOr("SIEVE_POLICY_CACHE_SIZE", 10_000),
			OriginIdleTTL:    envDurationOr("SIEVE_ORIGIN_IDLE_TTL", time.Hour),
			WaybackEndpoint:  envOr("SIEVE_WAYBACK_ENDPOINT", "https://archive.org/wayback/available"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SIEVE_RATE_RPS", 5.0),
			Burst:             envIntOr("SIEVE_RATE_BURST", 10),
		},
		Batch: BatchConfig{
			Concurrency: envIntOr("SIEVE_BATCH_CONCURRENCY", 5),
		},
		Metrics: MetricsConfig{
			Enabled: envBoolOr("SIEVE_METRICS_ENABLED", true),
			Path:    envOr("SIEVE_METRICS_PATH", "/metrics"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envSliceOr splits a comma-separated variable, dropping empty items.
func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
