package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ScrapesTotal    *prometheus.CounterVec
	FetchAttempts   *prometheus.CounterVec
	FallbacksTotal  *prometheus.CounterVec
	PolicyDecisions *prometheus.CounterVec
	RateLimitWait   prometheus.Histogram
	ScrapeDuration  *prometheus.HistogramVec
}

// NewMetrics registers the engine metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScrapesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sieve_scrapes_total",
			Help: "The total number of scrapes by outcome and error type",
		}, []string{"outcome", "type"}),
		FetchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sieve_fetch_attempts_total",
			Help: "The total number of HTTP fetch attempts by result",
		}, []string{"result"}), // e.g. 'ok', 'retry', 'error'
		FallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sieve_fallbacks_total",
			Help: "The total number of fallback attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		PolicyDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sieve_policy_decisions_total",
			Help: "The total number of robots policy decisions",
		}, []string{"decision"}),
		RateLimitWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sieve_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a per-origin rate limit token",
			Buckets: []float64{0, .01, .05, .1, .5, 1, 2, 5, 10},
		}),
		ScrapeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sieve_scrape_duration_seconds",
			Help:    "End-to-end scrape duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveScrape(success bool, kind string, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.ScrapesTotal.WithLabelValues(outcome, kind).Inc()
	m.ScrapeDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) IncFetchAttempt(result string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) IncFallback(strategy string, recovered bool) {
	if m == nil {
		return
	}
	outcome := "recovered"
	if !recovered {
		outcome = "failed"
	}
	m.FallbacksTotal.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) IncPolicyDecision(decision string) {
	if m == nil {
		return
	}
	m.PolicyDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveRateLimitWait(d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.Observe(d.Seconds())
}
