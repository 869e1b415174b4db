package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/sieve/cleaner"
	"github.com/use-agent/sieve/models"
	"github.com/use-agent/sieve/monitoring"
	"github.com/use-agent/sieve/policy"
	"github.com/use-agent/sieve/ratelimit"
	"github.com/use-agent/sieve/scraper"
)

// Options configures an Engine. Zero values select the defaults of each
// component.
type Options struct {
	// Transport is shared by page, robots and fallback requests.
	Transport http.RoundTripper

	UserAgent    string
	MaxBodyBytes int64

	// RobotsAgent is the product token matched in robots.txt groups.
	RobotsAgent      string
	PolicyTTL        time.Duration
	PolicyFailureTTL time.Duration
	PolicyTimeout    time.Duration
	PolicyCacheSize  int

	// OriginIdleTTL is how long an unused origin limiter is kept.
	OriginIdleTTL time.Duration

	WaybackEndpoint string

	Metrics *monitoring.Metrics
}

// Engine runs the scrape pipeline: URL validation, robots policy, per-origin
// rate limiting, fetching with retries, extraction, content validation and
// fallback recovery. It is safe for concurrent use.
type Engine struct {
	fetcher   *scraper.Fetcher
	cleaner   *cleaner.Cleaner
	gate      *policy.Gate
	limiter   *ratelimit.Registry
	fallbacks *Orchestrator
	metrics   *monitoring.Metrics
}

// New creates an Engine. Call Close to stop its background sweepers.
func New(opts Options) *Engine {
	if opts.Transport == nil {
		opts.Transport = scraper.NewTransport(false)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = scraper.DefaultUserAgent
	}
	if opts.RobotsAgent == "" {
		opts.RobotsAgent = "sieve"
	}
	if opts.OriginIdleTTL <= 0 {
		opts.OriginIdleTTL = time.Hour
	}

	fetcher := scraper.NewFetcher(scraper.Options{
		Transport:    opts.Transport,
		UserAgent:    opts.UserAgent,
		MaxBodyBytes: opts.MaxBodyBytes,
		Metrics:      opts.Metrics,
	})
	e := &Engine{
		fetcher: fetcher,
		cleaner: cleaner.NewCleaner(),
		gate: policy.NewGate(policy.Options{
			Client:     fetcher.Client(),
			UserAgent:  opts.UserAgent,
			Agent:      opts.RobotsAgent,
			TTL:        opts.PolicyTTL,
			FailureTTL: opts.PolicyFailureTTL,
			Timeout:    opts.PolicyTimeout,
			MaxEntries: opts.PolicyCacheSize,
		}),
		limiter: ratelimit.New(opts.OriginIdleTTL),
		metrics: opts.Metrics,
	}
	e.fallbacks = NewOrchestrator(opts.Metrics,
		newBasicFallback(fetcher.Client(), e.pace),
		newWaybackFallback(fetcher.Client(), opts.WaybackEndpoint, opts.UserAgent, e.pace),
		headlessFallback{},
	)
	return e
}

// Close stops the engine's background goroutines.
func (e *Engine) Close() {
	e.gate.Stop()
	e.limiter.Stop()
}

// Stats reports the size of the engine's per-origin state.
func (e *Engine) Stats() models.EngineStats {
	return models.EngineStats{
		TrackedOrigins:  e.limiter.Len(),
		PolicyCacheSize: e.gate.Len(),
	}
}

// Scrape runs the full pipeline for req. The result is never nil and
// satisfies: Success implies Data is set and Error is nil, otherwise Error
// is set with a suggestion. When the request disables continue_on_fail a
// failed result is also returned as the error.
func (e *Engine) Scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResult, error) {
	start := time.Now()
	res, continueOnFail := e.scrape(ctx, req)
	elapsed := time.Since(start)
	res.DurationMs = elapsed.Milliseconds()

	kind := ""
	if res.Error != nil {
		kind = string(res.Error.Kind)
	}
	e.metrics.ObserveScrape(res.Success, kind, elapsed)

	if res.Success {
		slog.Info("scrape: done", "url", res.URL, "retries", res.Retries,
			"fallback", res.FallbackUsed, "duration_ms", res.DurationMs)
		return res, nil
	}
	slog.Warn("scrape: failed", "url", res.URL, "code", res.Error.Code,
		"retries", res.Retries, "fallback", res.FallbackUsed, "duration_ms", res.DurationMs)
	if !continueOnFail {
		return res, res.Error
	}
	return res, nil
}

func (e *Engine) scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResult, bool) {
	if req == nil {
		return fail("", models.NewScrapeError(models.KindValidation, models.ErrCodeInvalidInput, "request is required", nil), 0, ""), true
	}

	target, err := ValidateURL(req.URL)
	if err != nil {
		return fail(req.URL, err, 0, ""), continueOnFail(req)
	}
	opts, err := req.Resolve()
	if err != nil {
		return fail(target, err, 0, ""), continueOnFail(req)
	}
	opts.URL = target

	payload, retries, err := e.primary(ctx, opts)
	if err == nil {
		return succeed(target, payload, retries, ""), opts.ContinueOnFail
	}

	cause := models.AsScrapeError(err)
	if !e.fallbacks.Eligible(ctx, opts, cause) {
		return fail(target, cause, retries, ""), opts.ContinueOnFail
	}

	slog.Info("scrape: primary failed, trying fallback", "url", target,
		"strategy", opts.Fallback, "code", cause.Code)
	rec, final := e.fallbacks.Recover(ctx, opts, cause)
	if rec == nil {
		return fail(target, final, retries, opts.Fallback), opts.ContinueOnFail
	}
	if opts.ValidateContent {
		if verr := detectErrorPage(rec.Text); verr != nil {
			return fail(target, cause.Clone().WithDetail("fallback_error", verr.Error()), retries, opts.Fallback), opts.ContinueOnFail
		}
	}
	return succeed(target, payloadFromRecovery(rec, opts.Fallback), retries, opts.Fallback), opts.ContinueOnFail
}

// primary runs policy, rate limiting, fetch, extraction and validation.
// The retry count is returned even on failure.
func (e *Engine) primary(ctx context.Context, opts models.ScrapeOptions) (*models.ContentPayload, int, error) {
	if opts.RespectRobots {
		decision, err := e.gate.Check(ctx, opts.URL)
		if err != nil {
			return nil, 0, err
		}
		e.metrics.IncPolicyDecision(string(decision))
		if decision == policy.Disallowed {
			return nil, 0, policy.DeniedError(opts.URL)
		}
	}

	if err := e.pace(ctx, opts.URL, opts); err != nil {
		return nil, 0, err
	}

	page, retries, err := e.fetcher.Fetch(ctx, opts.URL, scraper.RetryPolicy{
		Retries:   opts.RetryCount,
		BaseDelay: opts.RetryDelay,
		Timeout:   opts.Timeout,
	})
	if err != nil {
		return nil, retries, err
	}

	ex, err := e.cleaner.Extract(page.HTML(), page.FinalURL, cleaner.Options{
		Mode:            opts.Mode,
		Selector:        opts.Selector,
		RemoveScripts:   opts.RemoveScripts,
		RemoveStyles:    opts.RemoveStyles,
		ExtractMetadata: opts.ExtractMetadata,
		ExtractLinks:    opts.ExtractLinks,
		Markdown:        opts.Markdown,
	})
	if err != nil {
		return nil, retries, withJSHint(err, page)
	}

	if opts.ValidateContent {
		if verr := validateContent(ex.Text, opts.MinContentLength); verr != nil {
			return nil, retries, withJSHint(verr, page)
		}
	}
	return payloadFromExtraction(ex, page), retries, nil
}

// pace waits for the target origin's rate limit token when the request
// enables rate limiting. A robots Crawl-delay lowers the rate further when
// robots are respected.
func (e *Engine) pace(ctx context.Context, target string, opts models.ScrapeOptions) error {
	if !opts.RateLimit {
		return nil
	}
	origin, err := ratelimit.Origin(target)
	if err != nil {
		return models.NewScrapeError(models.KindValidation, models.ErrCodeInvalidInput, "cannot derive origin", err)
	}

	rps := opts.RequestsPerSecond
	if opts.RespectRobots {
		if d := e.gate.CrawlDelay(origin); d > 0 {
			rps = min(rps, 1/d.Seconds())
		}
	}

	waited, err := e.limiter.Wait(ctx, origin, rps)
	e.metrics.ObserveRateLimitWait(waited)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.KindTimeout, models.ErrCodeRateLimited,
			"gave up waiting for the origin rate limit", err).
			WithDetail("origin", origin)
	}
	return models.NewScrapeError(models.KindUnknown, models.ErrCodeInternal, "rate limiter failed", err)
}

// withJSHint marks extraction and validation failures on pages that look
// client-rendered.
func withJSHint(err error, page *scraper.Page) error {
	if !scraper.NeedsJavaScript(page.Body) {
		return err
	}
	se := models.AsScrapeError(err).Clone()
	return se.WithDetail("javascript_required", true).
		WithSuggestion("The page appears to render its content with JavaScript; use a browser-based rendering service to scrape it.")
}

func continueOnFail(req *models.ScrapeRequest) bool {
	if req.ErrorHandling.ContinueOnFail == nil {
		return true
	}
	return *req.ErrorHandling.ContinueOnFail
}
