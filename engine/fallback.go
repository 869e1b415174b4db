package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/use-agent/sieve/cleaner"
	"github.com/use-agent/sieve/models"
	"github.com/use-agent/sieve/monitoring"
	"github.com/use-agent/sieve/scraper"
)

const (
	// DefaultWaybackEndpoint is the Wayback Machine availability API.
	DefaultWaybackEndpoint = "https://archive.org/wayback/available"

	basicUserAgent = "Mozilla/5.0 (compatible; sieve-basic/1.0)"

	basicTimeout    = 5 * time.Second
	waybackTimeout  = 5 * time.Second
	snapshotTimeout = 10 * time.Second

	maxFallbackBody = 10 << 20
)

var (
	errEmptyContent = errors.New("fallback produced no text")
	errNoSnapshot   = errors.New("no archived snapshot available")
)

// Recovered is the content produced by a successful fallback.
type Recovered struct {
	Title      string
	Text       string
	FinalURL   string
	StatusCode int
	Snapshot   *models.Snapshot
}

// Fallback is a recovery strategy tried after the primary pipeline fails.
type Fallback interface {
	Name() models.FallbackStrategy
	Recover(ctx context.Context, opts models.ScrapeOptions, cause *models.ScrapeError) (*Recovered, error)
}

// UnsupportedError is returned by a fallback that cannot run in this
// build. Its suggestion replaces the one on the original error.
type UnsupportedError struct {
	Strategy   models.FallbackStrategy
	Suggestion string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("fallback %q is not supported", e.Strategy)
}

// Pacer blocks until a request to target may be sent under opts' rate
// limit settings.
type Pacer func(ctx context.Context, target string, opts models.ScrapeOptions) error

// Orchestrator runs the fallback chain selected by a request after the
// primary pipeline fails.
type Orchestrator struct {
	chains  map[models.FallbackStrategy][]Fallback
	metrics *monitoring.Metrics
}

// NewOrchestrator registers each fallback as the chain for its own name.
func NewOrchestrator(metrics *monitoring.Metrics, fallbacks ...Fallback) *Orchestrator {
	o := &Orchestrator{
		chains:  make(map[models.FallbackStrategy][]Fallback, len(fallbacks)),
		metrics: metrics,
	}
	for _, fb := range fallbacks {
		o.chains[fb.Name()] = append(o.chains[fb.Name()], fb)
	}
	return o
}

// Eligible reports whether a failure with cause may be recovered by a
// fallback. Rejected input, robots denials and cancelled requests are final.
func (o *Orchestrator) Eligible(ctx context.Context, opts models.ScrapeOptions, cause *models.ScrapeError) bool {
	if opts.Fallback == models.FallbackNone || opts.Fallback == "" {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	switch {
	case cause.Kind == models.KindPermission:
		return false
	case cause.Kind == models.KindValidation && cause.Code == models.ErrCodeInvalidInput:
		return false
	}
	return len(o.chains[opts.Fallback]) > 0
}

// Recover runs the chain for opts.Fallback in order and returns the first
// recovered content. When every step fails the returned error is cause,
// possibly with an updated suggestion.
func (o *Orchestrator) Recover(ctx context.Context, opts models.ScrapeOptions, cause *models.ScrapeError) (*Recovered, *models.ScrapeError) {
	final := cause
	for _, fb := range o.chains[opts.Fallback] {
		rec, err := fb.Recover(ctx, opts, cause)
		if err == nil {
			slog.Info("fallback: recovered", "strategy", fb.Name(), "url", opts.URL, "cause", cause.Code)
			o.metrics.IncFallback(string(fb.Name()), true)
			return rec, nil
		}
		o.metrics.IncFallback(string(fb.Name()), false)
		slog.Warn("fallback: failed", "strategy", fb.Name(), "url", opts.URL, "error", err)

		var unsupported *UnsupportedError
		if errors.As(err, &unsupported) {
			final = cause.Clone().WithSuggestion(unsupported.Suggestion)
			continue
		}
		final = cause.Clone().WithDetail("fallback_error", err.Error())
		if ctx.Err() != nil {
			break
		}
	}
	return nil, final
}

// basicFallback refetches the page once with a short timeout and keeps
// its text with all markup stripped.
type basicFallback struct {
	client *http.Client
	pace   Pacer
}

func newBasicFallback(client *http.Client, pace Pacer) *basicFallback {
	return &basicFallback{client: client, pace: pace}
}

func (b *basicFallback) Name() models.FallbackStrategy { return models.FallbackBasic }

func (b *basicFallback) Recover(ctx context.Context, opts models.ScrapeOptions, _ *models.ScrapeError) (*Recovered, error) {
	if err := b.pace(ctx, opts.URL, opts); err != nil {
		return nil, err
	}
	body, finalURL, status, err := getBody(ctx, b.client, opts.URL, basicUserAgent, basicTimeout)
	if err != nil {
		return nil, err
	}
	text := cleaner.StripMarkup(string(body))
	if text == "" {
		return nil, errEmptyContent
	}
	return &Recovered{
		Title:      scraper.ExtractTitle(body),
		Text:       text,
		FinalURL:   finalURL,
		StatusCode: status,
	}, nil
}

// waybackFallback looks up the closest archived snapshot of the page and
// extracts its visible text.
type waybackFallback struct {
	client    *http.Client
	endpoint  string
	userAgent string
	pace      Pacer
}

func newWaybackFallback(client *http.Client, endpoint, userAgent string, pace Pacer) *waybackFallback {
	if endpoint == "" {
		endpoint = DefaultWaybackEndpoint
	}
	return &waybackFallback{client: client, endpoint: endpoint, userAgent: userAgent, pace: pace}
}

func (w *waybackFallback) Name() models.FallbackStrategy { return models.FallbackWayback }

type waybackAvailability struct {
	ArchivedSnapshots struct {
		Closest *struct {
			Available bool   `json:"available"`
			URL       string `json:"url"`
			Timestamp string `json:"timestamp"`
			Status    string `json:"status"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

func (w *waybackFallback) Recover(ctx context.Context, opts models.ScrapeOptions, _ *models.ScrapeError) (*Recovered, error) {
	lookup, err := w.lookupURL(opts.URL)
	if err != nil {
		return nil, err
	}
	if err := w.pace(ctx, lookup, opts); err != nil {
		return nil, err
	}
	body, _, _, err := getBody(ctx, w.client, lookup, w.userAgent, waybackTimeout)
	if err != nil {
		return nil, fmt.Errorf("wayback lookup: %w", err)
	}

	var avail waybackAvailability
	if err := json.Unmarshal(body, &avail); err != nil {
		return nil, fmt.Errorf("wayback lookup: decode: %w", err)
	}
	closest := avail.ArchivedSnapshots.Closest
	if closest == nil || !closest.Available || closest.URL == "" {
		return nil, errNoSnapshot
	}

	if err := w.pace(ctx, closest.URL, opts); err != nil {
		return nil, err
	}
	page, finalURL, status, err := getBody(ctx, w.client, closest.URL, w.userAgent, snapshotTimeout)
	if err != nil {
		return nil, fmt.Errorf("wayback snapshot: %w", err)
	}
	text := scraper.VisibleText(page)
	if text == "" {
		return nil, errEmptyContent
	}
	return &Recovered{
		Title:      scraper.ExtractTitle(page),
		Text:       text,
		FinalURL:   finalURL,
		StatusCode: status,
		Snapshot:   &models.Snapshot{URL: closest.URL, Timestamp: closest.Timestamp},
	}, nil
}

// lookupURL adds the url parameter to the availability endpoint, keeping
// any query the endpoint already carries.
func (w *waybackFallback) lookupURL(target string) (string, error) {
	u, err := url.Parse(w.endpoint)
	if err != nil {
		return "", fmt.Errorf("wayback endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", target)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// headlessFallback stands in for browser rendering, which this build does
// not include.
type headlessFallback struct{}

func (headlessFallback) Name() models.FallbackStrategy { return models.FallbackHeadless }

func (headlessFallback) Recover(context.Context, models.ScrapeOptions, *models.ScrapeError) (*Recovered, error) {
	return nil, &UnsupportedError{
		Strategy:   models.FallbackHeadless,
		Suggestion: "Headless rendering is not available; use a browser-based service for JavaScript-heavy pages.",
	}
}

// getBody performs a single GET bounded by timeout and returns the body,
// the final URL after redirects and the status code. Non-2xx responses are
// errors.
func getBody(ctx context.Context, client *http.Client, target, userAgent string, timeout time.Duration) ([]byte, string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", 0, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFallbackBody))
	if err != nil {
		return nil, "", resp.StatusCode, err
	}
	return body, resp.Request.URL.String(), resp.StatusCode, nil
}
