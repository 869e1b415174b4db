package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/use-agent/sieve/models"
	"github.com/use-agent/sieve/monitoring"
)

// DefaultUserAgent identifies the scraper to the sites it visits.
const DefaultUserAgent = "Mozilla/5.0 (compatible; sieve/1.0; +https://github.com/use-agent/sieve)"

const (
	defaultMaxRedirects = 5
	defaultMaxBodyBytes = 10 << 20
)

var errTooManyRedirects = errors.New("too many redirects")

// Page is a successfully fetched document.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// HTML returns the body as a string.
func (p *Page) HTML() string { return string(p.Body) }

// RetryPolicy controls attempts for one fetch.
type RetryPolicy struct {
	// Retries is the number of attempts allowed after the first.
	Retries int

	// BaseDelay is the wait before the first retry; it doubles each retry.
	BaseDelay time.Duration

	// Timeout bounds each attempt, including reading the body.
	Timeout time.Duration
}

// Backoff returns the delay before retry number n (1-based).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return p.BaseDelay << (n - 1)
}

// Options configures a Fetcher.
type Options struct {
	Transport    http.RoundTripper
	UserAgent    string
	MaxRedirects int   // default: 5
	MaxBodyBytes int64 // default: 10 MiB
	Metrics      *monitoring.Metrics
}

// Fetcher retrieves pages over HTTP with retries and exponential backoff.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	metrics   *monitoring.Metrics
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts Options) *Fetcher {
	if opts.Transport == nil {
		opts.Transport = NewTransport(false)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	maxRedirects := opts.MaxRedirects
	return &Fetcher{
		client: &http.Client{
			Transport: opts.Transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects: %w", maxRedirects, errTooManyRedirects)
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		metrics:   opts.Metrics,
	}
}

// Client returns the underlying HTTP client.
func (f *Fetcher) Client() *http.Client { return f.client }

// UserAgent returns the User-Agent header the fetcher sends.
func (f *Fetcher) UserAgent() string { return f.userAgent }

// Fetch retrieves target, retrying transport failures, timeouts, HTTP 429
// and 5xx responses up to policy.Retries times with exponential backoff.
// It returns the page, the number of retries performed, and on failure a
// *models.ScrapeError describing the last attempt.
func (f *Fetcher) Fetch(ctx context.Context, target string, policy RetryPolicy) (*Page, int, error) {
	var (
		lastErr  *models.ScrapeError
		attempts int
	)

	operation := func() (*Page, error) {
		attempts++
		page, err := f.fetchOnce(ctx, target, policy.Timeout)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, delay time.Duration) {
		f.metrics.IncFetchAttempt("retry")
		slog.Warn("fetch: attempt failed, retrying",
			"url", target, "attempt", attempts, "delay", delay, "error", err,
		)
	}

	page, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&scheduleBackOff{policy: policy}),
		backoff.WithMaxTries(uint(max(policy.Retries, 0)+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	retries := max(attempts-1, 0)
	if err == nil {
		f.metrics.IncFetchAttempt("ok")
		return page, retries, nil
	}

	f.metrics.IncFetchAttempt("error")
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, retries, cancelled(ctxErr, lastErr, retries)
	}
	if lastErr == nil {
		lastErr = models.AsScrapeError(err)
	}
	return nil, retries, lastErr.
		WithDetail("retries", retries).
		WithDetail("attempts", retries+1)
}

// scheduleBackOff replays RetryPolicy.Backoff as a backoff.BackOff.
type scheduleBackOff struct {
	policy RetryPolicy
	n      int
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	b.n++
	return b.policy.Backoff(b.n)
}

func (b *scheduleBackOff) Reset() { b.n = 0 }

func (f *Fetcher) fetchOnce(ctx context.Context, target string, timeout time.Duration) (*Page, *models.ScrapeError) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.KindValidation, models.ErrCodeInvalidInput, "cannot build request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, models.NewScrapeError(models.KindNetwork, models.ErrCodeHTTPStatus,
			fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)), nil).
			WithStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, transportError(err)
	}

	return &Page{
		URL:         target,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func transportError(err error) *models.ScrapeError {
	if models.IsTimeout(err) {
		return models.NewScrapeError(models.KindTimeout, models.ErrCodeTimeout, "request timed out", err)
	}
	se := models.NewScrapeError(models.KindNetwork, models.ErrCodeFetchFailed, "request failed", err)
	if errors.Is(err, errTooManyRedirects) {
		se.Message = "too many redirects"
	}
	return se
}

func retryable(err *models.ScrapeError) bool {
	switch err.Kind {
	case models.KindTimeout:
		return true
	case models.KindNetwork:
		if errors.Is(err, errTooManyRedirects) {
			return false
		}
		return err.StatusCode == 0 ||
			err.StatusCode == http.StatusTooManyRequests ||
			err.StatusCode >= 500
	default:
		return false
	}
}

// cancelled builds the error returned when the caller's context ends.
func cancelled(ctxErr error, last *models.ScrapeError, retries int) *models.ScrapeError {
	se := models.AsScrapeError(ctxErr)
	if se.Kind == models.KindTimeout {
		se.Message = "scrape deadline exceeded"
	} else {
		se.Message = "scrape cancelled"
	}
	if last != nil {
		se.WithDetail("last_error", last.Error())
	}
	return se.WithDetail("retries", retries)
}
