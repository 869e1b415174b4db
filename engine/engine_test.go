package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/sieve/models"
	"github.com/use-agent/sieve/monitoring"
)

const articlePage = `<!DOCTYPE html>
<html lang="en">
<head><title>Backoff in Practice</title><meta name="description" content="Retry timing."></head>
<body>
  <nav><a href="/">Home</a> <a href="/blog">Blog</a></nav>
  <article>
    <h1>Backoff in Practice</h1>
    <p>Exponential backoff spaces out retries so that a struggling server gets room to recover. Each failed attempt doubles the wait before the next one, which quickly reduces the load a single client can generate.</p>
    <p>A base delay of one second gives waits of one, two and four seconds for three retries. That is usually enough to ride out a brief outage without making the caller wait for an unreasonable amount of time.</p>
    <p>Only transient failures deserve a retry. A timeout or a 503 may succeed a moment later, but a 404 will not change no matter how many times the same request is sent to the same server.</p>
    <p>Combined with per-origin rate limiting, backoff keeps a scraper polite even when many requests target the same site at once, and it never needs a busy loop to wait.</p>
  </article>
  <footer>Copyright</footer>
</body>
</html>`

// countingTransport counts requests before handing them to next.
type countingTransport struct {
	calls atomic.Int32
	next  http.RoundTripper
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return c.next.RoundTrip(req)
}

func newCounting() *countingTransport {
	return &countingTransport{next: http.DefaultTransport}
}

// hangingTransport blocks every request until its context ends.
type hangingTransport struct {
	calls atomic.Int32
}

func (h *hangingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	h.calls.Add(1)
	<-req.Context().Done()
	return nil, req.Context().Err()
}

func newTestEngine(t *testing.T, rt http.RoundTripper, wayback string) *Engine {
	t.Helper()
	e := New(Options{Transport: rt, WaybackEndpoint: wayback})
	t.Cleanup(e.Close)
	return e
}

// quickRequest disables robots, rate limiting, retries and fallbacks.
func quickRequest(target string) *models.ScrapeRequest {
	return &models.ScrapeRequest{
		URL: target,
		ErrorHandling: models.ErrorHandling{
			RetryCount:       models.Int(0),
			RetryDelayMs:     models.Int(1),
			FallbackStrategy: models.FallbackNone,
		},
		RateLimiting: models.RateLimiting{
			Enabled:       models.Bool(false),
			RespectRobots: models.Bool(false),
		},
	}
}

func pageServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func assertInvariant(t *testing.T, res *models.ScrapeResult) {
	t.Helper()
	require.NotNil(t, res)
	if res.Success {
		assert.NotNil(t, res.Data)
		assert.Nil(t, res.Error)
		return
	}
	assert.Nil(t, res.Data)
	require.NotNil(t, res.Error)
	assert.NotEmpty(t, res.Error.Suggestion)
}

func TestScrape_InvalidURLMakesNoRequests(t *testing.T) {
	rt := newCounting()
	e := newTestEngine(t, rt, "")

	for _, raw := range []string{"ftp://example.com/file", "not a url", "", "http://", "mailto:a@b.c"} {
		req := quickRequest(raw)
		req.RateLimiting = models.RateLimiting{}
		req.ErrorHandling.FallbackStrategy = models.FallbackBasic

		res, err := e.Scrape(context.Background(), req)
		require.NoError(t, err, raw)
		assertInvariant(t, res)
		assert.False(t, res.Success, raw)
		assert.Equal(t, models.KindValidation, res.Error.Kind, raw)
		assert.Empty(t, res.FallbackUsed, raw)
	}
	assert.Zero(t, rt.calls.Load())
	assert.Zero(t, e.Stats().TrackedOrigins, "rejected URLs never reach the rate limiter")
}

func TestScrape_InvalidOptions(t *testing.T) {
	rt := newCounting()
	e := newTestEngine(t, rt, "")

	req := quickRequest("https://example.com")
	req.ExtractionMode = "telepathy"
	res, err := e.Scrape(context.Background(), req)
	require.NoError(t, err)
	assertInvariant(t, res)
	assert.Equal(t, models.ErrCodeInvalidInput, res.Error.Code)
	assert.Equal(t, "extraction_mode", res.Error.Details["field"])
	assert.Zero(t, rt.calls.Load())
}

func TestScrape_RobotsDisallowed(t *testing.T) {
	var pageHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		pageHits.Add(1)
		fmt.Fprint(w, articlePage)
	}))
	defer srv.Close()

	e := newTestEngine(t, newCounting(), "")
	req := quickRequest(srv.URL + "/private/page")
	req.RateLimiting.RespectRobots = models.Bool(true)
	req.ErrorHandling.FallbackStrategy = models.FallbackBasic

	res, err := e.Scrape(context.Background(), req)
	require.NoError(t, err)
	assertInvariant(t, res)
	assert.Equal(t, models.KindPermission, res.Error.Kind)
	assert.Equal(t, models.ErrCodeRobotsDisallowed, res.Error.Code)
	assert.Empty(t, res.FallbackUsed, "permission failures are final")
	assert.Zero(t, pageHits.Load())

	req.URL = srv.URL + "/public"
	res, err = e.Scrape(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int32(1), pageHits.Load())
	assert.Equal(t, 1, e.Stats().PolicyCacheSize)
}

func TestScrape_TimeoutRetries(t *testing.T) {
	rt := &hangingTransport{}
	e := newTestEngine(t, rt, "")

	req := quickRequest("http://slow.example.com/")
	req.ErrorHandling.RetryCount = models.Int(3)
	req.ErrorHandling.TimeoutMs = 20

	res, err := e.Scrape(context.Background(), req)
	require.NoError(t, err)
	assertInvariant(t, res)
	assert.Equal(t, int32(4), rt.calls.Load())
	assert.Equal(t, 3, res.Retries)
	assert.Equal(t, models.KindTimeout, res.Error.Kind)
	assert.Contains(t, res.Error.Suggestion, "timeout")
}

func TestScrape_RateLimitThrottles(t *testing.T) {
	if testing.Short() {
		t.Skip("takes about five seconds")
	}
	srv := pageServer(t, articlePage)
	e := newTestEngine(t, newCounting(), "")

	start := time.Now()
	var wg sync.WaitGroup
	results := make([]*models.ScrapeResult, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := quickRequest(fmt.Sprintf("%s/post/%d", srv.URL, i))
			req.RateLimiting.Enabled = models.Bool(true)
			req.RateLimiting.RequestsPerSecond = 2
			results[i], _ = e.Scrape(context.Background(), req)
		}(i)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), 4500*time.Millisecond)
	for _, res := range results {
		assert.True(t, res.Success)
	}
	assert.Equal(t, 1, e.Stats().TrackedOrigins)
}

func TestScrape_ContentTooShort(t *testing.T) {
	srv := pageServer(t, "<html><head><title>T</title></head><body><p>"+strings.Repeat("x", 50)+"</p></body></html>")
	e := newTestEngine(t, newCounting(), "")

	req := quickRequest(srv.URL)
	req.ExtractionMode = models.ModeArticle
	req.Content.MinContentLength = models.Int(100)

	res, err := e.Scrape(context.Background(), req)
	require.NoError(t, err)
	assertInvariant(t, res)
	assert.Equal(t, models.KindValidation, res.Error.Kind)
	assert.Equal(t, models.ErrCodeContentTooShort, res.Error.Code)
	assert.Equal(t, 50, res.Error.Details["content_length"])
}

func TestScrape_ErrorPageDetected(t *testing.T) {
	srv := pageServer(t, `<html><body><p>Access Denied. `+strings.Repeat("You do not have permission to view this resource. ", 4)+`</p></body></html>`)
	e := newTestEngine(t, newCounting(), "")

	res, err := e.Scrape(context.Background(), quickRequest(srv.URL))
	require.NoError(t, err)
	assertInvariant(t, res)
	assert.Equal(t, models.ErrCodeErrorPage, res.Error.Code)
	assert.Equal(t, "access denied", res.Error.Details["pattern"])
}

func TestScrape_ValidationDisabled(t *testing.T) {
	srv := pageServer(t, "<html><body><p>short</p></body></html>")
	e := newTestEngine(t, newCounting(), "")

	req := quickRequest(srv.URL)
	req.Content.ValidateContent = models.Bool(false)
	res, err := e.Scrape(context.Background(), req)
	require.NoError(t, err)
	assertInvariant(t, res)
	assert.Equal(t, "short", res.Data.Content)
}

func TestScrape_CustomSelectorNoMatch(t *testing.T) {
	srv := pageServer(t, articlePage)
	e := newTestEngine(t, newCounting(), "")

	req := quickRequest(srv.URL)
	req.ExtractionMode = models.ModeCustom
	req.Selector = ".price-tag"

	res, err := e.Scrape(context.Background(), req)
	require.NoError(t, err)
	assertInvariant(t, res)
	assert.Equal(t, models.KindParsing, res.Error.Kind)
	assert.Equal(t, ".price-tag", res.Error.Details["selector"])
}

func TestScrape_ArticleRoundTrip(t *testing.T) {
	srv := pageServer(t, articlePage)
	e := newTestEngine(t, newCounting(), "")

	req := quickRequest(srv.URL + "/posts/backoff")
	req.ExtractionMode = models.ModeArticle
	req.Content.ExtractLinks = true

	res, err := e.Scrape(context.Background(), req)
	require.NoError(t, err)
	assertInvariant(t, res)
	require.True(t, res.Success)

	assert.Equal(t, "Backoff in Practice", res.Data.Title)
	assert.Contains(t, res.Data.Content, "Exponential backoff spaces out retries")
	assert.Greater(t, res.Data.Metrics.WordCount, 0)
	assert.Equal(t, http.StatusOK, res.Data.StatusCode)
	assert.Equal(t, "Retry timing.", res.Data.Metadata["description"])
	assert.Contains(t, res.Data.Links, srv.URL+"/blog")
	assert.Equal(t, 0, res.Retries)
	assert.Empty(t, res.FallbackUsed)
	assert.GreaterOrEqual(t, res.DurationMs, int64(0))
}

func TestScrape_WaybackNoSnapshotKeepsOriginalError(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer page.Close()
	var lookups atomic.Int32
	archive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		assert.Equal(t, page.URL, r.URL.Query().Get("url"))
		fmt.Fprint(w, `{"url": "x", "archived_snapshots": {}}`)
	}))
	defer archive.Close()

	e := newTestEngine(t, newCounting(), archive.URL)
	req := quickRequest(page.URL)
	req.ErrorHandling.FallbackStrategy = models.FallbackWayback

	res, err := e.Scrape(context.Background(), req)
	require.NoError(t, err)
	assertInvariant(t, res)
	assert.Equal(t, int32(1), lookups.Load())
	assert.Equal(t, models.FallbackWayback, res.FallbackUsed)
	assert.Equal(t, models.KindNetwork, res.Error.Kind)
	assert.Equal(t, models.ErrCodeHTTPStatus, res.Error.Code)
	assert.Equal(t, http.StatusServiceUnavailable, res.Error.StatusCode)
	assert.Contains(t, res.Error.Details, "fallback_error")
}

func TestScrape_WaybackRecovers(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer page.Close()

	var archive *httptest.Server
	archive = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/snapshot" {
			fmt.Fprint(w, `<html><head><title>Archived</title><script>var a;</script></head><body><p>Archived copy of the page.</p></body></html>`)
			return
		}
		fmt.Fprintf(w, `{"archived_snapshots": {"closest": {"available": true, "url": %q, "timestamp": "20240101000000", "status": "200"}}}`,
			archive.URL+"/snapshot")
	}))
	defer archive.Close()

	e := newTestEngine(t, newCounting(), archive.URL)
	req := quickRequest(page.URL)
	req.ErrorHandling.FallbackStrategy = models.FallbackWayback

	res, err := e.Scrape(context.Background(), req)
	require.NoError(t, err)
	assertInvariant(t, res)
	require.True(t, res.Success)
	assert.Equal(t, models.FallbackWayback, res.FallbackUsed)
	assert.Equal(t, "Archived", res.Data.Title)
	assert.Equal(t, "Archived copy of the page.", res.Data.Content)
	require.NotNil(t, res.Data.Snapshot)
	assert.Equal(t, "20240101000000", res.Data.Snapshot.Timestamp)
	assert.Equal(t, archive.URL+"/snapshot", res.Data.Snapshot.URL)
}

func TestScrape_BasicFallbackRecovers(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, articlePage)
	}))
	defer srv.Close()

	e := newTestEngine(t, newCounting(), "")
	req := quickRequest(srv.URL)
	req.ExtractionMode = models.ModeCustom
	req.Selector = ".missing"
	req.ErrorHandling.FallbackStrategy = models.FallbackBasic

	res, err := e.Scrape(context.Background(), req)
	require.NoError(t, err)
	assertInvariant(t, res)
	require.True(t, res.Success)
	assert.Equal(t, models.FallbackBasic, res.FallbackUsed)
	assert.Equal(t, "Backoff in Practice", res.Data.Title)
	assert.Contains(t, res.Data.Content, "Exponential backoff")
	assert.NotContains(t, res.Data.Content, "<p>")
	assert.Equal(t, int32(2), hits.Load(), "primary fetch plus one basic refetch")
}

func TestScrape_HeadlessIsUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := newTestEngine(t, newCounting(), "")
	req := quickRequest(srv.URL)
	req.ErrorHandling.FallbackStrategy = models.FallbackHeadless

	res, err := e.Scrape(context.Background(), req)
	require.NoError(t, err)
	assertInvariant(t, res)
	assert.Equal(t, models.FallbackHeadless, res.FallbackUsed)
	assert.Equal(t, models.ErrCodeHTTPStatus, res.Error.Code)
	assert.Equal(t, http.StatusInternalServerError, res.Error.StatusCode)
	assert.Contains(t, res.Error.Suggestion, "Headless rendering is not available")
}

func TestScrape_ContinueOnFailFalseReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	e := newTestEngine(t, newCounting(), "")
	req := quickRequest(srv.URL)
	req.ErrorHandling.ContinueOnFail = models.Bool(false)

	res, err := e.Scrape(context.Background(), req)
	require.Error(t, err)
	assertInvariant(t, res)

	var se *models.ScrapeError
	require.True(t, errors.As(err, &se))
	assert.Same(t, res.Error, se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Contains(t, se.Suggestion, "proxy")
}

func TestScrape_CancelledSkipsFallback(t *testing.T) {
	rt := &hangingTransport{}
	e := newTestEngine(t, rt, "")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	req := quickRequest("http://stuck.example.com/")
	req.ErrorHandling.RetryCount = models.Int(5)
	req.ErrorHandling.RetryDelayMs = models.Int(1000)
	req.ErrorHandling.FallbackStrategy = models.FallbackBasic

	start := time.Now()
	res, err := e.Scrape(ctx, req)
	require.NoError(t, err)
	assertInvariant(t, res)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, res.FallbackUsed)
	assert.Equal(t, int32(1), rt.calls.Load())
}

func TestScrape_NilRequest(t *testing.T) {
	e := newTestEngine(t, newCounting(), "")
	res, err := e.Scrape(context.Background(), nil)
	require.NoError(t, err)
	assertInvariant(t, res)
	assert.Equal(t, models.KindValidation, res.Error.Kind)
}

func TestScrape_CancelledRobotsLookupRecordsNoDecision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, articlePage)
	}))
	defer srv.Close()

	m := monitoring.NewMetrics(prometheus.NewRegistry())
	e := New(Options{Transport: newCounting(), Metrics: m})
	t.Cleanup(e.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := quickRequest(srv.URL + "/page")
	req.RateLimiting.RespectRobots = models.Bool(true)

	res, err := e.Scrape(ctx, req)
	require.NoError(t, err)
	assertInvariant(t, res)
	assert.Equal(t, models.KindTimeout, res.Error.Kind)
	assert.Zero(t, testutil.CollectAndCount(m.PolicyDecisions))
}

func TestScrape_JavaScriptShellSuggestsBrowserService(t *testing.T) {
	srv := pageServer(t, `<html><head><title>App</title></head><body><div id="root"></div><script src="/app.js"></script></body></html>`)
	e := newTestEngine(t, newCounting(), "")

	res, err := e.Scrape(context.Background(), quickRequest(srv.URL))
	require.NoError(t, err)
	assertInvariant(t, res)
	require.False(t, res.Success)
	assert.Equal(t, true, res.Error.Details["javascript_required"])
	assert.Contains(t, res.Error.Suggestion, "browser-based rendering service")
	assert.NotContains(t, res.Error.Suggestion, "headless")
}

func TestWaybackLookupURL_KeepsEndpointQuery(t *testing.T) {
	w := newWaybackFallback(http.DefaultClient, "https://archive.example/available?key=abc", "", nil)
	got, err := w.lookupURL("https://example.com/a?b=1")
	require.NoError(t, err)
	assert.Equal(t, "https://archive.example/available?key=abc&url=https%3A%2F%2Fexample.com%2Fa%3Fb%3D1", got)

	w = newWaybackFallback(http.DefaultClient, "", "", nil)
	got, err = w.lookupURL("https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, DefaultWaybackEndpoint+"?url=https%3A%2F%2Fexample.com%2F", got)
}
