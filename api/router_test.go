package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/sieve/config"
	"github.com/use-agent/sieve/models"
	"github.com/use-agent/sieve/monitoring"
)

type fakeScraper struct {
	calls atomic.Int32
	fn    func(req *models.ScrapeRequest) (*models.ScrapeResult, error)
}

func (f *fakeScraper) Scrape(_ context.Context, req *models.ScrapeRequest) (*models.ScrapeResult, error) {
	f.calls.Add(1)
	return f.fn(req)
}

func (f *fakeScraper) Stats() models.EngineStats {
	return models.EngineStats{TrackedOrigins: 2, PolicyCacheSize: 3}
}

func okResult(req *models.ScrapeRequest) (*models.ScrapeResult, error) {
	return &models.ScrapeResult{
		Success: true,
		URL:     req.URL,
		Data:    &models.ContentPayload{Title: "T", Content: "body"},
	}, nil
}

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}
	return cfg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestScrape_OK(t *testing.T) {
	sc := &fakeScraper{fn: okResult}
	r := NewRouter(sc, testConfig(), nil, time.Now())

	w := do(t, r, http.MethodPost, "/api/v1/scrape", `{"url": "https://example.com", "extraction_mode": "article"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res models.ScrapeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "https://example.com", res.URL)
	assert.Equal(t, "body", res.Data.Content)
}

func TestScrape_MissingURL(t *testing.T) {
	sc := &fakeScraper{fn: okResult}
	r := NewRouter(sc, testConfig(), nil, time.Now())

	w := do(t, r, http.MethodPost, "/api/v1/scrape", `{"extraction_mode": "article"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, sc.calls.Load())

	var res models.ScrapeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeInvalidInput, res.Error.Code)
	assert.NotEmpty(t, res.Error.Suggestion)
}

func TestScrape_FailureStatus(t *testing.T) {
	tests := []struct {
		kind models.ErrorKind
		want int
	}{
		{models.KindValidation, http.StatusBadRequest},
		{models.KindPermission, http.StatusForbidden},
		{models.KindParsing, http.StatusUnprocessableEntity},
		{models.KindNetwork, http.StatusBadGateway},
		{models.KindTimeout, http.StatusGatewayTimeout},
		{models.KindUnknown, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			sc := &fakeScraper{fn: func(req *models.ScrapeRequest) (*models.ScrapeResult, error) {
				se := models.NewScrapeError(tc.kind, "X", "failed", nil)
				res := &models.ScrapeResult{URL: req.URL, Error: se}
				if req.ErrorHandling.ContinueOnFail != nil && !*req.ErrorHandling.ContinueOnFail {
					return res, se
				}
				return res, nil
			}}
			r := NewRouter(sc, testConfig(), nil, time.Now())

			w := do(t, r, http.MethodPost, "/api/v1/scrape",
				`{"url": "https://example.com", "error_handling": {"continue_on_fail": false}}`)
			assert.Equal(t, tc.want, w.Code)

			w = do(t, r, http.MethodPost, "/api/v1/scrape", `{"url": "https://example.com"}`)
			assert.Equal(t, http.StatusOK, w.Code, "continue_on_fail defaults to true")
		})
	}
}

func TestBatch_PreservesOrder(t *testing.T) {
	sc := &fakeScraper{fn: func(req *models.ScrapeRequest) (*models.ScrapeResult, error) {
		if strings.Contains(req.URL, "bad") {
			return &models.ScrapeResult{URL: req.URL, Error: models.NewScrapeError(models.KindNetwork, "X", "down", nil)}, nil
		}
		assert.Equal(t, models.ModeArticle, req.ExtractionMode, "shared options apply to every URL")
		return okResult(req)
	}}
	r := NewRouter(sc, testConfig(), nil, time.Now())

	w := do(t, r, http.MethodPost, "/api/v1/batch/scrape",
		`{"urls": ["https://a.example", "https://bad.example", "https://c.example"], "options": {"extraction_mode": "article"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "partial", resp.Status)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "https://a.example", resp.Results[0].URL)
	assert.Equal(t, "https://bad.example", resp.Results[1].URL)
	assert.Equal(t, "https://c.example", resp.Results[2].URL)
}

func TestBatch_Webhook(t *testing.T) {
	received := make(chan models.BatchResponse, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev struct {
			Type string               `json:"type"`
			Data models.BatchResponse `json:"data"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, "batch.completed", ev.Type)
		assert.NotEmpty(t, r.Header.Get("X-Sieve-Signature"))
		received <- ev.Data
	}))
	defer hook.Close()

	r := NewRouter(&fakeScraper{fn: okResult}, testConfig(), nil, time.Now())
	w := do(t, r, http.MethodPost, "/api/v1/batch/scrape",
		`{"urls": ["https://a.example"], "webhook_url": "`+hook.URL+`", "webhook_secret": "k"}`)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case got := <-received:
		assert.Equal(t, "completed", got.Status)
		assert.Equal(t, 1, got.Succeeded)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestBatch_TooManyURLs(t *testing.T) {
	sc := &fakeScraper{fn: okResult}
	r := NewRouter(sc, testConfig(), nil, time.Now())

	urls := make([]string, models.MaxBatchSize+1)
	for i := range urls {
		urls[i] = "https://example.com"
	}
	body, err := json.Marshal(models.BatchRequest{URLs: urls})
	require.NoError(t, err)

	w := do(t, r, http.MethodPost, "/api/v1/batch/scrape", string(body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, sc.calls.Load())
}

func TestHealth(t *testing.T) {
	r := NewRouter(&fakeScraper{fn: okResult}, testConfig(), nil, time.Now())

	w := do(t, r, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var h models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 2, h.Engine.TrackedOrigins)
	assert.Equal(t, 3, h.Engine.PolicyCacheSize)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)
	m.ObserveScrape(true, "", 10*time.Millisecond)

	r := NewRouter(&fakeScraper{fn: okResult}, testConfig(), reg, time.Now())
	w := do(t, r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sieve_scrapes_total")

	noMetrics := NewRouter(&fakeScraper{fn: okResult}, testConfig(), nil, time.Now())
	assert.Equal(t, http.StatusNotFound, do(t, noMetrics, http.MethodGet, "/metrics", "").Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	r := NewRouter(&fakeScraper{fn: okResult}, cfg, nil, time.Now())

	body := `{"url": "https://example.com"}`
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/scrape", body).Code)
	w := do(t, r, http.MethodPost, "/api/v1/scrape", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrCodeRateLimited)

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/api/v1/health", "").Code, "health is not rate limited")
}
