package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/use-agent/sieve/models"
)

func TestFormatResult(t *testing.T) {
	res := &models.ScrapeResult{
		Success:      true,
		URL:          "https://example.com/a",
		FallbackUsed: models.FallbackWayback,
		Data: &models.ContentPayload{
			Title:    "Hello",
			Content:  "plain body",
			Snapshot: &models.Snapshot{URL: "https://web.archive.org/x", Timestamp: "20240101000000"},
			Metrics:  models.ContentMetrics{WordCount: 2, ReadingTimeMinutes: 1, TokenEstimate: 3},
		},
	}
	out := formatResult(res)
	assert.Contains(t, out, "Title: Hello")
	assert.Contains(t, out, "Recovered via: wayback fallback")
	assert.Contains(t, out, "20240101000000")
	assert.Contains(t, out, "plain body")
	assert.Contains(t, out, "Words: 2")

	res.Data.Markdown = "# Hello"
	assert.Contains(t, formatResult(res), "# Hello")
	assert.NotContains(t, formatResult(res), "plain body")
}

func TestFormatBatch(t *testing.T) {
	b := &models.BatchResponse{
		Status:    "partial",
		Total:     2,
		Succeeded: 1,
		Results: []*models.ScrapeResult{
			{Success: true, URL: "https://a.example", Data: &models.ContentPayload{Title: "A", Content: "alpha"}},
			{URL: "https://b.example", Error: &models.ScrapeError{Code: models.ErrCodeHTTPStatus, Message: "HTTP 404", Suggestion: "Check the URL."}},
		},
	}
	out := formatBatch(b)
	assert.Contains(t, out, "Batch partial: 1/2 succeeded")
	assert.Contains(t, out, "--- [1] A (https://a.example) ---\nalpha")
	assert.Contains(t, out, "[HTTP_STATUS] HTTP 404")
	assert.Contains(t, out, "Suggestion: Check the URL.")
}
