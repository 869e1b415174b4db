package main

import (
	"fmt"
	"strings"

	"github.com/use-agent/sieve/models"
)

// formatResult renders a successful scrape as a short header and the content.
func formatResult(res *models.ScrapeResult) string {
	d := res.Data
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\nSource: %s\n", d.Title, res.URL)
	if res.FallbackUsed != "" {
		fmt.Fprintf(&sb, "Recovered via: %s fallback\n", res.FallbackUsed)
	}
	if d.Snapshot != nil {
		fmt.Fprintf(&sb, "Archived snapshot: %s (%s)\n", d.Snapshot.URL, d.Snapshot.Timestamp)
	}
	sb.WriteString("\n")

	if d.Markdown != "" {
		sb.WriteString(d.Markdown)
	} else {
		sb.WriteString(d.Content)
	}

	fmt.Fprintf(&sb, "\n\n---\nWords: %d, reading time: %d min, tokens: ~%d",
		d.Metrics.WordCount, d.Metrics.ReadingTimeMinutes, d.Metrics.TokenEstimate)
	return sb.String()
}

// formatFailure renders the error of a failed scrape with its suggestion.
func formatFailure(res *models.ScrapeResult) string {
	if res.Error == nil {
		return "scrape failed"
	}
	msg := fmt.Sprintf("[%s] %s", res.Error.Code, res.Error.Message)
	if res.Error.Suggestion != "" {
		msg += "\nSuggestion: " + res.Error.Suggestion
	}
	return msg
}

// formatBatch renders every result of a batch in request order.
func formatBatch(b *models.BatchResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s: %d/%d succeeded\n\n", b.Status, b.Succeeded, b.Total)
	for i, res := range b.Results {
		if res == nil {
			fmt.Fprintf(&sb, "--- [%d] FAILED: no result ---\n\n", i+1)
			continue
		}
		if res.Success {
			fmt.Fprintf(&sb, "--- [%d] %s (%s) ---\n%s\n\n", i+1, res.Data.Title, res.URL, res.Data.Content)
			continue
		}
		fmt.Fprintf(&sb, "--- [%d] FAILED: %s ---\n\n", i+1, formatFailure(res))
	}
	return sb.String()
}
