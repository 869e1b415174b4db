package engine

import (
	"time"

	"github.com/use-agent/sieve/cleaner"
	"github.com/use-agent/sieve/models"
	"github.com/use-agent/sieve/scraper"
)

// succeed builds a successful result around payload.
func succeed(target string, payload *models.ContentPayload, retries int, used models.FallbackStrategy) *models.ScrapeResult {
	return &models.ScrapeResult{
		Success:      true,
		URL:          target,
		Data:         payload,
		Retries:      retries,
		FallbackUsed: used,
	}
}

// fail builds a failed result. Any error is normalised into the taxonomy
// and always carries a suggestion.
func fail(target string, err error, retries int, used models.FallbackStrategy) *models.ScrapeResult {
	se := models.AsScrapeError(err)
	se.EnsureSuggestion()
	return &models.ScrapeResult{
		Success:      false,
		URL:          target,
		Error:        se,
		Retries:      retries,
		FallbackUsed: used,
	}
}

// payloadFromExtraction converts a primary pipeline extraction.
func payloadFromExtraction(ex *cleaner.Extraction, page *scraper.Page) *models.ContentPayload {
	return &models.ContentPayload{
		Title:          ex.Title,
		Content:        ex.Text,
		Excerpt:        ex.Excerpt,
		Byline:         ex.Byline,
		SiteName:       ex.SiteName,
		Markdown:       ex.Markdown,
		Mode:           ex.Strategy,
		Metadata:       ex.Metadata,
		Links:          ex.Links,
		StructuredData: ex.StructuredData,
		OpenGraph:      ex.OpenGraph,
		ElementsFound:  ex.ElementsFound,
		Metrics:        ex.Metrics,
		StatusCode:     page.StatusCode,
		FinalURL:       page.FinalURL,
		Timestamp:      time.Now().UTC(),
	}
}

// payloadFromRecovery converts fallback output. Fallback content is plain
// text, so only metrics are derived from it.
func payloadFromRecovery(rec *Recovered, used models.FallbackStrategy) *models.ContentPayload {
	return &models.ContentPayload{
		Title:      rec.Title,
		Content:    rec.Text,
		Mode:       string(used),
		Snapshot:   rec.Snapshot,
		Metrics:    cleaner.ComputeMetrics(rec.Text),
		StatusCode: rec.StatusCode,
		FinalURL:   rec.FinalURL,
		Timestamp:  time.Now().UTC(),
	}
}
