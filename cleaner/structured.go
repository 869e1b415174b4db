package cleaner

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/sieve/models"
)

// ExtractJSONLD returns every parseable JSON-LD block in document order.
// Blocks that are not valid JSON are skipped.
func ExtractJSONLD(doc *goquery.Document) []any {
	var out []any
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			slog.Debug("structured: skipping invalid JSON-LD block", "index", i, "error", err)
			return
		}
		out = append(out, v)
	})
	return out
}

// structuredExtract reads JSON-LD and Open Graph data from the raw page and
// the body text from the cleaned document.
func structuredExtract(rawHTML string, raw, cleaned *goquery.Document) *Extraction {
	og := ExtractOpenGraph(rawHTML, raw)

	title := strings.TrimSpace(raw.Find("title").First().Text())
	if title == "" {
		title = og["title"]
	}

	return &Extraction{
		Title:          title,
		Text:           bodyText(cleaned),
		Excerpt:        og["description"],
		SiteName:       og["site_name"],
		Strategy:       string(models.ModeStructured),
		StructuredData: ExtractJSONLD(raw),
		OpenGraph:      og,
	}
}
