package cleaner

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/sieve/models"
)

// customExtract returns the text and outer HTML of every element matching
// selector. An invalid selector or zero matches is a parsing error that
// carries the selector in its details.
func customExtract(doc *goquery.Document, selector string) (*Extraction, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, models.NewScrapeError(models.KindParsing, models.ErrCodeExtraction,
			fmt.Sprintf("invalid CSS selector %q", selector), err).
			WithDetail("selector", selector)
	}

	matches := doc.FindMatcher(sel)
	if matches.Length() == 0 {
		return nil, models.NewScrapeError(models.KindParsing, models.ErrCodeSelectorNoMatch,
			fmt.Sprintf("no elements matched selector %q", selector), nil).
			WithDetail("selector", selector).
			WithSuggestion("Check the selector against the page markup or try a different extraction mode.")
	}

	var htmlParts, textParts []string
	matches.Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			htmlParts = append(htmlParts, h)
		}
		textParts = append(textParts, s.Text())
	})

	return &Extraction{
		Title:         documentTitle(doc),
		Text:          NormalizeText(strings.Join(textParts, "\n")),
		HTML:          strings.Join(htmlParts, "\n"),
		Strategy:      string(models.ModeCustom),
		ElementsFound: matches.Length(),
	}, nil
}
