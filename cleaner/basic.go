package cleaner

import (
	"github.com/PuerkitoBio/goquery"
)

// StrategyBasic names the basic body-text strategy.
const StrategyBasic = "basic"

// basicExtract drops script, style, noscript and iframe elements and
// returns the body text. The title is <title>, else the first <h1>.
func basicExtract(doc *goquery.Document) *Extraction {
	doc = goquery.CloneDocument(doc)
	FilterContent(doc, basicNoise...)

	htmlOut, _ := doc.Find("body").Html()
	return &Extraction{
		Title:    documentTitle(doc),
		Text:     bodyText(doc),
		HTML:     htmlOut,
		Strategy: StrategyBasic,
	}
}
