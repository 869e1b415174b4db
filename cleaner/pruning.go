package cleaner

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Signal weights for the block scorer.
const (
	wTextDensity   = 3.0
	wLinkDensity   = -2.0
	wTagWeight     = 1.5
	wClassIDWeight = 1.0
	wTextLength    = 0.5
)

var (
	contentHints     = []string{"content", "article", "post", "entry", "body", "main", "text"}
	boilerplateHints = []string{
		"sidebar", "ad", "widget", "nav", "menu", "comment", "footer",
		"header", "banner", "popup", "modal", "cookie", "social", "share",
		"related", "recommend", "promo",
	}
)

// PruneContent keeps the top-level <body> blocks whose score is positive
// and returns their HTML and normalized text. Blocks are scored on text
// density, link density, semantic tag, class/id hints and text length.
// ok is false when the document has no body or no block survives.
func PruneContent(doc *goquery.Document) (htmlOut, text string, ok bool) {
	body := doc.Find("body")
	if body.Length() == 0 {
		return "", "", false
	}

	var kept []string
	var texts []string
	body.Children().Each(func(_ int, el *goquery.Selection) {
		if blockScore(el) <= 0 {
			return
		}
		if h, err := goquery.OuterHtml(el); err == nil {
			kept = append(kept, h)
			texts = append(texts, el.Text())
		}
	})
	if len(kept) == 0 {
		return "", "", false
	}
	return strings.Join(kept, "\n"), NormalizeText(strings.Join(texts, "\n")), true
}

func blockScore(el *goquery.Selection) float64 {
	outer, err := goquery.OuterHtml(el)
	if err != nil || len(outer) == 0 {
		return 0
	}
	text := strings.TrimSpace(el.Text())
	textLen := len(text)

	linkLen := 0
	el.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkLen += len(strings.TrimSpace(a.Text()))
	})
	linkDensity := 0.0
	if textLen > 0 {
		linkDensity = float64(linkLen) / float64(textLen)
	}

	return float64(textLen)/float64(len(outer))*wTextDensity +
		linkDensity*wLinkDensity +
		tagWeight(goquery.NodeName(el))*wTagWeight +
		hintWeight(el)*wClassIDWeight +
		math.Log10(float64(textLen)+1)*wTextLength
}

func tagWeight(tag string) float64 {
	switch tag {
	case "article", "main", "section":
		return 5
	case "nav", "footer", "aside", "header":
		return -5
	}
	return 0
}

// hintWeight counts at most one positive and one negative class/id hint.
func hintWeight(el *goquery.Selection) float64 {
	class, _ := el.Attr("class")
	id, _ := el.Attr("id")
	attrs := strings.ToLower(class + " " + id)

	score := 0.0
	if containsAny(attrs, contentHints) {
		score += 3
	}
	if containsAny(attrs, boilerplateHints) {
		score -= 3
	}
	return score
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
