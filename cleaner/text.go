package cleaner

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	reScriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	reStyleBlock  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	reTag         = regexp.MustCompile(`<[^>]*>`)
)

// NormalizeText collapses runs of spaces and tabs within each line and drops
// blank lines.
func NormalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if l := strings.Join(strings.Fields(line), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// StripMarkup is a crude text extraction that needs no DOM: script and
// style blocks are dropped, remaining tags are removed, entities are
// decoded and all whitespace is collapsed to single spaces.
func StripMarkup(raw string) string {
	s := reScriptBlock.ReplaceAllString(raw, " ")
	s = reStyleBlock.ReplaceAllString(s, " ")
	s = reTag.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

// documentTitle returns the <title> text, falling back to the first <h1>.
func documentTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// bodyText returns the normalized text of <body>, or of the whole document
// when there is no body element.
func bodyText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		return NormalizeText(doc.Text())
	}
	return NormalizeText(blockText(body))
}

// blockText returns the text of s with line breaks after block elements so
// paragraphs stay separated once normalized.
func blockText(s *goquery.Selection) string {
	s = s.Clone()
	s.Find("p, div, br, li, h1, h2, h3, h4, h5, h6, tr, section, article, blockquote, pre").
		Each(func(_ int, el *goquery.Selection) {
			el.AppendHtml("\n")
		})
	return s.Text()
}
