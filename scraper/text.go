package scraper

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// ExtractTitle returns the text of the first <title> element.
func ExtractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}

// VisibleText returns the text inside <body>, skipping script, style and
// noscript content, with whitespace collapsed to single spaces.
func VisibleText(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var parts []string
	inBody := false
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return strings.Join(parts, " ")
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "body":
				inBody = true
			case "script", "style", "noscript":
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				if text := strings.Join(strings.Fields(string(tokenizer.Text())), " "); text != "" {
					parts = append(parts, text)
				}
			}
		}
	}
}

var reNoscript = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)

// NeedsJavaScript reports whether the document looks like a client-rendered
// shell whose content only appears after scripts run.
func NeedsJavaScript(body []byte) bool {
	text := VisibleText(body)
	lower := strings.ToLower(string(body))

	for _, shell := range []string{`<div id="root"></div>`, `<div id="app"></div>`, `<div id="__next"></div>`} {
		if strings.Contains(lower, shell) {
			return true
		}
	}
	if reNoscript.MatchString(lower) {
		return true
	}
	return strings.Count(lower, "<script") > 10 && len(text) < 500
}
