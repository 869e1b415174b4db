package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minArticleLength is the minimum TextContent length (in characters) for
// readability output to be considered usable. Below this threshold we assume
// the algorithm failed to locate the main content.
const minArticleLength = 50

// ExtractArticle runs the Mozilla Readability algorithm on rawHTML.
//
// On success it returns the Article with clean HTML in Content, plain text in
// TextContent, and metadata (Title, Byline, Excerpt, SiteName, Language).
// ok is false when parsing failed or the extracted text is too short; the
// returned Article then still carries whatever metadata was found.
func ExtractArticle(rawHTML string, sourceURL string) (article readability.Article, ok bool) {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability: invalid source URL",
			"url", sourceURL, "error", err,
		)
		return readability.Article{}, false
	}

	article, err = readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Warn("readability: extraction failed",
			"url", sourceURL, "error", err,
		)
		return readability.Article{}, false
	}

	if len(strings.TrimSpace(article.TextContent)) < minArticleLength {
		slog.Debug("readability: extracted content too short",
			"url", sourceURL, "length", len(article.TextContent),
		)
		return article, false
	}

	return article, true
}
