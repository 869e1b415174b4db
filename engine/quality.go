package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/use-agent/sieve/models"
)

// errorSignatures are phrases that mark a block, error or bot-check page
// served with a success status.
var errorSignatures = []string{
	"access denied",
	"403 forbidden",
	"404 not found",
	"please enable javascript",
	"are you a robot",
}

// validateContent rejects text shorter than minLength characters or
// containing an error page signature.
func validateContent(text string, minLength int) *models.ScrapeError {
	if n := utf8.RuneCountInString(text); n < minLength {
		return models.NewScrapeError(models.KindValidation, models.ErrCodeContentTooShort,
			fmt.Sprintf("content too short: %d characters, minimum %d", n, minLength), nil).
			WithDetail("content_length", n).
			WithDetail("min_content_length", minLength).
			WithSuggestion("Try a different extraction mode or selector, or lower min_content_length.")
	}
	return detectErrorPage(text)
}

// detectErrorPage returns a validation error when text contains one of the
// error page signatures, compared case-insensitively.
func detectErrorPage(text string) *models.ScrapeError {
	lower := strings.ToLower(text)
	for _, sig := range errorSignatures {
		if strings.Contains(lower, sig) {
			return models.NewScrapeError(models.KindValidation, models.ErrCodeErrorPage,
				fmt.Sprintf("content looks like an error page (matched %q)", sig), nil).
				WithDetail("pattern", sig).
				WithSuggestion("The page may require authentication or JavaScript rendering.")
		}
	}
	return nil
}
