package cleaner

import (
	"strings"
	"unicode/utf8"

	"github.com/use-agent/sieve/models"
	"github.com/use-agent/sieve/simhash"
)

// wordsPerMinute is the reading speed used for reading time estimates.
const wordsPerMinute = 200

// ComputeMetrics summarises text: word count, reading time in whole minutes
// (rounded up), length in characters, token estimate and SimHash fingerprint.
func ComputeMetrics(text string) models.ContentMetrics {
	words := len(strings.Fields(text))
	m := models.ContentMetrics{
		WordCount:          words,
		ReadingTimeMinutes: (words + wordsPerMinute - 1) / wordsPerMinute,
		ContentLength:      utf8.RuneCountInString(text),
		TokenEstimate:      EstimateTokens(text),
	}
	if fp := simhash.Of(text); fp != 0 {
		m.Fingerprint = fp.String()
	}
	return m
}
