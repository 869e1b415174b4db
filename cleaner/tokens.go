package cleaner

import "unicode/utf8"

// EstimateTokens provides a fast token count estimate without a tokenizer.
//
// Heuristic: utf8 rune count / 3. English averages ~4 chars/token and CJK
// ~1.5, so 3 slightly over-estimates mixed-language text.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return max(n/3, 1)
}
