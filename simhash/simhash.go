// Package simhash computes 64-bit SimHash fingerprints of text so that
// near-duplicate pages can be detected by Hamming distance.
package simhash

import (
	"fmt"
	"hash/fnv"
	"math/bits"
	"strconv"
	"strings"
)

// Fingerprint is a 64-bit SimHash. The zero value is the fingerprint of
// text with no words.
type Fingerprint uint64

// Of computes the SimHash of text. Words are compared case-insensitively.
func Of(text string) Fingerprint {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	var vector [64]int
	h := fnv.New64a()
	for _, word := range words {
		h.Reset()
		h.Write([]byte(strings.ToLower(word)))
		sum := h.Sum64()
		for i := range vector {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp Fingerprint
	for i, v := range vector {
		if v > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// String returns the fingerprint as 16 lowercase hex digits.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Parse decodes a fingerprint produced by String.
func Parse(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("simhash: parse %q: %w", s, err)
	}
	return Fingerprint(v), nil
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b Fingerprint) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Similar reports whether the Hamming distance between a and b is at most
// threshold.
func Similar(a, b Fingerprint, threshold int) bool {
	return Distance(a, b) <= threshold
}
