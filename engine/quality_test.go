package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/sieve/models"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://Example.COM/Path?q=1#frag", "https://example.com/Path?q=1", true},
		{"  HTTP://example.com  ", "http://example.com", true},
		{"http://example.com:8080/a", "http://example.com:8080/a", true},
		{"ftp://example.com", "", false},
		{"example.com/page", "", false},
		{"https://", "", false},
		{"http://[::1", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, err := ValidateURL(tc.in)
		if !tc.ok {
			require.Error(t, err, tc.in)
			se := models.AsScrapeError(err)
			assert.Equal(t, models.KindValidation, se.Kind, tc.in)
			assert.Equal(t, models.ErrCodeInvalidInput, se.Code, tc.in)
			assert.NotEmpty(t, se.Suggestion, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestValidateContent(t *testing.T) {
	long := strings.Repeat("plain words ", 20)

	assert.Nil(t, validateContent(long, 100))
	assert.Nil(t, validateContent("", 0))

	err := validateContent("tiny", 100)
	require.NotNil(t, err)
	assert.Equal(t, models.ErrCodeContentTooShort, err.Code)
	assert.Equal(t, 4, err.Details["content_length"])
	assert.NotEmpty(t, err.Suggestion)

	err = validateContent(strings.Repeat("é", 99), 100)
	require.NotNil(t, err, "length is counted in characters")

	for _, sig := range errorSignatures {
		err := validateContent(long+" "+strings.ToUpper(sig), 10)
		require.NotNil(t, err, sig)
		assert.Equal(t, models.ErrCodeErrorPage, err.Code)
		assert.Equal(t, sig, err.Details["pattern"])
	}
}
