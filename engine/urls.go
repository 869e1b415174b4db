package engine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/use-agent/sieve/models"
)

// ValidateURL checks that raw is an absolute http(s) URL with a host and
// returns its canonical form: scheme and host lowercased, fragment dropped.
// It performs no I/O.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalidURL(raw, "url is required", nil)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", invalidURL(raw, "url cannot be parsed", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", invalidURL(raw, fmt.Sprintf("unsupported url scheme %q, expected http or https", u.Scheme), nil)
	}
	if u.Hostname() == "" {
		return "", invalidURL(raw, "url has no host", nil)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

func invalidURL(raw, msg string, err error) *models.ScrapeError {
	return models.NewScrapeError(models.KindValidation, models.ErrCodeInvalidInput, msg, err).
		WithDetail("url", raw).
		WithSuggestion("Provide an absolute http:// or https:// URL.")
}
