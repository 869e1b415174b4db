package models

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
)

// ErrorKind is the coarse failure classification surfaced to callers.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindParsing    ErrorKind = "parsing"
	KindValidation ErrorKind = "validation"
	KindPermission ErrorKind = "permission"
	KindTimeout    ErrorKind = "timeout"
	KindUnknown    ErrorKind = "unknown"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeTimeout          = "SCRAPE_TIMEOUT"
	ErrCodeFetchFailed      = "FETCH_FAILED"
	ErrCodeHTTPStatus       = "HTTP_STATUS"
	ErrCodeExtraction       = "CONTENT_EXTRACTION_FAILED"
	ErrCodeSelectorNoMatch  = "SELECTOR_NO_MATCH"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeRobotsDisallowed = "ROBOTS_DISALLOWED"
	ErrCodeContentTooShort  = "CONTENT_TOO_SHORT"
	ErrCodeErrorPage        = "ERROR_PAGE_DETECTED"
	ErrCodeFallbackFailed   = "FALLBACK_FAILED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ScrapeError is the typed error carried by a failed ScrapeResult.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Kind       ErrorKind      `json:"type"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Err        error          `json:"-"` // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(kind ErrorKind, code, message string, err error) *ScrapeError {
	return &ScrapeError{Kind: kind, Code: code, Message: message, Err: err}
}

// WithStatus records the HTTP status code observed from the remote server.
func (e *ScrapeError) WithStatus(status int) *ScrapeError {
	e.StatusCode = status
	return e
}

// WithDetail attaches a key/value pair to the error details.
func (e *ScrapeError) WithDetail(key string, value any) *ScrapeError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion overrides the remediation hint.
func (e *ScrapeError) WithSuggestion(s string) *ScrapeError {
	e.Suggestion = s
	return e
}

// Clone returns a copy whose details map can be modified independently.
func (e *ScrapeError) Clone() *ScrapeError {
	c := *e
	c.Details = maps.Clone(e.Details)
	return &c
}

// EnsureSuggestion fills in the default suggestion for the error's kind
// when none was set explicitly.
func (e *ScrapeError) EnsureSuggestion() {
	if e.Suggestion == "" {
		e.Suggestion = SuggestionFor(e.Kind, e.StatusCode)
	}
}

// SuggestionFor returns the default remediation hint for a failure kind.
func SuggestionFor(kind ErrorKind, status int) string {
	switch kind {
	case KindNetwork:
		switch status {
		case http.StatusForbidden:
			return "The server blocked the request. Try different headers or use a proxy."
		case http.StatusNotFound:
			return "Page not found. Check if the URL is correct."
		case http.StatusTooManyRequests:
			return "The server is rate limiting requests. Lower requests_per_second or retry later."
		}
		return "Check your network connection and the URL."
	case KindTimeout:
		return "The request timed out. Try increasing the timeout or check if the site is responsive."
	case KindParsing:
		return "Failed to parse content. Try a different extraction mode or selector."
	case KindPermission:
		return "Access denied. The site may require authentication or block automated clients."
	case KindValidation:
		return "The extracted content failed validation. Try a different extraction mode or adjust validation settings."
	default:
		return "An unexpected error occurred. Check the logs for more details."
	}
}

// AsScrapeError returns err as a *ScrapeError, classifying foreign errors:
// deadline expiry and network timeouts become timeout errors, other
// network failures become network errors, everything else is unknown.
func AsScrapeError(err error) *ScrapeError {
	if err == nil {
		return nil
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	if IsTimeout(err) {
		return NewScrapeError(KindTimeout, ErrCodeTimeout, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewScrapeError(KindNetwork, ErrCodeFetchFailed, "network request failed", err)
	}
	return NewScrapeError(KindUnknown, ErrCodeInternal, err.Error(), err)
}

// IsTimeout reports whether err is a deadline expiry or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
