package models

import (
	"fmt"
	"time"
)

// ExtractionMode selects the extraction strategy.
type ExtractionMode string

const (
	ModeAuto       ExtractionMode = "auto"
	ModeArticle    ExtractionMode = "article"
	ModeCustom     ExtractionMode = "custom"
	ModeStructured ExtractionMode = "structured"
)

// FallbackStrategy names the recovery path tried after a primary failure.
type FallbackStrategy string

const (
	FallbackNone     FallbackStrategy = "none"
	FallbackBasic    FallbackStrategy = "basic"
	FallbackWayback  FallbackStrategy = "wayback"
	FallbackHeadless FallbackStrategy = "headless"
)

// Request limits.
const (
	MaxRetryCount   = 10
	MaxRetryDelayMs = 60_000
	MaxTimeoutMs    = 300_000
	MaxRPS          = 1000
)

// ScrapeRequest is the payload for POST /api/v1/scrape and the input of
// engine.Scrape. Pointer fields distinguish "unset" from an explicit false
// or zero so defaults can be applied.
type ScrapeRequest struct {
	// URL is the target page to scrape. Required.
	URL string `json:"url" binding:"required"`

	// ExtractionMode controls the content extraction strategy.
	// Allowed: "auto" (default), "article", "custom", "structured".
	ExtractionMode ExtractionMode `json:"extraction_mode,omitempty"`

	// Selector is the CSS selector used by "custom" mode.
	Selector string `json:"selector,omitempty"`

	ErrorHandling ErrorHandling  `json:"error_handling"`
	RateLimiting  RateLimiting   `json:"rate_limiting"`
	Content       ContentOptions `json:"content"`
}

// ErrorHandling controls retries, timeouts and fallback behaviour.
type ErrorHandling struct {
	// RetryCount is the number of retries after the first attempt. Default: 3.
	RetryCount *int `json:"retry_count,omitempty"`

	// RetryDelayMs is the base backoff delay. 0 retries immediately.
	// Default: 1000.
	RetryDelayMs *int `json:"retry_delay_ms,omitempty"`

	// TimeoutMs is the per-attempt HTTP timeout. Default: 10000.
	TimeoutMs int `json:"timeout_ms,omitempty"`

	// ContinueOnFail returns failed results instead of aborting. Default: true.
	ContinueOnFail *bool `json:"continue_on_fail,omitempty"`

	// FallbackStrategy is tried when the primary path fails. Default: "basic".
	FallbackStrategy FallbackStrategy `json:"fallback_strategy,omitempty"`
}

// RateLimiting controls per-origin pacing and robots compliance.
type RateLimiting struct {
	Enabled           *bool   `json:"enabled,omitempty"`             // default: true
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"` // default: 1
	RespectRobots     *bool   `json:"respect_robots,omitempty"`      // default: true
}

// ContentOptions controls cleaning, enrichment and validation.
type ContentOptions struct {
	RemoveScripts    *bool `json:"remove_scripts,omitempty"`     // default: true
	RemoveStyles     *bool `json:"remove_styles,omitempty"`      // default: true
	ExtractMetadata  *bool `json:"extract_metadata,omitempty"`   // default: true
	ExtractLinks     bool  `json:"extract_links,omitempty"`      // default: false
	ValidateContent  *bool `json:"validate_content,omitempty"`   // default: true
	MinContentLength *int  `json:"min_content_length,omitempty"` // default: 100

	// Markdown additionally renders the extracted article HTML as Markdown.
	Markdown bool `json:"markdown,omitempty"`
}

// ScrapeOptions is the fully resolved, immutable form of a ScrapeRequest.
type ScrapeOptions struct {
	URL      string
	Mode     ExtractionMode
	Selector string

	RetryCount     int
	RetryDelay     time.Duration
	Timeout        time.Duration
	ContinueOnFail bool
	Fallback       FallbackStrategy

	RateLimit         bool
	RequestsPerSecond float64
	RespectRobots     bool

	RemoveScripts    bool
	RemoveStyles     bool
	ExtractMetadata  bool
	ExtractLinks     bool
	ValidateContent  bool
	MinContentLength int
	Markdown         bool
}

// Resolve validates the request and returns its options with defaults
// applied. The receiver is not modified. URL syntax is checked separately
// by the engine.
func (r *ScrapeRequest) Resolve() (ScrapeOptions, error) {
	o := ScrapeOptions{
		URL:               r.URL,
		Mode:              r.ExtractionMode,
		Selector:          r.Selector,
		RetryCount:        intOr(r.ErrorHandling.RetryCount, 3),
		RetryDelay:        time.Duration(intOr(r.ErrorHandling.RetryDelayMs, 1000)) * time.Millisecond,
		Timeout:           msOr(r.ErrorHandling.TimeoutMs, 10_000),
		ContinueOnFail:    boolOr(r.ErrorHandling.ContinueOnFail, true),
		Fallback:          r.ErrorHandling.FallbackStrategy,
		RateLimit:         boolOr(r.RateLimiting.Enabled, true),
		RequestsPerSecond: r.RateLimiting.RequestsPerSecond,
		RespectRobots:     boolOr(r.RateLimiting.RespectRobots, true),
		RemoveScripts:     boolOr(r.Content.RemoveScripts, true),
		RemoveStyles:      boolOr(r.Content.RemoveStyles, true),
		ExtractMetadata:   boolOr(r.Content.ExtractMetadata, true),
		ExtractLinks:      r.Content.ExtractLinks,
		ValidateContent:   boolOr(r.Content.ValidateContent, true),
		MinContentLength:  intOr(r.Content.MinContentLength, 100),
		Markdown:          r.Content.Markdown,
	}
	if o.Mode == "" {
		o.Mode = ModeAuto
	}
	if o.Fallback == "" {
		o.Fallback = FallbackBasic
	}
	if o.RequestsPerSecond == 0 {
		o.RequestsPerSecond = 1
	}

	switch o.Mode {
	case ModeAuto, ModeArticle, ModeCustom, ModeStructured:
	default:
		return o, invalidInput("extraction_mode", fmt.Sprintf("unknown extraction mode %q", o.Mode))
	}
	if o.Mode == ModeCustom && o.Selector == "" {
		return o, invalidInput("selector", "custom extraction mode requires a selector")
	}
	switch o.Fallback {
	case FallbackNone, FallbackBasic, FallbackWayback, FallbackHeadless:
	default:
		return o, invalidInput("fallback_strategy", fmt.Sprintf("unknown fallback strategy %q", o.Fallback))
	}
	if o.RetryCount < 0 || o.RetryCount > MaxRetryCount {
		return o, invalidInput("retry_count", fmt.Sprintf("retry_count must be between 0 and %d", MaxRetryCount))
	}
	if d := intOr(r.ErrorHandling.RetryDelayMs, 0); d < 0 || d > MaxRetryDelayMs {
		return o, invalidInput("retry_delay_ms", fmt.Sprintf("retry_delay_ms must be between 0 and %d", MaxRetryDelayMs))
	}
	if r.ErrorHandling.TimeoutMs < 0 || r.ErrorHandling.TimeoutMs > MaxTimeoutMs {
		return o, invalidInput("timeout_ms", fmt.Sprintf("timeout_ms must be between 1 and %d", MaxTimeoutMs))
	}
	if o.RequestsPerSecond < 0 || o.RequestsPerSecond > MaxRPS {
		return o, invalidInput("requests_per_second", fmt.Sprintf("requests_per_second must be between 0 and %d", MaxRPS))
	}
	if o.MinContentLength < 0 {
		return o, invalidInput("min_content_length", "min_content_length must not be negative")
	}
	return o, nil
}

func invalidInput(field, msg string) *ScrapeError {
	return NewScrapeError(KindValidation, ErrCodeInvalidInput, msg, nil).
		WithDetail("field", field).
		WithSuggestion("Fix the request parameters and try again.")
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func msOr(ms, def int) time.Duration {
	if ms == 0 {
		ms = def
	}
	return time.Duration(ms) * time.Millisecond
}

// Bool returns a pointer to b, for building requests in code.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to i, for building requests in code.
func Int(i int) *int { return &i }
