package models

import "time"

// ScrapeResult is the single result shape returned for every scrape,
// successful or not. Exactly one of Data and Error is non-nil.
type ScrapeResult struct {
	Success bool            `json:"success"`
	URL     string          `json:"url"`
	Data    *ContentPayload `json:"data,omitempty"`
	Error   *ScrapeError    `json:"error,omitempty"`

	// Retries is the number of fetch attempts beyond the first.
	Retries int `json:"retries"`

	// FallbackUsed names the fallback strategy that was attempted, if any.
	FallbackUsed FallbackStrategy `json:"fallback_used,omitempty"`

	DurationMs int64 `json:"duration_ms"`
}

// ContentPayload is the extracted, cleaned page content.
type ContentPayload struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Excerpt  string `json:"excerpt,omitempty"`
	Byline   string `json:"byline,omitempty"`
	SiteName string `json:"site_name,omitempty"`

	// Markdown is the article rendered as Markdown when requested.
	Markdown string `json:"markdown,omitempty"`

	// Mode is the extraction strategy (or fallback) that produced the payload.
	Mode string `json:"mode"`

	Metadata       map[string]string `json:"metadata,omitempty"`
	Links          []string          `json:"links,omitempty"`
	StructuredData []any             `json:"structured_data,omitempty"`
	OpenGraph      map[string]string `json:"open_graph,omitempty"`

	// ElementsFound is the number of selector matches in custom mode.
	ElementsFound int `json:"elements_found,omitempty"`

	// Snapshot is set when the content came from an archived copy.
	Snapshot *Snapshot `json:"snapshot,omitempty"`

	Metrics ContentMetrics `json:"metrics"`

	StatusCode int       `json:"status_code,omitempty"`
	FinalURL   string    `json:"final_url,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Snapshot identifies an archived copy of the page.
type Snapshot struct {
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
}

// ContentMetrics summarises the extracted body text.
type ContentMetrics struct {
	WordCount          int `json:"word_count"`
	ReadingTimeMinutes int `json:"reading_time"`
	ContentLength      int `json:"content_length"`
	TokenEstimate      int `json:"token_estimate"`

	// Fingerprint is the 64-bit SimHash of the body text, hex encoded.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string      `json:"status"`
	Uptime  string      `json:"uptime"`
	Version string      `json:"version"`
	Engine  EngineStats `json:"engine"`
}

// EngineStats reports the size of the engine's shared state.
type EngineStats struct {
	TrackedOrigins  int `json:"tracked_origins"`
	PolicyCacheSize int `json:"policy_cache_size"`
}
