package models

// MaxBatchSize caps the number of URLs in one batch request.
const MaxBatchSize = 100

// BatchRequest is the payload for POST /api/v1/batch/scrape.
type BatchRequest struct {
	// URLs is the list of target pages to scrape. Required.
	URLs []string `json:"urls" binding:"required,min=1,max=100"`

	// Options is applied to every URL; its URL field is ignored.
	Options ScrapeRequest `json:"options" binding:"-"`

	// WebhookURL, if set, receives a "batch.completed" event with the
	// response once every URL is done.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body (X-Sieve-Signature).
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Request builds the per-URL request from the shared options.
func (b *BatchRequest) Request(target string) *ScrapeRequest {
	r := b.Options
	r.URL = target
	return &r
}

// BatchResponse is the response for POST /api/v1/batch/scrape. Results are
// in the same order as the requested URLs.
type BatchResponse struct {
	Status    string          `json:"status"` // "completed", "partial", "failed"
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Results   []*ScrapeResult `json:"results"`
}

// Summarize fills the counters and status from Results.
func (b *BatchResponse) Summarize() {
	b.Total = len(b.Results)
	b.Succeeded, b.Failed = 0, 0
	for _, r := range b.Results {
		if r != nil && r.Success {
			b.Succeeded++
		} else {
			b.Failed++
		}
	}
	switch {
	case b.Total > 0 && b.Failed == b.Total:
		b.Status = "failed"
	case b.Failed > 0:
		b.Status = "partial"
	default:
		b.Status = "completed"
	}
}
