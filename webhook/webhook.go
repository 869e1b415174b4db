package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Sieve-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"` // "batch.completed"
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Notifier delivers events to caller-supplied endpoints.
type Notifier struct {
	client *http.Client
	delays []time.Duration
}

// NewNotifier creates a Notifier. A nil client uses a 10s timeout client.
// delays are the waits before each attempt; nil selects 0s, 1s, 5s, 30s.
func NewNotifier(client *http.Client, delays []time.Duration) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if delays == nil {
		delays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}
	}
	return &Notifier{client: client, delays: delays}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends an event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func (n *Notifier) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Sieve-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync sends an event in the background, retrying after each
// configured delay. done, if non-nil, receives the final error.
func (n *Notifier) DeliverAsync(url, secret string, event *Event, done func(error)) {
	go func() {
		var err error
		for attempt, delay := range n.delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err = n.Deliver(ctx, url, secret, event)
			cancel()
			if err == nil {
				slog.Info("webhook delivered", "url", url, "event", event.Type, "attempt", attempt+1)
				break
			}
			slog.Warn("webhook delivery failed",
				"url", url, "event", event.Type, "attempt", attempt+1, "error", err,
			)
		}
		if err != nil {
			slog.Error("webhook delivery exhausted all retries", "url", url, "event", event.Type)
		}
		if done != nil {
			done(err)
		}
	}()
}
