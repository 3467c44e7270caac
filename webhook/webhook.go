// Package webhook notifies callers when a run finishes.
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

	"github.com/use-agent/pagehealth/models"
)

// EventRunCompleted is sent once per run, carrying the Analysis.
const EventRunCompleted = "run.completed"

// SignatureHeader carries "sha256=<hex>" when a secret is configured.
const SignatureHeader = "X-PageHealth-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string           `json:"type"`
	RunID     string           `json:"run_id"`
	URL       string           `json:"url"`
	Timestamp int64            `json:"timestamp"`
	Data      *models.Analysis `json:"data"`
}

// NewRunCompleted builds the event for a finished run.
func NewRunCompleted(url string, an *models.Analysis) *Event {
	return &Event{
		Type:      EventRunCompleted,
		RunID:     an.RunID,
		URL:       url,
		Timestamp: time.Now().Unix(),
		Data:      an,
	}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends a webhook event synchronously.
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PageHealth-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher delivers events in the background with retries.
type Dispatcher struct {
	// Delays precede each attempt; the first is normally zero.
	Delays []time.Duration
}

// DefaultDispatcher retries after 1s, 5s and 30s.
func DefaultDispatcher() *Dispatcher {
	return &Dispatcher{Delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}}
}

// DeliverAsync sends event in a goroutine. The returned channel is closed
// when delivery succeeded or all attempts were used.
func (d *Dispatcher) DeliverAsync(url, secret string, event *Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for attempt, delay := range d.Delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := Deliver(ctx, url, secret, event)
			cancel()
			if err == nil {
				slog.Info("webhook delivered",
					"url", url,
					"event", event.Type,
					"run_id", event.RunID,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("webhook delivery failed",
				"url", url,
				"event", event.Type,
				"run_id", event.RunID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("webhook delivery exhausted all retries",
			"url", url,
			"event", event.Type,
			"run_id", event.RunID,
		)
	}()
	return done
}
