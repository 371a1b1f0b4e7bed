package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const webhookTimeout = 10 * time.Second

// Webhook posts detected email intents to a configured automation endpoint.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Configured reports whether an endpoint is set.
func (w *Webhook) Configured() bool {
	return w.url != ""
}

type webhookPayload struct {
	Text      string `json:"text"`
	Recipient string `json:"recipient,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body,omitempty"`
}

// SendEmail fires the webhook with the note text and the drafted email
// fields. Returns whether the endpoint accepted it; failures are logged and
// never returned as errors because dispatch is best-effort.
func (w *Webhook) SendEmail(ctx context.Context, text, recipient, subject, body string) bool {
	if !w.Configured() {
		slog.Debug("email webhook not configured, skipping")
		return false
	}

	payload, err := json.Marshal(webhookPayload{
		Text:      text,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
	if err != nil {
		slog.Warn("encoding webhook payload failed", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		slog.Warn("creating webhook request failed", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		slog.Warn("webhook call failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("webhook rejected", "status", resp.StatusCode)
		return false
	}
	slog.Info("email webhook delivered", "recipient", recipient)
	return true
}
