package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	calendarTimeout  = 10 * time.Second
	defaultEventSpan = time.Hour
)

// TokenSource yields a per-owner bearer token for the calendar provider.
// The surrounding API layer owns the grant flow; dispatch only consumes
// tokens.
type TokenSource interface {
	Token(ctx context.Context, ownerID int64) (string, error)
}

// Event is one calendar entry.
type Event struct {
	ID       string    `json:"id"`
	Summary  string    `json:"summary"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Calendar creates and lists events against a provider's REST endpoint.
type Calendar struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

func NewCalendar(baseURL string, tokens TokenSource) *Calendar {
	return &Calendar{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: calendarTimeout},
	}
}

// Configured reports whether a provider endpoint is set.
func (c *Calendar) Configured() bool {
	return c.baseURL != "" && c.tokens != nil
}

// CreateEvent creates an event for a meeting. A missing end time defaults to
// one hour after start.
func (c *Calendar) CreateEvent(ctx context.Context, ownerID int64, summary string, start time.Time, end *time.Time, location string) (*Event, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("calendar not configured")
	}

	ev := Event{Summary: summary, Location: location, Start: start}
	if end != nil {
		ev.End = *end
	} else {
		ev.End = start.Add(defaultEventSpan)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding event: %w", err)
	}

	var created Event
	if err := c.do(ctx, ownerID, http.MethodPost, "/events", payload, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListEvents returns up to max upcoming events for the owner.
func (c *Calendar) ListEvents(ctx context.Context, ownerID int64, max int) ([]Event, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("calendar not configured")
	}
	if max <= 0 {
		max = 10
	}

	var events []Event
	if err := c.do(ctx, ownerID, http.MethodGet, fmt.Sprintf("/events?max=%d", max), nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Calendar) do(ctx context.Context, ownerID int64, method, path string, body []byte, out any) error {
	token, err := c.tokens.Token(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("fetching calendar token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling calendar API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("calendar API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding calendar response: %w", err)
		}
	}
	return nil
}
