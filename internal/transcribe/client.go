// Package transcribe is an HTTP client for a local whisper.cpp server. The
// client is constructed once and injected; there is no lazily-loaded model
// singleton behind it.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// defaultTimeout bounds a single transcription call. Whisper on CPU is slow
// for long recordings.
const defaultTimeout = 5 * time.Minute

// Client communicates with a whisper.cpp server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// New creates a Client targeting the given whisper server base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 0},
		timeout:    defaultTimeout,
	}
}

// inferenceResponse mirrors the JSON returned by POST /inference.
type inferenceResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads a single audio file and returns its transcript. A
// missing file or backend failure yields an error; callers treat any error
// as "no transcript" rather than failing the note.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("opening audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("reading audio file: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/inference", &buf)
	if err != nil {
		return "", fmt.Errorf("creating inference request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference: unexpected status %d", resp.StatusCode)
	}

	var out inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding inference response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// IsRunning returns true if the whisper server responds to GET / with any
// HTTP status.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
