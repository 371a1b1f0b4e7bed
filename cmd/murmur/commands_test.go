package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/murmurhq/murmur/internal/config"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestNoteSubmit_Text(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /notes": `{"id":"note-123","status":"queued"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/notes", map[string]any{"text": "call the dentist"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result["status"] != "queued" {
		t.Errorf("status = %q, want queued", result["status"])
	}
	if result["id"] != "note-123" {
		t.Errorf("id = %q, want note-123", result["id"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["text"] != "call the dentist" {
		t.Errorf("body.text = %v", body["text"])
	}
}

func TestNoteSubmit_Multipart(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /notes": `{"id":"note-456","status":"queued"}`,
	})

	audioFile := filepath.Join(t.TempDir(), "memo.wav")
	if err := os.WriteFile(audioFile, []byte("RIFF fake audio"), 0o644); err != nil {
		t.Fatalf("writing audio fixture: %v", err)
	}

	client := ts.client()
	resp, err := client.postMultipart(ctx, "/notes", "context text", []string{audioFile})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["id"] != "note-456" {
		t.Errorf("id = %q, want note-456", result["id"])
	}

	r := ts.requests[0]
	if !strings.HasPrefix(r.ContentType, "multipart/form-data") {
		t.Errorf("content type = %q, want multipart/form-data", r.ContentType)
	}
	if !strings.Contains(r.Body, "context text") {
		t.Error("multipart body missing text field")
	}
	if !strings.Contains(r.Body, "memo.wav") {
		t.Error("multipart body missing audio file name")
	}
}

func TestNoteSubmit_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"note", "submit"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestItemsComplete(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PATCH /items/7": `{"ID":7,"Content":"file taxes","Status":"Completed"}`,
	})

	client := ts.client()
	resp, err := client.patch(ctx, "/items/7", map[string]any{"status": "Completed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var item struct {
		ID      int64
		Content string
		Status  string
	}
	if err := decodeJSON(resp, &item); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if item.Status != "Completed" {
		t.Errorf("status = %q, want Completed", item.Status)
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sent); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if sent["status"] != "Completed" {
		t.Errorf("sent status = %v, want Completed", sent["status"])
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/items")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Ollama.Model = "llama3.2"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}
