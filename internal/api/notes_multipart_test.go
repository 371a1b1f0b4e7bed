package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/murmurhq/murmur/internal/pipeline"
)

func TestSubmitMultipartAudioNote(t *testing.T) {
	h, store := setupAppHandler(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("text", "spoken follow-up"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"first.wav", "second.wav"} {
		part, err := mw.CreateFormFile("audio", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write([]byte("RIFF fake audio")); err != nil {
			t.Fatal(err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/notes", &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	job, err := store.ClaimNextJob([]string{pipeline.JobTypeNoteProcess})
	if err != nil || job == nil {
		t.Fatalf("expected a queued job, got %v, %v", job, err)
	}
	var payload pipeline.NotePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.Text != "spoken follow-up" {
		t.Errorf("text = %q", payload.Text)
	}
	if len(payload.AudioPaths) != 2 {
		t.Fatalf("audio paths = %d, want 2", len(payload.AudioPaths))
	}
	for _, p := range payload.AudioPaths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("audio file %s not stored: %v", p, err)
		}
	}
}

func TestSubmitMultipartRejectsNonPDFAttachment(t *testing.T) {
	h, _ := setupAppHandler(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("attachment", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("plain text"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/notes", &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
	}
}
