package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/murmurhq/murmur/internal/pipeline"
	"github.com/murmurhq/murmur/internal/storage"
)

const maxSubmitBodySize = 50 << 20 // 50MB, audio uploads included

// handleSubmitNote accepts a text and/or audio note, persists a placeholder,
// and queues the processing job. Multipart fields: "text", repeated "audio"
// files, repeated "attachment" PDF files whose extracted text is appended to
// the note content.
func handleSubmitNote(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBodySize)

		var text string
		var audioPaths []string

		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "multipart/form-data") {
			if err := r.ParseMultipartForm(maxSubmitBodySize); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
				return
			}
			text = r.FormValue("text")

			var err error
			audioPaths, err = saveAudioSegments(deps.DataDir, r.MultipartForm.File["audio"])
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to store audio: %v", err)
				return
			}

			attachmentText, err := extractAttachments(r.MultipartForm.File["attachment"])
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read attachment: %v", err)
				return
			}
			if attachmentText != "" {
				if text != "" {
					text += "\n\n"
				}
				text += attachmentText
			}
		} else {
			var req struct {
				Text string `json:"text"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
			text = req.Text
		}

		if text == "" && len(audioPaths) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of text or audio is required")
			return
		}

		owner := ownerID(r)
		noteID := uuid.New().String()
		if err := deps.Store.CreateNote(storage.Note{
			ID:       noteID,
			OwnerID:  owner,
			Content:  "Processing...",
			Summary:  "Processing...",
			Priority: storage.PriorityLow,
		}); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save note: %v", err)
			return
		}

		payload, err := json.Marshal(pipeline.NotePayload{
			NoteID:     noteID,
			OwnerID:    owner,
			Text:       text,
			AudioPaths: audioPaths,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		if err := deps.Store.EnqueueJob(storage.Job{
			ID:          uuid.New().String(),
			Type:        pipeline.JobTypeNoteProcess,
			PayloadJSON: string(payload),
		}); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}

		writeJSON(w, map[string]string{
			"id":     noteID,
			"status": "queued",
		})
	}
}

// saveAudioSegments writes uploaded audio files under dataDir/audio,
// preserving upload order.
func saveAudioSegments(dataDir string, files []*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	audioDir := filepath.Join(dataDir, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audio directory: %w", err)
	}

	var paths []string
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("opening upload %s: %w", fh.Filename, err)
		}

		ext := filepath.Ext(fh.Filename)
		if ext == "" {
			ext = ".wav"
		}
		path := filepath.Join(audioDir, uuid.New().String()+ext)
		dst, err := os.Create(path)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("creating audio file: %w", err)
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			return nil, fmt.Errorf("writing audio file: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func handleListNotes(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		notes, err := deps.Store.ListNotes(ownerID(r), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list notes: %v", err)
			return
		}
		if notes == nil {
			notes = []storage.Note{}
		}
		writeJSON(w, notes)
	}
}

func handleGetNote(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		note, err := deps.Store.GetNote(ownerID(r), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "note not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get note: %v", err)
			return
		}
		writeJSON(w, note)
	}
}

func handleDeleteNote(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.SoftDeleteNote(ownerID(r), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "note not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete note: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}
