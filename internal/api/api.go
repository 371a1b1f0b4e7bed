package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/murmurhq/murmur/internal/dispatch"
	"github.com/murmurhq/murmur/internal/reconcile"
	"github.com/murmurhq/murmur/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps carries everything the record surface needs.
type AppDeps struct {
	Store    *storage.Store
	Engine   *reconcile.Engine
	Calendar *dispatch.Calendar // optional; nil skips calendar listing
	Token    string
	DataDir  string
}

// NewAppHandler builds the HTTP surface: note submission plus CRUD for
// items, alarms, history, search results, and notifications.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/notes", handleSubmitNote(deps))
		r.Get("/notes", handleListNotes(deps))
		r.Get("/notes/{id}", handleGetNote(deps))
		r.Delete("/notes/{id}", handleDeleteNote(deps))

		r.Get("/items", handleListItems(deps))
		r.Post("/items", handleCreateItem(deps))
		r.Patch("/items/{id}", handleUpdateItem(deps))
		r.Delete("/items/{id}", handleDeleteItem(deps))
		r.Get("/items/history", handleListHistory(deps))

		r.Get("/alarms", handleListAlarms(deps))
		r.Post("/alarms", handleCreateAlarm(deps))
		r.Patch("/alarms/{id}", handleUpdateAlarm(deps))
		r.Delete("/alarms/{id}", handleDeleteAlarm(deps))

		r.Get("/calendar/events", handleListCalendarEvents(deps))
		r.Get("/search-results", handleListSearchResults(deps))
		r.Get("/notifications", handleListNotifications(deps))
		r.Post("/notifications/{id}/read", handleMarkNotificationRead(deps))
	})

	return r
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// ownerID resolves the acting user. The bearer token is a shared local
// secret, so callers distinguish users via the X-User-ID header; it defaults
// to 1 for single-user setups.
func ownerID(r *http.Request) int64 {
	s := r.Header.Get("X-User-ID")
	if s == "" {
		return 1
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 1
	}
	return id
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
