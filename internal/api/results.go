package api

import (
	"errors"
	"net/http"

	"github.com/murmurhq/murmur/internal/dispatch"
	"github.com/murmurhq/murmur/internal/storage"
)

func handleListSearchResults(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		results, err := deps.Store.ListSearchResults(ownerID(r), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list search results: %v", err)
			return
		}
		if results == nil {
			results = []storage.SearchResult{}
		}
		writeJSON(w, results)
	}
}

func handleListNotifications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notifs, err := deps.Store.ListUnreadNotifications(ownerID(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list notifications: %v", err)
			return
		}
		if notifs == nil {
			notifs = []storage.Notification{}
		}
		writeJSON(w, notifs)
	}
}

func handleListCalendarEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Calendar == nil || !deps.Calendar.Configured() {
			httpError(w, http.StatusServiceUnavailable, "api_error", "calendar provider not configured")
			return
		}
		max := parseIntParam(r, "max", 10, 50)

		events, err := deps.Calendar.ListEvents(r.Context(), ownerID(r), max)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to list calendar events: %v", err)
			return
		}
		if events == nil {
			events = []dispatch.Event{}
		}
		writeJSON(w, events)
	}
}

func handleMarkNotificationRead(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid notification id")
			return
		}

		err = deps.Store.MarkNotificationRead(ownerID(r), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "notification not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to mark notification read: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "read"})
	}
}
