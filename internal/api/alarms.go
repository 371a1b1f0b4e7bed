package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/murmurhq/murmur/internal/storage"
)

type alarmRequest struct {
	Time   string `json:"time"`
	Label  string `json:"label"`
	Active *bool  `json:"active"`
}

func validClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

func handleListAlarms(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alarms, err := deps.Store.ListAlarms(ownerID(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list alarms: %v", err)
			return
		}
		if alarms == nil {
			alarms = []storage.Alarm{}
		}
		writeJSON(w, alarms)
	}
}

func handleCreateAlarm(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req alarmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if !validClock(req.Time) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "time must be HH:MM")
			return
		}

		owner := ownerID(r)
		id, err := deps.Store.CreateAlarm(storage.Alarm{
			OwnerID: owner,
			Time:    req.Time,
			Label:   req.Label,
			Active:  true,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create alarm: %v", err)
			return
		}

		alarm, err := deps.Store.GetAlarm(owner, id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load created alarm: %v", err)
			return
		}
		writeJSON(w, alarm)
	}
}

func handleUpdateAlarm(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid alarm id")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req alarmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		owner := ownerID(r)
		alarm, err := deps.Store.GetAlarm(owner, id)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNotOwner) {
			httpError(w, http.StatusNotFound, "not_found", "alarm not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get alarm: %v", err)
			return
		}

		if req.Time != "" {
			if !validClock(req.Time) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "time must be HH:MM")
				return
			}
			alarm.Time = req.Time
		}
		if req.Label != "" {
			alarm.Label = req.Label
		}
		if req.Active != nil {
			alarm.Active = *req.Active
		}

		if err := deps.Store.UpdateAlarm(alarm); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update alarm: %v", err)
			return
		}
		writeJSON(w, alarm)
	}
}

// handleDeleteAlarm removes an alarm; every item linked to it is removed
// with it and audited.
func handleDeleteAlarm(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid alarm id")
			return
		}

		owner := ownerID(r)
		removed, err := deps.Store.DeleteAlarm(owner, id)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNotOwner) {
			httpError(w, http.StatusNotFound, "not_found", "alarm not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete alarm: %v", err)
			return
		}

		for _, item := range removed {
			if err := deps.Store.AddHistory(storage.History{
				OwnerID:     owner,
				ItemContent: item.Content,
				ItemType:    item.Type,
				Action:      storage.HistoryDeleted,
				Details:     "Removed with linked alarm",
			}); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to record history: %v", err)
				return
			}
		}

		writeJSON(w, map[string]any{
			"status":        "deleted",
			"items_removed": len(removed),
		})
	}
}
