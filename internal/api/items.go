package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/murmurhq/murmur/internal/storage"
)

type itemRequest struct {
	Type     string  `json:"type"`
	Content  string  `json:"content"`
	Status   string  `json:"status"`
	DueDate  *string `json:"due_date"`
	EndTime  *string `json:"end_time"`
	Location *string `json:"location"`
}

func handleListItems(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemType := storage.ItemType(r.URL.Query().Get("type"))
		status := storage.ItemStatus(r.URL.Query().Get("status"))

		items, err := deps.Store.ListActionItems(ownerID(r), itemType, status)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list items: %v", err)
			return
		}
		if items == nil {
			items = []storage.ActionItem{}
		}
		writeJSON(w, items)
	}
}

func handleCreateItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req itemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		due, err := parseTimeField(req.DueDate)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid due_date: %v", err)
			return
		}
		end, err := parseTimeField(req.EndTime)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid end_time: %v", err)
			return
		}

		owner := ownerID(r)
		item := storage.ActionItem{
			OwnerID: owner,
			Type:    storage.ParseItemType(req.Type),
			Content: req.Content,
			Status:  storage.StatusPending,
			DueDate: due,
			EndTime: end,
		}
		if req.Location != nil {
			item.Location = *req.Location
		}

		id, err := deps.Store.CreateActionItem(item)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create item: %v", err)
			return
		}
		item.ID = id

		if err := deps.Store.AddHistory(storage.History{
			OwnerID:     owner,
			ItemContent: item.Content,
			ItemType:    item.Type,
			Action:      storage.HistoryManuallyAdded,
			Details:     "Created via API",
		}); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record history: %v", err)
			return
		}

		// Reuse an alarm at the same time of day, or create one.
		if _, err := deps.Engine.LinkManualItem(owner, item); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to link alarm: %v", err)
			return
		}

		created, err := deps.Store.GetActionItem(owner, id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load created item: %v", err)
			return
		}
		writeJSON(w, created)
	}
}

func handleUpdateItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid item id")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req itemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		owner := ownerID(r)
		item, err := deps.Store.GetActionItem(owner, id)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNotOwner) {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get item: %v", err)
			return
		}

		prevStatus := item.Status
		statusChanged := false
		if req.Status != "" {
			status, ok := storage.ParseItemStatus(req.Status)
			if !ok {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid status %q", req.Status)
				return
			}
			statusChanged = status != item.Status
			item.Status = status
		}
		if req.Content != "" {
			item.Content = req.Content
		}
		if req.DueDate != nil {
			due, err := parseTimeField(req.DueDate)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid due_date: %v", err)
				return
			}
			item.DueDate = due
		}
		if req.Location != nil {
			item.Location = *req.Location
		}

		if err := deps.Store.UpdateActionItem(item); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update item: %v", err)
			return
		}

		action := storage.HistoryModified
		details := "Updated via API"
		if statusChanged {
			action = storage.HistoryStatusChanged
			details = fmt.Sprintf("Marked as %s (prev: %s)", item.Status, prevStatus)
		}
		if err := deps.Store.AddHistory(storage.History{
			OwnerID:     owner,
			ItemContent: item.Content,
			ItemType:    item.Type,
			Action:      action,
			Details:     details,
		}); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record history: %v", err)
			return
		}

		writeJSON(w, item)
	}
}

func handleDeleteItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid item id")
			return
		}

		owner := ownerID(r)
		deleted, err := deps.Store.DeleteActionItem(owner, id)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNotOwner) {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete item: %v", err)
			return
		}

		if err := deps.Store.AddHistory(storage.History{
			OwnerID:     owner,
			ItemContent: deleted.Content,
			ItemType:    deleted.Type,
			Action:      storage.HistoryDeleted,
			Details:     "Deleted via API",
		}); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record history: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleListHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)

		history, err := deps.Store.ListHistory(ownerID(r), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list history: %v", err)
			return
		}
		if history == nil {
			history = []storage.History{}
		}
		writeJSON(w, history)
	}
}

func parseTimeField(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
