package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/murmurhq/murmur/internal/dispatch"
	"github.com/murmurhq/murmur/internal/pipeline"
	"github.com/murmurhq/murmur/internal/reconcile"
	"github.com/murmurhq/murmur/internal/storage"
)

const testToken = "test-token-12345"

func setupAppHandler(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	handler := NewAppHandler(AppDeps{
		Store:   store,
		Engine:  reconcile.NewEngine(store),
		Token:   testToken,
		DataDir: t.TempDir(),
	})
	return handler, store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func doJSON(t *testing.T, h http.Handler, req *http.Request, wantStatus int, out any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != wantStatus {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, wantStatus, rr.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("decoding response: %v; body = %s", err, rr.Body.String())
		}
	}
}

func TestAuthRequired(t *testing.T) {
	h, _ := setupAppHandler(t)

	for _, token := range []string{"", "wrong-token"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodGet, "/notes", "", token))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rr.Code)
		}
	}
}

func TestSubmitTextNoteQueuesJob(t *testing.T) {
	h, store := setupAppHandler(t)

	var resp map[string]string
	doJSON(t, h, authReq(http.MethodPost, "/notes", `{"text":"buy milk"}`, testToken), http.StatusOK, &resp)

	if resp["status"] != "queued" || resp["id"] == "" {
		t.Fatalf("response = %v", resp)
	}

	note, err := store.GetNote(1, resp["id"])
	if err != nil {
		t.Fatalf("loading note: %v", err)
	}
	if note.Content != "Processing..." {
		t.Errorf("placeholder content = %q", note.Content)
	}

	job, err := store.ClaimNextJob([]string{pipeline.JobTypeNoteProcess})
	if err != nil || job == nil {
		t.Fatalf("expected a queued job, got %v, %v", job, err)
	}
	var payload pipeline.NotePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.NoteID != resp["id"] || payload.Text != "buy milk" || payload.OwnerID != 1 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestSubmitEmptyNoteRejected(t *testing.T) {
	h, _ := setupAppHandler(t)
	doJSON(t, h, authReq(http.MethodPost, "/notes", `{"text":""}`, testToken), http.StatusBadRequest, nil)
}

func TestNoteOwnerScoping(t *testing.T) {
	h, _ := setupAppHandler(t)

	var resp map[string]string
	doJSON(t, h, authReq(http.MethodPost, "/notes", `{"text":"owner one note"}`, testToken), http.StatusOK, &resp)

	// Another user cannot see it.
	req := authReq(http.MethodGet, "/notes/"+resp["id"], "", testToken)
	req.Header.Set("X-User-ID", "2")
	doJSON(t, h, req, http.StatusNotFound, nil)

	doJSON(t, h, authReq(http.MethodGet, "/notes/"+resp["id"], "", testToken), http.StatusOK, nil)
}

func TestDeleteNoteSoftDeletes(t *testing.T) {
	h, _ := setupAppHandler(t)

	var resp map[string]string
	doJSON(t, h, authReq(http.MethodPost, "/notes", `{"text":"to delete"}`, testToken), http.StatusOK, &resp)

	doJSON(t, h, authReq(http.MethodDelete, "/notes/"+resp["id"], "", testToken), http.StatusOK, nil)
	// Second delete finds nothing.
	doJSON(t, h, authReq(http.MethodDelete, "/notes/"+resp["id"], "", testToken), http.StatusNotFound, nil)

	var notes []storage.Note
	doJSON(t, h, authReq(http.MethodGet, "/notes", "", testToken), http.StatusOK, &notes)
	if len(notes) != 0 {
		t.Errorf("notes = %d, want soft-deleted note hidden", len(notes))
	}
}

func TestCreateItemWithDueDateLinksAlarm(t *testing.T) {
	h, store := setupAppHandler(t)

	var item storage.ActionItem
	body := `{"type":"Reminder","content":"dentist appointment","due_date":"2026-09-02T09:00:00Z"}`
	doJSON(t, h, authReq(http.MethodPost, "/items", body, testToken), http.StatusOK, &item)

	if item.Type != storage.ItemReminder || item.Status != storage.StatusPending {
		t.Errorf("item = %+v", item)
	}
	if item.AlarmID == nil {
		t.Fatal("expected a linked alarm")
	}
	alarm, err := store.GetAlarm(1, *item.AlarmID)
	if err != nil {
		t.Fatalf("loading alarm: %v", err)
	}
	if alarm.Time != "09:00" {
		t.Errorf("alarm time = %q, want 09:00", alarm.Time)
	}

	var history []storage.History
	doJSON(t, h, authReq(http.MethodGet, "/items/history", "", testToken), http.StatusOK, &history)
	if len(history) != 1 || history[0].Action != storage.HistoryManuallyAdded {
		t.Errorf("history = %+v, want one Manually Added row", history)
	}
}

func TestUpdateItemStatusWritesHistory(t *testing.T) {
	h, _ := setupAppHandler(t)

	var item storage.ActionItem
	doJSON(t, h, authReq(http.MethodPost, "/items", `{"type":"Task","content":"file taxes"}`, testToken), http.StatusOK, &item)

	var updated storage.ActionItem
	url := fmt.Sprintf("/items/%d", item.ID)
	doJSON(t, h, authReq(http.MethodPatch, url, `{"status":"Completed"}`, testToken), http.StatusOK, &updated)
	if updated.Status != storage.StatusCompleted {
		t.Errorf("status = %q", updated.Status)
	}

	var history []storage.History
	doJSON(t, h, authReq(http.MethodGet, "/items/history", "", testToken), http.StatusOK, &history)
	// Newest first: the status change, then the manual add.
	if len(history) != 2 || history[0].Action != storage.HistoryStatusChanged {
		t.Fatalf("history = %+v", history)
	}
	if history[0].Details != "Marked as Completed (prev: Pending)" {
		t.Errorf("details = %q", history[0].Details)
	}
}

func TestUpdateItemInvalidStatus(t *testing.T) {
	h, _ := setupAppHandler(t)

	var item storage.ActionItem
	doJSON(t, h, authReq(http.MethodPost, "/items", `{"type":"Task","content":"x"}`, testToken), http.StatusOK, &item)

	url := fmt.Sprintf("/items/%d", item.ID)
	doJSON(t, h, authReq(http.MethodPatch, url, `{"status":"Exploded"}`, testToken), http.StatusBadRequest, nil)
}

func TestDeleteItemCascadesAlarm(t *testing.T) {
	h, store := setupAppHandler(t)

	var item storage.ActionItem
	body := `{"type":"Reminder","content":"take pills","due_date":"2026-09-02T08:00:00Z"}`
	doJSON(t, h, authReq(http.MethodPost, "/items", body, testToken), http.StatusOK, &item)
	if item.AlarmID == nil {
		t.Fatal("expected a linked alarm")
	}

	doJSON(t, h, authReq(http.MethodDelete, fmt.Sprintf("/items/%d", item.ID), "", testToken), http.StatusOK, nil)

	if _, err := store.GetAlarm(1, *item.AlarmID); err == nil {
		t.Error("linked alarm must be deleted with the item")
	}
}

func TestDeleteAlarmCascadesItems(t *testing.T) {
	h, store := setupAppHandler(t)

	var item storage.ActionItem
	body := `{"type":"Reminder","content":"morning run","due_date":"2026-09-02T06:30:00Z"}`
	doJSON(t, h, authReq(http.MethodPost, "/items", body, testToken), http.StatusOK, &item)

	var resp map[string]any
	doJSON(t, h, authReq(http.MethodDelete, fmt.Sprintf("/alarms/%d", *item.AlarmID), "", testToken), http.StatusOK, &resp)
	if resp["items_removed"].(float64) != 1 {
		t.Errorf("items_removed = %v, want 1", resp["items_removed"])
	}

	if _, err := store.GetActionItem(1, item.ID); err == nil {
		t.Error("item linking the alarm must be removed with it")
	}

	var history []storage.History
	doJSON(t, h, authReq(http.MethodGet, "/items/history", "", testToken), http.StatusOK, &history)
	if len(history) == 0 || history[0].Action != storage.HistoryDeleted {
		t.Errorf("history = %+v, want a Deleted row for the cascaded item", history)
	}
}

func TestCreateAlarmValidatesTime(t *testing.T) {
	h, _ := setupAppHandler(t)

	doJSON(t, h, authReq(http.MethodPost, "/alarms", `{"time":"25:99","label":"bad"}`, testToken), http.StatusBadRequest, nil)

	var alarm storage.Alarm
	doJSON(t, h, authReq(http.MethodPost, "/alarms", `{"time":"07:30","label":"workout"}`, testToken), http.StatusOK, &alarm)
	if !alarm.Active || alarm.Time != "07:30" {
		t.Errorf("alarm = %+v", alarm)
	}
}

func TestNotificationReadFlow(t *testing.T) {
	h, store := setupAppHandler(t)

	id, err := store.CreateNotification(storage.Notification{
		OwnerID: 1, Type: "search", Title: "Search Completed: nepal...", Link: "/dashboard",
	})
	if err != nil {
		t.Fatalf("seeding notification: %v", err)
	}

	var notifs []storage.Notification
	doJSON(t, h, authReq(http.MethodGet, "/notifications", "", testToken), http.StatusOK, &notifs)
	if len(notifs) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifs))
	}

	url := fmt.Sprintf("/notifications/%d/read", id)
	doJSON(t, h, authReq(http.MethodPost, url, "", testToken), http.StatusOK, nil)
	// Marking twice is a no-op, not an error.
	doJSON(t, h, authReq(http.MethodPost, url, "", testToken), http.StatusOK, nil)

	doJSON(t, h, authReq(http.MethodGet, "/notifications", "", testToken), http.StatusOK, &notifs)
	if len(notifs) != 0 {
		t.Errorf("unread notifications = %d, want 0", len(notifs))
	}
}

type fixedTokens struct{ token string }

func (f fixedTokens) Token(context.Context, int64) (string, error) {
	return f.token, nil
}

func TestListCalendarEventsUnconfigured(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/calendar/events", "", testToken))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestListCalendarEvents(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			t.Errorf("path = %q, want /events", r.URL.Path)
		}
		if r.URL.Query().Get("max") != "5" {
			t.Errorf("max = %q, want 5", r.URL.Query().Get("max"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"ev-1","summary":"standup","start":"2026-09-01T09:00:00Z","end":"2026-09-01T09:30:00Z"}]`))
	}))
	t.Cleanup(provider.Close)

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := NewAppHandler(AppDeps{
		Store:    store,
		Engine:   reconcile.NewEngine(store),
		Calendar: dispatch.NewCalendar(provider.URL, fixedTokens{"tok"}),
		Token:    testToken,
		DataDir:  t.TempDir(),
	})

	var events []dispatch.Event
	doJSON(t, h, authReq(http.MethodGet, "/calendar/events?max=5", "", testToken), http.StatusOK, &events)
	if len(events) != 1 || events[0].Summary != "standup" {
		t.Errorf("events = %+v, want one standup event", events)
	}
}
