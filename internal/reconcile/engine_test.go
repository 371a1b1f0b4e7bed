package reconcile

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/murmurhq/murmur/internal/extract"
	"github.com/murmurhq/murmur/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createNote(t *testing.T, store *storage.Store, ownerID int64, id string) {
	t.Helper()
	if err := store.CreateNote(storage.Note{ID: id, OwnerID: ownerID, Content: "Processing...", Priority: storage.PriorityLow}); err != nil {
		t.Fatalf("creating note: %v", err)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestApplyCreatesItemsAndHistory(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)
	createNote(t, store, 1, "note-1")

	due := time.Date(2026, 9, 1, 17, 0, 0, 0, time.UTC)
	res := extract.Result{
		Priority: storage.PriorityMedium,
		Summary:  "shopping and a reminder",
		NewItems: []extract.NewItem{
			{Type: storage.ItemShopping, Content: "buy milk", Reasoning: "stated directly"},
			{Type: storage.ItemReminder, Content: "call mom", DueDate: ptrTime(due)},
		},
		Alarms: []extract.AlarmSpec{{Time: "17:00", Label: "call mom"}},
	}

	out, err := engine.Apply(1, "note-1", res)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out.ItemsCreated) != 2 {
		t.Fatalf("items created = %d, want 2", len(out.ItemsCreated))
	}
	if len(out.AlarmsCreated) != 1 {
		t.Fatalf("alarms created = %d, want 1", len(out.AlarmsCreated))
	}

	reminder, err := store.GetActionItem(1, out.ItemsCreated[1])
	if err != nil {
		t.Fatalf("loading reminder: %v", err)
	}
	if reminder.AlarmID == nil || *reminder.AlarmID != out.AlarmsCreated[0] {
		t.Errorf("reminder alarm = %v, want link to alarm %d", reminder.AlarmID, out.AlarmsCreated[0])
	}

	history, err := store.ListHistory(1, 50)
	if err != nil {
		t.Fatalf("listing history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history rows = %d, want 2", len(history))
	}
	for _, h := range history {
		if h.Action != storage.HistoryAddedByAI {
			t.Errorf("history action = %q, want Added by AI", h.Action)
		}
		if h.Details != "Extracted from note note-1" {
			t.Errorf("history details = %q", h.Details)
		}
	}
}

func TestApplyIdempotentResubmission(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)
	createNote(t, store, 1, "note-1")
	createNote(t, store, 1, "note-2")

	res := extract.Result{
		NewItems: []extract.NewItem{{Type: storage.ItemTask, Content: "file taxes"}},
		Alarms:   []extract.AlarmSpec{{Time: "08:00", Label: "taxes"}},
	}

	first, err := engine.Apply(1, "note-1", res)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := engine.Apply(1, "note-2", res)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}

	if len(first.ItemsCreated) != 1 || len(first.AlarmsCreated) != 1 {
		t.Fatalf("first pass = %+v, want one item and one alarm", first)
	}
	if len(second.ItemsCreated) != 0 || second.DuplicatesSkipped != 1 {
		t.Errorf("second pass created %d items, skipped %d; want 0 created, 1 skipped",
			len(second.ItemsCreated), second.DuplicatesSkipped)
	}
	if len(second.AlarmsCreated) != 0 || len(second.AlarmsReused) != 1 {
		t.Errorf("second pass alarms: created %d, reused %d; want 0 created, 1 reused",
			len(second.AlarmsCreated), len(second.AlarmsReused))
	}

	hist, err := store.ListHistory(1, 50)
	if err != nil {
		t.Fatalf("listing history: %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("history rows = %d, want 1 (skipped duplicate writes none)", len(hist))
	}
}

func TestApplyDuplicateCheckIsPerOwner(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)
	createNote(t, store, 1, "note-1")
	createNote(t, store, 2, "note-2")

	res := extract.Result{
		NewItems: []extract.NewItem{{Type: storage.ItemTask, Content: "water the plants"}},
	}

	if _, err := engine.Apply(1, "note-1", res); err != nil {
		t.Fatalf("owner 1 apply: %v", err)
	}
	out, err := engine.Apply(2, "note-2", res)
	if err != nil {
		t.Fatalf("owner 2 apply: %v", err)
	}
	if len(out.ItemsCreated) != 1 {
		t.Errorf("owner 2 created %d items, want 1", len(out.ItemsCreated))
	}
}

func TestApplyStatusUpdates(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)
	createNote(t, store, 1, "note-1")

	itemID, err := store.CreateActionItem(storage.ActionItem{
		OwnerID: 1, Type: storage.ItemTask, Content: "file taxes", Status: storage.StatusPending,
	})
	if err != nil {
		t.Fatalf("seeding item: %v", err)
	}

	res := extract.Result{
		Updates: []extract.Update{
			{ID: itemID, Status: storage.StatusCompleted, Reasoning: "said it is done"},
			{ID: 9999, Status: storage.StatusCompleted},
		},
	}

	out, err := engine.Apply(1, "note-1", res)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out.ItemsUpdated) != 1 || out.ItemsUpdated[0] != itemID {
		t.Fatalf("updated = %v, want [%d]", out.ItemsUpdated, itemID)
	}

	item, err := store.GetActionItem(1, itemID)
	if err != nil {
		t.Fatalf("loading item: %v", err)
	}
	if item.Status != storage.StatusCompleted {
		t.Errorf("status = %q, want Completed", item.Status)
	}

	hist, err := store.ListHistory(1, 50)
	if err != nil {
		t.Fatalf("listing history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history rows = %d, want 1", len(hist))
	}
	if hist[0].Details != "AI marked as Completed (prev: Pending)" {
		t.Errorf("details = %q", hist[0].Details)
	}
	if hist[0].Reasoning != "said it is done" {
		t.Errorf("reasoning = %q", hist[0].Reasoning)
	}
}

func TestApplyUpdateSameStatusIsNoOp(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)
	createNote(t, store, 1, "note-1")

	itemID, err := store.CreateActionItem(storage.ActionItem{
		OwnerID: 1, Type: storage.ItemTask, Content: "walk the dog", Status: storage.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("seeding item: %v", err)
	}

	out, err := engine.Apply(1, "note-1", extract.Result{
		Updates: []extract.Update{{ID: itemID, Status: storage.StatusCompleted}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out.ItemsUpdated) != 0 {
		t.Errorf("updated = %v, want none", out.ItemsUpdated)
	}
	n, err := store.CountHistory(1)
	if err != nil {
		t.Fatalf("counting history: %v", err)
	}
	if n != 0 {
		t.Errorf("history rows = %d, want 0", n)
	}
}

func TestApplyUpdateIgnoresOtherOwner(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)
	createNote(t, store, 2, "note-2")

	itemID, err := store.CreateActionItem(storage.ActionItem{
		OwnerID: 1, Type: storage.ItemTask, Content: "pay rent", Status: storage.StatusPending,
	})
	if err != nil {
		t.Fatalf("seeding item: %v", err)
	}

	out, err := engine.Apply(2, "note-2", extract.Result{
		Updates: []extract.Update{{ID: itemID, Status: storage.StatusDismissed}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out.ItemsUpdated) != 0 {
		t.Fatal("cross-owner update must be ignored")
	}
	item, err := store.GetActionItem(1, itemID)
	if err != nil {
		t.Fatalf("loading item: %v", err)
	}
	if item.Status != storage.StatusPending {
		t.Errorf("status = %q, want untouched Pending", item.Status)
	}
}

func TestApplyBatchAlarmLinkPrefersLabelMatch(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)
	createNote(t, store, 1, "note-1")

	due := time.Date(2026, 9, 1, 7, 30, 0, 0, time.UTC)
	res := extract.Result{
		NewItems: []extract.NewItem{
			{Type: storage.ItemReminder, Content: "take medication", DueDate: ptrTime(due)},
		},
		Alarms: []extract.AlarmSpec{
			{Time: "07:30", Label: "workout"},
			{Time: "07:30", Label: "medication"},
		},
	}

	out, err := engine.Apply(1, "note-1", res)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out.AlarmsCreated) != 2 {
		t.Fatalf("alarms created = %d, want 2", len(out.AlarmsCreated))
	}

	item, err := store.GetActionItem(1, out.ItemsCreated[0])
	if err != nil {
		t.Fatalf("loading item: %v", err)
	}
	if item.AlarmID == nil {
		t.Fatal("item not linked to any alarm")
	}
	alarm, err := store.GetAlarm(1, *item.AlarmID)
	if err != nil {
		t.Fatalf("loading alarm: %v", err)
	}
	if alarm.Label != "medication" {
		t.Errorf("linked alarm label = %q, want the label named in the item", alarm.Label)
	}
}

func TestApplyBatchAlarmLinkFallbackFollowsProposalOrder(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)
	createNote(t, store, 1, "note-1")

	due := time.Date(2026, 9, 1, 7, 30, 0, 0, time.UTC)
	res := extract.Result{
		NewItems: []extract.NewItem{
			{Type: storage.ItemReminder, Content: "morning checklist", DueDate: ptrTime(due)},
		},
		Alarms: []extract.AlarmSpec{
			{Time: "07:30", Label: "workout"},
			{Time: "07:30", Label: "vitamins"},
		},
	}

	out, err := engine.Apply(1, "note-1", res)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	item, err := store.GetActionItem(1, out.ItemsCreated[0])
	if err != nil {
		t.Fatalf("loading item: %v", err)
	}
	if item.AlarmID == nil {
		t.Fatal("item not linked to any alarm")
	}
	alarm, err := store.GetAlarm(1, *item.AlarmID)
	if err != nil {
		t.Fatalf("loading alarm: %v", err)
	}
	// Neither label appears in the content, so the first proposed alarm at
	// that time wins.
	if alarm.Label != "workout" {
		t.Errorf("linked alarm label = %q, want the first proposed label", alarm.Label)
	}
}

func TestApplyUpdateDefaultReasoning(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)
	createNote(t, store, 1, "note-1")

	itemID, err := store.CreateActionItem(storage.ActionItem{
		OwnerID: 1, Type: storage.ItemTask, Content: "file taxes", Status: storage.StatusPending,
	})
	if err != nil {
		t.Fatalf("seeding item: %v", err)
	}

	res := extract.Result{
		Updates: []extract.Update{{ID: itemID, Status: storage.StatusDismissed}},
	}
	if _, err := engine.Apply(1, "note-1", res); err != nil {
		t.Fatalf("apply: %v", err)
	}

	hist, err := store.ListHistory(1, 10)
	if err != nil {
		t.Fatalf("listing history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history rows = %d, want 1", len(hist))
	}
	if hist[0].Reasoning != "AI updated status to Dismissed" {
		t.Errorf("reasoning = %q, want the status update default", hist[0].Reasoning)
	}
}

func TestApplyHabitItemLogsObservation(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)
	createNote(t, store, 1, "note-1")

	res := extract.Result{
		NewItems: []extract.NewItem{
			{Type: storage.ItemHabit, Content: "ran 5 km", HabitName: "running", Value: 5, Unit: "km"},
		},
	}

	out, err := engine.Apply(1, "note-1", res)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.HabitLogs != 1 {
		t.Fatalf("habit logs = %d, want 1", out.HabitLogs)
	}

	habit, err := store.EnsureHabit(1, "running")
	if err != nil {
		t.Fatalf("loading habit: %v", err)
	}
	logs, err := store.ListHabitLogs(habit.ID, 10)
	if err != nil {
		t.Fatalf("listing logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Value != 5 || logs[0].Unit != "km" {
		t.Errorf("logs = %+v, want one of 5 km", logs)
	}
}

func TestLinkManualItem(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)

	due := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	itemID, err := store.CreateActionItem(storage.ActionItem{
		OwnerID: 1, Type: storage.ItemReminder, Content: "dentist appointment downtown at the new clinic",
		Status: storage.StatusPending, DueDate: ptrTime(due),
	})
	if err != nil {
		t.Fatalf("seeding item: %v", err)
	}
	item, err := store.GetActionItem(1, itemID)
	if err != nil {
		t.Fatalf("loading item: %v", err)
	}

	alarmID, err := engine.LinkManualItem(1, item)
	if err != nil {
		t.Fatalf("linking: %v", err)
	}
	if alarmID == 0 {
		t.Fatal("expected a created alarm")
	}
	alarm, err := store.GetAlarm(1, alarmID)
	if err != nil {
		t.Fatalf("loading alarm: %v", err)
	}
	if alarm.Time != "09:00" {
		t.Errorf("alarm time = %q, want 09:00", alarm.Time)
	}
	if len(alarm.Label) > 30 {
		t.Errorf("label %q exceeds 30 chars", alarm.Label)
	}

	// A second manual item at the same time reuses the alarm.
	secondID, err := store.CreateActionItem(storage.ActionItem{
		OwnerID: 1, Type: storage.ItemReminder, Content: "morning standup",
		Status: storage.StatusPending, DueDate: ptrTime(due),
	})
	if err != nil {
		t.Fatalf("seeding second item: %v", err)
	}
	second, err := store.GetActionItem(1, secondID)
	if err != nil {
		t.Fatalf("loading second item: %v", err)
	}
	reused, err := engine.LinkManualItem(1, second)
	if err != nil {
		t.Fatalf("linking second: %v", err)
	}
	if reused != alarmID {
		t.Errorf("second link got alarm %d, want reuse of %d", reused, alarmID)
	}
}

func TestLinkManualItemWithoutDueDate(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)

	id, err := engine.LinkManualItem(1, storage.ActionItem{ID: 1, OwnerID: 1, Content: "no due date"})
	if err != nil {
		t.Fatalf("linking: %v", err)
	}
	if id != 0 {
		t.Errorf("alarm id = %d, want 0", id)
	}
}

func TestLinkManualItemLabelTruncatesOnRunes(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store)

	due := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	content := strings.Repeat("ä", 40)
	itemID, err := store.CreateActionItem(storage.ActionItem{
		OwnerID: 1, Type: storage.ItemReminder, Content: content,
		Status: storage.StatusPending, DueDate: ptrTime(due),
	})
	if err != nil {
		t.Fatalf("seeding item: %v", err)
	}
	item, err := store.GetActionItem(1, itemID)
	if err != nil {
		t.Fatalf("loading item: %v", err)
	}

	alarmID, err := engine.LinkManualItem(1, item)
	if err != nil {
		t.Fatalf("linking: %v", err)
	}
	alarm, err := store.GetAlarm(1, alarmID)
	if err != nil {
		t.Fatalf("loading alarm: %v", err)
	}
	if alarm.Label != strings.Repeat("ä", 30) {
		t.Errorf("label = %q, want 30 whole runes", alarm.Label)
	}
	if !utf8.ValidString(alarm.Label) {
		t.Error("label is not valid UTF-8")
	}
}
