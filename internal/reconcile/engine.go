package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/murmurhq/murmur/internal/extract"
	"github.com/murmurhq/murmur/internal/storage"
)

const defaultReasoning = "Extracted from voice note"

// Engine applies an extraction result to a user's records: status updates,
// deduplicated item creation, alarm reuse and item-alarm linking. All writes
// for one owner are serialized through a per-owner lock so two notes
// processed concurrently cannot both pass the duplicate check.
type Engine struct {
	store *storage.Store

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewEngine(store *storage.Store) *Engine {
	return &Engine{store: store, locks: make(map[int64]*sync.Mutex)}
}

func (e *Engine) ownerLock(ownerID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[ownerID] = l
	}
	return l
}

// Outcome summarizes what one reconcile pass changed.
type Outcome struct {
	ItemsCreated      []int64
	ItemsUpdated      []int64
	AlarmsCreated     []int64
	AlarmsReused      []int64
	DuplicatesSkipped int
	HabitLogs         int
}

type alarmKey struct {
	label string
	time  string
}

// Apply reconciles one extraction result against the owner's current state.
// Individual proposals that fail validation are skipped; a storage error
// aborts the pass.
func (e *Engine) Apply(ownerID int64, noteID string, res extract.Result) (Outcome, error) {
	lock := e.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	var out Outcome

	if err := e.applyUpdates(ownerID, noteID, res.Updates, &out); err != nil {
		return out, err
	}

	alarms, err := e.resolveAlarms(ownerID, res.Alarms, &out)
	if err != nil {
		return out, err
	}

	if err := e.applyNewItems(ownerID, noteID, res.NewItems, res.Alarms, alarms, &out); err != nil {
		return out, err
	}

	return out, nil
}

// applyUpdates performs the status transitions the model proposed. An update
// that names a missing item, another user's item, or the item's current
// status is dropped without a history record.
func (e *Engine) applyUpdates(ownerID int64, noteID string, updates []extract.Update, out *Outcome) error {
	for _, u := range updates {
		item, err := e.store.GetActionItem(ownerID, u.ID)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNotOwner) {
			slog.Warn("skipping update for unknown item", "item_id", u.ID, "owner_id", ownerID)
			continue
		}
		if err != nil {
			return fmt.Errorf("load item %d: %w", u.ID, err)
		}
		if item.Status == u.Status {
			continue
		}

		prev := item.Status
		item.Status = u.Status
		if err := e.store.UpdateActionItem(item); err != nil {
			return fmt.Errorf("update item %d: %w", u.ID, err)
		}

		reasoning := u.Reasoning
		if reasoning == "" {
			reasoning = fmt.Sprintf("AI updated status to %s", u.Status)
		}
		if err := e.store.AddHistory(storage.History{
			OwnerID:     ownerID,
			NoteID:      noteID,
			ItemContent: item.Content,
			ItemType:    item.Type,
			Action:      storage.HistoryStatusChanged,
			Details:     fmt.Sprintf("AI marked as %s (prev: %s)", u.Status, prev),
			Reasoning:   reasoning,
		}); err != nil {
			return fmt.Errorf("record history for item %d: %w", u.ID, err)
		}
		out.ItemsUpdated = append(out.ItemsUpdated, u.ID)
	}
	return nil
}

// resolveAlarms reuses an existing active alarm per proposed (label, time)
// pair and creates one otherwise. Pairs repeated inside the same batch
// collapse onto a single alarm.
func (e *Engine) resolveAlarms(ownerID int64, specs []extract.AlarmSpec, out *Outcome) (map[alarmKey]storage.Alarm, error) {
	resolved := make(map[alarmKey]storage.Alarm)
	for _, spec := range specs {
		key := alarmKey{label: spec.Label, time: spec.Time}
		if _, ok := resolved[key]; ok {
			continue
		}

		existing, err := e.store.FindActiveAlarm(ownerID, spec.Time, spec.Label)
		if err == nil {
			resolved[key] = existing
			out.AlarmsReused = append(out.AlarmsReused, existing.ID)
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("find alarm %s %q: %w", spec.Time, spec.Label, err)
		}

		id, err := e.store.CreateAlarm(storage.Alarm{
			OwnerID: ownerID,
			Time:    spec.Time,
			Label:   spec.Label,
			Active:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("create alarm %s %q: %w", spec.Time, spec.Label, err)
		}
		alarm, err := e.store.GetAlarm(ownerID, id)
		if err != nil {
			return nil, fmt.Errorf("load created alarm %d: %w", id, err)
		}
		resolved[key] = alarm
		out.AlarmsCreated = append(out.AlarmsCreated, id)
	}
	return resolved, nil
}

// applyNewItems creates the proposed items that are not duplicates of a
// pending item, records history for each, logs habit observations, and links
// due-dated items to alarms by time of day.
func (e *Engine) applyNewItems(ownerID int64, noteID string, items []extract.NewItem, specs []extract.AlarmSpec, alarms map[alarmKey]storage.Alarm, out *Outcome) error {
	for _, it := range items {
		dup, err := e.store.HasPendingDuplicate(ownerID, it.Type, it.Content, it.DueDate)
		if err != nil {
			return fmt.Errorf("duplicate check %q: %w", it.Content, err)
		}
		if dup {
			out.DuplicatesSkipped++
			slog.Debug("skipping duplicate item", "content", it.Content, "owner_id", ownerID)
			continue
		}

		id, err := e.store.CreateActionItem(storage.ActionItem{
			OwnerID:  ownerID,
			NoteID:   noteID,
			Type:     it.Type,
			Content:  it.Content,
			Status:   storage.StatusPending,
			DueDate:  it.DueDate,
			EndTime:  it.EndTime,
			Location: it.Location,
		})
		if err != nil {
			return fmt.Errorf("create item %q: %w", it.Content, err)
		}
		out.ItemsCreated = append(out.ItemsCreated, id)

		reasoning := it.Reasoning
		if reasoning == "" {
			reasoning = defaultReasoning
		}
		if err := e.store.AddHistory(storage.History{
			OwnerID:     ownerID,
			NoteID:      noteID,
			ItemContent: it.Content,
			ItemType:    it.Type,
			Action:      storage.HistoryAddedByAI,
			Details:     fmt.Sprintf("Extracted from note %s", noteID),
			Reasoning:   reasoning,
		}); err != nil {
			return fmt.Errorf("record history for item %d: %w", id, err)
		}

		if it.Type == storage.ItemHabit {
			if err := e.logHabit(ownerID, noteID, it, out); err != nil {
				return err
			}
		}

		if it.DueDate != nil {
			if err := e.linkItemAlarm(ownerID, id, it, specs, alarms); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) logHabit(ownerID int64, noteID string, it extract.NewItem, out *Outcome) error {
	name := it.HabitName
	if name == "" {
		name = it.Content
	}
	habit, err := e.store.EnsureHabit(ownerID, name)
	if err != nil {
		return fmt.Errorf("ensure habit %q: %w", name, err)
	}
	if _, err := e.store.AddHabitLog(storage.HabitLog{
		HabitID: habit.ID,
		NoteID:  noteID,
		Value:   it.Value,
		Unit:    it.Unit,
	}); err != nil {
		return fmt.Errorf("log habit %q: %w", name, err)
	}
	out.HabitLogs++
	return nil
}

// linkItemAlarm attaches a due-dated item to an alarm firing at the same
// time of day. Batch alarms win over stored ones, and among batch alarms a
// label mentioned in the item content wins over a bare time match. Candidates
// are scanned in proposal order so the fallback pick is stable. Linking never
// creates an alarm.
func (e *Engine) linkItemAlarm(ownerID, itemID int64, it extract.NewItem, specs []extract.AlarmSpec, alarms map[alarmKey]storage.Alarm) error {
	timeOfDay := it.DueDate.Format("15:04")

	var match *storage.Alarm
	lowerContent := strings.ToLower(it.Content)
	for _, spec := range specs {
		if spec.Time != timeOfDay {
			continue
		}
		alarm, ok := alarms[alarmKey{label: spec.Label, time: spec.Time}]
		if !ok {
			continue
		}
		if strings.Contains(lowerContent, strings.ToLower(spec.Label)) {
			a := alarm
			match = &a
			break
		}
		if match == nil {
			a := alarm
			match = &a
		}
	}

	if match == nil {
		stored, err := e.store.FindActiveAlarmByTime(ownerID, timeOfDay)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find alarm at %s: %w", timeOfDay, err)
		}
		match = &stored
	}

	if err := e.store.SetItemAlarm(ownerID, itemID, match.ID); err != nil {
		return fmt.Errorf("link item %d to alarm %d: %w", itemID, match.ID, err)
	}
	return nil
}

const manualLabelMax = 30

// LinkManualItem attaches a manually created due-dated item to an alarm,
// reusing any active alarm at the same time of day and creating one named
// after the item otherwise. Returns the alarm ID, or 0 when the item has no
// due date.
func (e *Engine) LinkManualItem(ownerID int64, item storage.ActionItem) (int64, error) {
	if item.DueDate == nil {
		return 0, nil
	}
	lock := e.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	timeOfDay := item.DueDate.Format("15:04")
	alarm, err := e.store.FindActiveAlarmByTime(ownerID, timeOfDay)
	if err == nil {
		if err := e.store.SetItemAlarm(ownerID, item.ID, alarm.ID); err != nil {
			return 0, fmt.Errorf("link item %d to alarm %d: %w", item.ID, alarm.ID, err)
		}
		return alarm.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("find alarm at %s: %w", timeOfDay, err)
	}

	label := item.Content
	if r := []rune(label); len(r) > manualLabelMax {
		label = string(r[:manualLabelMax])
	}
	id, err := e.store.CreateAlarm(storage.Alarm{
		OwnerID: ownerID,
		Time:    timeOfDay,
		Label:   label,
		Active:  true,
	})
	if err != nil {
		return 0, fmt.Errorf("create alarm at %s: %w", timeOfDay, err)
	}
	if err := e.store.SetItemAlarm(ownerID, item.ID, id); err != nil {
		return 0, fmt.Errorf("link item %d to alarm %d: %w", item.ID, id, err)
	}
	return id, nil
}
