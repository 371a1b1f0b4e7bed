package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotOwner is returned when a record exists but belongs to another user.
var ErrNotOwner = errors.New("record owned by another user")

// Priority is a note's priority level.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// ParsePriority maps a free-form string to a Priority. Unknown values map to
// Low so raw model output never propagates past the adapter boundary.
func ParsePriority(s string) Priority {
	switch s {
	case "High", "high":
		return PriorityHigh
	case "Medium", "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ItemType classifies an action item.
type ItemType string

const (
	ItemTask      ItemType = "Task"
	ItemReminder  ItemType = "Reminder"
	ItemShopping  ItemType = "Shopping"
	ItemFact      ItemType = "Fact"
	ItemStudyNote ItemType = "StudyNote"
	ItemHabit     ItemType = "Habit"
	ItemMeeting   ItemType = "Meeting"
)

// ParseItemType maps a free-form string to an ItemType. Todos, jobs and other
// unknown labels collapse to Task.
func ParseItemType(s string) ItemType {
	switch s {
	case "Task", "Reminder", "Shopping", "Fact", "StudyNote", "Habit", "Meeting":
		return ItemType(s)
	default:
		return ItemTask
	}
}

// ItemStatus is an action item's lifecycle state.
type ItemStatus string

const (
	StatusPending   ItemStatus = "Pending"
	StatusCompleted ItemStatus = "Completed"
	StatusDismissed ItemStatus = "Dismissed"
)

// ParseItemStatus returns the status and whether the input named a valid one.
func ParseItemStatus(s string) (ItemStatus, bool) {
	switch s {
	case "Pending", "Completed", "Dismissed":
		return ItemStatus(s), true
	}
	return "", false
}

// HistoryAction names the kind of change recorded in the audit trail.
type HistoryAction string

const (
	HistoryAddedByAI     HistoryAction = "Added by AI"
	HistoryManuallyAdded HistoryAction = "Manually Added"
	HistoryModified      HistoryAction = "Modified"
	HistoryStatusChanged HistoryAction = "Status Changed"
	HistoryDeleted       HistoryAction = "Deleted"
)

// Note is a captured voice or text note. Content and summary start as
// placeholders and are written exactly once by the processing pipeline.
type Note struct {
	ID        string
	OwnerID   int64
	Title     string
	Content   string
	Summary   string
	Priority  Priority
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// ActionItem is a discrete task/reminder/fact/meeting/habit/shopping/study
// unit derived from a note or entered manually.
type ActionItem struct {
	ID        int64
	OwnerID   int64
	NoteID    string // empty for manual items
	Type      ItemType
	Content   string
	Status    ItemStatus
	DueDate   *time.Time
	EndTime   *time.Time
	Location  string
	AlarmID   *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Alarm is a time-of-day alarm. Time is stored as "HH:MM".
type Alarm struct {
	ID        int64
	OwnerID   int64
	Time      string
	Label     string
	Active    bool
	CreatedAt time.Time
}

// History is one append-only audit record for an action item change.
type History struct {
	ID          int64
	OwnerID     int64
	NoteID      string // empty when the change was not note-driven
	ItemContent string
	ItemType    ItemType
	Action      HistoryAction
	Details     string
	Reasoning   string
	CreatedAt   time.Time
}

// SearchResult is an immutable snapshot of one web search triggered by a note.
type SearchResult struct {
	ID          int64
	OwnerID     int64
	NoteID      string
	Query       string
	ResultsJSON string // [{title, url, snippet, content}] stored as text
	Summary     string
	CreatedAt   time.Time
}

// Notification is a lightweight pointer to something the user should review.
type Notification struct {
	ID        int64
	OwnerID   int64
	Type      string // "search" or "system"
	Title     string
	Message   string
	Link      string
	IsRead    bool
	CreatedAt time.Time
}

// Habit is a named recurring activity tracked via HabitLog entries.
type Habit struct {
	ID        int64
	OwnerID   int64
	Name      string
	Goal      string
	CreatedAt time.Time
}

// HabitLog records one observation against a habit.
type HabitLog struct {
	ID        int64
	HabitID   int64
	NoteID    string
	Value     float64
	Unit      string
	Comment   string
	CreatedAt time.Time
}

// Job is one unit of background work in the SQLite-backed queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
