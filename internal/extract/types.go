package extract

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/murmurhq/murmur/internal/storage"
)

// Result is the validated outcome of one extraction call. Every enum field
// has already been mapped onto its closed set; raw model strings never leave
// this package.
type Result struct {
	Priority storage.Priority
	Summary  string
	NewItems []NewItem
	Alarms   []AlarmSpec
	Updates  []Update
	Email    *EmailIntent
	Search   *SearchIntent
}

// NewItem is one proposed action item.
type NewItem struct {
	Type      storage.ItemType
	Content   string
	DueDate   *time.Time
	EndTime   *time.Time
	Location  string
	HabitName string
	Value     float64
	Unit      string
	Reasoning string
}

// AlarmSpec is one proposed alarm. Time is "HH:MM".
type AlarmSpec struct {
	Time  string
	Label string
}

// Update is one proposed status transition on an existing item.
type Update struct {
	ID        int64
	Status    storage.ItemStatus
	Reasoning string
}

// EmailIntent carries the model's email draft when it detected one.
type EmailIntent struct {
	Recipient string
	Subject   string
	Body      string
}

// SearchIntent carries the model's proposed web search queries.
type SearchIntent struct {
	Queries []string
}

// SafeEmpty is the canonical fallback used whenever the extraction service
// cannot be trusted: lowest priority, no proposals, a fixed summary.
func SafeEmpty() Result {
	return Result{
		Priority: storage.PriorityLow,
		Summary:  "Note processed",
	}
}

// --- wire format ---

type rawResult struct {
	Priority     string           `json:"priority"`
	Summary      string           `json:"summary"`
	NewItems     []rawItem        `json:"new_items"`
	Alarms       []rawAlarm       `json:"alarms"`
	Updates      []rawUpdate      `json:"updates"`
	EmailIntent  *rawEmailIntent  `json:"email_intent"`
	SearchIntent *rawSearchIntent `json:"search_intent"`
}

type rawItem struct {
	Type      string  `json:"type"`
	Content   string  `json:"content"`
	DueDate   string  `json:"due_date"`
	EndTime   string  `json:"end_time"`
	Location  string  `json:"location"`
	HabitName string  `json:"habit_name"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Reasoning string  `json:"reasoning"`
}

type rawAlarm struct {
	Time  string `json:"time"`
	Label string `json:"label"`
}

type rawUpdate struct {
	ID        json.Number `json:"id"`
	Status    string      `json:"status"`
	Reasoning string      `json:"reasoning"`
}

type rawEmailIntent struct {
	Detected  bool   `json:"detected"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type rawSearchIntent struct {
	Detected bool     `json:"detected"`
	Queries  []string `json:"queries"`
}

// validate maps the raw wire payload onto the closed Result types. Invalid
// fields are dropped or defaulted; the rest of the record survives.
func (r rawResult) validate() Result {
	out := Result{
		Priority: storage.ParsePriority(r.Priority),
		Summary:  r.Summary,
	}
	if out.Summary == "" {
		out.Summary = "Note processed"
	}

	for _, it := range r.NewItems {
		if strings.TrimSpace(it.Content) == "" {
			continue
		}
		item := NewItem{
			Type:      storage.ParseItemType(it.Type),
			Content:   it.Content,
			DueDate:   parseModelTime(it.DueDate),
			EndTime:   parseModelTime(it.EndTime),
			Location:  it.Location,
			HabitName: it.HabitName,
			Value:     it.Value,
			Unit:      it.Unit,
			Reasoning: it.Reasoning,
		}
		out.NewItems = append(out.NewItems, item)
	}

	for _, a := range r.Alarms {
		norm, ok := normalizeClock(a.Time)
		if !ok {
			slog.Warn("dropping alarm with unparseable time", "time", a.Time)
			continue
		}
		label := a.Label
		if label == "" || isPlaceholder(label) {
			label = "Alarm"
		}
		out.Alarms = append(out.Alarms, AlarmSpec{Time: norm, Label: label})
	}

	for _, u := range r.Updates {
		id, err := u.ID.Int64()
		if err != nil || id <= 0 {
			continue
		}
		status, ok := storage.ParseItemStatus(u.Status)
		if !ok || status == storage.StatusPending {
			// Only terminal transitions come from the model.
			slog.Warn("dropping update with invalid status", "id", id, "status", u.Status)
			continue
		}
		out.Updates = append(out.Updates, Update{ID: id, Status: status, Reasoning: u.Reasoning})
	}

	if r.EmailIntent != nil && r.EmailIntent.Detected {
		out.Email = &EmailIntent{
			Recipient: r.EmailIntent.Recipient,
			Subject:   r.EmailIntent.Subject,
			Body:      r.EmailIntent.Body,
		}
	}
	if r.SearchIntent != nil && r.SearchIntent.Detected && len(r.SearchIntent.Queries) > 0 {
		out.Search = &SearchIntent{Queries: r.SearchIntent.Queries}
	}

	return out
}

// dueDateLayouts are the timestamp shapes the model actually produces.
var dueDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// isPlaceholder reports whether the model echoed a template token instead of
// a real value ("YYYY-MM-DD HH:MM:SS (optional)" and friends).
func isPlaceholder(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "optional") || strings.Contains(lower, "yyyy")
}

// parseModelTime resolves a model-supplied timestamp string. Placeholder
// markers are treated as absent, not as parse errors; a genuinely
// unparseable value is dropped with a warning.
func parseModelTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" || isPlaceholder(s) {
		return nil
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	slog.Warn("dropping unparseable due date", "value", s)
	return nil
}

// normalizeClock validates an "HH:MM" time-of-day, also accepting the
// "HH:MM:SS" form some models emit.
func normalizeClock(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || isPlaceholder(s) {
		return "", false
	}
	if t, err := time.Parse("15:04", s); err == nil {
		return t.Format("15:04"), true
	}
	if t, err := time.Parse("15:04:05", s); err == nil {
		return t.Format("15:04"), true
	}
	return "", false
}
