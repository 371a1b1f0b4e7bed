package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/murmurhq/murmur/internal/dispatch"
	"github.com/murmurhq/murmur/internal/extract"
	"github.com/murmurhq/murmur/internal/intent"
	"github.com/murmurhq/murmur/internal/reconcile"
	"github.com/murmurhq/murmur/internal/search"
	"github.com/murmurhq/murmur/internal/storage"
)

// NoTranscriptionSummary is written when audio produced no text and the note
// carried no typed content.
const NoTranscriptionSummary = "Voice note (no transcription)"

// Transcriber converts one audio segment into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Extractor turns note content into a validated extraction result.
type Extractor interface {
	Extract(ctx context.Context, content string, pending []storage.ActionItem, now time.Time) extract.Result
}

// Reconciler applies an extraction result to the owner's records.
type Reconciler interface {
	Apply(ownerID int64, noteID string, res extract.Result) (reconcile.Outcome, error)
}

// WebSearcher runs detected search queries.
type WebSearcher interface {
	RunAll(ctx context.Context, queries []string) []search.Result
}

// EmailSender fires the email webhook.
type EmailSender interface {
	SendEmail(ctx context.Context, text, recipient, subject, body string) bool
}

// CalendarClient creates calendar events for meetings.
type CalendarClient interface {
	Configured() bool
	CreateEvent(ctx context.Context, ownerID int64, summary string, start time.Time, end *time.Time, location string) (*dispatch.Event, error)
}

// NotePayload is the job payload for one note submission.
type NotePayload struct {
	NoteID     string   `json:"note_id"`
	OwnerID    int64    `json:"owner_id"`
	Text       string   `json:"text"`
	AudioPaths []string `json:"audio_paths"`
}

// Processor runs one note through the full pipeline: transcription,
// extraction, reconciliation, dispatch. A failure in transcription or
// extraction degrades; a storage failure aborts and surfaces to the job
// queue. Already-committed items and alarms are never rolled back.
type Processor struct {
	store       *storage.Store
	transcriber Transcriber
	extractor   Extractor
	reconciler  Reconciler
	searcher    WebSearcher
	email       EmailSender
	calendar    CalendarClient
}

func NewProcessor(store *storage.Store, tr Transcriber, ex Extractor, rec Reconciler, ws WebSearcher, email EmailSender, cal CalendarClient) *Processor {
	return &Processor{
		store:       store,
		transcriber: tr,
		extractor:   ex,
		reconciler:  rec,
		searcher:    ws,
		email:       email,
		calendar:    cal,
	}
}

// Process runs the pipeline for one submitted note.
func (p *Processor) Process(ctx context.Context, payload NotePayload) error {
	log := slog.With("note_id", payload.NoteID, "owner_id", payload.OwnerID)

	if _, err := p.store.GetNote(payload.OwnerID, payload.NoteID); err != nil {
		return fmt.Errorf("loading note: %w", err)
	}

	// 1. Transcribe each audio segment, concatenating in input order. A
	// failed segment contributes nothing.
	log.Info("processing note", "stage", "transcribing", "segments", len(payload.AudioPaths))
	transcript := p.transcribeAll(ctx, payload.AudioPaths, log)

	content := mergeContent(payload.Text, transcript)
	if content == "" {
		log.Info("no content produced, skipping extraction")
		if err := p.store.UpdateNoteResult(payload.OwnerID, payload.NoteID, "", NoTranscriptionSummary, storage.PriorityLow); err != nil {
			return fmt.Errorf("marking note without transcription: %w", err)
		}
		return nil
	}

	// 2. Extract. Never fails; degrades to the safe empty result.
	log.Info("processing note", "stage", "extracting")
	pending, err := p.store.ListPendingItems(payload.OwnerID)
	if err != nil {
		return fmt.Errorf("listing pending items: %w", err)
	}
	res := p.extractor.Extract(ctx, content, pending, time.Now().UTC())

	// 3. Reconcile against existing state.
	log.Info("processing note", "stage", "reconciling")
	outcome, err := p.reconciler.Apply(payload.OwnerID, payload.NoteID, res)
	if err != nil {
		return fmt.Errorf("reconciling: %w", err)
	}
	log.Info("reconciled",
		"items_created", len(outcome.ItemsCreated),
		"items_updated", len(outcome.ItemsUpdated),
		"alarms_created", len(outcome.AlarmsCreated),
		"duplicates_skipped", outcome.DuplicatesSkipped,
	)

	if err := p.store.UpdateNoteResult(payload.OwnerID, payload.NoteID, content, res.Summary, res.Priority); err != nil {
		return fmt.Errorf("writing note result: %w", err)
	}

	// 4. Dispatch. Best-effort: failures are logged, never fatal, and do not
	// roll back anything committed above.
	log.Info("processing note", "stage", "dispatching")
	p.dispatchCalendar(ctx, payload.OwnerID, outcome.ItemsCreated, log)
	p.dispatchEmail(ctx, content, res.Email, log)
	if err := p.dispatchSearch(ctx, payload.OwnerID, payload.NoteID, content, res.Search, log); err != nil {
		return err
	}

	log.Info("note processed", "stage", "done")
	return nil
}

func (p *Processor) transcribeAll(ctx context.Context, paths []string, log *slog.Logger) string {
	var parts []string
	for _, path := range paths {
		text, err := p.transcriber.Transcribe(ctx, path)
		if err != nil {
			log.Warn("transcription failed for segment", "path", path, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// dispatchCalendar creates an event for every newly created meeting with a
// due time.
func (p *Processor) dispatchCalendar(ctx context.Context, ownerID int64, created []int64, log *slog.Logger) {
	if p.calendar == nil || !p.calendar.Configured() {
		return
	}
	for _, id := range created {
		item, err := p.store.GetActionItem(ownerID, id)
		if err != nil {
			log.Warn("loading created item for calendar sync", "item_id", id, "error", err)
			continue
		}
		if item.Type != storage.ItemMeeting || item.DueDate == nil {
			continue
		}
		if _, err := p.calendar.CreateEvent(ctx, ownerID, item.Content, *item.DueDate, item.EndTime, item.Location); err != nil {
			log.Warn("calendar event creation failed", "item_id", id, "error", err)
			continue
		}
		log.Info("calendar event created", "item_id", id)
	}
}

// dispatchEmail fires the webhook when the text itself asks for an email.
// The extraction draft, when present, supplies recipient and body.
func (p *Processor) dispatchEmail(ctx context.Context, content string, draft *extract.EmailIntent, log *slog.Logger) {
	if p.email == nil || !intent.DetectEmailIntent(content) {
		return
	}
	var recipient, subject, body string
	if draft != nil {
		recipient, subject, body = draft.Recipient, draft.Subject, draft.Body
	}
	if !p.email.SendEmail(ctx, content, recipient, subject, body) {
		log.Warn("email webhook dispatch failed")
	}
}

// dispatchSearch runs detected queries and persists a result snapshot plus a
// notification per query. Persistence failures surface; search failures are
// already folded into the result summaries.
func (p *Processor) dispatchSearch(ctx context.Context, ownerID int64, noteID, content string, si *extract.SearchIntent, log *slog.Logger) error {
	if p.searcher == nil {
		return nil
	}
	queries := mergeQueries(intent.DetectSearchQueries(content), si)
	if len(queries) == 0 {
		return nil
	}

	for _, result := range p.searcher.RunAll(ctx, queries) {
		// Only outcomes with actual hits are worth a snapshot. Unconfigured,
		// failed, and empty searches fold into the summary and are dropped.
		if len(result.Results) == 0 {
			log.Info("search produced no results", "query", result.Query, "summary", result.Summary)
			continue
		}
		if _, err := p.store.SaveSearchResult(storage.SearchResult{
			OwnerID:     ownerID,
			NoteID:      noteID,
			Query:       result.Query,
			ResultsJSON: result.MarshalResults(),
			Summary:     result.Summary,
		}); err != nil {
			return fmt.Errorf("saving search result for %q: %w", result.Query, err)
		}
		if _, err := p.store.CreateNotification(storage.Notification{
			OwnerID: ownerID,
			Type:    "search",
			Title:   searchNotificationTitle(result.Query),
			Message: result.Summary,
			Link:    "/dashboard",
		}); err != nil {
			return fmt.Errorf("creating notification for %q: %w", result.Query, err)
		}
		log.Info("search completed", "query", result.Query)
	}
	return nil
}

const maxSearchQueries = 2

// mergeQueries appends the extraction result's proposed queries after the
// detector's, same normalization and cap. The detector alone decides whether
// search fires at all; the model only contributes extra queries.
func mergeQueries(queries []string, si *extract.SearchIntent) []string {
	if len(queries) == 0 || si == nil {
		return queries
	}
	for _, q := range si.Queries {
		if len(queries) >= maxSearchQueries {
			break
		}
		q = strings.ToLower(strings.TrimSpace(q))
		if len(q) <= 2 {
			continue
		}
		dup := false
		for _, have := range queries {
			if have == q {
				dup = true
				break
			}
		}
		if !dup {
			queries = append(queries, q)
		}
	}
	return queries
}

const notificationQueryMax = 30

func searchNotificationTitle(query string) string {
	if r := []rune(query); len(r) > notificationQueryMax {
		query = string(r[:notificationQueryMax])
	}
	return "Search Completed: " + query + "..."
}

// mergeContent combines typed text with the transcript. When the typed text
// is already contained in the transcript (comparing only lowercase
// alphanumerics) the transcript wins; otherwise both are kept.
func mergeContent(text, transcript string) string {
	text = strings.TrimSpace(text)
	transcript = strings.TrimSpace(transcript)
	switch {
	case text == "":
		return transcript
	case transcript == "":
		return text
	}
	if strings.Contains(normalizeAlnum(transcript), normalizeAlnum(text)) {
		return transcript
	}
	return text + "\n\nTranscription: " + transcript
}

func normalizeAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
