package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const itemColumns = `id, owner_id, note_id, item_type, content, status, due_date, end_time, location, alarm_id, created_at, updated_at`

func scanItem(scan func(dest ...any) error) (ActionItem, error) {
	var it ActionItem
	var noteID sql.NullString
	var itemType, status string
	var dueDate, endTime sql.NullString
	var alarmID sql.NullInt64
	var createdAt, updatedAt string

	err := scan(&it.ID, &it.OwnerID, &noteID, &itemType, &it.Content, &status,
		&dueDate, &endTime, &it.Location, &alarmID, &createdAt, &updatedAt)
	if err != nil {
		return ActionItem{}, err
	}

	it.NoteID = noteID.String
	it.Type = ItemType(itemType)
	it.Status = ItemStatus(status)
	if alarmID.Valid {
		id := alarmID.Int64
		it.AlarmID = &id
	}
	if it.DueDate, err = scanNullTime(dueDate); err != nil {
		return ActionItem{}, err
	}
	if it.EndTime, err = scanNullTime(endTime); err != nil {
		return ActionItem{}, err
	}
	if it.CreatedAt, err = parseStoredTime(createdAt); err != nil {
		return ActionItem{}, err
	}
	if it.UpdatedAt, err = parseStoredTime(updatedAt); err != nil {
		return ActionItem{}, err
	}
	return it, nil
}

// CreateActionItem inserts a new action item and returns its id.
func (s *Store) CreateActionItem(it ActionItem) (int64, error) {
	now := time.Now().UTC()
	if it.Status == "" {
		it.Status = StatusPending
	}
	if it.Type == "" {
		it.Type = ItemTask
	}
	var noteID any
	if it.NoteID != "" {
		noteID = it.NoteID
	}
	var alarmID any
	if it.AlarmID != nil {
		alarmID = *it.AlarmID
	}
	res, err := s.db.Exec(`
		INSERT INTO action_items (owner_id, note_id, item_type, content, status, due_date, end_time, location, alarm_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.OwnerID, noteID, string(it.Type), it.Content, string(it.Status),
		fmtNullTime(it.DueDate), fmtNullTime(it.EndTime), it.Location, alarmID,
		fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetActionItem returns an owner's item by id.
func (s *Store) GetActionItem(ownerID, id int64) (ActionItem, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM action_items WHERE id = ? AND owner_id = ?`, id, ownerID)
	it, err := scanItem(row.Scan)
	if err == sql.ErrNoRows {
		return ActionItem{}, ErrNotFound
	}
	if err != nil {
		return ActionItem{}, err
	}
	return it, nil
}

// ListActionItems returns an owner's items, newest first, optionally filtered
// by type and/or status (pass "" for no filter).
func (s *Store) ListActionItems(ownerID int64, itemType ItemType, status ItemStatus) ([]ActionItem, error) {
	query := `SELECT ` + itemColumns + ` FROM action_items WHERE owner_id = ?`
	args := []any{ownerID}
	if itemType != "" {
		query += ` AND item_type = ?`
		args = append(args, string(itemType))
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ActionItem
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListPendingItems returns the owner's Pending items, oldest first. The order
// matters for extraction prompts: stable listings keep model context stable.
func (s *Store) ListPendingItems(ownerID int64) ([]ActionItem, error) {
	rows, err := s.db.Query(`SELECT `+itemColumns+` FROM action_items
		WHERE owner_id = ? AND status = ? ORDER BY id ASC`, ownerID, string(StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ActionItem
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// HasPendingDuplicate reports whether a Pending item with identical type,
// content and due timestamp already exists for the owner. A nil due matches
// only rows with no due date.
func (s *Store) HasPendingDuplicate(ownerID int64, itemType ItemType, content string, due *time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM action_items
		WHERE owner_id = ? AND item_type = ? AND content = ? AND status = ? AND due_date IS ?`,
		ownerID, string(itemType), content, string(StatusPending), fmtNullTime(due),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateActionItem overwrites the item's mutable fields, scoped to the owner.
func (s *Store) UpdateActionItem(it ActionItem) error {
	var alarmID any
	if it.AlarmID != nil {
		alarmID = *it.AlarmID
	}
	res, err := s.db.Exec(`
		UPDATE action_items
		SET item_type = ?, content = ?, status = ?, due_date = ?, end_time = ?, location = ?, alarm_id = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		string(it.Type), it.Content, string(it.Status),
		fmtNullTime(it.DueDate), fmtNullTime(it.EndTime), it.Location, alarmID,
		fmtTime(time.Now()), it.ID, it.OwnerID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetItemAlarm links an item to an alarm.
func (s *Store) SetItemAlarm(ownerID, itemID, alarmID int64) error {
	res, err := s.db.Exec(`
		UPDATE action_items SET alarm_id = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		alarmID, fmtTime(time.Now()), itemID, ownerID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteActionItem removes the item and, when it owns a linked alarm, that
// alarm as well. It returns the deleted item so the caller can write the
// audit record.
func (s *Store) DeleteActionItem(ownerID, id int64) (ActionItem, error) {
	it, err := s.GetActionItem(ownerID, id)
	if err != nil {
		return ActionItem{}, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return ActionItem{}, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM action_items WHERE id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return ActionItem{}, err
	}
	if it.AlarmID != nil {
		if _, err := tx.Exec(`DELETE FROM alarms WHERE id = ? AND owner_id = ?`, *it.AlarmID, ownerID); err != nil {
			return ActionItem{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return ActionItem{}, err
	}
	return it, nil
}

// --- Audit trail ---

// AddHistory appends one audit record. The trail is append-only.
func (s *Store) AddHistory(h History) error {
	var noteID any
	if h.NoteID != "" {
		noteID = h.NoteID
	}
	_, err := s.db.Exec(`
		INSERT INTO action_item_history (owner_id, note_id, item_content, item_type, action_type, details, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.OwnerID, noteID, h.ItemContent, string(h.ItemType), string(h.Action),
		h.Details, h.Reasoning, fmtTime(time.Now()),
	)
	return err
}

// ListHistory returns the owner's most recent audit records, newest first.
func (s *Store) ListHistory(ownerID int64, limit int) ([]History, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, owner_id, note_id, item_content, item_type, action_type, details, reasoning, created_at
		FROM action_item_history WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []History
	for rows.Next() {
		var h History
		var noteID sql.NullString
		var itemType, action, createdAt string
		if err := rows.Scan(&h.ID, &h.OwnerID, &noteID, &h.ItemContent, &itemType, &action, &h.Details, &h.Reasoning, &createdAt); err != nil {
			return nil, err
		}
		h.NoteID = noteID.String
		h.ItemType = ItemType(itemType)
		h.Action = HistoryAction(action)
		if h.CreatedAt, err = parseStoredTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, h)
	}
	return records, rows.Err()
}

// CountHistory returns the number of audit records for the owner.
func (s *Store) CountHistory(ownerID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM action_item_history WHERE owner_id = ?`, ownerID).Scan(&count)
	return count, err
}
