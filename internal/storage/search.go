package storage

import (
	"database/sql"
	"time"
)

// SaveSearchResult persists one immutable search snapshot and returns its id.
func (s *Store) SaveSearchResult(r SearchResult) (int64, error) {
	if r.ResultsJSON == "" {
		r.ResultsJSON = "[]"
	}
	var noteID any
	if r.NoteID != "" {
		noteID = r.NoteID
	}
	res, err := s.db.Exec(`
		INSERT INTO search_results (owner_id, note_id, query, results_json, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.OwnerID, noteID, r.Query, r.ResultsJSON, r.Summary, fmtTime(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListSearchResults returns the owner's search snapshots, newest first.
func (s *Store) ListSearchResults(ownerID int64, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, owner_id, note_id, query, results_json, summary, created_at
		FROM search_results WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var noteID sql.NullString
		var createdAt string
		if err := rows.Scan(&r.ID, &r.OwnerID, &noteID, &r.Query, &r.ResultsJSON, &r.Summary, &createdAt); err != nil {
			return nil, err
		}
		r.NoteID = noteID.String
		if r.CreatedAt, err = parseStoredTime(createdAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// CreateNotification persists a notification and returns its id.
func (s *Store) CreateNotification(n Notification) (int64, error) {
	if n.Type == "" {
		n.Type = "system"
	}
	res, err := s.db.Exec(`
		INSERT INTO notifications (owner_id, type, title, message, link, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		n.OwnerID, n.Type, n.Title, n.Message, n.Link, fmtTime(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListUnreadNotifications returns the owner's unread notifications, newest first.
func (s *Store) ListUnreadNotifications(ownerID int64) ([]Notification, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_id, type, title, message, link, is_read, created_at
		FROM notifications WHERE owner_id = ? AND is_read = 0
		ORDER BY created_at DESC, id DESC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Notification
	for rows.Next() {
		var n Notification
		var isRead int
		var createdAt string
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Type, &n.Title, &n.Message, &n.Link, &isRead, &createdAt); err != nil {
			return nil, err
		}
		n.IsRead = isRead != 0
		if n.CreatedAt, err = parseStoredTime(createdAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// MarkNotificationRead flips is_read. The flip happens at most once; marking
// an already-read notification is a no-op, not an error.
func (s *Store) MarkNotificationRead(ownerID, id int64) error {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE id = ? AND owner_id = ?`, id, ownerID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	_, err := s.db.Exec(`UPDATE notifications SET is_read = 1 WHERE id = ? AND owner_id = ? AND is_read = 0`, id, ownerID)
	return err
}
