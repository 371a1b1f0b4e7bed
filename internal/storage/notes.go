package storage

import (
	"database/sql"
	"time"
)

// CreateNote persists a new note. CreatedAt/UpdatedAt default to now when zero.
func (s *Store) CreateNote(n Note) error {
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = now
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	_, err := s.db.Exec(`
		INSERT INTO notes (id, owner_id, title, content, summary, priority, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.OwnerID, n.Title, n.Content, n.Summary, string(n.Priority),
		fmtTime(n.CreatedAt), fmtTime(n.UpdatedAt), fmtNullTime(n.DeletedAt),
	)
	return err
}

// GetNote returns an owner's note by id. Soft-deleted notes are still
// returned; callers filter on DeletedAt where it matters.
func (s *Store) GetNote(ownerID int64, id string) (Note, error) {
	var n Note
	var createdAt, updatedAt string
	var deletedAt sql.NullString
	var priority string
	err := s.db.QueryRow(`
		SELECT id, owner_id, title, content, summary, priority, created_at, updated_at, deleted_at
		FROM notes WHERE id = ? AND owner_id = ?`, id, ownerID,
	).Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &n.Summary, &priority, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, err
	}
	n.Priority = Priority(priority)
	if n.CreatedAt, err = parseStoredTime(createdAt); err != nil {
		return Note{}, err
	}
	if n.UpdatedAt, err = parseStoredTime(updatedAt); err != nil {
		return Note{}, err
	}
	if n.DeletedAt, err = scanNullTime(deletedAt); err != nil {
		return Note{}, err
	}
	return n, nil
}

// UpdateNoteResult writes the pipeline's final content, summary and priority
// back to the note. This is the single post-processing mutation of a note.
func (s *Store) UpdateNoteResult(ownerID int64, id, content, summary string, priority Priority) error {
	res, err := s.db.Exec(`
		UPDATE notes SET content = ?, summary = ?, priority = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		content, summary, string(priority), fmtTime(time.Now()), id, ownerID,
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

// ListNotes returns an owner's non-deleted notes, newest first.
func (s *Store) ListNotes(ownerID int64, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, owner_id, title, content, summary, priority, created_at, updated_at, deleted_at
		FROM notes WHERE owner_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT ?`, ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var createdAt, updatedAt string
		var deletedAt sql.NullString
		var priority string
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &n.Summary, &priority, &createdAt, &updatedAt, &deletedAt); err != nil {
			return nil, err
		}
		n.Priority = Priority(priority)
		if n.CreatedAt, err = parseStoredTime(createdAt); err != nil {
			return nil, err
		}
		if n.UpdatedAt, err = parseStoredTime(updatedAt); err != nil {
			return nil, err
		}
		if n.DeletedAt, err = scanNullTime(deletedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// SoftDeleteNote stamps deleted_at on the note. The row is never removed.
func (s *Store) SoftDeleteNote(ownerID int64, id string) error {
	now := fmtTime(time.Now())
	res, err := s.db.Exec(`
		UPDATE notes SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		now, now, id, ownerID,
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
