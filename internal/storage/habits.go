package storage

import (
	"database/sql"
	"time"
)

// EnsureHabit returns the owner's habit with the given name, creating it when
// absent.
func (s *Store) EnsureHabit(ownerID int64, name string) (Habit, error) {
	var h Habit
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, owner_id, name, goal, created_at
		FROM habits WHERE owner_id = ? AND name = ?`, ownerID, name,
	).Scan(&h.ID, &h.OwnerID, &h.Name, &h.Goal, &createdAt)
	if err == nil {
		if h.CreatedAt, err = parseStoredTime(createdAt); err != nil {
			return Habit{}, err
		}
		return h, nil
	}
	if err != sql.ErrNoRows {
		return Habit{}, err
	}

	res, err := s.db.Exec(`
		INSERT INTO habits (owner_id, name, goal, created_at) VALUES (?, ?, '', ?)`,
		ownerID, name, fmtTime(time.Now()),
	)
	if err != nil {
		return Habit{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Habit{}, err
	}
	return Habit{ID: id, OwnerID: ownerID, Name: name, CreatedAt: time.Now().UTC()}, nil
}

// AddHabitLog appends one observation to a habit.
func (s *Store) AddHabitLog(l HabitLog) (int64, error) {
	if l.Unit == "" {
		l.Unit = "units"
	}
	var noteID any
	if l.NoteID != "" {
		noteID = l.NoteID
	}
	res, err := s.db.Exec(`
		INSERT INTO habit_logs (habit_id, note_id, value, unit, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.HabitID, noteID, l.Value, l.Unit, l.Comment, fmtTime(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListHabitLogs returns a habit's observations, newest first.
func (s *Store) ListHabitLogs(habitID int64, limit int) ([]HabitLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, habit_id, note_id, value, unit, comment, created_at
		FROM habit_logs WHERE habit_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, habitID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []HabitLog
	for rows.Next() {
		var l HabitLog
		var noteID sql.NullString
		var createdAt string
		if err := rows.Scan(&l.ID, &l.HabitID, &noteID, &l.Value, &l.Unit, &l.Comment, &createdAt); err != nil {
			return nil, err
		}
		l.NoteID = noteID.String
		if l.CreatedAt, err = parseStoredTime(createdAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
