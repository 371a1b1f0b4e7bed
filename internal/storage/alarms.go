package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateAlarm inserts a new alarm and returns its id. Time must be "HH:MM".
func (s *Store) CreateAlarm(a Alarm) (int64, error) {
	if a.Label == "" {
		a.Label = "Alarm"
	}
	active := 0
	if a.Active {
		active = 1
	}
	res, err := s.db.Exec(`
		INSERT INTO alarms (owner_id, time, label, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.OwnerID, a.Time, a.Label, active, fmtTime(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanAlarm(scan func(dest ...any) error) (Alarm, error) {
	var a Alarm
	var active int
	var createdAt string
	if err := scan(&a.ID, &a.OwnerID, &a.Time, &a.Label, &active, &createdAt); err != nil {
		return Alarm{}, err
	}
	a.Active = active != 0
	var err error
	if a.CreatedAt, err = parseStoredTime(createdAt); err != nil {
		return Alarm{}, err
	}
	return a, nil
}

// GetAlarm returns an owner's alarm by id.
func (s *Store) GetAlarm(ownerID, id int64) (Alarm, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_id, time, label, is_active, created_at
		FROM alarms WHERE id = ? AND owner_id = ?`, id, ownerID)
	a, err := scanAlarm(row.Scan)
	if err == sql.ErrNoRows {
		return Alarm{}, ErrNotFound
	}
	if err != nil {
		return Alarm{}, err
	}
	return a, nil
}

// FindActiveAlarm returns the owner's active alarm with identical time and
// label, or ErrNotFound.
func (s *Store) FindActiveAlarm(ownerID int64, timeOfDay, label string) (Alarm, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_id, time, label, is_active, created_at
		FROM alarms WHERE owner_id = ? AND time = ? AND label = ? AND is_active = 1
		ORDER BY id ASC LIMIT 1`, ownerID, timeOfDay, label)
	a, err := scanAlarm(row.Scan)
	if err == sql.ErrNoRows {
		return Alarm{}, ErrNotFound
	}
	if err != nil {
		return Alarm{}, err
	}
	return a, nil
}

// FindActiveAlarmByTime returns the owner's first active alarm at the given
// time-of-day regardless of label, or ErrNotFound.
func (s *Store) FindActiveAlarmByTime(ownerID int64, timeOfDay string) (Alarm, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_id, time, label, is_active, created_at
		FROM alarms WHERE owner_id = ? AND time = ? AND is_active = 1
		ORDER BY id ASC LIMIT 1`, ownerID, timeOfDay)
	a, err := scanAlarm(row.Scan)
	if err == sql.ErrNoRows {
		return Alarm{}, ErrNotFound
	}
	if err != nil {
		return Alarm{}, err
	}
	return a, nil
}

// ListAlarms returns all of an owner's alarms ordered by time-of-day.
func (s *Store) ListAlarms(ownerID int64) ([]Alarm, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_id, time, label, is_active, created_at
		FROM alarms WHERE owner_id = ? ORDER BY time ASC, id ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alarms []Alarm
	for rows.Next() {
		a, err := scanAlarm(rows.Scan)
		if err != nil {
			return nil, err
		}
		alarms = append(alarms, a)
	}
	return alarms, rows.Err()
}

// UpdateAlarm overwrites the alarm's time, label and active flag.
func (s *Store) UpdateAlarm(a Alarm) error {
	active := 0
	if a.Active {
		active = 1
	}
	res, err := s.db.Exec(`
		UPDATE alarms SET time = ?, label = ?, is_active = ? WHERE id = ? AND owner_id = ?`,
		a.Time, a.Label, active, a.ID, a.OwnerID,
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

// DeleteAlarm removes the alarm and every action item linked to it (the
// inverse cascade of DeleteActionItem). It returns the removed items so the
// caller can write audit records for each.
func (s *Store) DeleteAlarm(ownerID, id int64) ([]ActionItem, error) {
	if _, err := s.GetAlarm(ownerID, id); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT `+itemColumns+` FROM action_items WHERE alarm_id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return nil, err
	}
	var linked []ActionItem
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, err
		}
		linked = append(linked, it)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM action_items WHERE alarm_id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`DELETE FROM alarms WHERE id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return linked, nil
}
