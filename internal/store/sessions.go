package store

import (
	"database/sql"
	"errors"
	"time"
)

// SessionRecord is one gesture-mode run.
type SessionRecord struct {
	ID            string     `json:"id"`
	Room          string     `json:"room"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	EventsSent    int64      `json:"events_sent"`
	EventsDropped int64      `json:"events_dropped"`
}

// SessionRepository records when gesture mode ran and how much it sent.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Begin records the start of a run. Restarting an existing id reopens it.
func (r *SessionRepository) Begin(id, room string, at time.Time) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, room, started_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET started_at = excluded.started_at, ended_at = NULL`,
		id, room, at,
	)
	return err
}

// End closes a run and stores its event counters.
func (r *SessionRepository) End(id string, at time.Time, sent, dropped int64) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, events_sent = ?, events_dropped = ? WHERE id = ?`,
		at, sent, dropped, id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves a run by id.
func (r *SessionRepository) Get(id string) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var ended sql.NullTime
	err := r.db.QueryRow(
		`SELECT id, room, started_at, ended_at, events_sent, events_dropped FROM sessions WHERE id = ?`,
		id,
	).Scan(&rec.ID, &rec.Room, &rec.StartedAt, &ended, &rec.EventsSent, &rec.EventsDropped)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if ended.Valid {
		rec.EndedAt = &ended.Time
	}
	return rec, nil
}

// Recent returns up to limit runs, newest first.
func (r *SessionRepository) Recent(limit int) ([]*SessionRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, room, started_at, ended_at, events_sent, events_dropped
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		rec := &SessionRecord{}
		var ended sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Room, &rec.StartedAt, &ended, &rec.EventsSent, &rec.EventsDropped); err != nil {
			return nil, err
		}
		if ended.Valid {
			rec.EndedAt = &ended.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
