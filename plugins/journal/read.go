package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Session describes one journaled store.
type Session struct {
	ID        string
	StoreID   string
	StartedAt time.Time
	EndedAt   time.Time // zero while the store is alive
}

// Entry is one journaled event.
type Entry struct {
	Session    string
	Seq        int64
	Epoch      int64
	Kind       Kind
	Mutation   string
	Path       string
	Payload    json.RawMessage
	RecordedAt time.Time
}

// Sessions returns every session, oldest first.
func (j *Journal) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, store_id, started_at, ended_at
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			s       Session
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.StoreID, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if s.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if ended.Valid {
			if s.EndedAt, err = parseTime(ended.String); err != nil {
				return nil, fmt.Errorf("scan session: %w", err)
			}
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Entries returns a session's entries in emission order.
// An unknown session yields an empty slice.
func (j *Journal) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT session_id, seq, epoch, kind, mutation, path, payload, recorded_at
		FROM entries
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			kind     string
			payload  string
			recorded string
		)
		if err := rows.Scan(&e.Session, &e.Seq, &e.Epoch, &kind, &e.Mutation, &e.Path, &payload, &recorded); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.Payload = json.RawMessage(payload)
		if e.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
