// Package journal is the client's local sqlite state: attempt launch marks
// for rapid-refresh detection and a spool of proctoring events that did not
// reach the server before the process exited.
package journal

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stemsi/exstem-client/internal/telemetry"
)

const schema = `
CREATE TABLE IF NOT EXISTS launches (
    attempt_id INTEGER PRIMARY KEY,
    launched_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_events (
    id TEXT PRIMARY KEY,
    attempt_id INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    payload TEXT NOT NULL,
    client_ts INTEGER NOT NULL,
    seq INTEGER
);

CREATE INDEX IF NOT EXISTS idx_pending_events_attempt ON pending_events(attempt_id, seq);
`

// Journal is the sqlite-backed store. One file per user, shared across
// attempts. Safe for use from multiple goroutines; database/sql serializes.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// LastLaunch returns the most recent recorded launch of an attempt. The
// second return is false when the attempt was never launched on this machine.
func (j *Journal) LastLaunch(attemptID int64) (time.Time, bool, error) {
	var unixMilli int64
	err := j.db.QueryRow(
		"SELECT launched_at FROM launches WHERE attempt_id = ?", attemptID,
	).Scan(&unixMilli)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(unixMilli), true, nil
}

// RecordLaunch upserts the launch mark for an attempt.
func (j *Journal) RecordLaunch(attemptID int64, at time.Time) error {
	_, err := j.db.Exec(
		"INSERT INTO launches (attempt_id, launched_at) VALUES (?, ?) ON CONFLICT(attempt_id) DO UPDATE SET launched_at = excluded.launched_at",
		attemptID, at.UnixMilli(),
	)
	return err
}

// AppendEvent persists one spooled event.
func (j *Journal) AppendEvent(ev telemetry.Event) error {
	_, err := j.db.Exec(
		"INSERT OR IGNORE INTO pending_events (id, attempt_id, event_type, payload, client_ts, seq) VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM pending_events))",
		ev.ID, ev.AttemptID, ev.Type, string(ev.Payload), ev.ClientTS.UnixMilli(),
	)
	return err
}

// RemoveEvent deletes an acknowledged or dropped event. Unknown ids are not
// an error.
func (j *Journal) RemoveEvent(id string) error {
	_, err := j.db.Exec("DELETE FROM pending_events WHERE id = ?", id)
	return err
}

// PendingEvents returns the spooled events of one attempt in insertion order.
func (j *Journal) PendingEvents(attemptID int64) ([]telemetry.Event, error) {
	rows, err := j.db.Query(
		"SELECT id, attempt_id, event_type, payload, client_ts FROM pending_events WHERE attempt_id = ? ORDER BY seq",
		attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []telemetry.Event
	for rows.Next() {
		var ev telemetry.Event
		var payload string
		var unixMilli int64
		if err := rows.Scan(&ev.ID, &ev.AttemptID, &ev.Type, &payload, &unixMilli); err != nil {
			return nil, err
		}
		ev.Payload = []byte(payload)
		ev.ClientTS = time.UnixMilli(unixMilli)
		events = append(events, ev)
	}
	return events, rows.Err()
}
