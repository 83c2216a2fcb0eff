// Package sqlite persists simulation event records for offline analysis.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"clockmesh"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	experiment INTEGER NOT NULL,
	machine    INTEGER NOT NULL,
	ts         TEXT    NOT NULL,
	type       TEXT    NOT NULL,
	clock      INTEGER NOT NULL,
	queue_len  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_by_run ON events (experiment, machine);
`

// EventStore is a sqlite-backed archive of event records. One store is
// shared by all machines of a run; concurrent inserts are serialized by
// the WAL journal and busy timeout.
type EventStore struct {
	db *sql.DB
}

// Open creates or opens the store at path.
func Open(path string) (*EventStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &EventStore{db: db}, nil
}

func (s *EventStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert stores one event record under the given experiment number.
func (s *EventStore) Insert(ctx context.Context, experiment int, rec clockmesh.EventRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (experiment, machine, ts, type, clock, queue_len) VALUES (?, ?, ?, ?, ?, ?)`,
		experiment, int(rec.Machine), rec.Timestamp.Format(time.RFC3339Nano),
		rec.Type.String(), rec.Clock, rec.QueueLen)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Events returns one machine's records for an experiment in insert order.
func (s *EventStore) Events(ctx context.Context, experiment int, id clockmesh.MachineID) ([]clockmesh.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, type, clock, queue_len FROM events
		 WHERE experiment = ? AND machine = ? ORDER BY rowid`,
		experiment, int(id))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var recs []clockmesh.EventRecord
	for rows.Next() {
		var (
			ts  string
			typ string
			rec clockmesh.EventRecord
		)
		if err := rows.Scan(&ts, &typ, &rec.Clock, &rec.QueueLen); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Machine = id
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse event timestamp: %w", err)
		}
		if rec.Type, err = clockmesh.ParseEventType(typ); err != nil {
			return nil, fmt.Errorf("parse event type: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Machines lists the machine ids recorded for an experiment.
func (s *EventStore) Machines(ctx context.Context, experiment int) ([]clockmesh.MachineID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT machine FROM events WHERE experiment = ? ORDER BY machine`, experiment)
	if err != nil {
		return nil, fmt.Errorf("query machines: %w", err)
	}
	defer rows.Close()

	var ids []clockmesh.MachineID
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan machine id: %w", err)
		}
		ids = append(ids, clockmesh.MachineID(id))
	}
	return ids, rows.Err()
}

// MachineSink adapts the store to the per-machine EventSink interface.
// Closing the sink does not close the shared store.
func (s *EventStore) MachineSink(experiment int) clockmesh.EventSink {
	return &storeSink{store: s, experiment: experiment}
}

type storeSink struct {
	store      *EventStore
	experiment int
}

func (s *storeSink) Record(rec clockmesh.EventRecord) {
	// Insert failures must not disturb the tick loop; the file sink
	// remains the authoritative record.
	_ = s.store.Insert(context.Background(), s.experiment, rec)
}

func (s *storeSink) Close() error { return nil }
