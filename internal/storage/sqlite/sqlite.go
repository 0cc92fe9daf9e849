// Package sqlite persists events in an embedded SQLite file, for single-host
// installs without a Postgres server.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AaronLay10/xyzplot/internal/events"
)

// Store is an events.Store backed by SQLite.
type Store struct {
	db         *sql.DB
	instanceID string
}

var _ events.Store = (*Store)(nil)

// Open opens (creating if needed) the event database at path.
func Open(path, instanceID string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}
	return &Store{db: db, instanceID: instanceID}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS xyz_events (
	event_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_unix_ns  INTEGER NOT NULL,
	level       TEXT NOT NULL,
	event       TEXT NOT NULL,
	msg         TEXT,
	fields      TEXT,
	instance_id TEXT NOT NULL,
	run_id      TEXT
);
CREATE INDEX IF NOT EXISTS idx_xyz_events_ts ON xyz_events(ts_unix_ns DESC);
`)
	return err
}

// Append inserts an event.
func (s *Store) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, runID string) error {
	var fieldsJSON *string
	if fields != nil {
		b, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
		v := string(b)
		fieldsJSON = &v
	}
	_, err := s.db.Exec(`
INSERT INTO xyz_events (ts_unix_ns, level, event, msg, fields, instance_id, run_id)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, ts.UnixNano(), level, event, nullable(msg), fieldsJSON, s.instanceID, nullable(runID))
	return err
}

// Query returns the newest limit events, newest first.
func (s *Store) Query(limit int) ([]events.Record, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	rows, err := s.db.Query(`
SELECT event_id, ts_unix_ns, level, event, msg, fields, instance_id, run_id
FROM xyz_events
WHERE instance_id = ?
ORDER BY ts_unix_ns DESC, event_id DESC
LIMIT ?
`, s.instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Record
	for rows.Next() {
		var e events.Record
		var tsNs int64
		var msg, fieldsJSON, runID sql.NullString
		if err := rows.Scan(&e.EventID, &tsNs, &e.Level, &e.Event, &msg, &fieldsJSON, &e.Instance, &runID); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(0, tsNs).UTC()
		if msg.Valid {
			e.Message = &msg.String
		}
		if runID.Valid {
			e.RunID = &runID.String
		}
		if fieldsJSON.Valid && fieldsJSON.String != "" {
			if err := json.Unmarshal([]byte(fieldsJSON.String), &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
