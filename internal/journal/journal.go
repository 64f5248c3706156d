// Package journal provides an optional SQLite audit log of runner
// transitions (polls that observed a change, writes, conflicts, network
// drops). The runner itself persists nothing; the journal exists so a prop
// misbehaving mid-game can be diagnosed after the fact.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Event kinds recorded by the runner.
const (
	KindSessionStart  = "session-start"
	KindPollChange    = "poll-change"
	KindWriteOK       = "write-ok"
	KindWriteConflict = "write-conflict"
	KindNetworkError  = "network-error"
)

// Event is one recorded runner transition.
type Event struct {
	Seq     int64
	Session string
	At      time.Time
	Kind    string
	BoxID   string
	Version int64
	Detail  string
}

// Journal is a single-writer SQLite transition log.
type Journal struct {
	db      *sql.DB
	session string
	boxID   string
}

// Open creates or opens a journal database at the given path.
// Applies required pragmas and the schema automatically; idempotent.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// SQLite supports one writer at a time; keep a single connection to
	// avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// StartSession registers a new runner session for the given box and
// records the opening event. Must be called before Record.
func (j *Journal) StartSession(ctx context.Context, boxID string) error {
	j.session = uuid.NewString()
	j.boxID = boxID

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, box_id, started_at) VALUES (?, ?, ?)
	`, j.session, boxID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return j.Record(ctx, KindSessionStart, 0, "")
}

// Record appends one transition event to the current session.
func (j *Journal) Record(ctx context.Context, kind string, version int64, detail string) error {
	if j.session == "" {
		return fmt.Errorf("record: no active session")
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events (session_id, at, kind, box_id, version, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, j.session, time.Now().UTC().Format(time.RFC3339Nano), kind, j.boxID, version, detail)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Events returns all recorded events in sequence order. boxID filters to
// one box when non-empty.
func (j *Journal) Events(ctx context.Context, boxID string) ([]Event, error) {
	query := `
		SELECT seq, session_id, at, kind, box_id, version, detail
		FROM events
	`
	var args []any
	if boxID != "" {
		query += " WHERE box_id = ?"
		args = append(args, boxID)
	}
	query += " ORDER BY seq"

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var at string
		if err := rows.Scan(&e.Seq, &e.Session, &at, &e.Kind, &e.BoxID, &e.Version, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse event time: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
