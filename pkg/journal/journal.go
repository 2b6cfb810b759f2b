// Package journal persists the operator log to SQLite so a session's
// commands and backend replies survive a console restart.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/oplog"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS oplog (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	ts_unix_ms INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	text       TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_oplog_ts ON oplog (ts_unix_ms)`,
}

// Journal is an append-only store of operator log entries.
type Journal struct {
	db        *sql.DB
	sessionID string
	logger    log.Logger
}

// Record is one persisted entry.
type Record struct {
	SessionID string
	Entry     oplog.Entry
}

// Open opens (or creates) the journal at path.
func Open(path, sessionID string, logger log.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal open %s: %w", path, err)
	}
	// one writer
	db.SetMaxOpenConns(1)

	stmts := append([]string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}, schema...)
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal init: %w", err)
		}
	}
	if logger == nil {
		logger = log.Std()
	}
	return &Journal{db: db, sessionID: sessionID, logger: logger.WithName("journal")}, nil
}

// Append stores e.
func (j *Journal) Append(ctx context.Context, e oplog.Entry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO oplog (id, session_id, ts_unix_ms, kind, text) VALUES (?, ?, ?, ?, ?)`,
		e.ID, j.sessionID, e.Time.UnixMilli(), string(e.Kind), e.Text)
	if err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	return nil
}

// Listener returns an oplog listener that appends every entry. Failures are
// logged and never reach the operator log itself.
func (j *Journal) Listener() oplog.Listener {
	return func(e oplog.Entry) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := j.Append(ctx, e); err != nil {
			j.logger.Error(err, "dropping journal entry", "id", e.ID)
		}
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, session_id, ts_unix_ms, kind, text FROM oplog ORDER BY ts_unix_ms DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r    Record
			ms   int64
			kind string
		)
		if err := rows.Scan(&r.Entry.ID, &r.SessionID, &ms, &kind, &r.Entry.Text); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		r.Entry.Time = time.UnixMilli(ms)
		r.Entry.Kind = oplog.Kind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
