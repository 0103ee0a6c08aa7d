package faultlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a persistent fault journal.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fault journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to fault journal: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS faults (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at INTEGER NOT NULL,
			thread TEXT NOT NULL,
			proc TEXT NOT NULL,
			pc INTEGER NOT NULL,
			loc TEXT,
			kind TEXT NOT NULL,
			message TEXT,
			trace TEXT,
			nowait INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS faults_proc ON faults (proc)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("creating fault journal tables: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Append(rec Record) error {
	nowait := 0
	if rec.NoWait {
		nowait = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO faults (at, thread, proc, pc, loc, kind, message, trace, nowait)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Time.UnixNano(), rec.Thread, rec.Proc, rec.PC, rec.Loc, rec.Kind, rec.Message,
		strings.Join(rec.Trace, "\n"), nowait,
	)
	return err
}

// List returns up to limit records, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, thread, proc, pc, loc, kind, message, trace, nowait
		 FROM faults ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			at     int64
			rec    Record
			loc    sql.NullString
			msg    sql.NullString
			trace  sql.NullString
			nowait int
		)
		if err := rows.Scan(&at, &rec.Thread, &rec.Proc, &rec.PC, &loc, &rec.Kind, &msg, &trace, &nowait); err != nil {
			return nil, err
		}
		rec.Time = time.Unix(0, at)
		rec.Loc = loc.String
		rec.Message = msg.String
		if trace.String != "" {
			rec.Trace = strings.Split(trace.String, "\n")
		}
		rec.NoWait = nowait != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM faults`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
