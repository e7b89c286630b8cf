package history

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/victornm/livequiz/internal/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS quiz_history (
	history_id    TEXT PRIMARY KEY,
	session_code  TEXT NOT NULL,
	quiz_name     TEXT NOT NULL,
	start_time    INTEGER NOT NULL,
	end_time      INTEGER NOT NULL,
	total_players INTEGER NOT NULL,
	record        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS quiz_history_end_time_idx ON quiz_history (end_time DESC);`

// SQLite stores history records in a local file, for single-node deployments.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and creates the schema if needed.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Insert(ctx context.Context, r Record) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quiz_history (history_id, session_code, quiz_name, start_time, end_time, total_players, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionCode, r.QuizName, toMillis(r.StartTime), toMillis(r.EndTime), r.TotalPlayers, string(doc),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	return nil
}

func (s *SQLite) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM quiz_history ORDER BY end_time DESC, history_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}

		var r Record
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func (s *SQLite) Get(ctx context.Context, id string) (*Record, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM quiz_history WHERE history_id = ?`, id).Scan(&doc)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("history not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	var r Record
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	return &r, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}
