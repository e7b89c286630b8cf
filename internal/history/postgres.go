package history

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/livequiz/internal/errors"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS quiz_history (
	history_id    uuid PRIMARY KEY,
	session_code  text NOT NULL,
	quiz_name     text NOT NULL,
	start_time    timestamptz NOT NULL,
	end_time      timestamptz NOT NULL,
	total_players integer NOT NULL,
	record        jsonb NOT NULL
);
CREATE INDEX IF NOT EXISTS quiz_history_end_time_idx ON quiz_history (end_time DESC);
CREATE TABLE IF NOT EXISTS quiz_history_scores (
	history_id uuid NOT NULL REFERENCES quiz_history (history_id) ON DELETE CASCADE,
	nickname   text NOT NULL,
	score      integer NOT NULL,
	PRIMARY KEY (history_id, nickname)
);`

const (
	insHistoryStmt = `
INSERT INTO quiz_history (history_id, session_code, quiz_name, start_time, end_time, total_players, record)
VALUES ($1, $2, $3, $4, $5, $6, $7);`
	insScoreStmt = `INSERT INTO quiz_history_scores (history_id, nickname, score) VALUES ($1, $2, $3);`
)

// Postgres stores history records in the quiz_history table, with the final scores
// duplicated into quiz_history_scores for reporting.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the history tables if they don't exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}

	return nil
}

func (p *Postgres) Insert(ctx context.Context, r Record) (err error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	_, err = tx.Exec(ctx, insHistoryStmt, r.ID, r.SessionCode, r.QuizName, r.StartTime, r.EndTime, r.TotalPlayers, doc)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	batch := &pgx.Batch{}
	for nickname, score := range r.FinalLeaderboard {
		batch.Queue(insScoreStmt, r.ID, nickname, score)
	}
	if batch.Len() > 0 {
		if err = tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert scores: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (p *Postgres) List(ctx context.Context, limit int) ([]Record, error) {
	const stmt = `SELECT record FROM quiz_history ORDER BY end_time DESC LIMIT $1;`

	rows, err := p.db.Query(ctx, stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("collect history: %w", err)
	}

	return records, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*Record, error) {
	const stmt = `SELECT record FROM quiz_history WHERE history_id = $1;`

	rows, err := p.db.Query(ctx, stmt, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	r, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("history not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("collect history: %w", err)
	}

	return &r, nil
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var (
		doc []byte
		r   Record
	)
	if err := row.Scan(&doc); err != nil {
		return r, err
	}

	if err := json.Unmarshal(doc, &r); err != nil {
		return r, fmt.Errorf("unmarshal record: %w", err)
	}

	return r, nil
}
