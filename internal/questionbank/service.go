// Package questionbank reads stored questions. Writing the bank is handled elsewhere.
package questionbank

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

// Question is a stored question with its bank id.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Tags          []string `json:"tags"`
}

// GetQuestions returns the questions with the given ids, in the same order.
func (s *Service) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, text, options, correct_answer, tags
FROM questions
WHERE question_id = ANY($1);`

	rows, err := s.db.Query(ctx, stmt, ids)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}

	qs, err := pgx.CollectRows(rows, scanQuestion)
	if err != nil {
		return nil, fmt.Errorf("collect questions: %w", err)
	}

	byID := make(map[string]Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}

	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, errors.NotFound("question not found: %s", id)
		}
		out = append(out, domain.NewQuestion(q.Text, q.Options, q.CorrectAnswer, q.Tags))
	}

	return out, nil
}

type ListQuestionsRequest struct {
	// Tags filters questions carrying any of them, case-insensitive. Empty lists everything.
	Tags []string
}

func (s *Service) ListQuestions(ctx context.Context, req ListQuestionsRequest) ([]Question, error) {
	var tags []string
	for _, t := range req.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}

	const (
		allStmt = `
SELECT question_id, text, options, correct_answer, tags
FROM questions
ORDER BY text;`

		taggedStmt = `
SELECT question_id, text, options, correct_answer, tags
FROM questions
WHERE tags && $1
ORDER BY text;`
	)

	var (
		rows pgx.Rows
		err  error
	)
	if len(tags) == 0 {
		rows, err = s.db.Query(ctx, allStmt)
	} else {
		rows, err = s.db.Query(ctx, taggedStmt, tags)
	}
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}

	return pgx.CollectRows(rows, scanQuestion)
}

func scanQuestion(r pgx.CollectableRow) (Question, error) {
	var q Question
	if err := r.Scan(&q.ID, &q.Text, &q.Options, &q.CorrectAnswer, &q.Tags); err != nil {
		return Question{}, err
	}
	return q, nil
}
