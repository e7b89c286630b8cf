// Package history archives finished quizzes.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/telemetry"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Record is the durable history of one finished quiz.
type Record struct {
	ID               string           `json:"id"`
	QuizName         string           `json:"quiz_name"`
	SessionCode      string           `json:"session_code"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	Questions        []QuestionResult `json:"questions"`
	FinalLeaderboard map[string]int   `json:"final_leaderboard"`
	TotalPlayers     int              `json:"total_players"`
}

type QuestionResult struct {
	QuestionText  string         `json:"question_text"`
	Options       []string       `json:"options"`
	CorrectAnswer string         `json:"correct_answer"`
	PlayerAnswers []PlayerAnswer `json:"player_answers"`
	TotalVotes    map[string]int `json:"total_votes"`
}

type PlayerAnswer struct {
	Nickname       string  `json:"nickname"`
	Answer         string  `json:"answer"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Correct        bool    `json:"correct"`
	PointsEarned   int     `json:"points_earned"`
}

//go:generate mockgen -destination=mocks/store.go -package=mocks github.com/victornm/livequiz/internal/history Store

// Store persists history records.
type Store interface {
	Insert(ctx context.Context, r Record) error
	// List returns the most recently finished quizzes first.
	List(ctx context.Context, limit int) ([]Record, error)
	Get(ctx context.Context, id string) (*Record, error)
}

type Config struct {
	EventBus *event.Bus
	Store    Store
}

type Service struct {
	store Store
}

// NewService creates the archiver and subscribes it to finished sessions.
func NewService(c Config) *Service {
	s := &Service{store: c.Store}

	if c.EventBus != nil {
		event.Listen(c.EventBus, func(ctx context.Context, e domain.EventSessionFinished) error {
			_, err := s.SaveCompletedQuiz(ctx, e.Session.Code, e.Session.QuizName, &e.Session, e.EndTime)
			return err
		})
	}

	return s
}

// SaveCompletedQuiz archives the snapshot of a finished session and returns the record id.
func (s *Service) SaveCompletedQuiz(ctx context.Context, code, quizName string, snap *domain.Session, endTime time.Time) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("history: generate id: %w", err)
	}

	if quizName == "" {
		quizName = fmt.Sprintf("Quiz %s", code)
	}

	r := BuildRecord(snap, endTime)
	r.ID = id.String()
	r.SessionCode = code
	r.QuizName = quizName

	if err := s.store.Insert(ctx, r); err != nil {
		telemetry.ArchiveFailures.Inc()
		return "", fmt.Errorf("history: archive session %s: %w", code, err)
	}

	slog.InfoContext(ctx, "history: quiz archived", "session", code, "quiz", quizName, "id", r.ID)
	return r.ID, nil
}

// BuildRecord summarizes a finished session: every recorded vote per question and the final
// leaderboard of all players, online or not.
func BuildRecord(snap *domain.Session, endTime time.Time) Record {
	ids := make([]string, 0, len(snap.Players))
	for id := range snap.Players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return snap.Players[ids[i]].Nickname < snap.Players[ids[j]].Nickname
	})

	questions := make([]QuestionResult, 0, len(snap.Questions))
	for i, q := range snap.Questions {
		answers := make([]PlayerAnswer, 0)
		for _, id := range ids {
			p := snap.Players[id]
			v, ok := p.Votes[i]
			if !ok {
				continue
			}
			answers = append(answers, PlayerAnswer{
				Nickname:       p.Nickname,
				Answer:         v.Option,
				ElapsedSeconds: v.ElapsedSeconds,
				Correct:        v.Option == q.CorrectAnswer,
				PointsEarned:   v.PointsAwarded,
			})
		}

		votes := make(map[string]int, len(q.Options))
		for _, o := range q.Options {
			votes[o] = q.Tally[o]
		}

		questions = append(questions, QuestionResult{
			QuestionText:  q.Text,
			Options:       append([]string(nil), q.Options...),
			CorrectAnswer: q.CorrectAnswer,
			PlayerAnswers: answers,
			TotalVotes:    votes,
		})
	}

	leaderboard := make(map[string]int, len(snap.Players))
	for _, p := range snap.Players {
		leaderboard[p.Nickname] = p.Score
	}

	start := snap.QuizStartTime
	if start.IsZero() {
		start = endTime
	}

	return Record{
		QuizName:         snap.QuizName,
		SessionCode:      snap.Code,
		StartTime:        start.UTC(),
		EndTime:          endTime.UTC(),
		Questions:        questions,
		FinalLeaderboard: leaderboard,
		TotalPlayers:     len(snap.Players),
	}
}

type ListHistoryRequest struct {
	Limit int
}

func (s *Service) ListHistory(ctx context.Context, req ListHistoryRequest) ([]Record, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	return s.store.List(ctx, limit)
}

type GetHistoryRequest struct {
	ID string
}

func (s *Service) GetHistory(ctx context.Context, req GetHistoryRequest) (*Record, error) {
	if req.ID == "" {
		return nil, errors.InvalidArgument("history id is required")
	}

	return s.store.Get(ctx, req.ID)
}
