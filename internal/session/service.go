package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/store"
)

const (
	defaultTimerSeconds = 30
	defaultCodeLength   = 4
	defaultQuizName     = "Unnamed Quiz"
	maxCodeAttempts     = 100

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// QuestionBank resolves stored questions by id, in the order requested.
type QuestionBank interface {
	GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
}

type Config struct {
	Store               store.Store
	Bank                QuestionBank
	DefaultTimerSeconds int
	CodeLength          int
	Now                 func() time.Time
}

// Service creates sessions. It is the only place a session record is originated, the engine
// only ever mutates existing ones.
type Service struct {
	store        store.Store
	bank         QuestionBank
	timerSeconds int
	codeLength   int
	now          func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:        c.Store,
		bank:         c.Bank,
		timerSeconds: c.DefaultTimerSeconds,
		codeLength:   c.CodeLength,
		now:          c.Now,
	}

	if s.timerSeconds <= 0 {
		s.timerSeconds = defaultTimerSeconds
	}
	if s.codeLength <= 0 {
		s.codeLength = defaultCodeLength
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// QuestionInput is a question written inline when creating a session.
type QuestionInput struct {
	Text          string
	Options       []string
	CorrectAnswer string
	Tags          []string
}

// CreateSessionRequest represents a request to create a new quiz session.
type CreateSessionRequest struct {
	QuizName string
	// TimerSeconds is the time limit of every question, the service default when zero.
	TimerSeconds int
	// QuestionIDs are question bank ids, their questions come first.
	QuestionIDs []string
	Questions   []QuestionInput
}

// CreateSession validates the questions and stores a new session in LOBBY under a fresh code.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	if req.TimerSeconds < 0 {
		return nil, errors.InvalidArgument("timer must be positive: %d", req.TimerSeconds)
	}

	questions, err := s.collectQuestions(ctx, req)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.QuizName)
	if name == "" {
		name = defaultQuizName
	}

	timerSeconds := req.TimerSeconds
	if timerSeconds == 0 {
		timerSeconds = s.timerSeconds
	}

	ss := &domain.Session{
		Phase:                domain.PhaseLobby,
		Questions:            questions,
		CurrentQuestionIndex: -1,
		Players:              make(map[string]*domain.Player),
		TimerSeconds:         timerSeconds,
		QuizName:             name,
		CreateTime:           s.now(),
	}

	if err := s.insertSession(ctx, ss); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session: created",
		"session", ss.Code,
		"quiz", ss.QuizName,
		"questions", len(ss.Questions),
		"timer", ss.TimerSeconds,
	)

	return ss, nil
}

func (s *Service) collectQuestions(ctx context.Context, req CreateSessionRequest) ([]domain.Question, error) {
	var questions []domain.Question

	if len(req.QuestionIDs) > 0 {
		if s.bank == nil {
			return nil, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("question bank is not configured"))
		}

		qs, err := s.bank.GetQuestions(ctx, req.QuestionIDs)
		if err != nil {
			return nil, fmt.Errorf("get questions from bank: %w", err)
		}

		for _, q := range qs {
			if err := validateQuestion(q.Text, q.Options, q.CorrectAnswer); err != nil {
				return nil, err
			}
			questions = append(questions, domain.NewQuestion(q.Text, q.Options, q.CorrectAnswer, q.Tags))
		}
	}

	for _, in := range req.Questions {
		text := strings.TrimSpace(in.Text)
		options := make([]string, 0, len(in.Options))
		for _, o := range in.Options {
			options = append(options, strings.TrimSpace(o))
		}
		correct := strings.TrimSpace(in.CorrectAnswer)

		if err := validateQuestion(text, options, correct); err != nil {
			return nil, err
		}

		questions = append(questions, domain.NewQuestion(text, options, correct, normalizeTags(in.Tags)))
	}

	if len(questions) == 0 {
		return nil, errors.InvalidArgument("a quiz needs at least one question")
	}

	return questions, nil
}

func validateQuestion(text string, options []string, correct string) error {
	if text == "" {
		return errors.InvalidArgument("question text is required")
	}
	if len(options) < 2 {
		return errors.InvalidArgument("question %q needs at least 2 options", text)
	}

	seen := make(map[string]bool, len(options))
	for _, o := range options {
		if o == "" {
			return errors.InvalidArgument("question %q has an empty option", text)
		}
		if seen[o] {
			return errors.InvalidArgument("question %q has duplicate option %q", text, o)
		}
		seen[o] = true
	}

	if !seen[correct] {
		return errors.InvalidArgument("correct answer of question %q must be one of the options", text)
	}

	return nil
}

func normalizeTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// insertSession assigns a code unused among active sessions and saves the record.
func (s *Service) insertSession(ctx context.Context, ss *domain.Session) error {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.generateCode()
		if err != nil {
			return fmt.Errorf("generate session code: %w", err)
		}

		ok, err := s.trySave(ctx, code, ss)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	return errors.New(errors.CodeInternal, errors.WithMessagef("no free session code after %d attempts", maxCodeAttempts))
}

func (s *Service) trySave(ctx context.Context, code string, ss *domain.Session) (bool, error) {
	unlock, err := s.store.Lock(ctx, code)
	if err != nil {
		return false, fmt.Errorf("lock session %s: %w", code, err)
	}
	defer unlock()

	exists, err := s.store.Exists(ctx, code)
	if err != nil {
		return false, fmt.Errorf("check session %s: %w", code, err)
	}
	if exists {
		return false, nil
	}

	ss.Code = code
	if err := s.store.Save(ctx, code, ss); err != nil {
		return false, fmt.Errorf("save session %s: %w", code, err)
	}

	return true, nil
}

func (s *Service) generateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, s.codeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

type GetSessionRequest struct {
	Code string
}

// GetSession returns the session stored under a code, codes are case-insensitive.
func (s *Service) GetSession(ctx context.Context, req GetSessionRequest) (*domain.Session, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, errors.InvalidArgument("session code is required")
	}

	return s.store.Get(ctx, code)
}
