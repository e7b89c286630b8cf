package engine

import (
	"context"
	"log/slog"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/telemetry"
)

// command applies a presenter command. The caller has already checked the sender's role.
func (e *Engine) command(ctx context.Context, s *tx, typ string) outcome {
	if s.Phase == domain.PhaseFinished {
		return ignored
	}

	switch typ {
	case TypeStartQuiz:
		if s.Phase != domain.PhaseLobby {
			return ignored
		}

		s.QuizStartTime = e.now()
		s.CurrentQuestionIndex = 0
		e.startQuestion(ctx, s)
		return applied

	case TypeShowResults:
		if s.Phase != domain.PhaseQuestion {
			return ignored
		}

		e.timers.Cancel(s.Code)
		s.Phase = domain.PhaseResults
		return applied

	case TypeNextQuestion:
		e.timers.Cancel(s.Code)

		if s.CurrentQuestionIndex+1 < len(s.Questions) {
			if s.QuizStartTime.IsZero() {
				s.QuizStartTime = e.now()
			}
			s.CurrentQuestionIndex++
			e.startQuestion(ctx, s)
			return applied
		}

		e.finish(ctx, s)
		return applied
	}

	return ignored
}

// startQuestion opens the question at the current index and schedules its expiry,
// replacing any timer still pending for the session.
func (e *Engine) startQuestion(ctx context.Context, s *tx) {
	s.Phase = domain.PhaseQuestion
	s.QuestionStartTime = e.now()

	e.timers.Schedule(s.Code, s.CurrentQuestionIndex, s.TimeLimit(), e.expire)

	slog.InfoContext(ctx, "engine: question started",
		"session", s.Code,
		"index", s.CurrentQuestionIndex,
		"total", len(s.Questions),
	)
}

// finish moves the session to its terminal phase and hands a snapshot to the archiver.
// Archiving runs on the event bus, its failure never affects the session.
func (e *Engine) finish(ctx context.Context, s *tx) {
	s.Phase = domain.PhaseFinished

	s.emit(domain.EventSessionFinished{
		Session: *s.Clone(),
		EndTime: e.now(),
	})

	slog.InfoContext(ctx, "engine: quiz finished", "session", s.Code, "players", len(s.Players))
}

// expire is fired by the question timer. It only acts if the session is still showing the
// question the timer was scheduled for, a presenter may have moved on already.
func (e *Engine) expire(code string, index int) {
	ctx := context.Background()

	err := e.withSession(ctx, code, func(s *tx) (outcome, error) {
		if s.Phase != domain.PhaseQuestion || s.CurrentQuestionIndex != index {
			return ignored, nil
		}

		s.Phase = domain.PhaseResults
		telemetry.TimerExpirations.Inc()
		slog.InfoContext(ctx, "engine: timer expired, showing results", "session", code, "index", index)
		return applied, nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "engine: timer expiry failed", "session", code, "index", index, "error", err)
	}
}
