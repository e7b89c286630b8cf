package engine

import (
	"context"
	"strconv"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/telemetry"
)

// vote records a joined player's answer to the open question, at most once per question.
func (e *Engine) vote(_ context.Context, s *tx, id, option string) outcome {
	p, ok := s.Players[id]
	if !ok || s.Phase != domain.PhaseQuestion {
		return ignored
	}

	index := s.CurrentQuestionIndex
	q, ok := s.CurrentQuestion()
	if !ok || !q.HasOption(option) {
		return ignored
	}

	if _, voted := p.Votes[index]; voted || p.LastVotedQuestionIndex == index {
		return ignored
	}

	now := e.now()
	elapsed := now.Sub(s.QuestionStartTime)
	if elapsed < 0 {
		elapsed = 0
	}

	correct := option == q.CorrectAnswer
	points := score.Award(elapsed, s.TimeLimit(), correct)

	q.Tally[option]++
	p.LastVotedQuestionIndex = index
	p.Votes[index] = domain.Vote{
		Option:         option,
		ElapsedSeconds: elapsed.Seconds(),
		PointsAwarded:  points,
	}
	p.Score += points

	telemetry.VotesRecorded.WithLabelValues(strconv.FormatBool(correct)).Inc()

	s.emit(domain.EventScoreUpdated{
		SessionCode: s.Code,
		Nickname:    p.Nickname,
		TotalScore:  p.Score,
		UpdateTime:  now,
	})

	return applied
}
