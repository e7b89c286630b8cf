// Package broadcast derives the state payload pushed to every participant of a session.
package broadcast

import (
	"slices"

	"github.com/victornm/livequiz/internal/domain"
)

const (
	TypeJoinError = "join_error"

	DuplicateJoinMessage = "You are already joined from another device. Please disconnect from the other device first."
)

// View is the state payload. Presenter and audience receive the same view, clients render the
// control or the audience screen from it. Question and results fields are only present in
// the phases that show them.
type View struct {
	AudienceCount int                    `json:"audience_count"`
	State         domain.Phase           `json:"state"`
	Players       map[string]PlayerScore `json:"players"`

	*QuestionView
	*ResultsView
}

type QuestionView struct {
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	QuestionIndex  int      `json:"question_index"`
	TotalQuestions int      `json:"total_questions"`
	Timer          int      `json:"timer"`
}

type ResultsView struct {
	Results       map[string]int         `json:"results"`
	CorrectAnswer string                 `json:"correct_answer"`
	Scores        map[string]PlayerScore `json:"scores"`
}

type PlayerScore struct {
	Score int `json:"score"`
}

// JoinError is sent only to a participant whose join was rejected.
type JoinError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewJoinError(msg string) JoinError {
	return JoinError{Type: TypeJoinError, Message: msg}
}

// Compose builds the view of s. Only online players are counted and listed; options keep
// the order they were created in. The result shares nothing with s.
func Compose(s *domain.Session) View {
	online := s.OnlinePlayers()

	v := View{
		AudienceCount: len(online),
		State:         s.Phase,
		Players:       scores(online),
	}

	if s.Phase != domain.PhaseQuestion && s.Phase != domain.PhaseResults {
		return v
	}

	q, ok := s.CurrentQuestion()
	if !ok {
		return v
	}

	v.QuestionView = &QuestionView{
		Question:       q.Text,
		Options:        slices.Clone(q.Options),
		QuestionIndex:  s.CurrentQuestionIndex,
		TotalQuestions: len(s.Questions),
		Timer:          s.TimerSeconds,
	}

	if s.Phase == domain.PhaseResults {
		tally := make(map[string]int, len(q.Options))
		for _, o := range q.Options {
			tally[o] = q.Tally[o]
		}

		v.ResultsView = &ResultsView{
			Results:       tally,
			CorrectAnswer: q.CorrectAnswer,
			Scores:        scores(online),
		}
	}

	return v
}

func scores(players map[string]*domain.Player) map[string]PlayerScore {
	m := make(map[string]PlayerScore, len(players))
	for _, p := range players {
		m[p.Nickname] = PlayerScore{Score: p.Score}
	}
	return m
}
