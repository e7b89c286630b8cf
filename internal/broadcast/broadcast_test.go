package broadcast_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/broadcast"
	"github.com/victornm/livequiz/internal/domain"
)

func makeSession(phase domain.Phase, index int) *domain.Session {
	s := &domain.Session{
		Code:                 "ABCD",
		Phase:                phase,
		CurrentQuestionIndex: index,
		TimerSeconds:         30,
		Questions: []domain.Question{
			domain.NewQuestion("Capital of France?", []string{"London", "Berlin", "Paris", "Madrid"}, "Paris", nil),
			domain.NewQuestion("2+2?", []string{"3", "4", "5", "6"}, "4", nil),
		},
		Players: map[string]*domain.Player{},
	}

	alice := domain.NewPlayer("Presenter")
	bob := domain.NewPlayer("Bob")
	bob.Score = 833
	carol := domain.NewPlayer("Carol")
	carol.Online = false
	carol.Score = 1000

	s.Players["p1"], s.Players["p2"], s.Players["p3"] = alice, bob, carol
	s.PresenterID = "p1"
	return s
}

func TestCompose(t *testing.T) {
	tests := map[string]struct {
		session func() *domain.Session
		assert  func(t *testing.T, raw map[string]any, v broadcast.View)
	}{
		"lobby view only carries audience and scores": {
			session: func() *domain.Session { return makeSession(domain.PhaseLobby, -1) },
			assert: func(t *testing.T, raw map[string]any, v broadcast.View) {
				assert.Equal(t, 2, v.AudienceCount, "offline players are not counted")
				assert.Equal(t, map[string]broadcast.PlayerScore{
					"Presenter": {Score: 0},
					"Bob":       {Score: 833},
				}, v.Players)
				assert.NotContains(t, raw, "question")
				assert.NotContains(t, raw, "results")
			},
		},

		"question view carries the question in creation order but no results": {
			session: func() *domain.Session {
				s := makeSession(domain.PhaseQuestion, 0)
				s.Questions[0].Tally["Paris"] = 1
				return s
			},
			assert: func(t *testing.T, raw map[string]any, v broadcast.View) {
				require.NotNil(t, v.QuestionView)
				assert.Equal(t, "Capital of France?", v.Question)
				assert.Equal(t, []string{"London", "Berlin", "Paris", "Madrid"}, v.Options)
				assert.Equal(t, 0, v.QuestionIndex)
				assert.Equal(t, 2, v.TotalQuestions)
				assert.Equal(t, 30, v.Timer)
				assert.Contains(t, raw, "question_index", "index 0 must still be sent")
				assert.NotContains(t, raw, "results", "in-flight tallies are hidden")
				assert.NotContains(t, raw, "correct_answer")
			},
		},

		"results view adds tally and correct answer": {
			session: func() *domain.Session {
				s := makeSession(domain.PhaseResults, 1)
				s.Questions[1].Tally["4"] = 2
				return s
			},
			assert: func(t *testing.T, raw map[string]any, v broadcast.View) {
				require.NotNil(t, v.ResultsView)
				assert.Equal(t, map[string]int{"3": 0, "4": 2, "5": 0, "6": 0}, v.Results)
				assert.Equal(t, "4", v.CorrectAnswer)
				assert.Len(t, v.Scores, 2)
				assert.Equal(t, "RESULTS", raw["state"])
			},
		},

		"finished view drops question data": {
			session: func() *domain.Session { return makeSession(domain.PhaseFinished, 1) },
			assert: func(t *testing.T, raw map[string]any, v broadcast.View) {
				assert.Nil(t, v.QuestionView)
				assert.Nil(t, v.ResultsView)
				assert.Equal(t, "FINISHED", raw["state"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			v := broadcast.Compose(tt.session())

			b, err := json.Marshal(v)
			require.NoError(t, err)
			var raw map[string]any
			require.NoError(t, json.Unmarshal(b, &raw))

			tt.assert(t, raw, v)
		})
	}
}

func TestCompose_DoesNotShareState(t *testing.T) {
	s := makeSession(domain.PhaseResults, 0)
	v := broadcast.Compose(s)

	v.Options[0] = "changed"
	v.Results["Paris"] = 42

	assert.Equal(t, "London", s.Questions[0].Options[0])
	assert.Equal(t, 0, s.Questions[0].Tally["Paris"])
}
