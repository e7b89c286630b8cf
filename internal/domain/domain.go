package domain

import (
	"slices"
	"time"
)

// Phase is the session-wide state machine value.
type Phase string

const (
	PhaseLobby    Phase = "LOBBY"
	PhaseQuestion Phase = "QUESTION"
	PhaseResults  Phase = "RESULTS"
	PhaseFinished Phase = "FINISHED"
)

// Session represents one live quiz instance, identified by its short code.
type Session struct {
	Code                 string             `json:"code"`
	Phase                Phase              `json:"phase"`
	PresenterID          string             `json:"presenter_id,omitempty"`
	Questions            []Question         `json:"questions"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	Players              map[string]*Player `json:"players"`
	TimerSeconds         int                `json:"timer_seconds"`
	QuestionStartTime    time.Time          `json:"question_start_time"`
	QuizName             string             `json:"quiz_name"`
	QuizStartTime        time.Time          `json:"quiz_start_time"`
	CreateTime           time.Time          `json:"create_time"`
}

// Player is one participant's identity and progress within a session.
// The entry survives a disconnect so score and votes can be restored on reconnect.
type Player struct {
	Nickname               string       `json:"nickname"`
	Score                  int          `json:"score"`
	LastVotedQuestionIndex int          `json:"last_voted_question_index"`
	Votes                  map[int]Vote `json:"votes"`
	Online                 bool         `json:"online"`
}

type Question struct {
	Text          string         `json:"text"`
	Options       []string       `json:"options"`
	Tally         map[string]int `json:"tally"`
	CorrectAnswer string         `json:"correct_answer"`
	Tags          []string       `json:"tags,omitempty"`
}

// Vote is one player's answer to one question, never mutated after creation.
type Vote struct {
	Option         string  `json:"option"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	PointsAwarded  int     `json:"points_awarded"`
}

// NewPlayer returns a fresh online player that has not voted yet.
func NewPlayer(nickname string) *Player {
	return &Player{
		Nickname:               nickname,
		LastVotedQuestionIndex: -1,
		Votes:                  make(map[int]Vote),
		Online:                 true,
	}
}

// NewQuestion returns a question with a zeroed tally for every option.
func NewQuestion(text string, options []string, correct string, tags []string) Question {
	tally := make(map[string]int, len(options))
	for _, o := range options {
		tally[o] = 0
	}

	return Question{
		Text:          text,
		Options:       slices.Clone(options),
		Tally:         tally,
		CorrectAnswer: correct,
		Tags:          slices.Clone(tags),
	}
}

func (q *Question) HasOption(option string) bool {
	return slices.Contains(q.Options, option)
}

// CurrentQuestion returns the question at the current index, if the index is valid.
func (s *Session) CurrentQuestion() (*Question, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return nil, false
	}

	return &s.Questions[s.CurrentQuestionIndex], true
}

// FindPlayer returns the id and record of the player using nickname.
func (s *Session) FindPlayer(nickname string) (string, *Player, bool) {
	for id, p := range s.Players {
		if p.Nickname == nickname {
			return id, p, true
		}
	}

	return "", nil, false
}

// OnlinePlayers returns the players currently connected, keyed by participant id.
func (s *Session) OnlinePlayers() map[string]*Player {
	online := make(map[string]*Player, len(s.Players))
	for id, p := range s.Players {
		if p.Online {
			online[id] = p
		}
	}

	return online
}

func (s *Session) TimeLimit() time.Duration {
	return time.Duration(s.TimerSeconds) * time.Second
}

// Clone returns a deep copy so callers can't mutate a stored record through shared maps.
func (s *Session) Clone() *Session {
	c := *s

	c.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = slices.Clone(q.Options)
		q.Tags = slices.Clone(q.Tags)
		tally := make(map[string]int, len(q.Tally))
		for k, v := range q.Tally {
			tally[k] = v
		}
		q.Tally = tally
		c.Questions[i] = q
	}

	c.Players = make(map[string]*Player, len(s.Players))
	for id, p := range s.Players {
		cp := *p
		cp.Votes = make(map[int]Vote, len(p.Votes))
		for k, v := range p.Votes {
			cp.Votes[k] = v
		}
		c.Players[id] = &cp
	}

	return &c
}

// Leaderboard represents players and their scores within a quiz session.
// The list is sorted by score in descending order.
type Leaderboard struct {
	SessionCode string
	Entries     []LeaderboardEntry
}

type LeaderboardEntry struct {
	Nickname string
	Score    float64
}
