package domain

import "time"

const (
	EventNameSessionFinished    = "session.finished"
	EventNameScoreUpdated       = "score.updated"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// EventSessionFinished carries the terminal snapshot of a session that reached FINISHED.
type EventSessionFinished struct {
	Session Session
	EndTime time.Time
}

func (EventSessionFinished) Name() string { return EventNameSessionFinished }

type EventScoreUpdated struct {
	SessionCode string
	Nickname    string
	TotalScore  int
	UpdateTime  time.Time
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
