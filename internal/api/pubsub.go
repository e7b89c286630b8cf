package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/victornm/livequiz/internal/domain"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		SessionCode string             `json:"session_code"`
		Entries     []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Rank     int    `json:"rank"`
		Nickname string `json:"nickname"`
		Score    int64  `json:"score"`
	}
)

func toLeaderboard(l domain.Leaderboard) Leaderboard {
	data := Leaderboard{
		SessionCode: l.SessionCode,
		Entries:     make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for i, entry := range l.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			Rank:     i + 1,
			Nickname: entry.Nickname,
			Score:    int64(entry.Score),
		})
	}

	return data
}

// PublishLeaderboardUpdated forwards the leaderboard to the session's pubsub channel, for
// dashboards running outside this process.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := toLeaderboard(e.Leaderboard)
	return a.publishNotification(ctx, data.SessionCode, e.Name(), data)
}

func (a *API) publishNotification(ctx context.Context, code, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, a.channel(code), b).Err()
}

func (a *API) channel(code string) string {
	return fmt.Sprintf("%s:session:%s", a.prefix, code)
}
