// Package leaderboard keeps a redis-backed ranking of player scores per session.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
)

const (
	defaultPublishInterval = 200 * time.Millisecond
	defaultRetention       = 24 * time.Hour

	// windowKeyTTL releases a window whose owner died before publishing.
	windowKeyTTL = 10 * time.Second
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	// Retention is how long a finished session's leaderboard is kept.
	Retention time.Duration
	// PublishInterval is the window collecting score updates into one leaderboard.updated.
	PublishInterval time.Duration
}

type Service struct {
	eb        *event.Bus
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	interval  time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		eb:        c.EventBus,
		redis:     c.Redis,
		prefix:    c.Prefix,
		retention: c.Retention,
		interval:  c.PublishInterval,
	}
	if s.retention <= 0 {
		s.retention = defaultRetention
	}
	if s.interval <= 0 {
		s.interval = defaultPublishInterval
	}

	event.Listen(s.eb, s.UpdateLeaderboard)
	event.Listen(s.eb, func(ctx context.Context, e domain.EventSessionFinished) error {
		return s.expireLeaderboard(ctx, e.Session.Code)
	})

	return s
}

type GetLeaderboardRequest struct {
	SessionCode string
}

// GetLeaderboard returns every player of a session who has scored, highest first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.SessionCode), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.NotFound("leaderboard not found: session=%s", req.SessionCode)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			Nickname: z.Member.(string),
			Score:    z.Score,
		})
	}

	return &domain.Leaderboard{
		SessionCode: req.SessionCode,
		Entries:     entries,
	}, nil
}

// UpdateLeaderboard overwrites the player's score in the leaderboard.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventScoreUpdated) error {
	if err := s.redis.ZAdd(ctx, s.getLeaderboardKey(e.SessionCode), redis.Z{
		Score:  float64(e.TotalScore),
		Member: e.Nickname,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, e)
}

// schedulePublishLeaderboard publishes at most one leaderboard.updated per session and window.
// The update opening a window publishes when it closes, so every score written during the
// window is included. Votes tend to arrive in bursts right after a question opens.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, e domain.EventScoreUpdated) error {
	// SetNX keeps multiple instances from publishing the same window.
	key := s.getLeaderboardTimeKey(e.SessionCode)
	ok, err := s.redis.SetNX(ctx, key, e.UpdateTime.UnixMilli(), windowKeyTTL).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	t := time.NewTimer(s.interval)
	defer t.Stop()

	select {
	case <-ctx.Done():
		_ = s.redis.Del(context.WithoutCancel(ctx), key).Err()
		return ctx.Err()
	case <-t.C:
	}

	// Scores are written before SetNX, so an update that lost the window is already in the
	// sorted set once the window key is gone. Later updates open the next window.
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("close window: %w", err)
	}

	return s.publishLeaderboard(ctx, e.SessionCode)
}

func (s *Service) publishLeaderboard(ctx context.Context, code string) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		SessionCode: code,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: session=%s: %w", code, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) expireLeaderboard(ctx context.Context, code string) error {
	if err := s.redis.Expire(ctx, s.getLeaderboardKey(code), s.retention).Err(); err != nil {
		return fmt.Errorf("expire leaderboard: session=%s: %w", code, err)
	}

	return nil
}

func (s *Service) getLeaderboardKey(code string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, code)
}

func (s *Service) getLeaderboardTimeKey(code string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, code)
}
