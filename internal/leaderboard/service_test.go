package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
)

func TestService_UpdateLeaderboard(t *testing.T) {
	s, _ := makeService(t, withPublishInterval(10*time.Millisecond))

	for _, e := range []domain.EventScoreUpdated{
		{SessionCode: "ABCD", Nickname: "Alice", TotalScore: 950, UpdateTime: time.Now()},
		{SessionCode: "ABCD", Nickname: "Bob", TotalScore: 833, UpdateTime: time.Now()},
		{SessionCode: "ABCD", Nickname: "Bob", TotalScore: 1666, UpdateTime: time.Now()},
	} {
		require.NoError(t, s.UpdateLeaderboard(context.Background(), e))
	}

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		SessionCode: "ABCD",
	})
	require.NoError(t, err)

	want := &domain.Leaderboard{
		SessionCode: "ABCD",
		Entries: []domain.LeaderboardEntry{
			{Nickname: "Bob", Score: 1666},
			{Nickname: "Alice", Score: 950},
		},
	}
	require.Equal(t, want, resp)
}

func TestService_GetLeaderboardNotFound(t *testing.T) {
	s, _ := makeService(t)

	_, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{SessionCode: "ZZZZ"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestService_ExpireOnSessionFinished(t *testing.T) {
	eb := event.NewBus()
	s, rs := makeService(t, withEventBus(eb))

	require.NoError(t, s.UpdateLeaderboard(context.Background(), domain.EventScoreUpdated{
		SessionCode: "ABCD", Nickname: "Alice", TotalScore: 500, UpdateTime: time.Now(),
	}))

	eb.Publish(context.Background(), domain.EventSessionFinished{Session: domain.Session{Code: "ABCD"}})
	eb.Stop()

	assert.Equal(t, 24*time.Hour, rs.TTL(":ABCD:leaderboard"))
}

func TestServer_PublishLeaderboardUpdated(t *testing.T) {
	type (
		inputs struct {
			receivedEvents []domain.EventScoreUpdated
		}

		outputs struct {
			publishedEvents []domain.EventLeaderboardUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"should publish correct event leaderboard.updated after receiving score.updated": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventScoreUpdated{
						{SessionCode: "ABCD", Nickname: "Alice", TotalScore: 1000, UpdateTime: time.Now()},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
				require.Equal(t, domain.Leaderboard{
					SessionCode: "ABCD",
					Entries: []domain.LeaderboardEntry{
						{Nickname: "Alice", Score: 1000},
					},
				}, out.publishedEvents[0].Leaderboard)
			},
		},

		"should publish 2 events leaderboard.updated after receiving events score.updated for 2 different sessions": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventScoreUpdated{
						{SessionCode: "ABCD", Nickname: "Alice", TotalScore: 1000, UpdateTime: time.Now()},
						{SessionCode: "WXYZ", Nickname: "Bob", TotalScore: 750, UpdateTime: time.Now()},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive 2 leaderboard updated event")
			},
		},

		"should publish 1 event leaderboard.updated after receiving events score.updated for the same session within the publish interval": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventScoreUpdated{
						{SessionCode: "ABCD", Nickname: "Alice", TotalScore: 1000, UpdateTime: time.Now()},
						{SessionCode: "ABCD", Nickname: "Bob", TotalScore: 750, UpdateTime: time.Now()},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
				require.Equal(t, domain.Leaderboard{
					SessionCode: "ABCD",
					Entries: []domain.LeaderboardEntry{
						{Nickname: "Alice", Score: 1000},
						{Nickname: "Bob", Score: 750},
					},
				}, out.publishedEvents[0].Leaderboard, "should include every score written during the window")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			event.Listen(eb, func(_ context.Context, e domain.EventLeaderboardUpdated) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e)
				mu.Unlock()
				return nil
			})

			makeService(t, withEventBus(eb))

			for _, e := range in.receivedEvents {
				eb.Publish(context.Background(), e)
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func TestService_PublishLeaderboardPerWindow(t *testing.T) {
	eb := event.NewBus()

	var (
		mu        sync.Mutex
		published []domain.EventLeaderboardUpdated
	)
	event.Listen(eb, func(_ context.Context, e domain.EventLeaderboardUpdated) error {
		mu.Lock()
		published = append(published, e)
		mu.Unlock()
		return nil
	})

	s, rs := makeService(t, withEventBus(eb), withPublishInterval(20*time.Millisecond))

	for _, e := range []domain.EventScoreUpdated{
		{SessionCode: "ABCD", Nickname: "Alice", TotalScore: 500, UpdateTime: time.Now()},
		{SessionCode: "ABCD", Nickname: "Alice", TotalScore: 1400, UpdateTime: time.Now()},
	} {
		require.NoError(t, s.UpdateLeaderboard(context.Background(), e))
	}
	eb.Stop()

	require.Len(t, published, 2, "each closed window should publish once")
	scores := []float64{published[0].Leaderboard.Entries[0].Score, published[1].Leaderboard.Entries[0].Score}
	assert.ElementsMatch(t, []float64{500, 1400}, scores)
	assert.False(t, rs.Exists(":ABCD:time"), "window key should be released after publishing")
}

func makeService(t *testing.T, opts ...options) (*leaderboard.Service, *miniredis.Miniredis) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c), rs
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}

func withPublishInterval(d time.Duration) options {
	return func(c *leaderboard.Config) {
		c.PublishInterval = d
	}
}
