package event_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	finished := domain.EventSessionFinished{Session: domain.Session{Code: "ABCD"}}
	scored := domain.EventScoreUpdated{SessionCode: "ABCD", Nickname: "Bob", TotalScore: 833}

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a subscriber should only receive the events it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{finished, scored},
					subscribers: []subscriber{
						{name: "history", subscribeTo: []string{domain.EventNameSessionFinished}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{finished}, out.received["history"])
			},
		},

		"an event should be dispatched to every subscriber": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{scored},
					subscribers: []subscriber{
						{name: "leaderboard", subscribeTo: []string{domain.EventNameScoreUpdated}},
						{name: "metrics", subscribeTo: []string{domain.EventNameScoreUpdated}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{scored}, out.received["leaderboard"])
				assert.ElementsMatch(t, []event.Event{scored}, out.received["metrics"])
			},
		},

		"repeated events should all be delivered": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{scored, finished, scored},
					subscribers: []subscriber{
						{name: "all", subscribeTo: []string{domain.EventNameScoreUpdated, domain.EventNameSessionFinished}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{scored, scored, finished}, out.received["all"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus()
			for _, s := range in.subscribers {
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

func TestListen(t *testing.T) {
	b := event.NewBus()

	var got domain.EventScoreUpdated
	event.Listen(b, func(_ context.Context, e domain.EventScoreUpdated) error {
		got = e
		return nil
	})

	b.Publish(context.Background(), domain.EventScoreUpdated{Nickname: "Alice", TotalScore: 1000})
	b.Stop()

	assert.Equal(t, "Alice", got.Nickname)
	assert.Equal(t, 1000, got.TotalScore)
}

func TestBus_HandlerFailureIsIsolated(t *testing.T) {
	b := event.NewBus(event.WithPoolSize(2), event.WithTimeout(time.Second))

	var calls atomic.Int32
	b.Subscribe("e", func(context.Context, event.Event) error {
		calls.Add(1)
		panic("boom")
	})
	b.Subscribe("e", func(context.Context, event.Event) error {
		calls.Add(1)
		return errors.New("failed")
	})
	b.Subscribe("e", func(context.Context, event.Event) error {
		calls.Add(1)
		return nil
	})

	b.Publish(context.Background(), eventWithName("e"))
	b.Stop()

	require.EqualValues(t, 3, calls.Load())
}

func TestBus_HandlerOutlivesPublisherContext(t *testing.T) {
	b := event.NewBus()

	ctx, cancel := context.WithCancel(context.Background())

	var handlerErr error
	b.Subscribe("e", func(ctx context.Context, _ event.Event) error {
		time.Sleep(10 * time.Millisecond)
		handlerErr = ctx.Err()
		return nil
	})

	b.Publish(ctx, eventWithName("e"))
	cancel()
	b.Stop()

	assert.NoError(t, handlerErr)
}

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
}
