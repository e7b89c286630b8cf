// Package api exposes the quiz over HTTP, WebSocket and gRPC, and forwards leaderboard
// notifications to redis pubsub.
package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/engine"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/history"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/questionbank"
	"github.com/victornm/livequiz/internal/session"
)

type Config struct {
	GRPC         *grpc.Server
	HTTP         gin.IRouter
	EventBus     *event.Bus
	Engine       *engine.Engine
	Session      *session.Service
	Leaderboard  *leaderboard.Service
	History      *history.Service
	QuestionBank QuestionBank
	Redis        Redis
	PubsubPrefix string
	// PublicURL is the externally reachable base URL used in join links. When empty, it is
	// derived from the incoming request.
	PublicURL string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type QuestionBank interface {
	ListQuestions(ctx context.Context, req questionbank.ListQuestionsRequest) ([]questionbank.Question, error)
}

type API struct {
	engine *engine.Engine
	ss     *session.Service
	ls     *leaderboard.Service
	hs     *history.Service
	qb     QuestionBank

	redis     Redis
	prefix    string
	publicURL string
}

func New(c Config) *API {
	a := &API{
		engine:    c.Engine,
		ss:        c.Session,
		ls:        c.Leaderboard,
		hs:        c.History,
		qb:        c.QuestionBank,
		redis:     c.Redis,
		prefix:    c.PubsubPrefix,
		publicURL: c.PublicURL,
	}

	// gRPC APIs
	if c.GRPC != nil {
		RegisterSessionServiceServer(c.GRPC, a)
	}

	// HTTP and WebSocket APIs
	if c.HTTP != nil {
		a.registerRoutes(c.HTTP)
	}

	// Register event handlers
	if c.EventBus != nil && c.Redis != nil {
		event.Listen(c.EventBus, func(ctx context.Context, e domain.EventLeaderboardUpdated) error {
			return a.PublishLeaderboardUpdated(ctx, e)
		})
	}

	return a
}
