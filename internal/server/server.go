package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/engine"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/history"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/questionbank"
	"github.com/victornm/livequiz/internal/registry"
	"github.com/victornm/livequiz/internal/session"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/telemetry"
	"github.com/victornm/livequiz/internal/timer"
)

const (
	StoreDriverMemory = "memory"
	StoreDriverRedis  = "redis"

	HistoryDriverSQLite   = "sqlite"
	HistoryDriverPostgres = "postgres"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type PostgresConfig struct {
	Addr string
	User string
	Pass string
	Name string
}

type Config struct {
	HTTP struct {
		Port int32
		// PublicURL is the base of join links, derived from each request when empty.
		PublicURL string
	}

	GRPC struct {
		Port int32
	}

	Store struct {
		Driver string
	}

	Redis struct {
		Session     RedisConfig
		Leaderboard RedisConfig
		Pubsub      RedisConfig
	}

	Postgres struct {
		QuestionBank PostgresConfig
		History      PostgresConfig
	}

	History struct {
		Driver     string
		SQLitePath string
	}

	Quiz struct {
		DefaultTimerSeconds int
		PresenterName       string
		CodeLength          int
	}
}

// DefaultConfig returns the configuration of a single-node deployment: sessions in memory,
// history in a local SQLite file, no Redis or Postgres.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Store.Driver = StoreDriverMemory
	c.Redis.Session.Prefix = "livequiz"
	c.Redis.Leaderboard.Prefix = "livequiz"
	c.Redis.Pubsub.Prefix = "livequiz"
	c.History.Driver = HistoryDriverSQLite
	c.History.SQLitePath = "livequiz.db"
	c.Quiz.DefaultTimerSeconds = 30
	c.Quiz.PresenterName = engine.DefaultPresenterName
	c.Quiz.CodeLength = 4
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			session     redis.UniversalClient
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			questionBank *pgxpool.Pool
			history      *pgxpool.Pool
		}

		sqlite *history.SQLite
	}

	service struct {
		store        store.Store
		registry     *registry.Registry
		timers       *timer.Scheduler
		engine       *engine.Engine
		questionBank *questionbank.Service
		session      *session.Service
		leaderboard  *leaderboard.Service
		history      *history.Service
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if s.c.History.Driver == HistoryDriverSQLite {
		db, err := history.OpenSQLite(s.c.History.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		s.infra.sqlite = db
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, c RedisConfig) (redis.UniversalClient, error) {
		if len(c.Addrs) == 0 {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    c.Addrs,
			Password: c.Pass,
		})

		if err := telemetry.MonitorRedis(r, name); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.session, err = connect("session", s.c.Redis.Session)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if s.c.Store.Driver == StoreDriverRedis && s.infra.redis.session == nil {
		return fmt.Errorf("session: store driver %q requires Redis.Session.Addrs", StoreDriverRedis)
	}

	s.infra.redis.leaderboard, err = connect("leaderboard", s.c.Redis.Leaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	connect := func(c PostgresConfig) (*pgxpool.Pool, error) {
		if c.Addr == "" {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			return nil, err
		}

		return db, nil
	}

	s.infra.postgres.questionBank, err = connect(s.c.Postgres.QuestionBank)
	if err != nil {
		return fmt.Errorf("postgres: question bank: %w", err)
	}

	if s.c.History.Driver == HistoryDriverPostgres {
		s.infra.postgres.history, err = connect(s.c.Postgres.History)
		if err != nil {
			return fmt.Errorf("postgres: history: %w", err)
		}
		if s.infra.postgres.history == nil {
			return fmt.Errorf("postgres: history driver %q requires Postgres.History.Addr", HistoryDriverPostgres)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := history.NewPostgres(s.infra.postgres.history).Migrate(ctx); err != nil {
			return fmt.Errorf("postgres: history: %w", err)
		}
	}

	return nil
}

func (s *Server) initService() {
	if s.c.Store.Driver == StoreDriverRedis {
		s.service.store = store.NewRedis(store.RedisConfig{
			Redis:  s.infra.redis.session,
			Prefix: s.c.Redis.Session.Prefix,
		})
	} else {
		s.service.store = store.NewMemory()
	}

	s.service.registry = registry.New()
	s.service.timers = timer.New()

	s.service.engine = engine.New(engine.Config{
		Store:         s.service.store,
		Registry:      s.service.registry,
		Timers:        s.service.timers,
		EventBus:      s.eb,
		PresenterName: s.c.Quiz.PresenterName,
	})

	var bank session.QuestionBank
	if s.infra.postgres.questionBank != nil {
		s.service.questionBank = questionbank.NewService(questionbank.Config{
			DB: s.infra.postgres.questionBank,
		})
		bank = s.service.questionBank
	}

	s.service.session = session.NewService(session.Config{
		Store:               s.service.store,
		Bank:                bank,
		DefaultTimerSeconds: s.c.Quiz.DefaultTimerSeconds,
		CodeLength:          s.c.Quiz.CodeLength,
	})

	if s.infra.redis.leaderboard != nil {
		s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
			EventBus: s.eb,
			Redis:    s.infra.redis.leaderboard,
			Prefix:   s.c.Redis.Leaderboard.Prefix,
		})
	}

	var hs history.Store
	switch {
	case s.infra.postgres.history != nil:
		hs = history.NewPostgres(s.infra.postgres.history)
	case s.infra.sqlite != nil:
		hs = s.infra.sqlite
	}
	if hs != nil {
		s.service.history = history.NewService(history.Config{
			EventBus: s.eb,
			Store:    hs,
		})
	}
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	healthpb.RegisterHealthServer(s.grpc, health.NewServer())

	c := api.Config{
		GRPC:         s.grpc,
		HTTP:         e,
		EventBus:     s.eb,
		Engine:       s.service.engine,
		Session:      s.service.session,
		Leaderboard:  s.service.leaderboard,
		History:      s.service.history,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		PublicURL:    s.c.HTTP.PublicURL,
	}
	if s.service.questionBank != nil {
		c.QuestionBank = s.service.questionBank
	}
	if s.infra.redis.pubsub != nil {
		c.Redis = s.infra.redis.pubsub
	}
	api.New(c)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port),
			"store", s.c.Store.Driver,
			"history", s.c.History.Driver,
			"leaderboard", s.service.leaderboard != nil,
			"question_bank", s.service.questionBank != nil,
		)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	for _, r := range []redis.UniversalClient{s.infra.redis.session, s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if r != nil {
			_ = r.Close()
		}
	}
	for _, db := range []*pgxpool.Pool{s.infra.postgres.questionBank, s.infra.postgres.history} {
		if db != nil {
			db.Close()
		}
	}
	if err := s.infra.sqlite.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close sqlite failed", "error", err)
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
