package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

const defaultTTL = 24 * time.Hour

type RedisConfig struct {
	Redis  redis.UniversalClient
	Prefix string
	// TTL bounds how long an abandoned session stays in Redis, refreshed on every save.
	TTL time.Duration
}

// Redis stores each session as one JSON document. Records are written whole, so readers
// always observe a complete session. Locking stays in-process: a single serving process
// owns each active session.
type Redis struct {
	*keyedMutex

	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedis(c RedisConfig) *Redis {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &Redis{
		keyedMutex: newKeyedMutex(),
		redis:      c.Redis,
		prefix:     c.Prefix,
		ttl:        ttl,
	}
}

func (r *Redis) Get(ctx context.Context, code string) (*domain.Session, error) {
	b, err := r.redis.Get(ctx, r.key(code)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.NotFound("session not found: %s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", code, err)
	}

	var s domain.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", code, err)
	}

	for _, p := range s.Players {
		if p.Votes == nil {
			p.Votes = make(map[int]domain.Vote)
		}
	}
	if s.Players == nil {
		s.Players = make(map[string]*domain.Player)
	}

	return &s, nil
}

func (r *Redis) Save(ctx context.Context, code string, s *domain.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", code, err)
	}

	if err := r.redis.Set(ctx, r.key(code), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", code, err)
	}

	return nil
}

func (r *Redis) Exists(ctx context.Context, code string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.key(code)).Result()
	if err != nil {
		return false, fmt.Errorf("exists session %s: %w", code, err)
	}

	return n > 0, nil
}

func (r *Redis) key(code string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, code)
}
