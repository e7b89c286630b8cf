package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T) Config
		assert  func(t *testing.T, s *Server)
	}{
		"defaults should run on memory store and sqlite history": {
			arrange: func(t *testing.T) Config {
				c := DefaultConfig()
				c.History.SQLitePath = filepath.Join(t.TempDir(), "history.db")
				return c
			},

			assert: func(t *testing.T, s *Server) {
				assert.NotNil(t, s.service.history)
				assert.Nil(t, s.service.leaderboard)
				assert.Nil(t, s.service.questionBank)
			},
		},

		"redis driver should store sessions and keep a leaderboard in redis": {
			arrange: func(t *testing.T) Config {
				rs := miniredis.RunT(t)

				c := DefaultConfig()
				c.Store.Driver = StoreDriverRedis
				c.Redis.Session.Addrs = []string{rs.Addr()}
				c.Redis.Leaderboard.Addrs = []string{rs.Addr()}
				c.Redis.Pubsub.Addrs = []string{rs.Addr()}
				c.History.SQLitePath = filepath.Join(t.TempDir(), "history.db")
				return c
			},

			assert: func(t *testing.T, s *Server) {
				assert.NotNil(t, s.service.leaderboard)
				assert.NotNil(t, s.infra.redis.pubsub)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, err := Init(tt.arrange(t))
			require.NoError(t, err)
			t.Cleanup(func() {
				s.eb.Stop()
				_ = s.infra.sqlite.Close()
			})

			tt.assert(t, s)

			body := []byte(`{"quiz_name":"Warmup","questions":[{"text":"2 + 2?","options":["3","4"],"correct_answer":"4"}]}`)
			rec := httptest.NewRecorder()
			s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(body)))
			assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			rec = httptest.NewRecorder()
			s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestInit_RedisDriverRequiresAddrs(t *testing.T) {
	c := DefaultConfig()
	c.Store.Driver = StoreDriverRedis

	_, err := Init(c)
	assert.Error(t, err)
}
