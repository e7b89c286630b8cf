package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/engine"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/history"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/questionbank"
	"github.com/victornm/livequiz/internal/registry"
	"github.com/victornm/livequiz/internal/session"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/timer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	srv     *httptest.Server
	grpc    *grpc.Server
	eb      *event.Bus
	redis   redis.UniversalClient
	store   store.Store
	ss      *session.Service
	ls      *leaderboard.Service
	hs      *history.Service
	timers  *timer.Manual
	bank    *fakeBank
	pubsubs string
}

type fakeBank struct {
	questions []questionbank.Question
}

func (b *fakeBank) ListQuestions(_ context.Context, req questionbank.ListQuestionsRequest) ([]questionbank.Question, error) {
	if len(req.Tags) == 0 {
		return b.questions, nil
	}

	var out []questionbank.Question
	for _, q := range b.questions {
		for _, t := range q.Tags {
			if t == req.Tags[0] {
				out = append(out, q)
				break
			}
		}
	}
	return out, nil
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})
	t.Cleanup(func() { _ = rc.Close() })

	hdb, err := history.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hdb.Close() })

	h := &harness{
		eb:      event.NewBus(),
		redis:   rc,
		store:   store.NewMemory(),
		timers:  &timer.Manual{},
		pubsubs: "quiz",
		bank: &fakeBank{questions: []questionbank.Question{
			{ID: "q1", Text: "Largest ocean?", Options: []string{"Atlantic", "Pacific"}, CorrectAnswer: "Pacific", Tags: []string{"geo"}},
			{ID: "q2", Text: "2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: "4", Tags: []string{"math"}},
		}},
	}

	h.ss = session.NewService(session.Config{Store: h.store})
	h.ls = leaderboard.NewService(leaderboard.Config{EventBus: h.eb, Redis: rc, Prefix: "lb"})
	h.hs = history.NewService(history.Config{EventBus: h.eb, Store: hdb})

	eng := engine.New(engine.Config{
		Store:    h.store,
		Registry: registry.New(),
		Timers:   timer.New(timer.WithAfterFunc(h.timers.AfterFunc)),
		EventBus: h.eb,
	})

	e := gin.New()
	h.grpc = grpc.NewServer()

	api.New(api.Config{
		GRPC:         h.grpc,
		HTTP:         e,
		EventBus:     h.eb,
		Engine:       eng,
		Session:      h.ss,
		Leaderboard:  h.ls,
		History:      h.hs,
		QuestionBank: h.bank,
		Redis:        rc,
		PubsubPrefix: h.pubsubs,
	})

	h.srv = httptest.NewServer(e)
	t.Cleanup(h.srv.Close)
	t.Cleanup(h.eb.Stop)

	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, h.srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	return resp, buf.Bytes()
}

func (h *harness) createSession(t *testing.T) api.SessionResponse {
	t.Helper()

	resp, body := h.do(t, http.MethodPost, "/api/sessions", sampleBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var s api.SessionResponse
	require.NoError(t, json.Unmarshal(body, &s))
	return s
}

func (h *harness) wsURL(code string) string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/" + code
}

func sampleBody() api.CreateSessionBody {
	return api.CreateSessionBody{
		QuizName:     "Warmup",
		TimerSeconds: 20,
		Questions: []api.QuestionBody{
			{Text: "Which planet is closest to the Sun?", Options: []string{"Venus", "Mercury", "Earth", "Mars"}, CorrectAnswer: "Mercury"},
			{Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "6"}, CorrectAnswer: "4"},
		},
	}
}
