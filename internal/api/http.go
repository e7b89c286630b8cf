package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/history"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/questionbank"
	"github.com/victornm/livequiz/internal/session"
)

const qrSize = 320

type (
	CreateSessionBody struct {
		QuizName     string         `json:"quiz_name"`
		TimerSeconds int            `json:"timer_seconds"`
		QuestionIDs  []string       `json:"question_ids"`
		Questions    []QuestionBody `json:"questions"`
	}

	QuestionBody struct {
		Text          string   `json:"text"`
		Options       []string `json:"options"`
		CorrectAnswer string   `json:"correct_answer"`
		Tags          []string `json:"tags,omitempty"`
	}

	SessionResponse struct {
		Code                 string    `json:"code"`
		QuizName             string    `json:"quiz_name"`
		Phase                string    `json:"phase"`
		TimerSeconds         int       `json:"timer_seconds"`
		TotalQuestions       int       `json:"total_questions"`
		CurrentQuestionIndex int       `json:"current_question_index"`
		PlayersOnline        int       `json:"players_online"`
		JoinURL              string    `json:"join_url,omitempty"`
		CreateTime           time.Time `json:"create_time"`
	}

	// JoinResponse is served at the join URL so a scanned QR code resolves to the session
	// and the websocket endpoint to connect to.
	JoinResponse struct {
		SessionResponse
		WebSocketURL string `json:"ws_url,omitempty"`
	}

	ErrorResponse struct {
		Error string `json:"error"`
	}
)

func (b CreateSessionBody) toRequest() session.CreateSessionRequest {
	req := session.CreateSessionRequest{
		QuizName:     b.QuizName,
		TimerSeconds: b.TimerSeconds,
		QuestionIDs:  b.QuestionIDs,
	}

	for _, q := range b.Questions {
		req.Questions = append(req.Questions, session.QuestionInput{
			Text:          q.Text,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Tags:          q.Tags,
		})
	}

	return req
}

func (a *API) sessionResponse(ss *domain.Session, baseURL string) SessionResponse {
	resp := SessionResponse{
		Code:                 ss.Code,
		QuizName:             ss.QuizName,
		Phase:                string(ss.Phase),
		TimerSeconds:         ss.TimerSeconds,
		TotalQuestions:       len(ss.Questions),
		CurrentQuestionIndex: ss.CurrentQuestionIndex,
		PlayersOnline:        len(ss.OnlinePlayers()),
		CreateTime:           ss.CreateTime,
	}

	if base := a.baseURL(baseURL); base != "" {
		resp.JoinURL = joinURL(base, ss.Code)
	}

	return resp
}

func joinURL(base, code string) string {
	return base + "/join/" + code
}

func webSocketURL(base, code string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	return base + "/ws/" + code
}

func (a *API) registerRoutes(r gin.IRouter) {
	r.POST("/api/sessions", a.createSession)
	r.GET("/api/sessions/:code", a.getSession)
	r.GET("/api/sessions/:code/leaderboard", a.getLeaderboard)
	r.GET("/api/history", a.listHistory)
	r.GET("/api/history/:id", a.getHistory)
	r.GET("/api/question-bank", a.listQuestions)
	r.GET("/join/:code", a.join)
	r.GET("/join/:code/qr", a.joinQR)
	r.GET("/ws/:code", a.serveWS)
}

func (a *API) createSession(c *gin.Context) {
	var body CreateSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, errors.InvalidArgument("invalid request body: %v", err))
		return
	}

	ss, err := a.ss.CreateSession(c.Request.Context(), body.toRequest())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, a.sessionResponse(ss, requestBaseURL(c.Request)))
}

func (a *API) getSession(c *gin.Context) {
	ss, err := a.ss.GetSession(c.Request.Context(), session.GetSessionRequest{Code: c.Param("code")})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, a.sessionResponse(ss, requestBaseURL(c.Request)))
}

func (a *API) getLeaderboard(c *gin.Context) {
	if a.ls == nil {
		writeError(c, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("leaderboard is not enabled")))
		return
	}

	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		SessionCode: normalizeCode(c.Param("code")),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(*l))
}

func (a *API) listHistory(c *gin.Context) {
	if a.hs == nil {
		writeError(c, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("history is not enabled")))
		return
	}

	var limit int
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, errors.InvalidArgument("invalid limit: %q", v))
			return
		}
		limit = n
	}

	records, err := a.hs.ListHistory(c.Request.Context(), history.ListHistoryRequest{Limit: limit})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": records})
}

func (a *API) getHistory(c *gin.Context) {
	if a.hs == nil {
		writeError(c, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("history is not enabled")))
		return
	}

	r, err := a.hs.GetHistory(c.Request.Context(), history.GetHistoryRequest{ID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (a *API) listQuestions(c *gin.Context) {
	if a.qb == nil {
		writeError(c, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("question bank is not enabled")))
		return
	}

	var tags []string
	if v := c.Query("tags"); v != "" {
		tags = strings.Split(v, ",")
	}

	qs, err := a.qb.ListQuestions(c.Request.Context(), questionbank.ListQuestionsRequest{Tags: tags})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"questions": qs})
}

func (a *API) join(c *gin.Context) {
	ss, err := a.ss.GetSession(c.Request.Context(), session.GetSessionRequest{Code: c.Param("code")})
	if err != nil {
		writeError(c, err)
		return
	}

	base := a.baseURL(requestBaseURL(c.Request))
	resp := JoinResponse{SessionResponse: a.sessionResponse(ss, base)}
	if base != "" {
		resp.WebSocketURL = webSocketURL(base, ss.Code)
	}

	c.JSON(http.StatusOK, resp)
}

// joinQR renders the session's join URL as a PNG QR code.
func (a *API) joinQR(c *gin.Context) {
	ss, err := a.ss.GetSession(c.Request.Context(), session.GetSessionRequest{Code: c.Param("code")})
	if err != nil {
		writeError(c, err)
		return
	}

	url := joinURL(a.baseURL(requestBaseURL(c.Request)), ss.Code)
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		writeError(c, errors.Internal(err))
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

func (a *API) baseURL(fromRequest string) string {
	if a.publicURL != "" {
		return strings.TrimSuffix(a.publicURL, "/")
	}

	return fromRequest
}

// requestBaseURL derives scheme and host of the request, respecting X-Forwarded-Proto.
func requestBaseURL(r *http.Request) string {
	if r == nil || r.Host == "" {
		return ""
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), ErrorResponse{Error: e.Message})
}
