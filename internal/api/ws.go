package api

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/victornm/livequiz/internal/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

var (
	errConnClosed     = stderrors.New("ws: connection closed")
	errSendBufferFull = stderrors.New("ws: send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn is one participant's socket. Send only enqueues, so a slow client never holds the
// session lock; a client that falls behind by a full buffer loses messages.
type wsConn struct {
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

func (c *wsConn) Send(_ context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// serveWS upgrades the request and assigns the connection a fresh participant id. A connection
// to an unknown session is closed with a policy violation.
func (a *API) serveWS(c *gin.Context) {
	code := normalizeCode(c.Param("code"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "ws: upgrade failed", "session", code, "error", err)
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	id := uuid.NewString()
	wc := newWSConn(conn)

	if err := a.engine.Connect(ctx, wc, code, id); err != nil {
		reason := "Session not found"
		if !errors.Is(err, errors.CodeNotFound) {
			slog.ErrorContext(ctx, "ws: connect failed", "session", code, "error", err)
			reason = "Internal error"
		}

		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go wc.writePump()
	a.readPump(ctx, wc, code, id)
}

func (a *API) readPump(ctx context.Context, c *wsConn, code, id string) {
	defer func() {
		if err := a.engine.Disconnect(ctx, code, id); err != nil {
			slog.ErrorContext(ctx, "ws: disconnect failed", "session", code, "participant", id, "error", err)
		}
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.DebugContext(ctx, "ws: read failed", "session", code, "participant", id, "error", err)
			}
			return
		}

		if typ != websocket.TextMessage {
			continue
		}

		if err := a.engine.HandleMessage(ctx, code, id, data); err != nil {
			slog.ErrorContext(ctx, "ws: handle message failed", "session", code, "participant", id, "error", err)
		}
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
