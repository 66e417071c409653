// Package gateway is the duplex channel layer: it authenticates a
// connection once, subscribes it to a party topic and dispatches the
// realtime events that presence, playback and chat sit behind.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/reelroom/internal/chat"
	"github.com/avolkov/reelroom/internal/domain"
	"github.com/avolkov/reelroom/internal/playback"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Hub     *Hub
	Sync    *playback.Synchronizer
	Chat    *chat.Relay
	limiter *RateLimiter

	readLimit int64
}

func NewController(hub *Hub, sync *playback.Synchronizer, relay *chat.Relay, limiter *RateLimiter, readLimit int64) *Controller {
	return &Controller{
		Hub:       hub,
		Sync:      sync,
		Chat:      relay,
		limiter:   limiter,
		readLimit: readLimit,
	}
}

// WsConn wraps one websocket with a buffered outbound channel. TrySend
// never blocks; a full buffer drops the frame for that client.
type WsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// session is the per-connection state: the verified identity and the
// party topic the connection is currently subscribed to, if any.
type session struct {
	user *domain.User
	conn *WsConn

	mu      sync.Mutex
	partyID domain.PartyID
}

func (s *session) setParty(id domain.PartyID) {
	s.mu.Lock()
	s.partyID = id
	s.mu.Unlock()
}

func (s *session) party() domain.PartyID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partyID
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and runs the connection's pumps. The
// identity was verified by the HTTP layer before we get here.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	user := &domain.User{
		ID:       domain.UserID(c.GetString("user_id")),
		Username: c.GetString("username"),
	}
	log.Info().Str("module", "gateway").Str("user", string(user.ID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}

	sess := &session{
		user: user,
		conn: &WsConn{conn: ws, send: make(chan []byte, 32)},
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ctl.writePump(ctx, sess.conn)
		cancel()
	}()
	go ctl.readPump(ctx, cancel, sess)
}

func (ctl *Controller) sendJSON(conn *WsConn, v any) {
	b, ok := marshalFrame(v)
	if !ok {
		return
	}
	_ = conn.TrySend(b)
}

func (ctl *Controller) sendError(conn *WsConn, msg string) {
	ctl.sendJSON(conn, map[string]any{
		"type":  "error",
		"error": msg,
	})
}
