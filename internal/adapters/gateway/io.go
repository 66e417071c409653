package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "gateway").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "gateway").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sess *session) {
	defer func() {
		log.Info().Str("module", "gateway").Str("user", string(sess.user.ID)).Msg("readPump closing")
		ctl.handleDisconnect(sess)
		cancel()
		sess.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := sess.conn.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "gateway").Str("user", string(sess.user.ID)).Msg("readPump read error")
				}
				return
			}
			ctl.handleEvent(ctx, sess, data)
		}
	}
}

func (ctl *Controller) handleEvent(ctx context.Context, sess *session, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("bad json")
		ctl.sendError(sess.conn, "bad_payload")
		return
	}

	switch env.Type {
	case "party:join":
		ctl.handleJoin(sess, data)
	case "party:leave":
		ctl.handleLeave(sess)
	case "user:status":
		ctl.handleStatus(sess, data)
	case "playback:sync":
		ctl.handleSync(ctx, sess, data)
	case "playback:request":
		ctl.handleRequest(ctx, sess)
	case "chat:message":
		ctl.handleChat(ctx, sess, data)
	case "reaction:send":
		ctl.handleReaction(ctx, sess, data)
	case "ping":
		ctl.handlePing(sess.conn)
	default:
		log.Warn().Str("module", "gateway").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *Controller) handlePing(conn *WsConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}
