package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/reelroom/internal/domain"
)

func (ctl *Controller) relayMessage(ctx context.Context, sess *session, body string, kind domain.MessageKind) {
	partyID := sess.party()
	if partyID == 0 {
		ctl.sendError(sess.conn, "not_in_party")
		return
	}
	if !ctl.limiter.Allow(sess.user.ID) {
		ctl.sendError(sess.conn, "rate_limited")
		return
	}

	_, err := ctl.Chat.Send(ctx, partyID, sess.user, body, kind)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidInput):
		ctl.sendError(sess.conn, "empty message")
	default:
		log.Error().Err(err).Str("module", "gateway").
			Int64("party_id", int64(partyID)).
			Msg("chat send")
		ctl.sendError(sess.conn, "send_failed")
	}
}

func (ctl *Controller) handleChat(ctx context.Context, sess *session, data []byte) {
	type chatPayload struct {
		Type        string             `json:"type"`
		Message     string             `json:"message"`
		MessageType domain.MessageKind `json:"messageType"`
	}
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(sess.conn, "bad_payload")
		return
	}
	kind := p.MessageType
	if kind == "" || kind == domain.MessageReaction {
		kind = domain.MessageChat
	}
	ctl.relayMessage(ctx, sess, p.Message, kind)
}

// Reactions go through the same relay as chat so their ordering
// relative to messages holds.
func (ctl *Controller) handleReaction(ctx context.Context, sess *session, data []byte) {
	type reactionPayload struct {
		Type     string `json:"type"`
		Reaction string `json:"reaction"`
	}
	var p reactionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(sess.conn, "bad_payload")
		return
	}
	ctl.relayMessage(ctx, sess, p.Reaction, domain.MessageReaction)
}
