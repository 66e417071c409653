package gateway

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/reelroom/internal/domain"
	"github.com/avolkov/reelroom/internal/presence"
)

// handleJoin subscribes the connection to a party topic. Topic
// subscription is deliberately independent of durable membership — a
// spectator of a public party is present without ever having joined
// through the lifecycle service.
func (ctl *Controller) handleJoin(sess *session, data []byte) {
	type joinPayload struct {
		Type    string         `json:"type"`
		PartyID domain.PartyID `json:"partyId"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.PartyID == 0 {
		log.Error().Err(err).Str("module", "gateway").Msg("bad join payload")
		ctl.sendError(sess.conn, "bad_payload")
		return
	}

	if prev := sess.party(); prev != 0 && prev != p.PartyID {
		ctl.leaveParty(sess, prev)
	}

	count := ctl.Hub.Presence.OnJoin(p.PartyID, sess.user, sess.conn)
	sess.setParty(p.PartyID)

	log.Info().Str("module", "gateway").
		Str("user", string(sess.user.ID)).
		Int64("party_id", int64(p.PartyID)).
		Msg("topic join")

	ctl.Hub.BroadcastExcept(p.PartyID, sess.user.ID, struct {
		Type             string        `json:"type"`
		UserID           domain.UserID `json:"userId"`
		Username         string        `json:"username"`
		ParticipantCount int           `json:"participantCount"`
	}{"user:joined", sess.user.ID, sess.user.Username, count})

	ctl.sendJSON(sess.conn, struct {
		Type         string           `json:"type"`
		Participants []presence.Entry `json:"participants"`
	}{"party:participants", ctl.Hub.Presence.Snapshot(p.PartyID)})
}

func (ctl *Controller) handleLeave(sess *session) {
	partyID := sess.party()
	if partyID == 0 {
		return
	}
	ctl.leaveParty(sess, partyID)
	sess.setParty(0)
}

// handleDisconnect runs when the read pump exits for any reason.
func (ctl *Controller) handleDisconnect(sess *session) {
	if partyID := sess.party(); partyID != 0 {
		ctl.leaveParty(sess, partyID)
	}
}

func (ctl *Controller) leaveParty(sess *session, partyID domain.PartyID) {
	count := ctl.Hub.Presence.OnLeave(partyID, sess.user.ID)

	log.Info().Str("module", "gateway").
		Str("user", string(sess.user.ID)).
		Int64("party_id", int64(partyID)).
		Int("remaining", count).
		Msg("topic leave")

	if count > 0 {
		ctl.Hub.BroadcastAll(partyID, struct {
			Type             string        `json:"type"`
			UserID           domain.UserID `json:"userId"`
			Username         string        `json:"username"`
			ParticipantCount int           `json:"participantCount"`
		}{"user:left", sess.user.ID, sess.user.Username, count})
	}
}

func (ctl *Controller) handleStatus(sess *session, data []byte) {
	type statusPayload struct {
		Type   string          `json:"type"`
		Status presence.Status `json:"status"`
	}
	var p statusPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Status == "" {
		ctl.sendError(sess.conn, "bad_payload")
		return
	}
	partyID := sess.party()
	if partyID == 0 {
		ctl.sendError(sess.conn, "not_in_party")
		return
	}

	ctl.Hub.Presence.OnStatus(partyID, sess.user.ID, p.Status)
	ctl.Hub.BroadcastExcept(partyID, sess.user.ID, struct {
		Type     string          `json:"type"`
		UserID   domain.UserID   `json:"userId"`
		Username string          `json:"username"`
		Status   presence.Status `json:"status"`
	}{"user:status", sess.user.ID, sess.user.Username, p.Status})
}
