package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/reelroom/internal/domain"
)

func (ctl *Controller) handleSync(ctx context.Context, sess *session, data []byte) {
	type syncPayload struct {
		Type         string  `json:"type"`
		CurrentTime  float64 `json:"currentTime"`
		IsPlaying    bool    `json:"isPlaying"`
		PlaybackRate float64 `json:"playbackRate"`
	}
	var p syncPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(sess.conn, "bad_payload")
		return
	}
	partyID := sess.party()
	if partyID == 0 {
		ctl.sendError(sess.conn, "not_in_party")
		return
	}

	err := ctl.Sync.Sync(ctx, partyID, sess.user.ID, p.CurrentTime, p.IsPlaying, p.PlaybackRate)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotHost):
		ctl.sendError(sess.conn, "only the host can sync playback")
	default:
		log.Error().Err(err).Str("module", "gateway").
			Int64("party_id", int64(partyID)).
			Msg("playback sync")
		ctl.sendError(sess.conn, "sync_failed")
	}
}

func (ctl *Controller) handleRequest(ctx context.Context, sess *session) {
	partyID := sess.party()
	if partyID == 0 {
		ctl.sendError(sess.conn, "not_in_party")
		return
	}
	if err := ctl.Sync.RequestState(ctx, partyID, sess.user); err != nil {
		log.Error().Err(err).Str("module", "gateway").
			Int64("party_id", int64(partyID)).
			Msg("playback request")
	}
}
