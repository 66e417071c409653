package gateway

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/reelroom/internal/domain"
	"github.com/avolkov/reelroom/internal/presence"
)

// Hub fans frames out over the presence registry's live connections.
// It is the Broadcaster the playback synchronizer and chat relay talk
// to, and the notifier the REST layer uses for party:ended/update.
type Hub struct {
	Presence *presence.Registry
}

func NewHub(reg *presence.Registry) *Hub {
	return &Hub{Presence: reg}
}

func marshalFrame(v any) ([]byte, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("frame marshal")
		return nil, false
	}
	return b, true
}

// BroadcastAll delivers v to every connection in the party topic.
func (h *Hub) BroadcastAll(partyID domain.PartyID, v any) {
	h.BroadcastExcept(partyID, "", v)
}

// BroadcastExcept delivers v to every connection except one identity.
// Slow clients drop the frame rather than stalling the fan-out.
func (h *Hub) BroadcastExcept(partyID domain.PartyID, except domain.UserID, v any) {
	b, ok := marshalFrame(v)
	if !ok {
		return
	}
	for _, conn := range h.Presence.Conns(partyID, except) {
		_ = conn.TrySend(b)
	}
}

// SendTo delivers v to one identity's connection, reporting whether it
// was enqueued.
func (h *Hub) SendTo(partyID domain.PartyID, uid domain.UserID, v any) bool {
	conn, ok := h.Presence.ConnOf(partyID, uid)
	if !ok {
		return false
	}
	b, ok := marshalFrame(v)
	if !ok {
		return false
	}
	return conn.TrySend(b) == nil
}

// PartyEnded tells everyone still connected that the party is over and
// reclaims its presence set.
func (h *Hub) PartyEnded(partyID domain.PartyID, reason string) {
	h.BroadcastAll(partyID, struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}{"party:ended", reason})
	h.Presence.Drop(partyID)
}

// PartyUpdated pushes a lifecycle change (start/pause) to the topic.
func (h *Hub) PartyUpdated(partyID domain.PartyID, update any) {
	h.BroadcastAll(partyID, struct {
		Type  string `json:"type"`
		Party any    `json:"party"`
	}{"party:update", update})
}
