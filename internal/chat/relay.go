// Package chat persists party messages and fans them out. The sender
// gets the broadcast too, so every client orders its log by relay
// arrival instead of optimistic local insertion.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/reelroom/internal/domain"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 200
)

// Broadcaster fans events out to every connection in a party topic,
// including the author's.
type Broadcaster interface {
	BroadcastAll(partyID domain.PartyID, v any)
}

// MessageStore is the append-only durable log.
type MessageStore interface {
	Insert(ctx context.Context, m *domain.Message) (*domain.Message, error)
	List(ctx context.Context, partyID domain.PartyID, limit int, beforeID domain.MessageID) ([]domain.Message, error)
}

// Event wraps a persisted message for the wire. Reactions ride the same
// relay as chat so their ordering relative to chat is preserved.
type Event struct {
	Type string `json:"type"`
	domain.Message
}

type Relay struct {
	store MessageStore
	radio Broadcaster
}

func NewRelay(store MessageStore, radio Broadcaster) *Relay {
	return &Relay{store: store, radio: radio}
}

func eventType(kind domain.MessageKind) string {
	if kind == domain.MessageReaction {
		return "reaction:received"
	}
	return "chat:message"
}

// Send persists the message, then broadcasts the stored row — generated
// id and timestamp included — to all participants.
func (r *Relay) Send(ctx context.Context, partyID domain.PartyID, author *domain.User, body string, kind domain.MessageKind) (*domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidInput)
	}
	if len(body) > domain.MaxMessageLen {
		return nil, fmt.Errorf("%w: message too long", domain.ErrInvalidInput)
	}
	if kind == "" {
		kind = domain.MessageChat
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown message kind", domain.ErrInvalidInput)
	}

	msg, err := r.store.Insert(ctx, &domain.Message{
		PartyID:  partyID,
		UserID:   author.ID,
		Username: author.Username,
		Body:     body,
		Kind:     kind,
	})
	if err != nil {
		return nil, err
	}

	r.radio.BroadcastAll(partyID, Event{Type: eventType(kind), Message: *msg})
	log.Debug().Str("module", "chat").
		Int64("party_id", int64(partyID)).
		Int64("msg_id", int64(msg.ID)).
		Msg("message relayed")
	return msg, nil
}

// History pages backwards through the log with an id cursor. The
// response is oldest first so clients can prepend directly.
func (r *Relay) History(ctx context.Context, partyID domain.PartyID, limit int, beforeID domain.MessageID) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return r.store.List(ctx, partyID, limit, beforeID)
}
