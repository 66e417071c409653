package domain

import "time"

type MessageID int64

type MessageKind string

const (
	MessageChat     MessageKind = "chat"
	MessageSystem   MessageKind = "system"
	MessageReaction MessageKind = "reaction"
)

const MaxMessageLen = 2000

// Message is an append-only chat entry, ordered by creation within a party.
type Message struct {
	ID        MessageID   `json:"id"`
	PartyID   PartyID     `json:"partyId"`
	UserID    UserID      `json:"userId"`
	Username  string      `json:"username,omitempty"`
	Body      string      `json:"message"`
	Kind      MessageKind `json:"messageType"`
	CreatedAt time.Time   `json:"timestamp"`
}

func (k MessageKind) Valid() bool {
	switch k {
	case MessageChat, MessageSystem, MessageReaction:
		return true
	}
	return false
}
