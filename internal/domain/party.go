package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

type (
	PartyID   int64
	PartyCode string
)

type PartyStatus string

const (
	PartyWaiting PartyStatus = "waiting"
	PartyActive  PartyStatus = "active"
	PartyPaused  PartyStatus = "paused"
	PartyEnded   PartyStatus = "ended"
)

const (
	DefaultMaxParticipants = 10
	MaxTitleLen            = 120
	partyCodeBytes         = 4
)

// Party is one watch-together session for a single movie.
// The host identity is set at creation and never reassigned.
type Party struct {
	ID              PartyID     `json:"id"`
	HostID          UserID      `json:"hostId"`
	MovieRef        string      `json:"movieId"`
	Code            PartyCode   `json:"partyCode"`
	Title           string      `json:"title,omitempty"`
	MaxParticipants int         `json:"maxParticipants"`
	IsPublic        bool        `json:"isPublic"`
	Status          PartyStatus `json:"status"`
	ScheduledAt     *time.Time  `json:"scheduledAt,omitempty"`
	StartedAt       *time.Time  `json:"startedAt,omitempty"`
	EndedAt         *time.Time  `json:"endedAt,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// PartySummary is a party plus the counters list endpoints join in.
type PartySummary struct {
	Party
	ParticipantCount int `json:"participantCount"`
}

// CreateOptions are the optional knobs of party creation.
type CreateOptions struct {
	Title           string
	MaxParticipants int
	IsPublic        bool
	ScheduledAt     *time.Time
}

// NewPartyCode returns a short shareable code, 8 uppercase hex chars.
// Uniqueness is enforced by the store; callers retry on collision.
func NewPartyCode() PartyCode {
	b := make([]byte, partyCodeBytes)
	_, _ = rand.Read(b)
	return PartyCode(strings.ToUpper(hex.EncodeToString(b)))
}
