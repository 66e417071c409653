package domain

import "time"

// Participant is the durable record that an identity belongs to a party.
// Rows are never deleted; leave/rejoin flips IsActive. At most one row
// exists per (party, user) pair.
type Participant struct {
	PartyID  PartyID    `json:"partyId"`
	UserID   UserID     `json:"userId"`
	Username string     `json:"username,omitempty"`
	JoinedAt time.Time  `json:"joinedAt"`
	LeftAt   *time.Time `json:"leftAt,omitempty"`
	IsActive bool       `json:"isActive"`
	IsHost   bool       `json:"isHost"`
}
