package domain

import "time"

// PlaybackState is the shared clock checkpoint, one row per party.
// Position is the client-reported offset in seconds; no drift correction
// happens server-side, receiving clients reconcile themselves.
type PlaybackState struct {
	PartyID   PartyID   `json:"partyId"`
	Position  float64   `json:"currentTime"`
	IsPlaying bool      `json:"isPlaying"`
	UpdatedBy UserID    `json:"updatedBy"`
	UpdatedAt time.Time `json:"updatedAt"`
}
