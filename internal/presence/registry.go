// Package presence tracks who is connected to a party topic right now.
// It is advisory and process-local: entries live only as long as the
// connection, and the whole thing rebuilds itself as clients reconnect.
// Authoritative membership is the durable roster in the party service.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/reelroom/internal/domain"
)

type Status string

const (
	StatusWatching  Status = "watching"
	StatusAway      Status = "away"
	StatusBuffering Status = "buffering"
)

// Conn is the connection handle an entry carries, enough to push a
// frame to that client.
type Conn interface {
	TrySend(data []byte) error
}

// Entry is one connected (party, identity) pair.
type Entry struct {
	UserID   domain.UserID `json:"id"`
	Username string        `json:"username"`
	Status   Status        `json:"status"`
	JoinedAt time.Time     `json:"joinedAt"`

	Conn Conn `json:"-"`
}

// Registry is the in-memory party -> identity -> entry map. All methods
// are safe for concurrent use; mutations happen on goroutines driven by
// independent connections.
type Registry struct {
	mu      sync.RWMutex
	parties map[domain.PartyID]map[domain.UserID]*Entry
}

func NewRegistry() *Registry {
	return &Registry{parties: make(map[domain.PartyID]map[domain.UserID]*Entry)}
}

// OnJoin inserts or overwrites the entry and returns the roster size,
// which the gateway broadcasts as participantCount.
func (r *Registry) OnJoin(partyID domain.PartyID, user *domain.User, conn Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.parties[partyID]
	if !ok {
		room = make(map[domain.UserID]*Entry)
		r.parties[partyID] = room
	}
	room[user.ID] = &Entry{
		UserID:   user.ID,
		Username: user.Username,
		Status:   StatusWatching,
		JoinedAt: time.Now(),
		Conn:     conn,
	}
	log.Info().Str("module", "presence").
		Int64("party_id", int64(partyID)).
		Str("user", string(user.ID)).
		Int("count", len(room)).
		Msg("presence join")
	return len(room)
}

// OnStatus updates the status tag. A missing entry is silently ignored;
// it may have expired mid-flight, which is not an error.
func (r *Registry) OnStatus(partyID domain.PartyID, uid domain.UserID, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.parties[partyID][uid]; ok {
		e.Status = status
	}
}

// OnLeave removes the entry and returns the remaining roster size. An
// emptied party map is dropped entirely so abandoned topics do not
// accumulate.
func (r *Registry) OnLeave(partyID domain.PartyID, uid domain.UserID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.parties[partyID]
	if !ok {
		return 0
	}
	delete(room, uid)
	remaining := len(room)
	if remaining == 0 {
		delete(r.parties, partyID)
		log.Info().Str("module", "presence").
			Int64("party_id", int64(partyID)).
			Msg("party empty, presence reclaimed")
	}
	return remaining
}

// Drop discards the whole presence set of a party, used when the party
// ends while clients are still connected.
func (r *Registry) Drop(partyID domain.PartyID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.parties, partyID)
}

// Snapshot returns the current roster ordered by join time, for clients
// that arrive with no presence history.
func (r *Registry) Snapshot(partyID domain.PartyID) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.parties[partyID]
	out := make([]Entry, 0, len(room))
	for _, e := range room {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Count returns the roster size without copying it.
func (r *Registry) Count(partyID domain.PartyID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.parties[partyID])
}

// Conns returns the live connection handles of a party, optionally
// skipping one identity. Fan-out iterates this.
func (r *Registry) Conns(partyID domain.PartyID, except domain.UserID) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.parties[partyID]
	out := make([]Conn, 0, len(room))
	for uid, e := range room {
		if except != "" && uid == except {
			continue
		}
		if e.Conn != nil {
			out = append(out, e.Conn)
		}
	}
	return out
}

// ConnOf returns the connection of one identity in a party.
func (r *Registry) ConnOf(partyID domain.PartyID, uid domain.UserID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.parties[partyID][uid]
	if !ok || e.Conn == nil {
		return nil, false
	}
	return e.Conn, true
}
