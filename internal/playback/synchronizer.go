// Package playback relays the host's clock to everyone else in the
// party and keeps a best-effort durable checkpoint for late joiners.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/reelroom/internal/domain"
)

// Broadcaster fans events out to a party topic. Implemented by the
// realtime gateway.
type Broadcaster interface {
	BroadcastExcept(partyID domain.PartyID, except domain.UserID, v any)
	SendTo(partyID domain.PartyID, uid domain.UserID, v any) bool
}

// PartyGetter resolves a party, used to learn who the host is.
type PartyGetter interface {
	Get(ctx context.Context, id domain.PartyID) (*domain.Party, error)
}

// CheckpointStore is the durable playback row.
type CheckpointStore interface {
	Update(ctx context.Context, partyID domain.PartyID, uid domain.UserID, position float64, playing bool) error
}

// SyncEvent is the relayed clock, verbatim from the host.
type SyncEvent struct {
	Type         string        `json:"type"`
	CurrentTime  float64       `json:"currentTime"`
	IsPlaying    bool          `json:"isPlaying"`
	PlaybackRate float64       `json:"playbackRate"`
	SyncedBy     domain.UserID `json:"syncedBy"`
	SyncedAt     int64         `json:"syncedAt"`
}

// RequestEvent asks the host to resend their position.
type RequestEvent struct {
	Type        string        `json:"type"`
	RequestedBy domain.UserID `json:"requestedBy"`
	Username    string        `json:"username"`
}

// Synchronizer relays host playback updates with minimal latency. The
// broadcast happens first; the durable write follows on its own
// goroutine and its failure never reaches the caller.
type Synchronizer struct {
	parties PartyGetter
	store   CheckpointStore
	radio   Broadcaster

	mu    sync.RWMutex
	hosts map[domain.PartyID]domain.UserID
}

func NewSynchronizer(parties PartyGetter, store CheckpointStore, radio Broadcaster) *Synchronizer {
	return &Synchronizer{
		parties: parties,
		store:   store,
		radio:   radio,
		hosts:   make(map[domain.PartyID]domain.UserID),
	}
}

// hostOf resolves the party's host through a read-through cache. Host
// identity is immutable, so a cached value never goes stale until the
// party ends and Forget is called.
func (s *Synchronizer) hostOf(ctx context.Context, partyID domain.PartyID) (domain.UserID, error) {
	s.mu.RLock()
	host, ok := s.hosts[partyID]
	s.mu.RUnlock()
	if ok {
		return host, nil
	}
	p, err := s.parties.Get(ctx, partyID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.hosts[partyID] = p.HostID
	s.mu.Unlock()
	return p.HostID, nil
}

// Forget drops the cached host entry once a party has ended.
func (s *Synchronizer) Forget(partyID domain.PartyID) {
	s.mu.Lock()
	delete(s.hosts, partyID)
	s.mu.Unlock()
}

// Sync relays the caller's clock to every other connected participant.
// Only the host's updates are authoritative; anyone else is rejected
// before a single frame goes out.
func (s *Synchronizer) Sync(ctx context.Context, partyID domain.PartyID, caller domain.UserID, currentTime float64, isPlaying bool, rate float64) error {
	host, err := s.hostOf(ctx, partyID)
	if err != nil {
		return err
	}
	if caller != host {
		return domain.ErrNotHost
	}
	if rate <= 0 {
		rate = 1
	}

	s.radio.BroadcastExcept(partyID, caller, SyncEvent{
		Type:         "playback:sync",
		CurrentTime:  currentTime,
		IsPlaying:    isPlaying,
		PlaybackRate: rate,
		SyncedBy:     caller,
		SyncedAt:     time.Now().UnixMilli(),
	})

	// checkpoint for late joiners; the broadcast is already out, so a
	// failed write only widens their staleness window
	go func() {
		if err := s.store.Update(context.Background(), partyID, caller, currentTime, isPlaying); err != nil {
			log.Error().Err(err).Str("module", "playback").
				Int64("party_id", int64(partyID)).
				Msg("checkpoint write failed")
		}
	}()
	return nil
}

// RequestState asks the host's live connection for their position. The
// durable row is a checkpoint, not a substitute for the host's clock,
// so this goes to the host rather than reading the store.
func (s *Synchronizer) RequestState(ctx context.Context, partyID domain.PartyID, requester *domain.User) error {
	host, err := s.hostOf(ctx, partyID)
	if err != nil {
		return err
	}
	delivered := s.radio.SendTo(partyID, host, RequestEvent{
		Type:        "playback:request",
		RequestedBy: requester.ID,
		Username:    requester.Username,
	})
	if !delivered {
		log.Warn().Str("module", "playback").
			Int64("party_id", int64(partyID)).
			Msg("host not connected, state request dropped")
	}
	return nil
}
