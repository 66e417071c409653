package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avolkov/reelroom/internal/domain"
)

type fakeParties struct {
	mu    sync.Mutex
	party *domain.Party
	gets  int
}

func (f *fakeParties) Get(_ context.Context, id domain.PartyID) (*domain.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.party == nil || f.party.ID != id {
		return nil, domain.ErrPartyNotFound
	}
	cp := *f.party
	return &cp, nil
}

type checkpoint struct {
	partyID  domain.PartyID
	uid      domain.UserID
	position float64
	playing  bool
}

type fakeCheckpoints struct {
	mu      sync.Mutex
	writes  []checkpoint
	written chan struct{}
	fail    bool
}

func (f *fakeCheckpoints) Update(_ context.Context, partyID domain.PartyID, uid domain.UserID, position float64, playing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		if f.written != nil {
			f.written <- struct{}{}
		}
		return errors.New("storage down")
	}
	f.writes = append(f.writes, checkpoint{partyID, uid, position, playing})
	if f.written != nil {
		f.written <- struct{}{}
	}
	return nil
}

type sent struct {
	partyID domain.PartyID
	except  domain.UserID
	to      domain.UserID
	event   any
}

type fakeRadio struct {
	mu        sync.Mutex
	sent      []sent
	hostAlive bool
}

func (f *fakeRadio) BroadcastExcept(partyID domain.PartyID, except domain.UserID, v any) {
	f.mu.Lock()
	f.sent = append(f.sent, sent{partyID: partyID, except: except, event: v})
	f.mu.Unlock()
}

func (f *fakeRadio) SendTo(partyID domain.PartyID, uid domain.UserID, v any) bool {
	f.mu.Lock()
	f.sent = append(f.sent, sent{partyID: partyID, to: uid, event: v})
	f.mu.Unlock()
	return f.hostAlive
}

func newTestSync(hostAlive bool) (*Synchronizer, *fakeCheckpoints, *fakeRadio, *fakeParties) {
	parties := &fakeParties{party: &domain.Party{ID: 7, HostID: "host", Status: domain.PartyActive}}
	store := &fakeCheckpoints{written: make(chan struct{}, 4)}
	radio := &fakeRadio{hostAlive: hostAlive}
	return NewSynchronizer(parties, store, radio), store, radio, parties
}

func waitWrite(t *testing.T, store *fakeCheckpoints) {
	t.Helper()
	select {
	case <-store.written:
	case <-time.After(time.Second):
		t.Fatal("checkpoint write never happened")
	}
}

func TestSyncRelaysHostClockVerbatim(t *testing.T) {
	s, store, radio, _ := newTestSync(true)

	if err := s.Sync(context.Background(), 7, "host", 120.5, true, 1.25); err != nil {
		t.Fatal(err)
	}
	waitWrite(t, store)

	radio.mu.Lock()
	defer radio.mu.Unlock()
	if len(radio.sent) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(radio.sent))
	}
	b := radio.sent[0]
	if b.partyID != 7 || b.except != "host" {
		t.Errorf("broadcast scope = party %d except %q", b.partyID, b.except)
	}
	ev, ok := b.event.(SyncEvent)
	if !ok {
		t.Fatalf("event type %T", b.event)
	}
	if ev.Type != "playback:sync" || ev.CurrentTime != 120.5 || !ev.IsPlaying || ev.PlaybackRate != 1.25 || ev.SyncedBy != "host" {
		t.Errorf("relayed event = %+v", ev)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.writes) != 1 {
		t.Fatalf("checkpoint writes = %d, want 1", len(store.writes))
	}
	w := store.writes[0]
	if w.partyID != 7 || w.uid != "host" || w.position != 120.5 || !w.playing {
		t.Errorf("checkpoint = %+v", w)
	}
}

func TestSyncRejectsNonHost(t *testing.T) {
	s, store, radio, _ := newTestSync(true)

	err := s.Sync(context.Background(), 7, "viewer", 10, true, 1)
	if !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("want ErrNotHost, got %v", err)
	}
	radio.mu.Lock()
	if len(radio.sent) != 0 {
		t.Error("non-host sync was relayed")
	}
	radio.mu.Unlock()
	store.mu.Lock()
	if len(store.writes) != 0 {
		t.Error("non-host sync was checkpointed")
	}
	store.mu.Unlock()
}

func TestSyncDefaultsRate(t *testing.T) {
	s, store, radio, _ := newTestSync(true)
	if err := s.Sync(context.Background(), 7, "host", 5, false, 0); err != nil {
		t.Fatal(err)
	}
	waitWrite(t, store)
	radio.mu.Lock()
	defer radio.mu.Unlock()
	if ev := radio.sent[0].event.(SyncEvent); ev.PlaybackRate != 1 {
		t.Errorf("rate = %v, want 1", ev.PlaybackRate)
	}
}

func TestSyncSurvivesCheckpointFailure(t *testing.T) {
	s, store, radio, _ := newTestSync(true)
	store.fail = true

	if err := s.Sync(context.Background(), 7, "host", 33, true, 1); err != nil {
		t.Fatalf("broadcast must not fail on storage error, got %v", err)
	}
	waitWrite(t, store)
	radio.mu.Lock()
	defer radio.mu.Unlock()
	if len(radio.sent) != 1 {
		t.Error("broadcast missing despite failed checkpoint")
	}
}

func TestHostCached(t *testing.T) {
	s, store, _, parties := newTestSync(true)
	for i := 0; i < 3; i++ {
		if err := s.Sync(context.Background(), 7, "host", float64(i), true, 1); err != nil {
			t.Fatal(err)
		}
		waitWrite(t, store)
	}
	parties.mu.Lock()
	defer parties.mu.Unlock()
	if parties.gets != 1 {
		t.Errorf("store lookups = %d, want 1 (host is cached)", parties.gets)
	}
}

func TestForgetDropsCache(t *testing.T) {
	s, store, _, parties := newTestSync(true)
	if err := s.Sync(context.Background(), 7, "host", 1, true, 1); err != nil {
		t.Fatal(err)
	}
	waitWrite(t, store)
	s.Forget(7)
	if err := s.Sync(context.Background(), 7, "host", 2, true, 1); err != nil {
		t.Fatal(err)
	}
	waitWrite(t, store)
	parties.mu.Lock()
	defer parties.mu.Unlock()
	if parties.gets != 2 {
		t.Errorf("store lookups = %d, want 2 after Forget", parties.gets)
	}
}

func TestRequestStateTargetsHost(t *testing.T) {
	s, _, radio, _ := newTestSync(true)

	requester := &domain.User{ID: "viewer", Username: "vera"}
	if err := s.RequestState(context.Background(), 7, requester); err != nil {
		t.Fatal(err)
	}
	radio.mu.Lock()
	defer radio.mu.Unlock()
	if len(radio.sent) != 1 {
		t.Fatalf("sends = %d, want 1", len(radio.sent))
	}
	if radio.sent[0].to != "host" {
		t.Errorf("request sent to %q, want host", radio.sent[0].to)
	}
	ev := radio.sent[0].event.(RequestEvent)
	if ev.Type != "playback:request" || ev.RequestedBy != "viewer" || ev.Username != "vera" {
		t.Errorf("request event = %+v", ev)
	}
}

func TestRequestStateHostOffline(t *testing.T) {
	s, _, _, _ := newTestSync(false)
	requester := &domain.User{ID: "viewer", Username: "vera"}
	// dropped silently, the requester keeps its current clock
	if err := s.RequestState(context.Background(), 7, requester); err != nil {
		t.Fatalf("offline host must not error, got %v", err)
	}
}

func TestSyncUnknownParty(t *testing.T) {
	s, _, _, _ := newTestSync(true)
	err := s.Sync(context.Background(), 99, "host", 1, true, 1)
	if !errors.Is(err, domain.ErrPartyNotFound) {
		t.Fatalf("want ErrPartyNotFound, got %v", err)
	}
}
