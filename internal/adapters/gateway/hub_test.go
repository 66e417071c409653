package gateway

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/avolkov/reelroom/internal/domain"
	"github.com/avolkov/reelroom/internal/presence"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *fakeConn) TrySend(data []byte) error {
	c.mu.Lock()
	c.frames = append(c.frames, data)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func setupHub() (*Hub, map[domain.UserID]*fakeConn) {
	reg := presence.NewRegistry()
	hub := NewHub(reg)
	conns := make(map[domain.UserID]*fakeConn)
	for _, id := range []domain.UserID{"u1", "u2", "u3"} {
		c := &fakeConn{}
		conns[id] = c
		reg.OnJoin(1, &domain.User{ID: id, Username: string(id)}, c)
	}
	return hub, conns
}

func TestBroadcastAllReachesEveryone(t *testing.T) {
	hub, conns := setupHub()
	hub.BroadcastAll(1, map[string]string{"type": "chat:message"})
	for id, c := range conns {
		if c.count() != 1 {
			t.Errorf("%s got %d frames, want 1", id, c.count())
		}
	}
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	hub, conns := setupHub()
	hub.BroadcastExcept(1, "u1", map[string]string{"type": "playback:sync"})
	if conns["u1"].count() != 0 {
		t.Error("sender received its own relay")
	}
	if conns["u2"].count() != 1 || conns["u3"].count() != 1 {
		t.Error("other participants missed the relay")
	}
}

func TestSendToSingleIdentity(t *testing.T) {
	hub, conns := setupHub()
	if !hub.SendTo(1, "u2", map[string]string{"type": "playback:request"}) {
		t.Fatal("SendTo reported failure for a connected identity")
	}
	if conns["u2"].count() != 1 || conns["u1"].count() != 0 || conns["u3"].count() != 0 {
		t.Error("SendTo leaked beyond the target")
	}
	if hub.SendTo(1, "ghost", map[string]string{"type": "playback:request"}) {
		t.Error("SendTo claimed delivery to a missing identity")
	}
}

func TestPartyEndedBroadcastsAndReclaims(t *testing.T) {
	hub, conns := setupHub()
	hub.PartyEnded(1, "host_ended")

	for id, c := range conns {
		if c.count() != 1 {
			t.Fatalf("%s got %d frames, want the party:ended frame", id, c.count())
		}
		var frame struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(c.frames[0], &frame); err != nil {
			t.Fatal(err)
		}
		if frame.Type != "party:ended" || frame.Reason != "host_ended" {
			t.Errorf("frame = %+v", frame)
		}
	}
	if hub.Presence.Count(1) != 0 {
		t.Error("presence not reclaimed after party end")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, 100*time.Millisecond)
	for i := 0; i < 3; i++ {
		if !rl.Allow("u1") {
			t.Fatalf("send %d blocked inside the limit", i)
		}
	}
	if rl.Allow("u1") {
		t.Error("burst limit not enforced")
	}
	if !rl.Allow("u2") {
		t.Error("limit leaked across identities")
	}
	time.Sleep(120 * time.Millisecond)
	if !rl.Allow("u1") {
		t.Error("window never slides")
	}
}
