package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avolkov/reelroom/internal/domain"
)

type fakeLog struct {
	mu   sync.Mutex
	seq  int64
	rows []domain.Message
	fail bool
}

func (f *fakeLog) Insert(_ context.Context, m *domain.Message) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("storage down")
	}
	f.seq++
	m.ID = domain.MessageID(f.seq)
	m.CreatedAt = time.Now()
	f.rows = append(f.rows, *m)
	return m, nil
}

func (f *fakeLog) List(_ context.Context, partyID domain.PartyID, limit int, beforeID domain.MessageID) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var page []domain.Message
	for i := len(f.rows) - 1; i >= 0 && len(page) < limit; i-- {
		m := f.rows[i]
		if m.PartyID != partyID {
			continue
		}
		if beforeID > 0 && m.ID >= beforeID {
			continue
		}
		page = append(page, m)
	}
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

type broadcastRec struct {
	partyID domain.PartyID
	event   Event
}

type fakeRadio struct {
	mu   sync.Mutex
	sent []broadcastRec
}

func (f *fakeRadio) BroadcastAll(partyID domain.PartyID, v any) {
	f.mu.Lock()
	f.sent = append(f.sent, broadcastRec{partyID, v.(Event)})
	f.mu.Unlock()
}

var alice = &domain.User{ID: "u1", Username: "alice"}

func TestSendRejectsEmpty(t *testing.T) {
	r := NewRelay(&fakeLog{}, &fakeRadio{})
	for _, body := range []string{"", "   ", "\n\t"} {
		if _, err := r.Send(context.Background(), 1, alice, body, domain.MessageChat); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("body %q: want ErrInvalidInput, got %v", body, err)
		}
	}
}

func TestSendPersistsThenBroadcasts(t *testing.T) {
	log := &fakeLog{}
	radio := &fakeRadio{}
	r := NewRelay(log, radio)

	msg, err := r.Send(context.Background(), 1, alice, "hello", domain.MessageChat)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID == 0 || msg.CreatedAt.IsZero() {
		t.Fatalf("persisted row incomplete: %+v", msg)
	}

	if len(radio.sent) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(radio.sent))
	}
	got := radio.sent[0]
	if got.partyID != 1 {
		t.Errorf("broadcast party = %d", got.partyID)
	}
	// the broadcast carries the stored row, generated id included, so
	// the sender orders by relay arrival too
	if got.event.Type != "chat:message" || got.event.ID != msg.ID || got.event.Body != "hello" || got.event.UserID != "u1" {
		t.Errorf("broadcast event = %+v", got.event)
	}
}

func TestSendFailedPersistenceFailsAndNothingBroadcast(t *testing.T) {
	log := &fakeLog{fail: true}
	radio := &fakeRadio{}
	r := NewRelay(log, radio)

	if _, err := r.Send(context.Background(), 1, alice, "hello", domain.MessageChat); err == nil {
		t.Fatal("want error on failed persistence")
	}
	if len(radio.sent) != 0 {
		t.Error("broadcast happened without a persisted row")
	}
}

func TestReactionRidesTheSameRelay(t *testing.T) {
	log := &fakeLog{}
	radio := &fakeRadio{}
	r := NewRelay(log, radio)

	if _, err := r.Send(context.Background(), 1, alice, "first", domain.MessageChat); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Send(context.Background(), 1, alice, "🔥", domain.MessageReaction); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Send(context.Background(), 1, alice, "second", domain.MessageChat); err != nil {
		t.Fatal(err)
	}

	if radio.sent[1].event.Type != "reaction:received" {
		t.Errorf("reaction event type = %q", radio.sent[1].event.Type)
	}
	// reaction ordering relative to chat is preserved in the log
	if log.rows[1].Kind != domain.MessageReaction {
		t.Errorf("log order = %v", log.rows)
	}
}

func TestSendRejectsUnknownKind(t *testing.T) {
	r := NewRelay(&fakeLog{}, &fakeRadio{})
	if _, err := r.Send(context.Background(), 1, alice, "x", "sticker"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestHistoryPaginationReconstructsOrder(t *testing.T) {
	log := &fakeLog{}
	r := NewRelay(log, &fakeRadio{})

	const total = 25
	for i := 0; i < total; i++ {
		if _, err := r.Send(context.Background(), 1, alice, fmt.Sprintf("msg-%d", i), domain.MessageChat); err != nil {
			t.Fatal(err)
		}
	}

	var all []domain.Message
	var cursor domain.MessageID
	for {
		page, err := r.History(context.Background(), 1, 10, cursor)
		if err != nil {
			t.Fatal(err)
		}
		if len(page) == 0 {
			break
		}
		// each page is oldest first; older pages are prepended
		all = append(append([]domain.Message{}, page...), all...)
		cursor = page[0].ID
	}

	if len(all) != total {
		t.Fatalf("reassembled %d messages, want %d", len(all), total)
	}
	for i, m := range all {
		if m.Body != fmt.Sprintf("msg-%d", i) {
			t.Fatalf("position %d holds %q: order broken", i, m.Body)
		}
		if i > 0 && all[i-1].ID >= m.ID {
			t.Fatal("ids not strictly increasing: duplicate or gap")
		}
	}
}

func TestHistoryLimitClamped(t *testing.T) {
	log := &fakeLog{}
	r := NewRelay(log, &fakeRadio{})
	for i := 0; i < MaxHistoryLimit+50; i++ {
		if _, err := r.Send(context.Background(), 1, alice, "x", domain.MessageChat); err != nil {
			t.Fatal(err)
		}
	}
	page, err := r.History(context.Background(), 1, 10_000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != MaxHistoryLimit {
		t.Fatalf("page size = %d, want clamp to %d", len(page), MaxHistoryLimit)
	}
	page, err = r.History(context.Background(), 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != DefaultHistoryLimit {
		t.Fatalf("page size = %d, want default %d", len(page), DefaultHistoryLimit)
	}
}
