// Package party owns the lifecycle state machine and membership rules:
// creation, join-by-code, start/pause/end and the durable roster.
package party

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/reelroom/internal/domain"
)

const codeRetries = 5

// PartyStore is the durable party record.
type PartyStore interface {
	Create(ctx context.Context, p *domain.Party, hostName string) (*domain.Party, error)
	Get(ctx context.Context, id domain.PartyID) (*domain.Party, error)
	GetByCode(ctx context.Context, code domain.PartyCode) (*domain.Party, error)
	Start(ctx context.Context, id domain.PartyID) error
	Pause(ctx context.Context, id domain.PartyID) error
	End(ctx context.Context, id domain.PartyID) error
	ListForUser(ctx context.Context, uid domain.UserID) ([]domain.PartySummary, error)
	ListPublic(ctx context.Context, limit int) ([]domain.PartySummary, error)
}

// MembershipStore is the durable roster.
type MembershipStore interface {
	Upsert(ctx context.Context, partyID domain.PartyID, uid domain.UserID, username string) error
	Deactivate(ctx context.Context, partyID domain.PartyID, uid domain.UserID) error
	CountActive(ctx context.Context, partyID domain.PartyID) (int, error)
	IsActive(ctx context.Context, partyID domain.PartyID, uid domain.UserID) (bool, error)
	ListActive(ctx context.Context, partyID domain.PartyID) ([]domain.Participant, error)
}

// PlaybackStore is the checkpoint row consulted by getDetails and
// flipped on pause.
type PlaybackStore interface {
	Get(ctx context.Context, partyID domain.PartyID) (*domain.PlaybackState, error)
	SetPlaying(ctx context.Context, partyID domain.PartyID, playing bool) error
}

// Details hydrates a client that has no presence history yet.
type Details struct {
	domain.Party
	Participants []domain.Participant  `json:"participants"`
	Playback     *domain.PlaybackState `json:"playbackState,omitempty"`
}

type Service struct {
	parties  PartyStore
	members  MembershipStore
	playback PlaybackStore

	mu    sync.Mutex
	joins map[domain.PartyID]*sync.Mutex
}

func NewService(parties PartyStore, members MembershipStore, playback PlaybackStore) *Service {
	return &Service{
		parties:  parties,
		members:  members,
		playback: playback,
		joins:    make(map[domain.PartyID]*sync.Mutex),
	}
}

// joinLock serializes capacity-check-then-upsert per party, so two
// near-simultaneous joins cannot both slip past a full roster.
func (s *Service) joinLock(id domain.PartyID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.joins[id]
	if !ok {
		l = &sync.Mutex{}
		s.joins[id] = l
	}
	return l
}

// Create makes a new party with the caller as immutable host, inserting
// party, host membership and the zeroed playback row together. The join
// code is regenerated on collision.
func (s *Service) Create(ctx context.Context, host *domain.User, movieRef string, opts domain.CreateOptions) (*domain.Party, error) {
	if strings.TrimSpace(movieRef) == "" {
		return nil, fmt.Errorf("%w: movie reference required", domain.ErrInvalidInput)
	}
	if opts.MaxParticipants <= 0 {
		opts.MaxParticipants = domain.DefaultMaxParticipants
	}
	if len(opts.Title) > domain.MaxTitleLen {
		return nil, fmt.Errorf("%w: title too long", domain.ErrInvalidInput)
	}

	p := &domain.Party{
		HostID:          host.ID,
		MovieRef:        movieRef,
		Title:           opts.Title,
		MaxParticipants: opts.MaxParticipants,
		IsPublic:        opts.IsPublic,
		Status:          domain.PartyWaiting,
		ScheduledAt:     opts.ScheduledAt,
	}

	var err error
	for i := 0; i < codeRetries; i++ {
		p.Code = domain.NewPartyCode()
		var created *domain.Party
		created, err = s.parties.Create(ctx, p, host.Username)
		if err == nil {
			log.Info().Str("module", "party").
				Int64("party_id", int64(created.ID)).
				Str("host", string(host.ID)).
				Str("code", string(created.Code)).
				Msg("party created")
			return created, nil
		}
		if !errors.Is(err, domain.ErrCodeTaken) {
			return nil, err
		}
	}
	return nil, err
}

// Join resolves the code and activates a membership. Rejoin is
// idempotent; a full roster rejects with ErrPartyFull.
func (s *Service) Join(ctx context.Context, code domain.PartyCode, user *domain.User) (*domain.Party, error) {
	p, err := s.parties.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.PartyEnded {
		return nil, domain.ErrPartyEnded
	}

	l := s.joinLock(p.ID)
	l.Lock()
	defer l.Unlock()

	active, err := s.members.IsActive(ctx, p.ID, user.ID)
	if err != nil {
		return nil, err
	}
	if !active {
		count, err := s.members.CountActive(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if count >= p.MaxParticipants {
			return nil, domain.ErrPartyFull
		}
	}
	if err := s.members.Upsert(ctx, p.ID, user.ID, user.Username); err != nil {
		return nil, err
	}
	log.Info().Str("module", "party").
		Int64("party_id", int64(p.ID)).
		Str("user", string(user.ID)).
		Msg("joined party")
	return p, nil
}

// Leave deactivates the membership. Leaving a party you are not in is a
// no-op.
func (s *Service) Leave(ctx context.Context, partyID domain.PartyID, uid domain.UserID) error {
	return s.members.Deactivate(ctx, partyID, uid)
}

// hostParty loads the party and enforces host authority.
func (s *Service) hostParty(ctx context.Context, partyID domain.PartyID, caller domain.UserID) (*domain.Party, error) {
	p, err := s.parties.Get(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if p.HostID != caller {
		return nil, domain.ErrNotHost
	}
	return p, nil
}

// Start moves the party to active. Safe to call again while active;
// started_at is stamped only on the first start.
func (s *Service) Start(ctx context.Context, partyID domain.PartyID, caller domain.UserID) error {
	p, err := s.hostParty(ctx, partyID, caller)
	if err != nil {
		return err
	}
	if p.Status == domain.PartyEnded {
		return domain.ErrPartyEnded
	}
	if p.Status == domain.PartyActive {
		return nil
	}
	return s.parties.Start(ctx, partyID)
}

// Pause suspends an active party and flips the durable playback flag so
// the checkpoint agrees with the status.
func (s *Service) Pause(ctx context.Context, partyID domain.PartyID, caller domain.UserID) error {
	p, err := s.hostParty(ctx, partyID, caller)
	if err != nil {
		return err
	}
	switch p.Status {
	case domain.PartyEnded:
		return domain.ErrPartyEnded
	case domain.PartyPaused:
		return nil
	case domain.PartyWaiting:
		return fmt.Errorf("%w: party not started", domain.ErrInvalidInput)
	}
	if err := s.parties.Pause(ctx, partyID); err != nil {
		return err
	}
	if err := s.playback.SetPlaying(ctx, partyID, false); err != nil {
		log.Error().Err(err).Str("module", "party").
			Int64("party_id", int64(partyID)).
			Msg("pause checkpoint not updated")
	}
	return nil
}

// End terminates the party and deactivates every membership in one
// transaction. ended is terminal.
func (s *Service) End(ctx context.Context, partyID domain.PartyID, caller domain.UserID) error {
	p, err := s.hostParty(ctx, partyID, caller)
	if err != nil {
		return err
	}
	if p.Status == domain.PartyEnded {
		return domain.ErrPartyEnded
	}
	if err := s.parties.End(ctx, partyID); err != nil {
		return err
	}
	log.Info().Str("module", "party").Int64("party_id", int64(partyID)).Msg("party ended")
	return nil
}

// Details returns party, active roster and the playback checkpoint.
func (s *Service) Details(ctx context.Context, partyID domain.PartyID) (*Details, error) {
	p, err := s.parties.Get(ctx, partyID)
	if err != nil {
		return nil, err
	}
	members, err := s.members.ListActive(ctx, partyID)
	if err != nil {
		return nil, err
	}
	playback, err := s.playback.Get(ctx, partyID)
	if err != nil {
		return nil, err
	}
	return &Details{Party: *p, Participants: members, Playback: playback}, nil
}

// DetailsByCode resolves the join code first, for clients that only
// know the shareable code.
func (s *Service) DetailsByCode(ctx context.Context, code domain.PartyCode) (*Details, error) {
	p, err := s.parties.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.Details(ctx, p.ID)
}

func (s *Service) IsParticipant(ctx context.Context, partyID domain.PartyID, uid domain.UserID) (bool, error) {
	return s.members.IsActive(ctx, partyID, uid)
}

func (s *Service) IsHost(ctx context.Context, partyID domain.PartyID, uid domain.UserID) (bool, error) {
	p, err := s.parties.Get(ctx, partyID)
	if err != nil {
		return false, err
	}
	return p.HostID == uid, nil
}

func (s *Service) ListForUser(ctx context.Context, uid domain.UserID) ([]domain.PartySummary, error) {
	return s.parties.ListForUser(ctx, uid)
}

func (s *Service) ListPublic(ctx context.Context, limit int) ([]domain.PartySummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.parties.ListPublic(ctx, limit)
}
