package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avolkov/reelroom/internal/domain"
)

// PlaybackStore persists the per-party playback checkpoint. Writes are
// last-write-wins by arrival order; the row exists from party creation.
type PlaybackStore struct {
	pool *pgxpool.Pool
}

func NewPlaybackStore(pool *pgxpool.Pool) *PlaybackStore {
	return &PlaybackStore{pool: pool}
}

func (s *PlaybackStore) Get(ctx context.Context, partyID domain.PartyID) (*domain.PlaybackState, error) {
	st := &domain.PlaybackState{}
	err := s.pool.QueryRow(ctx, `
		SELECT party_id, position, is_playing, updated_by, updated_at
		FROM playback_states WHERE party_id = $1
	`, partyID).Scan(&st.PartyID, &st.Position, &st.IsPlaying, &st.UpdatedBy, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPartyNotFound
		}
		return nil, fmt.Errorf("get playback state: %w", err)
	}
	return st, nil
}

func (s *PlaybackStore) Update(ctx context.Context, partyID domain.PartyID, uid domain.UserID, position float64, playing bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE playback_states
		SET position = $2, is_playing = $3, updated_by = $4, updated_at = NOW()
		WHERE party_id = $1
	`, partyID, position, playing, uid)
	if err != nil {
		return fmt.Errorf("update playback state: %w", err)
	}
	return nil
}

// SetPlaying flips only the playing flag; pause uses it so the
// checkpoint agrees with the party status.
func (s *PlaybackStore) SetPlaying(ctx context.Context, partyID domain.PartyID, playing bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE playback_states SET is_playing = $2, updated_at = NOW() WHERE party_id = $1
	`, partyID, playing)
	if err != nil {
		return fmt.Errorf("set playing: %w", err)
	}
	return nil
}
