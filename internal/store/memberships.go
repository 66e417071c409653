package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avolkov/reelroom/internal/domain"
)

// MembershipStore persists durable party membership. There is at most
// one row per (party, user); rejoin reactivates instead of duplicating.
type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

// Upsert activates the membership, creating it on first join.
func (s *MembershipStore) Upsert(ctx context.Context, partyID domain.PartyID, uid domain.UserID, username string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participants (party_id, user_id, username, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (party_id, user_id)
		DO UPDATE SET is_active = TRUE, left_at = NULL, joined_at = NOW(), username = EXCLUDED.username
	`, partyID, uid, username)
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

// Deactivate marks the membership inactive and stamps left_at.
func (s *MembershipStore) Deactivate(ctx context.Context, partyID domain.PartyID, uid domain.UserID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE participants SET is_active = FALSE, left_at = NOW()
		WHERE party_id = $1 AND user_id = $2
	`, partyID, uid)
	if err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	return nil
}

func (s *MembershipStore) CountActive(ctx context.Context, partyID domain.PartyID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM participants WHERE party_id = $1 AND is_active`, partyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active members: %w", err)
	}
	return n, nil
}

func (s *MembershipStore) IsActive(ctx context.Context, partyID domain.PartyID, uid domain.UserID) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM participants WHERE party_id = $1 AND user_id = $2 AND is_active
		)
	`, partyID, uid).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return active, nil
}

// ListActive returns the active roster ordered by join time.
func (s *MembershipStore) ListActive(ctx context.Context, partyID domain.PartyID) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.party_id, p.user_id, p.username, p.joined_at, p.left_at, p.is_active,
			p.user_id = wp.host_id AS is_host
		FROM participants p
		JOIN parties wp ON wp.id = p.party_id
		WHERE p.party_id = $1 AND p.is_active
		ORDER BY p.joined_at ASC
	`, partyID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var m domain.Participant
		if err := rows.Scan(&m.PartyID, &m.UserID, &m.Username, &m.JoinedAt, &m.LeftAt, &m.IsActive, &m.IsHost); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
