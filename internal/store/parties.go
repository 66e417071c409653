package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avolkov/reelroom/internal/domain"
)

const pgUniqueViolation = "23505"

// PartyStore persists parties. Parties are never deleted; ended ones
// remain as historical records.
type PartyStore struct {
	pool *pgxpool.Pool
}

func NewPartyStore(pool *pgxpool.Pool) *PartyStore {
	return &PartyStore{pool: pool}
}

const partyColumns = `id, host_id, movie_ref, code, title, max_participants,
	is_public, status, scheduled_at, started_at, ended_at, created_at`

func scanParty(row pgx.Row) (*domain.Party, error) {
	p := &domain.Party{}
	err := row.Scan(
		&p.ID,
		&p.HostID,
		&p.MovieRef,
		&p.Code,
		&p.Title,
		&p.MaxParticipants,
		&p.IsPublic,
		&p.Status,
		&p.ScheduledAt,
		&p.StartedAt,
		&p.EndedAt,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPartyNotFound
		}
		return nil, fmt.Errorf("scan party: %w", err)
	}
	return p, nil
}

// Create inserts the party, its host membership and a zeroed playback
// row in one transaction. A code collision surfaces as ErrCodeTaken so
// the caller can regenerate and retry.
func (s *PartyStore) Create(ctx context.Context, p *domain.Party, hostName string) (*domain.Party, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("create party: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO parties (host_id, movie_ref, code, title, max_participants, is_public, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, p.HostID, p.MovieRef, p.Code, p.Title, p.MaxParticipants, p.IsPublic, p.Status, p.ScheduledAt).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, domain.ErrCodeTaken
		}
		return nil, fmt.Errorf("create party: insert: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO participants (party_id, user_id, username, is_active)
		VALUES ($1, $2, $3, TRUE)
	`, p.ID, p.HostID, hostName)
	if err != nil {
		return nil, fmt.Errorf("create party: host membership: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO playback_states (party_id, position, is_playing, updated_by)
		VALUES ($1, 0, FALSE, $2)
	`, p.ID, p.HostID)
	if err != nil {
		return nil, fmt.Errorf("create party: playback state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create party: commit: %w", err)
	}
	return p, nil
}

func (s *PartyStore) Get(ctx context.Context, id domain.PartyID) (*domain.Party, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE id = $1`, id)
	return scanParty(row)
}

func (s *PartyStore) GetByCode(ctx context.Context, code domain.PartyCode) (*domain.Party, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE code = $1`, code)
	return scanParty(row)
}

// Start moves the party into active, stamping started_at only on the
// very first start.
func (s *PartyStore) Start(ctx context.Context, id domain.PartyID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE parties
		SET status = $2, started_at = COALESCE(started_at, NOW())
		WHERE id = $1
	`, id, domain.PartyActive)
	if err != nil {
		return fmt.Errorf("start party: %w", err)
	}
	return nil
}

func (s *PartyStore) Pause(ctx context.Context, id domain.PartyID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE parties SET status = $2 WHERE id = $1`, id, domain.PartyPaused)
	if err != nil {
		return fmt.Errorf("pause party: %w", err)
	}
	return nil
}

// End terminates the party and deactivates every membership in one
// transaction. This is the only place lifecycle and membership move
// together.
func (s *PartyStore) End(ctx context.Context, id domain.PartyID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("end party: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE parties SET status = $2, ended_at = NOW() WHERE id = $1
	`, id, domain.PartyEnded)
	if err != nil {
		return fmt.Errorf("end party: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE participants SET is_active = FALSE, left_at = NOW()
		WHERE party_id = $1 AND is_active
	`, id)
	if err != nil {
		return fmt.Errorf("end party: deactivate members: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("end party: commit: %w", err)
	}
	return nil
}

const summaryQuery = `
	SELECT ` + partyColumns + `,
		(SELECT COUNT(*) FROM participants WHERE party_id = parties.id AND is_active) AS participant_count
	FROM parties`

func (s *PartyStore) scanSummaries(rows pgx.Rows) ([]domain.PartySummary, error) {
	defer rows.Close()
	var out []domain.PartySummary
	for rows.Next() {
		var ps domain.PartySummary
		err := rows.Scan(
			&ps.ID,
			&ps.HostID,
			&ps.MovieRef,
			&ps.Code,
			&ps.Title,
			&ps.MaxParticipants,
			&ps.IsPublic,
			&ps.Status,
			&ps.ScheduledAt,
			&ps.StartedAt,
			&ps.EndedAt,
			&ps.CreatedAt,
			&ps.ParticipantCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan party summary: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// ListForUser returns parties the user hosts or actively participates
// in, newest first.
func (s *PartyStore) ListForUser(ctx context.Context, uid domain.UserID) ([]domain.PartySummary, error) {
	rows, err := s.pool.Query(ctx, summaryQuery+`
		WHERE host_id = $1 OR id IN (
			SELECT party_id FROM participants WHERE user_id = $1 AND is_active
		)
		ORDER BY created_at DESC
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("list user parties: %w", err)
	}
	return s.scanSummaries(rows)
}

// ListPublic returns joinable public parties, newest first.
func (s *PartyStore) ListPublic(ctx context.Context, limit int) ([]domain.PartySummary, error) {
	rows, err := s.pool.Query(ctx, summaryQuery+`
		WHERE is_public AND status IN ($1, $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, domain.PartyWaiting, domain.PartyActive, limit)
	if err != nil {
		return nil, fmt.Errorf("list public parties: %w", err)
	}
	return s.scanSummaries(rows)
}
