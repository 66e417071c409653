package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avolkov/reelroom/internal/domain"
)

// MessageStore is the append-only chat log, ordered by id within a
// party.
type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

// Insert persists the message and returns it with the generated id and
// timestamp, which is what gets broadcast.
func (s *MessageStore) Insert(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (party_id, user_id, username, body, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, m.PartyID, m.UserID, m.Username, m.Body, m.Kind).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// List returns up to limit messages older than beforeID (all newest
// when beforeID is 0), oldest first so clients can prepend directly.
func (s *MessageStore) List(ctx context.Context, partyID domain.PartyID, limit int, beforeID domain.MessageID) ([]domain.Message, error) {
	query := `
		SELECT id, party_id, user_id, username, body, kind, created_at
		FROM messages
		WHERE party_id = $1`
	args := []any{partyID}
	if beforeID > 0 {
		query += ` AND id < $2 ORDER BY id DESC LIMIT $3`
		args = append(args, beforeID, limit)
	} else {
		query += ` ORDER BY id DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.PartyID, &m.UserID, &m.Username, &m.Body, &m.Kind, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// storage order is newest first, response order is oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
