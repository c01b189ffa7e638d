package intake

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TurnStore is the conversation history dependency: ordered, append-only
// turns per lead, oldest first.
type TurnStore interface {
	LoadTurns(ctx context.Context, leadID string) ([]Turn, error)
	AppendTurn(ctx context.Context, leadID string, turn Turn) error
}

// PostgresTurnStore persists turns to PostgreSQL for long-term history.
type PostgresTurnStore struct {
	db *sql.DB
}

func NewPostgresTurnStore(db *sql.DB) *PostgresTurnStore {
	if db == nil {
		return nil
	}
	return &PostgresTurnStore{db: db}
}

var _ TurnStore = (*PostgresTurnStore)(nil)

// LoadTurns returns the full ordered history for a lead.
func (s *PostgresTurnStore) LoadTurns(ctx context.Context, leadID string) ([]Turn, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, text, created_at
		FROM conversation_turns
		WHERE lead_id = $1
		ORDER BY created_at ASC, id ASC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("intake: failed to load turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		if err := rows.Scan(&turn.Role, &turn.Text, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("intake: failed to scan turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("intake: turn iteration failed: %w", err)
	}

	return turns, nil
}

// AppendTurn records one message. Turns are immutable once written.
func (s *PostgresTurnStore) AppendTurn(ctx context.Context, leadID string, turn Turn) error {
	if s == nil || s.db == nil {
		return nil
	}

	timestamp := turn.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (lead_id, role, text, created_at)
		VALUES ($1, $2, $3, $4)
	`, leadID, turn.Role, turn.Text, timestamp)
	if err != nil {
		return fmt.Errorf("intake: failed to append turn: %w", err)
	}

	return nil
}

// MemoryTurnStore is an in-memory TurnStore for tests and local development.
type MemoryTurnStore struct {
	turns map[string][]Turn
}

func NewMemoryTurnStore() *MemoryTurnStore {
	return &MemoryTurnStore{turns: make(map[string][]Turn)}
}

var _ TurnStore = (*MemoryTurnStore)(nil)

func (s *MemoryTurnStore) LoadTurns(_ context.Context, leadID string) ([]Turn, error) {
	stored := s.turns[leadID]
	out := make([]Turn, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryTurnStore) AppendTurn(_ context.Context, leadID string, turn Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	s.turns[leadID] = append(s.turns[leadID], turn)
	return nil
}
