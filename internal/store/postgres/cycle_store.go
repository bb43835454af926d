package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evoquant/evobot/internal/domain"
)

// CycleStore implements domain.CycleStore using PostgreSQL.
type CycleStore struct {
	pool *pgxpool.Pool
}

// NewCycleStore creates a CycleStore backed by the given connection pool.
func NewCycleStore(pool *pgxpool.Pool) *CycleStore {
	return &CycleStore{pool: pool}
}

// Insert appends one evolution cycle record. Records are never updated.
func (s *CycleStore) Insert(ctx context.Context, rec domain.EvolutionCycleRecord) error {
	proposed, err := json.Marshal(rec.Proposed)
	if err != nil {
		return fmt.Errorf("postgres: marshal proposals for cycle %s: %w", rec.CycleID, err)
	}

	const query = `
		INSERT INTO evolution_cycles (
			cycle_id, timestamp, selected_ids, proposed,
			accepted_ids, retired_ids, aborted, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.pool.Exec(ctx, query,
		rec.CycleID, rec.Timestamp, rec.SelectedIDs, proposed,
		rec.AcceptedIDs, rec.RetiredIDs, rec.Aborted, rec.Reason,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert cycle %s: %w", rec.CycleID, err)
	}
	return nil
}

// ListRecent returns the most recent cycle records, newest first.
func (s *CycleStore) ListRecent(ctx context.Context, limit int) ([]domain.EvolutionCycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT cycle_id, timestamp, selected_ids, proposed,
			accepted_ids, retired_ids, aborted, reason
		FROM evolution_cycles
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent cycles: %w", err)
	}
	defer rows.Close()

	var out []domain.EvolutionCycleRecord
	for rows.Next() {
		var rec domain.EvolutionCycleRecord
		var proposed []byte
		if err := rows.Scan(
			&rec.CycleID, &rec.Timestamp, &rec.SelectedIDs, &proposed,
			&rec.AcceptedIDs, &rec.RetiredIDs, &rec.Aborted, &rec.Reason,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan cycle: %w", err)
		}
		if len(proposed) > 0 {
			if err := json.Unmarshal(proposed, &rec.Proposed); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal proposals for cycle %s: %w", rec.CycleID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
