package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evoquant/evobot/internal/domain"
)

// DescriptorStore implements domain.DescriptorStore using PostgreSQL.
type DescriptorStore struct {
	pool *pgxpool.Pool
}

// NewDescriptorStore creates a DescriptorStore backed by the given pool.
func NewDescriptorStore(pool *pgxpool.Pool) *DescriptorStore {
	return &DescriptorStore{pool: pool}
}

// Upsert writes a descriptor, replacing status and retired_at on conflict.
// Family, params, and lineage are immutable after creation.
func (s *DescriptorStore) Upsert(ctx context.Context, d domain.AlgorithmDescriptor) error {
	params, err := json.Marshal(d.Params)
	if err != nil {
		return fmt.Errorf("postgres: marshal params for %s: %w", d.ID, err)
	}

	const query = `
		INSERT INTO algorithms (
			id, name, family, params, generation, parent_ids,
			status, created_at, retired_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			retired_at = EXCLUDED.retired_at`

	_, err = s.pool.Exec(ctx, query,
		d.ID, d.Name, d.Family, params, d.Generation, d.ParentIDs,
		d.Status, d.CreatedAt, d.RetiredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert descriptor %s: %w", d.ID, err)
	}
	return nil
}

// Delete removes a descriptor row. Deleting an unknown id is a no-op; the
// row may never have been persisted in the first place.
func (s *DescriptorStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM algorithms WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete descriptor %s: %w", id, err)
	}
	return nil
}

const descriptorSelectCols = `id, name, family, params, generation,
	parent_ids, status, created_at, retired_at`

func scanDescriptor(row pgx.Row) (domain.AlgorithmDescriptor, error) {
	var d domain.AlgorithmDescriptor
	var params []byte
	if err := row.Scan(
		&d.ID, &d.Name, &d.Family, &params, &d.Generation,
		&d.ParentIDs, &d.Status, &d.CreatedAt, &d.RetiredAt,
	); err != nil {
		return domain.AlgorithmDescriptor{}, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &d.Params); err != nil {
			return domain.AlgorithmDescriptor{}, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	return d, nil
}

// GetByID returns one descriptor.
func (s *DescriptorStore) GetByID(ctx context.Context, id string) (domain.AlgorithmDescriptor, error) {
	query := `SELECT ` + descriptorSelectCols + ` FROM algorithms WHERE id = $1`
	d, err := scanDescriptor(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AlgorithmDescriptor{}, fmt.Errorf("postgres: descriptor %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.AlgorithmDescriptor{}, fmt.Errorf("postgres: get descriptor %s: %w", id, err)
	}
	return d, nil
}

// ListByStatus returns all descriptors in the given lifecycle status, oldest
// first so restart recovery rebuilds the pool in creation order.
func (s *DescriptorStore) ListByStatus(ctx context.Context, status domain.AlgorithmStatus) ([]domain.AlgorithmDescriptor, error) {
	query := `SELECT ` + descriptorSelectCols + ` FROM algorithms WHERE status = $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("postgres: list descriptors by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []domain.AlgorithmDescriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan descriptor: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
