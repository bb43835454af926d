package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evoquant/evobot/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts one order. Orders in a terminal status are immutable, so
// re-creating an existing id is a no-op.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, algorithm_id, symbol, side, order_type,
			quantity, limit_price, status, rejection, created_at, filled_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		) ON CONFLICT (id) DO NOTHING`

	var rejection *string
	if o.Rejection != "" {
		r := string(o.Rejection)
		rejection = &r
	}
	_, err := s.pool.Exec(ctx, query,
		o.ID, o.AlgorithmID, o.Symbol, o.Side, o.Type,
		o.Quantity, o.LimitPrice, o.Status, rejection, o.CreatedAt, o.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// ListRejected returns an algorithm's rejected orders, newest first.
func (s *OrderStore) ListRejected(ctx context.Context, algorithmID string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `
		SELECT id, algorithm_id, symbol, side, order_type,
			quantity, limit_price, status, rejection, created_at, filled_at
		FROM orders
		WHERE algorithm_id = $1 AND status = $2`
	args := []any{algorithmID, domain.OrderStatusRejected}
	argIdx := 3

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rejected orders for %s: %w", algorithmID, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var rejection *string
		if err := rows.Scan(
			&o.ID, &o.AlgorithmID, &o.Symbol, &o.Side, &o.Type,
			&o.Quantity, &o.LimitPrice, &o.Status, &rejection, &o.CreatedAt, &o.FilledAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		if rejection != nil {
			o.Rejection = domain.RejectionReason(*rejection)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
