package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evoquant/evobot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, order_id, algorithm_id, symbol, side,
	fill_price, quantity, commission, slippage_cost, realized_pnl, timestamp`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(
			&t.ID, &t.OrderID, &t.AlgorithmID, &t.Symbol, &t.Side,
			&t.FillPrice, &t.Quantity, &t.Commission, &t.SlippageCost,
			&t.RealizedPnL, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch inserts a tick's fills using pgx Batch. Re-inserting an already
// persisted trade id is a no-op via ON CONFLICT DO NOTHING, so replays stay
// idempotent.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trades (
			id, order_id, algorithm_id, symbol, side,
			fill_price, quantity, commission, slippage_cost, realized_pnl, timestamp
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		) ON CONFLICT (id) DO NOTHING`

	for _, t := range trades {
		batch.Queue(query,
			t.ID, t.OrderID, t.AlgorithmID, t.Symbol, t.Side,
			t.FillPrice, t.Quantity, t.Commission, t.SlippageCost,
			t.RealizedPnL, t.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByAlgorithm returns an algorithm's trades with pagination and optional
// time filtering, newest first.
func (s *TradeStore) ListByAlgorithm(ctx context.Context, algorithmID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE algorithm_id = $1`
	args := []any{algorithmID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY timestamp DESC"

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
		return nil, fmt.Errorf("postgres: list trades for %s: %w", algorithmID, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades for %s: %w", algorithmID, err)
	}
	return trades, nil
}
