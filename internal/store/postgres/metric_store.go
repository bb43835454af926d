package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evoquant/evobot/internal/domain"
)

// MetricStore implements domain.MetricStore using PostgreSQL.
type MetricStore struct {
	pool *pgxpool.Pool
}

// NewMetricStore creates a MetricStore backed by the given connection pool.
func NewMetricStore(pool *pgxpool.Pool) *MetricStore {
	return &MetricStore{pool: pool}
}

const metricSelectCols = `algorithm_id, window_start, window_end, roi, sharpe,
	sortino, max_drawdown, win_rate, trade_count, computed_at`

// Insert appends one metric snapshot. Snapshots are never updated.
func (s *MetricStore) Insert(ctx context.Context, m domain.PerformanceMetricSnapshot) error {
	const query = `
		INSERT INTO performance_metrics (
			algorithm_id, window_start, window_end, roi, sharpe,
			sortino, max_drawdown, win_rate, trade_count, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		m.AlgorithmID, m.WindowStart, m.WindowEnd, m.ROI, m.Sharpe,
		m.Sortino, m.MaxDrawdown, m.WinRate, m.TradeCount, m.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert metric for %s: %w", m.AlgorithmID, err)
	}
	return nil
}

// Latest returns the most recent snapshot for an algorithm.
func (s *MetricStore) Latest(ctx context.Context, algorithmID string) (domain.PerformanceMetricSnapshot, error) {
	query := `SELECT ` + metricSelectCols + `
		FROM performance_metrics
		WHERE algorithm_id = $1
		ORDER BY computed_at DESC
		LIMIT 1`

	var m domain.PerformanceMetricSnapshot
	err := s.pool.QueryRow(ctx, query, algorithmID).Scan(
		&m.AlgorithmID, &m.WindowStart, &m.WindowEnd, &m.ROI, &m.Sharpe,
		&m.Sortino, &m.MaxDrawdown, &m.WinRate, &m.TradeCount, &m.ComputedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PerformanceMetricSnapshot{}, fmt.Errorf("postgres: metric for %s: %w", algorithmID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.PerformanceMetricSnapshot{}, fmt.Errorf("postgres: latest metric for %s: %w", algorithmID, err)
	}
	return m, nil
}

// ListByAlgorithm returns an algorithm's snapshots, newest first.
func (s *MetricStore) ListByAlgorithm(ctx context.Context, algorithmID string, opts domain.ListOpts) ([]domain.PerformanceMetricSnapshot, error) {
	query := `SELECT ` + metricSelectCols + ` FROM performance_metrics WHERE algorithm_id = $1`
	args := []any{algorithmID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND computed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND computed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY computed_at DESC"

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
		return nil, fmt.Errorf("postgres: list metrics for %s: %w", algorithmID, err)
	}
	defer rows.Close()

	var out []domain.PerformanceMetricSnapshot
	for rows.Next() {
		var m domain.PerformanceMetricSnapshot
		if err := rows.Scan(
			&m.AlgorithmID, &m.WindowStart, &m.WindowEnd, &m.ROI, &m.Sharpe,
			&m.Sortino, &m.MaxDrawdown, &m.WinRate, &m.TradeCount, &m.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
