package domain

import "time"

// PerformanceMetricSnapshot is one append-only evaluation of an algorithm's
// ledger over a rolling window. Never mutated after creation.
type PerformanceMetricSnapshot struct {
	AlgorithmID string
	WindowStart time.Time
	WindowEnd   time.Time
	ROI         float64
	Sharpe      float64
	Sortino     float64
	// MaxDrawdown is the peak-to-trough loss as a fraction of the peak,
	// in [0, 1].
	MaxDrawdown float64
	// WinRate is nil when the window contains no closing trades; a zero
	// win rate and "no trades" are distinct outcomes.
	WinRate    *float64
	TradeCount int
	ComputedAt time.Time
}
