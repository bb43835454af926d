package domain

import "time"

// Position is a long-only holding in a single symbol, private to one
// algorithm's ledger. It is mutated only by trade application and removed
// from the ledger when quantity reaches zero.
type Position struct {
	AlgorithmID string
	Symbol      string
	Quantity    float64
	// AvgCost is the weighted-average cost basis per unit.
	AvgCost float64
	// MarkPrice is the most recent mark-to-market price.
	MarkPrice float64
	OpenedAt  time.Time
}

// MarketValue returns quantity times the current mark price.
func (p Position) MarketValue() float64 {
	return p.Quantity * p.MarkPrice
}

// UnrealizedPnL returns the open profit against the cost basis.
func (p Position) UnrealizedPnL() float64 {
	return (p.MarkPrice - p.AvgCost) * p.Quantity
}
