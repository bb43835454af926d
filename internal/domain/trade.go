package domain

import "time"

// Trade is a single fill, created exactly once per filled order. The trade
// history of a ledger is append-only.
type Trade struct {
	ID          string
	OrderID     string
	AlgorithmID string
	Symbol      string
	Side        OrderSide
	FillPrice   float64
	Quantity    float64
	Commission  float64
	// SlippageCost is the deterministic price-impact cost in quote currency.
	SlippageCost float64
	// RealizedPnL is set on sell fills: (fill - avg cost) * qty - costs.
	RealizedPnL float64
	Timestamp   time.Time
}

// Notional returns the fill value before costs.
func (t Trade) Notional() float64 {
	return t.FillPrice * t.Quantity
}
