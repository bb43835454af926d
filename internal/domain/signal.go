package domain

import "time"

// SignalAction is an algorithm's per-tick trading decision.
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// Signal is the output contract of an algorithm for one symbol on one tick.
// Signals are produced fresh each tick and are not persisted beyond the audit
// log.
type Signal struct {
	AlgorithmID string
	Symbol      string
	Action      SignalAction
	// Confidence is in [0, 1] and scales position sizing.
	Confidence float64
	Reason     string
	Timestamp  time.Time
}

// HoldSignal returns an explicit HOLD for the given algorithm and symbol.
// The executor substitutes it when an algorithm fails or times out.
func HoldSignal(algorithmID, symbol string, ts time.Time) Signal {
	return Signal{
		AlgorithmID: algorithmID,
		Symbol:      symbol,
		Action:      ActionHold,
		Timestamp:   ts,
	}
}
