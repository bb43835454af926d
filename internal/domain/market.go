package domain

import "time"

// Bar is a single OHLCV candle.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// MarketSnapshot is the unit of market input consumed each tick. It is
// immutable once produced; one snapshot per symbol per tick.
type MarketSnapshot struct {
	Symbol    string
	Timestamp time.Time
	Last      float64
	Bid       float64
	Ask       float64
	Volume    float64
	// Window holds the trailing OHLCV bars available for indicator
	// calculations, oldest first.
	Window []Bar
	// Sentiment is an optional per-symbol sentiment score in [-1, 1].
	// Nil when no reading is available.
	Sentiment *float64
}

// SentimentReading is the scalar market-wide sentiment delivered alongside a
// snapshot batch.
type SentimentReading struct {
	Timestamp time.Time
	// Score is the aggregated sentiment in [-1, 1].
	Score float64
	// FearGreed is the raw fear/greed index in [0, 100] when known.
	FearGreed *float64
}

// SnapshotBatch is one tick's worth of market input: at most one snapshot per
// tracked symbol plus an optional market-wide sentiment reading. A symbol
// missing from Snapshots is explicitly unavailable for this tick, never a
// zero-valued default.
type SnapshotBatch struct {
	Timestamp   time.Time
	Snapshots   map[string]MarketSnapshot
	Unavailable []string
	Sentiment   *SentimentReading
}

// Get returns the snapshot for symbol. The second return is false when the
// symbol's data was unavailable this tick.
func (b SnapshotBatch) Get(symbol string) (MarketSnapshot, bool) {
	s, ok := b.Snapshots[symbol]
	return s, ok
}

// Prices returns the last price per available symbol, for mark-to-market.
func (b SnapshotBatch) Prices() map[string]float64 {
	out := make(map[string]float64, len(b.Snapshots))
	for sym, snap := range b.Snapshots {
		out[sym] = snap.Last
	}
	return out
}
