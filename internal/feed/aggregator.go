package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/evoquant/evobot/internal/domain"
)

// Aggregator folds the quote, bar, and sentiment streams into per-tick
// snapshot batches. It keeps a bounded trailing bar window per symbol and
// marks a symbol unavailable when its latest quote is older than the
// staleness bound.
type Aggregator struct {
	mu sync.RWMutex

	symbols    []string
	windowSize int
	staleAfter time.Duration

	quotes    map[string]domain.MarketSnapshot
	windows   map[string][]domain.Bar
	sentiment *domain.SentimentReading

	cache  domain.SnapshotCache
	logger *slog.Logger
}

// NewAggregator creates an Aggregator tracking the given symbols. cache may
// be nil when no shared snapshot cache is wired.
func NewAggregator(symbols []string, windowSize int, staleAfter time.Duration, cache domain.SnapshotCache, logger *slog.Logger) *Aggregator {
	if windowSize <= 0 {
		windowSize = 400
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &Aggregator{
		symbols:    append([]string(nil), symbols...),
		windowSize: windowSize,
		staleAfter: staleAfter,
		quotes:     make(map[string]domain.MarketSnapshot, len(symbols)),
		windows:    make(map[string][]domain.Bar, len(symbols)),
		cache:      cache,
		logger:     logger.With(slog.String("component", "aggregator")),
	}
}

// ApplyQuote records the latest top-of-book quote for a symbol.
func (a *Aggregator) ApplyQuote(ctx context.Context, snap domain.MarketSnapshot) {
	a.mu.Lock()
	a.quotes[snap.Symbol] = snap
	a.mu.Unlock()

	if a.cache != nil {
		if err := a.cache.Set(ctx, snap); err != nil {
			a.logger.Debug("snapshot cache write failed",
				slog.String("symbol", snap.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ApplyBar appends a completed bar to the symbol's trailing window, evicting
// the oldest entry once the window is full.
func (a *Aggregator) ApplyBar(bar domain.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := append(a.windows[bar.Symbol], bar)
	if len(w) > a.windowSize {
		w = w[len(w)-a.windowSize:]
	}
	a.windows[bar.Symbol] = w
}

// ApplySentiment records the latest market-wide sentiment reading.
func (a *Aggregator) ApplySentiment(ctx context.Context, reading domain.SentimentReading) {
	a.mu.Lock()
	a.sentiment = &reading
	a.mu.Unlock()

	if a.cache != nil {
		if err := a.cache.SetSentiment(ctx, reading); err != nil {
			a.logger.Debug("sentiment cache write failed", slog.String("error", err.Error()))
		}
	}
}

// BatchAt assembles the snapshot batch for a tick at ts. A symbol whose
// latest quote is missing or older than the staleness bound is listed in
// Unavailable and omitted from Snapshots.
func (a *Aggregator) BatchAt(ts time.Time) domain.SnapshotBatch {
	a.mu.RLock()
	defer a.mu.RUnlock()

	batch := domain.SnapshotBatch{
		Timestamp: ts,
		Snapshots: make(map[string]domain.MarketSnapshot, len(a.symbols)),
		Sentiment: a.sentiment,
	}
	for _, sym := range a.symbols {
		q, ok := a.quotes[sym]
		if !ok || ts.Sub(q.Timestamp) > a.staleAfter {
			batch.Unavailable = append(batch.Unavailable, sym)
			continue
		}
		snap := q
		snap.Timestamp = ts
		snap.Window = append([]domain.Bar(nil), a.windows[sym]...)
		if a.sentiment != nil {
			score := a.sentiment.Score
			snap.Sentiment = &score
		}
		batch.Snapshots[sym] = snap
	}
	return batch
}
