// Package ledger implements the per-algorithm paper-trading account: cash,
// positions, and an append-only trade history. Each ledger is exclusively
// owned by one algorithm for its entire lifetime.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/evoquant/evobot/internal/domain"
)

// epsilon absorbs float rounding when comparing cash and quantities.
const epsilon = 1e-9

// Ledger tracks one algorithm's simulated account. All methods are safe for
// concurrent use; trade application is atomic (a rejected trade leaves no
// state change behind).
type Ledger struct {
	mu sync.RWMutex

	algorithmID    string
	initialCapital float64
	cash           float64
	positions      map[string]domain.Position
	trades         []domain.Trade
	series         []domain.ValuePoint

	totalCommission float64
	totalSlippage   float64
}

// New creates a ledger with the configured starting capital.
func New(algorithmID string, startingCapital float64) *Ledger {
	return &Ledger{
		algorithmID:    algorithmID,
		initialCapital: startingCapital,
		cash:           startingCapital,
		positions:      make(map[string]domain.Position),
	}
}

// AlgorithmID returns the owning algorithm's id.
func (l *Ledger) AlgorithmID() string { return l.algorithmID }

// InitialCapital returns the starting cash amount.
func (l *Ledger) InitialCapital() float64 { return l.initialCapital }

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// Position returns the held position for symbol, if any.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	return p, ok
}

// Apply validates the trade against the ledger's current state and, when
// valid, debits/credits cash, updates or removes the position, and appends
// the trade to history. The returned trade carries the realized P&L computed
// against the position's cost basis. Both checks run before any mutation, so
// a rejected trade is a no-op.
func (l *Ledger) Apply(t domain.Trade) (domain.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch t.Side {
	case domain.OrderSideBuy:
		cost := t.FillPrice*t.Quantity + t.Commission
		if cost > l.cash+epsilon {
			return domain.Trade{}, fmt.Errorf("ledger %s: buy %s cost %.4f exceeds cash %.4f: %w",
				l.algorithmID, t.Symbol, cost, l.cash, domain.ErrInsufficientFunds)
		}
		l.cash -= cost
		l.applyBuy(t)

	case domain.OrderSideSell:
		pos, ok := l.positions[t.Symbol]
		if !ok || pos.Quantity+epsilon < t.Quantity {
			held := 0.0
			if ok {
				held = pos.Quantity
			}
			return domain.Trade{}, fmt.Errorf("ledger %s: sell %.4f %s exceeds held %.4f: %w",
				l.algorithmID, t.Quantity, t.Symbol, held, domain.ErrInsufficientPosition)
		}
		t.RealizedPnL = (t.FillPrice-pos.AvgCost)*t.Quantity - t.Commission - t.SlippageCost
		l.cash += t.FillPrice*t.Quantity - t.Commission
		l.applySell(t, pos)

	default:
		return domain.Trade{}, fmt.Errorf("ledger %s: unknown trade side %q", l.algorithmID, t.Side)
	}

	l.totalCommission += t.Commission
	l.totalSlippage += t.SlippageCost
	l.trades = append(l.trades, t)
	return t, nil
}

func (l *Ledger) applyBuy(t domain.Trade) {
	pos, ok := l.positions[t.Symbol]
	if !ok {
		l.positions[t.Symbol] = domain.Position{
			AlgorithmID: l.algorithmID,
			Symbol:      t.Symbol,
			Quantity:    t.Quantity,
			AvgCost:     t.FillPrice,
			MarkPrice:   t.FillPrice,
			OpenedAt:    t.Timestamp,
		}
		return
	}
	// Weighted-average cost basis across the old lot and the new fill.
	totalCost := pos.AvgCost*pos.Quantity + t.FillPrice*t.Quantity
	pos.Quantity += t.Quantity
	pos.AvgCost = totalCost / pos.Quantity
	pos.MarkPrice = t.FillPrice
	l.positions[t.Symbol] = pos
}

func (l *Ledger) applySell(t domain.Trade, pos domain.Position) {
	pos.Quantity -= t.Quantity
	pos.MarkPrice = t.FillPrice
	if pos.Quantity <= epsilon {
		delete(l.positions, t.Symbol)
		return
	}
	// Cost basis of the remaining lot is unchanged by a partial sell.
	l.positions[t.Symbol] = pos
}

// MarkToMarket returns the total portfolio value at the given prices without
// mutating any held state. Symbols with no current price are valued at their
// last mark.
func (l *Ledger) MarkToMarket(prices map[string]float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.valueLocked(prices)
}

func (l *Ledger) valueLocked(prices map[string]float64) float64 {
	total := l.cash
	for sym, pos := range l.positions {
		px, ok := prices[sym]
		if !ok {
			px = pos.MarkPrice
		}
		total += pos.Quantity * px
	}
	return total
}

// Observe records one portfolio-value data point and refreshes position mark
// prices. The engine calls it once per tick; the resulting series feeds
// drawdown and Sharpe calculations.
func (l *Ledger) Observe(ts time.Time, prices map[string]float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	for sym, pos := range l.positions {
		if px, ok := prices[sym]; ok {
			pos.MarkPrice = px
			l.positions[sym] = pos
		}
	}
	v := l.valueLocked(prices)
	l.series = append(l.series, domain.ValuePoint{Timestamp: ts, Value: v})
	return v
}

// State is an immutable snapshot of a ledger.
type State struct {
	AlgorithmID     string
	InitialCapital  float64
	Cash            float64
	Positions       map[string]domain.Position
	Trades          []domain.Trade
	ValueSeries     []domain.ValuePoint
	TotalCommission float64
	TotalSlippage   float64
}

// Snapshot returns a deep copy of the ledger's current state.
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := make(map[string]domain.Position, len(l.positions))
	for k, v := range l.positions {
		positions[k] = v
	}
	trades := make([]domain.Trade, len(l.trades))
	copy(trades, l.trades)
	series := make([]domain.ValuePoint, len(l.series))
	copy(series, l.series)

	return State{
		AlgorithmID:     l.algorithmID,
		InitialCapital:  l.initialCapital,
		Cash:            l.cash,
		Positions:       positions,
		Trades:          trades,
		ValueSeries:     series,
		TotalCommission: l.totalCommission,
		TotalSlippage:   l.totalSlippage,
	}
}

// Archive converts the ledger into its read-only archived form for cold
// storage after retirement.
func (l *Ledger) Archive(retiredAt time.Time) domain.LedgerArchive {
	st := l.Snapshot()
	return domain.LedgerArchive{
		AlgorithmID: st.AlgorithmID,
		RetiredAt:   retiredAt,
		Cash:        st.Cash,
		Trades:      st.Trades,
		ValueSeries: st.ValueSeries,
	}
}
