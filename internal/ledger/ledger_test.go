package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoquant/evobot/internal/domain"
)

func buyTrade(symbol string, price, qty, commission float64) domain.Trade {
	return domain.Trade{
		ID:          "t-buy",
		AlgorithmID: "algo-1",
		Symbol:      symbol,
		Side:        domain.OrderSideBuy,
		FillPrice:   price,
		Quantity:    qty,
		Commission:  commission,
		Timestamp:   time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
	}
}

func sellTrade(symbol string, price, qty, commission float64) domain.Trade {
	return domain.Trade{
		ID:          "t-sell",
		AlgorithmID: "algo-1",
		Symbol:      symbol,
		Side:        domain.OrderSideSell,
		FillPrice:   price,
		Quantity:    qty,
		Commission:  commission,
		Timestamp:   time.Date(2026, 1, 2, 11, 0, 0, 0, time.UTC),
	}
}

func TestApplyBuyDebitsCashAndOpensPosition(t *testing.T) {
	l := New("algo-1", 100)

	_, err := l.Apply(buyTrade("BTC-USD", 10, 4, 0.04))
	require.NoError(t, err)

	assert.InDelta(t, 100-40-0.04, l.Cash(), 1e-9)
	pos, ok := l.Position("BTC-USD")
	require.True(t, ok)
	assert.InDelta(t, 4, pos.Quantity, 1e-9)
	assert.InDelta(t, 10, pos.AvgCost, 1e-9)
}

func TestApplyBuyInsufficientFundsIsAtomic(t *testing.T) {
	l := New("algo-1", 100)

	_, err := l.Apply(buyTrade("BTC-USD", 50, 3, 0))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Nothing moved: cash, positions, and history are all untouched.
	assert.InDelta(t, 100, l.Cash(), 1e-9)
	_, ok := l.Position("BTC-USD")
	assert.False(t, ok)
	assert.Empty(t, l.Snapshot().Trades)
}

func TestApplySellWithoutPositionIsAtomic(t *testing.T) {
	l := New("algo-1", 100)

	_, err := l.Apply(sellTrade("ETH-USD", 10, 1, 0))
	require.ErrorIs(t, err, domain.ErrInsufficientPosition)
	assert.InDelta(t, 100, l.Cash(), 1e-9)
	assert.Empty(t, l.Snapshot().Trades)
}

func TestWeightedAverageCostBasis(t *testing.T) {
	l := New("algo-1", 1000)

	_, err := l.Apply(buyTrade("BTC-USD", 10, 10, 0))
	require.NoError(t, err)
	_, err = l.Apply(buyTrade("BTC-USD", 20, 10, 0))
	require.NoError(t, err)

	pos, ok := l.Position("BTC-USD")
	require.True(t, ok)
	assert.InDelta(t, 20, pos.Quantity, 1e-9)
	assert.InDelta(t, 15, pos.AvgCost, 1e-9)
}

func TestRealizedPnLAgainstCostBasis(t *testing.T) {
	l := New("algo-1", 1000)

	_, err := l.Apply(buyTrade("BTC-USD", 10, 10, 0.1))
	require.NoError(t, err)

	sell := sellTrade("BTC-USD", 12, 10, 0.12)
	sell.SlippageCost = 0.05
	applied, err := l.Apply(sell)
	require.NoError(t, err)

	// (12 - 10) * 10 - 0.12 - 0.05
	assert.InDelta(t, 19.83, applied.RealizedPnL, 1e-9)

	// Full close removes the position.
	_, ok := l.Position("BTC-USD")
	assert.False(t, ok)
}

func TestPartialSellKeepsCostBasis(t *testing.T) {
	l := New("algo-1", 1000)

	_, err := l.Apply(buyTrade("BTC-USD", 10, 10, 0))
	require.NoError(t, err)
	_, err = l.Apply(sellTrade("BTC-USD", 11, 4, 0))
	require.NoError(t, err)

	pos, ok := l.Position("BTC-USD")
	require.True(t, ok)
	assert.InDelta(t, 6, pos.Quantity, 1e-9)
	assert.InDelta(t, 10, pos.AvgCost, 1e-9)
}

// Cash + position cost + cumulative costs must always reconstruct the
// initial capital when valued at cost.
func TestValueConservationAtCost(t *testing.T) {
	l := New("algo-1", 100)

	_, err := l.Apply(buyTrade("BTC-USD", 10, 5, 0.05))
	require.NoError(t, err)

	st := l.Snapshot()
	held := 0.0
	for _, p := range st.Positions {
		held += p.AvgCost * p.Quantity
	}
	assert.InDelta(t, 100, st.Cash+held+st.TotalCommission, 1e-9)
}

func TestMarkToMarketFallsBackToLastMark(t *testing.T) {
	l := New("algo-1", 100)

	_, err := l.Apply(buyTrade("BTC-USD", 10, 5, 0))
	require.NoError(t, err)

	// No price for the held symbol: valued at the last mark (fill price).
	v := l.MarkToMarket(map[string]float64{})
	assert.InDelta(t, 50+50, v, 1e-9)

	v = l.MarkToMarket(map[string]float64{"BTC-USD": 12})
	assert.InDelta(t, 50+60, v, 1e-9)
}

func TestObserveAppendsValueSeries(t *testing.T) {
	l := New("algo-1", 100)
	ts := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	l.Observe(ts, nil)
	_, err := l.Apply(buyTrade("BTC-USD", 10, 5, 0))
	require.NoError(t, err)
	l.Observe(ts.Add(time.Minute), map[string]float64{"BTC-USD": 12})

	series := l.Snapshot().ValueSeries
	require.Len(t, series, 2)
	assert.InDelta(t, 100, series[0].Value, 1e-9)
	assert.InDelta(t, 110, series[1].Value, 1e-9)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	l := New("algo-1", 100)
	_, err := l.Apply(buyTrade("BTC-USD", 10, 5, 0))
	require.NoError(t, err)

	st := l.Snapshot()
	st.Positions["BTC-USD"] = domain.Position{Symbol: "BTC-USD", Quantity: 999}

	pos, _ := l.Position("BTC-USD")
	assert.InDelta(t, 5, pos.Quantity, 1e-9)
}

func TestArchiveCarriesFullHistory(t *testing.T) {
	l := New("algo-1", 100)
	_, err := l.Apply(buyTrade("BTC-USD", 10, 5, 0))
	require.NoError(t, err)
	_, err = l.Apply(sellTrade("BTC-USD", 12, 5, 0))
	require.NoError(t, err)
	l.Observe(time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC), nil)

	retired := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	arch := l.Archive(retired)

	assert.Equal(t, "algo-1", arch.AlgorithmID)
	assert.Equal(t, retired, arch.RetiredAt)
	assert.Len(t, arch.Trades, 2)
	assert.Len(t, arch.ValueSeries, 1)
	assert.InDelta(t, l.Cash(), arch.Cash, 1e-9)
}
