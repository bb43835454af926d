package sim

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoquant/evobot/internal/domain"
	"github.com/evoquant/evobot/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSim() *Simulator {
	return New(Config{
		CommissionRate:  0.001,
		SlippageRate:    0.0005,
		MaxPositionSize: 0.2,
		LotSize:         0.0001,
	}, testLogger())
}

func snap(symbol string, last float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Symbol:    symbol,
		Timestamp: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		Last:      last,
		Bid:       last - 0.5,
		Ask:       last + 0.5,
	}
}

func buySignal(symbol string, confidence float64) domain.Signal {
	return domain.Signal{
		AlgorithmID: "algo-1",
		Symbol:      symbol,
		Action:      domain.ActionBuy,
		Confidence:  confidence,
		Timestamp:   time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestHoldProducesNoOrder(t *testing.T) {
	led := ledger.New("algo-1", 100)
	res, err := testSim().Execute(domain.HoldSignal("algo-1", "BTC-USD", time.Now()), led, snap("BTC-USD", 50))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestBuySizingScalesWithConfidence(t *testing.T) {
	led := ledger.New("algo-1", 100)
	res, err := testSim().Execute(buySignal("BTC-USD", 0.9), led, snap("BTC-USD", 50))
	require.NoError(t, err)
	require.True(t, res.Filled())

	// Target notional 0.9 * 100 * 0.2 = 18, at slipped price 50.025.
	fill := res.Trade
	assert.InDelta(t, 50*(1+0.0005), fill.FillPrice, 1e-9)
	assert.InDelta(t, 18, fill.Notional(), 0.01)
	assert.InDelta(t, fill.Notional()*0.001, fill.Commission, 1e-9)
}

func TestExecutionIsDeterministic(t *testing.T) {
	runOnce := func() domain.Trade {
		led := ledger.New("algo-1", 100)
		res, err := testSim().Execute(buySignal("BTC-USD", 0.8), led, snap("BTC-USD", 40))
		require.NoError(t, err)
		require.True(t, res.Filled())
		return *res.Trade
	}

	a, b := runOnce(), runOnce()
	assert.Equal(t, a.FillPrice, b.FillPrice)
	assert.Equal(t, a.Quantity, b.Quantity)
	assert.Equal(t, a.Commission, b.Commission)
	assert.Equal(t, a.SlippageCost, b.SlippageCost)
}

func TestBuyRejectedWhenQuantityRoundsToZero(t *testing.T) {
	s := New(Config{
		CommissionRate:  0.001,
		SlippageRate:    0.0005,
		MaxPositionSize: 0.2,
		LotSize:         1, // whole units only
	}, testLogger())
	led := ledger.New("algo-1", 100)

	// 0.9 * 100 * 0.2 = 18 target notional cannot buy one whole unit at 50.
	res, err := s.Execute(buySignal("BTC-USD", 0.9), led, snap("BTC-USD", 50))
	require.NoError(t, err)
	require.False(t, res.Filled())
	assert.Equal(t, domain.OrderStatusRejected, res.Order.Status)
	assert.Equal(t, domain.RejectZeroQuantity, res.Order.Rejection)
	assert.InDelta(t, 100, led.Cash(), 1e-9)
}

func TestSellWithoutPositionRejected(t *testing.T) {
	led := ledger.New("algo-1", 100)
	sig := buySignal("BTC-USD", 0.9)
	sig.Action = domain.ActionSell

	res, err := testSim().Execute(sig, led, snap("BTC-USD", 50))
	require.NoError(t, err)
	require.False(t, res.Filled())
	assert.Equal(t, domain.RejectNoPosition, res.Order.Rejection)
}

func TestSellClosesFullPosition(t *testing.T) {
	led := ledger.New("algo-1", 100)
	s := testSim()

	res, err := s.Execute(buySignal("BTC-USD", 0.9), led, snap("BTC-USD", 50))
	require.NoError(t, err)
	require.True(t, res.Filled())
	bought := res.Trade.Quantity

	sig := buySignal("BTC-USD", 0.9)
	sig.Action = domain.ActionSell
	res, err = s.Execute(sig, led, snap("BTC-USD", 55))
	require.NoError(t, err)
	require.True(t, res.Filled())

	assert.InDelta(t, bought, res.Trade.Quantity, 1e-9)
	assert.InDelta(t, 55*(1-0.0005), res.Trade.FillPrice, 1e-9)
	_, held := led.Position("BTC-USD")
	assert.False(t, held)
}

func TestPositionCapBlocksAccumulation(t *testing.T) {
	led := ledger.New("algo-1", 100)
	s := testSim()

	// First buy lands inside the 20% cap.
	res, err := s.Execute(buySignal("BTC-USD", 1.0), led, snap("BTC-USD", 50))
	require.NoError(t, err)
	require.True(t, res.Filled())

	// Accumulating into the same symbol runs the held value into the cap.
	for i := 0; i < 10; i++ {
		res, err = s.Execute(buySignal("BTC-USD", 1.0), led, snap("BTC-USD", 50))
		require.NoError(t, err)
		if !res.Filled() {
			break
		}
	}
	require.False(t, res.Filled())
	assert.Equal(t, domain.RejectPositionCap, res.Order.Rejection)

	pos, ok := led.Position("BTC-USD")
	require.True(t, ok)
	value := pos.Quantity * 50
	assert.LessOrEqual(t, value, 0.2*led.MarkToMarket(map[string]float64{"BTC-USD": 50})+1)
}

// Replaying the same rejected signal any number of times leaves the ledger
// byte-identical.
func TestRejectionIsIdempotent(t *testing.T) {
	led := ledger.New("algo-1", 100)
	s := testSim()
	sig := buySignal("BTC-USD", 0.9)
	sig.Action = domain.ActionSell

	for i := 0; i < 3; i++ {
		res, err := s.Execute(sig, led, snap("BTC-USD", 50))
		require.NoError(t, err)
		require.False(t, res.Filled())
	}
	st := led.Snapshot()
	assert.InDelta(t, 100, st.Cash, 1e-9)
	assert.Empty(t, st.Trades)
	assert.Empty(t, st.Positions)
}
