package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoquant/evobot/internal/domain"
	"github.com/evoquant/evobot/internal/ledger"
	"github.com/evoquant/evobot/internal/sim"
)

type stubAlgo struct {
	id      string
	analyze func(ctx context.Context, snap domain.MarketSnapshot) (domain.Signal, error)
}

func (s *stubAlgo) ID() string     { return s.id }
func (s *stubAlgo) Family() string { return "stub" }
func (s *stubAlgo) Analyze(ctx context.Context, snap domain.MarketSnapshot, _ *domain.SentimentReading) (domain.Signal, error) {
	return s.analyze(ctx, snap)
}

type staticPool struct{ members []Member }

func (p *staticPool) ActiveMembers() []Member { return p.members }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func member(id string, analyze func(ctx context.Context, snap domain.MarketSnapshot) (domain.Signal, error)) Member {
	return Member{
		Descriptor: domain.AlgorithmDescriptor{
			ID:     id,
			Family: "stub",
			Status: domain.AlgorithmStatusActive,
		},
		Algo:   &stubAlgo{id: id, analyze: analyze},
		Ledger: ledger.New(id, 100),
	}
}

func buyAll(id string) func(ctx context.Context, snap domain.MarketSnapshot) (domain.Signal, error) {
	return func(_ context.Context, snap domain.MarketSnapshot) (domain.Signal, error) {
		return domain.Signal{
			AlgorithmID: id,
			Symbol:      snap.Symbol,
			Action:      domain.ActionBuy,
			Confidence:  0.8,
			Timestamp:   snap.Timestamp,
		}, nil
	}
}

func holdAll(id string) func(ctx context.Context, snap domain.MarketSnapshot) (domain.Signal, error) {
	return func(_ context.Context, snap domain.MarketSnapshot) (domain.Signal, error) {
		return domain.HoldSignal(id, snap.Symbol, snap.Timestamp), nil
	}
}

func testBatch(ts time.Time) domain.SnapshotBatch {
	return domain.SnapshotBatch{
		Timestamp: ts,
		Snapshots: map[string]domain.MarketSnapshot{
			"BTC-USD": {Symbol: "BTC-USD", Timestamp: ts, Last: 50, Bid: 49.5, Ask: 50.5},
		},
	}
}

func newTestExecutor(pool PoolView, timeout time.Duration) *Executor {
	simulator := sim.New(sim.Config{
		CommissionRate:  0.001,
		SlippageRate:    0.0005,
		MaxPositionSize: 0.2,
		LotSize:         0.0001,
	}, discard())
	return New(pool, simulator, nil, nil, nil, nil, Config{AlgoTimeout: timeout}, discard())
}

func TestEmptyBatchIsDataUnavailable(t *testing.T) {
	e := newTestExecutor(&staticPool{}, time.Second)

	_, err := e.RunTick(context.Background(), domain.SnapshotBatch{Timestamp: time.Now()})
	require.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestTickFillsAndObserves(t *testing.T) {
	m := member("a1", buyAll("a1"))
	e := newTestExecutor(&staticPool{members: []Member{m}}, time.Second)
	ts := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	report, err := e.RunTick(context.Background(), testBatch(ts))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fills)
	assert.Empty(t, report.Failures)

	// The fill hit only this member's ledger, and its value series gained a
	// point for the tick.
	st := m.Ledger.Snapshot()
	require.Len(t, st.Trades, 1)
	require.Len(t, st.ValueSeries, 1)
	assert.Equal(t, ts, st.ValueSeries[0].Timestamp)
}

func TestPanicIsolatedToOneMember(t *testing.T) {
	panicky := member("bad", func(_ context.Context, _ domain.MarketSnapshot) (domain.Signal, error) {
		panic("indicator blew up")
	})
	healthy := member("good", buyAll("good"))
	e := newTestExecutor(&staticPool{members: []Member{panicky, healthy}}, time.Second)

	report, err := e.RunTick(context.Background(), testBatch(time.Now().UTC()))
	require.NoError(t, err)

	assert.Equal(t, []string{"bad"}, report.Failures)
	assert.Equal(t, 1, report.Fills)

	// The failed member degraded to HOLD: its ledger saw no trade.
	assert.Empty(t, panicky.Ledger.Snapshot().Trades)
	assert.Len(t, healthy.Ledger.Snapshot().Trades, 1)

	sigs := report.Signals["bad"]
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionHold, sigs[0].Action)
}

func TestAnalyzeErrorIsolated(t *testing.T) {
	failing := member("err", func(_ context.Context, _ domain.MarketSnapshot) (domain.Signal, error) {
		return domain.Signal{}, errors.New("window too short")
	})
	healthy := member("ok", holdAll("ok"))
	e := newTestExecutor(&staticPool{members: []Member{failing, healthy}}, time.Second)

	report, err := e.RunTick(context.Background(), testBatch(time.Now().UTC()))
	require.NoError(t, err)

	assert.Equal(t, []string{"err"}, report.Failures)
	assert.Zero(t, report.Fills)
}

func TestTimeoutIsolated(t *testing.T) {
	slow := member("slow", func(ctx context.Context, snap domain.MarketSnapshot) (domain.Signal, error) {
		select {
		case <-ctx.Done():
			return domain.Signal{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return domain.HoldSignal("slow", snap.Symbol, snap.Timestamp), nil
		}
	})
	fast := member("fast", buyAll("fast"))
	e := newTestExecutor(&staticPool{members: []Member{slow, fast}}, 20*time.Millisecond)

	report, err := e.RunTick(context.Background(), testBatch(time.Now().UTC()))
	require.NoError(t, err)

	assert.Contains(t, report.Failures, "slow")
	assert.NotContains(t, report.Failures, "fast")
	assert.Equal(t, 1, report.Fills)
	assert.Empty(t, slow.Ledger.Snapshot().Trades)
}

func TestHoldSignalsLeaveLedgersUntouched(t *testing.T) {
	m := member("h1", holdAll("h1"))
	e := newTestExecutor(&staticPool{members: []Member{m}}, time.Second)

	report, err := e.RunTick(context.Background(), testBatch(time.Now().UTC()))
	require.NoError(t, err)

	assert.Zero(t, report.Fills)
	assert.Zero(t, report.Rejections)
	st := m.Ledger.Snapshot()
	assert.InDelta(t, 100, st.Cash, 1e-9)
	assert.Empty(t, st.Trades)
	// Value is still observed on a held tick.
	assert.Len(t, st.ValueSeries, 1)
}

func TestRejectionCountedNotFilled(t *testing.T) {
	// Selling with no position is rejected by the simulator, not an error.
	seller := member("s1", func(_ context.Context, snap domain.MarketSnapshot) (domain.Signal, error) {
		return domain.Signal{
			AlgorithmID: "s1",
			Symbol:      snap.Symbol,
			Action:      domain.ActionSell,
			Confidence:  0.9,
			Timestamp:   snap.Timestamp,
		}, nil
	})
	e := newTestExecutor(&staticPool{members: []Member{seller}}, time.Second)

	report, err := e.RunTick(context.Background(), testBatch(time.Now().UTC()))
	require.NoError(t, err)

	assert.Zero(t, report.Fills)
	assert.Equal(t, 1, report.Rejections)
	assert.Empty(t, report.Failures)
}
