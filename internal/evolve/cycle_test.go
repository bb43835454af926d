package evolve

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoquant/evobot/internal/algo"
	"github.com/evoquant/evobot/internal/domain"
	"github.com/evoquant/evobot/internal/executor"
	"github.com/evoquant/evobot/internal/perf"
)

type stubAlgo struct {
	id string
}

func (s *stubAlgo) ID() string     { return s.id }
func (s *stubAlgo) Family() string { return "momentum-test" }
func (s *stubAlgo) Analyze(_ context.Context, snap domain.MarketSnapshot, _ *domain.SentimentReading) (domain.Signal, error) {
	return domain.HoldSignal(s.id, snap.Symbol, snap.Timestamp), nil
}

func testRegistry() *algo.Registry {
	r := algo.NewRegistry()
	r.Register(algo.Family{
		Name: "momentum-test",
		Params: []algo.ParamSpec{
			{Name: "threshold", Kind: algo.ParamFloat, Min: 0, Max: 1, Default: 0.5},
		},
		New: func(id string, _ map[string]any) (algo.Algorithm, error) {
			return &stubAlgo{id: id}, nil
		},
	})
	return r
}

type memMetricStore struct {
	mu   sync.Mutex
	rows []domain.PerformanceMetricSnapshot
}

func (m *memMetricStore) Insert(_ context.Context, row domain.PerformanceMetricSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

func (m *memMetricStore) Latest(_ context.Context, _ string) (domain.PerformanceMetricSnapshot, error) {
	return domain.PerformanceMetricSnapshot{}, domain.ErrNotFound
}

func (m *memMetricStore) ListByAlgorithm(_ context.Context, _ string, _ domain.ListOpts) ([]domain.PerformanceMetricSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PerformanceMetricSnapshot(nil), m.rows...), nil
}

type memCycleStore struct {
	mu   sync.Mutex
	rows []domain.EvolutionCycleRecord
}

func (m *memCycleStore) Insert(_ context.Context, rec domain.EvolutionCycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rec)
	return nil
}

func (m *memCycleStore) ListRecent(_ context.Context, _ int) ([]domain.EvolutionCycleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.EvolutionCycleRecord(nil), m.rows...), nil
}

func (m *memCycleStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (m *memAuditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AuditEntry(nil), m.entries...), nil
}

func (m *memAuditStore) byEvent(event string) []domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type stubProposer struct {
	fn func(ctx context.Context, req domain.ProposalRequest) (domain.ProposalResponse, error)
}

func (p *stubProposer) Propose(ctx context.Context, req domain.ProposalRequest) (domain.ProposalResponse, error) {
	return p.fn(ctx, req)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type cycleFixture struct {
	pool    *Pool
	engine  *Engine
	cycles  *memCycleStore
	metrics *memMetricStore
	audit   *memAuditStore
}

// newCycleFixture builds an engine over a pool of n generation-zero members
// with ids algo-00 .. algo-(n-1).
func newCycleFixture(t *testing.T, n int, proposer Proposer, cfg Config) *cycleFixture {
	t.Helper()
	registry := testRegistry()
	pool := NewPool(registry, 100, nil, nil, discard())
	for i := 0; i < n; i++ {
		err := pool.Add(context.Background(), domain.AlgorithmDescriptor{
			ID:     fmt.Sprintf("algo-%02d", i),
			Name:   fmt.Sprintf("momo-%02d", i),
			Family: "momentum-test",
			Params: map[string]any{"threshold": 0.5},
			Status: domain.AlgorithmStatusActive,
		})
		require.NoError(t, err)
	}

	tracker := perf.New(perf.Config{
		Window:       7 * 24 * time.Hour,
		RiskFreeRate: 0.04,
	}, discard())

	f := &cycleFixture{
		pool:    pool,
		cycles:  &memCycleStore{},
		metrics: &memMetricStore{},
		audit:   &memAuditStore{},
	}
	f.engine = NewEngine(pool, registry, tracker, proposer,
		f.cycles, f.metrics, f.audit, nil, cfg, discard())
	return f
}

func candidates(n int, family string) []domain.CandidateDescriptor {
	out := make([]domain.CandidateDescriptor, n)
	for i := range out {
		out[i] = domain.CandidateDescriptor{
			Name:   fmt.Sprintf("child-%02d", i),
			Family: family,
			Params: map[string]any{"threshold": 0.4},
		}
	}
	return out
}

func TestCycleRetiresOverflowToCapacity(t *testing.T) {
	proposer := &stubProposer{fn: func(_ context.Context, _ domain.ProposalRequest) (domain.ProposalResponse, error) {
		return domain.ProposalResponse{Candidates: candidates(8, "momentum-test")}, nil
	}}
	f := newCycleFixture(t, 20, proposer, Config{TopN: 5, MaxAlgorithms: 15, OracleTimeout: time.Second})

	rec, err := f.engine.RunCycle(context.Background(), time.Now().UTC(), domain.MarketSummary{})
	require.NoError(t, err)

	// 20 incumbents + 8 accepted - 15 capacity = 13 retirements.
	assert.Len(t, rec.SelectedIDs, 5)
	assert.Len(t, rec.AcceptedIDs, 8)
	assert.Len(t, rec.RetiredIDs, 13)
	assert.Equal(t, 15, f.pool.ActiveCount())

	// New entrants are never retired in the cycle that created them.
	for _, retired := range rec.RetiredIDs {
		assert.NotContains(t, rec.AcceptedIDs, retired)
	}
	assert.Equal(t, 1, f.cycles.count())
	assert.Len(t, f.audit.byEvent("cycle_complete"), 1)
}

func TestCycleDropsInvalidCandidateKeepsSiblings(t *testing.T) {
	batch := candidates(3, "momentum-test")
	batch[1].Family = "unregistered-family"
	proposer := &stubProposer{fn: func(_ context.Context, _ domain.ProposalRequest) (domain.ProposalResponse, error) {
		return domain.ProposalResponse{Candidates: batch}, nil
	}}
	f := newCycleFixture(t, 4, proposer, Config{TopN: 3, MaxAlgorithms: 50, OracleTimeout: time.Second})

	rec, err := f.engine.RunCycle(context.Background(), time.Now().UTC(), domain.MarketSummary{})
	require.NoError(t, err)

	assert.Len(t, rec.Proposed, 3)
	assert.Len(t, rec.AcceptedIDs, 2)
	assert.Empty(t, rec.RetiredIDs)
	assert.Equal(t, 6, f.pool.ActiveCount())
	assert.Len(t, f.audit.byEvent("candidate_rejected"), 1)
}

func TestCycleDropsOutOfRangeParams(t *testing.T) {
	batch := candidates(2, "momentum-test")
	batch[0].Params = map[string]any{"threshold": 4.2}
	proposer := &stubProposer{fn: func(_ context.Context, _ domain.ProposalRequest) (domain.ProposalResponse, error) {
		return domain.ProposalResponse{Candidates: batch}, nil
	}}
	f := newCycleFixture(t, 2, proposer, Config{TopN: 2, MaxAlgorithms: 50, OracleTimeout: time.Second})

	rec, err := f.engine.RunCycle(context.Background(), time.Now().UTC(), domain.MarketSummary{})
	require.NoError(t, err)
	assert.Len(t, rec.AcceptedIDs, 1)
}

func TestCycleDropsJointlyInvalidParamsKeepsSiblings(t *testing.T) {
	registry := algo.DefaultRegistry()
	pool := NewPool(registry, 100, nil, nil, discard())
	require.NoError(t, pool.Add(context.Background(), domain.AlgorithmDescriptor{
		ID:     "sma-00",
		Name:   "sma-seed",
		Family: "sma_crossover",
		Params: map[string]any{"short_window": 20, "long_window": 50},
		Status: domain.AlgorithmStatusActive,
	}))

	// Each window is inside its own per-key range; only the pair is
	// inconsistent, so the constructor is the check that catches it.
	batch := []domain.CandidateDescriptor{
		{Name: "inverted", Family: "sma_crossover", Params: map[string]any{"short_window": 100, "long_window": 50}},
		{Name: "sibling", Family: "sma_crossover", Params: map[string]any{"short_window": 10, "long_window": 40}},
	}
	proposer := &stubProposer{fn: func(_ context.Context, _ domain.ProposalRequest) (domain.ProposalResponse, error) {
		return domain.ProposalResponse{Candidates: batch}, nil
	}}

	cycles := &memCycleStore{}
	audit := &memAuditStore{}
	tracker := perf.New(perf.Config{Window: 7 * 24 * time.Hour, RiskFreeRate: 0.04}, discard())
	engine := NewEngine(pool, registry, tracker, proposer,
		cycles, &memMetricStore{}, audit, nil,
		Config{TopN: 3, MaxAlgorithms: 10, OracleTimeout: time.Second}, discard())

	rec, err := engine.RunCycle(context.Background(), time.Now().UTC(), domain.MarketSummary{})
	require.NoError(t, err)

	require.Len(t, rec.AcceptedIDs, 1)
	sibling, ok := pool.Descriptor(rec.AcceptedIDs[0])
	require.True(t, ok)
	assert.Equal(t, "sibling", sibling.Name)
	assert.Equal(t, 2, pool.ActiveCount())
	assert.Equal(t, 1, cycles.count())
	assert.Len(t, audit.byEvent("candidate_rejected"), 1)
}

func TestOracleTimeoutAbortsWithSingleAuditEntry(t *testing.T) {
	proposer := &stubProposer{fn: func(ctx context.Context, _ domain.ProposalRequest) (domain.ProposalResponse, error) {
		<-ctx.Done()
		return domain.ProposalResponse{}, ctx.Err()
	}}
	f := newCycleFixture(t, 6, proposer, Config{TopN: 3, MaxAlgorithms: 5, OracleTimeout: 20 * time.Millisecond})

	before := make(map[string]float64)
	for _, m := range f.pool.ActiveMembers() {
		before[m.Descriptor.ID] = m.Ledger.Cash()
	}

	_, err := f.engine.RunCycle(context.Background(), time.Now().UTC(), domain.MarketSummary{})
	require.ErrorIs(t, err, domain.ErrProposalTimeout)

	// The abort leaves everything as it was except one audit entry: no
	// cycle record, no pool mutation, no ledger movement.
	assert.Equal(t, 0, f.cycles.count())
	assert.Equal(t, 6, f.pool.ActiveCount())
	for _, m := range f.pool.ActiveMembers() {
		assert.Equal(t, before[m.Descriptor.ID], m.Ledger.Cash())
	}
	aborted := f.audit.byEvent("cycle_aborted")
	require.Len(t, aborted, 1)
	assert.Len(t, f.audit.entries, 1)
	assert.Equal(t, StateIdle, f.engine.State())
}

func TestOverlappingCycleRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	proposer := &stubProposer{fn: func(_ context.Context, _ domain.ProposalRequest) (domain.ProposalResponse, error) {
		close(started)
		<-release
		return domain.ProposalResponse{}, nil
	}}
	f := newCycleFixture(t, 3, proposer, Config{TopN: 3, MaxAlgorithms: 10, OracleTimeout: 5 * time.Second})

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.RunCycle(context.Background(), time.Now().UTC(), domain.MarketSummary{})
		done <- err
	}()
	<-started

	_, err := f.engine.RunCycle(context.Background(), time.Now().UTC(), domain.MarketSummary{})
	require.ErrorIs(t, err, domain.ErrCycleInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestLineageGenerationIncrements(t *testing.T) {
	batch := []domain.CandidateDescriptor{
		{
			Name:      "mutant",
			Family:    "momentum-test",
			Params:    map[string]any{"threshold": 0.6},
			ParentIDs: []string{"algo-01"},
		},
		{
			Name:   "orphan",
			Family: "momentum-test",
			Params: map[string]any{"threshold": 0.3},
			// Unknown parent: lineage falls back to the top selection.
			ParentIDs: []string{"no-such-id"},
		},
	}
	proposer := &stubProposer{fn: func(_ context.Context, _ domain.ProposalRequest) (domain.ProposalResponse, error) {
		return domain.ProposalResponse{Candidates: batch}, nil
	}}
	f := newCycleFixture(t, 3, proposer, Config{TopN: 3, MaxAlgorithms: 10, OracleTimeout: time.Second})

	rec, err := f.engine.RunCycle(context.Background(), time.Now().UTC(), domain.MarketSummary{})
	require.NoError(t, err)
	require.Len(t, rec.AcceptedIDs, 2)

	mutant, ok := f.pool.Descriptor(rec.AcceptedIDs[0])
	require.True(t, ok)
	assert.Equal(t, []string{"algo-01"}, mutant.ParentIDs)
	assert.Equal(t, 1, mutant.Generation)

	orphan, ok := f.pool.Descriptor(rec.AcceptedIDs[1])
	require.True(t, ok)
	require.Len(t, orphan.ParentIDs, 1)
	assert.Contains(t, rec.SelectedIDs, orphan.ParentIDs[0])
	assert.Equal(t, 1, orphan.Generation)
}

func TestRankChainOrdersBySharpeThenROI(t *testing.T) {
	metric := func(id string, sharpe, roi float64) Ranked {
		return Ranked{
			Member: executor.Member{Descriptor: domain.AlgorithmDescriptor{ID: id}},
			Metric: domain.PerformanceMetricSnapshot{AlgorithmID: id, Sharpe: sharpe, ROI: roi},
		}
	}
	entries := []Ranked{
		metric("c", 1.0, 0.10),
		metric("a", 2.0, 0.01),
		metric("b", 1.0, 0.20),
	}

	out := rank(entries, DefaultRankChain)
	ids := []string{
		out[0].Metric.AlgorithmID,
		out[1].Metric.AlgorithmID,
		out[2].Metric.AlgorithmID,
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
