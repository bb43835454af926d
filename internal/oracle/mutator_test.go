package oracle

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoquant/evobot/internal/algo"
	"github.com/evoquant/evobot/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mutatorRequest() domain.ProposalRequest {
	return domain.ProposalRequest{
		CycleID: "cycle-1",
		Selected: []domain.AlgorithmDescriptor{
			{
				ID:     "parent-1",
				Name:   "momo-1",
				Family: "momentum",
				Params: map[string]any{"lookback": 10, "entry_threshold": 0.02},
			},
		},
	}
}

func TestMutatorCandidatesPassFamilyValidation(t *testing.T) {
	registry := algo.DefaultRegistry()
	m := NewMutator(registry, 3, 42, discard())

	resp, err := m.Propose(context.Background(), mutatorRequest())
	require.NoError(t, err)
	require.Len(t, resp.Candidates, 3)

	for _, c := range resp.Candidates {
		assert.Equal(t, "momentum", c.Family)
		assert.Equal(t, []string{"parent-1"}, c.ParentIDs)
		require.NoError(t, registry.ValidateCandidate(c), "candidate %s", c.Name)
	}
}

func TestMutatorIsDeterministicPerSeed(t *testing.T) {
	registry := algo.DefaultRegistry()

	a, err := NewMutator(registry, 2, 7, discard()).Propose(context.Background(), mutatorRequest())
	require.NoError(t, err)
	b, err := NewMutator(registry, 2, 7, discard()).Propose(context.Background(), mutatorRequest())
	require.NoError(t, err)

	assert.Equal(t, a.Candidates, b.Candidates)
}

func TestMutatorEmptySelectionProposesNothing(t *testing.T) {
	m := NewMutator(algo.DefaultRegistry(), 3, 1, discard())
	resp, err := m.Propose(context.Background(), domain.ProposalRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Candidates)
}

func TestMutatorSkipsUnknownFamilyParent(t *testing.T) {
	m := NewMutator(algo.DefaultRegistry(), 2, 1, discard())
	resp, err := m.Propose(context.Background(), domain.ProposalRequest{
		Selected: []domain.AlgorithmDescriptor{
			{ID: "ghost", Name: "ghost", Family: "not-registered"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Candidates)
}

func TestMutatorNeverEmitsInvertedWindows(t *testing.T) {
	// A parent with nearly touching windows invites jitters that cross
	// them; every emitted candidate must still construct cleanly.
	registry := algo.DefaultRegistry()
	req := domain.ProposalRequest{
		CycleID: "cycle-2",
		Selected: []domain.AlgorithmDescriptor{
			{
				ID:     "parent-2",
				Name:   "sma-tight",
				Family: "sma_crossover",
				Params: map[string]any{"short_window": 150, "long_window": 160},
			},
		},
	}

	for seed := int64(0); seed < 25; seed++ {
		m := NewMutator(registry, 4, seed, discard())
		resp, err := m.Propose(context.Background(), req)
		require.NoError(t, err)
		for _, c := range resp.Candidates {
			require.NoError(t, registry.ValidateCandidate(c), "seed %d candidate %s", seed, c.Name)
		}
	}
}

func TestMutatorRoundTripsThroughIntBounds(t *testing.T) {
	// Many seeds, every emitted parameter must stay inside the family schema.
	registry := algo.DefaultRegistry()
	family, err := registry.Get("momentum")
	require.NoError(t, err)

	for seed := int64(0); seed < 20; seed++ {
		m := NewMutator(registry, 4, seed, discard())
		resp, err := m.Propose(context.Background(), mutatorRequest())
		require.NoError(t, err)
		for _, c := range resp.Candidates {
			require.NoError(t, family.ValidateParams(c.Params), "seed %d", seed)
		}
	}
}
