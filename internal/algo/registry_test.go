package algo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoquant/evobot/internal/domain"
)

func TestDefaultRegistryLists(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{
		"ema_crossover",
		"momentum",
		"rsi_reversion",
		"sentiment_tilt",
		"sma_crossover",
	}, r.List())
}

func TestValidateCandidateUnknownFamily(t *testing.T) {
	r := DefaultRegistry()
	err := r.ValidateCandidate(domain.CandidateDescriptor{
		Name:   "ghost",
		Family: "quantum-arb",
		Params: map[string]any{},
	})
	require.ErrorIs(t, err, domain.ErrProposalValidation)
}

func TestValidateCandidateRejectsInvertedWindows(t *testing.T) {
	// Each window is inside its own range; only the pair is inconsistent.
	r := DefaultRegistry()
	err := r.ValidateCandidate(domain.CandidateDescriptor{
		Name:   "inverted",
		Family: "sma_crossover",
		Params: map[string]any{"short_window": 100, "long_window": 50},
	})
	require.ErrorIs(t, err, domain.ErrProposalValidation)

	err = r.ValidateCandidate(domain.CandidateDescriptor{
		Name:   "inverted-bands",
		Family: "rsi_reversion",
		Params: map[string]any{"oversold": 50, "overbought": 50},
	})
	require.ErrorIs(t, err, domain.ErrProposalValidation)
}

func TestValidateParamsRejectsUnknownKey(t *testing.T) {
	f := MomentumFamily()
	err := f.ValidateParams(map[string]any{"lookahead": 5})
	require.ErrorIs(t, err, domain.ErrProposalValidation)
}

func TestValidateParamsRejectsNonNumeric(t *testing.T) {
	f := MomentumFamily()
	err := f.ValidateParams(map[string]any{"lookback": "fast"})
	require.ErrorIs(t, err, domain.ErrProposalValidation)
}

func TestValidateParamsRejectsOutOfRange(t *testing.T) {
	f := MomentumFamily()
	err := f.ValidateParams(map[string]any{"entry_threshold": 0.9})
	require.ErrorIs(t, err, domain.ErrProposalValidation)

	err = f.ValidateParams(map[string]any{"lookback": 1})
	require.ErrorIs(t, err, domain.ErrProposalValidation)
}

func TestValidateParamsAcceptsJSONNumbers(t *testing.T) {
	// Oracle payloads arrive as JSON, so ints decode as float64.
	f := MomentumFamily()
	require.NoError(t, f.ValidateParams(map[string]any{
		"lookback":        float64(20),
		"entry_threshold": 0.05,
	}))
}

func TestValidateParamsAllowsMissingKeys(t *testing.T) {
	f := MomentumFamily()
	require.NoError(t, f.ValidateParams(map[string]any{}))
}

func TestBuildValidatesFirst(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Build(domain.AlgorithmDescriptor{
		ID:     "bad",
		Family: "momentum",
		Params: map[string]any{"lookback": 100000},
	})
	require.ErrorIs(t, err, domain.ErrProposalValidation)

	a, err := r.Build(domain.AlgorithmDescriptor{
		ID:     "ok",
		Family: "momentum",
		Params: map[string]any{"lookback": 5, "entry_threshold": 0.02},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", a.ID())
	assert.Equal(t, "momentum", a.Family())
}

func momentumSnap(closeVals []float64) domain.MarketSnapshot {
	ts := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closeVals))
	for i, c := range closeVals {
		bars[i] = domain.Bar{
			Symbol:    "BTC-USD",
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Close:     c,
		}
	}
	return domain.MarketSnapshot{
		Symbol:    "BTC-USD",
		Timestamp: ts.Add(time.Duration(len(closeVals)) * time.Minute),
		Last:      closeVals[len(closeVals)-1],
		Window:    bars,
	}
}

func TestMomentumSignals(t *testing.T) {
	f := MomentumFamily()
	a, err := f.New("m1", map[string]any{"lookback": 3, "entry_threshold": 0.02})
	require.NoError(t, err)

	// 100 -> 110 over 3 bars is a 10% trailing return: buy.
	sig, err := a.Analyze(context.Background(), momentumSnap([]float64{100, 104, 108, 110}), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.Greater(t, sig.Confidence, 0.5)

	// Mirror-image decline: sell.
	sig, err = a.Analyze(context.Background(), momentumSnap([]float64{110, 106, 102, 100}), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSell, sig.Action)

	// Flat tape holds.
	sig, err = a.Analyze(context.Background(), momentumSnap([]float64{100, 100, 100, 100}), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, sig.Action)
}

func TestMomentumHoldsOnShortWindow(t *testing.T) {
	f := MomentumFamily()
	a, err := f.New("m1", map[string]any{"lookback": 10})
	require.NoError(t, err)

	sig, err := a.Analyze(context.Background(), momentumSnap([]float64{100, 101}), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, sig.Action)
}
