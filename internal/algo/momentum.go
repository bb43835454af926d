package algo

import (
	"context"
	"fmt"

	"github.com/evoquant/evobot/internal/domain"
)

// momentum follows the trend: buy when the trailing return over the lookback
// exceeds the entry threshold, sell when it drops below the negative of it.
type momentum struct {
	id        string
	lookback  int
	threshold float64
}

// MomentumFamily is the trailing-return momentum family.
func MomentumFamily() Family {
	return Family{
		Name:        "momentum",
		Description: "trailing return momentum",
		Params: []ParamSpec{
			{Name: "lookback", Kind: ParamInt, Min: 2, Max: 250, Default: 10},
			{Name: "entry_threshold", Kind: ParamFloat, Min: 0.001, Max: 0.5, Default: 0.02},
		},
		New: func(id string, params map[string]any) (Algorithm, error) {
			return &momentum{
				id:        id,
				lookback:  intParam(params, "lookback", 10),
				threshold: floatParam(params, "entry_threshold", 0.02),
			}, nil
		},
	}
}

func (a *momentum) ID() string     { return a.id }
func (a *momentum) Family() string { return "momentum" }

func (a *momentum) Analyze(_ context.Context, snap domain.MarketSnapshot, _ *domain.SentimentReading) (domain.Signal, error) {
	series := closes(snap)
	if len(series) <= a.lookback {
		return hold(a.id, snap), nil
	}

	base := series[len(series)-1-a.lookback]
	if base == 0 {
		return hold(a.id, snap), nil
	}
	ret := (series[len(series)-1] - base) / base

	var action domain.SignalAction
	switch {
	case ret >= a.threshold:
		action = domain.ActionBuy
	case ret <= -a.threshold:
		action = domain.ActionSell
	default:
		return hold(a.id, snap), nil
	}

	// Confidence scales with how far the return exceeds the threshold.
	confidence := clamp(0.6+(abs(ret)-a.threshold)*10, 0, 0.95)
	return domain.Signal{
		AlgorithmID: a.id,
		Symbol:      snap.Symbol,
		Action:      action,
		Confidence:  confidence,
		Reason:      fmt.Sprintf("%d-bar return %.2f%%", a.lookback, ret*100),
		Timestamp:   snap.Timestamp,
	}, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
