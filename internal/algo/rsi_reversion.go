package algo

import (
	"context"
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/evoquant/evobot/internal/domain"
)

// rsiReversion buys oversold and sells overbought conditions measured by the
// relative strength index. Confidence scales with how far past the band the
// reading sits.
type rsiReversion struct {
	id         string
	period     int
	oversold   float64
	overbought float64
}

// RSIReversionFamily is the RSI mean-reversion family.
func RSIReversionFamily() Family {
	return Family{
		Name:        "rsi_reversion",
		Description: "relative strength index mean reversion",
		Params: []ParamSpec{
			{Name: "period", Kind: ParamInt, Min: 2, Max: 100, Default: 14},
			{Name: "oversold", Kind: ParamFloat, Min: 1, Max: 50, Default: 30},
			{Name: "overbought", Kind: ParamFloat, Min: 50, Max: 99, Default: 70},
		},
		New: func(id string, params map[string]any) (Algorithm, error) {
			a := &rsiReversion{
				id:         id,
				period:     intParam(params, "period", 14),
				oversold:   floatParam(params, "oversold", 30),
				overbought: floatParam(params, "overbought", 70),
			}
			if a.oversold >= a.overbought {
				return nil, fmt.Errorf("oversold %.1f must be below overbought %.1f", a.oversold, a.overbought)
			}
			return a, nil
		},
	}
}

func (a *rsiReversion) ID() string     { return a.id }
func (a *rsiReversion) Family() string { return "rsi_reversion" }

func (a *rsiReversion) Analyze(_ context.Context, snap domain.MarketSnapshot, _ *domain.SentimentReading) (domain.Signal, error) {
	series := closes(snap)
	if len(series) < a.period+2 {
		return hold(a.id, snap), nil
	}

	rsi := talib.Rsi(series, a.period)
	curr := rsi[len(rsi)-1]
	if curr == 0 {
		return hold(a.id, snap), nil
	}

	switch {
	case curr <= a.oversold:
		confidence := clamp(0.6+(a.oversold-curr)/a.oversold, 0, 0.95)
		return domain.Signal{
			AlgorithmID: a.id,
			Symbol:      snap.Symbol,
			Action:      domain.ActionBuy,
			Confidence:  confidence,
			Reason:      fmt.Sprintf("rsi %.1f below oversold %.1f", curr, a.oversold),
			Timestamp:   snap.Timestamp,
		}, nil
	case curr >= a.overbought:
		confidence := clamp(0.6+(curr-a.overbought)/(100-a.overbought), 0, 0.95)
		return domain.Signal{
			AlgorithmID: a.id,
			Symbol:      snap.Symbol,
			Action:      domain.ActionSell,
			Confidence:  confidence,
			Reason:      fmt.Sprintf("rsi %.1f above overbought %.1f", curr, a.overbought),
			Timestamp:   snap.Timestamp,
		}, nil
	}
	return hold(a.id, snap), nil
}
