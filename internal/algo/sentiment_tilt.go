package algo

import (
	"context"
	"fmt"

	"github.com/evoquant/evobot/internal/domain"
)

// sentimentTilt trades on the market-wide sentiment reading, gated by a
// short momentum filter so a strongly negative tape cannot be bought into on
// sentiment alone.
type sentimentTilt struct {
	id        string
	buyAbove  float64
	sellBelow float64
	filter    int
}

// SentimentTiltFamily is the sentiment-driven family.
func SentimentTiltFamily() Family {
	return Family{
		Name:        "sentiment_tilt",
		Description: "market sentiment tilt with momentum filter",
		Params: []ParamSpec{
			{Name: "buy_above", Kind: ParamFloat, Min: 0, Max: 1, Default: 0.4},
			{Name: "sell_below", Kind: ParamFloat, Min: -1, Max: 0, Default: -0.4},
			{Name: "filter_bars", Kind: ParamInt, Min: 1, Max: 100, Default: 5},
		},
		New: func(id string, params map[string]any) (Algorithm, error) {
			a := &sentimentTilt{
				id:        id,
				buyAbove:  floatParam(params, "buy_above", 0.4),
				sellBelow: floatParam(params, "sell_below", -0.4),
				filter:    intParam(params, "filter_bars", 5),
			}
			if a.sellBelow >= a.buyAbove {
				return nil, fmt.Errorf("sell_below %.2f must be below buy_above %.2f", a.sellBelow, a.buyAbove)
			}
			return a, nil
		},
	}
}

func (a *sentimentTilt) ID() string     { return a.id }
func (a *sentimentTilt) Family() string { return "sentiment_tilt" }

func (a *sentimentTilt) Analyze(_ context.Context, snap domain.MarketSnapshot, sentiment *domain.SentimentReading) (domain.Signal, error) {
	if sentiment == nil {
		return hold(a.id, snap), nil
	}
	series := closes(snap)
	if len(series) <= a.filter {
		return hold(a.id, snap), nil
	}

	base := series[len(series)-1-a.filter]
	if base == 0 {
		return hold(a.id, snap), nil
	}
	drift := (series[len(series)-1] - base) / base

	score := sentiment.Score
	switch {
	case score >= a.buyAbove && drift >= 0:
		return domain.Signal{
			AlgorithmID: a.id,
			Symbol:      snap.Symbol,
			Action:      domain.ActionBuy,
			Confidence:  clamp(0.5+score/2, 0, 0.95),
			Reason:      fmt.Sprintf("sentiment %.2f above %.2f with non-negative drift", score, a.buyAbove),
			Timestamp:   snap.Timestamp,
		}, nil
	case score <= a.sellBelow && drift <= 0:
		return domain.Signal{
			AlgorithmID: a.id,
			Symbol:      snap.Symbol,
			Action:      domain.ActionSell,
			Confidence:  clamp(0.5-score/2, 0, 0.95),
			Reason:      fmt.Sprintf("sentiment %.2f below %.2f with non-positive drift", score, a.sellBelow),
			Timestamp:   snap.Timestamp,
		}, nil
	}
	return hold(a.id, snap), nil
}
