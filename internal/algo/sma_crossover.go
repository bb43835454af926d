package algo

import (
	"context"
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/evoquant/evobot/internal/domain"
)

// smaCrossover trades moving-average crossovers: buy when the short SMA
// crosses above the long SMA, sell on the opposite cross. Confidence grows
// with the decisiveness of the cross and gets a small sentiment boost when
// sentiment agrees with the direction.
type smaCrossover struct {
	id        string
	short     int
	long      int
	threshold float64
}

// SMACrossoverFamily is the simple-moving-average crossover family.
func SMACrossoverFamily() Family {
	return Family{
		Name:        "sma_crossover",
		Description: "simple moving average crossover",
		Params: []ParamSpec{
			{Name: "short_window", Kind: ParamInt, Min: 2, Max: 200, Default: 20},
			{Name: "long_window", Kind: ParamInt, Min: 5, Max: 400, Default: 50},
			{Name: "confidence_threshold", Kind: ParamFloat, Min: 0, Max: 1, Default: 0.7},
		},
		New: func(id string, params map[string]any) (Algorithm, error) {
			a := &smaCrossover{
				id:        id,
				short:     intParam(params, "short_window", 20),
				long:      intParam(params, "long_window", 50),
				threshold: floatParam(params, "confidence_threshold", 0.7),
			}
			if a.short >= a.long {
				return nil, fmt.Errorf("short_window %d must be below long_window %d", a.short, a.long)
			}
			return a, nil
		},
	}
}

func (a *smaCrossover) ID() string     { return a.id }
func (a *smaCrossover) Family() string { return "sma_crossover" }

func (a *smaCrossover) Analyze(_ context.Context, snap domain.MarketSnapshot, sentiment *domain.SentimentReading) (domain.Signal, error) {
	series := closes(snap)
	if len(series) < a.long+2 {
		return hold(a.id, snap), nil
	}

	shortMA := talib.Sma(series, a.short)
	longMA := talib.Sma(series, a.long)
	n := len(series)

	return crossoverSignal(a.id, snap, sentiment, crossoverInputs{
		prevShort: shortMA[n-2], prevLong: longMA[n-2],
		currShort: shortMA[n-1], currLong: longMA[n-1],
		threshold: a.threshold,
		label:     fmt.Sprintf("sma %d/%d", a.short, a.long),
	}), nil
}

// crossoverInputs carries the last two points of a short/long MA pair.
type crossoverInputs struct {
	prevShort, prevLong float64
	currShort, currLong float64
	threshold           float64
	label               string
}

// crossoverSignal is shared by the SMA and EMA families: it detects a cross
// between the previous and current bar and scores confidence by the cross
// magnitude plus a sentiment boost.
func crossoverSignal(id string, snap domain.MarketSnapshot, sentiment *domain.SentimentReading, in crossoverInputs) domain.Signal {
	if in.currLong == 0 || in.currShort == 0 || in.prevLong == 0 || in.prevShort == 0 {
		return hold(id, snap)
	}

	var action domain.SignalAction
	var confidence float64
	var reason string

	switch {
	case in.prevShort <= in.prevLong && in.currShort > in.currLong:
		action = domain.ActionBuy
		magnitude := (in.currShort - in.currLong) / in.currLong
		confidence = clamp(0.7+magnitude*100, 0, 0.95)
		reason = fmt.Sprintf("bullish %s crossover", in.label)
		if sentiment != nil && sentiment.Score > 0.3 {
			confidence = clamp(confidence+0.1, 0, 0.99)
			reason += " (positive sentiment)"
		}
	case in.prevShort >= in.prevLong && in.currShort < in.currLong:
		action = domain.ActionSell
		magnitude := (in.currLong - in.currShort) / in.currShort
		confidence = clamp(0.7+magnitude*100, 0, 0.95)
		reason = fmt.Sprintf("bearish %s crossover", in.label)
		if sentiment != nil && sentiment.Score < -0.3 {
			confidence = clamp(confidence+0.1, 0, 0.99)
			reason += " (negative sentiment)"
		}
	default:
		return hold(id, snap)
	}

	if confidence < in.threshold {
		return hold(id, snap)
	}
	return domain.Signal{
		AlgorithmID: id,
		Symbol:      snap.Symbol,
		Action:      action,
		Confidence:  confidence,
		Reason:      reason,
		Timestamp:   snap.Timestamp,
	}
}
