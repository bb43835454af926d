package algo

import (
	"context"
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/evoquant/evobot/internal/domain"
)

// emaCrossover is the exponential variant of the crossover family; it reacts
// faster to recent price action than the SMA version.
type emaCrossover struct {
	id        string
	short     int
	long      int
	threshold float64
}

// EMACrossoverFamily is the exponential-moving-average crossover family.
func EMACrossoverFamily() Family {
	return Family{
		Name:        "ema_crossover",
		Description: "exponential moving average crossover",
		Params: []ParamSpec{
			{Name: "short_window", Kind: ParamInt, Min: 2, Max: 200, Default: 12},
			{Name: "long_window", Kind: ParamInt, Min: 5, Max: 400, Default: 26},
			{Name: "confidence_threshold", Kind: ParamFloat, Min: 0, Max: 1, Default: 0.7},
		},
		New: func(id string, params map[string]any) (Algorithm, error) {
			a := &emaCrossover{
				id:        id,
				short:     intParam(params, "short_window", 12),
				long:      intParam(params, "long_window", 26),
				threshold: floatParam(params, "confidence_threshold", 0.7),
			}
			if a.short >= a.long {
				return nil, fmt.Errorf("short_window %d must be below long_window %d", a.short, a.long)
			}
			return a, nil
		},
	}
}

func (a *emaCrossover) ID() string     { return a.id }
func (a *emaCrossover) Family() string { return "ema_crossover" }

func (a *emaCrossover) Analyze(_ context.Context, snap domain.MarketSnapshot, sentiment *domain.SentimentReading) (domain.Signal, error) {
	series := closes(snap)
	if len(series) < a.long+2 {
		return hold(a.id, snap), nil
	}

	shortMA := talib.Ema(series, a.short)
	longMA := talib.Ema(series, a.long)
	n := len(series)

	return crossoverSignal(a.id, snap, sentiment, crossoverInputs{
		prevShort: shortMA[n-2], prevLong: longMA[n-2],
		currShort: shortMA[n-1], currLong: longMA[n-1],
		threshold: a.threshold,
		label:     fmt.Sprintf("ema %d/%d", a.short, a.long),
	}), nil
}
