// Package algo defines the closed set of registered algorithm families and
// builds runnable algorithm instances from validated descriptors. A
// descriptor is matched against a family's fixed parameter schema; nothing
// outside the registered set is ever instantiated.
package algo

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/evoquant/evobot/internal/domain"
)

// Algorithm is the decision capability every family variant implements.
// Analyze must be a pure function of its inputs plus the instance's own
// parameters; instances never share state.
type Algorithm interface {
	ID() string
	Family() string
	Analyze(ctx context.Context, snap domain.MarketSnapshot, sentiment *domain.SentimentReading) (domain.Signal, error)
}

// ParamKind is the type of a family parameter.
type ParamKind int

const (
	ParamInt ParamKind = iota
	ParamFloat
)

// ParamSpec describes one parameter of a family's schema.
type ParamSpec struct {
	Name    string
	Kind    ParamKind
	Min     float64
	Max     float64
	Default any
}

// Family is a pre-registered algorithm kind with a fixed parameter schema
// and a constructor. Constructors receive parameters that already passed
// schema validation.
type Family struct {
	Name        string
	Description string
	Params      []ParamSpec
	New         func(id string, params map[string]any) (Algorithm, error)
}

// ValidateParams checks params against the family schema: every key must be
// declared, every value must be castable to its declared kind and fall
// inside [Min, Max]. Missing parameters are allowed; constructors fall back
// to schema defaults.
func (f Family) ValidateParams(params map[string]any) error {
	specs := make(map[string]ParamSpec, len(f.Params))
	for _, p := range f.Params {
		specs[p.Name] = p
	}
	for key, val := range params {
		spec, ok := specs[key]
		if !ok {
			return fmt.Errorf("family %s: unknown parameter %q: %w", f.Name, key, domain.ErrProposalValidation)
		}
		v, err := cast.ToFloat64E(val)
		if err != nil {
			return fmt.Errorf("family %s: parameter %q is not numeric: %w", f.Name, key, domain.ErrProposalValidation)
		}
		if spec.Kind == ParamInt {
			if _, err := cast.ToIntE(val); err != nil {
				return fmt.Errorf("family %s: parameter %q must be an integer: %w", f.Name, key, domain.ErrProposalValidation)
			}
		}
		if v < spec.Min || v > spec.Max {
			return fmt.Errorf("family %s: parameter %q = %v outside [%v, %v]: %w",
				f.Name, key, v, spec.Min, spec.Max, domain.ErrProposalValidation)
		}
	}
	return nil
}

// intParam reads an int parameter with a schema default.
func intParam(params map[string]any, name string, def int) int {
	if v, ok := params[name]; ok {
		if n, err := cast.ToIntE(v); err == nil {
			return n
		}
	}
	return def
}

// floatParam reads a float parameter with a schema default.
func floatParam(params map[string]any, name string, def float64) float64 {
	if v, ok := params[name]; ok {
		if f, err := cast.ToFloat64E(v); err == nil {
			return f
		}
	}
	return def
}

// closes extracts the close series from a snapshot window, oldest first.
func closes(snap domain.MarketSnapshot) []float64 {
	out := make([]float64, len(snap.Window))
	for i, bar := range snap.Window {
		out[i] = bar.Close
	}
	return out
}

// hold is shorthand for a HOLD signal from an instance.
func hold(id string, snap domain.MarketSnapshot) domain.Signal {
	return domain.HoldSignal(id, snap.Symbol, snap.Timestamp)
}

// clamp bounds confidence to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
