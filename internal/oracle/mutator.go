package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/spf13/cast"

	"github.com/evoquant/evobot/internal/algo"
	"github.com/evoquant/evobot/internal/domain"
)

// Mutator is an offline proposer that perturbs the parameters of top
// performers within their family bounds. It keeps the evolution loop running
// in deployments without an oracle endpoint.
type Mutator struct {
	registry *algo.Registry
	perCycle int
	rng      *rand.Rand
	logger   *slog.Logger
}

// NewMutator creates a Mutator producing perCycle candidates per proposal.
// seed fixes the perturbation stream for reproducible runs.
func NewMutator(registry *algo.Registry, perCycle int, seed int64, logger *slog.Logger) *Mutator {
	if perCycle <= 0 {
		perCycle = 3
	}
	return &Mutator{
		registry: registry,
		perCycle: perCycle,
		rng:      rand.New(rand.NewSource(seed)),
		logger:   logger.With(slog.String("component", "mutator")),
	}
}

// Propose derives candidates by jittering each selected parent's parameters
// by up to 20% of the allowed range, clamped to the family bounds.
func (m *Mutator) Propose(_ context.Context, req domain.ProposalRequest) (domain.ProposalResponse, error) {
	if len(req.Selected) == 0 {
		return domain.ProposalResponse{}, nil
	}

	candidates := make([]domain.CandidateDescriptor, 0, m.perCycle)
	for i := 0; i < m.perCycle; i++ {
		parent := req.Selected[i%len(req.Selected)]
		family, err := m.registry.Get(parent.Family)
		if err != nil {
			m.logger.Warn("skipping parent with unknown family",
				slog.String("algorithm_id", parent.ID),
				slog.String("family", parent.Family),
			)
			continue
		}
		cand := domain.CandidateDescriptor{
			Name:      fmt.Sprintf("%s-m%d", parent.Name, i+1),
			Family:    parent.Family,
			ParentIDs: []string{parent.ID},
			Rationale: "parameter jitter of top performer",
		}
		// Per-key clamping cannot see cross-parameter constraints, such
		// as a short window staying below a long one, so re-draw until
		// the full candidate validates.
		ok := false
		for attempt := 0; attempt < 5; attempt++ {
			cand.Params = m.mutate(family, parent.Params)
			if m.registry.ValidateCandidate(cand) == nil {
				ok = true
				break
			}
		}
		if !ok {
			m.logger.Warn("skipping jitter that never validated",
				slog.String("algorithm_id", parent.ID),
				slog.String("family", parent.Family),
			)
			continue
		}
		candidates = append(candidates, cand)
	}

	return domain.ProposalResponse{Candidates: candidates}, nil
}

func (m *Mutator) mutate(family algo.Family, parent map[string]any) map[string]any {
	out := make(map[string]any, len(family.Params))
	for _, spec := range family.Params {
		base := cast.ToFloat64(spec.Default)
		if v, ok := parent[spec.Name]; ok {
			base = cast.ToFloat64(v)
		}
		span := spec.Max - spec.Min
		jitter := (m.rng.Float64()*2 - 1) * 0.2 * span
		v := base + jitter
		if v < spec.Min {
			v = spec.Min
		}
		if v > spec.Max {
			v = spec.Max
		}
		if spec.Kind == algo.ParamInt {
			out[spec.Name] = int(v + 0.5)
		} else {
			out[spec.Name] = v
		}
	}
	return out
}
