package evolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evoquant/evobot/internal/algo"
	"github.com/evoquant/evobot/internal/domain"
	"github.com/evoquant/evobot/internal/perf"
)

// State names the evolution cycle's position in its state machine.
type State string

const (
	StateIdle        State = "IDLE"
	StateSelecting   State = "SELECTING"
	StateProposing   State = "PROPOSING"
	StateValidating  State = "VALIDATING"
	StateIntegrating State = "INTEGRATING"
)

// Proposer is the external strategy-generation oracle. Its reasoning is
// opaque and its output untrusted; everything it returns passes family
// validation before touching the pool.
type Proposer interface {
	Propose(ctx context.Context, req domain.ProposalRequest) (domain.ProposalResponse, error)
}

// Config holds the evolution cycle parameters.
type Config struct {
	// TopN is how many ranked algorithms are packaged for the oracle.
	TopN int
	// MaxAlgorithms bounds the ACTIVE pool size after integration.
	MaxAlgorithms int
	// OracleTimeout bounds the PROPOSING call, the cycle's only external
	// wait.
	OracleTimeout time.Duration
	// RankChain is the ordered metric tie-break chain.
	RankChain []string
}

// Engine drives the IDLE -> SELECTING -> PROPOSING -> VALIDATING ->
// INTEGRATING -> IDLE cycle. A re-entrant guard rejects overlapping runs; a
// failed cycle returns to IDLE with the pool and every ledger untouched.
type Engine struct {
	pool     *Pool
	registry *algo.Registry
	tracker  *perf.Tracker
	proposer Proposer

	cycles  domain.CycleStore
	metrics domain.MetricStore
	audit   domain.AuditStore
	bus     domain.EventBus

	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	running bool
}

// NewEngine creates an evolution Engine. Store, audit, and bus collaborators
// may be nil.
func NewEngine(
	pool *Pool,
	registry *algo.Registry,
	tracker *perf.Tracker,
	proposer Proposer,
	cycles domain.CycleStore,
	metrics domain.MetricStore,
	audit domain.AuditStore,
	bus domain.EventBus,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cfg.TopN <= 0 {
		cfg.TopN = 15
	}
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = 60 * time.Second
	}
	if len(cfg.RankChain) == 0 {
		cfg.RankChain = DefaultRankChain
	}
	return &Engine{
		pool:     pool,
		registry: registry,
		tracker:  tracker,
		proposer: proposer,
		cycles:   cycles,
		metrics:  metrics,
		audit:    audit,
		bus:      bus,
		cfg:      cfg,
		state:    StateIdle,
		logger:   logger.With(slog.String("component", "evolution")),
	}
}

// State returns the engine's current cycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.logger.Debug("cycle state", slog.String("state", string(s)))
}

// RunCycle executes one full evolution cycle as of the given time, using the
// supplied market-condition summary for the proposal request. Only a
// successful INTEGRATING step mutates the pool.
func (e *Engine) RunCycle(ctx context.Context, asOf time.Time, conditions domain.MarketSummary) (domain.EvolutionCycleRecord, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return domain.EvolutionCycleRecord{}, fmt.Errorf("evolve: %w", domain.ErrCycleInProgress)
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.state = StateIdle
		e.mu.Unlock()
	}()

	cycleID := uuid.New().String()
	log := e.logger.With(slog.String("cycle_id", cycleID))
	log.Info("evolution cycle starting", slog.Time("as_of", asOf))

	// SELECTING: rank the whole ACTIVE pool and take the head.
	e.setState(StateSelecting)
	ranked := e.evaluateAll(ctx, asOf)
	selected := ranked
	if len(selected) > e.cfg.TopN {
		selected = selected[:e.cfg.TopN]
	}
	selectedIDs := make([]string, len(selected))
	selectedDescs := make([]domain.AlgorithmDescriptor, len(selected))
	selectedMetrics := make([]domain.PerformanceMetricSnapshot, len(selected))
	for i, r := range selected {
		selectedIDs[i] = r.Member.Descriptor.ID
		selectedDescs[i] = r.Member.Descriptor
		selectedMetrics[i] = r.Metric
	}
	log.Info("selection complete",
		slog.Int("pool", len(ranked)),
		slog.Int("selected", len(selected)),
	)

	// PROPOSING: the sole external wait, under a hard timeout. Abort
	// leaves the pool, the ledgers, and the cycle record log untouched.
	e.setState(StateProposing)
	resp, err := e.propose(ctx, domain.ProposalRequest{
		CycleID:    cycleID,
		Selected:   selectedDescs,
		Metrics:    selectedMetrics,
		Conditions: conditions,
	})
	if err != nil {
		return domain.EvolutionCycleRecord{}, e.abort(ctx, log, cycleID, err)
	}

	// VALIDATING: candidates are structured descriptors, never code. One
	// bad candidate is dropped alone; its siblings survive.
	e.setState(StateValidating)
	accepted := make([]domain.CandidateDescriptor, 0, len(resp.Candidates))
	for i, cand := range resp.Candidates {
		if err := e.registry.ValidateCandidate(cand); err != nil {
			log.Warn("candidate rejected",
				slog.Int("index", i),
				slog.String("family", cand.Family),
				slog.String("error", err.Error()),
			)
			e.auditLog(ctx, "candidate_rejected", map[string]any{
				"cycle_id": cycleID,
				"family":   cand.Family,
				"error":    err.Error(),
			})
			continue
		}
		accepted = append(accepted, cand)
	}
	log.Info("validation complete",
		slog.Int("proposed", len(resp.Candidates)),
		slog.Int("accepted", len(accepted)),
	)

	// INTEGRATING: insert accepted candidates, then retire the
	// lowest-ranked overflow beyond MaxAlgorithms. New entrants are never
	// retired in the cycle that created them.
	e.setState(StateIntegrating)
	acceptedIDs, err := e.integrate(ctx, log, accepted, selectedIDs, asOf)
	if err != nil {
		return domain.EvolutionCycleRecord{}, e.abort(ctx, log, cycleID, err)
	}
	retiredIDs, err := e.retireOverflow(ctx, log, ranked, asOf)
	if err != nil {
		return domain.EvolutionCycleRecord{}, e.abort(ctx, log, cycleID, err)
	}

	rec := domain.EvolutionCycleRecord{
		CycleID:     cycleID,
		Timestamp:   asOf,
		SelectedIDs: selectedIDs,
		Proposed:    resp.Candidates,
		AcceptedIDs: acceptedIDs,
		RetiredIDs:  retiredIDs,
	}
	e.record(ctx, log, rec)

	log.Info("evolution cycle complete",
		slog.Int("accepted", len(acceptedIDs)),
		slog.Int("retired", len(retiredIDs)),
		slog.Int("active", e.pool.ActiveCount()),
	)
	return rec, nil
}

// evaluateAll computes and logs a metric snapshot for every active member,
// returning them ranked best-first.
func (e *Engine) evaluateAll(ctx context.Context, asOf time.Time) []Ranked {
	members := e.pool.ActiveMembers()
	entries := make([]Ranked, 0, len(members))
	for _, m := range members {
		metric := e.tracker.Evaluate(m.Ledger, asOf)
		entries = append(entries, Ranked{Member: m, Metric: metric})
		if e.metrics != nil {
			if err := e.metrics.Insert(ctx, metric); err != nil {
				e.logger.Warn("metric persistence failed",
					slog.String("algorithm_id", m.Descriptor.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return rank(entries, e.cfg.RankChain)
}

func (e *Engine) propose(ctx context.Context, req domain.ProposalRequest) (domain.ProposalResponse, error) {
	pctx, cancel := context.WithTimeout(ctx, e.cfg.OracleTimeout)
	defer cancel()

	resp, err := e.proposer.Propose(pctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || pctx.Err() != nil {
			return domain.ProposalResponse{}, fmt.Errorf("evolve: oracle after %s: %w",
				e.cfg.OracleTimeout, domain.ErrProposalTimeout)
		}
		return domain.ProposalResponse{}, fmt.Errorf("evolve: oracle: %w", err)
	}
	return resp, nil
}

// integrate inserts accepted candidates as ACTIVE descriptors with
// incremented generation and lineage pointing at pool ancestors. Integration
// is all-or-nothing: an insertion failure unwinds the siblings inserted
// earlier in the same cycle before the error propagates.
func (e *Engine) integrate(ctx context.Context, log *slog.Logger, accepted []domain.CandidateDescriptor, selectedIDs []string, asOf time.Time) ([]string, error) {
	ids := make([]string, 0, len(accepted))
	for _, cand := range accepted {
		parents := e.resolveParents(cand.ParentIDs, selectedIDs)
		generation := 0
		for _, pid := range parents {
			if d, ok := e.pool.Descriptor(pid); ok && d.Generation >= generation {
				generation = d.Generation + 1
			}
		}
		desc := domain.AlgorithmDescriptor{
			ID:         uuid.New().String(),
			Name:       cand.Name,
			Family:     cand.Family,
			Params:     cand.Params,
			Generation: generation,
			ParentIDs:  parents,
			Status:     domain.AlgorithmStatusActive,
			CreatedAt:  asOf,
		}
		if err := e.pool.Add(ctx, desc); err != nil {
			for _, inserted := range ids {
				e.pool.Remove(ctx, inserted)
			}
			return nil, fmt.Errorf("evolve: integrate %s: %w", cand.Name, err)
		}
		ids = append(ids, desc.ID)
		log.Info("candidate integrated",
			slog.String("algorithm_id", desc.ID),
			slog.String("family", desc.Family),
			slog.Int("generation", desc.Generation),
		)
	}
	return ids, nil
}

// resolveParents keeps at most two candidate-declared ancestors that exist
// in the pool, defaulting to the top-ranked selection when the oracle named
// none that we know.
func (e *Engine) resolveParents(declared, selectedIDs []string) []string {
	parents := make([]string, 0, 2)
	for _, id := range declared {
		if _, ok := e.pool.Descriptor(id); ok {
			parents = append(parents, id)
			if len(parents) == 2 {
				return parents
			}
		}
	}
	if len(parents) == 0 && len(selectedIDs) > 0 {
		parents = append(parents, selectedIDs[0])
	}
	return parents
}

// retireOverflow retires the lowest-ranked pre-cycle members beyond
// MaxAlgorithms.
func (e *Engine) retireOverflow(ctx context.Context, log *slog.Logger, ranked []Ranked, asOf time.Time) ([]string, error) {
	if e.cfg.MaxAlgorithms <= 0 {
		return nil, nil
	}
	overflow := e.pool.ActiveCount() - e.cfg.MaxAlgorithms
	if overflow <= 0 {
		return nil, nil
	}
	if overflow > len(ranked) {
		overflow = len(ranked)
	}

	retired := make([]string, 0, overflow)
	for i := len(ranked) - 1; i >= 0 && len(retired) < overflow; i-- {
		id := ranked[i].Member.Descriptor.ID
		if err := e.pool.Retire(ctx, id, asOf); err != nil {
			return retired, fmt.Errorf("evolve: retire %s: %w", id, err)
		}
		retired = append(retired, id)
		log.Info("algorithm retired by ranking", slog.String("algorithm_id", id))
	}
	return retired, nil
}

// abort returns the cycle to IDLE, leaving the pool untouched and writing a
// single aborted-cycle audit entry.
func (e *Engine) abort(ctx context.Context, log *slog.Logger, cycleID string, cause error) error {
	log.Error("evolution cycle aborted", slog.String("error", cause.Error()))
	e.auditLog(ctx, "cycle_aborted", map[string]any{
		"cycle_id": cycleID,
		"error":    cause.Error(),
	})
	return cause
}

func (e *Engine) record(ctx context.Context, log *slog.Logger, rec domain.EvolutionCycleRecord) {
	if e.cycles != nil {
		if err := e.cycles.Insert(ctx, rec); err != nil {
			log.Warn("cycle record persistence failed", slog.String("error", err.Error()))
		}
	}
	if e.bus != nil {
		if payload, err := json.Marshal(rec); err == nil {
			_ = e.bus.StreamAppend(ctx, "events:cycles", payload)
		}
	}
	e.auditLog(ctx, "cycle_complete", map[string]any{
		"cycle_id": rec.CycleID,
		"accepted": len(rec.AcceptedIDs),
		"retired":  len(rec.RetiredIDs),
	})
}

func (e *Engine) auditLog(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.Warn("audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
