// Package evolve owns the algorithm pool lifecycle: the descriptor
// population, per-algorithm ledgers, genealogy, and the periodic evolution
// cycle that integrates oracle proposals.
package evolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/evoquant/evobot/internal/algo"
	"github.com/evoquant/evobot/internal/domain"
	"github.com/evoquant/evobot/internal/executor"
	"github.com/evoquant/evobot/internal/ledger"
)

// Pool is the id -> descriptor mapping plus the runnable instance and ledger
// behind every ACTIVE entry. Mutation is atomic with respect to
// ActiveMembers: a tick iterating a snapshot never observes a half-applied
// update.
type Pool struct {
	mu sync.RWMutex

	registry        *algo.Registry
	startingCapital float64

	entries map[string]*poolEntry

	descStore domain.DescriptorStore
	archiver  domain.LedgerArchiver
	logger    *slog.Logger
}

type poolEntry struct {
	desc   domain.AlgorithmDescriptor
	algo   algo.Algorithm
	ledger *ledger.Ledger
}

// NewPool creates an empty pool. descStore and archiver may be nil when
// persistence collaborators are not wired.
func NewPool(
	registry *algo.Registry,
	startingCapital float64,
	descStore domain.DescriptorStore,
	archiver domain.LedgerArchiver,
	logger *slog.Logger,
) *Pool {
	return &Pool{
		registry:        registry,
		startingCapital: startingCapital,
		entries:         make(map[string]*poolEntry),
		descStore:       descStore,
		archiver:        archiver,
		logger:          logger.With(slog.String("component", "pool")),
	}
}

// Add inserts a new ACTIVE descriptor, building its algorithm instance and a
// fresh ledger with the configured starting capital.
func (p *Pool) Add(ctx context.Context, desc domain.AlgorithmDescriptor) error {
	if desc.Status == "" {
		desc.Status = domain.AlgorithmStatusActive
	}
	if desc.Status != domain.AlgorithmStatusActive {
		return fmt.Errorf("pool: add %s with status %s: %w", desc.ID, desc.Status, domain.ErrPoolIntegrity)
	}

	instance, err := p.registry.Build(desc)
	if err != nil {
		return fmt.Errorf("pool: add %s: %w", desc.ID, err)
	}

	p.mu.Lock()
	if _, exists := p.entries[desc.ID]; exists {
		p.mu.Unlock()
		return fmt.Errorf("pool: descriptor %s already present: %w", desc.ID, domain.ErrPoolIntegrity)
	}
	p.entries[desc.ID] = &poolEntry{
		desc:   desc,
		algo:   instance,
		ledger: ledger.New(desc.ID, p.startingCapital),
	}
	p.mu.Unlock()

	if p.descStore != nil {
		if err := p.descStore.Upsert(ctx, desc); err != nil {
			p.logger.Warn("descriptor persistence failed",
				slog.String("algorithm_id", desc.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	p.logger.Info("algorithm added",
		slog.String("algorithm_id", desc.ID),
		slog.String("family", desc.Family),
		slog.Int("generation", desc.Generation),
	)
	return nil
}

// Remove deletes an entry outright, without archiving. It unwinds a
// partially applied integration so an aborted cycle leaves the pool exactly
// as it found it; Retire is the normal exit path.
func (p *Pool) Remove(ctx context.Context, id string) {
	p.mu.Lock()
	entry, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	if p.descStore != nil {
		if err := p.descStore.Delete(ctx, id); err != nil {
			p.logger.Warn("descriptor removal failed",
				slog.String("algorithm_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	p.logger.Info("algorithm removed",
		slog.String("algorithm_id", id),
		slog.String("family", entry.desc.Family),
	)
}

// Retire marks an ACTIVE descriptor RETIRED and hands its ledger to the
// archive store. The history is archived, never discarded. Retiring an
// unknown or already-retired descriptor is a pool integrity violation.
func (p *Pool) Retire(ctx context.Context, id string, asOf time.Time) error {
	p.mu.Lock()
	entry, ok := p.entries[id]
	if !ok || entry.desc.Status != domain.AlgorithmStatusActive {
		p.mu.Unlock()
		return fmt.Errorf("pool: retire %s: %w", id, domain.ErrPoolIntegrity)
	}
	entry.desc.Status = domain.AlgorithmStatusRetired
	entry.desc.RetiredAt = &asOf
	desc := entry.desc
	led := entry.ledger
	p.mu.Unlock()

	if p.archiver != nil {
		if err := p.archiver.Archive(ctx, led.Archive(asOf)); err != nil {
			p.logger.Warn("ledger archival failed",
				slog.String("algorithm_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	if p.descStore != nil {
		if err := p.descStore.Upsert(ctx, desc); err != nil {
			p.logger.Warn("descriptor persistence failed",
				slog.String("algorithm_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	p.logger.Info("algorithm retired", slog.String("algorithm_id", id))
	return nil
}

// ActiveMembers returns a point-in-time snapshot of the ACTIVE pool, sorted
// by algorithm id for deterministic iteration.
func (p *Pool) ActiveMembers() []executor.Member {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]executor.Member, 0, len(p.entries))
	for _, e := range p.entries {
		if e.desc.Status != domain.AlgorithmStatusActive {
			continue
		}
		out = append(out, executor.Member{
			Descriptor: e.desc,
			Algo:       e.algo,
			Ledger:     e.ledger,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor.ID < out[j].Descriptor.ID })
	return out
}

// ActiveCount returns the number of ACTIVE entries.
func (p *Pool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, e := range p.entries {
		if e.desc.Status == domain.AlgorithmStatusActive {
			n++
		}
	}
	return n
}

// Descriptor returns the descriptor for id.
func (p *Pool) Descriptor(id string) (domain.AlgorithmDescriptor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[id]
	if !ok {
		return domain.AlgorithmDescriptor{}, false
	}
	return e.desc, true
}

// Ledger returns the ledger owned by id, including retired entries (the
// in-memory handle survives until shutdown; archived copies are read-only).
func (p *Pool) Ledger(id string) (*ledger.Ledger, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[id]
	if !ok {
		return nil, false
	}
	return e.ledger, true
}
