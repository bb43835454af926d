// Package executor runs the ACTIVE algorithm pool against each market
// snapshot batch. Algorithms are isolated from one another: each runs
// against the shared read-only batch under its own wall-clock timeout and
// writes only to its own ledger, so one failing or hanging algorithm can
// never abort the rest of the pool.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evoquant/evobot/internal/algo"
	"github.com/evoquant/evobot/internal/domain"
	"github.com/evoquant/evobot/internal/ledger"
	"github.com/evoquant/evobot/internal/sim"
)

// Member is one runnable pool entry: descriptor, algorithm instance, and the
// ledger that instance exclusively owns.
type Member struct {
	Descriptor domain.AlgorithmDescriptor
	Algo       algo.Algorithm
	Ledger     *ledger.Ledger
}

// PoolView exposes the ACTIVE subset of the algorithm pool. The returned
// slice is a snapshot taken before iteration, so the pool can mutate between
// ticks without a tick ever seeing a half-updated view.
type PoolView interface {
	ActiveMembers() []Member
}

// Config holds executor tuning.
type Config struct {
	// AlgoTimeout bounds one algorithm's analysis for one tick. Exceeding
	// it is treated the same as a raised failure: implicit HOLD.
	AlgoTimeout time.Duration
	// Parallelism caps concurrently running algorithms. Zero means one
	// goroutine per member.
	Parallelism int
}

// TickReport summarizes one processed tick.
type TickReport struct {
	Timestamp  time.Time
	Signals    map[string][]domain.Signal
	Fills      int
	Rejections int
	// Failures lists algorithm ids that errored or timed out this tick.
	Failures []string
}

// Executor drives the analyze -> simulate -> ledger pipeline each tick.
type Executor struct {
	pool   PoolView
	sim    *sim.Simulator
	trades domain.TradeStore
	orders domain.OrderStore
	audit  domain.AuditStore
	bus    domain.EventBus
	cfg    Config
	logger *slog.Logger
}

// New creates an Executor. Store and bus arguments may be nil; persistence
// and event publication are collaborators, not requirements of a tick.
func New(
	pool PoolView,
	simulator *sim.Simulator,
	trades domain.TradeStore,
	orders domain.OrderStore,
	audit domain.AuditStore,
	bus domain.EventBus,
	cfg Config,
	logger *slog.Logger,
) *Executor {
	if cfg.AlgoTimeout <= 0 {
		cfg.AlgoTimeout = 2 * time.Second
	}
	return &Executor{
		pool:   pool,
		sim:    simulator,
		trades: trades,
		orders: orders,
		audit:  audit,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "executor")),
	}
}

// memberResult carries one algorithm's outcome for a tick.
type memberResult struct {
	algorithmID string
	signals     []domain.Signal
	fills       []domain.Trade
	rejections  []domain.Order
	failed      bool
}

// RunTick processes one snapshot batch against the active pool. Per
// algorithm the tick is strictly ordered; across algorithms execution is
// parallel since there is no shared mutable state.
func (e *Executor) RunTick(ctx context.Context, batch domain.SnapshotBatch) (TickReport, error) {
	if len(batch.Snapshots) == 0 {
		return TickReport{}, fmt.Errorf("executor: empty batch at %s: %w",
			batch.Timestamp.Format(time.RFC3339), domain.ErrDataUnavailable)
	}

	members := e.pool.ActiveMembers()
	report := TickReport{
		Timestamp: batch.Timestamp,
		Signals:   make(map[string][]domain.Signal, len(members)),
	}

	results := make([]memberResult, len(members))
	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.Parallelism > 0 {
		g.SetLimit(e.cfg.Parallelism)
	}
	for i, m := range members {
		i, m := i, m
		g.Go(func() error {
			results[i] = e.runMember(gctx, m, batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	prices := batch.Prices()
	var tickTrades []domain.Trade
	for _, res := range results {
		report.Signals[res.algorithmID] = res.signals
		report.Fills += len(res.fills)
		report.Rejections += len(res.rejections)
		if res.failed {
			report.Failures = append(report.Failures, res.algorithmID)
		}
		tickTrades = append(tickTrades, res.fills...)
		for _, o := range res.rejections {
			e.persistRejection(ctx, o)
		}
	}
	e.persistTrades(ctx, tickTrades)

	// Record the post-trade portfolio value for every active member so
	// value series stay aligned across the pool.
	for _, m := range members {
		m.Ledger.Observe(batch.Timestamp, prices)
	}

	e.logger.Debug("tick processed",
		slog.Time("ts", batch.Timestamp),
		slog.Int("algorithms", len(members)),
		slog.Int("fills", report.Fills),
		slog.Int("rejections", report.Rejections),
		slog.Int("failures", len(report.Failures)),
	)
	return report, nil
}

// runMember analyzes every available symbol for one algorithm and executes
// the resulting signals against its private ledger.
func (e *Executor) runMember(ctx context.Context, m Member, batch domain.SnapshotBatch) memberResult {
	res := memberResult{algorithmID: m.Descriptor.ID}

	symbols := make([]string, 0, len(batch.Snapshots))
	for sym := range batch.Snapshots {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		snap := batch.Snapshots[symbol]
		signal, err := e.analyze(ctx, m, snap, batch.Sentiment)
		if err != nil {
			// Isolated failure: degrade to HOLD, keep going.
			res.failed = true
			signal = domain.HoldSignal(m.Descriptor.ID, symbol, batch.Timestamp)
			e.reportFailure(ctx, m.Descriptor.ID, symbol, err)
		}
		res.signals = append(res.signals, signal)

		out, err := e.sim.Execute(signal, m.Ledger, snap)
		if err != nil {
			res.failed = true
			e.reportFailure(ctx, m.Descriptor.ID, symbol, err)
			continue
		}
		if out == nil {
			continue // HOLD
		}
		if out.Filled() {
			res.fills = append(res.fills, *out.Trade)
		} else {
			res.rejections = append(res.rejections, out.Order)
		}
	}
	return res
}

// analyze invokes the algorithm under its wall-clock timeout. A panic, an
// error, or a timeout all count as the same isolated failure.
func (e *Executor) analyze(ctx context.Context, m Member, snap domain.MarketSnapshot, sentiment *domain.SentimentReading) (domain.Signal, error) {
	actx, cancel := context.WithTimeout(ctx, e.cfg.AlgoTimeout)
	defer cancel()

	type outcome struct {
		signal domain.Signal
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v: %w", r, domain.ErrAlgorithmExecution)}
			}
		}()
		sig, err := m.Algo.Analyze(actx, snap, sentiment)
		if err != nil {
			err = fmt.Errorf("%v: %w", err, domain.ErrAlgorithmExecution)
		}
		done <- outcome{signal: sig, err: err}
	}()

	select {
	case o := <-done:
		return o.signal, o.err
	case <-actx.Done():
		return domain.Signal{}, fmt.Errorf("analyze %s on %s after %s: %v: %w",
			m.Descriptor.ID, snap.Symbol, e.cfg.AlgoTimeout, actx.Err(), domain.ErrAlgorithmExecution)
	}
}

func (e *Executor) reportFailure(ctx context.Context, algorithmID, symbol string, err error) {
	e.logger.Warn("algorithm failure, holding",
		slog.String("algorithm_id", algorithmID),
		slog.String("symbol", symbol),
		slog.String("error", err.Error()),
	)
	if e.audit != nil {
		_ = e.audit.Log(ctx, "algorithm_failure", map[string]any{
			"algorithm_id": algorithmID,
			"symbol":       symbol,
			"error":        err.Error(),
		})
	}
}

func (e *Executor) persistTrades(ctx context.Context, trades []domain.Trade) {
	if len(trades) == 0 {
		return
	}
	if e.trades != nil {
		if err := e.trades.InsertBatch(ctx, trades); err != nil {
			e.logger.Warn("trade persistence failed", slog.String("error", err.Error()))
		}
	}
	if e.bus != nil {
		for _, t := range trades {
			if payload, err := json.Marshal(t); err == nil {
				_ = e.bus.StreamAppend(ctx, "events:trades", payload)
			}
		}
	}
}

func (e *Executor) persistRejection(ctx context.Context, order domain.Order) {
	if e.orders != nil {
		if err := e.orders.Create(ctx, order); err != nil {
			e.logger.Warn("rejection persistence failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.bus != nil {
		if payload, err := json.Marshal(order); err == nil {
			_ = e.bus.StreamAppend(ctx, "events:rejections", payload)
		}
	}
}
