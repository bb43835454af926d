package app

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/evoquant/evobot/internal/algo"
	"github.com/evoquant/evobot/internal/config"
	"github.com/evoquant/evobot/internal/domain"
	"github.com/evoquant/evobot/internal/evolve"
	"github.com/evoquant/evobot/internal/executor"
	"github.com/evoquant/evobot/internal/feed"
	"github.com/evoquant/evobot/internal/notify"
	"github.com/evoquant/evobot/internal/oracle"
	"github.com/evoquant/evobot/internal/perf"
	"github.com/evoquant/evobot/internal/sim"
)

// Engine bundles the running collaborators of one engine instance: the feed,
// the tick executor, and the evolution cycle.
type Engine struct {
	cfg      *config.Config
	pool     *evolve.Pool
	exec     *executor.Executor
	evo      *evolve.Engine
	agg      *feed.Aggregator
	feed     *feed.Feed
	audit    domain.AuditStore
	notifier *notify.Notifier
	clock    domain.Clock
	logger   *slog.Logger
}

// buildEngine constructs the full analysis/execution/evolution stack and
// rebuilds the algorithm pool from persisted descriptors, seeding a fresh
// generation zero when nothing was persisted.
func (a *App) buildEngine(ctx context.Context, deps *Dependencies) (*Engine, error) {
	registry := algo.DefaultRegistry()

	pool := evolve.NewPool(
		registry,
		a.cfg.Paper.InitialCapital,
		deps.DescriptorStore,
		deps.Archiver,
		a.logger,
	)
	if err := a.populatePool(ctx, deps, registry, pool); err != nil {
		return nil, err
	}

	simulator := sim.New(sim.Config{
		CommissionRate:  a.cfg.Paper.CommissionRate,
		SlippageRate:    a.cfg.Paper.SlippageRate,
		MaxPositionSize: a.cfg.Paper.MaxPositionSize,
		LotSize:         a.cfg.Paper.LotSize,
	}, a.logger)

	tracker := perf.New(perf.Config{
		Window:         a.cfg.Performance.Window.Duration,
		RiskFreeRate:   a.cfg.Performance.RiskFreeRate,
		PeriodsPerYear: a.cfg.Performance.PeriodsPerYear,
	}, a.logger)

	exec := executor.New(
		pool,
		simulator,
		deps.TradeStore,
		deps.OrderStore,
		deps.AuditStore,
		deps.EventBus,
		executor.Config{
			AlgoTimeout: a.cfg.Executor.AlgoTimeout.Duration,
			Parallelism: a.cfg.Executor.Parallelism,
		},
		a.logger,
	)

	evo := evolve.NewEngine(
		pool,
		registry,
		tracker,
		a.buildProposer(registry),
		deps.CycleStore,
		deps.MetricStore,
		deps.AuditStore,
		deps.EventBus,
		evolve.Config{
			TopN:          a.cfg.Evolution.TopN,
			MaxAlgorithms: a.cfg.Evolution.MaxAlgorithms,
			OracleTimeout: a.cfg.Evolution.OracleTimeout.Duration,
			RankChain:     a.cfg.Evolution.RankChain,
		},
		a.logger,
	)

	agg := feed.NewAggregator(
		a.cfg.Market.Symbols,
		a.cfg.Market.WindowSize,
		a.cfg.Market.StaleAfter.Duration,
		deps.SnapshotCache,
		a.logger,
	)
	fd := feed.New(a.cfg.Market.WsURL, a.cfg.Market.Symbols, agg, a.logger)

	return &Engine{
		cfg:      a.cfg,
		pool:     pool,
		exec:     exec,
		evo:      evo,
		agg:      agg,
		feed:     fd,
		audit:    deps.AuditStore,
		notifier: deps.Notifier,
		clock:    domain.RealClock{},
		logger:   a.logger.With(slog.String("component", "engine")),
	}, nil
}

// buildProposer selects the oracle client or, in offline mode (or when no
// endpoint is configured), the local parameter mutator.
func (a *App) buildProposer(registry *algo.Registry) evolve.Proposer {
	if strings.ToLower(a.cfg.Mode) == "offline" || a.cfg.Oracle.BaseURL == "" {
		return oracle.NewMutator(
			registry,
			a.cfg.Oracle.MutatorPerCycle,
			a.cfg.Oracle.MutatorSeed,
			a.logger,
		)
	}
	return oracle.NewClient(a.cfg.Oracle.BaseURL, a.cfg.Oracle.APIKey, a.logger)
}

// populatePool restores persisted ACTIVE descriptors, falling back to the
// configured seeds (or one default instance per family) when the pool starts
// empty.
func (a *App) populatePool(ctx context.Context, deps *Dependencies, registry *algo.Registry, pool *evolve.Pool) error {
	descs, err := deps.DescriptorStore.ListByStatus(ctx, domain.AlgorithmStatusActive)
	if err != nil {
		a.logger.Warn("descriptor recovery failed, starting from seeds",
			slog.String("error", err.Error()))
	}
	for _, d := range descs {
		if err := pool.Add(ctx, d); err != nil {
			a.logger.Warn("skipping unrecoverable descriptor",
				slog.String("algorithm_id", d.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if pool.ActiveCount() > 0 {
		a.logger.Info("pool restored", slog.Int("active", pool.ActiveCount()))
		return nil
	}

	seeds := a.cfg.Seeds
	if len(seeds) == 0 {
		// Default seeding: one instance of each family with schema
		// defaults.
		for _, name := range registry.List() {
			seeds = append(seeds, config.SeedConfig{
				Name:   name + "-seed",
				Family: name,
				Params: map[string]any{},
			})
		}
	}

	now := a.clockNow()
	for _, s := range seeds {
		name := s.Name
		if name == "" {
			name = s.Family + "-seed"
		}
		desc := domain.AlgorithmDescriptor{
			ID:        uuid.New().String(),
			Name:      name,
			Family:    s.Family,
			Params:    s.Params,
			Status:    domain.AlgorithmStatusActive,
			CreatedAt: now,
		}
		if err := pool.Add(ctx, desc); err != nil {
			a.logger.Warn("seed rejected",
				slog.String("family", s.Family),
				slog.String("error", err.Error()),
			)
		}
	}
	a.logger.Info("pool seeded", slog.Int("active", pool.ActiveCount()))
	return nil
}

func (a *App) clockNow() time.Time {
	return time.Now().UTC()
}

// Run starts the feed, the tick loop, and (when withEvolution is set) the
// evolution scheduler, blocking until the context is cancelled or a fatal
// error occurs.
func (e *Engine) Run(ctx context.Context, withEvolution bool) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.feed.Run(ctx)
	})
	g.Go(func() error {
		return e.tickLoop(ctx)
	})
	if withEvolution && e.cfg.Evolution.Enabled {
		g.Go(func() error {
			return e.evolutionLoop(ctx)
		})
	}

	e.logger.Info("engine running",
		slog.Int("active_algorithms", e.pool.ActiveCount()),
		slog.Bool("evolution", withEvolution && e.cfg.Evolution.Enabled),
	)
	err := g.Wait()
	e.logSummary()
	return err
}

// logSummary emits a final per-pool accounting line on shutdown.
func (e *Engine) logSummary() {
	var value, commission, slippage float64
	fills := 0
	for _, m := range e.pool.ActiveMembers() {
		st := m.Ledger.Snapshot()
		value += m.Ledger.MarkToMarket(nil)
		commission += st.TotalCommission
		slippage += st.TotalSlippage
		fills += len(st.Trades)
	}
	e.logger.Info("engine stopped",
		slog.Int("active_algorithms", e.pool.ActiveCount()),
		slog.Float64("total_value", value),
		slog.Int("total_fills", fills),
		slog.Float64("total_commission", commission),
		slog.Float64("total_slippage", slippage),
	)
}

// tickLoop runs one analysis/execution pass per tick interval. A tick with
// no available market data is skipped and audited, never synthesized.
func (e *Engine) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Market.TickInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now := e.clock.Now()
		batch := e.agg.BatchAt(now)
		if len(batch.Unavailable) > 0 {
			e.logger.Warn("symbols unavailable this tick",
				slog.Any("symbols", batch.Unavailable))
		}

		report, err := e.exec.RunTick(ctx, batch)
		if err != nil {
			if errors.Is(err, domain.ErrDataUnavailable) {
				e.logger.Warn("tick skipped, no market data")
				if e.audit != nil {
					_ = e.audit.Log(ctx, "tick_skipped", map[string]any{
						"timestamp":   now,
						"unavailable": batch.Unavailable,
					})
				}
				continue
			}
			return err
		}

		if len(report.Failures) > 0 {
			e.logger.Warn("algorithm failures this tick",
				slog.Any("algorithm_ids", report.Failures))
		}
	}
}

// evolutionLoop triggers one evolution cycle per interval. A failed cycle is
// logged and audited; the loop keeps running.
func (e *Engine) evolutionLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Evolution.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now := e.clock.Now()
		rec, err := e.evo.RunCycle(ctx, now, e.marketSummary(now))
		if err != nil {
			e.logger.Error("evolution cycle failed", slog.String("error", err.Error()))
			if e.notifier != nil {
				_ = e.notifier.Notify(ctx, notify.EventCycleAborted,
					"Evolution cycle aborted", err.Error())
			}
			continue
		}
		if e.notifier != nil {
			_ = e.notifier.NotifyCycle(ctx, rec)
		}
	}
}

// marketSummary condenses current market conditions for the proposal
// request: per-symbol window return and realized volatility plus the average
// sentiment.
func (e *Engine) marketSummary(asOf time.Time) domain.MarketSummary {
	batch := e.agg.BatchAt(asOf)

	summary := domain.MarketSummary{
		WindowStart:   asOf.Add(-e.cfg.Performance.Window.Duration),
		WindowEnd:     asOf,
		ReturnPct:     make(map[string]float64),
		VolatilityPct: make(map[string]float64),
	}
	if batch.Sentiment != nil {
		summary.AvgSentiment = batch.Sentiment.Score
	}

	for sym, snap := range batch.Snapshots {
		summary.Symbols = append(summary.Symbols, sym)
		if len(snap.Window) < 2 {
			continue
		}
		first := snap.Window[0].Close
		last := snap.Window[len(snap.Window)-1].Close
		if first > 0 {
			summary.ReturnPct[sym] = (last - first) / first
		}
		summary.VolatilityPct[sym] = realizedVol(snap.Window)
	}
	return summary
}

// realizedVol is the standard deviation of per-bar close returns.
func realizedVol(bars []domain.Bar) float64 {
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (bars[i].Close-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}
