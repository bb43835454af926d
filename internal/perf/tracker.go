// Package perf derives ranking metrics from a ledger's trade history and
// portfolio-value time series over a rolling evaluation window.
package perf

import (
	"log/slog"
	"math"
	"time"

	"github.com/evoquant/evobot/internal/domain"
	"github.com/evoquant/evobot/internal/ledger"
)

// Config holds the evaluation parameters.
type Config struct {
	// Window is the rolling evaluation span.
	Window time.Duration
	// RiskFreeRate is the annual risk-free rate used in Sharpe/Sortino.
	RiskFreeRate float64
	// PeriodsPerYear annualizes per-period returns (e.g. 252 for daily
	// ticks, 252*390 for minute ticks).
	PeriodsPerYear float64
}

// Tracker computes PerformanceMetricSnapshots. Evaluation is a pure read of
// the ledger snapshot; nothing in the ledger is mutated.
type Tracker struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Tracker.
func New(cfg Config, logger *slog.Logger) *Tracker {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}
	return &Tracker{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "perf")),
	}
}

// Evaluate computes one metric snapshot for the ledger over the window
// ending at asOf.
func (t *Tracker) Evaluate(led *ledger.Ledger, asOf time.Time) domain.PerformanceMetricSnapshot {
	st := led.Snapshot()
	windowStart := asOf.Add(-t.cfg.Window)

	series := seriesWithin(st.ValueSeries, windowStart, asOf)
	trades := tradesWithin(st.Trades, windowStart, asOf)

	m := domain.PerformanceMetricSnapshot{
		AlgorithmID: st.AlgorithmID,
		WindowStart: windowStart,
		WindowEnd:   asOf,
		TradeCount:  len(trades),
		ComputedAt:  asOf,
	}

	m.ROI = roi(series, st.InitialCapital)
	m.Sharpe, m.Sortino = ratios(series, t.cfg.RiskFreeRate, t.cfg.PeriodsPerYear)
	m.MaxDrawdown = MaxDrawdown(values(series))
	m.WinRate = winRate(trades)

	return m
}

func seriesWithin(series []domain.ValuePoint, since, until time.Time) []domain.ValuePoint {
	out := make([]domain.ValuePoint, 0, len(series))
	for _, p := range series {
		if p.Timestamp.Before(since) || p.Timestamp.After(until) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func tradesWithin(trades []domain.Trade, since, until time.Time) []domain.Trade {
	out := make([]domain.Trade, 0, len(trades))
	for _, tr := range trades {
		if tr.Timestamp.Before(since) || tr.Timestamp.After(until) {
			continue
		}
		out = append(out, tr)
	}
	return out
}

func values(series []domain.ValuePoint) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Value
	}
	return out
}

// roi measures the window's return against its starting value, falling back
// to initial capital when the window opens at the start of life.
func roi(series []domain.ValuePoint, initialCapital float64) float64 {
	if len(series) == 0 {
		return 0
	}
	base := series[0].Value
	if base == 0 {
		base = initialCapital
	}
	if base == 0 {
		return 0
	}
	return (series[len(series)-1].Value - base) / base
}

// ratios returns the annualized Sharpe and Sortino ratios of the per-period
// returns. Both are exactly zero, never NaN, when the returns have no
// variance; a flat series carries no risk signal even below the risk-free
// rate.
func ratios(series []domain.ValuePoint, riskFree, periodsPerYear float64) (sharpe, sortino float64) {
	if len(series) < 2 {
		return 0, 0
	}
	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev := series[i-1].Value
		if prev == 0 {
			continue
		}
		returns = append(returns, (series[i].Value-prev)/prev)
	}
	if len(returns) < 2 {
		return 0, 0
	}

	rfPerPeriod := riskFree / periodsPerYear
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	excess := mean - rfPerPeriod

	variance, downside := 0.0, 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
		if r < rfPerPeriod {
			dd := r - rfPerPeriod
			downside += dd * dd
		}
	}
	variance /= float64(len(returns))
	downside /= float64(len(returns))
	if variance == 0 {
		return 0, 0
	}

	ann := math.Sqrt(periodsPerYear)
	if stdev := math.Sqrt(variance); stdev > 0 {
		sharpe = excess / stdev * ann
	}
	if dd := math.Sqrt(downside); dd > 0 {
		sortino = excess / dd * ann
	}
	return sharpe, sortino
}

// MaxDrawdown computes the largest peak-to-trough loss as a fraction of the
// peak, using a monotonically non-decreasing peak tracker.
func MaxDrawdown(values []float64) float64 {
	peak, maxDD := 0.0, 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// winRate is the fraction of closing trades with positive realized P&L. It
// is nil, not zero, when the window has no closing trades.
func winRate(trades []domain.Trade) *float64 {
	closing, wins := 0, 0
	for _, tr := range trades {
		if tr.Side != domain.OrderSideSell {
			continue
		}
		closing++
		if tr.RealizedPnL > 0 {
			wins++
		}
	}
	if closing == 0 {
		return nil
	}
	wr := float64(wins) / float64(closing)
	return &wr
}
