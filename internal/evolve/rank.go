package evolve

import (
	"fmt"
	"sort"

	"github.com/evoquant/evobot/internal/domain"
	"github.com/evoquant/evobot/internal/executor"
)

// Ranked pairs a pool member with its metric snapshot for selection.
type Ranked struct {
	Member executor.Member
	Metric domain.PerformanceMetricSnapshot
}

// Metric names accepted in a ranking chain. The chain is configuration, not
// policy baked into code: the default sharpe -> roi -> trades ordering can
// be rearranged per deployment.
const (
	MetricSharpe   = "sharpe"
	MetricROI      = "roi"
	MetricSortino  = "sortino"
	MetricDrawdown = "drawdown"
	MetricWinRate  = "win_rate"
	MetricTrades   = "trades"
)

// DefaultRankChain is sharpe, ties broken by ROI, then by fewest trades as a
// stability preference.
var DefaultRankChain = []string{MetricSharpe, MetricROI, MetricTrades}

// ValidateRankChain rejects unknown metric names up front so a typo in
// configuration fails at startup rather than silently reordering selection.
func ValidateRankChain(chain []string) error {
	for _, name := range chain {
		switch name {
		case MetricSharpe, MetricROI, MetricSortino, MetricDrawdown, MetricWinRate, MetricTrades:
		default:
			return fmt.Errorf("evolve: unknown ranking metric %q", name)
		}
	}
	return nil
}

// rank orders entries best-first by the configured metric chain. Equal
// entries fall back to algorithm id for a stable, reproducible order.
func rank(entries []Ranked, chain []string) []Ranked {
	if len(chain) == 0 {
		chain = DefaultRankChain
	}
	out := make([]Ranked, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		for _, metric := range chain {
			if c := compare(out[i].Metric, out[j].Metric, metric); c != 0 {
				return c > 0
			}
		}
		return out[i].Member.Descriptor.ID < out[j].Member.Descriptor.ID
	})
	return out
}

// compare returns >0 when a ranks above b on the given metric.
func compare(a, b domain.PerformanceMetricSnapshot, metric string) int {
	switch metric {
	case MetricSharpe:
		return cmpFloat(a.Sharpe, b.Sharpe)
	case MetricROI:
		return cmpFloat(a.ROI, b.ROI)
	case MetricSortino:
		return cmpFloat(a.Sortino, b.Sortino)
	case MetricDrawdown:
		// Lower drawdown ranks higher.
		return cmpFloat(b.MaxDrawdown, a.MaxDrawdown)
	case MetricWinRate:
		// A missing win rate ranks below any known one.
		av, bv := -1.0, -1.0
		if a.WinRate != nil {
			av = *a.WinRate
		}
		if b.WinRate != nil {
			bv = *b.WinRate
		}
		return cmpFloat(av, bv)
	case MetricTrades:
		// Fewer trades ranks higher (stability preference).
		return cmpFloat(float64(b.TradeCount), float64(a.TradeCount))
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}
