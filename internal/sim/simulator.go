// Package sim converts trading signals into simulated fills against a
// ledger, applying deterministic commission, slippage, and position-limit
// policy. Reproducibility matters here: the same signal against the same
// ledger and snapshot always yields the same outcome.
package sim

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/evoquant/evobot/internal/domain"
	"github.com/evoquant/evobot/internal/ledger"
)

// Config holds the execution-policy parameters.
type Config struct {
	// CommissionRate is charged on fill notional.
	CommissionRate float64
	// SlippageRate moves the fill price against the taker.
	SlippageRate float64
	// MaxPositionSize caps a single position as a fraction of total
	// portfolio value.
	MaxPositionSize float64
	// LotSize is the instrument granularity; quantities are truncated to
	// whole multiples. Defaults to 1 when zero.
	LotSize float64
}

// Result is the outcome of executing one signal: always an order record, and
// a trade only when the order filled.
type Result struct {
	Order domain.Order
	// Trade is nil when the order was rejected.
	Trade *domain.Trade
}

// Filled reports whether the signal produced a fill.
func (r *Result) Filled() bool { return r != nil && r.Trade != nil }

// Simulator prices and fills orders against per-algorithm ledgers.
type Simulator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Simulator with the given execution policy.
func New(cfg Config, logger *slog.Logger) *Simulator {
	if cfg.LotSize <= 0 {
		cfg.LotSize = 1
	}
	return &Simulator{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "sim")),
	}
}

// Execute converts a signal into a filled or rejected order against the
// given ledger. HOLD signals return (nil, nil): no order is created. A
// rejected order carries its RejectionReason; rejections are never silent.
func (s *Simulator) Execute(sig domain.Signal, led *ledger.Ledger, snap domain.MarketSnapshot) (*Result, error) {
	switch sig.Action {
	case domain.ActionHold:
		return nil, nil
	case domain.ActionBuy:
		return s.executeBuy(sig, led, snap), nil
	case domain.ActionSell:
		return s.executeSell(sig, led, snap), nil
	default:
		return nil, fmt.Errorf("sim: unknown signal action %q", sig.Action)
	}
}

func (s *Simulator) executeBuy(sig domain.Signal, led *ledger.Ledger, snap domain.MarketSnapshot) *Result {
	order := s.newOrder(sig, domain.OrderSideBuy)

	prices := map[string]float64{snap.Symbol: snap.Last}
	portfolioValue := led.MarkToMarket(prices)
	available := led.Cash()

	// Confidence scales the target notional within the per-position cap.
	targetNotional := sig.Confidence * available * s.cfg.MaxPositionSize
	fillPrice := snap.Last * (1 + s.cfg.SlippageRate)

	qty := truncate(targetNotional/fillPrice, s.cfg.LotSize)
	if qty <= 0 {
		return s.reject(order, domain.RejectZeroQuantity, sig)
	}

	// Position cap against total portfolio value, counting what is
	// already held in the symbol.
	held := 0.0
	if pos, ok := led.Position(snap.Symbol); ok {
		held = pos.Quantity * snap.Last
	}
	if held+qty*fillPrice > s.cfg.MaxPositionSize*portfolioValue+1e-9 {
		return s.reject(order, domain.RejectPositionCap, sig)
	}

	trade := s.newTrade(order, fillPrice, qty, snap)
	applied, err := led.Apply(trade)
	if err != nil {
		return s.reject(order, domain.RejectInsufficientFunds, sig)
	}
	return s.fill(order, applied)
}

func (s *Simulator) executeSell(sig domain.Signal, led *ledger.Ledger, snap domain.MarketSnapshot) *Result {
	order := s.newOrder(sig, domain.OrderSideSell)

	pos, ok := led.Position(snap.Symbol)
	if !ok || pos.Quantity <= 0 {
		return s.reject(order, domain.RejectNoPosition, sig)
	}

	// Long-only model: a sell closes the full held quantity.
	qty := pos.Quantity
	fillPrice := snap.Last * (1 - s.cfg.SlippageRate)

	trade := s.newTrade(order, fillPrice, qty, snap)
	applied, err := led.Apply(trade)
	if err != nil {
		return s.reject(order, domain.RejectNoPosition, sig)
	}
	return s.fill(order, applied)
}

func (s *Simulator) newOrder(sig domain.Signal, side domain.OrderSide) domain.Order {
	return domain.Order{
		ID:          uuid.New().String(),
		AlgorithmID: sig.AlgorithmID,
		Symbol:      sig.Symbol,
		Side:        side,
		Type:        domain.OrderTypeMarket,
		Status:      domain.OrderStatusPending,
		CreatedAt:   sig.Timestamp,
	}
}

func (s *Simulator) newTrade(order domain.Order, fillPrice, qty float64, snap domain.MarketSnapshot) domain.Trade {
	notional := fillPrice * qty
	return domain.Trade{
		ID:           uuid.New().String(),
		OrderID:      order.ID,
		AlgorithmID:  order.AlgorithmID,
		Symbol:       order.Symbol,
		Side:         order.Side,
		FillPrice:    fillPrice,
		Quantity:     qty,
		Commission:   notional * s.cfg.CommissionRate,
		SlippageCost: math.Abs(fillPrice-snap.Last) * qty,
		Timestamp:    snap.Timestamp,
	}
}

func (s *Simulator) fill(order domain.Order, trade domain.Trade) *Result {
	order.Status = domain.OrderStatusFilled
	order.Quantity = trade.Quantity
	ts := trade.Timestamp
	order.FilledAt = &ts

	s.logger.Debug("order filled",
		slog.String("order_id", order.ID),
		slog.String("algorithm_id", order.AlgorithmID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.Float64("fill_price", trade.FillPrice),
		slog.Float64("quantity", trade.Quantity),
	)
	return &Result{Order: order, Trade: &trade}
}

func (s *Simulator) reject(order domain.Order, reason domain.RejectionReason, sig domain.Signal) *Result {
	order.Status = domain.OrderStatusRejected
	order.Rejection = reason

	s.logger.Debug("order rejected",
		slog.String("order_id", order.ID),
		slog.String("algorithm_id", order.AlgorithmID),
		slog.String("symbol", order.Symbol),
		slog.String("reason", string(reason)),
		slog.Float64("confidence", sig.Confidence),
	)
	return &Result{Order: order}
}

// truncate rounds qty down to a whole multiple of lot.
func truncate(qty, lot float64) float64 {
	if lot <= 0 {
		lot = 1
	}
	return math.Floor(qty/lot) * lot
}
