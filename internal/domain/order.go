package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType indicates how the simulated order prices.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus tracks the order lifecycle. FILLED and REJECTED are terminal;
// an order is immutable once it reaches either.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusRejected OrderStatus = "rejected"
)

// RejectionReason explains why the simulator produced no trade for a signal.
type RejectionReason string

const (
	RejectZeroQuantity      RejectionReason = "quantity_rounds_to_zero"
	RejectInsufficientFunds RejectionReason = "insufficient_funds"
	RejectPositionCap       RejectionReason = "position_cap_exceeded"
	RejectNoPosition        RejectionReason = "insufficient_position"
)

// Order is created by the execution simulator from a Signal.
type Order struct {
	ID          string
	AlgorithmID string
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Quantity    float64
	LimitPrice  *float64
	Status      OrderStatus
	// Rejection is set only when Status is rejected.
	Rejection RejectionReason
	CreatedAt time.Time
	FilledAt  *time.Time
}
