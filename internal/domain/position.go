package domain

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionState is the lifecycle state of a managed position.
type PositionState string

const (
	StatePending    PositionState = "PENDING"     // entry order submitted, awaiting fill
	StateOpen       PositionState = "OPEN"        // filled, full size
	StatePartialTP1 PositionState = "PARTIAL_TP1" // tp1 portion closed
	StatePartialTP2 PositionState = "PARTIAL_TP2" // tp2 portion closed
	StateRunner     PositionState = "RUNNER"      // runner portion held under trailing stop
	StateClosed     PositionState = "CLOSED"
	StateCancelled  PositionState = "CANCELLED" // entry order expired unfilled
)

// Terminal reports whether the state ends the lifecycle.
func (s PositionState) Terminal() bool {
	return s == StateClosed || s == StateCancelled
}

// CloseReason records why a position reached a terminal state.
type CloseReason string

const (
	CloseTakeProfit  CloseReason = "take_profit"
	CloseStopLoss    CloseReason = "stop_loss"
	CloseTrailing    CloseReason = "trailing_stop"
	CloseFlatten     CloseReason = "forced_flatten"
	CloseLimitExpiry CloseReason = "limit_expired"
)

type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderPlan is the sized, typed entry the risk guard hands to the engine.
type OrderPlan struct {
	Symbol      string
	Side        Side
	Notional    float64 // quote-asset amount to spend
	Quantity    float64 // base quantity at the sizing price
	Type        OrderType
	LimitPrice  float64 // only for OrderLimit
	TimeInForce time.Duration
	Slippage    float64 // estimate at planning time
	MarketPrice float64 // last price at planning time
}

// Position is the long-lived entity managed by the lifecycle engine.
// At most one non-terminal Position exists per symbol.
type Position struct {
	ID           string        `json:"id"`
	Symbol       string        `json:"symbol"`
	BaseCoin     string        `json:"base_coin"`
	QuoteCoin    string        `json:"quote_coin"`
	Side         Side          `json:"side"`
	State        PositionState `json:"state"`
	EntryPrice   float64       `json:"entry_price"`
	Size         float64       `json:"size"` // original filled size
	Remaining    float64       `json:"remaining"`
	StopPrice    float64       `json:"stop_price"`
	TakeProfits  TPSet         `json:"take_profits"`
	SplitTP1     float64       `json:"split_tp1"` // fraction of Size sold at TP1, fixed at fill time
	SplitTP2     float64       `json:"split_tp2"` // fraction of Size sold at TP2, fixed at fill time
	TrailPct     float64       `json:"trail_pct"`
	TrailArmed   bool          `json:"trail_armed"`
	LastRatchet  float64       `json:"last_ratchet"`  // price of the last favorable ratchet
	TrailingStop float64       `json:"trailing_stop"` // never lowered once set
	EntryOrderID string        `json:"entry_order_id,omitempty"` // outstanding limit entry, if any
	MaxHold      time.Duration `json:"max_hold"`
	RealizedPnL  float64       `json:"realized_pnl"`
	ExitPrice    float64       `json:"exit_price"` // last exit fill
	CloseReason  CloseReason   `json:"close_reason,omitempty"`
	OpenedAt     time.Time     `json:"opened_at"`
	LastActivity time.Time     `json:"last_activity"`
	ClosedAt     time.Time     `json:"closed_at"`
}

// PositionHistory is the archived form of a closed position.
type PositionHistory struct {
	ID          int64         `json:"id"`
	PositionID  string        `json:"position_id"`
	Symbol      string        `json:"symbol"`
	Side        Side          `json:"side"`
	Size        float64       `json:"size"`
	EntryPrice  float64       `json:"entry_price"`
	ExitPrice   float64       `json:"exit_price"`
	RealizedPnL float64       `json:"realized_pnl"`
	CloseReason CloseReason   `json:"close_reason"`
	State       PositionState `json:"state"`
	OpenedAt    time.Time     `json:"opened_at"`
	ClosedAt    time.Time     `json:"closed_at"`
}

// Order is one executed order leg (entry or exit) kept for the archive.
type Order struct {
	ID         string    `json:"id"`
	PositionID string    `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Type       OrderType `json:"type"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Simulated  bool      `json:"simulated"`
	CreatedAt  time.Time `json:"created_at"`
}
