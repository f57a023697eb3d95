package domain

import "context"

// Fill is the result of an executed entry or exit order.
type Fill struct {
	OrderID  string
	Quantity float64
	AvgPrice float64
}

// OrderStatus reports on an outstanding order.
type OrderStatus struct {
	OrderID   string
	Status    string // NEW | PARTIALLY_FILLED | FILLED | CANCELED | REJECTED
	FilledQty float64
	AvgPrice  float64
}

func (s *OrderStatus) Filled() bool { return s.Status == "FILLED" }

// Exchange defines the market operations the engine needs: price queries and
// order placement. Calls may block; callers must not hold position locks
// while waiting on them.
type Exchange interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetFreeBalance(ctx context.Context, asset string) (float64, error)
	GetInstruments(ctx context.Context) ([]Instrument, error)

	// MarketBuy spends quoteAmount of the quote asset at market.
	MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (*Fill, error)
	// MarketSell sells quantity of the base asset at market.
	MarketSell(ctx context.Context, symbol string, quantity float64) (*Fill, error)
	// PlaceLimitBuy submits a limit entry and returns immediately.
	PlaceLimitBuy(ctx context.Context, symbol string, quantity, price float64) (string, error)
	GetOrder(ctx context.Context, symbol, orderID string) (*OrderStatus, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// ArchiveRepository persists terminal positions and executed order legs.
// Write-only from the engine's point of view; the read side serves tooling.
type ArchiveRepository interface {
	SavePositionHistory(ctx context.Context, h *PositionHistory) error
	ListPositionHistory(ctx context.Context, limit int) ([]*PositionHistory, error)
	SaveOrder(ctx context.Context, o *Order) error
	ListOrders(ctx context.Context, limit int) ([]*Order, error)
}
