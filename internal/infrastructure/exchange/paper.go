package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/vitos/tg_signal_trader/internal/domain"
)

// PaperExchange is an in-memory venue for dry runs and tests. Market orders
// fill instantly at the posted price; limit orders rest until FillLimit is
// called. It keeps a quote and base ledger so sizing behaves like the real
// thing.
type PaperExchange struct {
	mu          sync.Mutex
	prices      map[string]float64
	balances    map[string]float64
	instruments []domain.Instrument
	limits      map[string]*paperLimit
	nextID      int64

	// Calls records every order-placing invocation, for assertions.
	Calls []string

	// FailNext, when set, makes the next order call return this error.
	FailNext error
}

type paperLimit struct {
	symbol   string
	quantity float64
	price    float64
	status   string
	filled   float64
	avg      float64
}

func NewPaperExchange() *PaperExchange {
	return &PaperExchange{
		prices:   make(map[string]float64),
		balances: make(map[string]float64),
		limits:   make(map[string]*paperLimit),
	}
}

func (p *PaperExchange) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

func (p *PaperExchange) SetBalance(asset string, free float64) {
	p.mu.Lock()
	p.balances[asset] = free
	p.mu.Unlock()
}

func (p *PaperExchange) SetInstruments(instruments []domain.Instrument) {
	p.mu.Lock()
	p.instruments = instruments
	p.mu.Unlock()
}

func (p *PaperExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("paper: no price for %s", symbol)
	}
	return price, nil
}

func (p *PaperExchange) GetFreeBalance(ctx context.Context, asset string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[asset], nil
}

func (p *PaperExchange) GetInstruments(ctx context.Context) ([]domain.Instrument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Instrument, len(p.instruments))
	copy(out, p.instruments)
	return out, nil
}

func (p *PaperExchange) MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (*domain.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, "market_buy:"+symbol)
	if err := p.takeFailure(); err != nil {
		return nil, err
	}

	price, ok := p.prices[symbol]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("paper: no price for %s", symbol)
	}
	qty := quoteAmount / price
	p.adjust(symbol, qty, -quoteAmount)
	return &domain.Fill{OrderID: p.newID(), Quantity: qty, AvgPrice: price}, nil
}

func (p *PaperExchange) MarketSell(ctx context.Context, symbol string, quantity float64) (*domain.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, "market_sell:"+symbol)
	if err := p.takeFailure(); err != nil {
		return nil, err
	}

	price, ok := p.prices[symbol]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("paper: no price for %s", symbol)
	}
	p.adjust(symbol, -quantity, quantity*price)
	return &domain.Fill{OrderID: p.newID(), Quantity: quantity, AvgPrice: price}, nil
}

func (p *PaperExchange) PlaceLimitBuy(ctx context.Context, symbol string, quantity, price float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, "limit_buy:"+symbol)
	if err := p.takeFailure(); err != nil {
		return "", err
	}

	id := p.newID()
	p.limits[id] = &paperLimit{symbol: symbol, quantity: quantity, price: price, status: "NEW"}
	return id, nil
}

func (p *PaperExchange) GetOrder(ctx context.Context, symbol, orderID string) (*domain.OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limits[orderID]
	if !ok {
		return nil, fmt.Errorf("paper: unknown order %s", orderID)
	}
	return &domain.OrderStatus{
		OrderID:   orderID,
		Status:    lim.status,
		FilledQty: lim.filled,
		AvgPrice:  lim.avg,
	}, nil
}

func (p *PaperExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, "cancel:"+symbol)
	lim, ok := p.limits[orderID]
	if !ok {
		return fmt.Errorf("paper: unknown order %s", orderID)
	}
	if lim.status == "NEW" {
		lim.status = "CANCELED"
	}
	return nil
}

// FillLimit marks a resting limit order as fully filled at its price.
func (p *PaperExchange) FillLimit(orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limits[orderID]
	if !ok {
		return fmt.Errorf("paper: unknown order %s", orderID)
	}
	lim.status = "FILLED"
	lim.filled = lim.quantity
	lim.avg = lim.price
	p.adjust(lim.symbol, lim.quantity, -lim.quantity*lim.price)
	return nil
}

// LastOrderID returns the most recently assigned order id, if any.
func (p *PaperExchange) LastOrderID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nextID == 0 {
		return ""
	}
	return strconv.FormatInt(p.nextID, 10)
}

// adjust moves base and quote funds; callers hold the lock. The base asset is
// derived from the symbol against known instruments, falling back to the raw
// symbol for tests that never load an instrument list.
func (p *PaperExchange) adjust(symbol string, baseDelta, quoteDelta float64) {
	base, quote := symbol, ""
	for _, ins := range p.instruments {
		if ins.Symbol == symbol {
			base, quote = ins.BaseCoin, ins.QuoteCoin
			break
		}
	}
	p.balances[base] += baseDelta
	if quote != "" {
		p.balances[quote] += quoteDelta
	}
}

func (p *PaperExchange) takeFailure() error {
	if p.FailNext != nil {
		err := p.FailNext
		p.FailNext = nil
		return err
	}
	return nil
}

func (p *PaperExchange) newID() string {
	p.nextID++
	return strconv.FormatInt(p.nextID, 10)
}
