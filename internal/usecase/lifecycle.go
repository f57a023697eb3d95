package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/tg_signal_trader/internal/config"
	"github.com/vitos/tg_signal_trader/internal/domain"
	"github.com/vitos/tg_signal_trader/internal/events"
	"github.com/vitos/tg_signal_trader/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// limitPollInterval is how often an in-flight limit entry is checked for a
// fill before its time-in-force expires.
var limitPollInterval = 2 * time.Second

// Engine owns the position book and drives every position from entry to
// close. Each symbol has its own exclusive section; operations on different
// symbols never block each other. Exchange calls are issued without holding
// a symbol lock; the lock is re-acquired only to commit the result.
type Engine struct {
	exchange domain.Exchange
	cfg      *config.Manager
	events   *events.Emitter
	archive  domain.ArchiveRepository
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	// watchCtx outlives any single ingest request; detached entry watchers
	// run on it so they survive the HTTP call that placed the order.
	watchCtx  context.Context
	stopWatch context.CancelFunc

	mu   sync.RWMutex
	book map[string]*slot
}

type slot struct {
	mu  sync.Mutex
	pos *domain.Position
}

func NewEngine(ex domain.Exchange, cfg *config.Manager, em *events.Emitter, archive domain.ArchiveRepository, notifier Notifier, logger *zap.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		exchange:  ex,
		cfg:       cfg,
		events:    em,
		archive:   archive,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		watchCtx:  ctx,
		stopWatch: cancel,
		book:      make(map[string]*slot),
	}
}

// Close stops the engine's detached watchers. Positions are left as they
// are; any resting entry order stays on the exchange.
func (e *Engine) Close() {
	e.stopWatch()
}

// Enter reserves the symbol and places the planned entry order. Exactly one
// non-terminal position may exist per symbol; a second signal for the same
// symbol is rejected here, before any order is placed.
func (e *Engine) Enter(ctx context.Context, intent *domain.ParsedIntent, sym domain.ResolvedSymbol, plan *domain.OrderPlan) error {
	cfg := e.cfg.Snapshot()

	pos := &domain.Position{
		ID:           uuid.NewString(),
		Symbol:       sym.Symbol,
		BaseCoin:     sym.BaseCoin,
		QuoteCoin:    sym.QuoteCoin,
		Side:         domain.SideBuy,
		State:        domain.StatePending,
		TrailPct:     cfg.TrailingPct,
		MaxHold:      maxHold(intent, cfg),
		OpenedAt:     e.now(),
		LastActivity: e.now(),
	}

	e.mu.Lock()
	if _, exists := e.book[sym.Symbol]; exists {
		e.mu.Unlock()
		return domain.ErrPositionExists
	}
	s := &slot{pos: pos}
	e.book[sym.Symbol] = s
	e.mu.Unlock()
	metrics.OpenPositions.Inc()

	switch plan.Type {
	case domain.OrderMarket:
		return e.enterMarket(ctx, s, intent, plan, cfg)
	case domain.OrderLimit:
		return e.enterLimit(ctx, s, intent, plan, cfg)
	default:
		e.removeSlot(sym.Symbol)
		return fmt.Errorf("unknown order type %q", plan.Type)
	}
}

func (e *Engine) enterMarket(ctx context.Context, s *slot, intent *domain.ParsedIntent, plan *domain.OrderPlan, cfg *config.Settings) error {
	fill, err := e.exchange.MarketBuy(ctx, plan.Symbol, plan.Notional)
	if err != nil {
		e.removeSlot(plan.Symbol)
		return &domain.OrderRejectedError{Symbol: plan.Symbol, Reason: err.Error()}
	}

	s.mu.Lock()
	e.commitOpen(s.pos, fill, intent, cfg)
	pos := *s.pos
	s.mu.Unlock()

	e.recordOrder(ctx, &pos, domain.OrderMarket, fill, domain.SideBuy, false)
	metrics.OrdersTotal.WithLabelValues("live", "market").Inc()
	e.events.Emit(domain.EventOrderFilled, map[string]any{
		"symbol": pos.Symbol,
		"side":   "BUY",
		"qty":    fill.Quantity,
		"price":  fill.AvgPrice,
	})
	e.events.Emit(domain.EventTradeExecuted, map[string]any{
		"symbol":    pos.Symbol,
		"entry":     fill.AvgPrice,
		"qty":       fill.Quantity,
		"notional":  plan.Notional,
		"sl":        pos.StopPrice,
		"tp1":       pos.TakeProfits.TP1,
		"simulated": false,
	})
	e.notify(ctx, fmt.Sprintf("BUY filled %.8f %s @ %.6f, SL %.6f, TP1 %.6f",
		fill.Quantity, pos.Symbol, fill.AvgPrice, pos.StopPrice, pos.TakeProfits.TP1))
	return nil
}

func (e *Engine) enterLimit(ctx context.Context, s *slot, intent *domain.ParsedIntent, plan *domain.OrderPlan, cfg *config.Settings) error {
	orderID, err := e.exchange.PlaceLimitBuy(ctx, plan.Symbol, plan.Quantity, plan.LimitPrice)
	if err != nil {
		e.removeSlot(plan.Symbol)
		return &domain.OrderRejectedError{Symbol: plan.Symbol, Reason: err.Error()}
	}

	s.mu.Lock()
	s.pos.EntryOrderID = orderID
	s.pos.LastActivity = e.now()
	s.mu.Unlock()

	metrics.OrdersTotal.WithLabelValues("live", "limit").Inc()
	e.events.Emit(domain.EventLimitPlaced, map[string]any{
		"symbol":   plan.Symbol,
		"limit":    plan.LimitPrice,
		"qty":      plan.Quantity,
		"tif_sec":  plan.TimeInForce.Seconds(),
		"order_id": orderID,
	})

	go e.watchLimit(e.watchCtx, s, intent, plan, cfg, orderID)
	return nil
}

// watchLimit polls an in-flight limit entry and cancels it at the
// time-in-force deadline. Runs on the engine context, not the ingest
// request's, so it keeps working after the placing call returns.
func (e *Engine) watchLimit(ctx context.Context, s *slot, intent *domain.ParsedIntent, plan *domain.OrderPlan, cfg *config.Settings, orderID string) {
	deadline := e.now().Add(plan.TimeInForce)
	ticker := time.NewTicker(limitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		state := s.pos.State
		s.mu.Unlock()
		if state != domain.StatePending {
			return // flattened or cancelled elsewhere
		}

		st, err := e.exchange.GetOrder(ctx, plan.Symbol, orderID)
		if err != nil {
			e.logger.Warn("limit order status check failed", zap.String("symbol", plan.Symbol), zap.Error(err))
			continue
		}

		if st.Filled() {
			fill := &domain.Fill{OrderID: orderID, Quantity: st.FilledQty, AvgPrice: st.AvgPrice}
			s.mu.Lock()
			if s.pos.State != domain.StatePending {
				s.mu.Unlock()
				return
			}
			e.commitOpen(s.pos, fill, intent, cfg)
			pos := *s.pos
			s.mu.Unlock()

			e.recordOrder(ctx, &pos, domain.OrderLimit, fill, domain.SideBuy, false)
			e.events.Emit(domain.EventOrderFilled, map[string]any{
				"symbol": pos.Symbol,
				"side":   "BUY",
				"qty":    fill.Quantity,
				"price":  fill.AvgPrice,
			})
			e.events.Emit(domain.EventTradeExecuted, map[string]any{
				"symbol":    pos.Symbol,
				"entry":     fill.AvgPrice,
				"qty":       fill.Quantity,
				"notional":  plan.Notional,
				"sl":        pos.StopPrice,
				"tp1":       pos.TakeProfits.TP1,
				"simulated": false,
			})
			return
		}

		if e.now().After(deadline) {
			if err := e.exchange.CancelOrder(ctx, plan.Symbol, orderID); err != nil {
				// A fill can race the cancel; re-check before giving up.
				if st, stErr := e.exchange.GetOrder(ctx, plan.Symbol, orderID); stErr == nil && st.Filled() {
					continue
				}
				e.logger.Warn("limit order cancel failed", zap.String("symbol", plan.Symbol), zap.Error(err))
			}
			s.mu.Lock()
			if s.pos.State != domain.StatePending {
				s.mu.Unlock()
				return
			}
			s.pos.State = domain.StateCancelled
			s.pos.CloseReason = domain.CloseLimitExpiry
			s.pos.ClosedAt = e.now()
			s.pos.LastActivity = e.now()
			pos := *s.pos
			s.mu.Unlock()

			e.events.Emit(domain.EventLimitCancel, map[string]any{
				"symbol":   pos.Symbol,
				"limit":    plan.LimitPrice,
				"waited":   plan.TimeInForce.Seconds(),
				"order_id": orderID,
			})
			e.archiveAndRemove(ctx, &pos)
			return
		}
	}
}

// commitOpen moves a Pending position to Open. Caller holds the slot lock.
func (e *Engine) commitOpen(pos *domain.Position, fill *domain.Fill, intent *domain.ParsedIntent, cfg *config.Settings) {
	pos.State = domain.StateOpen
	pos.EntryPrice = fill.AvgPrice
	pos.Size = fill.Quantity
	pos.Remaining = fill.Quantity
	pos.StopPrice = StopPrice(fill.AvgPrice, intent, cfg)
	pos.TakeProfits = TakeProfits(fill.AvgPrice, intent, cfg)
	// The split mix is fixed at fill time. Reading it from a later snapshot
	// could sell more than 100% of Size across a hot swap.
	pos.SplitTP1 = cfg.TPSplits.TP1
	pos.SplitTP2 = cfg.TPSplits.TP2
	pos.EntryOrderID = ""
	pos.LastActivity = e.now()
}

// exitAction is a read-phase decision committed after the market call.
type exitAction struct {
	qty     float64
	toState domain.PositionState
	reason  domain.CloseReason
	event   string
	stage   int
}

// PollPrices runs one trailing/TP/SL pass over every active position.
func (e *Engine) PollPrices(ctx context.Context) {
	for _, symbol := range e.activeSymbols() {
		price, err := e.exchange.GetPrice(ctx, symbol)
		if err != nil {
			e.logger.Warn("price poll failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		e.ApplyPrice(ctx, symbol, price)
	}
}

// ApplyPrice feeds one observed price into a symbol's state machine,
// repeating while consecutive stages trigger (a gap can cross TP1 and TP2 in
// a single poll).
func (e *Engine) ApplyPrice(ctx context.Context, symbol string, price float64) {
	for e.step(ctx, symbol, price) {
	}
}

func (e *Engine) step(ctx context.Context, symbol string, price float64) bool {
	s := e.slot(symbol)
	if s == nil {
		return false
	}
	cfg := e.cfg.Snapshot()

	s.mu.Lock()
	pos := s.pos
	if pos == nil || pos.State.Terminal() || pos.State == domain.StatePending {
		s.mu.Unlock()
		return false
	}

	e.ratchet(pos, price)

	act := decideExit(pos, price)
	if act == nil {
		s.mu.Unlock()
		return false
	}
	// Reserve the quantity before releasing the lock so a concurrent
	// flatten cannot sell the same size twice.
	pos.Remaining -= act.qty
	s.mu.Unlock()

	fill, err := e.exchange.MarketSell(ctx, symbol, act.qty)

	s.mu.Lock()
	if err != nil {
		pos.Remaining += act.qty
		s.mu.Unlock()
		e.events.Emit(domain.EventError, map[string]any{
			"msg": fmt.Sprintf("exit sell failed for %s: %v", symbol, err),
		})
		e.logger.Error("exit sell failed", zap.String("symbol", symbol), zap.Error(err))
		return false
	}
	if pos.State.Terminal() {
		// A watchdog closed the position between decide and commit; the
		// sold leg still counts, only the archive row misses its PnL.
		s.mu.Unlock()
		e.logger.Warn("exit leg committed after forced close", zap.String("symbol", symbol))
		e.recordOrder(ctx, pos, domain.OrderMarket, fill, domain.SideSell, false)
		return false
	}

	pnl := (fill.AvgPrice - pos.EntryPrice) * fill.Quantity
	pos.RealizedPnL += pnl
	pos.ExitPrice = fill.AvgPrice
	pos.State = act.toState
	pos.LastActivity = e.now()

	runnerArmed := false
	if act.toState == domain.StatePartialTP2 {
		if cfg.StopLossMoveToBEAfterTP2 && pos.StopPrice < pos.EntryPrice {
			pos.StopPrice = pos.EntryPrice
		}
		// The remaining size is the runner; arm it right away.
		pos.State = domain.StateRunner
		if cfg.TrailingRunnerEnabled {
			pos.TrailArmed = true
			pos.TrailPct = cfg.TrailingPct
			pos.LastRatchet = price
			pos.TrailingStop = price * (1.0 - cfg.TrailingPct)
		}
		runnerArmed = true
	}
	if act.toState.Terminal() {
		pos.CloseReason = act.reason
		pos.ClosedAt = e.now()
	}
	committed := *pos
	s.mu.Unlock()

	e.recordOrder(ctx, &committed, domain.OrderMarket, fill, domain.SideSell, false)
	fields := map[string]any{
		"symbol": symbol,
		"qty":    fill.Quantity,
		"price":  fill.AvgPrice,
		"pnl":    pnl,
	}
	if act.stage > 0 {
		fields["stage"] = act.stage
	}
	e.events.Emit(act.event, fields)
	if runnerArmed {
		e.events.Emit(domain.EventRunnerArmed, map[string]any{
			"symbol":        symbol,
			"trailing":      committed.TrailArmed,
			"trailing_stop": committed.TrailingStop,
			"sl":            committed.StopPrice,
		})
	}

	if committed.State.Terminal() {
		metrics.ExitReasons.WithLabelValues(string(committed.CloseReason)).Inc()
		e.events.Emit(domain.EventPositionClosed, map[string]any{
			"symbol": symbol,
			"reason": string(committed.CloseReason),
			"pnl":    committed.RealizedPnL,
		})
		e.notify(ctx, fmt.Sprintf("%s closed (%s), PnL %.4f %s",
			symbol, committed.CloseReason, committed.RealizedPnL, committed.QuoteCoin))
		e.archiveAndRemove(ctx, &committed)
		return false
	}
	return true
}

// ratchet advances the trailing stop in the favorable direction only.
// Caller holds the slot lock.
func (e *Engine) ratchet(pos *domain.Position, price float64) {
	if !pos.TrailArmed || pos.State != domain.StateRunner {
		return
	}
	if price < pos.LastRatchet*(1.0+pos.TrailPct) {
		return
	}
	pos.LastRatchet = price
	if next := price * (1.0 - pos.TrailPct); next > pos.TrailingStop {
		pos.TrailingStop = next
	}
	pos.LastActivity = e.now()
	e.events.Emit(domain.EventTrailRatchet, map[string]any{
		"symbol":        pos.Symbol,
		"price":         price,
		"trailing_stop": pos.TrailingStop,
	})
}

// decideExit inspects one price against the current stage. Caller holds the
// slot lock; no exchange calls happen here.
func decideExit(pos *domain.Position, price float64) *exitAction {
	// Hard stop first: it protects every stage.
	if pos.StopPrice > 0 && price <= pos.StopPrice {
		return &exitAction{
			qty:     pos.Remaining,
			toState: domain.StateClosed,
			reason:  domain.CloseStopLoss,
			event:   domain.EventSLHit,
		}
	}

	switch pos.State {
	case domain.StateOpen:
		if pos.TakeProfits.TP1 > 0 && price >= pos.TakeProfits.TP1 {
			return &exitAction{
				qty:     pos.Size * pos.SplitTP1,
				toState: domain.StatePartialTP1,
				event:   domain.EventTPHit,
				stage:   1,
			}
		}
	case domain.StatePartialTP1:
		if pos.TakeProfits.TP2 > 0 && price >= pos.TakeProfits.TP2 {
			return &exitAction{
				qty:     pos.Size * pos.SplitTP2,
				toState: domain.StatePartialTP2,
				event:   domain.EventTPHit,
				stage:   2,
			}
		}
	case domain.StateRunner:
		if pos.TrailArmed && pos.TrailingStop > 0 && price <= pos.TrailingStop {
			return &exitAction{
				qty:     pos.Remaining,
				toState: domain.StateClosed,
				reason:  domain.CloseTrailing,
				event:   domain.EventSLHit,
			}
		}
		if pos.TakeProfits.TP3 > 0 && price >= pos.TakeProfits.TP3 {
			return &exitAction{
				qty:     pos.Remaining,
				toState: domain.StateClosed,
				reason:  domain.CloseTakeProfit,
				event:   domain.EventTPHit,
				stage:   3,
			}
		}
	}
	return nil
}

// Flatten force-closes a symbol's position regardless of lifecycle stage.
// Pending entries are cancelled only when cancelPending is set.
func (e *Engine) Flatten(ctx context.Context, symbol, reason string, cancelPending bool) error {
	s := e.slot(symbol)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	pos := s.pos
	if pos == nil || pos.State.Terminal() {
		s.mu.Unlock()
		return nil
	}

	if pos.State == domain.StatePending {
		if !cancelPending {
			s.mu.Unlock()
			return nil
		}
		orderID := pos.EntryOrderID
		s.mu.Unlock()

		if orderID != "" {
			if err := e.exchange.CancelOrder(ctx, symbol, orderID); err != nil {
				e.logger.Warn("flatten: cancel pending entry failed", zap.String("symbol", symbol), zap.Error(err))
			}
		}

		s.mu.Lock()
		if s.pos.State != domain.StatePending {
			s.mu.Unlock()
			return nil // filled or expired while we were cancelling
		}
		s.pos.State = domain.StateCancelled
		s.pos.CloseReason = domain.CloseFlatten
		s.pos.ClosedAt = e.now()
		s.pos.LastActivity = e.now()
		committed := *s.pos
		s.mu.Unlock()

		e.events.Emit(domain.EventFlatten, map[string]any{
			"symbol":  symbol,
			"reason":  reason,
			"pending": true,
		})
		e.archiveAndRemove(ctx, &committed)
		return nil
	}

	qty := pos.Remaining
	pos.Remaining = 0
	s.mu.Unlock()

	var fill *domain.Fill
	if qty > 0 {
		var err error
		fill, err = e.exchange.MarketSell(ctx, symbol, qty)
		if err != nil {
			s.mu.Lock()
			pos.Remaining = qty
			s.mu.Unlock()
			e.events.Emit(domain.EventError, map[string]any{
				"msg": fmt.Sprintf("flatten sell failed for %s: %v", symbol, err),
			})
			return fmt.Errorf("flatten %s: %w", symbol, err)
		}
	}

	s.mu.Lock()
	if fill != nil {
		pos.RealizedPnL += (fill.AvgPrice - pos.EntryPrice) * fill.Quantity
		pos.ExitPrice = fill.AvgPrice
	}
	pos.State = domain.StateClosed
	pos.CloseReason = domain.CloseFlatten
	pos.ClosedAt = e.now()
	pos.LastActivity = e.now()
	committed := *pos
	s.mu.Unlock()

	if fill != nil {
		e.recordOrder(ctx, &committed, domain.OrderMarket, fill, domain.SideSell, false)
	}
	metrics.ForcedFlattens.Inc()
	metrics.ExitReasons.WithLabelValues(string(domain.CloseFlatten)).Inc()
	e.events.Emit(domain.EventFlatten, map[string]any{
		"symbol": symbol,
		"reason": reason,
		"qty":    qty,
		"pnl":    committed.RealizedPnL,
	})
	e.notify(ctx, fmt.Sprintf("FLATTENED %s (%s), PnL %.4f %s",
		symbol, reason, committed.RealizedPnL, committed.QuoteCoin))
	e.archiveAndRemove(ctx, &committed)
	return nil
}

// FlattenAll force-closes every tracked position. Returns how many symbols
// were acted on.
func (e *Engine) FlattenAll(ctx context.Context, reason string, cancelPending bool) int {
	n := 0
	for _, symbol := range e.allSymbols() {
		if err := e.Flatten(ctx, symbol, reason, cancelPending); err != nil {
			e.logger.Error("flatten failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// OpenPositions returns copies of every non-terminal position.
func (e *Engine) OpenPositions() []domain.Position {
	var out []domain.Position
	for _, symbol := range e.allSymbols() {
		s := e.slot(symbol)
		if s == nil {
			continue
		}
		s.mu.Lock()
		if s.pos != nil && !s.pos.State.Terminal() {
			out = append(out, *s.pos)
		}
		s.mu.Unlock()
	}
	return out
}

// RunTrailingLoop drives the price poll on the configured interval until the
// context is cancelled. The interval is re-read each cycle so config swaps
// take effect without a restart.
func (e *Engine) RunTrailingLoop(ctx context.Context) {
	for {
		interval := time.Duration(e.cfg.Snapshot().TrailingPollSec) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			e.PollPrices(ctx)
		}
	}
}

func (e *Engine) slot(symbol string) *slot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book[symbol]
}

func (e *Engine) allSymbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.book))
	for sym := range e.book {
		out = append(out, sym)
	}
	return out
}

// activeSymbols lists symbols with a filled (price-sensitive) position.
func (e *Engine) activeSymbols() []string {
	var out []string
	for _, symbol := range e.allSymbols() {
		s := e.slot(symbol)
		if s == nil {
			continue
		}
		s.mu.Lock()
		active := s.pos != nil && !s.pos.State.Terminal() && s.pos.State != domain.StatePending
		s.mu.Unlock()
		if active {
			out = append(out, symbol)
		}
	}
	return out
}

func (e *Engine) removeSlot(symbol string) {
	e.mu.Lock()
	if _, ok := e.book[symbol]; ok {
		delete(e.book, symbol)
		metrics.OpenPositions.Dec()
	}
	e.mu.Unlock()
}

func (e *Engine) archiveAndRemove(ctx context.Context, pos *domain.Position) {
	h := &domain.PositionHistory{
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		Size:        pos.Size,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   pos.ExitPrice,
		RealizedPnL: pos.RealizedPnL,
		CloseReason: pos.CloseReason,
		State:       pos.State,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    pos.ClosedAt,
	}
	if err := e.archive.SavePositionHistory(ctx, h); err != nil {
		e.logger.Error("archive position failed", zap.String("symbol", pos.Symbol), zap.Error(err))
	}
	e.removeSlot(pos.Symbol)
}

func (e *Engine) recordOrder(ctx context.Context, pos *domain.Position, typ domain.OrderType, fill *domain.Fill, side domain.Side, simulated bool) {
	o := &domain.Order{
		ID:         fill.OrderID,
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       side,
		Type:       typ,
		Quantity:   fill.Quantity,
		Price:      fill.AvgPrice,
		Simulated:  simulated,
		CreatedAt:  e.now(),
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if err := e.archive.SaveOrder(ctx, o); err != nil {
		e.logger.Error("archive order failed", zap.String("symbol", pos.Symbol), zap.Error(err))
	}
}

func (e *Engine) notify(ctx context.Context, text string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, text); err != nil {
		e.logger.Warn("notifier send failed", zap.Error(err))
	}
}

func maxHold(intent *domain.ParsedIntent, cfg *config.Settings) time.Duration {
	hold := time.Duration(cfg.MaxHoldHours * float64(time.Hour))
	if intent.PeriodHours > 0 {
		p := time.Duration(intent.PeriodHours) * time.Hour
		if hold == 0 || p < hold {
			hold = p
		}
	}
	return hold
}
