package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vitos/tg_signal_trader/internal/config"
	"github.com/vitos/tg_signal_trader/internal/domain"
	"github.com/vitos/tg_signal_trader/internal/events"
	"github.com/vitos/tg_signal_trader/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// Notifier delivers short operator-facing messages (Telegram in production).
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// duplicateWindow is how long a (currency, entry) pair suppresses repeats.
// Channels habitually forward the same call to several groups within seconds.
const duplicateWindow = 180 * time.Second

// Trader runs the signal pipeline: parse, resolve, size, enter. It is the
// only component that sees raw channel messages.
type Trader struct {
	parser   *Parser
	resolver *Resolver
	risk     *RiskGuard
	engine   *Engine
	cfg      *config.Manager
	events   *events.Emitter
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewTrader(parser *Parser, resolver *Resolver, risk *RiskGuard, engine *Engine, cfg *config.Manager, em *events.Emitter, logger *zap.Logger) *Trader {
	return &Trader{
		parser:   parser,
		resolver: resolver,
		risk:     risk,
		engine:   engine,
		cfg:      cfg,
		events:   em,
		logger:   logger,
		now:      time.Now,
		seen:     make(map[string]time.Time),
	}
}

// OnSignal processes one incoming channel message end to end. Errors are
// reported on the event stream; the return value is for callers that want to
// surface them synchronously (the HTTP ingest endpoint does).
func (t *Trader) OnSignal(ctx context.Context, sig domain.Signal) error {
	t.events.Emit(domain.EventNewMessage, map[string]any{
		"source":  sig.Source,
		"preview": preview(sig.Text, 120),
	})

	res := t.parser.Parse(sig)
	switch res.Outcome {
	case OutcomeIgnored:
		metrics.SignalsTotal.WithLabelValues("ignored").Inc()
		t.events.Emit(domain.EventIgnored, map[string]any{"reason": res.Reason})
		return nil
	case OutcomeError:
		metrics.SignalsTotal.WithLabelValues("parse_error").Inc()
		t.events.Emit(domain.EventError, map[string]any{
			"msg": fmt.Sprintf("parse failed: %v", res.Err),
		})
		return res.Err
	}

	intent := res.Intent
	cfg := t.cfg.Snapshot()

	t.events.Emit(domain.EventSignalParsed, map[string]any{
		"currency":    intent.CurrencyDisplay,
		"entry":       intent.Entry,
		"sl":          intent.Stop,
		"tp1":         intent.TPs.TP1,
		"tp2":         intent.TPs.TP2,
		"tp3":         intent.TPs.TP3,
		"capital_pct": intent.CapitalPct,
		"origin":      string(intent.Origin),
	})

	if t.isDuplicate(intent) {
		metrics.SignalsTotal.WithLabelValues("duplicate").Inc()
		t.events.Emit(domain.EventSkipDuplicate, map[string]any{
			"currency": intent.CurrencyDisplay,
			"entry":    intent.Entry,
		})
		return nil
	}

	sym, err := t.resolver.Resolve(intent, cfg)
	if err != nil {
		metrics.SignalsTotal.WithLabelValues("unresolved").Inc()
		t.events.Emit(domain.EventSkip, map[string]any{
			"reason": err.Error(),
		})
		return err
	}

	plan, err := t.risk.BuildPlan(ctx, intent, sym, cfg)
	if err != nil {
		return t.reportPlanError(sym.Symbol, cfg, err)
	}

	if cfg.DryRun {
		metrics.SignalsTotal.WithLabelValues("simulated").Inc()
		metrics.OrdersTotal.WithLabelValues("sim", string(plan.Type)).Inc()
		t.events.Emit(domain.EventTradeExecuted, map[string]any{
			"symbol":    sym.Symbol,
			"entry":     intent.Entry,
			"qty":       plan.Quantity,
			"notional":  plan.Notional,
			"type":      string(plan.Type),
			"sl":        StopPrice(plan.MarketPrice, intent, cfg),
			"tp1":       TakeProfits(plan.MarketPrice, intent, cfg).TP1,
			"simulated": true,
		})
		return nil
	}

	if err := t.engine.Enter(ctx, intent, sym, plan); err != nil {
		if errors.Is(err, domain.ErrPositionExists) {
			metrics.SignalsTotal.WithLabelValues("position_exists").Inc()
			t.events.Emit(domain.EventSkip, map[string]any{
				"symbol": sym.Symbol,
				"reason": "position already open",
			})
			return nil
		}
		metrics.SignalsTotal.WithLabelValues("order_error").Inc()
		t.events.Emit(domain.EventError, map[string]any{
			"msg": fmt.Sprintf("entry failed for %s: %v", sym.Symbol, err),
		})
		return err
	}

	metrics.SignalsTotal.WithLabelValues("executed").Inc()
	return nil
}

func (t *Trader) reportPlanError(symbol string, cfg *config.Settings, err error) error {
	switch {
	case errors.Is(err, domain.ErrSlippageExceeded):
		metrics.SignalsTotal.WithLabelValues("slippage").Inc()
		t.events.Emit(domain.EventSkipSlippage, map[string]any{
			"symbol": symbol,
			"max":    cfg.MaxSlippagePct,
			"reason": err.Error(),
		})
		return nil
	case errors.Is(err, domain.ErrBelowMinNotional), errors.Is(err, domain.ErrNotSpot):
		metrics.SignalsTotal.WithLabelValues("skipped").Inc()
		t.events.Emit(domain.EventSkip, map[string]any{
			"symbol": symbol,
			"reason": err.Error(),
		})
		return nil
	default:
		metrics.SignalsTotal.WithLabelValues("plan_error").Inc()
		t.events.Emit(domain.EventError, map[string]any{
			"msg": fmt.Sprintf("sizing failed for %s: %v", symbol, err),
		})
		return err
	}
}

// isDuplicate records the signal's (currency, entry) key and reports whether
// it was already seen within the window.
func (t *Trader) isDuplicate(intent *domain.ParsedIntent) bool {
	key := fmt.Sprintf("%s@%.8f", strings.ToUpper(intent.CurrencyDisplay), intent.Entry)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for k, at := range t.seen {
		if now.Sub(at) > duplicateWindow {
			delete(t.seen, k)
		}
	}
	if at, ok := t.seen[key]; ok && now.Sub(at) <= duplicateWindow {
		return true
	}
	t.seen[key] = now
	return false
}
