package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/vitos/tg_signal_trader/internal/config"
	"github.com/vitos/tg_signal_trader/internal/domain"
	"go.uber.org/zap"
)

// RiskGuard sizes an entry and decides how it is placed. It rejects trades
// that violate the configured guards; it never places orders itself.
type RiskGuard struct {
	exchange domain.Exchange
	logger   *zap.Logger
}

func NewRiskGuard(ex domain.Exchange, logger *zap.Logger) *RiskGuard {
	return &RiskGuard{exchange: ex, logger: logger}
}

// BuildPlan computes the order plan for an accepted intent under the given
// settings snapshot. All checks run in dry-run too, except the balance floor
// (a simulation should not depend on the funded account).
func (g *RiskGuard) BuildPlan(ctx context.Context, intent *domain.ParsedIntent, sym domain.ResolvedSymbol, cfg *config.Settings) (*domain.OrderPlan, error) {
	if cfg.RespectSpotOnly && sym.Leveraged {
		return nil, domain.ErrNotSpot
	}

	freeQuote, err := g.exchange.GetFreeBalance(ctx, sym.QuoteCoin)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}

	capPct := cfg.CapitalEntryPctDefault
	if !cfg.OverrideCapitalEnabled && intent.CapitalPct > 0 {
		capPct = intent.CapitalPct
	}

	notional := freeQuote * capPct
	if !cfg.DryRun && notional < cfg.MinNotionalUSDT {
		return nil, fmt.Errorf("notional %.2f %s: %w", notional, sym.QuoteCoin, domain.ErrBelowMinNotional)
	}

	last, err := g.exchange.GetPrice(ctx, sym.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch price: %w", err)
	}

	slippage := math.Abs(last-intent.Entry) / intent.Entry

	plan := &domain.OrderPlan{
		Symbol:      sym.Symbol,
		Side:        domain.SideBuy,
		Notional:    notional,
		Slippage:    slippage,
		MarketPrice: last,
	}

	switch {
	case slippage <= cfg.MaxSlippagePct:
		plan.Type = domain.OrderMarket
		plan.Quantity = notional / last
	case cfg.UseLimitIfSlippageExceeds:
		plan.Type = domain.OrderLimit
		plan.LimitPrice = intent.Entry
		plan.Quantity = notional / intent.Entry
		plan.TimeInForce = time.Duration(cfg.LimitTimeInForceSec) * time.Second
	default:
		return nil, fmt.Errorf("estimate %.4f vs max %.4f: %w", slippage, cfg.MaxSlippagePct, domain.ErrSlippageExceeded)
	}

	g.logger.Debug("order plan",
		zap.String("symbol", plan.Symbol),
		zap.String("type", string(plan.Type)),
		zap.Float64("notional", plan.Notional),
		zap.Float64("slippage", slippage),
	)
	return plan, nil
}

// StopPrice picks the stop for a fill: global override wins when enabled,
// then the signal hint, then the default percentage padded by the slippage
// allowance.
func StopPrice(fillPrice float64, intent *domain.ParsedIntent, cfg *config.Settings) float64 {
	if cfg.OverrideSLEnabled {
		if cfg.OverrideSLAsAbsolute {
			return fillPrice - cfg.OverrideSLPct
		}
		return fillPrice * (1.0 - cfg.OverrideSLPct)
	}
	if intent.Stop > 0 {
		return intent.Stop
	}
	return intent.Entry * (1.0 - (cfg.DefaultSLPct + cfg.MaxSlippagePct))
}

// TakeProfits applies the global TP override on top of the signal's ladder.
// A missing TP2 is extended one entry-to-TP1 distance past TP1 so the ladder
// stays three-staged.
func TakeProfits(fillPrice float64, intent *domain.ParsedIntent, cfg *config.Settings) domain.TPSet {
	tps := intent.TPs
	if cfg.OverrideTPEnabled {
		step := fillPrice * cfg.OverrideTPPct
		return domain.TPSet{
			TP1: fillPrice + step,
			TP2: fillPrice + 2*step,
			TP3: fillPrice + 3*step,
		}
	}
	if tps.TP2 == 0 && tps.TP1 > intent.Entry {
		tps.TP2 = tps.TP1 + (tps.TP1 - intent.Entry)
	}
	return tps
}
