package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/tg_signal_trader/internal/config"
	"github.com/vitos/tg_signal_trader/internal/domain"
	"github.com/vitos/tg_signal_trader/internal/infrastructure/exchange"
	"go.uber.org/zap"
)

func riskFixture(price, balance float64) (*RiskGuard, *exchange.PaperExchange) {
	ex := exchange.NewPaperExchange()
	ex.SetPrice("SOLUSDT", price)
	ex.SetBalance("USDT", balance)
	return NewRiskGuard(ex, zap.NewNop()), ex
}

var solSym = domain.ResolvedSymbol{Symbol: "SOLUSDT", BaseCoin: "SOL", QuoteCoin: "USDT"}

func TestBuildPlanMarketWithinSlippage(t *testing.T) {
	g, _ := riskFixture(150.0, 1000.0)
	cfg := config.Defaults()

	plan, err := g.BuildPlan(context.Background(), &domain.ParsedIntent{Entry: 150.0}, solSym, &cfg)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderMarket, plan.Type)
	assert.Equal(t, 800.0, plan.Notional) // 80% of free quote
	assert.InDelta(t, 800.0/150.0, plan.Quantity, 1e-9)
	assert.Zero(t, plan.Slippage)
}

func TestBuildPlanHonorsSignalCapitalPct(t *testing.T) {
	g, _ := riskFixture(150.0, 1000.0)
	cfg := config.Defaults()

	plan, err := g.BuildPlan(context.Background(), &domain.ParsedIntent{Entry: 150.0, CapitalPct: 0.5}, solSym, &cfg)
	require.NoError(t, err)
	assert.Equal(t, 500.0, plan.Notional)
}

func TestBuildPlanOverrideIgnoresSignalCapitalPct(t *testing.T) {
	g, _ := riskFixture(150.0, 1000.0)
	cfg := config.Defaults()
	cfg.OverrideCapitalEnabled = true

	plan, err := g.BuildPlan(context.Background(), &domain.ParsedIntent{Entry: 150.0, CapitalPct: 0.5}, solSym, &cfg)
	require.NoError(t, err)
	assert.Equal(t, 800.0, plan.Notional)
}

func TestBuildPlanSlippageFallsBackToLimit(t *testing.T) {
	// Market moved 2% above the signalled entry; 1.5% is the cap.
	g, _ := riskFixture(153.0, 1000.0)
	cfg := config.Defaults()

	plan, err := g.BuildPlan(context.Background(), &domain.ParsedIntent{Entry: 150.0}, solSym, &cfg)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderLimit, plan.Type)
	assert.Equal(t, 150.0, plan.LimitPrice)
	assert.InDelta(t, 800.0/150.0, plan.Quantity, 1e-9)
	assert.Equal(t, 180*time.Second, plan.TimeInForce)
	assert.InDelta(t, 0.02, plan.Slippage, 1e-9)
}

func TestBuildPlanSlippageRejectedWhenLimitDisabled(t *testing.T) {
	g, _ := riskFixture(153.0, 1000.0)
	cfg := config.Defaults()
	cfg.UseLimitIfSlippageExceeds = false

	_, err := g.BuildPlan(context.Background(), &domain.ParsedIntent{Entry: 150.0}, solSym, &cfg)
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)
}

func TestBuildPlanBelowMinNotional(t *testing.T) {
	g, _ := riskFixture(150.0, 5.0) // 80% of 5 USDT is below the 5 USDT floor
	cfg := config.Defaults()

	_, err := g.BuildPlan(context.Background(), &domain.ParsedIntent{Entry: 150.0}, solSym, &cfg)
	require.ErrorIs(t, err, domain.ErrBelowMinNotional)
}

func TestBuildPlanDryRunSkipsNotionalFloor(t *testing.T) {
	g, _ := riskFixture(150.0, 5.0)
	cfg := config.Defaults()
	cfg.DryRun = true

	plan, err := g.BuildPlan(context.Background(), &domain.ParsedIntent{Entry: 150.0}, solSym, &cfg)
	require.NoError(t, err)
	assert.Equal(t, 4.0, plan.Notional)
}

func TestBuildPlanRejectsLeveragedInSpotOnlyMode(t *testing.T) {
	g, _ := riskFixture(150.0, 1000.0)
	cfg := config.Defaults()

	lev := solSym
	lev.Leveraged = true
	_, err := g.BuildPlan(context.Background(), &domain.ParsedIntent{Entry: 150.0}, lev, &cfg)
	require.ErrorIs(t, err, domain.ErrNotSpot)
}

func TestStopPricePrecedence(t *testing.T) {
	cfg := config.Defaults()
	intent := &domain.ParsedIntent{Entry: 100.0, Stop: 92.0}

	// Signal stop wins when no override is configured.
	assert.Equal(t, 92.0, StopPrice(101.0, intent, &cfg))

	// Global percentage override wins over the signal.
	cfg.OverrideSLEnabled = true
	cfg.OverrideSLPct = 0.05
	assert.InDelta(t, 101.0*0.95, StopPrice(101.0, intent, &cfg), 1e-9)

	// Absolute override subtracts a price distance.
	cfg.OverrideSLAsAbsolute = true
	cfg.OverrideSLPct = 2.0
	assert.InDelta(t, 99.0, StopPrice(101.0, intent, &cfg), 1e-9)
}

func TestStopPriceDefaultWhenSignalHasNone(t *testing.T) {
	cfg := config.Defaults()
	intent := &domain.ParsedIntent{Entry: 100.0}

	// default_sl_pct padded by the slippage allowance, below the entry.
	want := 100.0 * (1.0 - (0.10 + 0.015))
	assert.InDelta(t, want, StopPrice(100.5, intent, &cfg), 1e-9)
}

func TestTakeProfitsExtendMissingTP2(t *testing.T) {
	cfg := config.Defaults()
	intent := &domain.ParsedIntent{Entry: 100.0, TPs: domain.TPSet{TP1: 110.0}}

	tps := TakeProfits(100.0, intent, &cfg)
	assert.Equal(t, 110.0, tps.TP1)
	assert.Equal(t, 120.0, tps.TP2) // one entry-to-TP1 distance past TP1
	assert.Zero(t, tps.TP3)
}

func TestTakeProfitsOverrideLadder(t *testing.T) {
	cfg := config.Defaults()
	cfg.OverrideTPEnabled = true
	cfg.OverrideTPPct = 0.03
	intent := &domain.ParsedIntent{Entry: 100.0, TPs: domain.TPSet{TP1: 110.0}}

	tps := TakeProfits(100.0, intent, &cfg)
	assert.InDelta(t, 103.0, tps.TP1, 1e-9)
	assert.InDelta(t, 106.0, tps.TP2, 1e-9)
	assert.InDelta(t, 109.0, tps.TP3, 1e-9)
}
