package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/tg_signal_trader/internal/config"
	"github.com/vitos/tg_signal_trader/internal/domain"
	"github.com/vitos/tg_signal_trader/internal/events"
	"github.com/vitos/tg_signal_trader/internal/infrastructure/exchange"
	"go.uber.org/zap"
)

const solSignalText = `🚀 New Spot Signal
Currency: Solana (SOL)
Entry Price: 150.00
TP1: 160.00
TP2: 170.00
TP3: 180.00
Stop Loss (SL): 140.00`

func traderFixture(cfg config.Settings) (*Trader, *Engine, *exchange.PaperExchange, *sinkRecorder) {
	ex := exchange.NewPaperExchange()
	ex.SetInstruments([]domain.Instrument{
		{Symbol: "SOLUSDT", BaseCoin: "SOL", QuoteCoin: "USDT", Status: "TRADING"},
	})
	ex.SetPrice("SOLUSDT", 150.0)
	ex.SetBalance("USDT", 1000.0)

	em := events.NewEmitter(zap.NewNop())
	rec := &sinkRecorder{}
	em.AddSink(rec)

	table := NewInstrumentTable()
	table.Load("USDT", []domain.Instrument{
		{Symbol: "SOLUSDT", BaseCoin: "SOL", QuoteCoin: "USDT", Status: "TRADING"},
	})

	mgr := config.NewManager(&cfg)
	log := zap.NewNop()
	engine := NewEngine(ex, mgr, em, &memArchive{}, nil, log)
	trader := NewTrader(NewParser(em, log), NewResolver(table, log), NewRiskGuard(ex, log), engine, mgr, em, log)
	return trader, engine, ex, rec
}

func signal(text string) domain.Signal {
	return domain.Signal{Text: text, Source: "test-channel", ReceivedAt: time.Now()}
}

func TestOnSignalExecutesTrade(t *testing.T) {
	trader, engine, ex, rec := traderFixture(config.Defaults())

	require.NoError(t, trader.OnSignal(context.Background(), signal(solSignalText)))

	require.Len(t, engine.OpenPositions(), 1)
	pos := engine.OpenPositions()[0]
	assert.Equal(t, "SOLUSDT", pos.Symbol)
	assert.Equal(t, 140.0, pos.StopPrice)
	assert.Contains(t, ex.Calls, "market_buy:SOLUSDT")

	types := rec.types()
	assert.Contains(t, types, domain.EventNewMessage)
	assert.Contains(t, types, domain.EventSignalParsed)
	assert.Contains(t, types, domain.EventTradeExecuted)
}

func TestOnSignalSuppressesDuplicate(t *testing.T) {
	trader, engine, ex, rec := traderFixture(config.Defaults())

	require.NoError(t, trader.OnSignal(context.Background(), signal(solSignalText)))
	require.NoError(t, trader.OnSignal(context.Background(), signal(solSignalText)))

	assert.True(t, rec.has(domain.EventSkipDuplicate))
	assert.Len(t, engine.OpenPositions(), 1)

	// Exactly one buy reached the venue.
	var buys int
	for _, c := range ex.Calls {
		if c == "market_buy:SOLUSDT" {
			buys++
		}
	}
	assert.Equal(t, 1, buys)
}

func TestOnSignalDuplicateWindowExpires(t *testing.T) {
	trader, _, _, rec := traderFixture(config.Defaults())

	base := time.Now()
	trader.now = func() time.Time { return base }
	require.NoError(t, trader.OnSignal(context.Background(), signal(solSignalText)))

	trader.now = func() time.Time { return base.Add(duplicateWindow + time.Second) }
	// Past the window the same signal is live again; it now fails on the
	// already-open position, not on duplicate suppression.
	_ = trader.OnSignal(context.Background(), signal(solSignalText))
	assert.False(t, rec.has(domain.EventSkipDuplicate))
	assert.True(t, rec.has(domain.EventSkip))
}

func TestOnSignalDryRunPlacesNoOrders(t *testing.T) {
	cfg := config.Defaults()
	cfg.DryRun = true
	trader, engine, ex, rec := traderFixture(cfg)

	require.NoError(t, trader.OnSignal(context.Background(), signal(solSignalText)))

	assert.Empty(t, engine.OpenPositions())
	assert.Empty(t, ex.Calls)

	// The simulated execution reports the same sizing a live run would use.
	var simulated map[string]any
	for _, ev := range rec.events {
		if ev["type"] == domain.EventTradeExecuted {
			simulated = ev
		}
	}
	require.NotNil(t, simulated)
	assert.Equal(t, true, simulated["simulated"])
	assert.Equal(t, 800.0, simulated["notional"])
}

func TestOnSignalIgnoresChatter(t *testing.T) {
	trader, engine, _, rec := traderFixture(config.Defaults())

	require.NoError(t, trader.OnSignal(context.Background(), signal("gm frens, charts later")))
	assert.True(t, rec.has(domain.EventIgnored))
	assert.Empty(t, engine.OpenPositions())
}

func TestOnSignalUnresolvedSymbolSkips(t *testing.T) {
	trader, engine, _, rec := traderFixture(config.Defaults())

	text := `Spot Signal
Currency: Dogebert (DGBRT)
Entry: 1.00
TP1: 1.10
Stop Loss: 0.90`
	err := trader.OnSignal(context.Background(), signal(text))
	require.Error(t, err)

	var rerr *domain.SymbolResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.True(t, rec.has(domain.EventSkip))
	assert.Empty(t, engine.OpenPositions())
}

func TestOnSignalSlippageSkip(t *testing.T) {
	cfg := config.Defaults()
	cfg.UseLimitIfSlippageExceeds = false
	trader, engine, ex, rec := traderFixture(cfg)

	// Market ran 4% past the signalled entry.
	ex.SetPrice("SOLUSDT", 156.0)
	require.NoError(t, trader.OnSignal(context.Background(), signal(solSignalText)))

	assert.True(t, rec.has(domain.EventSkipSlippage))
	assert.Empty(t, engine.OpenPositions())
}
