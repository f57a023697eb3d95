package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/tg_signal_trader/internal/domain"
	"github.com/vitos/tg_signal_trader/internal/events"
	"go.uber.org/zap"
)

func newTestParser() *Parser {
	return NewParser(events.NewEmitter(zap.NewNop()), zap.NewNop())
}

func parseText(t *testing.T, text string) ParseResult {
	t.Helper()
	return newTestParser().Parse(domain.Signal{Text: text, Source: "test", ReceivedAt: time.Now()})
}

func TestParseDeterministicEnglish(t *testing.T) {
	text := `🚀 New Spot Signal
Currency: Solana (SOL)
Entry Price: $151.20
TP1: 158.00
TP2: 165.50
TP3: 180.00
Stop Loss (SL): 144.00
Capital: 50%
Period: 3 days`

	res := parseText(t, text)
	require.Equal(t, OutcomeParsed, res.Outcome)

	intent := res.Intent
	assert.Equal(t, domain.OriginDeterministic, intent.Origin)
	assert.Equal(t, "Solana (SOL)", intent.CurrencyDisplay)
	assert.Equal(t, "SOL", intent.SymbolHint)
	assert.Equal(t, 151.20, intent.Entry)
	assert.Equal(t, 144.00, intent.Stop)
	assert.Equal(t, domain.TPSet{TP1: 158.00, TP2: 165.50, TP3: 180.00}, intent.TPs)
	assert.Equal(t, 0.50, intent.CapitalPct)
	assert.Equal(t, 72, intent.PeriodHours)
	assert.True(t, intent.SpotOnly)
}

func TestParseEntryZoneMidpoint(t *testing.T) {
	text := `Spot signal
Currency: BTC/USDT
Entry Zone: 60000 - 62000
TP1: 65000
Stop Loss: 58000`

	res := parseText(t, text)
	require.Equal(t, OutcomeParsed, res.Outcome)
	assert.Equal(t, 61000.0, res.Intent.Entry)
	assert.Equal(t, "BTC", res.Intent.SymbolHint)
}

func TestParseArabicSignal(t *testing.T) {
	text := `إشارة جديدة
العملة: Cardano (ADA)
سعر الدخول: 0.45
الهدف 1: 0.50
الهدف 2: 0.55
وقف الخسارة: 0.41`

	res := parseText(t, text)
	require.Equal(t, OutcomeParsed, res.Outcome)
	assert.Equal(t, "ADA", res.Intent.SymbolHint)
	assert.Equal(t, 0.45, res.Intent.Entry)
	assert.Equal(t, 0.50, res.Intent.TPs.TP1)
	assert.Equal(t, 0.55, res.Intent.TPs.TP2)
	assert.Equal(t, 0.41, res.Intent.Stop)
}

func TestParseTargetsSectionWithoutLabels(t *testing.T) {
	text := `Spot trade
Currency: Ethereum (ETH)
Entry: 3000.00
Targets:
3100.50
3250.00
3400.00
Stop Loss: 2850.00`

	res := parseText(t, text)
	require.Equal(t, OutcomeParsed, res.Outcome)
	assert.Equal(t, 3100.50, res.Intent.TPs.TP1)
	assert.Equal(t, 3250.00, res.Intent.TPs.TP2)
	assert.Equal(t, 3400.00, res.Intent.TPs.TP3)
}

func TestParseFallbackFreeForm(t *testing.T) {
	res := parseText(t, "grab some SOL/USDT around 151, targets 158 and 165, cut below 144")
	require.Equal(t, OutcomeParsed, res.Outcome)

	intent := res.Intent
	assert.Equal(t, domain.OriginFallback, intent.Origin)
	assert.Equal(t, "SOL", intent.SymbolHint)
	assert.Equal(t, 151.0, intent.Entry)
	assert.Equal(t, 158.0, intent.TPs.TP1)
	assert.Equal(t, 165.0, intent.TPs.TP2)
	assert.Equal(t, 144.0, intent.Stop)
}

func TestParseIgnoresChitChat(t *testing.T) {
	res := parseText(t, "good morning everyone, the market looks interesting today")
	require.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, "not a trade instruction", res.Reason)
}

func TestParseIgnoresShortCallWithoutBuyCue(t *testing.T) {
	res := parseText(t, "thinking of a short on DOGE at 0.3, target 0.25")
	// "short" without a buy cue is not an entry for a spot bot.
	require.NotEqual(t, OutcomeParsed, res.Outcome)
}

func TestParseErrorWhenKeywordsButNoFields(t *testing.T) {
	res := parseText(t, "SIGNAL incoming!!! huge entry soon, stay tuned")
	require.Equal(t, OutcomeError, res.Outcome)

	var perr *domain.ParseError
	require.ErrorAs(t, res.Err, &perr)
}

func TestParseFallbackRequiresTargetAboveEntry(t *testing.T) {
	res := parseText(t, "random words, nothing here about 42 at all")
	assert.NotEqual(t, OutcomeParsed, res.Outcome)
}
