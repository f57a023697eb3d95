package usecase

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/vitos/tg_signal_trader/internal/domain"
)

// The fallback extractor tolerates free-form phrasing ("grab some SOL around
// 151, targets 158 / 165, cut below 144"). It is deliberately conservative:
// without an instrument mention, a price and a buy cue it yields nothing,
// so chit-chat stays ignored instead of becoming a bad trade.

var (
	fbCueRe    = regexp.MustCompile(`(?i)\b(buy|long|entry|enter|accumulate|grab|add|ape)\b`)
	fbPairRe   = regexp.MustCompile(`\b([A-Z0-9]{2,10})\s*/\s*([A-Z]{2,5})\b`)
	fbTickerRe = regexp.MustCompile(`\b([A-Z]{2,6})\b`)
	fbNumberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
	fbSellRe   = regexp.MustCompile(`(?i)\b(sell|short)\b`)
)

// Tokens that look like tickers but never are.
var fbStopwords = map[string]bool{
	"TP": true, "SL": true, "USD": true, "USDT": true, "USDC": true,
	"OK": true, "DM": true, "ATH": true, "FYI": true, "PSA": true,
	"RSI": true, "EMA": true, "AND": true, "THE": true, "NOT": true,
	"NOW": true, "ASAP": true, "NEW": true, "LOW": true, "HIGH": true,
}

func (p *Parser) parseFallback(text string) *domain.ParsedIntent {
	p.events.Emit(domain.EventParseDebug, map[string]any{
		"stage":   "fallback",
		"preview": preview(text, 120),
	})

	if fbSellRe.MatchString(text) && !fbCueRe.MatchString(text) {
		return nil // short/sell calls are not entries for a spot bot
	}
	if !fbCueRe.MatchString(text) {
		return nil
	}

	display, hint := fallbackInstrument(text)
	if hint == "" {
		return nil
	}

	nums := fallbackNumbers(text)
	if len(nums) == 0 {
		return nil
	}

	// First price mentioned is the entry; larger prices form the TP ladder,
	// the closest smaller one is the stop.
	entry := nums[0]
	var above, below []float64
	for _, v := range nums[1:] {
		switch {
		case v > entry:
			above = append(above, v)
		case v < entry:
			below = append(below, v)
		}
	}
	sort.Float64s(above)

	var tps domain.TPSet
	if len(above) >= 1 {
		tps.TP1 = above[0]
	}
	if len(above) >= 2 {
		tps.TP2 = above[1]
	}
	if len(above) >= 3 {
		tps.TP3 = above[2]
	}
	if tps.TP1 == 0 {
		return nil // no target above entry, nothing to manage
	}

	stop := 0.0
	for _, v := range below {
		if v > stop {
			stop = v
		}
	}

	return &domain.ParsedIntent{
		RawText:         text,
		CurrencyDisplay: display,
		SymbolHint:      hint,
		Entry:           entry,
		Stop:            stop,
		TPs:             tps,
		SpotOnly:        spotOnlyRe.MatchString(text),
		Origin:          domain.OriginFallback,
	}
}

func fallbackInstrument(text string) (display, hint string) {
	if m := fbPairRe.FindStringSubmatch(text); m != nil {
		return m[1] + "/" + m[2], m[1]
	}
	if m := parenHintRe.FindStringSubmatch(text); m != nil {
		return m[1], m[1]
	}
	for _, m := range fbTickerRe.FindAllStringSubmatch(text, -1) {
		if !fbStopwords[m[1]] {
			return m[1], m[1]
		}
	}
	return "", ""
}

func fallbackNumbers(text string) []float64 {
	var out []float64
	for _, s := range fbNumberRe.FindAllString(text, 12) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}
