package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vitos/tg_signal_trader/internal/domain"
	"github.com/vitos/tg_signal_trader/internal/events"
	"go.uber.org/zap"
)

// Outcome tags how a message was classified, so callers branch explicitly on
// parse provenance instead of unwinding errors.
type Outcome int

const (
	OutcomeParsed Outcome = iota
	OutcomeIgnored
	OutcomeError
)

// ParseResult is the tagged verdict for one inbound message.
type ParseResult struct {
	Outcome Outcome
	Intent  *domain.ParsedIntent
	Reason  string // set for OutcomeIgnored
	Err     error  // set for OutcomeError
}

// keywordRe decides whether a message even claims to be a trade instruction.
// Messages without these markers only get the tolerant fallback pass.
var keywordRe = regexp.MustCompile(`(?i)signal|إشارة|spot|coin|entry|buy|sell|trade`)

var currencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Currency\s*[:\-]\s*(.+)`),
	regexp.MustCompile(`(?i)Coin\s*[:\-]\s*(.+)`),
	regexp.MustCompile(`(?i)Asset\s*[:\-]\s*(.+)`),
	regexp.MustCompile(`العملة\s*[:\-]\s*(.+)`),
	regexp.MustCompile(`(?i)Währung\s*[:\-]\s*(.+)`),
}

var entryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Entry(?: Price| Zone)?\s*[:\-]\s*\$?([\d.,]+)(?:\s*[–\-—→➝>]\s*\$?([\d.,]+))?`),
	regexp.MustCompile(`سعر\s*الدخول\s*[:\-]\s*\$?([\d.,]+)(?:\s*[–\-—→➝>]\s*\$?([\d.,]+))?`),
	regexp.MustCompile(`(?i)Einstieg(?:spreis|szone)?\s*[:\-]\s*\$?([\d.,]+)(?:\s*[–\-—→➝>]\s*\$?([\d.,]+))?`),
}

var stopPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Stop\s*Loss(?:\s*\(SL\))?\s*[:\-→➝>]\s*\$?([\d.,]+)`),
	regexp.MustCompile(`وقف\s*الخسارة\s*[:\-→➝>]\s*\$?([\d.,]+)`),
	regexp.MustCompile(`(?i)Stop-?Loss\s*[:\-→➝>]\s*\$?([\d.,]+)`),
}

var tpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)TP1\s*[:\-–—→➝>]\s*\$?([\d.,]+)`),
	regexp.MustCompile(`(?i)TP2\s*[:\-–—→➝>]\s*\$?([\d.,]+)`),
	regexp.MustCompile(`(?i)TP3\s*[:\-–—→➝>]\s*\$?([\d.,]+)`),
	regexp.MustCompile(`(?i)TP4\s*[:\-–—→➝>]\s*\$?([\d.,]+)`),
	regexp.MustCompile(`(?i)Take\s*Profit\s*\(?(?:TP\d*)?\)?\s*[:\-–—→➝>]\s*\$?([\d.,]+)`),
	regexp.MustCompile(`(?i)Target\s*\d*\s*[:\-–—→➝>]\s*\$?([\d.,]+)`),
	regexp.MustCompile(`الهدف\s*\d*\s*[:\-–—→➝>]\s*\$?([\d.,]+)`),
	regexp.MustCompile(`(?i)Ziel\s*\d*\s*[:\-–—→➝>]\s*\$?([\d.,]+)`),
}

var capitalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Capital(?: Entry| Allocation)?\s*[:\-]\s*([\d.]+)\s*%`),
	regexp.MustCompile(`نسبة\s*(?:رأس\s*المال|الدخول)\s*[:\-]\s*%?([\d.]+)`),
	regexp.MustCompile(`(?i)Kapitaleinsatz\s*[:\-]\s*([\d.]+)\s*%`),
}

var periodPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Period\s*[:\-]\s*([^\n*]+)`),
	regexp.MustCompile(`(?i)Duration\s*[:\-]\s*([^\n*]+)`),
	regexp.MustCompile(`المدة\s*[:\-]\s*([^\n*]+)`),
	regexp.MustCompile(`(?i)Zeitraum\s*[:\-]\s*([^\n*]+)`),
}

var (
	spotOnlyRe    = regexp.MustCompile(`(?i)spot\s*only|spot trade|\bspot\b|فورية`)
	targetsSectRe = regexp.MustCompile(`(?i)(?:Targets|Take\s*Profits|الأهداف|Kursziele)[:：]?`)
	sectNumberRe  = regexp.MustCompile(`\d+\.\d+`)
	parenHintRe   = regexp.MustCompile(`\(([A-Z0-9]+)\)`)
	slashPairRe   = regexp.MustCompile(`([A-Z0-9]{2,})\s*/\s*[A-Z]{3,5}`)
	bareTickerRe  = regexp.MustCompile(`([A-Z]{2,10})\s*\(?(?:Spot|Trade|Spot Trade)?\)?`)
	anyPairRe     = regexp.MustCompile(`[A-Z]{2,10}\s*/\s*[A-Z]{2,5}`)
	daysRe        = regexp.MustCompile(`(?i)(\d+)\s*days?`)
	hoursRe       = regexp.MustCompile(`(?i)(\d+)\s*hours?`)
	nonNumericRe  = regexp.MustCompile(`[^\d.]`)
)

// Parser turns raw message text into a structured intent or a verdict.
// The deterministic extractor runs first; the tolerant fallback only when
// it fails.
type Parser struct {
	events *events.Emitter
	logger *zap.Logger
}

func NewParser(em *events.Emitter, logger *zap.Logger) *Parser {
	return &Parser{events: em, logger: logger}
}

// Parse classifies one signal. Exactly one of the three outcomes is
// produced; the caller is responsible for the surrounding new_message /
// ignored / error events.
func (p *Parser) Parse(sig domain.Signal) ParseResult {
	text := sig.Text

	p.events.Emit(domain.EventParseDebug, map[string]any{
		"stage":   "start",
		"preview": preview(text, 120),
	})

	hasKeywords := keywordRe.MatchString(text)

	if hasKeywords {
		if intent := p.parseDeterministic(text); intent != nil {
			p.emitSuccess(intent)
			return ParseResult{Outcome: OutcomeParsed, Intent: intent}
		}
		if intent := p.parseFallback(text); intent != nil {
			p.emitSuccess(intent)
			return ParseResult{Outcome: OutcomeParsed, Intent: intent}
		}
		// Claimed to be a signal but required fields are missing.
		return ParseResult{
			Outcome: OutcomeError,
			Err:     &domain.ParseError{Detail: "trade keywords present but no extractable intent"},
		}
	}

	if intent := p.parseFallback(text); intent != nil {
		p.emitSuccess(intent)
		return ParseResult{Outcome: OutcomeParsed, Intent: intent}
	}
	return ParseResult{Outcome: OutcomeIgnored, Reason: "not a trade instruction"}
}

func (p *Parser) emitSuccess(intent *domain.ParsedIntent) {
	p.events.Emit(domain.EventParseSuccess, map[string]any{
		"currency": intent.CurrencyDisplay,
		"entry":    intent.Entry,
		"origin":   string(intent.Origin),
	})
}

// parseDeterministic implements the strict labeled-field extractor.
// Requires currency, entry and at least TP1.
func (p *Parser) parseDeterministic(text string) *domain.ParsedIntent {
	cur := matchFirst(text, currencyPatterns)
	if cur == "" {
		if m := bareTickerRe.FindStringSubmatch(text); m != nil {
			cur = m[1]
		}
	}
	if cur == "" {
		cur = anyPairRe.FindString(text)
	}

	entry, ok := extractEntry(text)
	if !ok {
		return nil
	}

	stop := 0.0
	if s := matchFirst(text, stopPatterns); s != "" {
		stop, _ = cleanNum(s)
	}

	tps := extractTPs(text)

	p.events.Emit(domain.EventParseDebug, map[string]any{
		"stage":    "fields",
		"currency": cur,
		"entry":    entry,
		"stop":     stop,
		"tp1":      tps.TP1,
		"tp2":      tps.TP2,
		"tp3":      tps.TP3,
	})

	if cur == "" || tps.TP1 == 0 {
		return nil
	}

	display := strings.TrimSpace(cur)
	hint := symbolHint(display)

	capPct := 0.0
	if c := matchFirst(text, capitalPatterns); c != "" {
		if v, err := strconv.ParseFloat(c, 64); err == nil {
			capPct = v / 100.0
		}
	}

	period := 0
	if per := matchFirst(text, periodPatterns); per != "" {
		period = periodToHours(per)
	}

	return &domain.ParsedIntent{
		RawText:         text,
		CurrencyDisplay: display,
		SymbolHint:      hint,
		Entry:           entry,
		Stop:            stop,
		TPs:             tps,
		CapitalPct:      capPct,
		PeriodHours:     period,
		SpotOnly:        spotOnlyRe.MatchString(text),
		Origin:          domain.OriginDeterministic,
	}
}

func matchFirst(text string, pats []*regexp.Regexp) string {
	for _, re := range pats {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func extractEntry(text string) (float64, bool) {
	for _, re := range entryPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		lo, err := cleanNum(m[1])
		if err != nil {
			return 0, false
		}
		// An entry zone "1.20 – 1.40" averages to its midpoint.
		if len(m) > 2 && m[2] != "" {
			hi, err := cleanNum(m[2])
			if err != nil {
				return 0, false
			}
			return (lo + hi) / 2, true
		}
		return lo, true
	}
	return 0, false
}

func extractTPs(text string) domain.TPSet {
	var vals []float64
	seen := make(map[float64]bool)

	add := func(raw string) {
		v, err := cleanNum(raw)
		if err != nil || v == 0 || seen[v] {
			return
		}
		seen[v] = true
		vals = append(vals, v)
	}

	for _, re := range tpPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			add(m[1])
		}
	}

	// Bullet lists after "Targets:" have no per-line labels.
	if len(vals) == 0 {
		if loc := targetsSectRe.FindStringIndex(text); loc != nil {
			for _, n := range sectNumberRe.FindAllString(text[loc[1]:], 3) {
				add(n)
			}
		}
	}

	var tps domain.TPSet
	if len(vals) >= 1 {
		tps.TP1 = vals[0]
	}
	if len(vals) >= 2 {
		tps.TP2 = vals[1]
	}
	if len(vals) >= 3 {
		tps.TP3 = vals[2]
	}
	return tps
}

// symbolHint pulls a ticker out of the display form: "(SOL)" wins, then the
// base of a "SOL/USDT" mention.
func symbolHint(display string) string {
	if m := parenHintRe.FindStringSubmatch(display); m != nil {
		return m[1]
	}
	if m := slashPairRe.FindStringSubmatch(display); m != nil {
		return m[1]
	}
	if i := strings.Index(display, "/"); i > 0 {
		return strings.ToUpper(strings.TrimSpace(display[:i]))
	}
	return ""
}

func periodToHours(s string) int {
	if m := daysRe.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[1])
		return d * 24
	}
	if m := hoursRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		return h
	}
	return 0
}

func cleanNum(s string) (float64, error) {
	s = nonNumericRe.ReplaceAllString(strings.ReplaceAll(s, ",", ""), "")
	return strconv.ParseFloat(s, 64)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
