package usecase

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/vitos/tg_signal_trader/internal/config"
	"github.com/vitos/tg_signal_trader/internal/domain"
	"go.uber.org/zap"
)

var mentionCleanRe = regexp.MustCompile(`[^A-Za-z0-9 ]`)

// InstrumentTable is the in-memory view of the exchange's tradable pairs for
// one quote asset. Refreshed periodically from the exchange.
type InstrumentTable struct {
	mu     sync.RWMutex
	quote  string
	byBase map[string]domain.Instrument
}

func NewInstrumentTable() *InstrumentTable {
	return &InstrumentTable{byBase: make(map[string]domain.Instrument)}
}

// Refresh rebuilds the table from the exchange instrument list, keeping only
// trading pairs quoted in quoteAsset.
func (t *InstrumentTable) Refresh(ctx context.Context, ex domain.Exchange, quoteAsset string) error {
	instruments, err := ex.GetInstruments(ctx)
	if err != nil {
		return err
	}

	quote := strings.ToUpper(quoteAsset)
	next := make(map[string]domain.Instrument)
	for _, ins := range instruments {
		if !strings.EqualFold(ins.QuoteCoin, quote) {
			continue
		}
		if ins.Status != "" && !strings.EqualFold(ins.Status, "TRADING") {
			continue
		}
		next[strings.ToUpper(ins.BaseCoin)] = ins
	}

	t.mu.Lock()
	t.quote = quote
	t.byBase = next
	t.mu.Unlock()
	return nil
}

// Load replaces the table contents directly. Used by tests and tools.
func (t *InstrumentTable) Load(quoteAsset string, instruments []domain.Instrument) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quote = strings.ToUpper(quoteAsset)
	t.byBase = make(map[string]domain.Instrument, len(instruments))
	for _, ins := range instruments {
		t.byBase[strings.ToUpper(ins.BaseCoin)] = ins
	}
}

func (t *InstrumentTable) lookup(base string) (domain.Instrument, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ins, ok := t.byBase[strings.ToUpper(base)]
	return ins, ok
}

// search finds instruments whose base asset starts with or contains the
// cleaned mention. Exact match short-circuits.
func (t *InstrumentTable) search(mention string) []domain.Instrument {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := strings.ToUpper(mention)
	if ins, ok := t.byBase[m]; ok {
		return []domain.Instrument{ins}
	}

	var prefix, contains []domain.Instrument
	for base, ins := range t.byBase {
		if strings.HasPrefix(base, m) {
			prefix = append(prefix, ins)
		} else if strings.Contains(base, m) {
			contains = append(contains, ins)
		}
	}
	if len(prefix) > 0 {
		return prefix
	}
	return contains
}

// Resolver maps a free-text instrument mention to a canonical pair.
type Resolver struct {
	table  *InstrumentTable
	logger *zap.Logger
}

func NewResolver(table *InstrumentTable, logger *zap.Logger) *Resolver {
	return &Resolver{table: table, logger: logger}
}

// Resolve applies the lookup policy in order: direct pair mention,
// parenthesised ticker (when preferred), configured alias, then name search
// (when enabled, unique match required).
func (r *Resolver) Resolve(intent *domain.ParsedIntent, cfg *config.Settings) (domain.ResolvedSymbol, error) {
	mention := intent.CurrencyDisplay

	// Direct "BASE/QUOTE" mention.
	if i := strings.Index(mention, "/"); i > 0 {
		base := cleanMention(mention[:i])
		if ins, ok := r.table.lookup(base); ok {
			return resolved(ins), nil
		}
	}

	if cfg.PreferSymbolInParens && intent.SymbolHint != "" {
		if ins, ok := r.table.lookup(intent.SymbolHint); ok {
			return resolved(ins), nil
		}
	}

	// Alias and name lookups work on the base mention: the parenthesised
	// hint when present, else the text before any "/" or "(".
	base := intent.SymbolHint
	if base == "" {
		base = mention
		if i := strings.IndexAny(base, "/("); i > 0 {
			base = base[:i]
		}
	}
	base = cleanMention(base)
	if alias, ok := cfg.TokenAliases[strings.ToUpper(base)]; ok {
		if ins, found := r.table.lookup(alias); found {
			return resolved(ins), nil
		}
	}

	if cfg.FallbackToNameSearch && base != "" {
		matches := r.table.search(base)
		switch len(matches) {
		case 1:
			return resolved(matches[0]), nil
		case 0:
			// fall through to the not-found error
		default:
			return domain.ResolvedSymbol{}, &domain.SymbolResolutionError{
				Mention: mention,
				Reason:  "ambiguous name match",
			}
		}
	}

	return domain.ResolvedSymbol{}, &domain.SymbolResolutionError{
		Mention: mention,
		Reason:  "no instrument matched",
	}
}

func resolved(ins domain.Instrument) domain.ResolvedSymbol {
	return domain.ResolvedSymbol{
		Symbol:    ins.Symbol,
		BaseCoin:  ins.BaseCoin,
		QuoteCoin: ins.QuoteCoin,
		Leveraged: ins.Leveraged,
	}
}

func cleanMention(s string) string {
	return strings.ToUpper(strings.TrimSpace(mentionCleanRe.ReplaceAllString(s, "")))
}
