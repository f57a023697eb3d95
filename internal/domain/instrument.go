package domain

// Instrument is one tradable pair from the exchange instrument table.
type Instrument struct {
	Symbol    string `json:"symbol"` // e.g. "SOLUSDC"
	BaseCoin  string `json:"base_coin"`
	QuoteCoin string `json:"quote_coin"`
	Status    string `json:"status"`
	Leveraged bool   `json:"leveraged"` // leveraged token / derivative product
}

// ResolvedSymbol is the canonical pair a signal mention was mapped to.
type ResolvedSymbol struct {
	Symbol    string
	BaseCoin  string
	QuoteCoin string
	Leveraged bool
}
