package domain

import "time"

// Signal is a raw inbound message from the signal channel.
// Immutable once received.
type Signal struct {
	Text       string
	Source     string
	ReceivedAt time.Time
}

// ParseOrigin records which extractor produced an intent.
type ParseOrigin string

const (
	OriginDeterministic ParseOrigin = "deterministic"
	OriginFallback      ParseOrigin = "fallback"
)

// TPSet holds the take-profit price ladder extracted from a signal.
// A zero value means the level was not present in the message.
type TPSet struct {
	TP1 float64 `json:"tp1"`
	TP2 float64 `json:"tp2"`
	TP3 float64 `json:"tp3"`
}

// ParsedIntent is the structured trade instruction extracted from a Signal.
type ParsedIntent struct {
	RawText         string      `json:"raw_text"`
	CurrencyDisplay string      `json:"currency_display"`
	SymbolHint      string      `json:"symbol_hint"` // parenthesised ticker, e.g. "SOL" from "Solana (SOL)"
	Entry           float64     `json:"entry"`
	Stop            float64     `json:"stop"` // 0 = no SL hinted in the signal
	TPs             TPSet       `json:"tps"`
	CapitalPct      float64     `json:"capital_pct"` // fraction of free capital, 0 = not specified
	PeriodHours     int         `json:"period_hours"` // suggested max hold, 0 = not specified
	SpotOnly        bool        `json:"spot_only"`
	Origin          ParseOrigin `json:"origin"`
}
