package domain

import (
	"errors"
	"fmt"
)

// Sentinel rejections from the risk guard and the position book.
var (
	ErrBelowMinNotional = errors.New("computed notional below minimum")
	ErrSlippageExceeded = errors.New("slippage above configured maximum")
	ErrNotSpot          = errors.New("leveraged instrument rejected in spot-only mode")
	ErrPositionExists   = errors.New("position already open for symbol")
)

// ParseError is a genuine parse failure: the message looks like a trade
// instruction but required fields could not be extracted.
type ParseError struct {
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s", e.Detail)
}

// SymbolResolutionError means no canonical instrument could be matched.
type SymbolResolutionError struct {
	Mention string
	Reason  string
}

func (e *SymbolResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %q: %s", e.Mention, e.Reason)
}

// ConfigValidationError rejects a config snapshot as a whole.
type ConfigValidationError struct {
	Problems []string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Problems)
}

// OrderRejectedError is an exchange-side rejection of an order.
type OrderRejectedError struct {
	Symbol string
	Reason string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order rejected for %s: %s", e.Symbol, e.Reason)
}

// ConnectivityError wraps a transient transport failure. Callers retry with
// backoff instead of aborting the task.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity: %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }
