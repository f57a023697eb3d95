package domain

import "encoding/json"

// Event types pushed to the observability channel. The dashboard depends on
// these names, so they match the wire protocol exactly.
const (
	EventNewMessage     = "new_message"
	EventIgnored        = "ignored"
	EventParseSuccess   = "parse_success"
	EventSignalParsed   = "signal_parsed"
	EventParseDebug     = "parse_debug"
	EventTradeExecuted  = "trade_executed"
	EventOrderFilled    = "order_filled"
	EventLimitPlaced    = "limit_placed"
	EventLimitCancel    = "limit_cancel"
	EventTPHit          = "tp_hit"
	EventSLHit          = "sl_hit"
	EventTrailRatchet   = "trailing_ratchet"
	EventRunnerArmed    = "runner_armed"
	EventPositionClosed = "position_closed"
	EventFlatten        = "flatten"
	EventSkipSlippage   = "skip_slippage"
	EventSkipDuplicate  = "skip_duplicate"
	EventSkip           = "skip"
	EventError          = "error"
	EventStatusText     = "status_text" // liveness/summary, not a trading event
	EventConfigReloaded = "config_reloaded"
	EventConfigRejected = "config_rejected"
)

// Event is one record on the append-only observability stream.
type Event struct {
	Type   string
	TS     int64 // epoch seconds
	Seq    uint64
	Fields map[string]any
}

// MarshalJSON flattens the payload fields next to ts/type/seq, producing the
// compact line format the dashboard consumes.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["type"] = e.Type
	out["ts"] = e.TS
	out["seq"] = e.Seq
	return json.Marshal(out)
}
