// Package pipeline holds the pure transformation steps of the sync
// subsystem: classifying ledger transactions into trade events.
package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/vaultline/suisync/internal/domain"
)

// tradeEventSignatures are the event-type fragments that mark an event as a
// fill emitted by the exchange protocol. Matching is done on the fully
// qualified Move type string (package::module::Name).
var tradeEventSignatures = []string{
	"::OrderFilled",
	"::TradeFilled",
	"::order_filled",
	"::trade_filled",
}

// Classify filters a transaction's events down to recognised trade-protocol
// fills and decodes each payload into a TradeEvent. It is a pure function of
// the record: same input always gives the same output. A transaction
// unrelated to trading returns an empty slice, not an error, since that is
// the common case for most ledger traffic.
func Classify(record domain.RawTransaction) []domain.TradeEvent {
	var events []domain.TradeEvent
	for _, ev := range record.Events {
		if !isTradeEvent(ev.Type) {
			continue
		}
		events = append(events, decodeFill(ev))
	}
	return events
}

func isTradeEvent(eventType string) bool {
	for _, sig := range tradeEventSignatures {
		if strings.Contains(eventType, sig) {
			return true
		}
	}
	return false
}

// fillPayload covers the payload shapes the known venues emit. DeepBook-style
// fills carry base/quote quantities and an is_bid flag; AMM-style swaps carry
// amount_in/amount_out with a direction flag. Absent fields stay nil.
type fillPayload struct {
	PoolID    string       `json:"pool_id"`
	Pool      string       `json:"pool"`
	Price     *json.Number `json:"price"`
	BaseQty   *json.Number `json:"base_asset_quantity_filled"`
	QuoteQty  *json.Number `json:"quote_asset_quantity_filled"`
	BaseAmt   *json.Number `json:"base_amount"`
	QuoteAmt  *json.Number `json:"quote_amount"`
	AmountIn  *json.Number `json:"amount_in"`
	AmountOut *json.Number `json:"amount_out"`
	IsBid     *bool        `json:"is_bid"`
	AToB      *bool        `json:"atob"`
}

// decodeFill extracts amount/price fields from a fill event's payload. A
// payload that fails to decode still yields a TradeEvent carrying the type,
// with numeric fields at zero; the caller decides whether that matters.
func decodeFill(ev domain.LedgerEvent) domain.TradeEvent {
	trade := domain.TradeEvent{Type: ev.Type}

	var p fillPayload
	if err := json.Unmarshal(ev.ParsedJSON, &p); err != nil {
		return trade
	}

	trade.PoolID = p.PoolID
	if trade.PoolID == "" {
		trade.PoolID = p.Pool
	}

	trade.BaseAmount = firstNumber(p.BaseQty, p.BaseAmt, p.AmountOut)
	trade.QuoteAmount = firstNumber(p.QuoteQty, p.QuoteAmt, p.AmountIn)

	if p.Price != nil {
		trade.Price, _ = p.Price.Float64()
	} else if trade.BaseAmount > 0 {
		trade.Price = trade.QuoteAmount / trade.BaseAmount
	}

	switch {
	case p.IsBid != nil && *p.IsBid, p.AToB != nil && *p.AToB:
		trade.TakerSide = "buy"
	case p.IsBid != nil, p.AToB != nil:
		trade.TakerSide = "sell"
	}

	return trade
}

// firstNumber returns the first non-nil number converted to float64.
func firstNumber(candidates ...*json.Number) float64 {
	for _, n := range candidates {
		if n == nil {
			continue
		}
		if v, err := n.Float64(); err == nil {
			return v
		}
	}
	return 0
}
