package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaultline/suisync/internal/domain"
)

func fillEvent(eventType string, payload string) domain.LedgerEvent {
	return domain.LedgerEvent{
		Type:       eventType,
		ParsedJSON: json.RawMessage(payload),
	}
}

func TestClassify_OrderFilled(t *testing.T) {
	record := domain.RawTransaction{
		Digest:  "9hA7kQ",
		Success: true,
		Events: []domain.LedgerEvent{
			fillEvent("0xdee9::clob_v2::OrderFilled", `{
				"pool_id": "0xpool1",
				"price": "1500000",
				"base_asset_quantity_filled": "2000000000",
				"quote_asset_quantity_filled": "3000000000",
				"is_bid": true
			}`),
		},
	}

	events := Classify(record)
	require.Len(t, events, 1)
	require.Equal(t, "0xdee9::clob_v2::OrderFilled", events[0].Type)
	require.Equal(t, "0xpool1", events[0].PoolID)
	require.Equal(t, 1500000.0, events[0].Price)
	require.Equal(t, 2000000000.0, events[0].BaseAmount)
	require.Equal(t, 3000000000.0, events[0].QuoteAmount)
	require.Equal(t, "buy", events[0].TakerSide)
}

func TestClassify_IgnoresUnrelatedEvents(t *testing.T) {
	record := domain.RawTransaction{
		Digest:  "3fB2xY",
		Success: true,
		Events: []domain.LedgerEvent{
			fillEvent("0x2::coin::CoinMetadata", `{}`),
			fillEvent("0x3::staking_pool::StakeRequest", `{"amount": "100"}`),
		},
	}

	events := Classify(record)
	require.Empty(t, events)
}

func TestClassify_NoEvents(t *testing.T) {
	events := Classify(domain.RawTransaction{Digest: "7cD4zW", Success: true})
	require.Empty(t, events)
}

func TestClassify_AmmSwapPayload(t *testing.T) {
	record := domain.RawTransaction{
		Digest:  "5eF6vU",
		Success: true,
		Events: []domain.LedgerEvent{
			fillEvent("0xabc::pool::trade_filled", `{
				"pool": "0xpool2",
				"amount_in": "500",
				"amount_out": "250",
				"atob": false
			}`),
		},
	}

	events := Classify(record)
	require.Len(t, events, 1)
	require.Equal(t, "0xpool2", events[0].PoolID)
	require.Equal(t, 250.0, events[0].BaseAmount)
	require.Equal(t, 500.0, events[0].QuoteAmount)
	// No explicit price field: derived from quote/base.
	require.Equal(t, 2.0, events[0].Price)
	require.Equal(t, "sell", events[0].TakerSide)
}

func TestClassify_MalformedPayloadKeepsType(t *testing.T) {
	record := domain.RawTransaction{
		Digest:  "2gH8tS",
		Success: true,
		Events: []domain.LedgerEvent{
			fillEvent("0xdee9::clob_v2::OrderFilled", `not json`),
		},
	}

	events := Classify(record)
	require.Len(t, events, 1)
	require.Equal(t, "0xdee9::clob_v2::OrderFilled", events[0].Type)
	require.Zero(t, events[0].Price)
	require.Zero(t, events[0].BaseAmount)
}

func TestClassify_Deterministic(t *testing.T) {
	record := domain.RawTransaction{
		Digest:  "8jK1rQ",
		Success: true,
		Events: []domain.LedgerEvent{
			fillEvent("0xdee9::clob_v2::OrderFilled", `{"price": "42", "base_amount": "7", "quote_amount": "294"}`),
		},
	}

	first := Classify(record)
	second := Classify(record)
	require.Equal(t, first, second)
}

func TestClassify_MultipleFillsInOneTransaction(t *testing.T) {
	record := domain.RawTransaction{
		Digest:  "6mN3pO",
		Success: true,
		Events: []domain.LedgerEvent{
			fillEvent("0xdee9::clob_v2::OrderFilled", `{"price": "10", "base_amount": "1", "quote_amount": "10"}`),
			fillEvent("0x2::transfer::Sent", `{}`),
			fillEvent("0xdee9::clob_v2::OrderFilled", `{"price": "11", "base_amount": "2", "quote_amount": "22"}`),
		},
	}

	events := Classify(record)
	require.Len(t, events, 2)
	require.Equal(t, 10.0, events[0].Price)
	require.Equal(t, 11.0, events[1].Price)
}
