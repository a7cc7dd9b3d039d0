package domain

import (
	"encoding/json"
	"time"
)

// Trade is a durable record of one DCA execution discovered on-chain. The
// natural key is TxDigest: the store guarantees at most one row per digest.
type Trade struct {
	ID          int64
	UserID      int64
	VaultID     int64
	FiatAmount  float64
	FiatSymbol  string
	TokenAmount float64
	TokenSymbol string
	Price       float64
	TxDigest    string
	CycleIndex  int
	CreatedAt   time.Time
}

// LedgerEvent is a single Move event emitted by a transaction, exactly as the
// node returned it. Type is the fully qualified event type string
// (package::module::Name); ParsedJSON is the node's decoded payload.
type LedgerEvent struct {
	Type       string
	ParsedJSON json.RawMessage
}

// RawTransaction is an immutable transaction record fetched from the ledger.
// Timestamp is nil when the node omits checkpoint time (possible for very
// fresh transactions). Sender is populated when the query requested
// transaction input.
type RawTransaction struct {
	Digest    string
	Timestamp *time.Time
	Success   bool
	FeeCost   uint64
	Events    []LedgerEvent
	Sender    string
}

// Time returns the transaction timestamp, or the zero time when the ledger
// did not report one.
func (t RawTransaction) Time() time.Time {
	if t.Timestamp == nil {
		return time.Time{}
	}
	return *t.Timestamp
}

// TransactionPage is one page of ledger query results together with its
// pagination state, surfaced verbatim from the node so callers can resume.
type TransactionPage struct {
	Records    []RawTransaction
	NextCursor string
	HasMore    bool
}

// TradeEvent is a typed view over one trade-protocol event carried by a
// RawTransaction. Amounts are in the pool's native units; Price is quote per
// base. Fields the payload did not carry stay at their zero values.
type TradeEvent struct {
	Type        string
	PoolID      string
	BaseAmount  float64
	QuoteAmount float64
	Price       float64
	TakerSide   string // "buy" or "sell", empty when the payload omits it
}
