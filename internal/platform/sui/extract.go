package sui

import (
	"strconv"
	"time"

	"github.com/vaultline/suisync/internal/domain"
)

// ExtractTradeInfo projects a raw node transaction block into the domain
// record the sync engine consumes. It is a total, side-effect-free function:
// fields the node omitted or that fail to parse leave their zero values, and
// the net fee never underflows below zero.
func ExtractTradeInfo(tb TransactionBlock) domain.RawTransaction {
	record := domain.RawTransaction{
		Digest: tb.Digest,
	}

	if tb.TimestampMs != nil {
		if ms, err := strconv.ParseInt(*tb.TimestampMs, 10, 64); err == nil {
			ts := time.UnixMilli(ms).UTC()
			record.Timestamp = &ts
		}
	}

	if tb.Effects != nil {
		record.Success = tb.Effects.Status.Status == "success"
		record.FeeCost = netFee(
			tb.Effects.GasUsed.ComputationCost,
			tb.Effects.GasUsed.StorageCost,
			tb.Effects.GasUsed.StorageRebate,
		)
	}

	if tb.Transaction != nil {
		record.Sender = tb.Transaction.Data.Sender
	}

	for _, ev := range tb.Events {
		record.Events = append(record.Events, domain.LedgerEvent{
			Type:       ev.Type,
			ParsedJSON: ev.ParsedJSON,
		})
	}

	return record
}

// netFee computes computation + storage cost minus the storage rebate. The
// node serialises gas figures as decimal strings; unparsable fields count as
// zero, and a rebate larger than the gross cost clamps the result to zero.
func netFee(computation, storage, rebate string) uint64 {
	comp := parseUint(computation)
	stor := parseUint(storage)
	reb := parseUint(rebate)

	gross := comp + stor
	if reb >= gross {
		return 0
	}
	return gross - reb
}

func parseUint(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
