// Package sync implements the transaction synchronization subsystem: the
// engine that sweeps the ledger for trade-bearing transactions and commits
// them exactly once, and the scheduler that drives it on fixed cadences.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vaultline/suisync/internal/domain"
	"github.com/vaultline/suisync/internal/pipeline"
)

// backfillPageSize is the page size used when walking the global feed during
// a time-range backfill.
const backfillPageSize = 50

// LedgerClient is the slice of the ledger RPC surface the engine consumes.
type LedgerClient interface {
	QueryRecent(ctx context.Context, limit int, cursor string) (domain.TransactionPage, error)
	QueryByAddress(ctx context.Context, addr string, limit int, cursor string) (domain.TransactionPage, error)
	GetTransaction(ctx context.Context, digest string) (domain.RawTransaction, error)
}

// EngineConfig carries the symbols stamped onto persisted trades. The
// exchange pools this service watches are quoted in a single collateral
// asset, so the symbols are configuration rather than per-event data.
type EngineConfig struct {
	FiatSymbol  string
	TokenSymbol string
}

// Engine orchestrates one sync run: pull pages from the ledger, classify
// each transaction, and commit new trades through the trade store. A single
// bad transaction never aborts a run; its failure is recorded in the
// result's error list and processing continues.
type Engine struct {
	ledger  LedgerClient
	wallets domain.WalletStore
	trades  domain.TradeStore
	digests domain.DigestCache // may be nil; dedup then relies on the store alone
	cfg     EngineConfig
	logger  *slog.Logger
}

// NewEngine creates a sync Engine. digests may be nil when no cache is
// configured.
func NewEngine(
	ledger LedgerClient,
	wallets domain.WalletStore,
	trades domain.TradeStore,
	digests domain.DigestCache,
	cfg EngineConfig,
	logger *slog.Logger,
) *Engine {
	if cfg.FiatSymbol == "" {
		cfg.FiatSymbol = "USDC"
	}
	if cfg.TokenSymbol == "" {
		cfg.TokenSymbol = "SUI"
	}
	return &Engine{
		ledger:  ledger,
		wallets: wallets,
		trades:  trades,
		digests: digests,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "sync_engine")),
	}
}

// SyncRecent sweeps every registered wallet, fetching up to limit recent
// transactions per address and running each through the
// extract -> dedup -> classify -> insert pipeline. Failing to load the
// wallet directory is the only fatal error; everything after that is
// recorded in the result and the sweep continues.
func (e *Engine) SyncRecent(ctx context.Context, limit int) (domain.SyncResult, error) {
	var result domain.SyncResult

	records, err := e.wallets.ListAll(ctx)
	if err != nil {
		return result, fmt.Errorf("sync: load wallet directory: %w", err)
	}

	for _, wallet := range records {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("sync: cancelled during wallet sweep: %w", err)
		}

		result.Merge(e.sweepAddress(ctx, wallet, wallet.Address, limit))
		if wallet.AltAddress != nil && *wallet.AltAddress != "" {
			result.Merge(e.sweepAddress(ctx, wallet, *wallet.AltAddress, limit))
		}
	}

	e.logger.InfoContext(ctx, "recent sync finished",
		slog.Int("wallets", len(records)),
		slog.Int("processed", result.TotalProcessed),
		slog.Int("new_trades", result.NewTrades),
		slog.Int("skipped", result.SkippedTrades),
		slog.Int("errors", result.ErrorCount()),
	)
	return result, nil
}

// sweepAddress fetches one page of recent transactions for addr and
// processes each in the order the ledger returned them. Outcomes accumulate
// in a per-address result the caller merges into the run total.
func (e *Engine) sweepAddress(ctx context.Context, wallet domain.WalletRecord, addr string, limit int) domain.SyncResult {
	var result domain.SyncResult

	page, err := e.ledger.QueryByAddress(ctx, addr, limit, "")
	if err != nil {
		result.AddError("wallet %d address %s: %v", wallet.UserID, addr, err)
		return result
	}

	for _, record := range page.Records {
		e.processRecord(ctx, record, &wallet, &result)
	}
	return result
}

// SyncByRange pages through the global feed newest-first and persists every
// in-range trade-bearing transaction. Transactions are attributed to users
// through an address index built from the wallet directory; in-range
// transactions from unknown senders are counted skipped and never
// persisted. The walk stops as soon as a freshly fetched
// page's oldest timestamp precedes start: pages are newest-first, so no
// later page can contain in-range data.
func (e *Engine) SyncByRange(ctx context.Context, start, end time.Time) (domain.SyncResult, error) {
	var result domain.SyncResult

	if end.Before(start) {
		return result, fmt.Errorf("sync: invalid range: end %s before start %s", end, start)
	}

	index, err := e.walletIndex(ctx)
	if err != nil {
		return result, fmt.Errorf("sync: load wallet directory: %w", err)
	}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("sync: cancelled during backfill: %w", err)
		}

		page, err := e.ledger.QueryRecent(ctx, backfillPageSize, cursor)
		if err != nil {
			result.AddError("backfill page (cursor %q): %v", cursor, err)
			break
		}
		if len(page.Records) == 0 {
			break
		}

		frontierPassed := false
		for _, record := range page.Records {
			ts := record.Time()
			if ts.IsZero() || ts.After(end) {
				continue
			}
			if ts.Before(start) {
				frontierPassed = true
				break
			}

			wallet, known := index[record.Sender]
			if !known {
				result.TotalProcessed++
				result.SkippedTrades++
				continue
			}
			e.processRecord(ctx, record, &wallet, &result)
		}

		if frontierPassed || !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	e.logger.InfoContext(ctx, "backfill finished",
		slog.Time("start", start),
		slog.Time("end", end),
		slog.Int("processed", result.TotalProcessed),
		slog.Int("new_trades", result.NewTrades),
		slog.Int("skipped", result.SkippedTrades),
		slog.Int("errors", result.ErrorCount()),
	)
	return result, nil
}

// TestTransaction fetches a single transaction, classifies it, and
// optionally runs it through the full persistence pipeline. It backs the
// operator API's test_transaction action.
func (e *Engine) TestTransaction(ctx context.Context, digest string, saveToDB bool) (domain.RawTransaction, []domain.TradeEvent, domain.SyncResult, error) {
	var result domain.SyncResult

	record, err := e.ledger.GetTransaction(ctx, digest)
	if err != nil {
		return domain.RawTransaction{}, nil, result, fmt.Errorf("sync: test transaction: %w", err)
	}

	events := pipeline.Classify(record)
	if !saveToDB {
		return record, events, result, nil
	}

	index, err := e.walletIndex(ctx)
	if err != nil {
		return record, events, result, fmt.Errorf("sync: load wallet directory: %w", err)
	}

	wallet, known := index[record.Sender]
	if !known {
		result.TotalProcessed++
		result.SkippedTrades++
		return record, events, result, nil
	}

	e.processRecord(ctx, record, &wallet, &result)
	return record, events, result, nil
}

// walletIndex builds the address -> wallet lookup used to attribute
// globally-observed transactions back to platform users.
func (e *Engine) walletIndex(ctx context.Context) (map[string]domain.WalletRecord, error) {
	records, err := e.wallets.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]domain.WalletRecord, len(records))
	for _, w := range records {
		index[w.Address] = w
		if w.AltAddress != nil && *w.AltAddress != "" {
			index[*w.AltAddress] = w
		}
	}
	return index, nil
}

// processRecord runs one transaction through the success gate, dedup,
// classification, and insert. All failures are recorded on the result.
func (e *Engine) processRecord(ctx context.Context, record domain.RawTransaction, wallet *domain.WalletRecord, result *domain.SyncResult) {
	result.TotalProcessed++

	if record.Digest == "" {
		result.AddError("wallet %d: transaction with empty digest", wallet.UserID)
		return
	}

	if !record.Success {
		result.SkippedTrades++
		return
	}

	seen, err := e.alreadySynced(ctx, record.Digest)
	if err != nil {
		result.AddError("tx %s (wallet %d): dedup check: %v", record.Digest, wallet.UserID, err)
		return
	}
	if seen {
		result.SkippedTrades++
		return
	}

	events := pipeline.Classify(record)
	if len(events) == 0 {
		result.SkippedTrades++
		return
	}

	trade, err := e.buildTrade(ctx, record, events[0], wallet)
	if err != nil {
		result.AddError("tx %s (wallet %d): build trade: %v", record.Digest, wallet.UserID, err)
		return
	}

	if _, err := e.trades.Insert(ctx, trade); err != nil {
		// A concurrent run landing the same digest first is success-equivalent.
		if errors.Is(err, domain.ErrAlreadyExists) {
			result.SkippedTrades++
			e.markSeen(ctx, record.Digest)
			return
		}
		result.AddError("tx %s (wallet %d): insert: %v", record.Digest, wallet.UserID, err)
		return
	}

	result.NewTrades++
	result.LastDigest = record.Digest
	e.markSeen(ctx, record.Digest)
}

// buildTrade maps a classified transaction onto the durable trade record.
func (e *Engine) buildTrade(ctx context.Context, record domain.RawTransaction, event domain.TradeEvent, wallet *domain.WalletRecord) (domain.Trade, error) {
	cycle, err := e.trades.CountByVault(ctx, wallet.VaultID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("count vault trades: %w", err)
	}

	createdAt := record.Time()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return domain.Trade{
		UserID:      wallet.UserID,
		VaultID:     wallet.VaultID,
		FiatAmount:  event.QuoteAmount,
		FiatSymbol:  e.cfg.FiatSymbol,
		TokenAmount: event.BaseAmount,
		TokenSymbol: e.cfg.TokenSymbol,
		Price:       event.Price,
		TxDigest:    record.Digest,
		CycleIndex:  int(cycle) + 1,
		CreatedAt:   createdAt,
	}, nil
}

// alreadySynced consults the digest cache before the store. Cache errors
// degrade to store lookups; they never fail the check on their own.
func (e *Engine) alreadySynced(ctx context.Context, digest string) (bool, error) {
	if e.digests != nil {
		if seen, err := e.digests.Seen(ctx, digest); err == nil && seen {
			return true, nil
		}
	}
	return e.trades.ExistsByDigest(ctx, digest)
}

func (e *Engine) markSeen(ctx context.Context, digest string) {
	if e.digests == nil {
		return
	}
	if err := e.digests.MarkSeen(ctx, digest); err != nil {
		e.logger.DebugContext(ctx, "digest cache mark failed",
			slog.String("digest", digest),
			slog.String("error", err.Error()),
		)
	}
}
