package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vaultline/suisync/internal/domain"
)

// TradeHandler serves persisted trade listings for reporting.
type TradeHandler struct {
	trades domain.TradeStore
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades domain.TradeStore, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger.With(slog.String("handler", "trades")),
	}
}

// ListTrades returns trades filtered by user_id or vault_id, newest first.
// GET /api/trades?user_id=…|vault_id=…&limit=&offset=
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	q := r.URL.Query()

	var (
		trades []domain.Trade
		err    error
	)
	switch {
	case q.Get("user_id") != "":
		var userID int64
		if userID, err = strconv.ParseInt(q.Get("user_id"), 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		trades, err = h.trades.ListByUser(r.Context(), userID, opts)
	case q.Get("vault_id") != "":
		var vaultID int64
		if vaultID, err = strconv.ParseInt(q.Get("vault_id"), 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid vault_id")
			return
		}
		trades, err = h.trades.ListByVault(r.Context(), vaultID, opts)
	default:
		writeError(w, http.StatusBadRequest, "user_id or vault_id is required")
		return
	}

	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trades": tradesJSON(trades),
		"count":  len(trades),
	})
}

// tradeJSON is the wire shape of a persisted trade.
type tradeJSON struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	VaultID     int64   `json:"vault_id"`
	FiatAmount  float64 `json:"fiat_amount"`
	FiatSymbol  string  `json:"fiat_symbol"`
	TokenAmount float64 `json:"token_amount"`
	TokenSymbol string  `json:"token_symbol"`
	Price       float64 `json:"price"`
	TxDigest    string  `json:"tx_digest"`
	CycleIndex  int     `json:"cycle_index"`
	CreatedAt   string  `json:"created_at"`
}

func tradesJSON(trades []domain.Trade) []tradeJSON {
	out := make([]tradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeJSON{
			ID:          t.ID,
			UserID:      t.UserID,
			VaultID:     t.VaultID,
			FiatAmount:  t.FiatAmount,
			FiatSymbol:  t.FiatSymbol,
			TokenAmount: t.TokenAmount,
			TokenSymbol: t.TokenSymbol,
			Price:       t.Price,
			TxDigest:    t.TxDigest,
			CycleIndex:  t.CycleIndex,
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}
