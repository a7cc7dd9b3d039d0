package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vaultline/suisync/internal/domain"
	syncer "github.com/vaultline/suisync/internal/sync"
)

// defaultManualLimit is used when a manual_sync request omits the limit.
const defaultManualLimit = 50

// SyncController is the scheduler surface the control endpoint drives.
type SyncController interface {
	Start(ctx context.Context)
	Status() syncer.Status
	LastRun() (syncer.RunSummary, bool)
	RunManualSync(ctx context.Context, limit int) (domain.SyncResult, error)
	Pause(name string) error
	Resume(name string) error
}

// SyncRunner is the engine surface the control endpoint needs beyond the
// scheduler: ad-hoc transaction inspection and time-range backfill.
type SyncRunner interface {
	SyncByRange(ctx context.Context, start, end time.Time) (domain.SyncResult, error)
	TestTransaction(ctx context.Context, digest string, saveToDB bool) (domain.RawTransaction, []domain.TradeEvent, domain.SyncResult, error)
}

// SyncHandler exposes scheduler status and control over HTTP.
type SyncHandler struct {
	scheduler SyncController
	engine    SyncRunner
	// baseCtx outlives individual requests; actions that start long-lived
	// work (initialize) must not be tied to the request context.
	baseCtx context.Context
	logger  *slog.Logger
}

// NewSyncHandler creates a SyncHandler. baseCtx is the application context;
// the scheduler started through "initialize" lives until it is cancelled.
func NewSyncHandler(scheduler SyncController, engine SyncRunner, baseCtx context.Context, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		scheduler: scheduler,
		engine:    engine,
		baseCtx:   baseCtx,
		logger:    logger.With(slog.String("handler", "sync")),
	}
}

// GetStatus reports the scheduler state and a summary of the last run.
// GET /api/sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.scheduler.Status()

	payload := map[string]any{
		"is_running": status.IsRunning,
		"tasks":      status.Tasks,
	}
	if last, ok := h.scheduler.LastRun(); ok {
		payload["last_run"] = map[string]any{
			"task":        last.Task,
			"finished_at": last.FinishedAt,
			"duration_ms": last.Duration.Milliseconds(),
			"processed":   last.Result.TotalProcessed,
			"new_trades":  last.Result.NewTrades,
			"skipped":     last.Result.SkippedTrades,
			"error_count": last.Result.ErrorCount(),
			"errors":      recentErrors(last.Result, 10),
		}
	}

	writeJSON(w, http.StatusOK, payload)
}

// controlRequest is the body of POST /api/sync.
type controlRequest struct {
	Action   string `json:"action"`
	Limit    int    `json:"limit,omitempty"`
	TxDigest string `json:"tx_digest,omitempty"`
	SaveToDB bool   `json:"save_to_db,omitempty"`
	Task     string `json:"task,omitempty"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
}

// Control dispatches operator actions.
// POST /api/sync
func (h *SyncHandler) Control(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch req.Action {
	case "initialize":
		h.scheduler.Start(h.baseCtx)
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "initialized",
			"tasks":  h.scheduler.Status().Tasks,
		})

	case "manual_sync":
		limit := req.Limit
		if limit <= 0 {
			limit = defaultManualLimit
		}
		result, err := h.scheduler.RunManualSync(r.Context(), limit)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				writeError(w, http.StatusConflict, "a sync run is already in progress")
				return
			}
			h.logger.ErrorContext(r.Context(), "manual sync failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "manual sync failed")
			return
		}
		writeJSON(w, http.StatusOK, result)

	case "test_transaction":
		if req.TxDigest == "" {
			writeError(w, http.StatusBadRequest, "tx_digest is required")
			return
		}
		record, events, result, err := h.engine.TestTransaction(r.Context(), req.TxDigest, req.SaveToDB)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "test transaction failed",
				slog.String("digest", req.TxDigest),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "transaction lookup failed")
			return
		}
		wireEvents := make([]tradeEventJSON, 0, len(events))
		for _, ev := range events {
			wireEvents = append(wireEvents, tradeEventJSON{
				Type:        ev.Type,
				PoolID:      ev.PoolID,
				BaseAmount:  ev.BaseAmount,
				QuoteAmount: ev.QuoteAmount,
				Price:       ev.Price,
				TakerSide:   ev.TakerSide,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"digest":       record.Digest,
			"timestamp":    record.Timestamp,
			"success":      record.Success,
			"fee_cost":     record.FeeCost,
			"trade_events": wireEvents,
			"result":       result,
		})

	case "backfill":
		start, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start must be RFC3339")
			return
		}
		end, err := time.Parse(time.RFC3339, req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end must be RFC3339")
			return
		}
		result, err := h.engine.SyncByRange(r.Context(), start, end)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "backfill failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "backfill failed")
			return
		}
		writeJSON(w, http.StatusOK, result)

	case "pause_task":
		if err := h.scheduler.Pause(req.Task); err != nil {
			writeError(w, http.StatusNotFound, "unknown task")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "paused", "task": req.Task})

	case "resume_task":
		if err := h.scheduler.Resume(req.Task); err != nil {
			writeError(w, http.StatusNotFound, "unknown task")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "resumed", "task": req.Task})

	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

// tradeEventJSON is the wire shape of a classified trade event.
type tradeEventJSON struct {
	Type        string  `json:"type"`
	PoolID      string  `json:"pool_id,omitempty"`
	BaseAmount  float64 `json:"base_amount"`
	QuoteAmount float64 `json:"quote_amount"`
	Price       float64 `json:"price"`
	TakerSide   string  `json:"taker_side,omitempty"`
}

// recentErrors returns up to n of the run's error messages.
func recentErrors(result domain.SyncResult, n int) []string {
	if len(result.Errors) <= n {
		return result.Errors
	}
	return result.Errors[len(result.Errors)-n:]
}
