package domain

import "fmt"

// MaxSyncErrors bounds the number of error strings retained in a SyncResult.
// Very large backfills can accumulate thousands of per-transaction failures;
// beyond the cap only the dropped count is kept.
const MaxSyncErrors = 100

// SyncResult summarises one sync run. It is returned to the caller and
// logged, never persisted.
type SyncResult struct {
	TotalProcessed int      `json:"total_processed"`
	NewTrades      int      `json:"new_trades"`
	SkippedTrades  int      `json:"skipped_trades"`
	Errors         []string `json:"errors"`
	DroppedErrors  int      `json:"dropped_errors,omitempty"`
	LastDigest     string   `json:"last_digest,omitempty"`
}

// AddError appends a formatted error message to the result, dropping the
// message (but counting it) once MaxSyncErrors is reached.
func (r *SyncResult) AddError(format string, args ...any) {
	if len(r.Errors) >= MaxSyncErrors {
		r.DroppedErrors++
		return
	}
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// ErrorCount returns the total number of errors recorded during the run,
// including ones dropped past the cap.
func (r *SyncResult) ErrorCount() int {
	return len(r.Errors) + r.DroppedErrors
}

// Merge folds another result into this one. Used when one run sweeps
// multiple wallets.
func (r *SyncResult) Merge(other SyncResult) {
	r.TotalProcessed += other.TotalProcessed
	r.NewTrades += other.NewTrades
	r.SkippedTrades += other.SkippedTrades
	for _, e := range other.Errors {
		r.AddError("%s", e)
	}
	r.DroppedErrors += other.DroppedErrors
	if other.LastDigest != "" {
		r.LastDigest = other.LastDigest
	}
}
