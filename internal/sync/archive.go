package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vaultline/suisync/internal/domain"
)

// ArchiveRunner moves aged trade rows to cold storage on a cron cadence.
type ArchiveRunner struct {
	archiver      domain.Archiver
	retentionDays int
	cronExpr      string
	loc           *time.Location
	logger        *slog.Logger
}

// NewArchiveRunner creates an ArchiveRunner. The cron expression is
// validated up front.
func NewArchiveRunner(archiver domain.Archiver, retentionDays int, cronExpr string, loc *time.Location, logger *slog.Logger) (*ArchiveRunner, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("archive: retention days must be positive")
	}
	if _, err := parseCron(cronExpr); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ArchiveRunner{
		archiver:      archiver,
		retentionDays: retentionDays,
		cronExpr:      cronExpr,
		loc:           loc,
		logger:        logger.With(slog.String("component", "archiver")),
	}, nil
}

// Run executes a single archive pass against the retention cutoff.
func (a *ArchiveRunner) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)

	count, err := a.archiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving trades before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("trades_archived", count),
	)
	return nil
}

// RunCron runs the archiver on its cron schedule until the context is
// cancelled. A failed pass is logged and retried at the next trigger.
func (a *ArchiveRunner) RunCron(ctx context.Context) error {
	a.logger.Info("archiver cron started", slog.String("cron", a.cronExpr))

	for {
		next, err := nextCronTime(a.cronExpr, time.Now(), a.loc)
		if err != nil {
			return fmt.Errorf("archive: evaluating cron %q: %w", a.cronExpr, err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
