package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// shutdownGrace bounds how long an HTTP drain may take after the run
// context is cancelled.
const shutdownGrace = 10 * time.Second

// Run executes the configured mode until ctx is cancelled. Modes:
//
//	sync     scheduler only, headless
//	serve    scheduler plus the operator HTTP API
//	backfill single time-range sweep, then exit
//	full     everything, including the archiver when enabled
func (a *App) Run(ctx context.Context) error {
	switch a.cfg.Mode {
	case "sync":
		return a.runScheduler(ctx, false, false)
	case "serve":
		return a.runScheduler(ctx, true, false)
	case "full":
		return a.runScheduler(ctx, true, true)
	case "backfill":
		return fmt.Errorf("app: backfill mode requires an explicit range, use Backfill")
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Backfill performs a one-shot historical sweep over [start, end] and
// returns once it completes.
func (a *App) Backfill(ctx context.Context, start, end time.Time) error {
	result, err := a.engine.SyncByRange(ctx, start, end)
	if err != nil {
		return fmt.Errorf("app: backfill: %w", err)
	}
	a.logger.Info("backfill complete",
		slog.Int("total_processed", result.TotalProcessed),
		slog.Int("new_trades", result.NewTrades),
		slog.Int("skipped_trades", result.SkippedTrades),
		slog.Int("errors", result.ErrorCount()),
	)
	return nil
}

func (a *App) runScheduler(ctx context.Context, withServer, withArchiver bool) error {
	g, gctx := errgroup.WithContext(ctx)

	a.scheduler.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		a.scheduler.Stop()
		return nil
	})

	if withServer && a.srv != nil {
		g.Go(func() error {
			a.logger.Info("http server starting", slog.Int("port", a.cfg.Server.Port))
			if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return a.srv.Shutdown(shCtx)
		})
	}

	if withArchiver && a.archiver != nil {
		g.Go(func() error {
			err := a.archiver.RunCron(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
