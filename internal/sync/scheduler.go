package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/vaultline/suisync/internal/domain"
)

// runLockTTL bounds how long one run may hold the cross-process sync lock.
const runLockTTL = 10 * time.Minute

// Task configures one scheduled sync cadence: a 5-field cron expression and
// the per-address transaction limit its runs use.
type Task struct {
	Name  string
	Cron  string
	Limit int
}

// TaskStatus reports one task's state through the operator API.
type TaskStatus struct {
	Name      string    `json:"name"`
	IsRunning bool      `json:"is_running"`
	NextRun   time.Time `json:"next_run,omitempty"`
}

// Status reports the scheduler's state.
type Status struct {
	IsRunning bool         `json:"is_running"`
	Tasks     []TaskStatus `json:"tasks"`
}

// RunSummary captures the outcome of the most recent run for the status
// endpoint. Only counts and recent error messages are exposed, never raw
// internal errors.
type RunSummary struct {
	Task       string            `json:"task"`
	FinishedAt time.Time         `json:"finished_at"`
	Duration   time.Duration     `json:"duration"`
	Result     domain.SyncResult `json:"result"`
}

// Alerter delivers operator alerts for runs that end with errors.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// runRequest is one unit of work for the scheduler's worker. Tick callbacks
// enqueue requests instead of invoking the engine directly so that
// overlapping cadences cannot race each other; the worker drains requests
// one at a time. Manual requests carry a reply channel and take priority.
type runRequest struct {
	task  string
	limit int
	reply chan runReply
}

type runReply struct {
	result domain.SyncResult
	err    error
}

// Scheduler owns the named sync cadences. The value returned by
// NewScheduler is the handle: the process entry point owns its lifetime and
// passes it to anything needing status or control.
type Scheduler struct {
	engine  *Engine
	tasks   []Task
	loc     *time.Location
	locks   domain.LockManager // may be nil; single-process deployments rely on the worker alone
	alerter Alerter            // may be nil
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	paused   map[string]bool
	nextRuns map[string]time.Time
	lastRun  *RunSummary
	cancel   context.CancelFunc
	done     chan struct{}

	manual chan runRequest
	ticks  chan runRequest
}

// NewScheduler creates a Scheduler for the given tasks. It validates every
// cron expression up front: misconfiguration is fatal at construction time,
// never once runs are underway.
func NewScheduler(
	engine *Engine,
	tasks []Task,
	loc *time.Location,
	locks domain.LockManager,
	alerter Alerter,
	logger *slog.Logger,
) (*Scheduler, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("scheduler: no tasks configured")
	}
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("scheduler: task with empty name")
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("scheduler: duplicate task %q", t.Name)
		}
		seen[t.Name] = true
		if t.Limit <= 0 {
			return nil, fmt.Errorf("scheduler: task %q: limit must be positive", t.Name)
		}
		if _, err := parseCron(t.Cron); err != nil {
			return nil, fmt.Errorf("scheduler: task %q: %w", t.Name, err)
		}
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Scheduler{
		engine:   engine,
		tasks:    tasks,
		loc:      loc,
		locks:    locks,
		alerter:  alerter,
		logger:   logger.With(slog.String("component", "scheduler")),
		paused:   make(map[string]bool),
		nextRuns: make(map[string]time.Time),
		manual:   make(chan runRequest),
		ticks:    make(chan runRequest, 16),
	}, nil
}

// Start arms every task timer and the worker goroutine. It is idempotent:
// calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, task := range s.tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			s.tickLoop(runCtx, t)
		}(task)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.workerLoop(runCtx)
	}()

	go func() {
		wg.Wait()
		close(s.done)
	}()

	s.logger.Info("scheduler started", slog.Int("tasks", len(s.tasks)))
}

// Stop disarms every timer and waits for an in-flight run to finish its
// current page before returning. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// Status reports whether the scheduler is running and the per-task state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{IsRunning: s.running}
	for _, t := range s.tasks {
		st.Tasks = append(st.Tasks, TaskStatus{
			Name:      t.Name,
			IsRunning: s.running && !s.paused[t.Name],
			NextRun:   s.nextRuns[t.Name],
		})
	}
	return st
}

// LastRun returns a summary of the most recently completed run, if any.
func (s *Scheduler) LastRun() (RunSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return RunSummary{}, false
	}
	return *s.lastRun, true
}

// Pause suspends one task's ticks without affecting the others.
func (s *Scheduler) Pause(name string) error {
	return s.setPaused(name, true)
}

// Resume re-arms a paused task.
func (s *Scheduler) Resume(name string) error {
	return s.setPaused(name, false)
}

func (s *Scheduler) setPaused(name string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Name == name {
			s.paused[name] = paused
			return nil
		}
	}
	return fmt.Errorf("scheduler: %w: task %q", domain.ErrNotFound, name)
}

// RunManualSync executes a recent sweep outside the timer grid. The request
// jumps ahead of queued tick work but still runs on the single worker, so a
// manual sync can never race a scheduled one. When the scheduler is not
// running the sweep executes inline.
func (s *Scheduler) RunManualSync(ctx context.Context, limit int) (domain.SyncResult, error) {
	s.mu.Lock()
	running := s.running
	done := s.done
	s.mu.Unlock()

	if !running {
		return s.runLocked(ctx, "manual", limit)
	}

	req := runRequest{task: "manual", limit: limit, reply: make(chan runReply, 1)}
	select {
	case s.manual <- req:
	case <-done:
		// Stop won the race after the running check; the worker is gone, so
		// the sweep executes inline like on a stopped scheduler.
		return s.runLocked(ctx, "manual", limit)
	case <-ctx.Done():
		return domain.SyncResult{}, fmt.Errorf("scheduler: manual sync not accepted: %w", ctx.Err())
	}

	select {
	case reply := <-req.reply:
		return reply.result, reply.err
	case <-done:
		// The worker accepted the request, so it finishes the run and sends
		// the buffered reply before shutting down. Drain it if present.
		select {
		case reply := <-req.reply:
			return reply.result, reply.err
		default:
		}
		return s.runLocked(ctx, "manual", limit)
	case <-ctx.Done():
		return domain.SyncResult{}, fmt.Errorf("scheduler: manual sync abandoned: %w", ctx.Err())
	}
}

// tickLoop sleeps until each next cron match for the task, then enqueues a
// run request. A slow run cannot re-enter: requests queue behind the worker.
func (s *Scheduler) tickLoop(ctx context.Context, task Task) {
	for {
		next, err := nextCronTime(task.Cron, time.Now(), s.loc)
		if err != nil {
			// Cron expressions are validated at construction; this is unreachable
			// short of a clock anomaly, and it must not kill the other tasks.
			s.logger.Error("cron evaluation failed",
				slog.String("task", task.Name),
				slog.String("error", err.Error()),
			)
			return
		}

		s.mu.Lock()
		s.nextRuns[task.Name] = next
		s.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.mu.Lock()
		paused := s.paused[task.Name]
		s.mu.Unlock()
		if paused {
			continue
		}

		select {
		case s.ticks <- runRequest{task: task.Name, limit: task.Limit}:
		default:
			// The queue is saturated with pending runs; the next cadence tick
			// will re-fetch the same recent window anyway.
			s.logger.Warn("dropping tick, run queue full", slog.String("task", task.Name))
		}
	}
}

// workerLoop drains run requests one at a time, manual requests first.
func (s *Scheduler) workerLoop(ctx context.Context) {
	for {
		// Bias toward manual requests before pulling tick work.
		select {
		case <-ctx.Done():
			return
		case req := <-s.manual:
			s.serve(ctx, req)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case req := <-s.manual:
			s.serve(ctx, req)
		case req := <-s.ticks:
			s.serve(ctx, req)
		}
	}
}

// serve executes one run request and reports the outcome.
func (s *Scheduler) serve(ctx context.Context, req runRequest) {
	result, err := s.runLocked(ctx, req.task, req.limit)
	if req.reply != nil {
		req.reply <- runReply{result: result, err: err}
	}
}

// runLocked wraps one engine run with the cross-process lock, panic
// recovery, duration logging, and operator alerting. A panic inside the
// engine is logged and reported as an error; it never crashes the scheduler.
func (s *Scheduler) runLocked(ctx context.Context, task string, limit int) (result domain.SyncResult, err error) {
	if s.locks != nil {
		unlock, lockErr := s.locks.Acquire(ctx, "sync:run", runLockTTL)
		if lockErr != nil {
			if errors.Is(lockErr, domain.ErrLockHeld) {
				s.logger.Info("skipping run, sync lock held elsewhere", slog.String("task", task))
				return domain.SyncResult{}, domain.ErrLockHeld
			}
			// Lock backend unavailable: proceed, the worker already serializes
			// runs within this process and the store dedups across processes.
			s.logger.Warn("sync lock unavailable, continuing without it",
				slog.String("task", task),
				slog.String("error", lockErr.Error()),
			)
		} else {
			defer unlock()
		}
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync run panicked",
				slog.String("task", task),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("scheduler: run %s panicked: %v", task, r)
		}
	}()

	start := time.Now()
	result, err = s.engine.SyncRecent(ctx, limit)
	duration := time.Since(start)

	s.mu.Lock()
	s.lastRun = &RunSummary{
		Task:       task,
		FinishedAt: time.Now().UTC(),
		Duration:   duration,
		Result:     result,
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("sync run failed",
			slog.String("task", task),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		s.alert(ctx, task, fmt.Sprintf("run failed: %v", err))
		return result, err
	}

	s.logger.Info("sync run finished",
		slog.String("task", task),
		slog.Duration("duration", duration),
		slog.Int("processed", result.TotalProcessed),
		slog.Int("new_trades", result.NewTrades),
		slog.Int("skipped", result.SkippedTrades),
		slog.Int("errors", result.ErrorCount()),
	)

	if n := result.ErrorCount(); n > 0 {
		s.alert(ctx, task, fmt.Sprintf("run finished with %d errors (%d new trades)", n, result.NewTrades))
	}
	return result, nil
}

func (s *Scheduler) alert(ctx context.Context, task, message string) {
	if s.alerter == nil {
		return
	}
	if err := s.alerter.Notify(ctx, "sync_error", "Sync: "+task, message); err != nil {
		s.logger.Warn("alert delivery failed", slog.String("error", err.Error()))
	}
}
