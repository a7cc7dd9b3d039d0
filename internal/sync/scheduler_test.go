package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaultline/suisync/internal/domain"
)

type fakeLocks struct {
	mu       sync.Mutex
	err      error
	acquired int
	released int
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.released++
	}, nil
}

type panicWalletStore struct{}

func (panicWalletStore) ListAll(ctx context.Context) ([]domain.WalletRecord, error) {
	panic("wallet store exploded")
}

func (panicWalletStore) ListActive(ctx context.Context, sinceDays int) ([]domain.WalletRecord, error) {
	panic("wallet store exploded")
}

type fakeAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeAlerter) Notify(ctx context.Context, event, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func oneTradeEngine(t *testing.T) (*Engine, *fakeTradeStore) {
	t.Helper()
	wallets := &fakeWalletStore{records: []domain.WalletRecord{{UserID: 1, VaultID: 1, Address: "0xw1"}}}
	ledger := &fakeLedger{byAddr: map[string]domain.TransactionPage{
		"0xw1": {Records: []domain.RawTransaction{tradeTx("dgst-1", "0xw1", time.Now().UTC())}},
	}}
	trades := newFakeTradeStore()
	return newTestEngine(ledger, wallets, trades, nil), trades
}

func testTasks() []Task {
	// Cadences far enough out that timers never fire during a test.
	return []Task{
		{Name: "realtime", Cron: "0 0 1 1 *", Limit: 20},
		{Name: "safety_net", Cron: "0 0 1 7 *", Limit: 500},
	}
}

func TestNewScheduler_Validation(t *testing.T) {
	engine, _ := oneTradeEngine(t)

	cases := []struct {
		name  string
		tasks []Task
	}{
		{"no tasks", nil},
		{"empty name", []Task{{Name: "", Cron: "* * * * *", Limit: 1}}},
		{"duplicate name", []Task{
			{Name: "a", Cron: "* * * * *", Limit: 1},
			{Name: "a", Cron: "* * * * *", Limit: 1},
		}},
		{"zero limit", []Task{{Name: "a", Cron: "* * * * *", Limit: 0}}},
		{"bad cron", []Task{{Name: "a", Cron: "not a cron", Limit: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewScheduler(engine, tc.tasks, time.UTC, nil, nil, testLogger)
			require.Error(t, err)
		})
	}
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	engine, _ := oneTradeEngine(t)
	s, err := NewScheduler(engine, testTasks(), time.UTC, nil, nil, testLogger)
	require.NoError(t, err)

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // no-op
	require.True(t, s.Status().IsRunning)

	s.Stop()
	s.Stop() // no-op
	require.False(t, s.Status().IsRunning)

	// A stopped scheduler can be started again.
	s.Start(ctx)
	require.True(t, s.Status().IsRunning)
	s.Stop()
}

func TestScheduler_StatusReportsTasks(t *testing.T) {
	engine, _ := oneTradeEngine(t)
	s, err := NewScheduler(engine, testTasks(), time.UTC, nil, nil, testLogger)
	require.NoError(t, err)

	st := s.Status()
	require.False(t, st.IsRunning)
	require.Len(t, st.Tasks, 2)
	require.Equal(t, "realtime", st.Tasks[0].Name)

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		for _, task := range s.Status().Tasks {
			if task.NextRun.IsZero() {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestScheduler_ManualSyncInlineWhenStopped(t *testing.T) {
	engine, trades := oneTradeEngine(t)
	s, err := NewScheduler(engine, testTasks(), time.UTC, nil, nil, testLogger)
	require.NoError(t, err)

	result, err := s.RunManualSync(context.Background(), 20)
	require.NoError(t, err)
	require.Equal(t, 1, result.NewTrades)
	require.Len(t, trades.trades, 1)
}

func TestScheduler_ManualSyncThroughWorker(t *testing.T) {
	engine, trades := oneTradeEngine(t)
	s, err := NewScheduler(engine, testTasks(), time.UTC, nil, nil, testLogger)
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	result, err := s.RunManualSync(context.Background(), 20)
	require.NoError(t, err)
	require.Equal(t, 1, result.NewTrades)
	require.Len(t, trades.trades, 1)

	summary, ok := s.LastRun()
	require.True(t, ok)
	require.Equal(t, "manual", summary.Task)
	require.Equal(t, 1, summary.Result.NewTrades)
}

func TestScheduler_ManualSyncFallsBackWhenStopRaces(t *testing.T) {
	engine, trades := oneTradeEngine(t)
	s, err := NewScheduler(engine, testTasks(), time.UTC, nil, nil, testLogger)
	require.NoError(t, err)

	// Stop can land between the running check and the worker handoff: the
	// flag still reads true but the worker goroutine has exited.
	s.mu.Lock()
	s.running = true
	done := make(chan struct{})
	close(done)
	s.done = done
	s.mu.Unlock()

	result, err := s.RunManualSync(context.Background(), 20)
	require.NoError(t, err)
	require.Equal(t, 1, result.NewTrades)
	require.Len(t, trades.trades, 1)
}

func TestScheduler_TickRequestsRunThroughWorker(t *testing.T) {
	engine, trades := oneTradeEngine(t)
	s, err := NewScheduler(engine, testTasks(), time.UTC, nil, nil, testLogger)
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	// The test cadences never fire; feed the worker the request a due timer
	// would have enqueued.
	s.ticks <- runRequest{task: "realtime", limit: 20}

	require.Eventually(t, func() bool {
		summary, ok := s.LastRun()
		return ok && summary.Task == "realtime"
	}, time.Second, 10*time.Millisecond)

	summary, ok := s.LastRun()
	require.True(t, ok)
	require.Equal(t, 1, summary.Result.NewTrades)
	require.Len(t, trades.trades, 1)
}

func TestScheduler_PauseResume(t *testing.T) {
	engine, _ := oneTradeEngine(t)
	s, err := NewScheduler(engine, testTasks(), time.UTC, nil, nil, testLogger)
	require.NoError(t, err)

	require.NoError(t, s.Pause("realtime"))
	s.Start(context.Background())
	defer s.Stop()

	st := s.Status()
	require.False(t, st.Tasks[0].IsRunning)
	require.True(t, st.Tasks[1].IsRunning)

	require.NoError(t, s.Resume("realtime"))
	require.True(t, s.Status().Tasks[0].IsRunning)
}

func TestScheduler_PauseUnknownTask(t *testing.T) {
	engine, _ := oneTradeEngine(t)
	s, err := NewScheduler(engine, testTasks(), time.UTC, nil, nil, testLogger)
	require.NoError(t, err)

	err = s.Pause("no_such_task")
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestScheduler_PanicInRunRecovered(t *testing.T) {
	trades := newFakeTradeStore()
	engine := NewEngine(&fakeLedger{}, panicWalletStore{}, trades, nil, EngineConfig{}, testLogger)
	s, err := NewScheduler(engine, testTasks(), time.UTC, nil, nil, testLogger)
	require.NoError(t, err)

	_, err = s.RunManualSync(context.Background(), 20)
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked")

	// The scheduler survives and still serves requests.
	s.Start(context.Background())
	defer s.Stop()
	_, err = s.RunManualSync(context.Background(), 20)
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked")
}

func TestScheduler_SkipsWhenLockHeld(t *testing.T) {
	engine, trades := oneTradeEngine(t)
	locks := &fakeLocks{err: fmt.Errorf("lock: %w", domain.ErrLockHeld)}
	s, err := NewScheduler(engine, testTasks(), time.UTC, locks, nil, testLogger)
	require.NoError(t, err)

	_, err = s.RunManualSync(context.Background(), 20)
	require.True(t, errors.Is(err, domain.ErrLockHeld))
	require.Empty(t, trades.trades)
}

func TestScheduler_LockBackendFailureDoesNotBlockRuns(t *testing.T) {
	engine, trades := oneTradeEngine(t)
	locks := &fakeLocks{err: errors.New("redis unreachable")}
	s, err := NewScheduler(engine, testTasks(), time.UTC, locks, nil, testLogger)
	require.NoError(t, err)

	result, err := s.RunManualSync(context.Background(), 20)
	require.NoError(t, err)
	require.Equal(t, 1, result.NewTrades)
	require.Len(t, trades.trades, 1)
}

func TestScheduler_ReleasesLockAfterRun(t *testing.T) {
	engine, _ := oneTradeEngine(t)
	locks := &fakeLocks{}
	s, err := NewScheduler(engine, testTasks(), time.UTC, locks, nil, testLogger)
	require.NoError(t, err)

	_, err = s.RunManualSync(context.Background(), 20)
	require.NoError(t, err)
	require.Equal(t, 1, locks.acquired)
	require.Equal(t, 1, locks.released)
}

func TestScheduler_AlertsOnRunErrors(t *testing.T) {
	wallets := &fakeWalletStore{records: []domain.WalletRecord{{UserID: 1, VaultID: 1, Address: "0xw1"}}}
	ledger := &fakeLedger{addrErr: map[string]error{"0xw1": errors.New("node down")}}
	engine := NewEngine(ledger, wallets, newFakeTradeStore(), nil, EngineConfig{}, testLogger)

	alerter := &fakeAlerter{}
	s, err := NewScheduler(engine, testTasks(), time.UTC, nil, alerter, testLogger)
	require.NoError(t, err)

	result, err := s.RunManualSync(context.Background(), 20)
	require.NoError(t, err)
	require.Equal(t, 1, result.ErrorCount())

	alerter.mu.Lock()
	defer alerter.mu.Unlock()
	require.Len(t, alerter.messages, 1)
	require.Contains(t, alerter.messages[0], "1 errors")
}
