package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pulseflow/internal/model"
	"pulseflow/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger("test")
}

// MockExecutionRepo keeps every upsert instead of only the latest.
type MockExecutionRepo struct {
	mu      sync.Mutex
	records []model.TaskExecution
}

func (m *MockExecutionRepo) Upsert(ctx context.Context, exec *model.TaskExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *exec)
	return nil
}

func (m *MockExecutionRepo) List(ctx context.Context) ([]model.TaskExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TaskExecution(nil), m.records...), nil
}

func (m *MockExecutionRepo) count(task, status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.TaskName == task && r.Status == status {
			n++
		}
	}
	return n
}

func counter(n *atomic.Int32) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n.Add(1)
		return nil
	}
}

func TestScheduler_FailingTaskDoesNotAffectOthers(t *testing.T) {
	repo := &MockExecutionRepo{}
	s := New(Config{PoolSize: 4, DrainTimeout: time.Second}, repo)

	require.NoError(t, s.Register(TaskDefinition{
		Name:     "always-fails",
		Interval: 15 * time.Millisecond,
		Run:      func(ctx context.Context) error { return errors.New("boom") },
	}))
	require.NoError(t, s.Register(TaskDefinition{
		Name:     "panics",
		Interval: 15 * time.Millisecond,
		Run:      func(ctx context.Context) error { panic("bad task") },
	}))
	var good atomic.Int32
	require.NoError(t, s.Register(TaskDefinition{Name: "healthy", Interval: 15 * time.Millisecond, Run: counter(&good)}))

	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	require.Eventually(t, func() bool {
		return repo.count("healthy", model.TaskSuccess) >= 5
	}, 2*time.Second, 5*time.Millisecond)

	assert.GreaterOrEqual(t, repo.count("always-fails", model.TaskFailed), 2)
	assert.GreaterOrEqual(t, repo.count("panics", model.TaskFailed), 2)
	assert.Zero(t, repo.count("always-fails", model.TaskSuccess))
	assert.True(t, s.Running())

	records, _ := repo.List(context.Background())
	for _, r := range records {
		if r.TaskName == "panics" {
			assert.Contains(t, r.ErrorMessage, "bad task")
			assert.Equal(t, r.LastRunAt.Add(15*time.Millisecond), r.NextRunAt)
		}
	}
}

func TestScheduler_FirstTickIsImmediate(t *testing.T) {
	s := New(Config{}, &MockExecutionRepo{})
	var n atomic.Int32
	require.NoError(t, s.Register(TaskDefinition{Name: "hourly", Interval: time.Hour, Run: counter(&n)}))

	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
}

func TestScheduler_TaskNeverOverlapsItself(t *testing.T) {
	s := New(Config{PoolSize: 4}, &MockExecutionRepo{})
	var active, maxActive, runs atomic.Int32

	require.NoError(t, s.Register(TaskDefinition{
		Name:     "slow",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			cur := active.Add(1)
			defer active.Add(-1)
			for {
				prev := maxActive.Load()
				if cur <= prev || maxActive.CompareAndSwap(prev, cur) {
					break
				}
			}
			runs.Add(1)
			time.Sleep(30 * time.Millisecond)
			return nil
		},
	}))

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Shutdown(context.Background())

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestScheduler_PoolSizeBoundsConcurrency(t *testing.T) {
	s := New(Config{PoolSize: 1}, &MockExecutionRepo{})
	var active, maxActive, runs atomic.Int32

	work := func(ctx context.Context) error {
		cur := active.Add(1)
		defer active.Add(-1)
		if cur > maxActive.Load() {
			maxActive.Store(cur)
		}
		runs.Add(1)
		time.Sleep(10 * time.Millisecond)
		return nil
	}
	require.NoError(t, s.Register(TaskDefinition{Name: "a", Interval: 5 * time.Millisecond, Run: work}))
	require.NoError(t, s.Register(TaskDefinition{Name: "b", Interval: 5 * time.Millisecond, Run: work}))

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return runs.Load() >= 6 }, 2*time.Second, 5*time.Millisecond)
	s.Shutdown(context.Background())

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestScheduler_ReloadLoaderFailureLeavesStopped(t *testing.T) {
	fail := atomic.Bool{}
	var ticks atomic.Int32

	loader := func(ctx context.Context, s *Scheduler) error {
		if err := s.Register(TaskDefinition{Name: "uptime", Interval: 10 * time.Millisecond, Run: counter(&ticks)}); err != nil {
			return err
		}
		if fail.Load() {
			return errors.New("service catalogue unavailable")
		}
		return nil
	}
	s := New(Config{DrainTimeout: time.Second}, &MockExecutionRepo{}, WithLoader(loader))
	defer s.Shutdown(context.Background())

	require.NoError(t, s.Reload(context.Background()))
	require.True(t, s.Running())
	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)

	fail.Store(true)
	err := s.Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service catalogue unavailable")
	assert.False(t, s.Running())
	assert.Empty(t, s.Tasks(), "partially registered tasks must be discarded")

	settled := ticks.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, ticks.Load(), "no timers may run after a failed reload")

	// the caller may retry
	fail.Store(false)
	require.NoError(t, s.Reload(context.Background()))
	assert.True(t, s.Running())
	assert.Len(t, s.Tasks(), 1)
}

func TestScheduler_ReloadReplacesTaskSet(t *testing.T) {
	var a, b atomic.Int32
	useB := atomic.Bool{}
	loader := func(ctx context.Context, s *Scheduler) error {
		if useB.Load() {
			return s.Register(TaskDefinition{Name: "b", Interval: 10 * time.Millisecond, Run: counter(&b)})
		}
		return s.Register(TaskDefinition{Name: "a", Interval: 10 * time.Millisecond, Run: counter(&a)})
	}
	s := New(Config{}, &MockExecutionRepo{}, WithLoader(loader))
	defer s.Shutdown(context.Background())

	require.NoError(t, s.Reload(context.Background()))
	require.Eventually(t, func() bool { return a.Load() >= 1 }, time.Second, 5*time.Millisecond)

	useB.Store(true)
	require.NoError(t, s.Reload(context.Background()))
	afterReload := a.Load()
	require.Eventually(t, func() bool { return b.Load() >= 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, afterReload, a.Load())
	assert.Equal(t, []TaskInfo{{Name: "b", Interval: 10 * time.Millisecond}}, s.Tasks())
}

func TestScheduler_ShutdownCancelsStuckTicks(t *testing.T) {
	s := New(Config{DrainTimeout: 30 * time.Millisecond}, &MockExecutionRepo{})
	started := make(chan struct{})
	canceled := make(chan struct{})

	require.NoError(t, s.Register(TaskDefinition{
		Name:     "stuck",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			close(canceled)
			return ctx.Err()
		},
	}))
	require.NoError(t, s.Start())
	<-started

	begin := time.Now()
	s.Shutdown(context.Background())
	assert.Less(t, time.Since(begin), time.Second)

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("running tick was not canceled")
	}

	// idempotent and terminal
	s.Shutdown(context.Background())
	assert.ErrorIs(t, s.Start(), ErrClosed)
	assert.ErrorIs(t, s.Reload(context.Background()), ErrClosed)
	assert.ErrorIs(t, s.Register(TaskDefinition{Name: "x", Interval: time.Second, Run: counter(new(atomic.Int32))}), ErrClosed)
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := New(Config{}, &MockExecutionRepo{})
	var n atomic.Int32

	assert.ErrorIs(t, s.Register(TaskDefinition{Name: "", Interval: time.Second, Run: counter(&n)}), ErrInvalidTask)
	assert.ErrorIs(t, s.Register(TaskDefinition{Name: "x", Interval: 0, Run: counter(&n)}), ErrInvalidTask)
	assert.ErrorIs(t, s.Register(TaskDefinition{Name: "x", Interval: time.Second}), ErrInvalidTask)

	require.NoError(t, s.Register(TaskDefinition{Name: "x", Interval: time.Second, Run: counter(&n)}))
	assert.ErrorIs(t, s.Register(TaskDefinition{Name: "x", Interval: time.Second, Run: counter(&n)}), ErrDuplicateTask)
	assert.ErrorIs(t, s.Reload(context.Background()), ErrNoLoader)
}

func TestScheduler_RegisterWhileRunningIsRejected(t *testing.T) {
	s := New(Config{}, &MockExecutionRepo{})
	var n atomic.Int32
	require.NoError(t, s.Register(TaskDefinition{Name: "a", Interval: time.Hour, Run: counter(&n)}))
	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	err := s.Register(TaskDefinition{Name: "b", Interval: time.Hour, Run: counter(&n)})
	assert.ErrorIs(t, err, ErrRunning)
	require.Len(t, s.Tasks(), 1)
	assert.Equal(t, "a", s.Tasks()[0].Name)
}

func TestScheduler_TickLogRecordsOutcomes(t *testing.T) {
	s := New(Config{}, &MockExecutionRepo{})
	require.NoError(t, s.Register(TaskDefinition{
		Name:     "once",
		Interval: time.Hour,
		Run:      func(ctx context.Context) error { return errors.New("nope") },
	}))
	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	require.Eventually(t, func() bool { return s.TickLog().LastSeq() == 1 }, time.Second, 5*time.Millisecond)
	recs, ok := s.TickLog().GetSince(0)
	require.True(t, ok)
	require.Len(t, recs, 1)
	assert.Equal(t, "once", recs[0].Task)
	assert.Equal(t, model.TaskFailed, recs[0].Status)
	assert.Equal(t, "nope", recs[0].Error)
}
