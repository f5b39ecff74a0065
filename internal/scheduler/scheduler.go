package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pulseflow/internal/buffer"
	"pulseflow/internal/metrics"
	"pulseflow/internal/model"
	"pulseflow/internal/repository"
	"pulseflow/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrClosed        = errors.New("scheduler is shut down")
	ErrDuplicateTask = errors.New("task already registered")
	ErrInvalidTask   = errors.New("invalid task definition")
	ErrNoLoader      = errors.New("no task loader configured")
	ErrRunning       = errors.New("scheduler is running, register through Reload")
)

const recordTimeout = 5 * time.Second

// TaskDefinition is immutable once registered.
type TaskDefinition struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Loader registers the desired task set. It is called by Reload on a stopped,
// empty scheduler.
type Loader func(ctx context.Context, s *Scheduler) error

type Config struct {
	PoolSize     int
	DrainTimeout time.Duration
}

type TaskInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
}

type Option func(*Scheduler)

func WithObserver(o metrics.TaskObserver) Option { return func(s *Scheduler) { s.observer = o } }

func WithTickLog(t *buffer.TickLog) Option { return func(s *Scheduler) { s.ticks = t } }

func WithLoader(l Loader) Option { return func(s *Scheduler) { s.loader = l } }

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// Scheduler runs every registered task on its own fixed-rate timer. A task
// never overlaps with itself, and at most PoolSize ticks run at once.
type Scheduler struct {
	cfg      Config
	execs    repository.ExecutionInterface
	observer metrics.TaskObserver
	ticks    *buffer.TickLog
	loader   Loader
	now      func() time.Time

	reloadMu sync.Mutex
	mu       sync.Mutex
	pending  []TaskDefinition
	running  *generation
	closed   bool
}

// generation is one started set of timers.
type generation struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
}

func New(cfg Config, execs repository.ExecutionInterface, opts ...Option) *Scheduler {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	s := &Scheduler{
		cfg:      cfg,
		execs:    execs,
		observer: metrics.Nop{},
		ticks:    buffer.NewTickLog(500),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds def to the pending set, which Start turns into timers. It is
// rejected while the scheduler runs; change a running set through Reload.
func (s *Scheduler) Register(def TaskDefinition) error {
	if def.Name == "" || def.Interval <= 0 || def.Run == nil {
		return fmt.Errorf("%w: %q", ErrInvalidTask, def.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.running != nil {
		return fmt.Errorf("%w: %s", ErrRunning, def.Name)
	}
	for _, p := range s.pending {
		if p.Name == def.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, def.Name)
		}
	}
	s.pending = append(s.pending, def)
	return nil
}

// Start begins ticking every registered task. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.running != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := newCronLogger()
	gen := &generation{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		ctx:    ctx,
		cancel: cancel,
		sem:    make(chan struct{}, s.cfg.PoolSize),
	}
	for _, def := range s.pending {
		gen.cron.Schedule(&fixedRate{interval: def.Interval}, s.wrap(gen, def))
	}
	gen.cron.Start()
	s.running = gen

	s.observer.SetRegisteredTasks(len(s.pending))
	logger.Info("scheduler started",
		zap.Int("tasks", len(s.pending)),
		zap.Int("pool_size", s.cfg.PoolSize))
	return nil
}

// Reload stops every timer, drops the registered tasks, asks the loader for
// the current task set and starts again. If the loader fails the scheduler
// stays stopped with no tasks and the error is returned.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	s.mu.Lock()
	closed, loader := s.closed, s.loader
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if loader == nil {
		return ErrNoLoader
	}

	s.stop(ctx)
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	if err := loader(ctx, s); err != nil {
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		s.observer.SetRegisteredTasks(0)
		logger.Error("scheduler reload failed, staying stopped", zap.Error(err))
		return fmt.Errorf("reload tasks: %w", err)
	}

	if err := s.Start(); err != nil {
		return err
	}
	logger.Info("scheduler reloaded", zap.Int("tasks", len(s.Tasks())))
	return nil
}

// Shutdown stops all timers and waits up to the drain timeout (or ctx) for
// running ticks before canceling them. It is safe to call more than once.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stop(ctx)
	logger.Info("scheduler shut down")
}

func (s *Scheduler) stop(ctx context.Context) {
	s.mu.Lock()
	gen := s.running
	s.running = nil
	s.mu.Unlock()
	if gen == nil {
		return
	}

	drained := gen.cron.Stop()
	timer := time.NewTimer(s.cfg.DrainTimeout)
	defer timer.Stop()

	select {
	case <-drained.Done():
	case <-timer.C:
		logger.Warn("scheduler drain timed out, canceling running ticks", zap.Duration("drain_timeout", s.cfg.DrainTimeout))
	case <-ctx.Done():
		logger.Warn("scheduler drain interrupted, canceling running ticks", zap.Error(ctx.Err()))
	}
	gen.cancel()
}

// Tasks lists the registered task definitions in registration order.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, TaskInfo{Name: p.Name, Interval: p.Interval})
	}
	return out
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running != nil
}

func (s *Scheduler) TickLog() *buffer.TickLog {
	return s.ticks
}

func (s *Scheduler) wrap(gen *generation, def TaskDefinition) cron.Job {
	return cron.FuncJob(func() {
		select {
		case gen.sem <- struct{}{}:
		case <-gen.ctx.Done():
			return
		}
		defer func() { <-gen.sem }()

		s.execute(gen.ctx, def)
	})
}

func (s *Scheduler) execute(ctx context.Context, def TaskDefinition) {
	start := s.now()
	err := runSafely(ctx, def.Run)
	elapsed := s.now().Sub(start)

	rec := &model.TaskExecution{
		TaskName:   def.Name,
		LastRunAt:  start,
		NextRunAt:  start.Add(def.Interval),
		DurationMs: elapsed.Milliseconds(),
		Status:     model.TaskSuccess,
	}
	if err != nil {
		rec.Status = model.TaskFailed
		rec.ErrorMessage = err.Error()
		logger.Error("scheduled task failed",
			zap.String("task", def.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	} else {
		logger.Debug("scheduled task finished",
			zap.String("task", def.Name),
			zap.Duration("elapsed", elapsed))
	}

	// a canceled tick still records how it ended
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if uerr := s.execs.Upsert(wctx, rec); uerr != nil {
		logger.Warn("failed to record task execution", zap.String("task", def.Name), zap.Error(uerr))
	}

	s.observer.ObserveTick(def.Name, rec.Status, elapsed)
	s.ticks.Add(buffer.TickRecord{
		Task:       def.Name,
		Status:     rec.Status,
		StartedAt:  start,
		DurationMs: rec.DurationMs,
		Error:      rec.ErrorMessage,
	})
}

func runSafely(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
