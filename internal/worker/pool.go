package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"pulseflow/pkg/logger"

	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Job is one unit of work. The context is canceled when the pool is force-stopped.
type Job func(ctx context.Context)

type PoolState int32

const (
	PoolStateRunning PoolState = iota
	PoolStateDraining
	PoolStateStopped
)

func (s PoolState) String() string {
	switch s {
	case PoolStateRunning:
		return "running"
	case PoolStateDraining:
		return "draining"
	case PoolStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Pool runs submitted jobs on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	name   string
	jobs   chan Job
	stopCh chan struct{}
	state  atomic.Int32
	mu     sync.RWMutex
	wg     sync.WaitGroup
	once   sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	processed atomic.Int64
	panicked  atomic.Int64
}

func NewPool(name string, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		jobs:   make(chan Job, queueSize),
		stopCh: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	p.state.Store(int32(PoolStateRunning))

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	logger.Info("worker pool started",
		zap.String("pool", name),
		zap.Int("workers", workers),
		zap.Int("queue_size", queueSize))
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			logger.Error("worker job panicked",
				zap.String("pool", p.name),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
		p.processed.Add(1)
	}()
	job(p.ctx)
}

// Submit blocks until the job is queued, ctx is done, or the pool stops.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.State() != PoolStateRunning {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return ErrPoolClosed
	}
}

// Shutdown stops accepting jobs and waits for queued and running jobs.
// When ctx expires first, running jobs have their context canceled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.state.Store(int32(PoolStateDraining))
		close(p.stopCh)
		p.mu.Lock()
		close(p.jobs)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.state.Store(int32(PoolStateStopped))
		logger.Info("worker pool stopped", zap.String("pool", p.name), zap.Int64("processed", p.processed.Load()))
		return nil
	case <-ctx.Done():
		p.cancel()
		logger.Warn("worker pool drain timed out, canceling in-flight jobs", zap.String("pool", p.name))
		<-done
		p.state.Store(int32(PoolStateStopped))
		return ctx.Err()
	}
}

func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

func (p *Pool) QueueDepth() int {
	return len(p.jobs)
}
