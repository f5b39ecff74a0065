package service

import (
	"context"
	"errors"
	"sort"

	"pulseflow/internal/buffer"
	"pulseflow/internal/model"
	"pulseflow/internal/repository"
	"pulseflow/internal/scheduler"
	"pulseflow/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrStoreUnhealthy = errors.New("store unhealthy")
	ErrRedisUnhealthy = errors.New("redis unhealthy")
)

// TaskStatus joins a registered task with its last persisted execution.
type TaskStatus struct {
	Task      scheduler.TaskInfo
	Execution *model.TaskExecution
}

// AdminService backs the operator endpoints.
type AdminService struct {
	sched *scheduler.Scheduler
	store repository.Store
	rdb   *redis.Client
}

func NewAdminService(sched *scheduler.Scheduler, store repository.Store, rdb *redis.Client) *AdminService {
	return &AdminService{sched: sched, store: store, rdb: rdb}
}

// Reload rebuilds the task set and returns what is now registered.
func (s *AdminService) Reload(ctx context.Context) ([]scheduler.TaskInfo, error) {
	operator := GetOperator(ctx)
	if err := s.sched.Reload(ctx); err != nil {
		logger.Error("scheduler reload failed", zap.String("operator", operator), zap.Error(err))
		return nil, err
	}
	tasks := s.sched.Tasks()
	logger.Info("scheduler reloaded", zap.String("operator", operator), zap.Int("tasks", len(tasks)))
	return tasks, nil
}

// TaskStatuses lists registered tasks first, then executions of tasks that are
// no longer registered.
func (s *AdminService) TaskStatuses(ctx context.Context) ([]TaskStatus, bool, error) {
	execs, err := s.store.Executions().List(ctx)
	if err != nil {
		return nil, false, err
	}
	byName := make(map[string]model.TaskExecution, len(execs))
	for _, e := range execs {
		byName[e.TaskName] = e
	}

	var out []TaskStatus
	for _, info := range s.sched.Tasks() {
		st := TaskStatus{Task: info}
		if e, ok := byName[info.Name]; ok {
			st.Execution = &e
			delete(byName, info.Name)
		}
		out = append(out, st)
	}

	stale := make([]string, 0, len(byName))
	for name := range byName {
		stale = append(stale, name)
	}
	sort.Strings(stale)
	for _, name := range stale {
		e := byName[name]
		out = append(out, TaskStatus{Task: scheduler.TaskInfo{Name: name}, Execution: &e})
	}
	return out, s.sched.Running(), nil
}

// Ticks returns tick outcomes after seq. complete is false when older records
// were already evicted.
func (s *AdminService) Ticks(seq int64) (records []buffer.TickRecord, complete bool, last int64) {
	log := s.sched.TickLog()
	if log == nil {
		return nil, true, 0
	}
	records, complete = log.GetSince(seq)
	return records, complete, log.LastSeq()
}

func (s *AdminService) History(ctx context.Context, page, size int) ([]model.NotificationHistory, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 50
	}
	return s.store.History().List(ctx, (page-1)*size, size)
}

func (s *AdminService) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		logger.Warn("store ping failed", zap.Error(err))
		return ErrStoreUnhealthy
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
			return ErrRedisUnhealthy
		}
	}
	return nil
}
