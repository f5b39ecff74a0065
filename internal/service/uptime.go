package service

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"pulseflow/internal/metrics"
	"pulseflow/internal/model"
	"pulseflow/internal/probe"
	"pulseflow/internal/repository"
	v1 "pulseflow/pkg/api/v1"
	"pulseflow/pkg/constraints"
	"pulseflow/pkg/logger"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// CooldownSource reports the current alert cooldown window.
type CooldownSource interface {
	Cooldown() time.Duration
}

type UptimeConfig struct {
	DefaultInterval time.Duration
	DefaultTimeout  time.Duration
	Concurrency     int
}

// UptimeTask probes active services and writes an outbox event whenever a
// service's status differs from its previous probe.
type UptimeTask struct {
	store    repository.Store
	prober   *probe.HTTPProber
	cooldown CooldownSource
	observer metrics.ProbeObserver
	cfg      UptimeConfig
	now      func() time.Time
}

func NewUptimeTask(store repository.Store, prober *probe.HTTPProber, cooldown CooldownSource, observer metrics.ProbeObserver, cfg UptimeConfig) *UptimeTask {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &UptimeTask{
		store:    store,
		prober:   prober,
		cooldown: cooldown,
		observer: observer,
		cfg:      cfg,
		now:      time.Now,
	}
}

// IntervalOf is the check interval a service is scheduled with.
func (t *UptimeTask) IntervalOf(svc model.MonitoredService) time.Duration {
	if svc.CheckInterval > 0 {
		return time.Duration(svc.CheckInterval) * time.Second
	}
	return t.cfg.DefaultInterval
}

// Buckets returns the distinct intervals of the active services, ascending.
func (t *UptimeTask) Buckets(ctx context.Context) ([]time.Duration, error) {
	services, err := t.store.Services().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active services: %w", err)
	}
	seen := make(map[time.Duration]struct{})
	var out []time.Duration
	for _, svc := range services {
		iv := t.IntervalOf(svc)
		if _, ok := seen[iv]; ok {
			continue
		}
		seen[iv] = struct{}{}
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// RunBucket returns a tick function that checks every active service whose
// interval equals interval. Membership is re-read on each tick.
func (t *UptimeTask) RunBucket(interval time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		services, err := t.store.Services().ListActive(ctx)
		if err != nil {
			return fmt.Errorf("list active services: %w", err)
		}
		targets := services[:0]
		for _, svc := range services {
			if t.IntervalOf(svc) == interval {
				targets = append(targets, svc)
			}
		}
		return t.CheckAll(ctx, targets)
	}
}

// CheckAll probes targets concurrently. A failure to persist one target's
// result does not stop the others.
func (t *UptimeTask) CheckAll(ctx context.Context, targets []model.MonitoredService) error {
	var failed atomic.Int32
	p := pool.New().WithMaxGoroutines(t.cfg.Concurrency)
	for _, svc := range targets {
		svc := svc
		p.Go(func() {
			if err := t.Check(ctx, svc); err != nil {
				failed.Add(1)
				logger.Error("failed to record probe result",
					zap.Int64("service_id", svc.ID),
					zap.String("service", svc.Name),
					zap.Error(err),
				)
			}
		})
	}
	p.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d services could not be recorded", n, len(targets))
	}
	return nil
}

// Check probes one service and records the result. The result row and any
// transition event commit together.
func (t *UptimeTask) Check(ctx context.Context, svc model.MonitoredService) error {
	timeout := t.cfg.DefaultTimeout
	if svc.Timeout > 0 {
		timeout = time.Duration(svc.Timeout) * time.Second
	}
	res := t.prober.CheckWithRetry(ctx, svc.URL, timeout, svc.RetryCount, time.Duration(svc.RetryDelay)*time.Second)
	if err := ctx.Err(); err != nil {
		// An interrupted probe says nothing about the service.
		return err
	}
	t.observer.RecordProbe(res.Status)

	row := &model.ProbeResult{
		ServiceID:      svc.ID,
		Status:         res.Status,
		ResponseTimeMs: res.ResponseTimeMs,
		HTTPStatusCode: res.StatusCode,
		ErrorMessage:   res.Error,
		CheckedAt:      t.now(),
	}

	return t.store.Transaction(ctx, func(tx repository.Store) error {
		prev, err := tx.Probes().Latest(ctx, svc.ID)
		if err != nil {
			return fmt.Errorf("read previous probe: %w", err)
		}
		if err := tx.Probes().Append(ctx, row); err != nil {
			return fmt.Errorf("append probe result: %w", err)
		}

		// No history counts as UP so that a service failing its first check alerts.
		oldStatus := model.ProbeUp
		if prev != nil {
			oldStatus = prev.Status
		}
		if oldStatus == row.Status {
			return nil
		}

		event, err := t.transitionEvent(ctx, tx, svc, oldStatus, row)
		if err != nil {
			return err
		}
		if err := tx.Outbox().Create(ctx, event); err != nil {
			return fmt.Errorf("enqueue %s: %w", event.EventType, err)
		}
		logger.Info("service status changed",
			zap.Int64("service_id", svc.ID),
			zap.String("service", svc.Name),
			zap.String("from", oldStatus),
			zap.String("to", row.Status),
			zap.String("trace_id", event.TraceID),
		)
		return nil
	})
}

func (t *UptimeTask) transitionEvent(ctx context.Context, tx repository.Store, svc model.MonitoredService, oldStatus string, row *model.ProbeResult) (*model.OutboxEvent, error) {
	lastDown, err := tx.Outbox().LatestForService(ctx, svc.ID, constraints.EventServiceDown)
	if err != nil {
		return nil, fmt.Errorf("read previous down event: %w", err)
	}

	var (
		eventType      string
		firstFailureAt *time.Time
	)
	if row.Status == model.ProbeDown {
		eventType = constraints.EventServiceDown
		lastRecovered, err := tx.Outbox().LatestForService(ctx, svc.ID, constraints.EventServiceRecovered)
		if err != nil {
			return nil, fmt.Errorf("read previous recovered event: %w", err)
		}
		// A repeat alert for the same outage inherits its anchor and is
		// suppressed at dispatch. Once a recovery has been announced, the next
		// DOWN is a new outage and always alerts.
		if lastDown != nil && (lastRecovered == nil || lastRecovered.ID < lastDown.ID) {
			anchor := lastDown.CooldownAnchor()
			if row.CheckedAt.Sub(anchor) < t.cooldown.Cooldown() {
				firstFailureAt = &anchor
			}
		}
	} else {
		eventType = constraints.EventServiceRecovered
		if lastDown != nil {
			start := lastDown.CreatedAt
			firstFailureAt = &start
		}
	}

	payload := v1.ServiceStatusChange{
		ServiceID:    svc.ID,
		ServiceName:  svc.Name,
		ServiceURL:   svc.URL,
		OldStatus:    oldStatus,
		NewStatus:    row.Status,
		ErrorMessage: row.ErrorMessage,
		CheckedAt:    row.CheckedAt.UTC().Format(time.RFC3339),
	}
	serviceID := svc.ID
	return &model.OutboxEvent{
		EventType:      eventType,
		ServiceID:      &serviceID,
		Payload:        payload.ToJSON(),
		Status:         model.OutboxPending,
		FirstFailureAt: firstFailureAt,
		TraceID:        uuid.New().String(),
	}, nil
}
