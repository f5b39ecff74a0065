package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pulseflow/internal/metrics"
	"pulseflow/internal/model"
	"pulseflow/internal/repository"
	"pulseflow/internal/worker"
	v1 "pulseflow/pkg/api/v1"
	"pulseflow/pkg/logger"

	"go.uber.org/zap"
)

const (
	DefaultBatchSize  = 50
	MinOutboxInterval = 3 * time.Second

	// DefaultSubmitTimeout bounds how long a batch waits on a full worker
	// queue while its claim transaction is open.
	DefaultSubmitTimeout = 2 * time.Second
)

// UnitDispatcher delivers one decoded payload.
type UnitDispatcher interface {
	Dispatch(ctx context.Context, u Unit)
}

// OutboxProcessor claims pending events and fans their payloads out to the
// worker pool. An event is marked PROCESSED once every payload is submitted;
// delivery outcomes live in the notification history.
type OutboxProcessor struct {
	store         repository.Store
	pool          *worker.Pool
	dispatcher    UnitDispatcher
	batchSize     int
	submitTimeout time.Duration
	observer      metrics.OutboxObserver
}

func NewOutboxProcessor(store repository.Store, pool *worker.Pool, dispatcher UnitDispatcher, batchSize int, observer metrics.OutboxObserver) *OutboxProcessor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &OutboxProcessor{
		store:         store,
		pool:          pool,
		dispatcher:    dispatcher,
		batchSize:     batchSize,
		submitTimeout: DefaultSubmitTimeout,
		observer:      observer,
	}
}

// OutboxInterval clamps the configured processing interval to its floor.
func OutboxInterval(configured time.Duration) time.Duration {
	if configured < MinOutboxInterval {
		return MinOutboxInterval
	}
	return configured
}

// Tick processes one batch inside a single transaction. Rows claimed by a
// concurrent transaction are skipped; rows left unmarked return to PENDING at commit.
func (p *OutboxProcessor) Tick(ctx context.Context) error {
	var claimed, processed, failed int

	err := p.store.Transaction(ctx, func(tx repository.Store) error {
		outbox := tx.Outbox()
		events, err := outbox.ClaimPending(ctx, p.batchSize)
		if err != nil {
			return fmt.Errorf("claim pending events: %w", err)
		}
		claimed = len(events)

		for i := range events {
			ev := &events[i]
			status, reason, stop := p.handle(ctx, ev)
			if status == "" {
				break
			}
			if err := outbox.MarkEvent(ctx, ev.ID, status, reason); err != nil {
				return fmt.Errorf("mark event %d %s: %w", ev.ID, status, err)
			}
			if status == model.OutboxProcessed {
				processed++
			} else {
				failed++
			}
			if stop {
				break
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if claimed > 0 {
		p.observer.RecordOutbox(model.OutboxProcessed, processed)
		p.observer.RecordOutbox(model.OutboxFailed, failed)
		logger.Debug("outbox batch done",
			zap.Int("claimed", claimed),
			zap.Int("processed", processed),
			zap.Int("failed", failed),
		)
	}
	return nil
}

// handle decodes and submits one event. stop reports that the pool no longer
// accepts work and the rest of the batch should stay PENDING. An empty status
// means the queue stayed full before any payload went out, so the event itself
// is left for the next tick.
func (p *OutboxProcessor) handle(ctx context.Context, ev *model.OutboxEvent) (status, reason string, stop bool) {
	payloads, err := v1.DecodePayloads(ev.Payload)
	if err != nil {
		logger.Warn("discarding malformed outbox event", zap.Int64("id", ev.ID), zap.String("event_type", ev.EventType), zap.Error(err))
		return model.OutboxFailed, err.Error(), false
	}

	for i, payload := range payloads {
		u := Unit{
			EventID:        ev.ID,
			EventType:      ev.EventType,
			ServiceID:      ev.ServiceID,
			FirstFailureAt: ev.FirstFailureAt,
			TraceID:        ev.TraceID,
			Payload:        payload,
		}
		err := p.submit(ctx, func(jctx context.Context) {
			p.dispatcher.Dispatch(jctx, u)
		})
		if i == 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Warn("worker queue full, deferring outbox event", zap.Int64("id", ev.ID), zap.Duration("waited", p.submitTimeout))
			return "", "", true
		}
		if err != nil {
			logger.Error("failed to submit notification", zap.Int64("id", ev.ID), zap.Error(err))
			return model.OutboxFailed, fmt.Sprintf("submit notification: %v", err), true
		}
	}
	return model.OutboxProcessed, "", false
}

func (p *OutboxProcessor) submit(ctx context.Context, job worker.Job) error {
	sctx, cancel := context.WithTimeout(ctx, p.submitTimeout)
	defer cancel()
	return p.pool.Submit(sctx, job)
}
