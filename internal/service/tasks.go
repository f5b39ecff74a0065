package service

import (
	"context"
	"fmt"
	"time"

	"pulseflow/internal/scheduler"
	"pulseflow/pkg/logger"

	"go.uber.org/zap"
)

const (
	TaskOutboxProcessor = "outbox-processor"
	TaskTLSExpiry       = "tls-expiry-check"
	TaskSettingsRefresh = "settings-refresh"
	uptimeTaskPrefix    = "uptime-check:"
)

// UptimeTaskName names the uptime task for one interval bucket.
func UptimeTaskName(interval time.Duration) string {
	return fmt.Sprintf("%s%ds", uptimeTaskPrefix, int64(interval/time.Second))
}

type TaskIntervals struct {
	TLSExpiry       time.Duration
	SettingsRefresh time.Duration
}

// TaskSet owns the components behind every scheduled task and knows how to
// register them.
type TaskSet struct {
	Uptime       *UptimeTask
	Certificates *CertificateTask
	Outbox       *OutboxProcessor
	Settings     *SettingsCache
	Intervals    TaskIntervals
}

// Load is a scheduler.Loader. It registers one uptime task per distinct
// service interval plus the fixed maintenance tasks.
func (ts *TaskSet) Load(ctx context.Context, s *scheduler.Scheduler) error {
	if ts.Settings != nil {
		if err := ts.Settings.Refresh(ctx); err != nil {
			logger.Warn("using cached settings for reload", zap.Error(err))
		}
	}

	if ts.Uptime != nil {
		buckets, err := ts.Uptime.Buckets(ctx)
		if err != nil {
			return err
		}
		for _, iv := range buckets {
			if err := s.Register(scheduler.TaskDefinition{
				Name:     UptimeTaskName(iv),
				Interval: iv,
				Run:      ts.Uptime.RunBucket(iv),
			}); err != nil {
				return err
			}
		}
	}

	if ts.Certificates != nil {
		iv := ts.Intervals.TLSExpiry
		if iv <= 0 {
			iv = 12 * time.Hour
		}
		if err := s.Register(scheduler.TaskDefinition{Name: TaskTLSExpiry, Interval: iv, Run: ts.Certificates.Run}); err != nil {
			return err
		}
	}

	if ts.Outbox != nil {
		var configured time.Duration
		if ts.Settings != nil {
			configured = ts.Settings.CheckInterval()
		}
		if err := s.Register(scheduler.TaskDefinition{
			Name:     TaskOutboxProcessor,
			Interval: OutboxInterval(configured),
			Run:      ts.Outbox.Tick,
		}); err != nil {
			return err
		}
	}

	if ts.Settings != nil {
		iv := ts.Intervals.SettingsRefresh
		if iv <= 0 {
			iv = time.Minute
		}
		if err := s.Register(scheduler.TaskDefinition{Name: TaskSettingsRefresh, Interval: iv, Run: ts.Settings.Refresh}); err != nil {
			return err
		}
	}
	return nil
}
