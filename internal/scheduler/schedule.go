package scheduler

import (
	"time"

	"pulseflow/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// fixedRate fires once immediately and then every interval. Unlike
// cron.Every it keeps sub-second precision.
type fixedRate struct {
	interval time.Duration
	fired    bool
}

func (f *fixedRate) Next(t time.Time) time.Time {
	if !f.fired {
		f.fired = true
		return t
	}
	return t.Add(f.interval)
}

// cronLogger routes cron runtime messages through zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func newCronLogger() cron.Logger {
	return cronLogger{l: logger.Named("cron").Sugar()}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
