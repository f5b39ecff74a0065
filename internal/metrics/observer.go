package metrics

import "time"

type TaskObserver interface {
	ObserveTick(task, status string, duration time.Duration)
	SetRegisteredTasks(n int)
}

type ProbeObserver interface {
	RecordProbe(status string)
	SetCertificateDays(domain string, days int)
}

type OutboxObserver interface {
	RecordOutbox(status string, n int)
	RecordDelivery(channel, status string)
	RecordSuppressed(eventType string)
}

// Observer is implemented by the Prometheus backend and by Nop.
type Observer interface {
	TaskObserver
	ProbeObserver
	OutboxObserver
}

type Nop struct{}

func (Nop) ObserveTick(string, string, time.Duration) {}
func (Nop) SetRegisteredTasks(int)                    {}
func (Nop) RecordProbe(string)                        {}
func (Nop) SetCertificateDays(string, int)            {}
func (Nop) RecordOutbox(string, int)                  {}
func (Nop) RecordDelivery(string, string)             {}
func (Nop) RecordSuppressed(string)                   {}
