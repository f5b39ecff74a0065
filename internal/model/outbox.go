package model

import "time"

type OutboxEvent struct {
	ID             int64      `json:"id" gorm:"primaryKey"`
	EventType      string     `json:"event_type" gorm:"size:64;index"`
	ServiceID      *int64     `json:"service_id" gorm:"index"`
	Payload        string     `json:"payload" gorm:"type:text"`
	Status         string     `json:"status" gorm:"size:16;index"`
	FirstFailureAt *time.Time `json:"first_failure_at"`
	TraceID        string     `json:"trace_id" gorm:"size:64;index"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

const (
	OutboxPending   = "PENDING"
	OutboxProcessed = "PROCESSED"
	OutboxFailed    = "FAILED"
)

// CooldownAnchor is the instant the outage this event belongs to was first alerted.
func (e *OutboxEvent) CooldownAnchor() time.Time {
	if e.FirstFailureAt != nil {
		return *e.FirstFailureAt
	}
	return e.CreatedAt
}
