package model

import "time"

type TaskExecution struct {
	TaskName     string    `json:"task_name" gorm:"primaryKey;size:128"`
	LastRunAt    time.Time `json:"last_run_at"`
	NextRunAt    time.Time `json:"next_run_at"`
	DurationMs   int64     `json:"duration_ms"`
	Status       string    `json:"status" gorm:"size:16"`
	ErrorMessage string    `json:"error_message" gorm:"type:text"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	TaskSuccess = "SUCCESS"
	TaskFailed  = "FAILED"
)
