package resp

import (
	"time"

	"pulseflow/internal/buffer"
	"pulseflow/internal/model"
)

type TaskItem struct {
	Name            string     `json:"name"`
	IntervalSeconds int64      `json:"interval_seconds,omitempty"`
	Registered      bool       `json:"registered"`
	Status          string     `json:"status,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	DurationMs      int64      `json:"duration_ms,omitempty"`
	Error           string     `json:"error,omitempty"`
}

type ReloadResponse struct {
	Tasks []TaskItem `json:"tasks"`
}

type TaskStatusResponse struct {
	Running bool       `json:"running"`
	Tasks   []TaskItem `json:"tasks"`
}

type TicksResponse struct {
	Ticks    []buffer.TickRecord `json:"ticks"`
	LastSeq  int64               `json:"last_seq"`
	Complete bool                `json:"complete"`
}

type HistoryResponse struct {
	Items []model.NotificationHistory `json:"items"`
	Total int64                       `json:"total"`
	Page  int                         `json:"page"`
	Size  int                         `json:"size"`
}
