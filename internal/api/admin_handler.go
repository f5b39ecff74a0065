package api

import (
	"context"
	"net/http"
	"time"

	"pulseflow/internal/buffer"
	"pulseflow/internal/dto/req"
	"pulseflow/internal/dto/resp"
	"pulseflow/internal/model"
	"pulseflow/internal/scheduler"
	"pulseflow/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminProvider interface {
	Reload(ctx context.Context) ([]scheduler.TaskInfo, error)
	TaskStatuses(ctx context.Context) ([]service.TaskStatus, bool, error)
	Ticks(seq int64) ([]buffer.TickRecord, bool, int64)
	History(ctx context.Context, page, size int) ([]model.NotificationHistory, int64, error)
	Health(ctx context.Context) error
}

type AdminHandler struct {
	service AdminProvider
}

func NewAdminHandler(service AdminProvider) *AdminHandler {
	return &AdminHandler{service: service}
}

// ReloadScheduler rebuilds the scheduled task set from the current service list.
func (h *AdminHandler) ReloadScheduler(c *gin.Context) {
	tasks, err := h.service.Reload(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	items := make([]resp.TaskItem, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, resp.TaskItem{Name: t.Name, IntervalSeconds: int64(t.Interval / time.Second), Registered: true})
	}
	c.JSON(http.StatusOK, resp.ReloadResponse{Tasks: items})
}

func (h *AdminHandler) ListTasks(c *gin.Context) {
	statuses, running, err := h.service.TaskStatuses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]resp.TaskItem, 0, len(statuses))
	for _, st := range statuses {
		item := resp.TaskItem{
			Name:            st.Task.Name,
			IntervalSeconds: int64(st.Task.Interval / time.Second),
			Registered:      st.Task.Interval > 0,
		}
		if e := st.Execution; e != nil {
			last, next := e.LastRunAt, e.NextRunAt
			item.Status = e.Status
			item.LastRunAt = &last
			item.NextRunAt = &next
			item.DurationMs = e.DurationMs
			item.Error = e.ErrorMessage
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, resp.TaskStatusResponse{Running: running, Tasks: items})
}

func (h *AdminHandler) ListTicks(c *gin.Context) {
	var q req.TicksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
		return
	}
	ticks, complete, last := h.service.Ticks(q.Since)
	if ticks == nil {
		ticks = []buffer.TickRecord{}
	}
	c.JSON(http.StatusOK, resp.TicksResponse{Ticks: ticks, LastSeq: last, Complete: complete})
}

func (h *AdminHandler) ListHistory(c *gin.Context) {
	var q req.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paging parameters"})
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Size == 0 {
		q.Size = 50
	}

	items, total, err := h.service.History(c.Request.Context(), q.Page, q.Size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if items == nil {
		items = []model.NotificationHistory{}
	}
	c.JSON(http.StatusOK, resp.HistoryResponse{Items: items, Total: total, Page: q.Page, Size: q.Size})
}

func (h *AdminHandler) HealthCheck(c *gin.Context) {
	if err := h.service.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
