package repository

import (
	"context"
	"encoding/json"
	"errors"
	"pulseflow/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProcessingErrorKey is the payload key that carries the reason an event failed.
const ProcessingErrorKey = "processingError"

type OutboxInterface interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	// ClaimPending locks up to limit PENDING rows for the current transaction.
	// Rows held by another transaction are skipped, never waited on.
	ClaimPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	// MarkEvent moves a PENDING event to a terminal status. Events already
	// terminal are left untouched.
	MarkEvent(ctx context.Context, id int64, status string, errAppend string) error
	LatestForService(ctx context.Context, serviceID int64, eventType string) (*model.OutboxEvent, error)
}

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event.Status == "" {
		event.Status = model.OutboxPending
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", model.OutboxPending).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *OutboxRepository) MarkEvent(ctx context.Context, id int64, status string, errAppend string) error {
	db := r.db.WithContext(ctx)
	updates := map[string]any{"status": status}

	if errAppend != "" {
		var event model.OutboxEvent
		if err := db.Select("id", "payload").Where("id = ?", id).Take(&event).Error; err != nil {
			return err
		}
		updates["payload"] = AppendProcessingError(event.Payload, errAppend)
	}

	return db.Model(&model.OutboxEvent{}).
		Where("id = ? AND status = ?", id, model.OutboxPending).
		Updates(updates).Error
}

func (r *OutboxRepository) LatestForService(ctx context.Context, serviceID int64, eventType string) (*model.OutboxEvent, error) {
	var event model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND event_type = ?", serviceID, eventType).
		Order("id DESC").
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// AppendProcessingError records errMsg inside the payload document. Object
// payloads gain a key; anything else is wrapped so the original is preserved.
func AppendProcessingError(payload, errMsg string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err == nil && obj != nil {
		if prev, ok := obj[ProcessingErrorKey].(string); ok && prev != "" {
			errMsg = prev + "; " + errMsg
		}
		obj[ProcessingErrorKey] = errMsg
		if b, err := json.Marshal(obj); err == nil {
			return string(b)
		}
	}

	var original any = payload
	if json.Valid([]byte(payload)) {
		original = json.RawMessage(payload)
	}
	b, err := json.Marshal(map[string]any{
		"original":         original,
		ProcessingErrorKey: errMsg,
	})
	if err != nil {
		return payload
	}
	return string(b)
}
