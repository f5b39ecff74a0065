package repository

import (
	"context"
	"errors"
	"pulseflow/internal/model"

	"gorm.io/gorm"
)

type TemplateInterface interface {
	// Find returns nil when no row exists for the pair.
	Find(ctx context.Context, eventType, channelType string) (*model.NotificationTemplate, error)
}

type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Find(ctx context.Context, eventType, channelType string) (*model.NotificationTemplate, error) {
	var tpl model.NotificationTemplate
	err := r.db.WithContext(ctx).
		Where("event_type = ? AND channel_type = ?", eventType, channelType).
		First(&tpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tpl, nil
}
