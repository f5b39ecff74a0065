package repository

import (
	"context"
	"pulseflow/internal/model"

	"gorm.io/gorm"
)

// HistoryInterface is the append-only delivery audit trail.
type HistoryInterface interface {
	Append(ctx context.Context, entry *model.NotificationHistory) error
	List(ctx context.Context, offset, limit int) ([]model.NotificationHistory, int64, error)
}

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Append(ctx context.Context, entry *model.NotificationHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *HistoryRepository) List(ctx context.Context, offset, limit int) ([]model.NotificationHistory, int64, error) {
	var entries []model.NotificationHistory
	var total int64

	db := r.db.WithContext(ctx).Model(&model.NotificationHistory{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Offset(offset).Limit(limit).Order("id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
