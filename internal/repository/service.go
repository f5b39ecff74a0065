package repository

import (
	"context"
	"pulseflow/internal/model"

	"gorm.io/gorm"
)

// ServiceInterface reads the monitored service catalogue maintained by the admin layer.
type ServiceInterface interface {
	ListActive(ctx context.Context) ([]model.MonitoredService, error)
	ListTLSTargets(ctx context.Context) ([]model.MonitoredService, error)
}

type ServiceRepository struct {
	db *gorm.DB
}

func NewServiceRepository(db *gorm.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

func (r *ServiceRepository) ListActive(ctx context.Context) ([]model.MonitoredService, error) {
	var services []model.MonitoredService
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&services).Error
	return services, err
}

func (r *ServiceRepository) ListTLSTargets(ctx context.Context) ([]model.MonitoredService, error) {
	var services []model.MonitoredService
	err := r.db.WithContext(ctx).
		Where("active = ? AND tls_monitoring = ?", true, true).
		Order("id ASC").
		Find(&services).Error
	return services, err
}
