package repository

import (
	"context"
	"pulseflow/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExecutionInterface interface {
	Upsert(ctx context.Context, exec *model.TaskExecution) error
	List(ctx context.Context) ([]model.TaskExecution, error)
}

type ExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) Upsert(ctx context.Context, exec *model.TaskExecution) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_run_at", "next_run_at", "duration_ms", "status", "error_message", "updated_at"}),
	}).Create(exec).Error
}

func (r *ExecutionRepository) List(ctx context.Context) ([]model.TaskExecution, error) {
	var execs []model.TaskExecution
	err := r.db.WithContext(ctx).Order("task_name ASC").Find(&execs).Error
	return execs, err
}
