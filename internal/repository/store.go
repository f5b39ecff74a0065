package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store is the persistence surface the background pipeline runs against.
type Store interface {
	Outbox() OutboxInterface
	Probes() ProbeInterface
	Certificates() CertificateInterface
	Templates() TemplateInterface
	Recipients() RecipientInterface
	History() HistoryInterface
	Executions() ExecutionInterface
	Services() ServiceInterface
	Settings() SettingInterface

	// Transaction runs fn against a Store bound to one transaction. Returning
	// an error rolls back every write and releases every claimed row.
	Transaction(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Outbox() OutboxInterface            { return NewOutboxRepository(s.db) }
func (s *GormStore) Probes() ProbeInterface             { return NewProbeRepository(s.db) }
func (s *GormStore) Certificates() CertificateInterface { return NewCertificateRepository(s.db) }
func (s *GormStore) Templates() TemplateInterface       { return NewTemplateRepository(s.db) }
func (s *GormStore) Recipients() RecipientInterface     { return NewRecipientRepository(s.db) }
func (s *GormStore) History() HistoryInterface          { return NewHistoryRepository(s.db) }
func (s *GormStore) Executions() ExecutionInterface     { return NewExecutionRepository(s.db) }
func (s *GormStore) Services() ServiceInterface         { return NewServiceRepository(s.db) }
func (s *GormStore) Settings() SettingInterface         { return NewSettingRepository(s.db) }

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
