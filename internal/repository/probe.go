package repository

import (
	"context"
	"errors"
	"pulseflow/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProbeInterface interface {
	Append(ctx context.Context, result *model.ProbeResult) error
	// Latest returns nil when the service has never been probed.
	Latest(ctx context.Context, serviceID int64) (*model.ProbeResult, error)
}

type ProbeRepository struct {
	db *gorm.DB
}

func NewProbeRepository(db *gorm.DB) *ProbeRepository {
	return &ProbeRepository{db: db}
}

func (r *ProbeRepository) Append(ctx context.Context, result *model.ProbeResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *ProbeRepository) Latest(ctx context.Context, serviceID int64) (*model.ProbeResult, error) {
	var result model.ProbeResult
	err := r.db.WithContext(ctx).
		Where("service_id = ?", serviceID).
		Order("checked_at DESC").Order("id DESC").
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

type CertificateInterface interface {
	Upsert(ctx context.Context, record *model.CertificateRecord) error
}

type CertificateRepository struct {
	db *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Upsert replaces the record for (service, domain).
func (r *CertificateRepository) Upsert(ctx context.Context, record *model.CertificateRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "service_id"}, {Name: "domain"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"issuer", "subject", "serial_number", "signature_algorithm",
			"public_key_algorithm", "public_key_bits", "subject_alt_names",
			"fingerprint", "not_before", "expiry_date", "days_remaining", "last_checked",
		}),
	}).Create(record).Error
}
