package repository

import (
	"context"
	"errors"
	"pulseflow/internal/model"
	"pulseflow/pkg/constraints"

	"gorm.io/gorm"
)

type RecipientInterface interface {
	// PrimaryEmail returns nil when the user is unknown, inactive or has no email.
	PrimaryEmail(ctx context.Context, userID int64) (*model.Recipient, error)
	// ServiceContacts lists every enabled channel of every member of every
	// contact group attached to the service.
	ServiceContacts(ctx context.Context, serviceID int64) ([]model.Recipient, error)
}

type RecipientRepository struct {
	db *gorm.DB
}

func NewRecipientRepository(db *gorm.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

func (r *RecipientRepository) PrimaryEmail(ctx context.Context, userID int64) (*model.Recipient, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ? AND active = ?", userID, true).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if user.Email == "" {
		return nil, nil
	}
	return &model.Recipient{
		IdentityID:  user.ID,
		ChannelType: constraints.ChannelEmail,
		Address:     user.Email,
		Primary:     true,
	}, nil
}

func (r *RecipientRepository) ServiceContacts(ctx context.Context, serviceID int64) ([]model.Recipient, error) {
	var rows []model.Recipient
	err := r.db.WithContext(ctx).
		Table("service_contact_groups AS scg").
		Select("u.id AS identity_id, scg.contact_group_id AS contact_group_id, cc.id AS channel_id, "+
			"cc.channel_type AS channel_type, cc.address AS address, m.is_primary AS is_primary").
		Joins("JOIN contact_group_members m ON m.contact_group_id = scg.contact_group_id").
		Joins("JOIN users u ON u.id = m.user_id AND u.active = ?", true).
		Joins("JOIN contact_channels cc ON cc.user_id = u.id AND cc.enabled = ?", true).
		Where("scg.service_id = ?", serviceID).
		Order("m.is_primary DESC, scg.contact_group_id ASC, u.id ASC, cc.id ASC").
		Scan(&rows).Error
	return rows, err
}
