package model

import "time"

type User struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"size:64;uniqueIndex"`
	Email     string    `json:"email" gorm:"size:255"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type ContactGroup struct {
	ID   int64  `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"size:128"`
}

type ContactGroupMember struct {
	ContactGroupID int64 `json:"contact_group_id" gorm:"primaryKey"`
	UserID         int64 `json:"user_id" gorm:"primaryKey"`
	IsPrimary      bool  `json:"is_primary"`
}

// ContactChannel is one way of reaching a user, e.g. a telegram chat id.
type ContactChannel struct {
	ID          int64  `json:"id" gorm:"primaryKey"`
	UserID      int64  `json:"user_id" gorm:"index"`
	ChannelType string `json:"channel_type" gorm:"size:32"`
	Address     string `json:"address" gorm:"size:255"`
	Enabled     bool   `json:"enabled"`
}

type ServiceContactGroup struct {
	ServiceID      int64 `json:"service_id" gorm:"primaryKey"`
	ContactGroupID int64 `json:"contact_group_id" gorm:"primaryKey"`
}

// Recipient is produced by resolution and never persisted.
type Recipient struct {
	IdentityID     int64  `json:"identity_id"`
	ContactGroupID *int64 `json:"contact_group_id"`
	ChannelID      int64  `json:"channel_id"`
	ChannelType    string `json:"channel_type"`
	Address        string `json:"address"`
	Primary        bool   `json:"primary" gorm:"column:is_primary"`
}
