package model

import "time"

type NotificationTemplate struct {
	ID              int64     `json:"id" gorm:"primaryKey"`
	EventType       string    `json:"event_type" gorm:"size:64;uniqueIndex:idx_template_event_channel,priority:1"`
	ChannelType     string    `json:"channel_type" gorm:"size:32;uniqueIndex:idx_template_event_channel,priority:2"`
	SubjectTemplate string    `json:"subject_template" gorm:"type:text"`
	BodyTemplate    string    `json:"body_template" gorm:"type:text"`
	BodyTemplateKey string    `json:"body_template_key" gorm:"size:128"`
	StorageMode     string    `json:"storage_mode" gorm:"size:16"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type NotificationHistory struct {
	ID             int64     `json:"id" gorm:"primaryKey"`
	EventID        int64     `json:"event_id" gorm:"index"`
	ServiceID      *int64    `json:"service_id" gorm:"index"`
	ContactGroupID *int64    `json:"contact_group_id"`
	UserID         int64     `json:"user_id" gorm:"index"`
	ChannelID      int64     `json:"channel_id"`
	ChannelType    string    `json:"channel_type" gorm:"size:32"`
	Recipient      string    `json:"recipient" gorm:"size:255"`
	Subject        string    `json:"subject" gorm:"size:512"`
	Message        string    `json:"message" gorm:"type:text"`
	Status         string    `json:"status" gorm:"size:16;index"`
	Attempts       int       `json:"attempts"`
	ErrorMessage   string    `json:"error_message" gorm:"type:text"`
	SentAt         time.Time `json:"sent_at" gorm:"index"`
}

const (
	DeliverySent   = "SENT"
	DeliveryFailed = "FAILED"
)
