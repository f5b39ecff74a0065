package model

import "time"

type SystemSetting struct {
	Key       string    `json:"key" gorm:"primaryKey;size:64"`
	Value     string    `json:"value" gorm:"size:512"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	SettingCooldownMinutes   = "notification.cooldown_minutes"
	SettingRetryCount        = "notification.retry_count"
	SettingRetryDelaySeconds = "notification.retry_delay_seconds"
	SettingTemplateMode      = "notification.template_mode"
	SettingCheckIntervalSecs = "notification.check_interval_seconds"
)
