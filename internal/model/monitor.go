package model

import "time"

type MonitoredService struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	Name          string    `json:"name" gorm:"size:128"`
	URL           string    `json:"url" gorm:"size:512"`
	Active        bool      `json:"active" gorm:"index"`
	CheckInterval int       `json:"check_interval"` // seconds
	Timeout       int       `json:"timeout"`        // seconds, 0 uses the configured default
	RetryCount    int       `json:"retry_count"`
	RetryDelay    int       `json:"retry_delay"` // seconds
	TLSMonitoring bool      `json:"tls_monitoring"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ProbeResult struct {
	ID             int64     `json:"id" gorm:"primaryKey"`
	ServiceID      int64     `json:"service_id" gorm:"index:idx_probe_service_checked,priority:1"`
	Status         string    `json:"status" gorm:"size:8"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	HTTPStatusCode int       `json:"http_status_code"`
	ErrorMessage   string    `json:"error_message" gorm:"type:text"`
	CheckedAt      time.Time `json:"checked_at" gorm:"index:idx_probe_service_checked,priority:2"`
}

const (
	ProbeUp   = "UP"
	ProbeDown = "DOWN"
)

type CertificateRecord struct {
	ID                 int64     `json:"id" gorm:"primaryKey"`
	ServiceID          int64     `json:"service_id" gorm:"uniqueIndex:idx_cert_service_domain,priority:1"`
	Domain             string    `json:"domain" gorm:"size:255;uniqueIndex:idx_cert_service_domain,priority:2"`
	Issuer             string    `json:"issuer" gorm:"size:512"`
	Subject            string    `json:"subject" gorm:"size:512"`
	SerialNumber       string    `json:"serial_number" gorm:"size:128"`
	SignatureAlgorithm string    `json:"signature_algorithm" gorm:"size:64"`
	PublicKeyAlgorithm string    `json:"public_key_algorithm" gorm:"size:32"`
	PublicKeyBits      int       `json:"public_key_bits"`
	SubjectAltNames    string    `json:"subject_alt_names" gorm:"type:text"`
	Fingerprint        string    `json:"fingerprint" gorm:"size:128"`
	NotBefore          time.Time `json:"not_before"`
	ExpiryDate         time.Time `json:"expiry_date"`
	DaysRemaining      int       `json:"days_remaining"`
	LastChecked        time.Time `json:"last_checked"`
}
