package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidPayload = errors.New("payload must be a JSON object or an array of objects")

// Payload is one logical notification. Keys are exposed to templates as-is.
type Payload map[string]any

// ServiceStatusChange is written by the uptime task on a status transition.
type ServiceStatusChange struct {
	ServiceID    int64  `json:"serviceId"`
	ServiceName  string `json:"serviceName"`
	ServiceURL   string `json:"serviceUrl"`
	OldStatus    string `json:"oldStatus"`
	NewStatus    string `json:"newStatus"`
	ErrorMessage string `json:"errorMessage"`
	CheckedAt    string `json:"checkedAt"`
}

// CertificateExpiry is written by the TLS task when a certificate nears expiry.
type CertificateExpiry struct {
	ServiceID     int64  `json:"serviceId"`
	ServiceName   string `json:"serviceName"`
	Domain        string `json:"domain"`
	Issuer        string `json:"issuer"`
	ExpiryDate    string `json:"expiryDate"`
	DaysRemaining int    `json:"daysRemaining"`
	Expired       bool   `json:"expired"`
}

// UserAccount is written by the admin layer for account lifecycle mails.
type UserAccount struct {
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	ResetLink string `json:"resetLink,omitempty"`
}

func (s ServiceStatusChange) ToJSON() string { return mustJSON(s) }

func (c CertificateExpiry) ToJSON() string { return mustJSON(c) }

func (u UserAccount) ToJSON() string { return mustJSON(u) }

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic("pulseflow serialization failed: " + err.Error())
	}
	return string(b)
}

// DecodePayloads accepts either a single object or an array of objects and
// always returns a list. An empty array yields an empty list.
func DecodePayloads(raw string) ([]Payload, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return nil, ErrInvalidPayload
	}

	switch data[0] {
	case '{':
		var p Payload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode payload object: %w", err)
		}
		return []Payload{p}, nil
	case '[':
		var list []Payload
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decode payload array: %w", err)
		}
		for i, p := range list {
			if p == nil {
				return nil, fmt.Errorf("payload element %d: %w", i, ErrInvalidPayload)
			}
		}
		return list, nil
	default:
		return nil, ErrInvalidPayload
	}
}

// Clone returns a shallow copy so per-recipient annotations never leak between units.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int64 reads a numeric field, tolerating JSON numbers decoded as float64.
func (p Payload) Int64(key string) (int64, bool) {
	switch v := p[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
