package constraints

// Event types written to the outbox.
const (
	EventServiceDown      = "SERVICE_DOWN"
	EventServiceRecovered = "SERVICE_RECOVERED"
	EventCertExpiring     = "CERT_EXPIRING"
	EventUserCreated      = "USER_CREATED"
	EventPasswordReset    = "PASSWORD_RESET"
)

// Channel types a recipient can be reached on.
const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
)

// Template storage modes.
const (
	StorageDatabase   = "database"
	StorageFilesystem = "filesystem"
	StorageHybrid     = "hybrid"
)

type Scope int

const (
	ScopeUnknown Scope = iota
	ScopeUser
	ScopeService
)

// ScopeOf reports which recipient strategy an event type resolves with.
func ScopeOf(eventType string) Scope {
	switch eventType {
	case EventUserCreated, EventPasswordReset:
		return ScopeUser
	case EventServiceDown, EventServiceRecovered, EventCertExpiring:
		return ScopeService
	default:
		return ScopeUnknown
	}
}

func IsDownEvent(eventType string) bool {
	return eventType == EventServiceDown
}

func IsRecoveredEvent(eventType string) bool {
	return eventType == EventServiceRecovered
}

func IsValidStorageMode(mode string) bool {
	switch mode {
	case StorageDatabase, StorageFilesystem, StorageHybrid:
		return true
	}
	return false
}
