package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin          EventType = "auth.login"
	EventTypeAuthLogout         EventType = "auth.logout"
	EventTypeAuthLoginFailed    EventType = "auth.login_failed"
	EventTypeAuthSessionIssued  EventType = "auth.session_issued"
	EventTypeAuthTokenValidate  EventType = "auth.token_validate"
	EventTypeAuthTokenRejected  EventType = "auth.token_rejected"

	// Magic-link events
	EventTypeMagicLinkIssued   EventType = "magic_link.issued"
	EventTypeMagicLinkVerified EventType = "magic_link.verified"
	EventTypeMagicLinkReplayed EventType = "magic_link.replayed"
	EventTypeMagicLinkExpired  EventType = "magic_link.expired"

	// Authorization events
	EventTypeServiceBypass EventType = "authz.service_bypass"
	EventTypeAccessDenied  EventType = "authz.access_denied"

	// Rate limiting events
	EventTypeRateLimited EventType = "ratelimit.denied"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeUser      ResourceType = "user"
	ResourceTypeSession   ResourceType = "session"
	ResourceTypeMagicLink ResourceType = "magic_link"
	ResourceTypeService   ResourceType = "service"
	ResourceTypeItem      ResourceType = "item"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Additional details
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}
