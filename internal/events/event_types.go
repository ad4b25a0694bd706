package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIdentityCreated   EventType = "identity_created"
	EventLoginSucceeded    EventType = "login_succeeded"
	EventLoginFailed       EventType = "login_failed"
	EventLogout            EventType = "logout"
	EventProfileUpdated    EventType = "profile_updated"
	EventPermissionChanged EventType = "permission_changed"
	EventPermissionRevoked EventType = "permission_revoked"
)

// Event represents an auth audit event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	AccountID string      `json:"account_id"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// PermissionChangedPayload payload.
type PermissionChangedPayload struct {
	Feature string          `json:"feature"`
	Flags   map[string]bool `json:"flags,omitempty"`
}

// LoginFailedPayload payload.
type LoginFailedPayload struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// ProfileUpdatedPayload records the written fields together with the values
// they replaced, so the audit trail can answer "what did it say before".
type ProfileUpdatedPayload struct {
	Fields   map[string]any `json:"fields"`
	Previous map[string]any `json:"previous,omitempty"`
}
