// Package telemetry carries security events (logins, lockouts, revocations, vault
// unlocks, rate-limit violations) to OTel logs and, optionally, Kafka.
package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a security event.
type EventType string

const (
	EventLoginSuccess      EventType = "login_success"
	EventLoginFailure      EventType = "login_failure"
	EventAccountLocked     EventType = "account_locked"
	EventLogout            EventType = "logout"
	EventTokenRefreshed    EventType = "token_refreshed"
	EventRefreshReuse      EventType = "refresh_token_reuse"
	EventSessionRevoked    EventType = "session_revoked"
	EventSessionsRevoked   EventType = "sessions_revoked"
	EventPasswordReset     EventType = "password_reset"
	EventVaultSetup        EventType = "vault_setup"
	EventVaultUnlock       EventType = "vault_unlock"
	EventVaultUnlockFailed EventType = "vault_unlock_failure"
	EventVaultLock         EventType = "vault_lock"
	EventVaultRotate       EventType = "vault_rotate"
	EventRateLimited       EventType = "rate_limited"
	EventRequest           EventType = "request"
)

// SecurityEvent is the JSON document written to OTel logs and Kafka. It never contains
// passwords, tokens or vault keys.
type SecurityEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"event_type"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Resource   string    `json:"resource,omitempty"`
	IP         string    `json:"ip,omitempty"`
	Metadata   string    `json:"metadata,omitempty"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewSecurityEvent fills ID, Source and OccurredAt.
func NewSecurityEvent(eventType EventType, tenantID, subject, resource string) *SecurityEvent {
	return &SecurityEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		TenantID:   tenantID,
		Subject:    subject,
		Resource:   resource,
		Source:     "trust-layer",
		OccurredAt: time.Now().UTC(),
	}
}
