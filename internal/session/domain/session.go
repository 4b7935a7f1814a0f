package domain

import "time"

// Session is the durable record of one login, paired 1:1 with an issued refresh token.
type Session struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	Subject          string     `json:"subject"`
	TokenID          string     `json:"-"` // jti of the refresh token
	RefreshTokenHash string     `json:"-"` // SHA-256 of the refresh token
	Device           string     `json:"device"`
	Origin           string     `json:"origin"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       time.Time  `json:"last_used_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"` // nil when not revoked
	RevokeReason     string     `json:"revoke_reason,omitempty"`
}

// Active reports whether the session is neither revoked nor expired at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
