package domain

import (
	"errors"
	"strings"
	"time"
)

// User is an authenticating principal within a tenant. Stored in principals.
type User struct {
	ID           string
	TenantID     string
	Email        string
	PasswordHash string
	Role         Role
	Status       UserStatus
	Lockout      Lockout
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Lockout is the failed-login state kept on the principal.
type Lockout struct {
	FailedAttempts int
	LockedUntil    *time.Time // nil when never locked or reset
}

// LockedAt reports whether the cooldown is still running at now.
func (l Lockout) LockedAt(now time.Time) bool {
	return l.LockedUntil != nil && now.Before(*l.LockedUntil)
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Role is the principal's tenant role.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole returns the Role for s, or false for an unknown role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOwner, RoleAdmin, RoleMember:
		return r, true
	}
	return "", false
}

// NormalizeEmail lowercases and trims email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.Role == "" {
		u.Role = RoleMember
	}
	if _, ok := ParseRole(string(u.Role)); !ok {
		return errors.New("role must be owner, admin or member")
	}
	return nil
}
