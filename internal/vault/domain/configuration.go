package domain

import "time"

// Configuration is a tenant's vault credential record. It stores only what is needed to
// verify the vault password and re-derive the key; the key itself is never persisted.
type Configuration struct {
	TenantID      string
	PasswordHash  string
	Salt          []byte
	KDFIterations int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Status is the caller-visible state of a tenant vault for one unlock scope.
type Status struct {
	IsSetup    bool `json:"is_setup"`
	IsUnlocked bool `json:"is_unlocked"`
}
