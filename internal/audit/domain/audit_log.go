package domain

import "time"

// AuditLog represents an audit event. Metadata is a JSON object or empty.
type AuditLog struct {
	ID        string
	TenantID  string
	Subject   string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
