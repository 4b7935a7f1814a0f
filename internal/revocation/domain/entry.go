package domain

import "time"

// Entry is a durable revocation record. It is kept until ExpiresAt, the natural expiry of
// the revoked token; after that the token is rejected on expiry alone.
type Entry struct {
	TokenID   string
	Subject   string
	Reason    string
	RevokedAt time.Time
	ExpiresAt time.Time
}
