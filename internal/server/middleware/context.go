package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"trust-access-layer/backend/internal/security"
)

type contextKey struct{ name string }

var (
	claimsKey   = contextKey{"claims"}
	clientIPKey = contextKey{"client_ip"}
)

// WithClaims returns a context carrying the validated access token claims.
// Handlers and services read them via GetClaims, GetUserID, GetTenantID, GetSessionID.
func WithClaims(ctx context.Context, claims *security.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims returns the access token claims from context and true if set; otherwise nil, false.
func GetClaims(ctx context.Context) (*security.Claims, bool) {
	v, ok := ctx.Value(claimsKey).(*security.Claims)
	return v, ok && v != nil
}

// GetUserID returns the subject from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	c, ok := GetClaims(ctx)
	if !ok {
		return "", false
	}
	return c.Subject, c.Subject != ""
}

// GetTenantID returns the tenant_id from context and true if set; otherwise "", false.
func GetTenantID(ctx context.Context) (string, bool) {
	c, ok := GetClaims(ctx)
	if !ok {
		return "", false
	}
	return c.TenantID, c.TenantID != ""
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	c, ok := GetClaims(ctx)
	if !ok {
		return "", false
	}
	return c.SessionID, c.SessionID != ""
}

// WithClientIP returns a context carrying the resolved client address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client address resolved by the ClientIP middleware, or "".
// It satisfies audit.IPExtractor.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// setRequestContext replaces the request context of c.
func setRequestContext(c *gin.Context, ctx context.Context) {
	c.Request = c.Request.WithContext(ctx)
}
