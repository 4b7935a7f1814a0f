package middleware

import (
	"net"

	"github.com/gin-gonic/gin"

	"trust-access-layer/backend/internal/ratelimit"
)

// ResolveClientIP stores the effective client address in the request context. The
// X-Forwarded-For header is honoured only when the direct peer is a trusted proxy.
func ResolveClientIP(trusted []*net.IPNet) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := ratelimit.ResolveClientIP(c.Request.RemoteAddr, c.Request.Header.Get("X-Forwarded-For"), trusted)
		setRequestContext(c, WithClientIP(c.Request.Context(), ip))
		c.Next()
	}
}
