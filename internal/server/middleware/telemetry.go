package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"trust-access-layer/backend/internal/telemetry"
)

// requestMetadata is the JSON shape stored in SecurityEvent.Metadata for request events.
type requestMetadata struct {
	Method     string `json:"method"`
	Route      string `json:"route"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	SessionID  string `json:"session_id,omitempty"`
}

// Telemetry emits a request event after each request. Emission is asynchronous and
// best-effort. A nil emitter makes the middleware a pass-through.
func Telemetry(emitter telemetry.EventEmitter, skipRoutes map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if emitter == nil || skipRoutes[c.Request.Method+" "+route] {
			return
		}
		meta := requestMetadata{
			Method:     c.Request.Method,
			Route:      route,
			Status:     c.Writer.Status(),
			DurationMs: time.Since(start).Milliseconds(),
		}
		tenantID, _ := GetTenantID(c.Request.Context())
		subject, _ := GetUserID(c.Request.Context())
		meta.SessionID, _ = GetSessionID(c.Request.Context())
		metaJSON, _ := json.Marshal(meta)

		ev := telemetry.NewSecurityEvent(telemetry.EventRequest, tenantID, subject, route)
		ev.IP = ClientIP(c.Request.Context())
		ev.Metadata = string(metaJSON)
		telemetry.EmitAsync(emitter, ev)
	}
}
