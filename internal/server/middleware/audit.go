package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"trust-access-layer/backend/internal/audit"
	"trust-access-layer/backend/internal/audit/domain"
	auditrepo "trust-access-layer/backend/internal/audit/repository"
)

// Audit records an audit log entry after each authenticated request. skipRoutes holds
// "METHOD /route" keys that are not audited. Create is best-effort: failures are logged
// and do not change the response. Unauthenticated requests are not audited here; the
// services audit login and refresh themselves.
func Audit(repo auditrepo.Repository, skipRoutes map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if repo == nil || route == "" || skipRoutes[c.Request.Method+" "+route] {
			return
		}
		claims, ok := GetClaims(c.Request.Context())
		if !ok || claims.TenantID == "" {
			return
		}
		ar := audit.ParseRoute(c.Request.Method, route)
		ip := ClientIP(c.Request.Context())
		if ip == "" {
			ip = "unknown"
		}
		entry := &domain.AuditLog{
			ID:        uuid.New().String(),
			TenantID:  claims.TenantID,
			Subject:   claims.Subject,
			Action:    ar.Action,
			Resource:  ar.Resource,
			IP:        ip,
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.Create(c.Request.Context(), entry); err != nil {
			zap.L().Warn("audit: failed to create audit log", zap.String("route", route), zap.Error(err))
		}
	}
}
