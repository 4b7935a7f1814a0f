package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trust-access-layer/backend/internal/apperror"
	"trust-access-layer/backend/internal/policy/engine"
)

var errForbidden = apperror.New(apperror.KindPermissionDenied, "not allowed to perform this action")

// RequireAction denies the request unless the access policy allows the caller's role to
// perform action. Must run after Auth. Evaluation errors deny.
func RequireAction(evaluator engine.Evaluator, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c.Request.Context())
		if !ok {
			AbortWithError(c, errUnauthenticated)
			return
		}
		allowed, err := evaluator.Allow(c.Request.Context(), claims.Role, action)
		if err != nil {
			zap.L().Warn("authorize: policy evaluation failed", zap.String("action", action), zap.Error(err))
		}
		if err != nil || !allowed {
			AbortWithError(c, errForbidden)
			return
		}
		c.Next()
	}
}
