package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trust-access-layer/backend/internal/apperror"
	"trust-access-layer/backend/internal/security"
)

const bearerPrefix = "bearer "

var errUnauthenticated = apperror.New(apperror.KindAuthenticationFailure, "missing or invalid authorization")

// RevocationChecker reports whether a token id has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// SessionToucher records session use.
type SessionToucher interface {
	TouchSession(ctx context.Context, sessionID string)
}

// Auth validates the Bearer access token (signature, expiry, issuer, audience, type) and
// checks its jti against the revocation store. A revocation lookup error fails closed.
// On success the claims are stored in the request context and the session is touched
// after the handler runs.
func Auth(tokens *security.TokenProvider, revocations RevocationChecker, sessions SessionToucher) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, errUnauthenticated)
			return
		}
		claims, err := tokens.Validate(token, security.TokenTypeAccess)
		if err != nil {
			AbortWithError(c, errUnauthenticated)
			return
		}
		revoked, err := revocations.IsRevoked(c.Request.Context(), claims.ID)
		if err != nil {
			zap.L().Warn("auth: revocation check failed; rejecting token", zap.Error(err))
			AbortWithError(c, errUnauthenticated)
			return
		}
		if revoked {
			AbortWithError(c, errUnauthenticated)
			return
		}
		setRequestContext(c, WithClaims(c.Request.Context(), claims))
		c.Next()
		if sessions != nil {
			sessions.TouchSession(c.Request.Context(), claims.SessionID)
		}
	}
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
