// Package server wires the HTTP routes and the middleware chain.
package server

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	auditrepo "trust-access-layer/backend/internal/audit/repository"
	healthhandler "trust-access-layer/backend/internal/health/handler"
	identityhandler "trust-access-layer/backend/internal/identity/handler"
	"trust-access-layer/backend/internal/policy/engine"
	"trust-access-layer/backend/internal/security"
	"trust-access-layer/backend/internal/server/middleware"
	sessionhandler "trust-access-layer/backend/internal/session/handler"
	"trust-access-layer/backend/internal/telemetry"
	vaulthandler "trust-access-layer/backend/internal/vault/handler"
	vaultservice "trust-access-layer/backend/internal/vault/service"
)

// Sessions is what the router needs from the session registry: the self-service
// operations and per-request touch.
type Sessions interface {
	sessionhandler.Sessions
	middleware.SessionToucher
}

// Deps holds the dependencies of the HTTP surface. Audit, Emitter, HealthPinger and
// HealthPolicyChecker may be nil.
type Deps struct {
	// ServiceName names the otelgin tracer.
	ServiceName    string
	Tokens         *security.TokenProvider
	Revocations    middleware.RevocationChecker
	Sessions       Sessions
	Auth           identityhandler.Authenticator
	Vault          vaulthandler.Vault
	// VaultRewrap re-encrypts stored fields during rotation; nil when no field owner is registered.
	VaultRewrap    vaultservice.FieldRewrapper
	Policy         engine.Evaluator
	RateLimiter    *middleware.RateLimiter
	// AuditRepo receives one entry per authenticated request.
	AuditRepo      auditrepo.Repository
	Emitter        telemetry.EventEmitter
	TrustedProxies []*net.IPNet

	HealthPinger        healthhandler.Pinger
	HealthPolicyChecker healthhandler.PolicyChecker

	Logger *zap.Logger
}

// skipRoutes are not audited and emit no request telemetry.
var skipRoutes = map[string]bool{
	http.MethodGet + " /healthz": true,
}

// NewRouter returns the gin engine serving every route.
//
// Middleware order: recovery, tracing, client address, request log, rate limit (before
// authentication), request telemetry, audit. Protected groups add Auth and then
// RequireAction per route.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if deps.ServiceName != "" {
		r.Use(otelgin.Middleware(deps.ServiceName))
	}
	r.Use(middleware.ResolveClientIP(deps.TrustedProxies))
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Handler())
	}
	r.Use(middleware.Telemetry(deps.Emitter, skipRoutes))
	r.Use(middleware.Audit(deps.AuditRepo, skipRoutes))

	r.GET("/healthz", healthhandler.NewHandler(deps.HealthPinger, deps.HealthPolicyChecker).Healthz)

	authn := middleware.Auth(deps.Tokens, deps.Revocations, deps.Sessions)
	can := func(action string) gin.HandlerFunc { return middleware.RequireAction(deps.Policy, action) }

	auth := identityhandler.NewHandler(deps.Auth)
	authGroup := r.Group("/v1/auth")
	{
		authGroup.POST("/login", auth.Login)
		authGroup.POST("/refresh", auth.Refresh)
		authGroup.POST("/logout", authn, can(engine.ActionAuthLogout), auth.Logout)
		authGroup.POST("/password/reset", authn, can(engine.ActionAuthPasswordReset), auth.ResetPassword)
	}

	sessions := sessionhandler.NewHandler(deps.Sessions)
	sessionGroup := r.Group("/v1/sessions", authn)
	{
		sessionGroup.GET("", can(engine.ActionSessionList), sessions.List)
		sessionGroup.DELETE("/:id", can(engine.ActionSessionRevoke), sessions.Revoke)
		sessionGroup.POST("/revoke-others", can(engine.ActionSessionRevokeOthers), sessions.RevokeOthers)
	}

	vault := vaulthandler.NewHandler(deps.Vault, deps.VaultRewrap)
	vaultGroup := r.Group("/v1/vault", authn)
	{
		vaultGroup.POST("/setup", can(engine.ActionVaultSetup), vault.Setup)
		vaultGroup.POST("/unlock", can(engine.ActionVaultUnlock), vault.Unlock)
		vaultGroup.POST("/lock", can(engine.ActionVaultLock), vault.Lock)
		vaultGroup.GET("/status", can(engine.ActionVaultStatus), vault.Status)
		vaultGroup.POST("/rotate", can(engine.ActionVaultRotate), vault.Rotate)
	}

	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, middleware.ErrorBody{Kind: "not_found", Message: "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, middleware.ErrorBody{Kind: "invalid_argument", Message: "method not allowed"})
	})
	return r
}
