// Package handler serves the readiness probe.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// checkTimeout bounds each dependency check.
const checkTimeout = 2 * time.Second

// Pinger checks database connectivity (e.g. *pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the policy engine can evaluate (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler reports readiness. Nil dependencies are skipped.
type Handler struct {
	db     Pinger
	policy PolicyChecker
}

// NewHandler returns a Handler.
func NewHandler(db Pinger, policy PolicyChecker) *Handler {
	return &Handler{db: db, policy: policy}
}

// Healthz returns 200 with {"status":"ok"} when every dependency responds, and 503 with
// the failing checks otherwise. Failure causes are logged, not returned.
func (h *Handler) Healthz(c *gin.Context) {
	checks := gin.H{}
	healthy := true
	if h.db != nil {
		checks["database"] = h.check(c.Request.Context(), "database", h.db.Ping, &healthy)
	}
	if h.policy != nil {
		checks["policy"] = h.check(c.Request.Context(), "policy", h.policy.HealthCheck, &healthy)
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

func (h *Handler) check(ctx context.Context, name string, fn func(context.Context) error, healthy *bool) string {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		zap.L().Warn("health: check failed", zap.String("check", name), zap.Error(err))
		*healthy = false
		return "fail"
	}
	return "ok"
}
