// Package handler exposes the caller's own sessions over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"trust-access-layer/backend/internal/apperror"
	"trust-access-layer/backend/internal/server/middleware"
	"trust-access-layer/backend/internal/session/domain"
	"trust-access-layer/backend/internal/session/service"
)

var errUnauthenticated = apperror.New(apperror.KindAuthenticationFailure, "missing or invalid authorization")

// Sessions is the subset of service.Registry used by the handler.
type Sessions interface {
	ListActive(ctx context.Context, subject string) ([]*domain.Session, error)
	GetOwned(ctx context.Context, sessionID, subject string) (*domain.Session, error)
	Revoke(ctx context.Context, sessionID, subject, reason string) error
	RevokeAll(ctx context.Context, subject, reason, exceptTokenID string) (int, error)
}

// Handler serves /v1/sessions. Every operation is scoped to the calling principal.
type Handler struct {
	sessions Sessions
}

// NewHandler returns a Handler backed by sessions.
func NewHandler(sessions Sessions) *Handler {
	return &Handler{sessions: sessions}
}

type sessionView struct {
	*domain.Session
	Current bool `json:"current"`
}

// List returns the caller's active sessions, marking the one making the request.
func (h *Handler) List(c *gin.Context) {
	claims, ok := middleware.GetClaims(c.Request.Context())
	if !ok {
		middleware.AbortWithError(c, errUnauthenticated)
		return
	}
	list, err := h.sessions.ListActive(c.Request.Context(), claims.Subject)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	out := make([]sessionView, len(list))
	for i, s := range list {
		out[i] = sessionView{Session: s, Current: s.ID == claims.SessionID}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// Revoke revokes one of the caller's sessions. Revoking a session that belongs to another
// principal reports not found.
func (h *Handler) Revoke(c *gin.Context) {
	claims, ok := middleware.GetClaims(c.Request.Context())
	if !ok {
		middleware.AbortWithError(c, errUnauthenticated)
		return
	}
	if err := h.sessions.Revoke(c.Request.Context(), c.Param("id"), claims.Subject, service.ReasonUserRevoked); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RevokeOthers revokes every session of the caller except the current one.
func (h *Handler) RevokeOthers(c *gin.Context) {
	claims, ok := middleware.GetClaims(c.Request.Context())
	if !ok {
		middleware.AbortWithError(c, errUnauthenticated)
		return
	}
	var except string
	if claims.SessionID != "" {
		current, err := h.sessions.GetOwned(c.Request.Context(), claims.SessionID, claims.Subject)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}
		except = current.TokenID
	}
	n, err := h.sessions.RevokeAll(c.Request.Context(), claims.Subject, service.ReasonRevokeOthers, except)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}
