// Package handler exposes vault lifecycle endpoints over HTTP. Field encryption and
// decryption stay in-process and are never served raw.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"trust-access-layer/backend/internal/apperror"
	"trust-access-layer/backend/internal/server/middleware"
	"trust-access-layer/backend/internal/vault/domain"
	"trust-access-layer/backend/internal/vault/service"
)

var (
	errUnauthenticated = apperror.New(apperror.KindAuthenticationFailure, "missing or invalid authorization")
	errInvalidPayload  = apperror.New(apperror.KindInvalidArgument, "invalid payload")
)

// Vault is the subset of service.Service used by the handler.
type Vault interface {
	Setup(ctx context.Context, tenantID, subject, password string) error
	Unlock(ctx context.Context, scope service.Scope, password string) error
	Lock(ctx context.Context, scope service.Scope)
	Status(ctx context.Context, scope service.Scope) (*domain.Status, error)
	Rotate(ctx context.Context, scope service.Scope, oldPassword, newPassword string, rewrap service.FieldRewrapper) error
}

// Handler serves /v1/vault. The unlock scope is the caller's (tenant, principal) pair.
type Handler struct {
	vault  Vault
	rewrap service.FieldRewrapper
}

// NewHandler returns a Handler. rewrap re-encrypts stored fields during rotation and may
// be nil when no field owner is registered in this process.
func NewHandler(vault Vault, rewrap service.FieldRewrapper) *Handler {
	return &Handler{vault: vault, rewrap: rewrap}
}

type passwordRequest struct {
	Password string `json:"password"`
}

func scopeOf(c *gin.Context) (service.Scope, bool) {
	claims, ok := middleware.GetClaims(c.Request.Context())
	if !ok {
		return service.Scope{}, false
	}
	return service.Scope{TenantID: claims.TenantID, PrincipalID: claims.Subject}, true
}

// Setup creates the tenant vault. It does not unlock it.
func (h *Handler) Setup(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		middleware.AbortWithError(c, errUnauthenticated)
		return
	}
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, errInvalidPayload)
		return
	}
	if err := h.vault.Setup(c.Request.Context(), scope.TenantID, scope.PrincipalID, req.Password); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// Unlock derives the vault key for the caller's scope.
func (h *Handler) Unlock(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		middleware.AbortWithError(c, errUnauthenticated)
		return
	}
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, errInvalidPayload)
		return
	}
	if err := h.vault.Unlock(c.Request.Context(), scope, req.Password); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Lock discards the caller's key. Locking a locked vault succeeds.
func (h *Handler) Lock(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		middleware.AbortWithError(c, errUnauthenticated)
		return
	}
	h.vault.Lock(c.Request.Context(), scope)
	c.Status(http.StatusNoContent)
}

// Status reports is_setup and is_unlocked for the caller's scope.
func (h *Handler) Status(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		middleware.AbortWithError(c, errUnauthenticated)
		return
	}
	st, err := h.vault.Status(c.Request.Context(), scope)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Rotate replaces the vault password. Other unlocked scopes of the tenant are locked.
func (h *Handler) Rotate(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		middleware.AbortWithError(c, errUnauthenticated)
		return
	}
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, errInvalidPayload)
		return
	}
	if err := h.vault.Rotate(c.Request.Context(), scope, req.OldPassword, req.NewPassword, h.rewrap); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
