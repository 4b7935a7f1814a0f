// Package handler exposes the authentication endpoints over HTTP.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"trust-access-layer/backend/internal/apperror"
	"trust-access-layer/backend/internal/identity/service"
	"trust-access-layer/backend/internal/security"
	"trust-access-layer/backend/internal/server/middleware"
)

var (
	errInvalidPayload  = apperror.New(apperror.KindInvalidArgument, "invalid payload")
	errUnauthenticated = apperror.New(apperror.KindAuthenticationFailure, "missing or invalid authorization")
)

// Authenticator is the subset of service.AuthService used by the handler.
type Authenticator interface {
	Login(ctx context.Context, req service.LoginRequest) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	Logout(ctx context.Context, claims *security.Claims) error
	ResetPassword(ctx context.Context, tenantID, subject, currentPassword, newPassword string) error
}

// Handler serves /v1/auth.
type Handler struct {
	auth Authenticator
}

// NewHandler returns a Handler backed by auth.
func NewHandler(auth Authenticator) *Handler {
	return &Handler{auth: auth}
}

// Login exchanges credentials for an access and refresh token pair.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		TenantID string `json:"tenant_id"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Device   string `json:"device"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, errInvalidPayload)
		return
	}
	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		middleware.AbortWithError(c, apperror.New(apperror.KindInvalidArgument, "tenant_id, email and password are required"))
		return
	}
	device := strings.TrimSpace(req.Device)
	if device == "" {
		device = c.Request.UserAgent()
	}
	res, err := h.auth.Login(c.Request.Context(), service.LoginRequest{
		TenantID: strings.TrimSpace(req.TenantID),
		Email:    req.Email,
		Password: req.Password,
		Device:   device,
		Origin:   middleware.ClientIP(c.Request.Context()),
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Refresh issues a new access token for a valid, unrevoked refresh token.
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		middleware.AbortWithError(c, apperror.New(apperror.KindInvalidArgument, "refresh_token is required"))
		return
	}
	res, err := h.auth.Refresh(c.Request.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Logout revokes the caller's session and access token.
func (h *Handler) Logout(c *gin.Context) {
	claims, _ := middleware.GetClaims(c.Request.Context())
	if err := h.auth.Logout(c.Request.Context(), claims); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResetPassword replaces the caller's own password and revokes all of its sessions. The
// current password is required.
func (h *Handler) ResetPassword(c *gin.Context) {
	claims, ok := middleware.GetClaims(c.Request.Context())
	if !ok {
		middleware.AbortWithError(c, errUnauthenticated)
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.CurrentPassword == "" {
		middleware.AbortWithError(c, errInvalidPayload)
		return
	}
	if err := h.auth.ResetPassword(c.Request.Context(), claims.TenantID, claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
