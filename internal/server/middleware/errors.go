package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trust-access-layer/backend/internal/apperror"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Kind    apperror.Kind `json:"kind"`
	Message string        `json:"message"`
}

// AbortWithError writes err as {kind, message} with the status of its kind and aborts the
// chain. Causes of internal errors are logged and never serialized.
func AbortWithError(c *gin.Context, err error) {
	kind, msg := apperror.Public(err)
	if kind == apperror.KindInternal {
		zap.L().Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperror.HTTPStatus(kind), ErrorBody{Kind: kind, Message: msg})
}
