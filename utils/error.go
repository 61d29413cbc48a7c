package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse defines the structure of error responses
type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorHandler catches panics and returns a structured 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				GetLogger().Error("Unhandled panic",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path))

				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Message: "Internal Server Error",
					Details: "An unexpected error occurred. Please try again later.",
				})
			}
		}()
		c.Next()
	}
}

// JSONError sends a standardized JSON error response and aborts the chain.
func JSONError(c *gin.Context, status int, message string, details string) {
	fields := []zap.Field{zap.Int("status", status), zap.String("path", c.Request.URL.Path)}
	if details != "" {
		fields = append(fields, zap.String("details", details))
	}
	GetLogger().Warn(message, fields...)
	c.AbortWithStatusJSON(status, ErrorResponse{Message: message, Details: details})
}
