package middleware

import (
	"net/http"
	"slices"
	"strings"

	"staybook/models"
	"staybook/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by JWTAuthMiddleware.
const (
	ContextUserID = "userID"
	ContextRole   = "role"
)

// JWTAuthMiddleware validates the bearer token and stores the caller's id and
// role in the context.
func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		sub, role, err := utils.ExtractIdentity(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		switch models.Role(role) {
		case models.RoleCustomer, models.RoleVendor, models.RoleAdmin:
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Unknown role"})
			return
		}

		c.Set(ContextUserID, sub)
		c.Set(ContextRole, models.Role(role))
		c.Next()
	}
}

// RequireRole lets through only callers holding one of roles. It must run
// after JWTAuthMiddleware.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, ViewerFrom(c).Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
			return
		}
		c.Next()
	}
}

// ViewerFrom returns the authenticated caller stored in the context.
func ViewerFrom(c *gin.Context) models.Viewer {
	var v models.Viewer
	v.UserID = c.GetString(ContextUserID)
	if r, ok := c.Get(ContextRole); ok {
		v.Role, _ = r.(models.Role)
	}
	return v
}
