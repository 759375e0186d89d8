package middleware

import (
	"net/http"
	"strings"

	"github.com/citytours/backend/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// Context keys set by Auth.
const (
	UserIDKey = "userID"
	RoleKey   = "role"
)

// Auth validates the bearer access token and stores the caller in the context.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header required",
			})
			return
		}

		claims, err := jwt.ValidateToken(strings.TrimSpace(token), secret)
		if err != nil || claims.TokenType != jwt.AccessToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, string(claims.Role))
		c.Next()
	}
}

// AdminOnly must run after Auth.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleKey) != string(jwt.RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required",
			})
			return
		}
		c.Next()
	}
}
