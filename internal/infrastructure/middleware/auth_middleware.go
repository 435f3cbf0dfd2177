package middleware

import (
	"net/http"
	"strings"

	"callhub/internal/core/domain"
	"callhub/internal/core/services"
	"callhub/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Keys under which the authenticated caller is stored on the gin context.
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
)

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		setCaller(c, claims)
		c.Next()
	}
}

// OptionalAuthMiddleware records the caller when a valid token is present
// and lets anonymous requests through.
func OptionalAuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if claims, err := authService.ValidateToken(token); err == nil {
				setCaller(c, claims)
			}
		}
		c.Next()
	}
}

// CallerID returns the user id set by AuthMiddleware or OptionalAuthMiddleware.
func CallerID(c *gin.Context) (domain.UserID, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(domain.UserID)
	return id, ok && id != ""
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setCaller(c *gin.Context, claims *services.Claims) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextUsername, claims.Username)
	c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), string(claims.UserID)))
}
