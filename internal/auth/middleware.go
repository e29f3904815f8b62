package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const trustedContextKey = "auth_trusted"

// Middleware marks requests carrying the shared secret as trusted. A wrong
// token is rejected outright; a missing one only leaves the request untrusted.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.extractToken(c)
		if authToken == "" {
			c.Set(trustedContextKey, !s.Enabled())
			c.Next()
			return
		}
		if err := s.ValidateToken(authToken); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.Set(trustedContextKey, true)
		c.Next()
	}
}

// RequireTrusted rejects requests that did not present the shared secret.
func (s *Service) RequireTrusted() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Trusted(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": ErrTokenRequired.Error()})
			return
		}
		c.Next()
	}
}

// Trusted reports whether Middleware accepted the caller's token.
func Trusted(c *gin.Context) bool {
	val, ok := c.Get(trustedContextKey)
	if !ok {
		return false
	}
	trusted, ok := val.(bool)
	return ok && trusted
}

// OriginMiddleware refuses browser requests from unknown origins and answers
// CORS preflights for known ones.
func (s *Service) OriginMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if !s.OriginAllowed(origin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "origin not allowed"})
			return
		}
		if origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
