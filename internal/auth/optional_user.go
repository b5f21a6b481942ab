package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

// HeaderUser trusts the X-User-Id header as the caller identity.
// Use this ONLY for development/testing behind a trusted proxy.
func HeaderUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-Id header"})
			return
		}

		c.Set(CtxFirebaseUID, uid)
		c.Request = c.Request.WithContext(observability.WithOwner(c.Request.Context(), uid))
		c.Next()
	}
}
