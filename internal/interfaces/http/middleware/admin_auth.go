package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminTokenHeader carries the shared operator credential for the admin
// surface. This repo has no user/session system to hang a role claim off
// of, so admin access is a single shared bearer token, not a role check.
const AdminTokenHeader = "X-Admin-Token"

// RequireAdminToken gates the admin route group behind a shared secret
// configured out-of-band. An empty expected token denies every request,
// so the admin surface fails closed if it is left unconfigured.
func RequireAdminToken(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access is not configured"})
			return
		}

		got := c.GetHeader(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
