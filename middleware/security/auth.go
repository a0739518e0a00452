package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	sectoken "chatgate/tools/security"
)

// CtxUserIDKey is where the middleware stores the verified identity;
// downstream handlers read it with c.GetString.
const CtxUserIDKey = "userId"

// Middleware gates REST routes on the same bearer tokens the WebSocket
// handshake accepts: Authorization: Bearer first, token query param as
// a fallback.
func Middleware(opts sectoken.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
		if token == "" {
			token = strings.TrimSpace(c.Query("token"))
		}

		userID, err := sectoken.Verify(opts, token)
		if err != nil || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(CtxUserIDKey, userID)
		c.Next()
	}
}
