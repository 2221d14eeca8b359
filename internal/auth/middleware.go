package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// Require enforces a bearer token carrying at least the given authorization
// level. Missing or invalid credentials yield 403, matching the behaviour
// API clients already depend on.
func Require(level int, signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "not authenticated"})
			return
		}
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "invalid token"})
			return
		}
		if Level(claims.Role) < level {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "insufficient privileges"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// FromContext returns the authenticated claims set by Require.
func FromContext(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if authz != "" && strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	// Websocket clients cannot set headers from the browser; accept the
	// token as a query parameter there.
	return c.Query("token")
}
