package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"eduface/internal/portal"
)

const identityKey = "identity"

// Bearer enforces bearer access tokens and stores the caller's identity in
// the gin context.
func Bearer(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := tokens.ParseAccess(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(identityKey, claims.Identity())
		c.Next()
	}
}

// RequireRole lets the request through when the caller has any of roles.
// Must run after Bearer.
func RequireRole(roles ...portal.Role) gin.HandlerFunc {
	need := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		need[strings.ToLower(string(r))] = struct{}{}
	}
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if _, allowed := need[strings.ToLower(string(id.Role))]; !ok || !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Bearer.
func IdentityFrom(c *gin.Context) (portal.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return portal.Identity{}, false
	}
	id, ok := v.(portal.Identity)
	return id, ok
}

func itoa(i int) string { return strconv.Itoa(i) }
