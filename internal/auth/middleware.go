package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"backoffice/internal/apperr"
	"backoffice/internal/response"
)

const claimsKey = "claims"

// AdminAuth enforces bearer JWT tokens signed with HS256 and one of roles.
// With no roles any valid token passes.
func AdminAuth(signingKey, issuer string, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			response.Error(c, apperr.Unauthorized.WithMessage("missing bearer token"))
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			response.Error(c, apperr.Unauthorized.WithMessage("invalid token"))
			return
		}
		if len(roles) > 0 && !hasRole(claims.Role, roles) {
			response.Error(c, apperr.Forbidden)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func hasRole(role string, allowed []string) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// ClaimsFrom returns the claims AdminAuth stored on the request.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// ActorFrom returns the acting admin's identity, or "" when unknown.
func ActorFrom(c *gin.Context) string {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return ""
	}
	return claims.Actor()
}
