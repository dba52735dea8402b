package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scribehub/scribe-auth/internal/scope"
	"github.com/scribehub/scribe-auth/internal/service"
)

const (
	principalKey   = "principal"
	tokenScopesKey = "tokenScopes"

	// PrincipalHeader carries the resource owner identity established by
	// the upstream authentication layer. It is trusted; the deployment
	// must strip it at the edge.
	PrincipalHeader = "X-Authenticated-User"
)

// Auth validates bearer tokens against the token store and attaches the
// token's subject and scopes to the request.
type Auth struct {
	OAuth *service.OAuthService
}

// RequireToken enforces a valid bearer token carrying requiredScope.
func (m *Auth) RequireToken(requiredScope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
			return
		}
		info, err := m.OAuth.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Token validation failed."})
			return
		}
		if !info.Active {
			c.Header("WWW-Authenticate", "Bearer error=\"invalid_token\"")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Token is expired or revoked."})
			return
		}
		if requiredScope != "" && !scope.Contains(info.Scopes, requiredScope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient_scope", "error_description": "Token does not carry the required scope."})
			return
		}
		c.Set(principalKey, info.UserID)
		c.Set(tokenScopesKey, info.Scopes)
		c.Next()
	}
}

// OptionalToken attaches the subject of a valid bearer token when one is
// presented but never rejects the request. Used by endpoints that apply
// per-caller policy to anonymous and authenticated callers alike.
func (m *Auth) OptionalToken(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.Next()
		return
	}
	info, err := m.OAuth.Validate(c.Request.Context(), token)
	if err == nil && info.Active {
		c.Set(principalKey, info.UserID)
		c.Set(tokenScopesKey, info.Scopes)
	}
	c.Next()
}

// RequirePrincipal enforces the trusted identity header set by the
// upstream authentication layer.
func RequirePrincipal(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(PrincipalHeader))
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access_denied", "error_description": "Authenticated user identity required."})
		return
	}
	c.Set(principalKey, userID)
	c.Next()
}

// GetPrincipal returns the caller identity attached by RequireToken,
// OptionalToken, or RequirePrincipal.
func GetPrincipal(c *gin.Context) (string, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return "", false
	}
	userID, ok := value.(string)
	return userID, ok && userID != ""
}

// GetTokenScopes returns the scopes of the validated bearer token.
func GetTokenScopes(c *gin.Context) ([]string, bool) {
	value, ok := c.Get(tokenScopesKey)
	if !ok {
		return nil, false
	}
	scopes, ok := value.([]string)
	return scopes, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
