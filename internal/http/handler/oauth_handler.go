// Package handler exposes the HTTP surface: OAuth protocol endpoints,
// client registration, and the ephemeral processing API.
package handler

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scribehub/scribe-auth/internal/config"
	"github.com/scribehub/scribe-auth/internal/http/middleware"
	"github.com/scribehub/scribe-auth/internal/scope"
	"github.com/scribehub/scribe-auth/internal/service"
)

// OAuthHandler serves the protocol endpoints.
type OAuthHandler struct {
	OAuth     *service.OAuthService
	Discovery *service.DiscoveryService
	Config    config.Config
}

// NewOAuthHandler creates the handler set.
func NewOAuthHandler(oauth *service.OAuthService, discovery *service.DiscoveryService, cfg config.Config) *OAuthHandler {
	return &OAuthHandler{OAuth: oauth, Discovery: discovery, Config: cfg}
}

// Authorize implements the authorization endpoint. The resource owner is
// already authenticated upstream; validation failures before the redirect
// URI is trusted return JSON, later failures redirect back to the client.
func (h *OAuthHandler) Authorize(c *gin.Context) {
	userID, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access_denied", "error_description": "Resource owner is not authenticated."})
		return
	}

	out, err := h.OAuth.Authorize(c.Request.Context(), service.AuthorizeInput{
		ClientID:     c.Query("client_id"),
		RedirectURI:  c.Query("redirect_uri"),
		ResponseType: c.Query("response_type"),
		Scope:        c.Query("scope"),
		State:        c.Query("state"),
		UserID:       userID,
	})
	if err != nil {
		var redirectErr *service.RedirectError
		if errors.As(err, &redirectErr) {
			c.Redirect(http.StatusFound, errorRedirect(redirectErr))
			return
		}
		respondOAuthError(c, err)
		return
	}

	c.Redirect(http.StatusFound, codeRedirect(out))
}

// Token handles the token endpoint grant exchanges.
func (h *OAuthHandler) Token(c *gin.Context) {
	var req struct {
		GrantType    string `form:"grant_type" binding:"required"`
		ClientID     string `form:"client_id"`
		ClientSecret string `form:"client_secret"`
		Code         string `form:"code"`
		RedirectURI  string `form:"redirect_uri"`
		RefreshToken string `form:"refresh_token"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid token request."})
		return
	}

	var (
		resp *service.TokenResponse
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(req.GrantType)) {
	case "authorization_code":
		resp, err = h.OAuth.ExchangeCode(c.Request.Context(), req.ClientID, req.ClientSecret, req.Code, req.RedirectURI, req.GrantType)
	case "refresh_token":
		resp, err = h.OAuth.Refresh(c.Request.Context(), req.ClientID, req.ClientSecret, req.RefreshToken)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type", "error_description": "Unsupported grant type."})
		return
	}
	if err != nil {
		respondOAuthError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

// Revoke processes RFC 7009 token revocation. Unknown tokens still return
// 200 so callers learn nothing from the response.
func (h *OAuthHandler) Revoke(c *gin.Context) {
	var req struct {
		Token string `form:"token" json:"token"`
		Hint  string `form:"token_type_hint" json:"token_type_hint"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid revocation request."})
		return
	}
	if err := h.OAuth.Revoke(c.Request.Context(), req.Token, req.Hint); err != nil {
		respondOAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// Introspect validates tokens per RFC 7662.
func (h *OAuthHandler) Introspect(c *gin.Context) {
	var req struct {
		Token string `form:"token" json:"token" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "token is required."})
		return
	}
	result, err := h.OAuth.Validate(c.Request.Context(), req.Token)
	if err != nil {
		respondOAuthError(c, err)
		return
	}
	if !result.Active {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active":    true,
		"sub":       result.UserID,
		"scope":     scope.Join(result.Scopes),
		"exp":       result.ExpiresAt,
		"client_id": result.ClientID,
	})
}

// UserInfo returns the subject and grant of the presented access token.
func (h *OAuthHandler) UserInfo(c *gin.Context) {
	userID, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header missing or invalid."})
		return
	}
	scopes, _ := middleware.GetTokenScopes(c)
	c.JSON(http.StatusOK, gin.H{
		"sub":   userID,
		"scope": scope.Join(scopes),
	})
}

// Metadata serves RFC 8414 authorization server metadata.
func (h *OAuthHandler) Metadata(c *gin.Context) {
	issuer := strings.TrimRight(h.Config.Issuer, "/")
	if issuer == "" {
		issuer = schemeOnly(c.Request) + "://" + hostOnly(c.Request)
	}
	c.JSON(http.StatusOK, h.Discovery.Metadata(issuer))
}

func codeRedirect(out *service.AuthorizeOutput) string {
	target, _ := url.Parse(out.RedirectURI)
	query := target.Query()
	query.Set("code", out.Code)
	if out.State != "" {
		query.Set("state", out.State)
	}
	target.RawQuery = query.Encode()
	return target.String()
}

func errorRedirect(redirectErr *service.RedirectError) string {
	target, _ := url.Parse(redirectErr.RedirectURI)
	query := target.Query()
	query.Set("error", redirectErr.Err.Code)
	query.Set("error_description", redirectErr.Err.Description)
	if redirectErr.State != "" {
		query.Set("state", redirectErr.State)
	}
	target.RawQuery = query.Encode()
	return target.String()
}

func respondOAuthError(c *gin.Context, err error) {
	var oauthErr *service.OAuthError
	if errors.As(err, &oauthErr) {
		c.JSON(oauthErr.Status, gin.H{"error": oauthErr.Code, "error_description": oauthErr.Description})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal error."})
}

func hostOnly(r *http.Request) string {
	host := r.Host
	if strings.Contains(host, ":") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			return h
		}
	}
	return host
}

func schemeOnly(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme
}
