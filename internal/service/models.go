package service

import "fmt"

// TokenResponse is the wire shape of a successful token grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// Introspection mirrors RFC 7662: Active false carries no other fields.
type Introspection struct {
	Active    bool
	ClientID  string
	UserID    string
	Scopes    []string
	ExpiresAt int64
}

// OAuthError standardizes OAuth compliant errors.
type OAuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newOAuthError(code, desc string, status int) *OAuthError {
	return &OAuthError{Code: code, Description: desc, Status: status}
}

// RedirectError wraps an authorization failure that occurred after the
// redirect URI was validated; it must be delivered to the client via that
// URI. Earlier failures have no safe redirect target and surface directly.
type RedirectError struct {
	Err         *OAuthError
	RedirectURI string
	State       string
}

func (e *RedirectError) Error() string {
	return e.Err.Error()
}

func (e *RedirectError) Unwrap() error {
	return e.Err
}
