package domain

import "time"

// AuthorizationCode models a short-lived, single-use proof of user consent.
type AuthorizationCode struct {
	Code        string    `json:"code"`
	ClientID    string    `json:"client_id"`
	UserID      string    `json:"user_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scopes      []string  `json:"scopes"`
	State       string    `json:"state,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// TokenPair is an issued access/refresh credential pair. Both values are
// opaque; validity is decided by store lookup plus the expiry timestamps.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ClientID         string    `json:"client_id"`
	UserID           string    `json:"user_id"`
	Scopes           []string  `json:"scopes"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// AccessActive reports whether the access token is still usable at now.
func (p TokenPair) AccessActive(now time.Time) bool {
	return now.Before(p.AccessExpiresAt)
}

// RefreshActive reports whether the refresh token is still usable at now.
func (p TokenPair) RefreshActive(now time.Time) bool {
	return now.Before(p.RefreshExpiresAt)
}
