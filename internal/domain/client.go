package domain

import "time"

// AppType classifies a registered client application.
type AppType string

const (
	AppTypeWeb    AppType = "web"
	AppTypeNative AppType = "native"
	AppTypeSPA    AppType = "spa"
)

// Valid reports whether the app type is one of the supported kinds.
func (t AppType) Valid() bool {
	switch t {
	case AppTypeWeb, AppTypeNative, AppTypeSPA:
		return true
	}
	return false
}

// ClientApplication is a registered third-party integration. SecretHash holds
// the argon2id digest of the client secret; the plaintext is returned to the
// owner exactly once, at creation.
type ClientApplication struct {
	ID           int64
	ClientID     string
	SecretHash   string
	OwnerID      string
	Name         string
	Description  string
	RedirectURIs []string
	Scopes       []string
	AppType      AppType
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AllowsRedirectURI reports whether uri is an exact member of the registered
// redirect set.
func (c ClientApplication) AllowsRedirectURI(uri string) bool {
	for _, allowed := range c.RedirectURIs {
		if allowed == uri {
			return true
		}
	}
	return false
}

// ClientPatch carries the registry-editable fields of a client application.
// Nil fields are left unchanged.
type ClientPatch struct {
	Name         *string
	Description  *string
	RedirectURIs []string
	Scopes       []string
	Active       *bool
}
