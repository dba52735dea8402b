package service

import (
	"fmt"

	"github.com/scribehub/scribe-auth/internal/scope"
)

// DiscoveryService builds responses for discovery endpoints.
type DiscoveryService struct{}

// AuthorizationServerMetadata follows RFC 8414 discovery output.
type AuthorizationServerMetadata struct {
	Issuer                 string   `json:"issuer"`
	AuthorizationEndpoint  string   `json:"authorization_endpoint"`
	TokenEndpoint          string   `json:"token_endpoint"`
	RevocationEndpoint     string   `json:"revocation_endpoint"`
	IntrospectionEndpoint  string   `json:"introspection_endpoint"`
	UserinfoEndpoint       string   `json:"userinfo_endpoint"`
	ScopesSupported        []string `json:"scopes_supported"`
	ResponseTypesSupported []string `json:"response_types_supported"`
	GrantTypesSupported    []string `json:"grant_types_supported"`
	TokenEndpointAuth      []string `json:"token_endpoint_auth_methods_supported"`
}

// Metadata builds the discovery document for the issuer base URL.
func (s *DiscoveryService) Metadata(issuer string) AuthorizationServerMetadata {
	return AuthorizationServerMetadata{
		Issuer:                 issuer,
		AuthorizationEndpoint:  fmt.Sprintf("%s/oauth/authorize", issuer),
		TokenEndpoint:          fmt.Sprintf("%s/oauth/token", issuer),
		RevocationEndpoint:     fmt.Sprintf("%s/oauth/revoke", issuer),
		IntrospectionEndpoint:  fmt.Sprintf("%s/oauth/introspect", issuer),
		UserinfoEndpoint:       fmt.Sprintf("%s/oauth/userinfo", issuer),
		ScopesSupported:        scope.All(),
		ResponseTypesSupported: []string{responseTypeCode},
		GrantTypesSupported:    []string{grantTypeAuthCode, grantTypeRefresh},
		TokenEndpointAuth:      []string{"client_secret_post"},
	}
}
