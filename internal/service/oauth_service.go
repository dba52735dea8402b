// Package service implements the OAuth2 authorization and token flows:
// code issuance, exchange, refresh rotation, revocation, and introspection.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/scribehub/scribe-auth/internal/audit"
	"github.com/scribehub/scribe-auth/internal/config"
	"github.com/scribehub/scribe-auth/internal/domain"
	"github.com/scribehub/scribe-auth/internal/repository"
	"github.com/scribehub/scribe-auth/internal/scope"
	"github.com/scribehub/scribe-auth/internal/secret"
)

const (
	responseTypeCode  = "code"
	grantTypeAuthCode = "authorization_code"
	grantTypeRefresh  = "refresh_token"

	hintAccessToken  = "access_token"
	hintRefreshToken = "refresh_token"
)

// OAuthService runs the authorization-code protocol against the client
// registry and the code/token stores.
type OAuthService struct {
	clients repository.ClientRepository
	codes   repository.CodeStore
	tokens  repository.TokenStore
	sink    audit.Sink
	cfg     config.Config
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewOAuthService wires dependencies.
func NewOAuthService(clients repository.ClientRepository, codes repository.CodeStore, tokens repository.TokenStore, sink audit.Sink, cfg config.Config, logger *zap.Logger) *OAuthService {
	return &OAuthService{
		clients: clients,
		codes:   codes,
		tokens:  tokens,
		sink:    sink,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer("github.com/scribehub/scribe-auth/internal/service"),
		now:     time.Now,
	}
}

// AuthorizeInput carries the /authorize query parameters plus the resource
// owner established by the external authentication step.
type AuthorizeInput struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scope        string
	State        string
	UserID       string
}

// AuthorizeOutput returns the issued code and the redirect target the
// handler sends the user agent back to.
type AuthorizeOutput struct {
	Code        string
	RedirectURI string
	State       string
	Granted     []string
}

// Authorize validates the request and issues a single-use authorization
// code. Failures after the redirect URI has been validated come back as
// *RedirectError so the handler can deliver them to the client; earlier
// failures surface as *OAuthError directly.
func (s *OAuthService) Authorize(ctx context.Context, in AuthorizeInput) (*AuthorizeOutput, error) {
	ctx, span := s.tracer.Start(ctx, "OAuthService.Authorize")
	defer span.End()

	client, err := s.clients.GetByClientID(ctx, strings.TrimSpace(in.ClientID))
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			return nil, newOAuthError("invalid_client", "Unknown client.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load client: %w", err)
	}
	if !client.Active {
		return nil, newOAuthError("invalid_client", "Client is deactivated.", http.StatusBadRequest)
	}

	redirectURI := strings.TrimSpace(in.RedirectURI)
	if redirectURI == "" || !client.AllowsRedirectURI(redirectURI) {
		s.sink.Record(ctx, in.UserID, "authorize.rejected", map[string]any{
			"client_id": client.ClientID,
			"reason":    "redirect_uri not registered",
		})
		return nil, newOAuthError("invalid_request", "redirect_uri is not registered for this client.", http.StatusBadRequest)
	}

	// From here on the redirect target is trusted; protocol errors are
	// delivered through it.
	if !strings.EqualFold(strings.TrimSpace(in.ResponseType), responseTypeCode) {
		return nil, &RedirectError{
			Err:         newOAuthError("unsupported_response_type", "Only response_type=code is supported.", http.StatusBadRequest),
			RedirectURI: redirectURI,
			State:       in.State,
		}
	}

	grant := scope.Filter(scope.Parse(in.Scope))
	if len(grant.Dropped) > 0 {
		s.log().Debug("dropped unsupported scopes",
			zap.String("client_id", client.ClientID),
			zap.Strings("dropped", grant.Dropped))
	}

	codeValue, err := secret.NewToken(s.cfg.TokenBytes)
	if err != nil {
		return nil, s.redirectServerError(redirectURI, in.State, fmt.Errorf("generate code: %w", err))
	}

	now := s.now()
	record := domain.AuthorizationCode{
		Code:        codeValue,
		ClientID:    client.ClientID,
		UserID:      in.UserID,
		RedirectURI: redirectURI,
		Scopes:      grant.Granted,
		State:       in.State,
		ExpiresAt:   now.Add(s.cfg.AuthCodeTTL),
		CreatedAt:   now,
	}
	if err := s.codes.Save(ctx, record, s.cfg.AuthCodeTTL); err != nil {
		span.RecordError(err)
		return nil, s.redirectServerError(redirectURI, in.State, fmt.Errorf("persist code: %w", err))
	}

	s.sink.Record(ctx, in.UserID, "authorize.code_issued", map[string]any{
		"client_id": client.ClientID,
		"scope":     scope.Join(grant.Granted),
	})
	return &AuthorizeOutput{
		Code:        codeValue,
		RedirectURI: redirectURI,
		State:       in.State,
		Granted:     grant.Granted,
	}, nil
}

// ExchangeCode redeems an authorization code for a token pair. Redemption is
// atomic: the store hands the code out at most once, so a concurrent replay
// fails before validation begins.
func (s *OAuthService) ExchangeCode(ctx context.Context, clientID, clientSecret, code, redirectURI, grantType string) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "OAuthService.ExchangeCode")
	defer span.End()

	if !strings.EqualFold(grantType, grantTypeAuthCode) {
		return nil, newOAuthError("unsupported_grant_type", "Unsupported grant type.", http.StatusBadRequest)
	}
	client, oauthErr := s.authenticateClient(ctx, clientID, clientSecret)
	if oauthErr != nil {
		s.sink.Record(ctx, "", "token.client_auth_failed", map[string]any{"client_id": clientID})
		return nil, oauthErr
	}

	stored, err := s.codes.Redeem(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) {
			s.sink.Record(ctx, "", "token.code_rejected", map[string]any{"client_id": client.ClientID})
			return nil, newOAuthError("invalid_grant", "Invalid authorization code.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("redeem code: %w", err)
	}
	if stored.ClientID != client.ClientID || s.now().After(stored.ExpiresAt) {
		return nil, newOAuthError("invalid_grant", "Invalid authorization code.", http.StatusBadRequest)
	}
	if stored.RedirectURI != strings.TrimSpace(redirectURI) {
		return nil, newOAuthError("invalid_grant", "Mismatched redirect_uri.", http.StatusBadRequest)
	}

	pair, err := s.issuePair(ctx, client.ClientID, stored.UserID, stored.Scopes)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.sink.Record(ctx, stored.UserID, "token.issued", map[string]any{
		"client_id": client.ClientID,
		"scope":     scope.Join(stored.Scopes),
	})
	return s.tokenResponse(pair), nil
}

// Refresh rotates the pair bound to refreshToken. The used refresh token is
// invalidated as part of the same store transaction.
func (s *OAuthService) Refresh(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "OAuthService.Refresh")
	defer span.End()

	client, oauthErr := s.authenticateClient(ctx, clientID, clientSecret)
	if oauthErr != nil {
		return nil, oauthErr
	}

	old, err := s.tokens.GetByRefreshToken(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, newOAuthError("invalid_grant", "Invalid refresh token.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if old.ClientID != client.ClientID || !old.RefreshActive(s.now()) {
		return nil, newOAuthError("invalid_grant", "Invalid refresh token.", http.StatusBadRequest)
	}

	next, err := s.newPair(client.ClientID, old.UserID, old.Scopes)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Rotate(ctx, *old, next); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rotate token pair: %w", err)
	}

	s.sink.Record(ctx, old.UserID, "token.refreshed", map[string]any{"client_id": client.ClientID})
	return s.tokenResponse(next), nil
}

// Validate resolves an access token to its bound identity. Unknown and
// expired tokens both come back inactive; lookups fail closed on store
// errors.
func (s *OAuthService) Validate(ctx context.Context, token string) (*Introspection, error) {
	pair, err := s.tokens.GetByAccessToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return &Introspection{Active: false}, nil
		}
		return nil, fmt.Errorf("load access token: %w", err)
	}
	if !pair.AccessActive(s.now()) {
		return &Introspection{Active: false}, nil
	}
	return &Introspection{
		Active:    true,
		ClientID:  pair.ClientID,
		UserID:    pair.UserID,
		Scopes:    pair.Scopes,
		ExpiresAt: pair.AccessExpiresAt.Unix(),
	}, nil
}

// Revoke deletes the pair addressed by token. Unknown tokens still succeed
// per RFC 7009; revocation is idempotent.
func (s *OAuthService) Revoke(ctx context.Context, token, hint string) error {
	ctx, span := s.tracer.Start(ctx, "OAuthService.Revoke")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	lookups := []func(context.Context, string) (*domain.TokenPair, error){
		s.tokens.GetByAccessToken,
		s.tokens.GetByRefreshToken,
	}
	if strings.EqualFold(hint, hintRefreshToken) {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}

	for _, lookup := range lookups {
		pair, err := lookup(ctx, token)
		if err != nil {
			if errors.Is(err, domain.ErrTokenNotFound) {
				continue
			}
			span.RecordError(err)
			return fmt.Errorf("lookup token: %w", err)
		}
		if err := s.tokens.Delete(ctx, *pair); err != nil {
			span.RecordError(err)
			return fmt.Errorf("delete token pair: %w", err)
		}
		s.sink.Record(ctx, pair.UserID, "token.revoked", map[string]any{"client_id": pair.ClientID})
		return nil
	}
	return nil
}

func (s *OAuthService) authenticateClient(ctx context.Context, clientID, clientSecret string) (*domain.ClientApplication, *OAuthError) {
	client, err := s.clients.GetByClientID(ctx, strings.TrimSpace(clientID))
	if err != nil {
		return nil, newOAuthError("invalid_client", "Client authentication failed.", http.StatusUnauthorized)
	}
	ok, err := secret.Verify(clientSecret, client.SecretHash)
	if err != nil || !ok || !client.Active {
		return nil, newOAuthError("invalid_client", "Client authentication failed.", http.StatusUnauthorized)
	}
	return &client, nil
}

func (s *OAuthService) newPair(clientID, userID string, scopes []string) (domain.TokenPair, error) {
	access, err := secret.NewToken(s.cfg.TokenBytes)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := secret.NewToken(s.cfg.TokenBytes)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}
	now := s.now()
	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ClientID:         clientID,
		UserID:           userID,
		Scopes:           scopes,
		AccessExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt:        now,
	}, nil
}

func (s *OAuthService) issuePair(ctx context.Context, clientID, userID string, scopes []string) (domain.TokenPair, error) {
	pair, err := s.newPair(clientID, userID, scopes)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := s.tokens.Save(ctx, pair); err != nil {
		return domain.TokenPair{}, fmt.Errorf("persist token pair: %w", err)
	}
	return pair, nil
}

func (s *OAuthService) tokenResponse(pair domain.TokenPair) *TokenResponse {
	return &TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: pair.RefreshToken,
		Scope:        scope.Join(pair.Scopes),
	}
}

func (s *OAuthService) redirectServerError(redirectURI, state string, err error) error {
	s.log().Error("authorize failed", zap.Error(err))
	return &RedirectError{
		Err:         newOAuthError("server_error", "Internal server error.", http.StatusInternalServerError),
		RedirectURI: redirectURI,
		State:       state,
	}
}

func (s *OAuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
