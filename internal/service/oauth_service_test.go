package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scribehub/scribe-auth/internal/audit"
	"github.com/scribehub/scribe-auth/internal/config"
	"github.com/scribehub/scribe-auth/internal/domain"
	"github.com/scribehub/scribe-auth/internal/secret"
)

type memClientRepo struct {
	clients map[string]domain.ClientApplication
}

func (r *memClientRepo) Create(ctx context.Context, client domain.ClientApplication) (domain.ClientApplication, error) {
	r.clients[client.ClientID] = client
	return client, nil
}

func (r *memClientRepo) GetByID(ctx context.Context, id int64) (domain.ClientApplication, error) {
	for _, client := range r.clients {
		if client.ID == id {
			return client, nil
		}
	}
	return domain.ClientApplication{}, domain.ErrClientNotFound
}

func (r *memClientRepo) GetByClientID(ctx context.Context, clientID string) (domain.ClientApplication, error) {
	client, ok := r.clients[clientID]
	if !ok {
		return domain.ClientApplication{}, domain.ErrClientNotFound
	}
	return client, nil
}

func (r *memClientRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.ClientApplication, error) {
	var out []domain.ClientApplication
	for _, client := range r.clients {
		if client.OwnerID == ownerID {
			out = append(out, client)
		}
	}
	return out, nil
}

func (r *memClientRepo) Update(ctx context.Context, client domain.ClientApplication) (domain.ClientApplication, error) {
	r.clients[client.ClientID] = client
	return client, nil
}

func (r *memClientRepo) Delete(ctx context.Context, id int64) error {
	for key, client := range r.clients {
		if client.ID == id {
			delete(r.clients, key)
			return nil
		}
	}
	return domain.ErrClientNotFound
}

type memCodeStore struct {
	mu    sync.Mutex
	codes map[string]domain.AuthorizationCode
}

func (s *memCodeStore) Save(ctx context.Context, code domain.AuthorizationCode, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.Code] = code
	return nil
}

func (s *memCodeStore) Redeem(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[code]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	delete(s.codes, code)
	return &stored, nil
}

type memTokenStore struct {
	mu        sync.Mutex
	byAccess  map[string]domain.TokenPair
	byRefresh map[string]domain.TokenPair
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{
		byAccess:  make(map[string]domain.TokenPair),
		byRefresh: make(map[string]domain.TokenPair),
	}
}

func (s *memTokenStore) Save(ctx context.Context, pair domain.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAccess[pair.AccessToken] = pair
	s.byRefresh[pair.RefreshToken] = pair
	return nil
}

func (s *memTokenStore) GetByAccessToken(ctx context.Context, token string) (*domain.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, ok := s.byAccess[token]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return &pair, nil
}

func (s *memTokenStore) GetByRefreshToken(ctx context.Context, token string) (*domain.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, ok := s.byRefresh[token]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return &pair, nil
}

func (s *memTokenStore) Rotate(ctx context.Context, old, next domain.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byAccess, old.AccessToken)
	delete(s.byRefresh, old.RefreshToken)
	s.byAccess[next.AccessToken] = next
	s.byRefresh[next.RefreshToken] = next
	return nil
}

func (s *memTokenStore) Delete(ctx context.Context, pair domain.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byAccess, pair.AccessToken)
	delete(s.byRefresh, pair.RefreshToken)
	return nil
}

func (s *memTokenStore) DeleteByClient(ctx context.Context, clientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := 0
	for _, pair := range s.byRefresh {
		if pair.ClientID == clientID {
			delete(s.byAccess, pair.AccessToken)
			delete(s.byRefresh, pair.RefreshToken)
			revoked++
		}
	}
	return revoked, nil
}

const (
	testClientSecret = "s3cret-value"
	testRedirectURI  = "https://app.example.com/callback"
)

type testHarness struct {
	svc    *OAuthService
	codes  *memCodeStore
	tokens *memTokenStore
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	hash, err := secret.Hash(testClientSecret)
	require.NoError(t, err)

	clients := &memClientRepo{clients: map[string]domain.ClientApplication{
		"sc_test": {
			ID:           1,
			ClientID:     "sc_test",
			SecretHash:   hash,
			OwnerID:      "owner-1",
			Name:         "Test App",
			RedirectURIs: []string{testRedirectURI},
			Scopes:       []string{"documents:read", "ephemeral:process"},
			AppType:      domain.AppTypeWeb,
			Active:       true,
		},
	}}
	codes := &memCodeStore{codes: make(map[string]domain.AuthorizationCode)}
	tokens := newMemTokenStore()

	cfg := config.Config{
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 720 * time.Hour,
		AuthCodeTTL:     10 * time.Minute,
		TokenBytes:      32,
	}
	svc := NewOAuthService(clients, codes, tokens, audit.Nop{}, cfg, zap.NewNop())
	return &testHarness{svc: svc, codes: codes, tokens: tokens}
}

func (h *testHarness) authorize(t *testing.T, scope string) *AuthorizeOutput {
	t.Helper()
	out, err := h.svc.Authorize(context.Background(), AuthorizeInput{
		ClientID:     "sc_test",
		RedirectURI:  testRedirectURI,
		ResponseType: "code",
		Scope:        scope,
		State:        "xyz",
		UserID:       "user-1",
	})
	require.NoError(t, err)
	return out
}

func TestAuthorizeIssuesCode(t *testing.T) {
	h := newTestHarness(t)

	out := h.authorize(t, "documents:read ephemeral:process")
	require.NotEmpty(t, out.Code)
	require.Equal(t, testRedirectURI, out.RedirectURI)
	require.Equal(t, "xyz", out.State)
	require.Equal(t, []string{"documents:read", "ephemeral:process"}, out.Granted)
}

func TestAuthorizeRejectsUnregisteredRedirect(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.svc.Authorize(context.Background(), AuthorizeInput{
		ClientID:     "sc_test",
		RedirectURI:  "https://evil.example.com/callback",
		ResponseType: "code",
		UserID:       "user-1",
	})
	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, "invalid_request", oauthErr.Code)
	require.Empty(t, h.codes.codes)
}

func TestAuthorizeUnsupportedResponseTypeRedirects(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.svc.Authorize(context.Background(), AuthorizeInput{
		ClientID:     "sc_test",
		RedirectURI:  testRedirectURI,
		ResponseType: "token",
		State:        "abc",
		UserID:       "user-1",
	})
	var redirectErr *RedirectError
	require.ErrorAs(t, err, &redirectErr)
	require.Equal(t, "unsupported_response_type", redirectErr.Err.Code)
	require.Equal(t, testRedirectURI, redirectErr.RedirectURI)
	require.Equal(t, "abc", redirectErr.State)
}

func TestAuthorizeFiltersUnknownScopes(t *testing.T) {
	h := newTestHarness(t)

	out := h.authorize(t, "documents:read bogus:scope")
	require.Equal(t, []string{"documents:read"}, out.Granted)
}

func TestExchangeCodeSingleUse(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	out := h.authorize(t, "documents:read")

	resp, err := h.svc.ExchangeCode(ctx, "sc_test", testClientSecret, out.Code, testRedirectURI, "authorization_code")
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, 3600, resp.ExpiresIn)

	_, err = h.svc.ExchangeCode(ctx, "sc_test", testClientSecret, out.Code, testRedirectURI, "authorization_code")
	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, "invalid_grant", oauthErr.Code)
}

func TestExchangeCodeRejectsMismatchedRedirect(t *testing.T) {
	h := newTestHarness(t)

	out := h.authorize(t, "documents:read")

	_, err := h.svc.ExchangeCode(context.Background(), "sc_test", testClientSecret, out.Code, "https://app.example.com/other", "authorization_code")
	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, "invalid_grant", oauthErr.Code)
}

func TestExchangeCodeRejectsExpiredCode(t *testing.T) {
	h := newTestHarness(t)

	issued := time.Now()
	out := h.authorize(t, "documents:read")

	h.svc.now = func() time.Time { return issued.Add(11 * time.Minute) }
	_, err := h.svc.ExchangeCode(context.Background(), "sc_test", testClientSecret, out.Code, testRedirectURI, "authorization_code")
	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, "invalid_grant", oauthErr.Code)
}

func TestExchangeCodeRejectsBadClientSecret(t *testing.T) {
	h := newTestHarness(t)

	out := h.authorize(t, "documents:read")

	_, err := h.svc.ExchangeCode(context.Background(), "sc_test", "wrong-secret", out.Code, testRedirectURI, "authorization_code")
	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, "invalid_client", oauthErr.Code)
	require.Equal(t, 401, oauthErr.Status)
}

func TestValidateTokenLifetimeBoundary(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	issued := time.Now()
	h.svc.now = func() time.Time { return issued }

	out := h.authorize(t, "documents:read")
	resp, err := h.svc.ExchangeCode(ctx, "sc_test", testClientSecret, out.Code, testRedirectURI, "authorization_code")
	require.NoError(t, err)

	h.svc.now = func() time.Time { return issued.Add(time.Hour - time.Second) }
	info, err := h.svc.Validate(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, "user-1", info.UserID)
	require.Equal(t, "sc_test", info.ClientID)

	h.svc.now = func() time.Time { return issued.Add(time.Hour + time.Second) }
	info, err = h.svc.Validate(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.False(t, info.Active)
}

func TestValidateUnknownTokenInactive(t *testing.T) {
	h := newTestHarness(t)

	info, err := h.svc.Validate(context.Background(), "nonsense")
	require.NoError(t, err)
	require.False(t, info.Active)
}

func TestRefreshRotatesPair(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	out := h.authorize(t, "documents:read")
	first, err := h.svc.ExchangeCode(ctx, "sc_test", testClientSecret, out.Code, testRedirectURI, "authorization_code")
	require.NoError(t, err)

	second, err := h.svc.Refresh(ctx, "sc_test", testClientSecret, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, first.Scope, second.Scope)

	// The used refresh token is gone; replaying it fails.
	_, err = h.svc.Refresh(ctx, "sc_test", testClientSecret, first.RefreshToken)
	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, "invalid_grant", oauthErr.Code)

	// The rotated-out access token is gone too.
	info, err := h.svc.Validate(ctx, first.AccessToken)
	require.NoError(t, err)
	require.False(t, info.Active)
}

func TestRevokeIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	out := h.authorize(t, "documents:read")
	resp, err := h.svc.ExchangeCode(ctx, "sc_test", testClientSecret, out.Code, testRedirectURI, "authorization_code")
	require.NoError(t, err)

	require.NoError(t, h.svc.Revoke(ctx, resp.AccessToken, ""))

	info, err := h.svc.Validate(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.False(t, info.Active)

	// Revoking again, an unknown token, or nothing at all still succeeds.
	require.NoError(t, h.svc.Revoke(ctx, resp.AccessToken, ""))
	require.NoError(t, h.svc.Revoke(ctx, "never-issued", "refresh_token"))
	require.NoError(t, h.svc.Revoke(ctx, "", ""))
}

func TestRevokeByRefreshTokenKillsPair(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	out := h.authorize(t, "documents:read")
	resp, err := h.svc.ExchangeCode(ctx, "sc_test", testClientSecret, out.Code, testRedirectURI, "authorization_code")
	require.NoError(t, err)

	require.NoError(t, h.svc.Revoke(ctx, resp.RefreshToken, "refresh_token"))

	info, err := h.svc.Validate(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.False(t, info.Active)

	_, err = h.svc.Refresh(ctx, "sc_test", testClientSecret, resp.RefreshToken)
	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, "invalid_grant", oauthErr.Code)
}

func TestAuthorizeUnknownClient(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.svc.Authorize(context.Background(), AuthorizeInput{
		ClientID:     "sc_missing",
		RedirectURI:  testRedirectURI,
		ResponseType: "code",
		UserID:       "user-1",
	})
	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, "invalid_client", oauthErr.Code)
	require.False(t, errors.Is(err, domain.ErrClientNotFound))
}
