// Package registry manages third-party client application credentials.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
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

var (
	// ErrNoRedirectURIs rejects registrations with an empty redirect set.
	ErrNoRedirectURIs = errors.New("registry: at least one redirect URI is required")
	// ErrInvalidRedirectURI rejects malformed or policy-violating URIs.
	ErrInvalidRedirectURI = errors.New("registry: invalid redirect URI")
	// ErrDisallowedScope rejects scopes outside the catalog. Registration is
	// strict where authorization filters; see the scope package.
	ErrDisallowedScope = errors.New("registry: scope not supported")
	// ErrInvalidAppType rejects unknown application types.
	ErrInvalidAppType = errors.New("registry: invalid application type")
	// ErrNameRequired rejects registrations without a display name.
	ErrNameRequired = errors.New("registry: name is required")
)

// Service implements the client application registry.
type Service struct {
	clients repository.ClientRepository
	tokens  repository.TokenStore
	node    *snowflake.Node
	sink    audit.Sink
	cfg     config.Config
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewService wires the registry.
func NewService(clients repository.ClientRepository, tokens repository.TokenStore, node *snowflake.Node, sink audit.Sink, cfg config.Config, logger *zap.Logger) *Service {
	return &Service{
		clients: clients,
		tokens:  tokens,
		node:    node,
		sink:    sink,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer("github.com/scribehub/scribe-auth/internal/registry"),
	}
}

// CreateInput carries the fields of a registration request.
type CreateInput struct {
	OwnerID      string
	Name         string
	Description  string
	RedirectURIs []string
	Scopes       []string
	AppType      domain.AppType
}

// CreateOutput returns the stored client plus the plaintext secret. The
// secret is shown exactly once; only its argon2id hash is persisted.
type CreateOutput struct {
	Client      domain.ClientApplication
	PlainSecret string
}

// Create validates and registers a new client application.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateOutput, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Create")
	defer span.End()

	if strings.TrimSpace(in.Name) == "" {
		return nil, ErrNameRequired
	}
	if err := s.validateRedirectURIs(in.RedirectURIs); err != nil {
		span.RecordError(err)
		return nil, err
	}

	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = append([]string(nil), scope.Default...)
	}
	if !scope.Validate(scopes) {
		return nil, fmt.Errorf("%w: %s", ErrDisallowedScope, scope.Join(scopes))
	}

	appType := in.AppType
	if appType == "" {
		appType = domain.AppTypeWeb
	}
	if !appType.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAppType, appType)
	}

	clientID, err := secret.NewClientID()
	if err != nil {
		return nil, err
	}
	plainSecret, err := secret.NewClientSecret()
	if err != nil {
		return nil, err
	}
	secretHash, err := secret.Hash(plainSecret)
	if err != nil {
		return nil, fmt.Errorf("hash client secret: %w", err)
	}

	client := domain.ClientApplication{
		ID:           s.node.Generate().Int64(),
		ClientID:     clientID,
		SecretHash:   secretHash,
		OwnerID:      in.OwnerID,
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		RedirectURIs: in.RedirectURIs,
		Scopes:       scopes,
		AppType:      appType,
		Active:       true,
	}

	created, err := s.clients.Create(ctx, client)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.sink.Record(ctx, in.OwnerID, "client.created", map[string]any{
		"client_id": created.ClientID,
		"app_type":  string(created.AppType),
	})
	return &CreateOutput{Client: created, PlainSecret: plainSecret}, nil
}

// List returns the caller's registered applications.
func (s *Service) List(ctx context.Context, ownerID string) ([]domain.ClientApplication, error) {
	return s.clients.ListByOwner(ctx, ownerID)
}

// Get fetches one application. Not-owned reads as not-found.
func (s *Service) Get(ctx context.Context, id int64, ownerID string) (domain.ClientApplication, error) {
	client, err := s.clients.GetByID(ctx, id)
	if err != nil {
		return domain.ClientApplication{}, err
	}
	if client.OwnerID != ownerID {
		return domain.ClientApplication{}, domain.ErrClientNotFound
	}
	return client, nil
}

// Update applies the registry-editable fields of patch.
func (s *Service) Update(ctx context.Context, id int64, ownerID string, patch domain.ClientPatch) (domain.ClientApplication, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Update")
	defer span.End()

	client, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return domain.ClientApplication{}, err
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return domain.ClientApplication{}, ErrNameRequired
		}
		client.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		client.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.RedirectURIs != nil {
		if err := s.validateRedirectURIs(patch.RedirectURIs); err != nil {
			return domain.ClientApplication{}, err
		}
		client.RedirectURIs = patch.RedirectURIs
	}
	if patch.Scopes != nil {
		if !scope.Validate(patch.Scopes) {
			return domain.ClientApplication{}, fmt.Errorf("%w: %s", ErrDisallowedScope, scope.Join(patch.Scopes))
		}
		client.Scopes = patch.Scopes
	}
	if patch.Active != nil {
		client.Active = *patch.Active
	}

	updated, err := s.clients.Update(ctx, client)
	if err != nil {
		span.RecordError(err)
		return domain.ClientApplication{}, err
	}
	s.sink.Record(ctx, ownerID, "client.updated", map[string]any{"client_id": updated.ClientID})
	return updated, nil
}

// Delete removes the application after revoking every token issued to it.
func (s *Service) Delete(ctx context.Context, id int64, ownerID string) error {
	ctx, span := s.tracer.Start(ctx, "registry.Delete")
	defer span.End()

	client, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}

	revoked, err := s.tokens.DeleteByClient(ctx, client.ClientID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke client tokens: %w", err)
	}
	if err := s.clients.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}

	s.sink.Record(ctx, ownerID, "client.deleted", map[string]any{
		"client_id":      client.ClientID,
		"tokens_revoked": revoked,
	})
	return nil
}

func (s *Service) validateRedirectURIs(uris []string) error {
	if len(uris) == 0 {
		return ErrNoRedirectURIs
	}
	for _, raw := range uris {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%w: %q must be absolute", ErrInvalidRedirectURI, raw)
		}
		if parsed.Fragment != "" {
			return fmt.Errorf("%w: %q must not carry a fragment", ErrInvalidRedirectURI, raw)
		}
		switch parsed.Scheme {
		case "https":
		case "http":
			if s.cfg.Production() && !isLoopback(parsed.Hostname()) {
				return fmt.Errorf("%w: %q must use https", ErrInvalidRedirectURI, raw)
			}
		default:
			return fmt.Errorf("%w: %q has unsupported scheme", ErrInvalidRedirectURI, raw)
		}
	}
	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1"
}
