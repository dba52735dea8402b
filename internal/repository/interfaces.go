package repository

import (
	"context"
	"time"

	"github.com/scribehub/scribe-auth/internal/domain"
	"github.com/scribehub/scribe-auth/internal/domain/ephemeral"
)

// ClientRepository persists registered client applications. Not-found and
// not-owned both surface as domain.ErrClientNotFound.
type ClientRepository interface {
	Create(ctx context.Context, client domain.ClientApplication) (domain.ClientApplication, error)
	GetByID(ctx context.Context, id int64) (domain.ClientApplication, error)
	GetByClientID(ctx context.Context, clientID string) (domain.ClientApplication, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.ClientApplication, error)
	Update(ctx context.Context, client domain.ClientApplication) (domain.ClientApplication, error)
	Delete(ctx context.Context, id int64) error
}

// CodeStore holds authorization codes for their short lifetime. Redeem must
// be atomic: a code is observable by at most one successful Redeem call.
type CodeStore interface {
	Save(ctx context.Context, code domain.AuthorizationCode, ttl time.Duration) error
	Redeem(ctx context.Context, code string) (*domain.AuthorizationCode, error)
}

// TokenStore persists issued token pairs, addressable by either credential
// value. Rotate atomically replaces old with next so the prior refresh token
// becomes unusable. Delete is idempotent.
type TokenStore interface {
	Save(ctx context.Context, pair domain.TokenPair) error
	GetByAccessToken(ctx context.Context, token string) (*domain.TokenPair, error)
	GetByRefreshToken(ctx context.Context, token string) (*domain.TokenPair, error)
	Rotate(ctx context.Context, old, next domain.TokenPair) error
	Delete(ctx context.Context, pair domain.TokenPair) error
	DeleteByClient(ctx context.Context, clientID string) (int, error)
}

// SessionStore is the authoritative TTL store for ephemeral sessions. Get
// returns nil without error when the record is gone. IncrementFileCount is
// the atomic increment-and-check guarding maxFiles under concurrency; it
// returns ephemeral.ErrFileLimitExceeded once max is reached.
type SessionStore interface {
	Save(ctx context.Context, session ephemeral.Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*ephemeral.Session, error)
	ListIDs(ctx context.Context) ([]string, error)
	IncrementFileCount(ctx context.Context, id string, max int) (int, error)
	Delete(ctx context.Context, id string) (int, error)
}

// FileStore holds encrypted file blobs and processing results under a
// session's remaining TTL. DeleteBySession removes every artifact and
// reports how many keys went away.
type FileStore interface {
	SaveFile(ctx context.Context, file ephemeral.File, ttl time.Duration) error
	GetFile(ctx context.Context, sessionID, fileID string) (*ephemeral.File, error)
	SaveResult(ctx context.Context, result ephemeral.Result, ttl time.Duration) error
	GetResult(ctx context.Context, sessionID, fileID string) (*ephemeral.Result, error)
	DeleteBySession(ctx context.Context, sessionID string) (int, error)
}

// ShareStore persists share links keyed by token. IncrementAccess is the
// atomic access-count check; it returns ephemeral.ErrShareNotFound once the
// max is exhausted.
type ShareStore interface {
	Save(ctx context.Context, link ephemeral.ShareLink, ttl time.Duration) error
	Get(ctx context.Context, token string) (*ephemeral.ShareLink, error)
	IncrementAccess(ctx context.Context, token string, max int) (int, error)
	Delete(ctx context.Context, token string) error
	DeleteBySession(ctx context.Context, sessionID string) (int, error)
}
