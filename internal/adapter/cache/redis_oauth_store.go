package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scribehub/scribe-auth/internal/domain"
	"github.com/scribehub/scribe-auth/internal/repository"
)

const (
	codePrefix         = "oauth:code:"
	accessTokenPrefix  = "oauth:token:access:"
	refreshTokenPrefix = "oauth:token:refresh:"
	clientTokensPrefix = "oauth:client:"
)

// RedisCodeStore implements CodeStore backed by Redis. Redemption uses
// GETDEL so a code is consumable exactly once even under concurrent
// exchange attempts.
type RedisCodeStore struct {
	client redis.UniversalClient
}

var _ repository.CodeStore = (*RedisCodeStore)(nil)

func NewRedisCodeStore(client redis.UniversalClient) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

func (s *RedisCodeStore) Save(ctx context.Context, code domain.AuthorizationCode, ttl time.Duration) error {
	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshal code: %w", err)
	}
	if err := s.client.Set(ctx, codePrefix+code.Code, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist code: %w", err)
	}
	return nil
}

func (s *RedisCodeStore) Redeem(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	payload, err := s.client.GetDel(ctx, codePrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCodeNotFound
		}
		return nil, fmt.Errorf("redeem code: %w", err)
	}
	var stored domain.AuthorizationCode
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("decode code: %w", err)
	}
	return &stored, nil
}

// RedisTokenStore implements TokenStore backed by Redis. Each pair is
// written under both credential values with independent TTLs; the store's
// native expiry makes an expired access token unreadable without touching
// the refresh record.
type RedisTokenStore struct {
	client redis.UniversalClient
}

var _ repository.TokenStore = (*RedisTokenStore)(nil)

func NewRedisTokenStore(client redis.UniversalClient) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) Save(ctx context.Context, pair domain.TokenPair) error {
	payload, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("marshal token pair: %w", err)
	}
	now := time.Now()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, accessTokenPrefix+pair.AccessToken, payload, pair.AccessExpiresAt.Sub(now))
	pipe.Set(ctx, refreshTokenPrefix+pair.RefreshToken, payload, pair.RefreshExpiresAt.Sub(now))
	pipe.SAdd(ctx, clientTokensKey(pair.ClientID), pair.RefreshToken)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist token pair: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) GetByAccessToken(ctx context.Context, token string) (*domain.TokenPair, error) {
	return s.get(ctx, accessTokenPrefix+token)
}

func (s *RedisTokenStore) GetByRefreshToken(ctx context.Context, token string) (*domain.TokenPair, error) {
	return s.get(ctx, refreshTokenPrefix+token)
}

func (s *RedisTokenStore) get(ctx context.Context, key string) (*domain.TokenPair, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("load token pair: %w", err)
	}
	var pair domain.TokenPair
	if err := json.Unmarshal(payload, &pair); err != nil {
		return nil, fmt.Errorf("decode token pair: %w", err)
	}
	return &pair, nil
}

// Rotate removes the old pair and writes the next one in a single
// transaction so the used refresh token can never mint twice.
func (s *RedisTokenStore) Rotate(ctx context.Context, old, next domain.TokenPair) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal token pair: %w", err)
	}
	now := time.Now()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, accessTokenPrefix+old.AccessToken, refreshTokenPrefix+old.RefreshToken)
	pipe.SRem(ctx, clientTokensKey(old.ClientID), old.RefreshToken)
	pipe.Set(ctx, accessTokenPrefix+next.AccessToken, payload, next.AccessExpiresAt.Sub(now))
	pipe.Set(ctx, refreshTokenPrefix+next.RefreshToken, payload, next.RefreshExpiresAt.Sub(now))
	pipe.SAdd(ctx, clientTokensKey(next.ClientID), next.RefreshToken)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rotate token pair: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, pair domain.TokenPair) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, accessTokenPrefix+pair.AccessToken, refreshTokenPrefix+pair.RefreshToken)
	pipe.SRem(ctx, clientTokensKey(pair.ClientID), pair.RefreshToken)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete token pair: %w", err)
	}
	return nil
}

// DeleteByClient revokes every live pair issued to the client. Stale set
// members whose records already expired are skipped.
func (s *RedisTokenStore) DeleteByClient(ctx context.Context, clientID string) (int, error) {
	setKey := clientTokensKey(clientID)
	refreshTokens, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("list client tokens: %w", err)
	}

	revoked := 0
	for _, refresh := range refreshTokens {
		pair, err := s.GetByRefreshToken(ctx, refresh)
		if err != nil {
			if errors.Is(err, domain.ErrTokenNotFound) {
				continue
			}
			return revoked, err
		}
		if err := s.Delete(ctx, *pair); err != nil {
			return revoked, err
		}
		revoked++
	}

	if err := s.client.Del(ctx, setKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return revoked, fmt.Errorf("delete client token index: %w", err)
	}
	return revoked, nil
}

func clientTokensKey(clientID string) string {
	return clientTokensPrefix + clientID + ":tokens"
}
