package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scribehub/scribe-auth/internal/domain/ephemeral"
	"github.com/scribehub/scribe-auth/internal/repository"
)

const (
	sessionPrefix    = "ephemeral:session:"
	sessionIndexKey  = "ephemeral:sessions"
	filePrefix       = "ephemeral:file:"
	resultPrefix     = "ephemeral:result:"
	sharePrefix      = "ephemeral:share:"
	countSuffix      = ":count"
	artifactsSuffix  = ":artifacts"
	sharesSuffix     = ":shares"
	shareCountSuffix = ":access"
)

// RedisSessionStore implements SessionStore. Redis key TTLs are the
// authoritative deletion mechanism; the separate counter key makes the
// processed-file check a single atomic INCR.
type RedisSessionStore struct {
	client redis.UniversalClient
}

var _ repository.SessionStore = (*RedisSessionStore)(nil)

func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Save(ctx context.Context, session ephemeral.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	key := sessionPrefix + session.ID
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, payload, ttl)
	pipe.SetNX(ctx, key+countSuffix, session.ProcessedFiles, ttl)
	pipe.Expire(ctx, key+countSuffix, ttl)
	pipe.SAdd(ctx, sessionIndexKey, session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*ephemeral.Session, error) {
	key := sessionPrefix + id
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session ephemeral.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	// The counter key is the source of truth for processed files; the JSON
	// copy lags behind concurrent processing calls.
	if count, err := s.client.Get(ctx, key+countSuffix).Int(); err == nil {
		session.ProcessedFiles = count
	}
	return &session, nil
}

func (s *RedisSessionStore) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, sessionIndexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

func (s *RedisSessionStore) IncrementFileCount(ctx context.Context, id string, max int) (int, error) {
	key := sessionPrefix + id + countSuffix
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment file count: %w", err)
	}
	if int(count) > max {
		if err := s.client.Decr(ctx, key).Err(); err != nil {
			return 0, fmt.Errorf("rollback file count: %w", err)
		}
		return max, ephemeral.ErrFileLimitExceeded
	}
	return int(count), nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) (int, error) {
	key := sessionPrefix + id
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, key, key+countSuffix)
	pipe.SRem(ctx, sessionIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}
	return int(del.Val()), nil
}

// RedisFileStore implements FileStore. Every artifact key is tracked in a
// per-session set so cascade deletion can enumerate without SCAN.
type RedisFileStore struct {
	client redis.UniversalClient
}

var _ repository.FileStore = (*RedisFileStore)(nil)

func NewRedisFileStore(client redis.UniversalClient) *RedisFileStore {
	return &RedisFileStore{client: client}
}

func (s *RedisFileStore) SaveFile(ctx context.Context, file ephemeral.File, ttl time.Duration) error {
	key := filePrefix + file.SessionID + ":" + file.ID
	return s.saveArtifact(ctx, file.SessionID, key, file, ttl)
}

func (s *RedisFileStore) GetFile(ctx context.Context, sessionID, fileID string) (*ephemeral.File, error) {
	payload, err := s.client.Get(ctx, filePrefix+sessionID+":"+fileID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load file: %w", err)
	}
	var file ephemeral.File
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}
	return &file, nil
}

func (s *RedisFileStore) SaveResult(ctx context.Context, result ephemeral.Result, ttl time.Duration) error {
	key := resultPrefix + result.SessionID + ":" + result.FileID
	return s.saveArtifact(ctx, result.SessionID, key, result, ttl)
}

func (s *RedisFileStore) GetResult(ctx context.Context, sessionID, fileID string) (*ephemeral.Result, error) {
	payload, err := s.client.Get(ctx, resultPrefix+sessionID+":"+fileID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load result: %w", err)
	}
	var result ephemeral.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

func (s *RedisFileStore) saveArtifact(ctx context.Context, sessionID, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	setKey := sessionPrefix + sessionID + artifactsSuffix
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, payload, ttl)
	pipe.SAdd(ctx, setKey, key)
	pipe.Expire(ctx, setKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist artifact: %w", err)
	}
	return nil
}

func (s *RedisFileStore) DeleteBySession(ctx context.Context, sessionID string) (int, error) {
	setKey := sessionPrefix + sessionID + artifactsSuffix
	keys, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("list session artifacts: %w", err)
	}
	deleted := 0
	if len(keys) > 0 {
		n, err := s.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("delete session artifacts: %w", err)
		}
		deleted = int(n)
	}
	if err := s.client.Del(ctx, setKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return deleted, fmt.Errorf("delete artifact index: %w", err)
	}
	return deleted, nil
}

// RedisShareStore implements ShareStore.
type RedisShareStore struct {
	client redis.UniversalClient
}

var _ repository.ShareStore = (*RedisShareStore)(nil)

func NewRedisShareStore(client redis.UniversalClient) *RedisShareStore {
	return &RedisShareStore{client: client}
}

func (s *RedisShareStore) Save(ctx context.Context, link ephemeral.ShareLink, ttl time.Duration) error {
	payload, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("marshal share: %w", err)
	}
	key := sharePrefix + link.Token
	setKey := sessionPrefix + link.SessionID + sharesSuffix
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, payload, ttl)
	pipe.Set(ctx, key+shareCountSuffix, 0, ttl)
	pipe.SAdd(ctx, setKey, link.Token)
	pipe.Expire(ctx, setKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist share: %w", err)
	}
	return nil
}

func (s *RedisShareStore) Get(ctx context.Context, token string) (*ephemeral.ShareLink, error) {
	payload, err := s.client.Get(ctx, sharePrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ephemeral.ErrShareNotFound
		}
		return nil, fmt.Errorf("load share: %w", err)
	}
	var link ephemeral.ShareLink
	if err := json.Unmarshal(payload, &link); err != nil {
		return nil, fmt.Errorf("decode share: %w", err)
	}
	return &link, nil
}

// IncrementAccess counts one resolution attempt. max <= 0 means unlimited.
func (s *RedisShareStore) IncrementAccess(ctx context.Context, token string, max int) (int, error) {
	key := sharePrefix + token + shareCountSuffix
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment share access: %w", err)
	}
	if max > 0 && int(count) > max {
		return max, ephemeral.ErrShareNotFound
	}
	return int(count), nil
}

func (s *RedisShareStore) Delete(ctx context.Context, token string) error {
	key := sharePrefix + token
	if err := s.client.Del(ctx, key, key+shareCountSuffix).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete share: %w", err)
	}
	return nil
}

func (s *RedisShareStore) DeleteBySession(ctx context.Context, sessionID string) (int, error) {
	setKey := sessionPrefix + sessionID + sharesSuffix
	tokens, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("list session shares: %w", err)
	}
	deleted := 0
	for _, token := range tokens {
		if err := s.Delete(ctx, token); err != nil {
			return deleted, err
		}
		deleted++
	}
	if err := s.client.Del(ctx, setKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return deleted, fmt.Errorf("delete share index: %w", err)
	}
	return deleted, nil
}
