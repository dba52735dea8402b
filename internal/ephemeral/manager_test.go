package ephemeral

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scribehub/scribe-auth/internal/audit"
	"github.com/scribehub/scribe-auth/internal/config"
	domain "github.com/scribehub/scribe-auth/internal/domain/ephemeral"
)

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	counts   map[string]int
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		sessions: make(map[string]domain.Session),
		counts:   make(map[string]int),
	}
}

func (s *memSessionStore) Save(ctx context.Context, session domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	if _, ok := s.counts[session.ID]; !ok {
		s.counts[session.ID] = session.ProcessedFiles
	}
	return nil
}

func (s *memSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	session.ProcessedFiles = s.counts[id]
	return &session, nil
}

func (s *memSessionStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memSessionStore) IncrementFileCount(ctx context.Context, id string, max int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.counts[id] + 1
	if next > max {
		return s.counts[id], domain.ErrFileLimitExceeded
	}
	s.counts[id] = next
	return next, nil
}

func (s *memSessionStore) Delete(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		deleted++
	}
	if _, ok := s.counts[id]; ok {
		delete(s.counts, id)
		deleted++
	}
	return deleted, nil
}

type memFileStore struct {
	mu      sync.Mutex
	files   map[string]domain.File
	results map[string]domain.Result
}

func newMemFileStore() *memFileStore {
	return &memFileStore{
		files:   make(map[string]domain.File),
		results: make(map[string]domain.Result),
	}
}

func fileKey(sessionID, fileID string) string {
	return sessionID + "/" + fileID
}

func (s *memFileStore) SaveFile(ctx context.Context, file domain.File, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileKey(file.SessionID, file.ID)] = file
	return nil
}

func (s *memFileStore) GetFile(ctx context.Context, sessionID, fileID string) (*domain.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[fileKey(sessionID, fileID)]
	if !ok {
		return nil, nil
	}
	return &file, nil
}

func (s *memFileStore) SaveResult(ctx context.Context, result domain.Result, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[fileKey(result.SessionID, result.FileID)] = result
	return nil
}

func (s *memFileStore) GetResult(ctx context.Context, sessionID, fileID string) (*domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[fileKey(sessionID, fileID)]
	if !ok {
		return nil, nil
	}
	return &result, nil
}

func (s *memFileStore) DeleteBySession(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, file := range s.files {
		if file.SessionID == sessionID {
			delete(s.files, key)
			deleted++
		}
	}
	for key, result := range s.results {
		if result.SessionID == sessionID {
			delete(s.results, key)
			deleted++
		}
	}
	return deleted, nil
}

type memShareStore struct {
	mu     sync.Mutex
	links  map[string]domain.ShareLink
	access map[string]int
}

func newMemShareStore() *memShareStore {
	return &memShareStore{
		links:  make(map[string]domain.ShareLink),
		access: make(map[string]int),
	}
}

func (s *memShareStore) Save(ctx context.Context, link domain.ShareLink, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.Token] = link
	s.access[link.Token] = 0
	return nil
}

func (s *memShareStore) Get(ctx context.Context, token string) (*domain.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[token]
	if !ok {
		return nil, domain.ErrShareNotFound
	}
	return &link, nil
}

func (s *memShareStore) IncrementAccess(ctx context.Context, token string, max int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.access[token] + 1
	if max > 0 && next > max {
		return s.access[token], domain.ErrShareNotFound
	}
	s.access[token] = next
	return next, nil
}

func (s *memShareStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, token)
	delete(s.access, token)
	return nil
}

func (s *memShareStore) DeleteBySession(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for token, link := range s.links {
		if link.SessionID == sessionID {
			delete(s.links, token)
			delete(s.access, token)
			deleted++
		}
	}
	return deleted, nil
}

type engineHarness struct {
	m        *Manager
	sessions *memSessionStore
	files    *memFileStore
	shares   *memShareStore
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()

	cfg := config.Config{
		SessionTTL:       24 * time.Hour,
		SessionMaxFiles:  20,
		MaxFileBytes:     1 << 20,
		AllowedMimeTypes: []string{"text/plain", "application/pdf"},
		SweepInterval:    time.Hour,
		ShareBaseURL:     "https://scribehub.example.com/share",
	}
	sessions := newMemSessionStore()
	files := newMemFileStore()
	shares := newMemShareStore()
	m := NewManager(sessions, files, shares, audit.Nop{}, cfg, zap.NewNop())
	t.Cleanup(m.timers.stopAll)
	return &engineHarness{m: m, sessions: sessions, files: files, shares: shares}
}

func textUpload(name, body string) Upload {
	return Upload{Name: name, MimeType: "text/plain", Data: []byte(body)}
}

func TestCreateAndGetSession(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	session, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{MaxFiles: 5})
	require.NoError(t, err)
	require.Equal(t, 5, session.MaxFiles)
	require.Equal(t, domain.StatusActive, session.Status)
	require.WithinDuration(t, session.CreatedAt.Add(24*time.Hour), session.ExpiresAt, time.Second)

	got, err := h.m.GetSession(ctx, "alice", session.ID)
	require.NoError(t, err)
	require.Equal(t, session.ID, got.ID)
}

func TestCreateSessionClampsMaxFiles(t *testing.T) {
	h := newEngineHarness(t)

	session, err := h.m.CreateSession(context.Background(), "alice", CreateSessionInput{MaxFiles: 500})
	require.NoError(t, err)
	require.Equal(t, 20, session.MaxFiles)

	session, err = h.m.CreateSession(context.Background(), "alice", CreateSessionInput{})
	require.NoError(t, err)
	require.Equal(t, 20, session.MaxFiles)
}

func TestGetSessionOwnerMismatchReadsAsNotFound(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	session, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{})
	require.NoError(t, err)

	_, err = h.m.GetSession(ctx, "mallory", session.ID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestGetSessionExpired(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	start := time.Now()
	h.m.now = func() time.Time { return start }
	session, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{})
	require.NoError(t, err)

	h.m.now = func() time.Time { return start.Add(25 * time.Hour) }
	_, err = h.m.GetSession(ctx, "alice", session.ID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestProcessFileEncryptsAtRest(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	session, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{})
	require.NoError(t, err)

	plaintext := "the quick brown fox jumps over the lazy dog"
	out, err := h.m.ProcessFile(ctx, "alice", session.ID, textUpload("notes.txt", plaintext))
	require.NoError(t, err)
	require.Equal(t, "notes.txt", out.Result.Metadata["original_name"])
	require.Equal(t, 9, out.Result.Metadata["word_count"])

	stored, err := h.files.GetFile(ctx, session.ID, out.Result.FileID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotContains(t, string(stored.Ciphertext), plaintext)

	decrypted, err := DecryptFile(stored.Key, stored.Ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, string(decrypted))
}

func TestProcessFileEnforcesMaxFiles(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	session, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{MaxFiles: 2})
	require.NoError(t, err)

	_, err = h.m.ProcessFile(ctx, "alice", session.ID, textUpload("a.txt", "one"))
	require.NoError(t, err)
	_, err = h.m.ProcessFile(ctx, "alice", session.ID, textUpload("b.txt", "two"))
	require.NoError(t, err)

	_, err = h.m.ProcessFile(ctx, "alice", session.ID, textUpload("c.txt", "three"))
	require.ErrorIs(t, err, domain.ErrFileLimitExceeded)

	got, err := h.m.GetSession(ctx, "alice", session.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.ProcessedFiles)
}

func TestProcessFileEnforcesPolicy(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	session, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{})
	require.NoError(t, err)

	_, err = h.m.ProcessFile(ctx, "alice", session.ID, Upload{
		Name:     "huge.txt",
		MimeType: "text/plain",
		Data:     make([]byte, (1<<20)+1),
	})
	require.ErrorIs(t, err, domain.ErrFileTooLarge)

	_, err = h.m.ProcessFile(ctx, "alice", session.ID, Upload{
		Name:     "evil.bin",
		MimeType: "application/octet-stream",
		Data:     []byte{0x00},
	})
	require.ErrorIs(t, err, domain.ErrFileTypeNotAllowed)

	got, err := h.m.GetSession(ctx, "alice", session.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.ProcessedFiles)
}

func TestDeleteSessionCascadesAndIsIdempotent(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	session, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{})
	require.NoError(t, err)
	out, err := h.m.ProcessFile(ctx, "alice", session.ID, textUpload("a.txt", "hello"))
	require.NoError(t, err)
	_, err = h.m.CreateShare(ctx, "alice", session.ID, out.Result.FileID, ShareOptions{})
	require.NoError(t, err)

	deleted, err := h.m.DeleteSession(ctx, "alice", session.ID)
	require.NoError(t, err)
	require.Greater(t, deleted, 0)

	_, err = h.m.GetSession(ctx, "alice", session.ID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	require.Empty(t, h.files.files)
	require.Empty(t, h.files.results)
	require.Empty(t, h.shares.links)

	deleted, err = h.m.DeleteSession(ctx, "alice", session.ID)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestDeleteSessionNonOwnerRemovesNothing(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	session, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{})
	require.NoError(t, err)

	deleted, err := h.m.DeleteSession(ctx, "mallory", session.ID)
	require.NoError(t, err)
	require.Zero(t, deleted)

	_, err = h.m.GetSession(ctx, "alice", session.ID)
	require.NoError(t, err)
}

func TestCreateShareCappedAtSessionExpiry(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	start := time.Now()
	h.m.now = func() time.Time { return start }

	session, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{})
	require.NoError(t, err)
	out, err := h.m.ProcessFile(ctx, "alice", session.ID, textUpload("a.txt", "hello"))
	require.NoError(t, err)

	// 14h remain; a 48h request is capped at the session deadline.
	h.m.now = func() time.Time { return start.Add(10 * time.Hour) }
	share, err := h.m.CreateShare(ctx, "alice", session.ID, out.Result.FileID, ShareOptions{
		ExpiresIn: 48 * time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, session.ExpiresAt, share.Link.ExpiresAt)

	short, err := h.m.CreateShare(ctx, "alice", session.ID, out.Result.FileID, ShareOptions{
		ExpiresIn: time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, start.Add(11*time.Hour), short.Link.ExpiresAt)
}

func TestResolveShareEnforcesPolicy(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	session, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{})
	require.NoError(t, err)
	out, err := h.m.ProcessFile(ctx, "alice", session.ID, textUpload("a.txt", "hello"))
	require.NoError(t, err)

	share, err := h.m.CreateShare(ctx, "alice", session.ID, out.Result.FileID, ShareOptions{
		RequiresAuth: true,
		AllowedUsers: []string{"bob"},
	})
	require.NoError(t, err)

	_, err = h.m.ResolveShare(ctx, share.Link.Token, "")
	require.ErrorIs(t, err, domain.ErrShareForbidden)

	_, err = h.m.ResolveShare(ctx, share.Link.Token, "mallory")
	require.ErrorIs(t, err, domain.ErrShareForbidden)

	resolved, err := h.m.ResolveShare(ctx, share.Link.Token, "bob")
	require.NoError(t, err)
	require.Equal(t, out.Result.FileID, resolved.Result.FileID)
}

func TestResolveShareAccessCap(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	session, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{})
	require.NoError(t, err)
	out, err := h.m.ProcessFile(ctx, "alice", session.ID, textUpload("a.txt", "hello"))
	require.NoError(t, err)

	share, err := h.m.CreateShare(ctx, "alice", session.ID, out.Result.FileID, ShareOptions{MaxAccess: 2})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = h.m.ResolveShare(ctx, share.Link.Token, "")
		require.NoError(t, err)
	}
	_, err = h.m.ResolveShare(ctx, share.Link.Token, "")
	require.ErrorIs(t, err, domain.ErrShareNotFound)
}

func TestResolveShareExpired(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	start := time.Now()
	h.m.now = func() time.Time { return start }

	session, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{})
	require.NoError(t, err)
	out, err := h.m.ProcessFile(ctx, "alice", session.ID, textUpload("a.txt", "hello"))
	require.NoError(t, err)
	share, err := h.m.CreateShare(ctx, "alice", session.ID, out.Result.FileID, ShareOptions{
		ExpiresIn: time.Hour,
	})
	require.NoError(t, err)

	h.m.now = func() time.Time { return start.Add(2 * time.Hour) }
	_, err = h.m.ResolveShare(ctx, share.Link.Token, "")
	require.ErrorIs(t, err, domain.ErrShareNotFound)
}

func TestResolveShareUnknownToken(t *testing.T) {
	h := newEngineHarness(t)

	_, err := h.m.ResolveShare(context.Background(), "no-such-token", "")
	require.ErrorIs(t, err, domain.ErrShareNotFound)
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	start := time.Now()
	h.m.now = func() time.Time { return start }

	expired, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{})
	require.NoError(t, err)
	_, err = h.m.ProcessFile(ctx, "alice", expired.ID, textUpload("a.txt", "hello"))
	require.NoError(t, err)

	h.m.now = func() time.Time { return start.Add(12 * time.Hour) }
	live, err := h.m.CreateSession(ctx, "alice", CreateSessionInput{})
	require.NoError(t, err)

	h.m.now = func() time.Time { return start.Add(25 * time.Hour) }
	require.NoError(t, h.m.Sweep(ctx))

	raw, err := h.sessions.Get(ctx, expired.ID)
	require.NoError(t, err)
	require.Nil(t, raw)
	require.Empty(t, h.files.files)
	require.Empty(t, h.files.results)

	raw, err = h.sessions.Get(ctx, live.ID)
	require.NoError(t, err)
	require.NotNil(t, raw)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := NewFileKey()
	require.NoError(t, err)
	require.Len(t, key, 32)

	blob, err := EncryptFile(key, []byte("payload"))
	require.NoError(t, err)

	plaintext, err := DecryptFile(key, blob)
	require.NoError(t, err)
	require.Equal(t, "payload", string(plaintext))

	other, err := NewFileKey()
	require.NoError(t, err)
	_, err = DecryptFile(other, blob)
	require.Error(t, err)

	_, err = DecryptFile(key, blob[:4])
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}
