// Package ephemeral implements the bounded-lifetime processing engine:
// sessions, encrypted file processing, share links, and the cleanup paths
// that guarantee deletion at expiry.
package ephemeral

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/scribehub/scribe-auth/internal/audit"
	"github.com/scribehub/scribe-auth/internal/config"
	domain "github.com/scribehub/scribe-auth/internal/domain/ephemeral"
	"github.com/scribehub/scribe-auth/internal/repository"
)

// Manager owns the lifecycle of ephemeral sessions and everything stored
// under them. The TTL store is authoritative; the in-process cache and the
// per-session timers are read and latency optimizations only.
type Manager struct {
	sessions repository.SessionStore
	files    repository.FileStore
	shares   repository.ShareStore
	cache    *sessionCache
	timers   *timerSet
	sink     audit.Sink
	cfg      config.Config
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewManager wires the engine.
func NewManager(sessions repository.SessionStore, files repository.FileStore, shares repository.ShareStore, sink audit.Sink, cfg config.Config, logger *zap.Logger) *Manager {
	m := &Manager{
		sessions: sessions,
		files:    files,
		shares:   shares,
		cache:    newSessionCache(),
		sink:     sink,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("github.com/scribehub/scribe-auth/internal/ephemeral"),
		now:      time.Now,
	}
	m.timers = newTimerSet(m.expire)
	return m
}

// Policy returns the active file policy so clients can self-limit uploads.
func (m *Manager) Policy() domain.FilePolicy {
	return domain.FilePolicy{
		MaxFileBytes:     m.cfg.MaxFileBytes,
		AllowedMimeTypes: m.cfg.AllowedMimeTypes,
	}
}

// CreateSessionInput carries optional caller overrides.
type CreateSessionInput struct {
	MaxFiles int
	TeamID   string
}

// CreateSession opens a new processing session for ownerID with the
// configured TTL and schedules its auto-delete timer.
func (m *Manager) CreateSession(ctx context.Context, ownerID string, in CreateSessionInput) (*domain.Session, error) {
	ctx, span := m.tracer.Start(ctx, "ephemeral.CreateSession")
	defer span.End()

	maxFiles := in.MaxFiles
	if maxFiles <= 0 || maxFiles > m.cfg.SessionMaxFiles {
		maxFiles = m.cfg.SessionMaxFiles
	}

	now := m.now()
	session := domain.Session{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		TeamID:       in.TeamID,
		MaxFiles:     maxFiles,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.cfg.SessionTTL),
		LastActivity: now,
	}

	if err := m.sessions.Save(ctx, session, m.cfg.SessionTTL); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist session: %w", err)
	}
	m.cache.put(session, now)
	m.timers.schedule(session.ID, m.cfg.SessionTTL)

	m.sink.Record(ctx, ownerID, "ephemeral.session_created", map[string]any{
		"session_id": session.ID,
		"max_files":  maxFiles,
		"expires_at": session.ExpiresAt,
	})
	return &session, nil
}

// GetSession loads a session for its owner. Ownership failures read as
// not-found so non-owners cannot probe for existence. Expired records found
// in the store trigger cleanup as a side effect.
func (m *Manager) GetSession(ctx context.Context, ownerID, id string) (*domain.Session, error) {
	now := m.now()
	if session, ok := m.cache.get(id, now); ok {
		if session.OwnerID != ownerID {
			return nil, domain.ErrSessionNotFound
		}
		return session, nil
	}

	session, err := m.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	if session.Expired(now) {
		go m.expire(id)
		return nil, domain.ErrSessionNotFound
	}
	if session.OwnerID != ownerID {
		m.sink.Record(ctx, ownerID, "ephemeral.session_denied", map[string]any{"session_id": id})
		return nil, domain.ErrSessionNotFound
	}

	m.cache.put(*session, now)
	return session, nil
}

// touch rewrites the session with its remaining TTL. A session past its
// deadline is left alone; deletion is the cleanup paths' job.
func (m *Manager) touch(ctx context.Context, session *domain.Session) {
	now := m.now()
	remaining := session.Remaining(now)
	if remaining <= 0 {
		return
	}
	session.LastActivity = now
	if err := m.sessions.Save(ctx, *session, remaining); err != nil {
		m.log().Warn("session touch failed", zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	m.cache.put(*session, now)
}

// DeleteSession removes the session and every artifact under it. It is
// idempotent: deleting a session that is already gone succeeds with zero
// deleted keys, as does a delete attempted by a non-owner.
func (m *Manager) DeleteSession(ctx context.Context, ownerID, id string) (int, error) {
	ctx, span := m.tracer.Start(ctx, "ephemeral.DeleteSession")
	defer span.End()

	session, err := m.sessions.Get(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("load session: %w", err)
	}
	if session == nil || session.OwnerID != ownerID {
		return 0, nil
	}

	deleted, err := m.destroy(ctx, id)
	if err != nil {
		span.RecordError(err)
		return deleted, err
	}
	m.sink.Record(ctx, ownerID, "ephemeral.session_deleted", map[string]any{
		"session_id":   id,
		"deleted_keys": deleted,
	})
	return deleted, nil
}

// destroy is the single cascade-deletion routine shared by the explicit,
// timer, and sweep paths.
func (m *Manager) destroy(ctx context.Context, id string) (int, error) {
	deleted := 0

	n, err := m.files.DeleteBySession(ctx, id)
	deleted += n
	if err != nil {
		return deleted, fmt.Errorf("delete session files: %w", err)
	}
	n, err = m.shares.DeleteBySession(ctx, id)
	deleted += n
	if err != nil {
		return deleted, fmt.Errorf("delete session shares: %w", err)
	}
	n, err = m.sessions.Delete(ctx, id)
	deleted += n
	if err != nil {
		return deleted, fmt.Errorf("delete session record: %w", err)
	}

	m.cache.remove(id)
	m.timers.cancel(id)
	return deleted, nil
}

// expire is the timer and sweep entry point.
func (m *Manager) expire(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	deleted, err := m.destroy(ctx, id)
	if err != nil {
		m.log().Error("session expiry cleanup failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	m.log().Info("session expired",
		zap.String("session_id", id),
		zap.Int("deleted_keys", deleted))
}

func (m *Manager) log() *zap.Logger {
	if m != nil && m.logger != nil {
		return m.logger
	}
	return zap.L()
}
