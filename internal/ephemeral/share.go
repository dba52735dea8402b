package ephemeral

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/scribehub/scribe-auth/internal/domain/ephemeral"
	"github.com/scribehub/scribe-auth/internal/secret"
)

const shareTokenBytes = 32

// ShareOptions carries the caller's share policy. Zero values mean: expire
// with the session, unlimited access, no auth requirement, no allow-list.
type ShareOptions struct {
	ExpiresIn    time.Duration
	MaxAccess    int
	RequiresAuth bool
	AllowedUsers []string
}

// ShareOutput returns the minted link plus the externally reachable URL.
type ShareOutput struct {
	Link     domain.ShareLink
	ShareURL string
}

// CreateShare mints a bounded-lifetime link to one processing result. The
// link's expiry is the lesser of the requested duration and the session's
// remaining lifetime; nothing outlives its session.
func (m *Manager) CreateShare(ctx context.Context, ownerID, sessionID, fileID string, opts ShareOptions) (*ShareOutput, error) {
	ctx, span := m.tracer.Start(ctx, "ephemeral.CreateShare")
	defer span.End()

	session, err := m.GetSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	result, err := m.files.GetResult(ctx, sessionID, fileID)
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	if result == nil {
		return nil, domain.ErrResultNotFound
	}

	now := m.now()
	expiresAt := session.ExpiresAt
	if opts.ExpiresIn > 0 {
		if requested := now.Add(opts.ExpiresIn); requested.Before(expiresAt) {
			expiresAt = requested
		}
	}

	token, err := secret.NewToken(shareTokenBytes)
	if err != nil {
		return nil, err
	}
	link := domain.ShareLink{
		Token:        token,
		SessionID:    sessionID,
		FileID:       fileID,
		CreatedBy:    ownerID,
		MaxAccess:    opts.MaxAccess,
		RequiresAuth: opts.RequiresAuth,
		AllowedUsers: opts.AllowedUsers,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
	}
	if err := m.shares.Save(ctx, link, expiresAt.Sub(now)); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist share: %w", err)
	}

	m.sink.Record(ctx, ownerID, "ephemeral.share_created", map[string]any{
		"session_id": sessionID,
		"file_id":    fileID,
		"expires_at": expiresAt,
		"max_access": opts.MaxAccess,
	})
	return &ShareOutput{
		Link:     link,
		ShareURL: strings.TrimRight(m.cfg.ShareBaseURL, "/") + "/" + token,
	}, nil
}

// ResolveShare redeems one access of a share link, enforcing the stored
// policy: expiry, the auth requirement, the allow-list, and the access
// cap (counted atomically so concurrent resolutions cannot exceed it).
// callerID is empty for unauthenticated callers.
func (m *Manager) ResolveShare(ctx context.Context, token, callerID string) (*ProcessOutput, error) {
	ctx, span := m.tracer.Start(ctx, "ephemeral.ResolveShare")
	defer span.End()

	link, err := m.shares.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if !now.Before(link.ExpiresAt) {
		if delErr := m.shares.Delete(ctx, token); delErr != nil {
			m.log().Warn("expired share cleanup failed", zap.Error(delErr))
		}
		return nil, domain.ErrShareNotFound
	}
	if link.RequiresAuth && callerID == "" {
		m.sink.Record(ctx, "", "ephemeral.share_denied", map[string]any{"reason": "auth required"})
		return nil, domain.ErrShareForbidden
	}
	if !link.Allows(callerID) {
		m.sink.Record(ctx, callerID, "ephemeral.share_denied", map[string]any{"reason": "not allow-listed"})
		return nil, domain.ErrShareForbidden
	}

	if _, err := m.shares.IncrementAccess(ctx, token, link.MaxAccess); err != nil {
		return nil, err
	}

	result, err := m.files.GetResult(ctx, link.SessionID, link.FileID)
	if err != nil {
		return nil, fmt.Errorf("load shared result: %w", err)
	}
	if result == nil {
		// Session artifacts already expired underneath the share.
		return nil, domain.ErrShareNotFound
	}

	m.sink.Record(ctx, callerID, "ephemeral.share_resolved", map[string]any{
		"session_id": link.SessionID,
		"file_id":    link.FileID,
	})
	return &ProcessOutput{Result: *result, ExpiresAt: link.ExpiresAt}, nil
}
