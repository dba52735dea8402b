package ephemeral

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "github.com/scribehub/scribe-auth/internal/domain/ephemeral"
)

const textPreviewLimit = 200

// Upload is one file submitted for processing.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// ProcessOutput returns the result plus the session deadline so callers can
// display a countdown.
type ProcessOutput struct {
	Result    domain.Result
	ExpiresAt time.Time
}

// ProcessFile validates, encrypts, stores, and processes one upload inside
// the caller's session. The plaintext is never persisted; only the
// AES-256-GCM blob under a per-file key survives the call. The file counter
// check is an atomic increment in the store, so concurrent calls cannot
// push a session past maxFiles.
func (m *Manager) ProcessFile(ctx context.Context, ownerID, sessionID string, up Upload) (*ProcessOutput, error) {
	ctx, span := m.tracer.Start(ctx, "ephemeral.ProcessFile")
	defer span.End()

	session, err := m.GetSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ProcessedFiles >= session.MaxFiles {
		return nil, domain.ErrFileLimitExceeded
	}

	policy := m.Policy()
	if int64(len(up.Data)) > policy.MaxFileBytes {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrFileTooLarge, len(up.Data))
	}
	if !policy.AllowsMime(up.MimeType) {
		return nil, fmt.Errorf("%w: %s", domain.ErrFileTypeNotAllowed, up.MimeType)
	}

	count, err := m.sessions.IncrementFileCount(ctx, sessionID, session.MaxFiles)
	if err != nil {
		return nil, err
	}

	key, err := NewFileKey()
	if err != nil {
		return nil, err
	}
	ciphertext, err := EncryptFile(key, up.Data)
	if err != nil {
		return nil, fmt.Errorf("encrypt file: %w", err)
	}

	now := m.now()
	remaining := session.Remaining(now)
	file := domain.File{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		OriginalName: up.Name,
		MimeType:     up.MimeType,
		Size:         int64(len(up.Data)),
		Ciphertext:   ciphertext,
		Key:          key,
		Processed:    true,
		CreatedAt:    now,
	}
	if err := m.files.SaveFile(ctx, file, remaining); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist file: %w", err)
	}

	result := domain.Result{
		FileID:    file.ID,
		SessionID: sessionID,
		Metadata:  extractMetadata(up),
		CreatedAt: now,
	}
	if err := m.files.SaveResult(ctx, result, remaining); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist result: %w", err)
	}

	session.ProcessedFiles = count
	m.touch(ctx, session)

	m.sink.Record(ctx, ownerID, "ephemeral.file_processed", map[string]any{
		"session_id": sessionID,
		"file_id":    file.ID,
		"mime_type":  up.MimeType,
		"size":       file.Size,
	})
	m.log().Debug("file processed",
		zap.String("session_id", sessionID),
		zap.String("file_id", file.ID),
		zap.Int("processed_files", count))

	return &ProcessOutput{Result: result, ExpiresAt: session.ExpiresAt}, nil
}

// GetResult fetches the processing result for one file in the caller's
// session.
func (m *Manager) GetResult(ctx context.Context, ownerID, sessionID, fileID string) (*ProcessOutput, error) {
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
	return &ProcessOutput{Result: *result, ExpiresAt: session.ExpiresAt}, nil
}

// extractMetadata runs the processing step against the original bytes.
func extractMetadata(up Upload) map[string]any {
	sum := sha256.Sum256(up.Data)
	metadata := map[string]any{
		"original_name": up.Name,
		"mime_type":     up.MimeType,
		"size":          len(up.Data),
		"sha256":        hex.EncodeToString(sum[:]),
	}
	if strings.HasPrefix(up.MimeType, "text/") && utf8.Valid(up.Data) {
		text := string(up.Data)
		metadata["word_count"] = len(strings.Fields(text))
		metadata["preview"] = previewText(text)
	}
	return metadata
}

func previewText(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= textPreviewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:textPreviewLimit])
}
