package ephemeral

import "errors"

var (
	// ErrSessionNotFound covers unknown, expired, and not-owned sessions.
	// Owner mismatches intentionally map here so existence is never leaked.
	ErrSessionNotFound = errors.New("ephemeral: session not found")
	// ErrFileTooLarge indicates the upload exceeds the policy size limit.
	ErrFileTooLarge = errors.New("ephemeral: file too large")
	// ErrFileTypeNotAllowed indicates a mime type outside the allowed set.
	ErrFileTypeNotAllowed = errors.New("ephemeral: file type not allowed")
	// ErrFileLimitExceeded indicates the session already processed maxFiles.
	ErrFileLimitExceeded = errors.New("ephemeral: session file limit exceeded")
	// ErrResultNotFound indicates no processing result for the file id.
	ErrResultNotFound = errors.New("ephemeral: result not found")
	// ErrShareNotFound covers unknown, expired, and exhausted share links.
	ErrShareNotFound = errors.New("ephemeral: share not found")
	// ErrShareForbidden indicates the caller failed a share's auth
	// requirement or allow-list.
	ErrShareForbidden = errors.New("ephemeral: share access denied")
)
