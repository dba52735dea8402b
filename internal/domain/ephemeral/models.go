package ephemeral

import "time"

// SessionStatus tracks the lifecycle phase of a processing session.
type SessionStatus string

const (
	StatusActive  SessionStatus = "active"
	StatusDeleted SessionStatus = "deleted"
)

// Session is a bounded-lifetime processing context. Every artifact created
// under a session inherits its expiry.
type Session struct {
	ID             string        `json:"id"`
	OwnerID        string        `json:"owner_id"`
	TeamID         string        `json:"team_id,omitempty"`
	MaxFiles       int           `json:"max_files"`
	ProcessedFiles int           `json:"processed_files"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	ExpiresAt      time.Time     `json:"expires_at"`
	LastActivity   time.Time     `json:"last_activity"`
}

// Remaining returns the session TTL left at now, never negative.
func (s Session) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Expired reports whether the session's deadline has passed.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// File is an uploaded artifact held encrypted at rest under a session.
type File struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	Ciphertext   []byte    `json:"ciphertext"`
	Key          []byte    `json:"key"`
	Processed    bool      `json:"processed"`
	CreatedAt    time.Time `json:"created_at"`
}

// Result holds the output of processing a single file.
type Result struct {
	FileID    string         `json:"file_id"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// ShareLink is a bounded-lifetime external pointer to one processing result.
// Expiry is capped at the owning session's deadline.
type ShareLink struct {
	Token        string    `json:"token"`
	SessionID    string    `json:"session_id"`
	FileID       string    `json:"file_id"`
	CreatedBy    string    `json:"created_by"`
	MaxAccess    int       `json:"max_access"`
	RequiresAuth bool      `json:"requires_auth"`
	AllowedUsers []string  `json:"allowed_users,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Allows reports whether userID may resolve an allow-listed share. An empty
// allow-list admits any caller that passed the auth requirement.
func (l ShareLink) Allows(userID string) bool {
	if len(l.AllowedUsers) == 0 {
		return true
	}
	for _, allowed := range l.AllowedUsers {
		if allowed == userID {
			return true
		}
	}
	return false
}

// FilePolicy is the upload policy applied during file processing. It is
// configuration input; the processor only enforces it.
type FilePolicy struct {
	MaxFileBytes     int64    `json:"max_file_bytes"`
	AllowedMimeTypes []string `json:"allowed_mime_types"`
}

// AllowsMime reports whether mime is in the allowed set.
func (p FilePolicy) AllowsMime(mime string) bool {
	for _, allowed := range p.AllowedMimeTypes {
		if allowed == mime {
			return true
		}
	}
	return false
}
