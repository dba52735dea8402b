package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	domain "github.com/scribehub/scribe-auth/internal/domain/ephemeral"
	"github.com/scribehub/scribe-auth/internal/ephemeral"
	"github.com/scribehub/scribe-auth/internal/http/middleware"
)

// maxFilesPerRequest bounds one multipart upload; the session budget is
// enforced separately by the engine.
const maxFilesPerRequest = 10

// EphemeralHandler serves the bounded-lifetime processing API.
type EphemeralHandler struct {
	Engine *ephemeral.Manager
}

// NewEphemeralHandler creates the handler.
func NewEphemeralHandler(engine *ephemeral.Manager) *EphemeralHandler {
	return &EphemeralHandler{Engine: engine}
}

type sessionResponse struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	MaxFiles       int       `json:"max_files"`
	ProcessedFiles int       `json:"processed_files"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivity   time.Time `json:"last_activity"`
}

func toSessionResponse(session *domain.Session) sessionResponse {
	return sessionResponse{
		ID:             session.ID,
		Status:         string(session.Status),
		MaxFiles:       session.MaxFiles,
		ProcessedFiles: session.ProcessedFiles,
		CreatedAt:      session.CreatedAt,
		ExpiresAt:      session.ExpiresAt,
		LastActivity:   session.LastActivity,
	}
}

type resultResponse struct {
	FileID    string         `json:"file_id"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func toResultResponse(out *ephemeral.ProcessOutput) resultResponse {
	return resultResponse{
		FileID:    out.Result.FileID,
		SessionID: out.Result.SessionID,
		Metadata:  out.Result.Metadata,
		CreatedAt: out.Result.CreatedAt,
		ExpiresAt: out.ExpiresAt,
	}
}

// CreateSession opens a processing session for the caller.
func (h *EphemeralHandler) CreateSession(c *gin.Context) {
	ownerID, _ := middleware.GetPrincipal(c)

	var req struct {
		MaxFiles int    `json:"max_files"`
		TeamID   string `json:"team_id"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
			return
		}
	}

	session, err := h.Engine.CreateSession(c.Request.Context(), ownerID, ephemeral.CreateSessionInput{
		MaxFiles: req.MaxFiles,
		TeamID:   req.TeamID,
	})
	if err != nil {
		respondEphemeralError(c, err)
		return
	}

	policy := h.Engine.Policy()
	c.JSON(http.StatusCreated, gin.H{
		"session": toSessionResponse(session),
		"policy": gin.H{
			"max_file_bytes":     policy.MaxFileBytes,
			"allowed_mime_types": policy.AllowedMimeTypes,
		},
	})
}

// GetSession returns the caller's session state.
func (h *EphemeralHandler) GetSession(c *gin.Context) {
	ownerID, _ := middleware.GetPrincipal(c)

	session, err := h.Engine.GetSession(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		respondEphemeralError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// DeleteSession destroys the session and everything stored under it.
// Deleting an already-deleted session succeeds with zero removed keys.
func (h *EphemeralHandler) DeleteSession(c *gin.Context) {
	ownerID, _ := middleware.GetPrincipal(c)

	deleted, err := h.Engine.DeleteSession(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		respondEphemeralError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "deleted_keys": deleted})
}

// Process accepts a multipart upload and runs each file through the
// engine. Failures are reported per file; one bad file does not abort
// the rest of the batch.
func (h *EphemeralHandler) Process(c *gin.Context) {
	ownerID, _ := middleware.GetPrincipal(c)
	sessionID := c.Param("id")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Multipart form with files is required."})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "At least one file is required."})
		return
	}
	if len(files) > maxFilesPerRequest {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Too many files in one request."})
		return
	}

	results := make([]resultResponse, 0, len(files))
	failures := make([]gin.H, 0)
	for _, header := range files {
		out, err := h.processOne(c, ownerID, sessionID, header)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				respondEphemeralError(c, err)
				return
			}
			failures = append(failures, gin.H{
				"file":  header.Filename,
				"error": err.Error(),
			})
			continue
		}
		results = append(results, toResultResponse(out))
	}

	status := http.StatusOK
	if len(results) == 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{
		"results":   results,
		"errors":    failures,
		"processed": len(results),
		"failed":    len(failures),
	})
}

func (h *EphemeralHandler) processOne(c *gin.Context, ownerID, sessionID string, header *multipart.FileHeader) (*ephemeral.ProcessOutput, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return h.Engine.ProcessFile(c.Request.Context(), ownerID, sessionID, ephemeral.Upload{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	})
}

// GetResult returns one processing result within the caller's session.
func (h *EphemeralHandler) GetResult(c *gin.Context) {
	ownerID, _ := middleware.GetPrincipal(c)

	out, err := h.Engine.GetResult(c.Request.Context(), ownerID, c.Param("id"), c.Param("fileId"))
	if err != nil {
		respondEphemeralError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResultResponse(out))
}

// CreateShare mints a share link for one result in the caller's session.
func (h *EphemeralHandler) CreateShare(c *gin.Context) {
	ownerID, _ := middleware.GetPrincipal(c)

	var req struct {
		ExpiresInHours int      `json:"expires_in_hours"`
		MaxAccess      int      `json:"max_access"`
		RequiresAuth   bool     `json:"requires_auth"`
		AllowedUsers   []string `json:"allowed_users"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
			return
		}
	}

	out, err := h.Engine.CreateShare(c.Request.Context(), ownerID, c.Param("id"), c.Param("fileId"), ephemeral.ShareOptions{
		ExpiresIn:    time.Duration(req.ExpiresInHours) * time.Hour,
		MaxAccess:    req.MaxAccess,
		RequiresAuth: req.RequiresAuth,
		AllowedUsers: req.AllowedUsers,
	})
	if err != nil {
		respondEphemeralError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":      out.Link.Token,
		"share_url":  out.ShareURL,
		"expires_at": out.Link.ExpiresAt,
		"max_access": out.Link.MaxAccess,
	})
}

// ResolveShare redeems a share token. The caller identity, when a valid
// bearer token is presented, feeds the link's auth and allow-list policy.
func (h *EphemeralHandler) ResolveShare(c *gin.Context) {
	callerID, _ := middleware.GetPrincipal(c)

	out, err := h.Engine.ResolveShare(c.Request.Context(), c.Param("token"), callerID)
	if err != nil {
		respondEphemeralError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResultResponse(out))
}

// Policy exposes the upload limits so clients can self-check before
// sending payloads.
func (h *EphemeralHandler) Policy(c *gin.Context) {
	policy := h.Engine.Policy()
	c.JSON(http.StatusOK, gin.H{
		"max_file_bytes":     policy.MaxFileBytes,
		"allowed_mime_types": policy.AllowedMimeTypes,
	})
}

func respondEphemeralError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Session not found."})
	case errors.Is(err, domain.ErrResultNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Result not found."})
	case errors.Is(err, domain.ErrShareNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Share link not found or expired."})
	case errors.Is(err, domain.ErrShareForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "access_denied", "error_description": "Share link access denied."})
	case errors.Is(err, domain.ErrFileLimitExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "file_limit_exceeded", "error_description": "Session file budget is exhausted."})
	case errors.Is(err, domain.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large", "error_description": "File exceeds the size limit."})
	case errors.Is(err, domain.ErrFileTypeNotAllowed):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported_file_type", "error_description": "File type is not allowed."})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal error."})
	}
}
