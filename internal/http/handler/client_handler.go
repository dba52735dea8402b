package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scribehub/scribe-auth/internal/domain"
	"github.com/scribehub/scribe-auth/internal/http/middleware"
	"github.com/scribehub/scribe-auth/internal/registry"
)

// ClientHandler serves client application registration and management.
type ClientHandler struct {
	Registry *registry.Service
}

// NewClientHandler creates the handler.
func NewClientHandler(reg *registry.Service) *ClientHandler {
	return &ClientHandler{Registry: reg}
}

type clientResponse struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scopes       []string  `json:"scopes"`
	AppType      string    `json:"app_type"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toClientResponse(client domain.ClientApplication) clientResponse {
	return clientResponse{
		ID:           strconv.FormatInt(client.ID, 10),
		ClientID:     client.ClientID,
		Name:         client.Name,
		Description:  client.Description,
		RedirectURIs: client.RedirectURIs,
		Scopes:       client.Scopes,
		AppType:      string(client.AppType),
		Active:       client.Active,
		CreatedAt:    client.CreatedAt,
		UpdatedAt:    client.UpdatedAt,
	}
}

// Create registers a new client application. The plaintext secret appears
// in this response and nowhere else.
func (h *ClientHandler) Create(c *gin.Context) {
	ownerID, _ := middleware.GetPrincipal(c)

	var req struct {
		Name         string   `json:"name"`
		Description  string   `json:"description"`
		RedirectURIs []string `json:"redirect_uris"`
		Scopes       []string `json:"scopes"`
		AppType      string   `json:"app_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}

	out, err := h.Registry.Create(c.Request.Context(), registry.CreateInput{
		OwnerID:      ownerID,
		Name:         req.Name,
		Description:  req.Description,
		RedirectURIs: req.RedirectURIs,
		Scopes:       req.Scopes,
		AppType:      domain.AppType(req.AppType),
	})
	if err != nil {
		respondRegistryError(c, err)
		return
	}

	resp := gin.H{
		"client":        toClientResponse(out.Client),
		"client_secret": out.PlainSecret,
	}
	c.JSON(http.StatusCreated, resp)
}

// List returns the caller's registered applications.
func (h *ClientHandler) List(c *gin.Context) {
	ownerID, _ := middleware.GetPrincipal(c)

	clients, err := h.Registry.List(c.Request.Context(), ownerID)
	if err != nil {
		respondRegistryError(c, err)
		return
	}
	items := make([]clientResponse, 0, len(clients))
	for _, client := range clients {
		items = append(items, toClientResponse(client))
	}
	c.JSON(http.StatusOK, gin.H{"clients": items})
}

// Get returns one application owned by the caller.
func (h *ClientHandler) Get(c *gin.Context) {
	ownerID, _ := middleware.GetPrincipal(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	client, err := h.Registry.Get(c.Request.Context(), id, ownerID)
	if err != nil {
		respondRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, toClientResponse(client))
}

// Update applies a partial update to an application.
func (h *ClientHandler) Update(c *gin.Context) {
	ownerID, _ := middleware.GetPrincipal(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Name         *string  `json:"name"`
		Description  *string  `json:"description"`
		RedirectURIs []string `json:"redirect_uris"`
		Scopes       []string `json:"scopes"`
		Active       *bool    `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}

	client, err := h.Registry.Update(c.Request.Context(), id, ownerID, domain.ClientPatch{
		Name:         req.Name,
		Description:  req.Description,
		RedirectURIs: req.RedirectURIs,
		Scopes:       req.Scopes,
		Active:       req.Active,
	})
	if err != nil {
		respondRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, toClientResponse(client))
}

// Delete removes an application and revokes every token issued to it.
func (h *ClientHandler) Delete(c *gin.Context) {
	ownerID, _ := middleware.GetPrincipal(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.Registry.Delete(c.Request.Context(), id, ownerID); err != nil {
		respondRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid application id."})
		return 0, false
	}
	return id, true
}

func respondRegistryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrClientNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Client application not found."})
	case errors.Is(err, registry.ErrNameRequired),
		errors.Is(err, registry.ErrNoRedirectURIs),
		errors.Is(err, registry.ErrInvalidRedirectURI),
		errors.Is(err, registry.ErrDisallowedScope),
		errors.Is(err, registry.ErrInvalidAppType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal error."})
	}
}
