// Package http wires the Gin router.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/scribehub/scribe-auth/internal/config"
	"github.com/scribehub/scribe-auth/internal/http/handler"
	httpmiddleware "github.com/scribehub/scribe-auth/internal/http/middleware"
	"github.com/scribehub/scribe-auth/internal/middleware"
	"github.com/scribehub/scribe-auth/internal/scope"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, oauthHandler *handler.OAuthHandler, clientHandler *handler.ClientHandler, ephemeralHandler *handler.EphemeralHandler, auth *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/.well-known/oauth-authorization-server", oauthHandler.Metadata)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	oauth := r.Group("/oauth")
	{
		oauth.GET("/authorize", httpmiddleware.RequirePrincipal, oauthHandler.Authorize)
		oauth.POST("/token", oauthHandler.Token)
		oauth.POST("/revoke", oauthHandler.Revoke)
		oauth.POST("/introspect", oauthHandler.Introspect)
		oauth.GET("/userinfo", auth.RequireToken(""), oauthHandler.UserInfo)
	}

	clients := r.Group("/clients", httpmiddleware.RequirePrincipal)
	{
		clients.POST("", clientHandler.Create)
		clients.GET("", clientHandler.List)
		clients.GET("/:id", clientHandler.Get)
		clients.PATCH("/:id", clientHandler.Update)
		clients.DELETE("/:id", clientHandler.Delete)
	}

	ephemeral := r.Group("/ephemeral")
	{
		// Share resolution is open to anonymous callers; the stored link
		// policy decides whether an identity is required.
		ephemeral.GET("/share/:token", auth.OptionalToken, ephemeralHandler.ResolveShare)

		sessions := ephemeral.Group("/sessions", auth.RequireToken(scope.EphemeralRun))
		{
			sessions.POST("", ephemeralHandler.CreateSession)
			sessions.GET("/:id", ephemeralHandler.GetSession)
			sessions.DELETE("/:id", ephemeralHandler.DeleteSession)
			sessions.POST("/:id/files", ephemeralHandler.Process)
			sessions.GET("/:id/files/:fileId/result", ephemeralHandler.GetResult)
			sessions.POST("/:id/files/:fileId/share", ephemeralHandler.CreateShare)
		}

		ephemeral.GET("/policy", auth.RequireToken(scope.EphemeralRun), ephemeralHandler.Policy)
	}

	return r
}
