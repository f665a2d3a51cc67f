// Package api exposes the HTTP surface: login, session navigation, the
// streaming chat endpoint, and health.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/growbal/discovery/pkg/config"
	"github.com/growbal/discovery/pkg/database"
	"github.com/growbal/discovery/pkg/orchestrator"
	"github.com/growbal/discovery/pkg/queue"
	"github.com/growbal/discovery/pkg/services"
	"github.com/growbal/discovery/pkg/version"
)

// Server holds the handler dependencies.
type Server struct {
	cfg          *config.Config
	db           *database.Client
	sessions     *services.SessionService
	orchestrator *orchestrator.Orchestrator
	executor     *queue.TurnExecutor
	creds        CredentialStore
	cookieSecret string
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, db *database.Client, sessions *services.SessionService, orch *orchestrator.Orchestrator, executor *queue.TurnExecutor, creds CredentialStore) *Server {
	return &Server{
		cfg:          cfg,
		db:           db,
		sessions:     sessions,
		orchestrator: orch,
		executor:     executor,
		creds:        creds,
		cookieSecret: cfg.CookieSecret,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders(), s.authMiddleware())

	r.GET("/health", s.Health)
	r.GET("/", s.Root)
	r.GET("/login", s.LoginPage)
	r.POST("/login", s.Login)
	r.POST("/logout", s.Logout)

	r.GET("/chat-public/", s.ChatPublic)

	authed := r.Group("/", requireAuth())
	authed.GET("/country/", s.CountrySelection)
	authed.POST("/proceed-to-chat", s.ProceedToChat)
	authed.GET("/chat/", s.ChatPage)

	apiGroup := r.Group("/api", requireAuth())
	apiGroup.GET("/sessions", s.ListSessions)
	apiGroup.GET("/sessions/:id/messages", s.SessionMessages)
	apiGroup.POST("/sessions/:id/cancel", s.CancelTurn)

	return r
}

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// Health returns the service health, including a database ping.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
		"version":  version.Full(),
	})
}

// Root redirects to login or to the country selection landing.
func (s *Server) Root(c *gin.Context) {
	if currentOwner(c) == nil {
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}
	c.Redirect(http.StatusSeeOther, "/country/")
}

// CountrySelection returns the allowed country and service type values for
// the selection UI.
func (s *Server) CountrySelection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"countries":     s.cfg.Countries,
		"service_types": s.cfg.ServiceTypes,
	})
}
