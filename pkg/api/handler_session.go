package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/growbal/discovery/ent"
	"github.com/growbal/discovery/pkg/models"
	"github.com/growbal/discovery/pkg/services"
)

// SessionResponse is the JSON shape of one chat session.
type SessionResponse struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	Country      string    `json:"country"`
	ServiceType  string    `json:"service_type"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// MessageResponse is the JSON shape of one session message.
type MessageResponse struct {
	Seq       int       `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func toSessionResponse(s *ent.ChatSession) SessionResponse {
	return SessionResponse{
		SessionID:    s.ID,
		Title:        s.Title,
		Country:      s.Country,
		ServiceType:  s.ServiceType,
		Active:       s.Active,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
}

func toMessageResponse(m *ent.Message) MessageResponse {
	return MessageResponse{
		Seq:       m.Seq,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// ProceedToChat handles POST /proceed-to-chat: resolves or creates the
// session for the chosen country and service type, then redirects to the
// chat page.
func (s *Server) ProceedToChat(c *gin.Context) {
	country := formOrQuery(c, "country")
	serviceType := formOrQuery(c, "service_type")
	sessionID := formOrQuery(c, "session_id")

	if !s.cfg.AllowedCountry(country) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown country"})
		return
	}
	if !s.cfg.AllowedServiceType(serviceType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown service type"})
		return
	}

	session, _, err := s.sessions.GetOrCreate(c.Request.Context(), models.GetOrCreateSessionRequest{
		SessionID:   sessionID,
		OwnerID:     currentOwner(c),
		Country:     country,
		ServiceType: serviceType,
	})
	if err != nil {
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.Redirect(http.StatusSeeOther, "/chat/?session_id="+url.QueryEscape(session.ID))
}

// ChatPage handles GET /chat/: the per-session page guard. A session that
// is missing or owned by someone else is reported as not found.
func (s *Server) ChatPage(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	session, err := s.sessions.GetOwned(c.Request.Context(), sessionID, currentOwner(c))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrForbidden) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(session))
}

// ListSessions handles GET /api/sessions: the owner's sessions, most
// recently active first.
func (s *Server) ListSessions(c *gin.Context) {
	owner := currentOwner(c)
	activeOnly := c.Query("active") == "true"

	list, err := s.sessions.ListForOwner(c.Request.Context(), *owner, activeOnly)
	if err != nil {
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	out := make([]SessionResponse, 0, len(list))
	for _, session := range list {
		out = append(out, toSessionResponse(session))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// SessionMessages handles GET /api/sessions/:id/messages.
func (s *Server) SessionMessages(c *gin.Context) {
	sessionID := c.Param("id")

	if _, err := s.sessions.GetOwned(c.Request.Context(), sessionID, currentOwner(c)); err != nil {
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	history, err := s.sessions.History(c.Request.Context(), sessionID, 0)
	if err != nil {
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	out := make([]MessageResponse, 0, len(history))
	for _, m := range history {
		out = append(out, toMessageResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// CancelTurn handles POST /api/sessions/:id/cancel: aborts the session's
// in-flight turn, if any.
func (s *Server) CancelTurn(c *gin.Context) {
	sessionID := c.Param("id")

	if _, err := s.sessions.GetOwned(c.Request.Context(), sessionID, currentOwner(c)); err != nil {
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	cancelled := s.executor.Cancel(sessionID)
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

func formOrQuery(c *gin.Context, key string) string {
	if v := c.PostForm(key); v != "" {
		return v
	}
	return c.Query(key)
}
