package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/models"
	"github.com/growbal/discovery/pkg/orchestrator"
)

// ChatPublic handles GET /chat-public/: one user message in, a stream of
// newline-delimited JSON event frames out. The stream ends with exactly
// one terminal event (complete, no_results, final, error, or cancelled);
// client disconnect cancels the in-flight turn.
func (s *Server) ChatPublic(c *gin.Context) {
	message := c.Query("message")
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	session, err := s.resolveChatSession(c)
	if err != nil {
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	ctx := c.Request.Context()
	emitter := events.NewEmitter()
	done := make(chan error, 1)
	go func() {
		done <- s.executor.Run(ctx, session.ID, func(turnCtx context.Context) error {
			return s.orchestrator.Handle(turnCtx, orchestrator.TurnRequest{
				SessionID:      session.ID,
				Message:        message,
				Country:        session.Country,
				ServiceType:    session.ServiceType,
				IdempotencyKey: c.Query("idempotency_key"),
			}, emitter)
		})
		emitter.Close()
	}()

	// Hold the response open until the first event so slot-contention and
	// validation failures can still use a proper status code.
	first, ok := <-emitter.Events()
	if !ok {
		if err := <-done; err != nil {
			status, msg := mapServiceError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Writer.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	writeFrame := func(ev events.Event) {
		if err := enc.Encode(ev); err != nil {
			return
		}
		c.Writer.Flush()
	}

	writeFrame(first)
	for ev := range emitter.Events() {
		writeFrame(ev)
	}
	<-done
}

// resolveChatSession loads the referenced session or creates one for the
// given country and service type.
func (s *Server) resolveChatSession(c *gin.Context) (sessionRef, error) {
	sessionID := c.Query("session_id")
	country := c.Query("country")
	serviceType := c.Query("service_type")

	if sessionID != "" && country == "" && serviceType == "" {
		session, err := s.sessions.Get(c.Request.Context(), sessionID)
		if err != nil {
			return sessionRef{}, err
		}
		return sessionRef{ID: session.ID, Country: session.Country, ServiceType: session.ServiceType}, nil
	}

	session, _, err := s.sessions.GetOrCreate(c.Request.Context(), models.GetOrCreateSessionRequest{
		SessionID:   sessionID,
		OwnerID:     currentOwner(c),
		Country:     country,
		ServiceType: serviceType,
	})
	if err != nil {
		return sessionRef{}, err
	}
	return sessionRef{ID: session.ID, Country: session.Country, ServiceType: session.ServiceType}, nil
}

type sessionRef struct {
	ID          string
	Country     string
	ServiceType string
}
