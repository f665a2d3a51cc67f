package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/growbal/discovery/pkg/agent"
	"github.com/growbal/discovery/pkg/config"
	"github.com/growbal/discovery/pkg/database"
	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/llm"
	"github.com/growbal/discovery/pkg/models"
	"github.com/growbal/discovery/pkg/orchestrator"
	"github.com/growbal/discovery/pkg/queue"
	"github.com/growbal/discovery/pkg/retriever"
	"github.com/growbal/discovery/pkg/services"
	"github.com/growbal/discovery/pkg/workflow"
	testdb "github.com/growbal/discovery/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type scriptedLLM struct {
	replies  []string
	replyIdx int
}

func (s *scriptedLLM) Complete(_ context.Context, _ []llm.Message) (string, error) {
	if s.replyIdx >= len(s.replies) {
		return "", fmt.Errorf("no scripted reply %d", s.replyIdx)
	}
	raw := s.replies[s.replyIdx]
	s.replyIdx++
	return raw, nil
}

func (s *scriptedLLM) CompleteJSON(ctx context.Context, msgs []llm.Message, out any) error {
	raw, err := s.Complete(ctx, msgs)
	if err != nil {
		return err
	}
	if decodeErr := llm.DecodeOutput(raw, out); decodeErr != nil {
		return &llm.ParseError{Raw: raw, Err: decodeErr}
	}
	return nil
}

func (s *scriptedLLM) Stream(_ context.Context, _ []llm.Message) (<-chan string, <-chan error) {
	deltas := make(chan string)
	errs := make(chan error, 1)
	close(deltas)
	close(errs)
	return deltas, errs
}

type emptyRetriever struct{}

func (emptyRetriever) SearchSemantic(context.Context, string, int, float64) ([]models.ProfileMatch, error) {
	return nil, nil
}

func (emptyRetriever) SearchTags(context.Context, []string, bool, int) ([]models.ProfileMatch, error) {
	return nil, nil
}

func (emptyRetriever) SearchHybrid(context.Context, string, []string, int) ([]models.ProfileMatch, error) {
	return nil, nil
}

func (emptyRetriever) CountTotal(context.Context) (int, error) { return 0, nil }

var _ retriever.Retriever = emptyRetriever{}

type testServer struct {
	server   *Server
	router   *gin.Engine
	sessions *services.SessionService
	executor *queue.TurnExecutor
	db       *database.Client
	llm      *scriptedLLM
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	client := testdb.NewTestClient(t)
	sessions := services.NewSessionService(client.Client)

	l := &scriptedLLM{}
	coordinator := workflow.NewCoordinator(
		agent.NewSearchAgent(l, emptyRetriever{}),
		agent.NewAdjudicator(l),
		agent.NewSummarizer(l, "https://growbal.io"),
	)
	orch := orchestrator.NewOrchestrator(sessions, coordinator, orchestrator.NewResponder(l), l, orchestrator.Params{
		MaxResults:    7,
		MinSimilarity: 0.5,
		Threshold:     0.7,
		Style:         models.StyleBrief,
	})

	cfg := &config.Config{
		Countries:    []string{"UAE", "Qatar"},
		ServiceTypes: []string{"Tax Services", "Legal Services"},
		CookieSecret: "test-secret",
	}
	creds := StaticCredentials{
		"demo@growbal.io": {OwnerID: 1, Password: "demo"},
	}
	executor := queue.NewTurnExecutor(time.Minute)
	t.Cleanup(executor.Stop)

	server := NewServer(cfg, client, sessions, orch, executor, creds)
	return &testServer{
		server:   server,
		router:   server.Router(),
		sessions: sessions,
		executor: executor,
		db:       client,
		llm:      l,
	}
}

func (ts *testServer) do(method, target string, form url.Values, authed bool) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if authed {
		req.AddCookie(&http.Cookie{Name: authCookie, Value: signOwner("test-secret", 1)})
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) createSession(t *testing.T, ownerID int) string {
	t.Helper()
	session, _, err := ts.sessions.GetOrCreate(context.Background(), models.GetOrCreateSessionRequest{
		OwnerID: &ownerID, Country: "UAE", ServiceType: "Tax Services",
	})
	require.NoError(t, err)
	return session.ID
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	t.Run("login sets cookie and redirects", func(t *testing.T) {
		w := ts.do(http.MethodPost, "/login", url.Values{
			"email": {"demo@growbal.io"}, "password": {"demo"},
		}, false)
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/country/", w.Header().Get("Location"))

		var found bool
		for _, cookie := range w.Result().Cookies() {
			if cookie.Name == authCookie {
				found = true
				id, ok := verifyOwner("test-secret", cookie.Value)
				assert.True(t, ok)
				assert.Equal(t, 1, id)
			}
		}
		assert.True(t, found, "auth cookie set")
	})

	t.Run("bad password is rejected", func(t *testing.T) {
		w := ts.do(http.MethodPost, "/login", url.Values{
			"email": {"demo@growbal.io"}, "password": {"wrong"},
		}, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("root redirects by auth state", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/", nil, false)
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))

		w = ts.do(http.MethodGet, "/", nil, true)
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/country/", w.Header().Get("Location"))
	})

	t.Run("protected routes require login", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/country/", nil, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = ts.do(http.MethodGet, "/api/sessions", nil, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("logout clears the cookie", func(t *testing.T) {
		w := ts.do(http.MethodPost, "/logout", nil, true)
		assert.Equal(t, http.StatusSeeOther, w.Code)
		for _, cookie := range w.Result().Cookies() {
			if cookie.Name == authCookie {
				assert.Less(t, cookie.MaxAge, 0)
			}
		}
	})
}

func TestCountrySelection(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/country/", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Countries    []string `json:"countries"`
		ServiceTypes []string `json:"service_types"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"UAE", "Qatar"}, body.Countries)
	assert.Equal(t, []string{"Tax Services", "Legal Services"}, body.ServiceTypes)
}

func TestProceedToChat(t *testing.T) {
	ts := newTestServer(t)

	t.Run("creates a session and redirects with its id", func(t *testing.T) {
		w := ts.do(http.MethodPost, "/proceed-to-chat", url.Values{
			"country": {"UAE"}, "service_type": {"Tax Services"},
		}, true)
		require.Equal(t, http.StatusSeeOther, w.Code)

		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/chat/", loc.Path)
		sessionID := loc.Query().Get("session_id")
		require.NotEmpty(t, sessionID)

		// The same tuple redirects to the same session.
		w = ts.do(http.MethodPost, "/proceed-to-chat", url.Values{
			"country": {"UAE"}, "service_type": {"Tax Services"},
		}, true)
		require.Equal(t, http.StatusSeeOther, w.Code)
		loc, err = url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, sessionID, loc.Query().Get("session_id"))
	})

	t.Run("rejects values outside the configured lists", func(t *testing.T) {
		w := ts.do(http.MethodPost, "/proceed-to-chat", url.Values{
			"country": {"Atlantis"}, "service_type": {"Tax Services"},
		}, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = ts.do(http.MethodPost, "/proceed-to-chat", url.Values{
			"country": {"UAE"}, "service_type": {"Alchemy"},
		}, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestChatPage(t *testing.T) {
	ts := newTestServer(t)

	t.Run("own session renders", func(t *testing.T) {
		sessionID := ts.createSession(t, 1)
		w := ts.do(http.MethodGet, "/chat/?session_id="+sessionID, nil, true)
		require.Equal(t, http.StatusOK, w.Code)

		var body SessionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, sessionID, body.SessionID)
		assert.Equal(t, "UAE", body.Country)
	})

	t.Run("missing and foreign sessions are both 404", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/chat/?session_id=nope", nil, true)
		assert.Equal(t, http.StatusNotFound, w.Code)

		foreign := ts.createSession(t, 2)
		w = ts.do(http.MethodGet, "/chat/?session_id="+foreign, nil, true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("session_id is required", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/chat/", nil, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSessionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	sessionID := ts.createSession(t, 1)

	_, err := ts.sessions.AppendMessage(context.Background(), models.AppendMessageRequest{
		SessionID: sessionID, Role: models.RoleUser, Content: "hello",
	})
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/sessions", nil, true)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Sessions []SessionResponse `json:"sessions"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Sessions, 1)
		assert.Equal(t, sessionID, body.Sessions[0].SessionID)
	})

	t.Run("messages", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/sessions/"+sessionID+"/messages", nil, true)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Messages []MessageResponse `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "hello", body.Messages[0].Content)
		assert.Equal(t, 1, body.Messages[0].Seq)
	})

	t.Run("foreign session is forbidden", func(t *testing.T) {
		foreign := ts.createSession(t, 2)
		w := ts.do(http.MethodGet, "/api/sessions/"+foreign+"/messages", nil, true)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestChatPublicStreaming(t *testing.T) {
	t.Run("conversational turn streams analysis then final", func(t *testing.T) {
		ts := newTestServer(t)
		sessionID := ts.createSession(t, 1)
		ts.llm.replies = []string{
			`{"tool_needed": true, "tool": "conversational", "summary": "Reply conversationally"}`,
			"Hello! Tell me what you need and I will search.",
		}

		w := ts.do(http.MethodGet, "/chat-public/?session_id="+sessionID+"&message=hello", nil, true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

		var frames []events.Event
		scanner := bufio.NewScanner(w.Body)
		for scanner.Scan() {
			var ev events.Event
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
			frames = append(frames, ev)
		}
		require.Len(t, frames, 2)
		assert.Equal(t, events.TypeAnalysis, frames[0].Type)
		assert.Equal(t, events.TypeFinal, frames[1].Type)
		assert.True(t, frames[1].Terminal())

		// The turn was persisted on both sides.
		history, err := ts.sessions.History(context.Background(), sessionID, 0)
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})

	t.Run("message is required", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(http.MethodGet, "/chat-public/", nil, false)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(http.MethodGet, "/chat-public/?session_id=nope&message=hi", nil, false)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("busy session is 409", func(t *testing.T) {
		ts := newTestServer(t)
		sessionID := ts.createSession(t, 1)

		// Occupy the session's turn slot.
		started := make(chan struct{})
		release := make(chan struct{})
		go func() {
			_ = ts.executor.Run(context.Background(), sessionID, func(context.Context) error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started
		defer close(release)

		w := ts.do(http.MethodGet, "/chat-public/?session_id="+sessionID+"&message=hi", nil, true)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}
