package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/growbal/discovery/pkg/agent"
	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/llm"
	"github.com/growbal/discovery/pkg/models"
	"github.com/growbal/discovery/pkg/retriever"
	"github.com/growbal/discovery/pkg/services"
	"github.com/growbal/discovery/pkg/workflow"
	testdb "github.com/growbal/discovery/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedLLM struct {
	replies    []string
	streams    [][]string
	replyIdx   int
	streamIdx  int
	afterReply func(n int)
	seen       [][]llm.Message
}

func (s *scriptedLLM) Complete(_ context.Context, msgs []llm.Message) (string, error) {
	s.seen = append(s.seen, msgs)
	if s.replyIdx >= len(s.replies) {
		return "", fmt.Errorf("no scripted reply %d", s.replyIdx)
	}
	raw := s.replies[s.replyIdx]
	s.replyIdx++
	if s.afterReply != nil {
		s.afterReply(s.replyIdx)
	}
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

func (s *scriptedLLM) Stream(ctx context.Context, _ []llm.Message) (<-chan string, <-chan error) {
	deltas := make(chan string, 16)
	errs := make(chan error, 1)
	var script []string
	if s.streamIdx < len(s.streams) {
		script = s.streams[s.streamIdx]
	}
	s.streamIdx++
	go func() {
		defer close(deltas)
		defer close(errs)
		for _, d := range script {
			select {
			case deltas <- d:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return deltas, errs
}

type stubRetriever struct {
	matches []models.ProfileMatch
	total   int
	err     error
}

func (s *stubRetriever) SearchSemantic(context.Context, string, int, float64) ([]models.ProfileMatch, error) {
	return s.matches, s.err
}

func (s *stubRetriever) SearchTags(context.Context, []string, bool, int) ([]models.ProfileMatch, error) {
	return s.matches, s.err
}

func (s *stubRetriever) SearchHybrid(context.Context, string, []string, int) ([]models.ProfileMatch, error) {
	return s.matches, s.err
}

func (s *stubRetriever) CountTotal(context.Context) (int, error) { return s.total, nil }

var _ retriever.Retriever = (*stubRetriever)(nil)

func newTestOrchestrator(t *testing.T, l llm.Completer, r retriever.Retriever) (*Orchestrator, *services.SessionService) {
	t.Helper()
	client := testdb.NewTestClient(t)
	sessions := services.NewSessionService(client.Client)
	coordinator := workflow.NewCoordinator(
		agent.NewSearchAgent(l, r),
		agent.NewAdjudicator(l),
		agent.NewSummarizer(l, "https://growbal.io"),
	)
	o := NewOrchestrator(sessions, coordinator, NewResponder(l), l, Params{
		MaxResults:    7,
		MinSimilarity: 0.5,
		Threshold:     0.7,
		Style:         models.StyleBrief,
	})
	return o, sessions
}

func newSession(t *testing.T, sessions *services.SessionService) string {
	t.Helper()
	ownerID := 1
	session, _, err := sessions.GetOrCreate(context.Background(), models.GetOrCreateSessionRequest{
		OwnerID:     &ownerID,
		Country:     "UAE",
		ServiceType: "Tax Services",
	})
	require.NoError(t, err)
	return session.ID
}

func collectTurn(t *testing.T, run func(emitter *events.Emitter) error) ([]events.Event, error) {
	t.Helper()
	emitter := events.NewEmitter()
	done := make(chan []events.Event, 1)
	go func() {
		var got []events.Event
		for ev := range emitter.Events() {
			got = append(got, ev)
		}
		done <- got
	}()
	err := run(emitter)
	emitter.Close()
	return <-done, err
}

const classifyConversational = `{"tool_needed": true, "tool": "conversational", "summary": "Reply conversationally"}`
const classifySearch = `{"tool_needed": true, "tool": "search", "summary": "Find Tax Services providers in UAE: corporate tax help"}`
const strategyReply = `{"strategy": "semantic", "extracted_tags": [], "rewritten_query": "We provide corporate tax services", "rationale": "free-form"}`
const verdictReply = `{"relevance_score": 0.9, "reasoning": "Exact service and location match for this request.", "confidence": 0.8}`
const summaryReply = `{"executive_summary": "Alpha Tax is a strong fit for corporate tax work.", "provider_recommendations": ["**[Alpha Tax](https://growbal.io/profiles/1)**"], "key_insights": ["UAE based."]}`

func taxProfile() models.ProfileMatch {
	return models.ProfileMatch{
		ProfileID:       1,
		SimilarityScore: 0.9,
		ProfileText:     "Company Name: Alpha Tax\nCountry: UAE\nProvider Type: Tax Consultancy",
	}
}

func TestOrchestrator_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("conversational turn emits analysis then final and persists both sides", func(t *testing.T) {
		l := &scriptedLLM{replies: []string{
			classifyConversational,
			"Hello! Tell me what kind of tax help you need and I will search.",
		}}
		o, sessions := newTestOrchestrator(t, l, &stubRetriever{})
		sessionID := newSession(t, sessions)

		got, err := collectTurn(t, func(emitter *events.Emitter) error {
			return o.Handle(ctx, TurnRequest{
				SessionID: sessionID, Message: "hello there",
				Country: "UAE", ServiceType: "Tax Services",
			}, emitter)
		})
		require.NoError(t, err)

		require.Len(t, got, 2)
		assert.Equal(t, events.TypeAnalysis, got[0].Type)
		assert.Equal(t, events.AgentOrchestrator, got[0].Agent)
		assert.Equal(t, events.TypeFinal, got[1].Type)
		assert.True(t, got[1].Terminal())
		assert.Contains(t, got[1].Message, "Hello!")

		history, err := sessions.History(ctx, sessionID, 0)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.RoleUser, string(history[0].Role))
		assert.Equal(t, "hello there", history[0].Content)
		assert.Equal(t, models.RoleAssistant, string(history[1].Role))
		assert.Equal(t, got[1].Message, history[1].Content)
	})

	t.Run("search turn delegates to the workflow and persists the summary", func(t *testing.T) {
		l := &scriptedLLM{
			replies: []string{classifySearch, strategyReply, summaryReply},
			streams: [][]string{{verdictReply}},
		}
		o, sessions := newTestOrchestrator(t, l, &stubRetriever{matches: []models.ProfileMatch{taxProfile()}, total: 40})
		sessionID := newSession(t, sessions)

		got, err := collectTurn(t, func(emitter *events.Emitter) error {
			return o.Handle(ctx, TurnRequest{
				SessionID: sessionID, Message: "I need corporate tax help",
				Country: "UAE", ServiceType: "Tax Services",
			}, emitter)
		})
		require.NoError(t, err)

		assert.Equal(t, events.TypeAnalysis, got[0].Type)
		assert.Equal(t, "Find Tax Services providers in UAE: corporate tax help", got[0].Message)

		var terminals []events.Event
		for _, ev := range got {
			if ev.Terminal() {
				terminals = append(terminals, ev)
			}
		}
		require.Len(t, terminals, 1)
		assert.Equal(t, events.TypeComplete, terminals[0].Type)

		history, err := sessions.History(ctx, sessionID, 0)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.RoleAssistant, string(history[1].Role))
		assert.Contains(t, history[1].Content, "Alpha Tax is a strong fit")
		assert.Contains(t, history[1].Content, "**[Alpha Tax](https://growbal.io/profiles/1)**")
	})

	t.Run("overloaded turn keeps only the user message", func(t *testing.T) {
		l := &scriptedLLM{replies: []string{classifySearch, strategyReply}}
		o, sessions := newTestOrchestrator(t, l, &stubRetriever{
			err: fmt.Errorf("%w: 429", llm.ErrOverloaded),
		})
		sessionID := newSession(t, sessions)

		got, err := collectTurn(t, func(emitter *events.Emitter) error {
			return o.Handle(ctx, TurnRequest{
				SessionID: sessionID, Message: "I need corporate tax help",
				Country: "UAE", ServiceType: "Tax Services",
			}, emitter)
		})
		require.NoError(t, err)

		var terminals []events.Event
		for _, ev := range got {
			if ev.Terminal() {
				terminals = append(terminals, ev)
			}
		}
		require.Len(t, terminals, 1)
		assert.Equal(t, events.TypeError, terminals[0].Type)
		assert.Equal(t, "The assistant is overloaded right now. Please try again shortly.", terminals[0].Message)

		// The retry-later text is not an assistant answer; the turn stays
		// a lone user message.
		history, err := sessions.History(ctx, sessionID, 0)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.RoleUser, string(history[0].Role))
	})

	t.Run("search delegation scopes prompts to the session and transcript", func(t *testing.T) {
		l := &scriptedLLM{
			replies: []string{
				classifyConversational, "Hi! Tell me what you need.",
				classifySearch, strategyReply, summaryReply,
			},
			streams: [][]string{{verdictReply}},
		}
		o, sessions := newTestOrchestrator(t, l, &stubRetriever{matches: []models.ProfileMatch{taxProfile()}, total: 40})
		sessionID := newSession(t, sessions)

		for _, message := range []string{"hello there", "I need corporate tax help"} {
			_, err := collectTurn(t, func(emitter *events.Emitter) error {
				return o.Handle(ctx, TurnRequest{
					SessionID: sessionID, Message: message,
					Country: "UAE", ServiceType: "Tax Services",
				}, emitter)
			})
			require.NoError(t, err)
		}

		var strategy []llm.Message
		for _, msgs := range l.seen {
			if len(msgs) == 2 && strings.Contains(msgs[0].Content, "You route queries against a directory of") {
				strategy = msgs
			}
		}
		require.NotNil(t, strategy, "strategy prompt was never built")
		assert.Contains(t, strategy[0].Content, "Tax Services providers in UAE")
		assert.Contains(t, strategy[1].Content, "Recent conversation:")
		assert.Contains(t, strategy[1].Content, "hello there")
	})

	t.Run("classification parse failure falls back to the heuristic", func(t *testing.T) {
		l := &scriptedLLM{
			replies: []string{"not json at all", strategyReply, summaryReply},
			streams: [][]string{{verdictReply}},
		}
		o, sessions := newTestOrchestrator(t, l, &stubRetriever{matches: []models.ProfileMatch{taxProfile()}, total: 40})
		sessionID := newSession(t, sessions)

		got, err := collectTurn(t, func(emitter *events.Emitter) error {
			return o.Handle(ctx, TurnRequest{
				SessionID: sessionID, Message: "find me a tax advisor",
				Country: "UAE", ServiceType: "Tax Services",
			}, emitter)
		})
		require.NoError(t, err)
		assert.Equal(t, "Find Tax Services providers in UAE: find me a tax advisor", got[0].Message)
	})

	t.Run("duplicate submit with the same idempotency key appends one user turn", func(t *testing.T) {
		l := &scriptedLLM{replies: []string{
			classifyConversational, "Hi!",
			classifyConversational, "Hi again!",
		}}
		o, sessions := newTestOrchestrator(t, l, &stubRetriever{})
		sessionID := newSession(t, sessions)

		req := TurnRequest{
			SessionID: sessionID, Message: "hello",
			Country: "UAE", ServiceType: "Tax Services",
			IdempotencyKey: "turn-1",
		}
		for i := 0; i < 2; i++ {
			_, err := collectTurn(t, func(emitter *events.Emitter) error {
				return o.Handle(ctx, req, emitter)
			})
			require.NoError(t, err)
		}

		history, err := sessions.History(ctx, sessionID, 0)
		require.NoError(t, err)
		var userTurns int
		for _, m := range history {
			if string(m.Role) == models.RoleUser {
				userTurns++
			}
		}
		assert.Equal(t, 1, userTurns)
	})

	t.Run("cancellation mid-turn persists the marker assistant turn", func(t *testing.T) {
		turnCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		l := &scriptedLLM{
			replies: []string{classifySearch, strategyReply},
			streams: [][]string{{verdictReply}},
		}
		// Cancel right after the strategy call so the adjudicator hits the
		// candidate boundary with a dead context.
		l.afterReply = func(n int) {
			if n == 2 {
				cancel()
			}
		}
		o, sessions := newTestOrchestrator(t, l, &stubRetriever{matches: []models.ProfileMatch{taxProfile()}, total: 40})
		sessionID := newSession(t, sessions)

		_, err := collectTurn(t, func(emitter *events.Emitter) error {
			return o.Handle(turnCtx, TurnRequest{
				SessionID: sessionID, Message: "I need corporate tax help",
				Country: "UAE", ServiceType: "Tax Services",
			}, emitter)
		})
		require.NoError(t, err)

		history, err := sessions.History(ctx, sessionID, 0)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.RoleAssistant, string(history[1].Role))
		assert.Equal(t, "(Request cancelled before a response was produced.)", history[1].Content)
	})

	t.Run("empty message is rejected before any write", func(t *testing.T) {
		l := &scriptedLLM{}
		o, sessions := newTestOrchestrator(t, l, &stubRetriever{})
		sessionID := newSession(t, sessions)

		_, err := collectTurn(t, func(emitter *events.Emitter) error {
			return o.Handle(ctx, TurnRequest{
				SessionID: sessionID, Message: "   ",
				Country: "UAE", ServiceType: "Tax Services",
			}, emitter)
		})
		assert.True(t, services.IsValidationError(err))

		history, err := sessions.History(ctx, sessionID, 0)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

// A context that dies before the workflow starts must still deliver the
// cancelled terminal to the stream, every run. The loop guards against the
// forwarder racing the dead context on the send.
func TestRunSearch_DeadContextDeliversCancelledTerminal(t *testing.T) {
	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 40; i++ {
		l := &scriptedLLM{
			replies: []string{strategyReply},
			streams: [][]string{{verdictReply}},
		}
		coordinator := workflow.NewCoordinator(
			agent.NewSearchAgent(l, &stubRetriever{matches: []models.ProfileMatch{taxProfile()}, total: 40}),
			agent.NewAdjudicator(l),
			agent.NewSummarizer(l, "https://growbal.io"),
		)
		o := NewOrchestrator(nil, coordinator, nil, l, Params{
			MaxResults: 7, MinSimilarity: 0.5, Threshold: 0.7, Style: models.StyleBrief,
		})

		got, err := collectTurn(t, func(emitter *events.Emitter) error {
			o.runSearch(cancelledCtx, TurnRequest{Country: "UAE", ServiceType: "Tax Services"},
				models.OrchestratorDecision{Tool: models.ToolSearch, Summary: "find tax help"},
				nil, emitter)
			return nil
		})
		require.NoError(t, err)
		require.NotEmpty(t, got, "run %d: stream ended with no events", i)

		last := got[len(got)-1]
		assert.Equal(t, events.TypeCancelled, last.Type, "run %d: stream ended without the cancelled terminal", i)
		assert.True(t, last.Terminal())
	}
}

func TestHeuristicDecision(t *testing.T) {
	req := func(message string) TurnRequest {
		return TurnRequest{Message: message, Country: "UAE", ServiceType: "Tax Services"}
	}

	tests := []struct {
		name    string
		message string
		tool    string
	}{
		{"plain greeting", "hello!", models.ToolConversational},
		{"thanks", "thank you so much", models.ToolConversational},
		{"meta question", "what can you do?", models.ToolConversational},
		{"greeting with a search verb", "hi, find me a tax advisor", models.ToolSearch},
		{"plain request", "corporate tax filing for a free-zone company", models.ToolSearch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := heuristicDecision(req(tt.message))
			assert.Equal(t, tt.tool, decision.Tool)
			assert.NotEmpty(t, decision.Summary)
		})
	}

	decision := heuristicDecision(req("visa processing"))
	assert.Equal(t, "Find Tax Services providers in UAE: visa processing", decision.Summary)
}
