package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/growbal/discovery/pkg/agent"
	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/llm"
	"github.com/growbal/discovery/pkg/models"
	"github.com/growbal/discovery/pkg/retriever"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM serves strategy, adjudication, and summary calls from queues.
type scriptedLLM struct {
	replies   []string
	replyErr  error
	streams   [][]string
	replyIdx  int
	streamIdx int
}

func (s *scriptedLLM) Complete(_ context.Context, _ []llm.Message) (string, error) {
	if s.replyErr != nil {
		return "", s.replyErr
	}
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
		if s.replyErr != nil {
			errs <- s.replyErr
			return
		}
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

func newCoordinator(l llm.Completer, r retriever.Retriever) *Coordinator {
	return NewCoordinator(
		agent.NewSearchAgent(l, r),
		agent.NewAdjudicator(l),
		agent.NewSummarizer(l, "https://growbal.io"),
	)
}

func collect(t *testing.T, run func(emitter *events.Emitter)) []events.Event {
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
	run(emitter)
	emitter.Close()
	return <-done
}

func terminalEvents(got []events.Event) []events.Event {
	var terms []events.Event
	for _, ev := range got {
		if ev.Terminal() {
			terms = append(terms, ev)
		}
	}
	return terms
}

func candidateProfiles(n int) []models.ProfileMatch {
	out := make([]models.ProfileMatch, n)
	for i := range out {
		out[i] = models.ProfileMatch{
			ProfileID:       i + 1,
			SimilarityScore: 0.9 - 0.05*float64(i),
			ProfileText: fmt.Sprintf(
				"Company Name: Firm %d\nCountry: UAE\nProvider Type: Tax Consultancy", i+1),
		}
	}
	return out
}

const strategyReply = `{"strategy": "semantic", "extracted_tags": [], "rewritten_query": "We provide tax services", "rationale": "free-form"}`
const summaryReply = `{"executive_summary": "Two providers stand out for your request today.", "provider_recommendations": ["**[Firm 1](https://growbal.io/profiles/1)**", "**[Firm 2](https://growbal.io/profiles/2)**"], "key_insights": ["Both are UAE based."]}`

func relevantVerdict(score float64) []string {
	return []string{fmt.Sprintf(`{"relevance_score": %.2f, "reasoning": "Solid service and location fit for this request.", "confidence": 0.8}`, score)}
}

func TestCoordinator_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("full pipeline emits one complete terminal", func(t *testing.T) {
		l := &scriptedLLM{
			replies: []string{strategyReply, summaryReply},
			streams: [][]string{relevantVerdict(0.9), relevantVerdict(0.85)},
		}
		r := &stubRetriever{matches: candidateProfiles(2), total: 50}
		c := newCoordinator(l, r)

		var state *models.WorkflowState
		got := collect(t, func(emitter *events.Emitter) {
			state = c.Run(ctx, Request{
				Query: "tax services for my startup", MaxResults: 7,
				MinSimilarity: 0.5, Threshold: 0.7, Style: models.StyleBrief,
			}, emitter)
		})

		terms := terminalEvents(got)
		require.Len(t, terms, 1)
		assert.Equal(t, events.TypeComplete, terms[0].Type)
		require.NotNil(t, terms[0].Success)
		assert.True(t, *terms[0].Success)
		assert.NotEmpty(t, terms[0].Summary)
		require.NotNil(t, terms[0].Statistics)
		assert.Equal(t, 2, terms[0].Statistics.TotalProviders)

		// Cross-agent ordering: search events, then adjudicator, then
		// summarizer, then the workflow terminal.
		var agentOrder []string
		for _, ev := range got {
			if len(agentOrder) == 0 || agentOrder[len(agentOrder)-1] != ev.Agent {
				agentOrder = append(agentOrder, ev.Agent)
			}
		}
		assert.Equal(t, []string{
			events.AgentWorkflow, events.AgentSearch, events.AgentAdjudicator,
			events.AgentSummarizer, events.AgentWorkflow,
		}, agentOrder)

		assert.Equal(t, models.PhaseDone, state.Phase)
		assert.NotNil(t, state.Search)
		assert.NotNil(t, state.Adjudication)
		assert.NotNil(t, state.Summary)
		require.Len(t, state.StageLog, 3)
		for _, record := range state.StageLog {
			assert.True(t, record.OK)
			assert.NotNil(t, record.EndedAt)
		}
	})

	t.Run("zero candidates short-circuits to no_results", func(t *testing.T) {
		l := &scriptedLLM{replies: []string{strategyReply}}
		r := &stubRetriever{matches: nil, total: 80}
		c := newCoordinator(l, r)

		var state *models.WorkflowState
		got := collect(t, func(emitter *events.Emitter) {
			state = c.Run(ctx, Request{Query: "anything", MaxResults: 7, Threshold: 0.7}, emitter)
		})

		terms := terminalEvents(got)
		require.Len(t, terms, 1)
		assert.Equal(t, events.TypeNoResults, terms[0].Type)
		require.NotNil(t, terms[0].NoResults)
		assert.True(t, *terms[0].NoResults)
		assert.Equal(t,
			"No matching providers were found. Searched 80 profiles and retrieved 0 candidates — try rephrasing your request.",
			terms[0].Message)

		// Adjudicator and summarizer never ran.
		for _, ev := range got {
			assert.NotEqual(t, events.AgentAdjudicator, ev.Agent)
			assert.NotEqual(t, events.AgentSummarizer, ev.Agent)
		}
		assert.Equal(t, models.PhaseNoResults, state.Phase)
		require.Len(t, state.StageLog, 1)
	})

	t.Run("zero relevant short-circuits to no_results", func(t *testing.T) {
		l := &scriptedLLM{
			replies: []string{strategyReply},
			streams: [][]string{
				{`{"relevance_score": 0.2, "reasoning": "Wrong location for the request.", "confidence": 0.9}`},
			},
		}
		r := &stubRetriever{matches: candidateProfiles(1), total: 80}
		c := newCoordinator(l, r)

		var state *models.WorkflowState
		got := collect(t, func(emitter *events.Emitter) {
			state = c.Run(ctx, Request{Query: "anything", MaxResults: 7, Threshold: 0.7}, emitter)
		})

		terms := terminalEvents(got)
		require.Len(t, terms, 1)
		assert.Equal(t, events.TypeNoResults, terms[0].Type)
		assert.Contains(t, terms[0].Message, "retrieved 1 candidates")

		for _, ev := range got {
			assert.NotEqual(t, events.AgentSummarizer, ev.Agent)
		}
		assert.Equal(t, models.PhaseNoResults, state.Phase)
	})

	t.Run("retriever failure terminates with error", func(t *testing.T) {
		l := &scriptedLLM{replies: []string{strategyReply}}
		r := &stubRetriever{err: assert.AnError}
		c := newCoordinator(l, r)

		var state *models.WorkflowState
		got := collect(t, func(emitter *events.Emitter) {
			state = c.Run(ctx, Request{Query: "anything", MaxResults: 7, Threshold: 0.7}, emitter)
		})

		terms := terminalEvents(got)
		require.Len(t, terms, 1)
		assert.Equal(t, events.TypeError, terms[0].Type)
		assert.NotEmpty(t, terms[0].Error)
		assert.Equal(t, models.PhaseError, state.Phase)
		assert.NotEmpty(t, state.Errors)
	})

	t.Run("overload maps to the retry-later message", func(t *testing.T) {
		l := &scriptedLLM{replyErr: fmt.Errorf("%w: 429", llm.ErrOverloaded)}
		// Strategy call fails over to semantic fallback; the retriever
		// succeeds; adjudication streams fail with overload, producing
		// failed verdicts; no relevant profiles -> no_results. To force a
		// hard error instead, fail retrieval too.
		r := &stubRetriever{err: fmt.Errorf("%w: 429", llm.ErrOverloaded)}
		c := newCoordinator(l, r)

		got := collect(t, func(emitter *events.Emitter) {
			c.Run(ctx, Request{Query: "anything", MaxResults: 7, Threshold: 0.7}, emitter)
		})

		terms := terminalEvents(got)
		require.Len(t, terms, 1)
		assert.Equal(t, events.TypeError, terms[0].Type)
		assert.Equal(t, "The assistant is overloaded right now. Please try again shortly.", terms[0].Message)
	})

	t.Run("cancellation yields a cancelled terminal", func(t *testing.T) {
		cancelledCtx, cancel := context.WithCancel(ctx)
		cancel()

		l := &scriptedLLM{replies: []string{strategyReply}}
		r := &stubRetriever{matches: candidateProfiles(1), total: 10}
		c := newCoordinator(l, r)

		var state *models.WorkflowState
		got := collect(t, func(emitter *events.Emitter) {
			state = c.Run(cancelledCtx, Request{Query: "anything", MaxResults: 7, Threshold: 0.7}, emitter)
		})

		terms := terminalEvents(got)
		require.Len(t, terms, 1)
		assert.Equal(t, events.TypeCancelled, terms[0].Type)
		assert.Equal(t, models.PhaseCancelled, state.Phase)
	})
}

func TestRenderSummary(t *testing.T) {
	out := &models.SummarizerOutput{
		ExecutiveSummary:        "Two providers stand out.",
		ProviderRecommendations: []string{"**[Firm 1](https://growbal.io/profiles/1)**", "Firm 2 (UAE)"},
		KeyInsights:             []string{"Both are UAE based."},
	}
	text := renderSummary(out)
	assert.Contains(t, text, "Two providers stand out.")
	assert.Contains(t, text, "1. **[Firm 1](https://growbal.io/profiles/1)**")
	assert.Contains(t, text, "2. Firm 2 (UAE)")
	assert.Contains(t, text, "- Both are UAE based.")
}
