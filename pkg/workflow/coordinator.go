// Package workflow drives the three-stage pipeline Search → Adjudicator →
// Summarizer as a per-request state machine with a single terminal event.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/growbal/discovery/pkg/agent"
	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/llm"
	"github.com/growbal/discovery/pkg/models"
)

// noResultsMessage is a pinned user-visible string; golden tests depend on
// its exact wording.
const noResultsMessage = "No matching providers were found. Searched %d profiles and retrieved %d candidates — try rephrasing your request."

// overloadedMessage is shown when the LLM provider stayed overloaded
// through all retries.
const overloadedMessage = "The assistant is overloaded right now. Please try again shortly."

// Request carries the per-turn pipeline parameters. Country, ServiceType
// and Transcript scope every stage's prompt to the session.
type Request struct {
	Query         string
	Country       string
	ServiceType   string
	Transcript    string
	MaxResults    int
	MinSimilarity float64
	Threshold     float64
	Style         models.SummaryStyle
}

// Coordinator owns one run of the pipeline per call. The agents are
// stateless and shared across requests.
type Coordinator struct {
	search      *agent.SearchAgent
	adjudicator *agent.Adjudicator
	summarizer  *agent.Summarizer
	logger      *slog.Logger
}

// NewCoordinator creates a Coordinator over the three stage agents.
func NewCoordinator(search *agent.SearchAgent, adjudicator *agent.Adjudicator, summarizer *agent.Summarizer) *Coordinator {
	return &Coordinator{
		search:      search,
		adjudicator: adjudicator,
		summarizer:  summarizer,
		logger:      slog.Default().With("component", "workflow"),
	}
}

// Run executes the pipeline, forwarding every agent event wrapped with its
// agent name, and terminates the stream with exactly one of complete,
// no_results, error, or cancelled. The returned state reflects the final
// phase; Run never returns an error past the event stream.
func (c *Coordinator) Run(ctx context.Context, req Request, emitter *events.Emitter) *models.WorkflowState {
	state := &models.WorkflowState{
		WorkflowID:    uuid.New().String(),
		OriginalQuery: req.Query,
		MaxResults:    req.MaxResults,
		Phase:         models.PhaseInit,
		StartedAt:     time.Now(),
	}
	q := models.QueryContext{
		Query:       req.Query,
		Country:     req.Country,
		ServiceType: req.ServiceType,
		Transcript:  req.Transcript,
	}

	_ = emitter.Emit(ctx, events.Event{
		Agent:      events.AgentWorkflow,
		Type:       events.TypeStart,
		WorkflowID: state.WorkflowID,
		Query:      req.Query,
	})

	// Stage 1: search.
	state.Phase = models.PhaseSearching
	searchOut, err := runStage(ctx, state, emitter, events.AgentSearch, func(emit agent.EmitFunc) (*models.SearchOutput, error) {
		return c.search.Run(ctx, q, req.MaxResults, req.MinSimilarity, emit)
	})
	if err != nil {
		c.terminate(ctx, state, emitter, err)
		return state
	}
	state.Search = searchOut

	if len(searchOut.CandidateProfiles) == 0 {
		c.noResults(ctx, state, emitter)
		return state
	}

	// Stage 2: adjudication.
	state.Phase = models.PhaseAdjudicating
	adjOut, err := runStage(ctx, state, emitter, events.AgentAdjudicator, func(emit agent.EmitFunc) (*models.AdjudicatorOutput, error) {
		return c.adjudicator.Run(ctx, q, searchOut.CandidateProfiles, req.Threshold, emit)
	})
	if err != nil {
		c.terminate(ctx, state, emitter, err)
		return state
	}
	state.Adjudication = adjOut

	if len(adjOut.RelevantProfiles) == 0 {
		c.noResults(ctx, state, emitter)
		return state
	}

	// Stage 3: summarization.
	state.Phase = models.PhaseSummarizing
	sumOut, err := runStage(ctx, state, emitter, events.AgentSummarizer, func(emit agent.EmitFunc) (*models.SummarizerOutput, error) {
		return c.summarizer.Run(ctx, q, adjOut.RelevantProfiles, req.Style, emit)
	})
	if err != nil {
		c.terminate(ctx, state, emitter, err)
		return state
	}
	state.Summary = sumOut

	state.Phase = models.PhaseDone
	c.end(state)
	_ = emitter.Emit(ctx, events.Event{
		Agent:      events.AgentWorkflow,
		Type:       events.TypeComplete,
		WorkflowID: state.WorkflowID,
		Success:    events.Bool(true),
		Summary:    renderSummary(sumOut),
		Statistics: &sumOut.Statistics,
	})
	return state
}

// runStage executes one agent stage with its events wrapped with the agent
// name, recording start/end and failure in the state's stage log.
func runStage[T any](ctx context.Context, state *models.WorkflowState, emitter *events.Emitter, agentName string, run func(agent.EmitFunc) (*T, error)) (*T, error) {
	state.StageLog = append(state.StageLog, models.StageRecord{
		Agent:     agentName,
		StartedAt: time.Now(),
	})
	record := &state.StageLog[len(state.StageLog)-1]

	emit := func(ev events.Event) error {
		ev.Agent = agentName
		return emitter.Emit(ctx, ev)
	}

	out, err := run(emit)
	now := time.Now()
	record.EndedAt = &now
	record.OK = err == nil
	if err != nil {
		record.Message = err.Error()
		state.Errors = append(state.Errors, fmt.Sprintf("%s: %v", agentName, err))
	}
	return out, err
}

// noResults terminates the run in the no_results state with its
// deterministic payload.
func (c *Coordinator) noResults(ctx context.Context, state *models.WorkflowState, emitter *events.Emitter) {
	state.Phase = models.PhaseNoResults
	c.end(state)

	searched, candidates := 0, 0
	if state.Search != nil {
		searched = state.Search.TotalProfilesSearched
		candidates = len(state.Search.CandidateProfiles)
	}
	_ = emitter.Emit(ctx, events.Event{
		Agent:      events.AgentWorkflow,
		Type:       events.TypeNoResults,
		WorkflowID: state.WorkflowID,
		NoResults:  events.Bool(true),
		Message:    fmt.Sprintf(noResultsMessage, searched, candidates),
	})
}

// terminate maps a stage failure to the cancelled or error terminal.
func (c *Coordinator) terminate(ctx context.Context, state *models.WorkflowState, emitter *events.Emitter, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		state.Phase = models.PhaseCancelled
		c.end(state)
		ev := events.Event{
			Agent:      events.AgentWorkflow,
			Type:       events.TypeCancelled,
			WorkflowID: state.WorkflowID,
			Message:    "The request was cancelled.",
		}
		// ctx is already dead; a blocking Emit would race its own
		// cancellation.
		if !emitter.TryEmit(ev) {
			c.logger.Warn("dropped cancelled terminal, stream buffer full",
				"workflow_id", state.WorkflowID)
		}
		return
	}

	state.Phase = models.PhaseError
	c.end(state)

	message := "Something went wrong while processing your request."
	if errors.Is(err, llm.ErrOverloaded) {
		message = overloadedMessage
	}
	c.logger.Error("workflow failed", "workflow_id", state.WorkflowID, "error", err)
	_ = emitter.Emit(ctx, events.Event{
		Agent:      events.AgentWorkflow,
		Type:       events.TypeError,
		WorkflowID: state.WorkflowID,
		Error:      err.Error(),
		Message:    message,
	})
}

func (c *Coordinator) end(state *models.WorkflowState) {
	now := time.Now()
	state.EndedAt = &now
}

// renderSummary flattens the summarizer output into the final answer text
// persisted as the assistant turn.
func renderSummary(out *models.SummarizerOutput) string {
	text := out.ExecutiveSummary
	if len(out.ProviderRecommendations) > 0 {
		text += "\n\nRecommendations:"
		for i, rec := range out.ProviderRecommendations {
			text += fmt.Sprintf("\n%d. %s", i+1, rec)
		}
	}
	if len(out.KeyInsights) > 0 {
		text += "\n\nKey insights:"
		for _, insight := range out.KeyInsights {
			text += "\n- " + insight
		}
	}
	return text
}
