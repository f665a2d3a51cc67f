// Package orchestrator routes one user turn: it persists the message,
// classifies the intent, and delegates to either the discovery workflow or
// the conversational responder, persisting the assistant's final text.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/growbal/discovery/pkg/agent/prompt"
	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/llm"
	"github.com/growbal/discovery/pkg/models"
	"github.com/growbal/discovery/pkg/services"
	"github.com/growbal/discovery/pkg/workflow"
)

// transcriptTurns is how much recent history the classifier sees.
const transcriptTurns = 5

// cancelledMarker is persisted as the assistant turn when a request is
// cancelled before any substantive content was produced.
const cancelledMarker = "(Request cancelled before a response was produced.)"

// Params are the per-deployment pipeline defaults, taken from config.
type Params struct {
	MaxResults    int
	MinSimilarity float64
	Threshold     float64
	Style         models.SummaryStyle
}

// TurnRequest is one user turn against an existing session.
type TurnRequest struct {
	SessionID   string
	Message     string
	Country     string
	ServiceType string
	// IdempotencyKey makes a retried submit of the same turn append the
	// user message only once. Optional.
	IdempotencyKey string
}

// Orchestrator owns the per-turn routing. Stateless across turns; safe for
// concurrent use on distinct sessions.
type Orchestrator struct {
	sessions    *services.SessionService
	coordinator *workflow.Coordinator
	responder   *Responder
	llm         llm.Completer
	params      Params
	logger      *slog.Logger
}

// NewOrchestrator wires the orchestrator over its collaborators.
func NewOrchestrator(sessions *services.SessionService, coordinator *workflow.Coordinator, responder *Responder, completer llm.Completer, params Params) *Orchestrator {
	return &Orchestrator{
		sessions:    sessions,
		coordinator: coordinator,
		responder:   responder,
		llm:         completer,
		params:      params,
		logger:      slog.Default().With("component", "orchestrator"),
	}
}

// Handle processes one turn, emitting the event stream through emitter. The
// user message is persisted before any LLM call; the assistant's final text
// (or a cancellation marker) is persisted after the terminal event. Handle
// does not close the emitter.
func (o *Orchestrator) Handle(ctx context.Context, req TurnRequest, emitter *events.Emitter) error {
	if strings.TrimSpace(req.Message) == "" {
		return services.NewValidationError("message", "must not be empty")
	}

	_, err := o.sessions.AppendMessage(ctx, models.AppendMessageRequest{
		SessionID:      req.SessionID,
		Role:           models.RoleUser,
		Content:        req.Message,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return fmt.Errorf("persisting user turn: %w", err)
	}

	turns, err := o.sessions.HistoryAsTurns(ctx, req.SessionID)
	if err != nil {
		o.logger.Warn("loading history failed, classifying without transcript",
			"session_id", req.SessionID, "error", err)
		turns = nil
	}
	if len(turns) > transcriptTurns {
		turns = turns[len(turns)-transcriptTurns:]
	}

	decision := o.classify(ctx, req, turns)
	_ = emitter.Emit(ctx, events.Event{
		Agent:   events.AgentOrchestrator,
		Type:    events.TypeAnalysis,
		Message: decision.Summary,
	})

	var finalText string
	if decision.Tool == models.ToolConversational {
		finalText = o.runConversational(ctx, req, turns, emitter)
	} else {
		finalText = o.runSearch(ctx, req, decision, turns, emitter)
	}

	o.persistAssistant(ctx, req.SessionID, finalText)
	return nil
}

// classify routes the turn via the LLM, falling back to the keyword
// heuristic when the call or its output is unusable.
func (o *Orchestrator) classify(ctx context.Context, req TurnRequest, turns []models.Turn) models.OrchestratorDecision {
	var decision models.OrchestratorDecision
	err := o.llm.CompleteJSON(ctx, prompt.BuildClassificationMessages(
		req.Message, req.Country, req.ServiceType, prompt.FormatTranscript(turns)), &decision)
	if err == nil && validTool(decision.Tool) {
		if decision.Summary == "" {
			decision.Summary = searchSummary(req)
		}
		return decision
	}
	if err != nil {
		o.logger.Warn("classification failed, using heuristic",
			"session_id", req.SessionID, "error", err)
	}
	return heuristicDecision(req)
}

var searchVerbs = []string{
	"find", "search", "look", "need", "want", "recommend", "suggest",
	"compare", "list", "show", "who can", "best",
}

var conversationalWords = []string{
	"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
	"thank", "appreciate", "how does this work", "what can you do", "who are you",
}

// heuristicDecision classifies without the LLM: greetings and meta-questions
// that carry no search verb are conversational, everything else searches.
func heuristicDecision(req TurnRequest) models.OrchestratorDecision {
	lower := strings.ToLower(req.Message)
	if containsAny(lower, conversationalWords) && !containsAny(lower, searchVerbs) {
		return models.OrchestratorDecision{
			ToolNeeded: true,
			Tool:       models.ToolConversational,
			Summary:    "Reply conversationally",
		}
	}
	return models.OrchestratorDecision{
		ToolNeeded: true,
		Tool:       models.ToolSearch,
		Summary:    searchSummary(req),
	}
}

func searchSummary(req TurnRequest) string {
	return fmt.Sprintf("Find %s providers in %s: %s", req.ServiceType, req.Country, req.Message)
}

func validTool(tool string) bool {
	return tool == models.ToolSearch || tool == models.ToolConversational
}

// runConversational answers without retrieval and emits the single final
// event that terminates the turn's stream.
func (o *Orchestrator) runConversational(ctx context.Context, req TurnRequest, turns []models.Turn, emitter *events.Emitter) string {
	text := o.responder.Respond(ctx, req.Message, req.Country, req.ServiceType, turns)
	_ = emitter.Emit(ctx, events.Event{
		Agent:   events.AgentOrchestrator,
		Type:    events.TypeFinal,
		Message: text,
	})
	return text
}

// runSearch delegates to the workflow, forwarding its events and tracking
// the last substantive frame for persistence.
func (o *Orchestrator) runSearch(ctx context.Context, req TurnRequest, decision models.OrchestratorDecision, turns []models.Turn, emitter *events.Emitter) string {
	inner := events.NewEmitter()
	var finalText string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range inner.Events() {
			// The cancelled and error terminals are not assistant content:
			// a cancelled turn persists the marker instead, and a failed
			// turn keeps only the user message.
			if frame := events.ToFrame(ev); ev.Type != events.TypeCancelled &&
				ev.Type != events.TypeError &&
				frame.Kind == events.FrameFinal && frame.Text != "" {
				finalText = frame.Text
			}
			// A terminal must reach the stream even when the turn context
			// is already dead, where a blocking Emit would race its own
			// cancellation. Non-terminals may be dropped then; draining
			// continues either way so the producer reaches its terminal.
			if ev.Terminal() {
				if !emitter.TryEmit(ev) && ctx.Err() == nil {
					_ = emitter.Emit(ctx, ev)
				}
				continue
			}
			_ = emitter.Emit(ctx, ev)
		}
	}()

	o.coordinator.Run(ctx, workflow.Request{
		Query:         decision.Summary,
		Country:       req.Country,
		ServiceType:   req.ServiceType,
		Transcript:    prompt.FormatTranscript(turns),
		MaxResults:    o.params.MaxResults,
		MinSimilarity: o.params.MinSimilarity,
		Threshold:     o.params.Threshold,
		Style:         o.params.Style,
	}, inner)
	inner.Close()
	<-done

	return finalText
}

// persistAssistant writes the assistant turn even when the request context
// is already cancelled, substituting the marker when nothing substantive
// was produced.
func (o *Orchestrator) persistAssistant(ctx context.Context, sessionID, finalText string) {
	if finalText == "" {
		if ctx.Err() == nil {
			return
		}
		finalText = cancelledMarker
	}
	persistCtx := context.WithoutCancel(ctx)
	if _, err := o.sessions.AppendMessage(persistCtx, models.AppendMessageRequest{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   finalText,
	}); err != nil {
		o.logger.Error("persisting assistant turn failed",
			"session_id", sessionID, "error", err)
	}
}
