package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/growbal/discovery/pkg/agent/prompt"
	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/llm"
	"github.com/growbal/discovery/pkg/models"
	"github.com/growbal/discovery/pkg/retriever"
)

// SearchAgent picks a retrieval strategy for a natural-language query and
// executes it against the profile retriever.
type SearchAgent struct {
	llm       llm.Completer
	retriever retriever.Retriever
	logger    *slog.Logger
}

// NewSearchAgent creates a SearchAgent.
func NewSearchAgent(completer llm.Completer, r retriever.Retriever) *SearchAgent {
	return &SearchAgent{
		llm:       completer,
		retriever: r,
		logger:    slog.Default().With("agent", events.AgentSearch),
	}
}

// Run executes the search stage and returns its output. All progress is
// emitted through emit; a retriever failure emits an error event and
// returns the error.
func (a *SearchAgent) Run(ctx context.Context, q models.QueryContext, maxResults int, minSimilarity float64, emit EmitFunc) (*models.SearchOutput, error) {
	started := time.Now()

	if err := emit(events.Event{Type: events.TypeStrategyStart}); err != nil {
		return nil, err
	}

	decision := a.pickStrategy(ctx, q)
	if err := emit(events.Event{
		Type:           events.TypeStrategyComplete,
		Strategy:       decision.Strategy,
		ExtractedTags:  decision.ExtractedTags,
		RewrittenQuery: decision.RewrittenQuery,
		Rationale:      decision.Rationale,
	}); err != nil {
		return nil, err
	}

	if err := emit(events.Event{Type: events.TypeSearchStart, Strategy: decision.Strategy}); err != nil {
		return nil, err
	}

	candidates, err := a.dispatch(ctx, decision, maxResults, minSimilarity)
	if err != nil {
		a.logger.Error("retrieval failed", "strategy", decision.Strategy, "error", err)
		_ = emit(events.Event{Type: events.TypeError, Error: err.Error()})
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	total, err := a.retriever.CountTotal(ctx)
	if err != nil {
		// The count is informational; a failure must not kill the search.
		a.logger.Warn("profile count failed", "error", err)
		total = 0
	}

	if err := emit(events.Event{
		Type:          events.TypeSearchProgress,
		Found:         events.Int(len(candidates)),
		TotalSearched: events.Int(total),
	}); err != nil {
		return nil, err
	}

	output := &models.SearchOutput{
		CandidateProfiles:     candidates,
		TotalProfilesSearched: total,
		SearchTimeSeconds:     time.Since(started).Seconds(),
		SearchStrategy:        decision.Strategy,
	}
	if err := emit(events.Event{Type: events.TypeComplete, Data: output}); err != nil {
		return nil, err
	}
	return output, nil
}

// pickStrategy asks the LLM for a SearchStrategyDecision, falling back to
// a plain semantic search of the original query when the output cannot be
// parsed or the call fails.
func (a *SearchAgent) pickStrategy(ctx context.Context, q models.QueryContext) models.SearchStrategyDecision {
	var decision models.SearchStrategyDecision
	err := a.llm.CompleteJSON(ctx, prompt.BuildStrategyMessages(q), &decision)
	if err != nil || !validStrategy(decision.Strategy) {
		a.logger.Warn("strategy selection failed, using semantic fallback", "error", err)
		return models.SearchStrategyDecision{
			Strategy:       models.StrategySemantic,
			RewrittenQuery: q.Query,
			Rationale:      "fallback",
		}
	}
	if decision.RewrittenQuery == "" {
		decision.RewrittenQuery = q.Query
	}
	return decision
}

// dispatch routes the decision to the retriever. Tag and hybrid strategies
// degrade to semantic when no tags were extracted.
func (a *SearchAgent) dispatch(ctx context.Context, decision models.SearchStrategyDecision, maxResults int, minSimilarity float64) ([]models.ProfileMatch, error) {
	switch {
	case decision.Strategy == models.StrategyTags && len(decision.ExtractedTags) > 0:
		return a.retriever.SearchTags(ctx, decision.ExtractedTags, false, maxResults)
	case decision.Strategy == models.StrategyHybrid && len(decision.ExtractedTags) > 0:
		return a.retriever.SearchHybrid(ctx, decision.RewrittenQuery, decision.ExtractedTags, maxResults)
	default:
		return a.retriever.SearchSemantic(ctx, decision.RewrittenQuery, maxResults, minSimilarity)
	}
}

func validStrategy(s models.SearchStrategy) bool {
	switch s {
	case models.StrategySemantic, models.StrategyTags, models.StrategyHybrid:
		return true
	}
	return false
}
