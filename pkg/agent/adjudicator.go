package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/growbal/discovery/pkg/agent/prompt"
	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/llm"
	"github.com/growbal/discovery/pkg/models"
)

// Adjudicator classifies the relevance of each candidate to the original
// query with live reasoning. Candidates are processed strictly
// sequentially: events for candidate i never interleave with candidate j.
type Adjudicator struct {
	llm    llm.Completer
	logger *slog.Logger
}

// NewAdjudicator creates an Adjudicator.
func NewAdjudicator(completer llm.Completer) *Adjudicator {
	return &Adjudicator{
		llm:    completer,
		logger: slog.Default().With("agent", events.AgentAdjudicator),
	}
}

// verdict is the JSON object the model ends its evaluation with.
type verdict struct {
	RelevanceScore float64 `json:"relevance_score"`
	Reasoning      string  `json:"reasoning"`
	Confidence     float64 `json:"confidence"`
}

// Run evaluates every candidate in input order. A failed candidate is
// recorded with score 0 and the pipeline continues; cancellation
// terminates at the next candidate boundary.
func (a *Adjudicator) Run(ctx context.Context, q models.QueryContext, candidates []models.ProfileMatch, threshold float64, emit EmitFunc) (*models.AdjudicatorOutput, error) {
	results := make([]models.AdjudicationResult, 0, len(candidates))

	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := emit(events.Event{
			Type:        events.TypeProfileStart,
			Index:       events.Int(i),
			Total:       events.Int(len(candidates)),
			ProfileName: candidate.CompanyName(),
		}); err != nil {
			return nil, err
		}

		result, evalErr := a.evaluate(ctx, q, candidate, threshold, i, emit)
		if evalErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("candidate evaluation failed",
				"index", i, "profile_id", candidate.ProfileID, "error", evalErr)
			result = models.AdjudicationResult{
				Profile:        candidate,
				RelevanceScore: 0,
				IsRelevant:     false,
				Reasoning:      fmt.Sprintf("Failed to evaluate: %v", evalErr),
				Confidence:     0,
			}
			if err := emit(events.Event{
				Type:  events.TypeProfileError,
				Index: events.Int(i),
			}); err != nil {
				return nil, err
			}
		} else {
			if err := emit(events.Event{
				Type:           events.TypeProfileComplete,
				Index:          events.Int(i),
				IsRelevant:     events.Bool(result.IsRelevant),
				RelevanceScore: events.Float(result.RelevanceScore),
				Reasoning:      result.Reasoning,
			}); err != nil {
				return nil, err
			}
		}
		results = append(results, result)
	}

	relevant := make([]models.AdjudicationResult, 0, len(results))
	for _, r := range results {
		if r.IsRelevant {
			relevant = append(relevant, r)
		}
	}

	output := &models.AdjudicatorOutput{
		Results:           results,
		RelevantProfiles:  relevant,
		RejectionSummary:  rejectionSummary(results),
		AverageConfidence: averageConfidence(results),
	}
	if err := emit(events.Event{Type: events.TypeComplete, Data: output}); err != nil {
		return nil, err
	}
	return output, nil
}

// evaluate runs the streaming LLM call for one candidate, forwarding
// cumulative partial text, and parses the trailing JSON verdict.
func (a *Adjudicator) evaluate(ctx context.Context, q models.QueryContext, candidate models.ProfileMatch, threshold float64, index int, emit EmitFunc) (models.AdjudicationResult, error) {
	deltas, errs := a.llm.Stream(ctx, prompt.BuildAdjudicationMessages(q, candidate, threshold))

	var accumulated strings.Builder
	for delta := range deltas {
		accumulated.WriteString(delta)
		if err := emit(events.Event{
			Type:        events.TypeProfileStreaming,
			Index:       events.Int(index),
			PartialText: accumulated.String(),
		}); err != nil {
			return models.AdjudicationResult{}, err
		}
	}
	if err := <-errs; err != nil {
		return models.AdjudicationResult{}, err
	}

	var v verdict
	if err := llm.DecodeOutput(accumulated.String(), &v); err != nil {
		return models.AdjudicationResult{}, fmt.Errorf("verdict did not parse: %w", err)
	}

	score := clampScore(v.RelevanceScore)
	return models.AdjudicationResult{
		Profile:        candidate,
		RelevanceScore: score,
		IsRelevant:     score >= threshold,
		Reasoning:      v.Reasoning,
		Confidence:     clampScore(v.Confidence),
	}, nil
}

// rejectionSummary buckets rejection reasoning by coarse keywords and
// produces a single sentence with counts.
func rejectionSummary(results []models.AdjudicationResult) string {
	var location, service, expertise, other int
	rejected := 0
	for _, r := range results {
		if r.IsRelevant {
			continue
		}
		rejected++
		reason := strings.ToLower(r.Reasoning)
		switch {
		case strings.Contains(reason, "location") || strings.Contains(reason, "country") || strings.Contains(reason, "region"):
			location++
		case strings.Contains(reason, "service") || strings.Contains(reason, "offering"):
			service++
		case strings.Contains(reason, "expertise") || strings.Contains(reason, "experience") || strings.Contains(reason, "specializ"):
			expertise++
		default:
			other++
		}
	}
	if rejected == 0 {
		return "No candidates were rejected."
	}
	return fmt.Sprintf(
		"%d candidates rejected: %d on location, %d on service fit, %d on expertise, %d for other reasons.",
		rejected, location, service, expertise, other)
}

// averageConfidence is the arithmetic mean of per-candidate confidence.
func averageConfidence(results []models.AdjudicationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range results {
		sum += r.Confidence
	}
	return sum / float64(len(results))
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
