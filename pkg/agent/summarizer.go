package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/growbal/discovery/pkg/agent/prompt"
	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/llm"
	"github.com/growbal/discovery/pkg/models"
)

// Summarizer produces the final user-facing artifact from the surviving
// candidates: executive summary, ranked recommendations with deep-links,
// key insights, and statistics.
type Summarizer struct {
	llm        llm.Completer
	portalBase string
	logger     *slog.Logger
}

// NewSummarizer creates a Summarizer. portalBase is the provider portal
// URL used to build recommendation deep-links.
func NewSummarizer(completer llm.Completer, portalBase string) *Summarizer {
	return &Summarizer{
		llm:        completer,
		portalBase: portalBase,
		logger:     slog.Default().With("agent", events.AgentSummarizer),
	}
}

// summaryDraft is the JSON object the model answers with. Statistics are
// computed locally, never taken from the model.
type summaryDraft struct {
	ExecutiveSummary        string   `json:"executive_summary"`
	ProviderRecommendations []string `json:"provider_recommendations"`
	KeyInsights             []string `json:"key_insights"`
}

// Run produces the final summary over the relevant profiles. An LLM parse
// failure degrades to a deterministic basic summary; the stage never fails
// once statistics are computed.
func (s *Summarizer) Run(ctx context.Context, q models.QueryContext, relevant []models.AdjudicationResult, style models.SummaryStyle, emit EmitFunc) (*models.SummarizerOutput, error) {
	stats := computeStatistics(relevant)
	if err := emit(events.Event{Type: events.TypeStatisticsComplete, Statistics: &stats}); err != nil {
		return nil, err
	}

	if err := emit(events.Event{Type: events.TypePreparationStart, Total: events.Int(len(relevant))}); err != nil {
		return nil, err
	}
	deepLinks := make(map[string]string, len(relevant))
	for i, r := range relevant {
		deepLinks[r.Profile.CompanyName()] = r.Profile.DeepLink(s.portalBase)
		if err := emit(events.Event{
			Type:        events.TypeProfilePrepared,
			Index:       events.Int(i),
			ProfileName: r.Profile.CompanyName(),
		}); err != nil {
			return nil, err
		}
	}
	profileBlock := prompt.FormatProfileBlock(relevant)

	if err := emit(events.Event{Type: events.TypeSummarizationStart}); err != nil {
		return nil, err
	}

	var draft summaryDraft
	err := s.llm.CompleteJSON(ctx,
		prompt.BuildSummaryMessages(q, profileBlock, stats, style, deepLinks), &draft)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("structured summary failed, using basic summary", "error", err)
		draft = basicSummary(relevant, deepLinks, stats)
	}

	output := &models.SummarizerOutput{
		ExecutiveSummary:        draft.ExecutiveSummary,
		ProviderRecommendations: draft.ProviderRecommendations,
		KeyInsights:             draft.KeyInsights,
		Statistics:              stats,
		Confidence:              summaryConfidence(len(relevant)),
	}
	if err := emit(events.Event{Type: events.TypeComplete, Data: output}); err != nil {
		return nil, err
	}
	return output, nil
}

// computeStatistics counts providers by country and provider type using
// the profile text line prefixes.
func computeStatistics(relevant []models.AdjudicationResult) models.SummaryStatistics {
	stats := models.SummaryStatistics{
		TotalProviders: len(relevant),
		ByCountry:      map[string]int{},
		ByProviderType: map[string]int{},
	}
	for _, r := range relevant {
		if country := r.Profile.Country(); country != "" {
			stats.ByCountry[country]++
		}
		if ptype := r.Profile.ProviderType(); ptype != "" {
			stats.ByProviderType[ptype]++
		}
	}
	return stats
}

// basicSummary is the deterministic fallback when the model output cannot
// be parsed: a bold-linked provider list and a three-bullet insight list.
func basicSummary(relevant []models.AdjudicationResult, deepLinks map[string]string, stats models.SummaryStatistics) summaryDraft {
	recommendations := make([]string, 0, len(relevant))
	for _, r := range relevant {
		name := r.Profile.CompanyName()
		line := fmt.Sprintf("%s (%s)", name, r.Profile.Country())
		if url, ok := deepLinks[name]; ok {
			line = fmt.Sprintf("**[%s](%s)** (%s)", name, url, r.Profile.Country())
		}
		recommendations = append(recommendations, line)
	}

	return summaryDraft{
		ExecutiveSummary: fmt.Sprintf(
			"Found %d relevant providers for your request.", len(relevant)),
		ProviderRecommendations: recommendations,
		KeyInsights: []string{
			fmt.Sprintf("%d providers matched your requirements.", stats.TotalProviders),
			fmt.Sprintf("Providers span %d countries.", len(stats.ByCountry)),
			fmt.Sprintf("Providers cover %d provider types.", len(stats.ByProviderType)),
		},
	}
}

// summaryConfidence grows with the number of surviving profiles, capped
// at 0.9.
func summaryConfidence(relevantCount int) float64 {
	confidence := 0.6 + 0.1*float64(relevantCount)
	if confidence > 0.9 {
		return 0.9
	}
	return confidence
}
