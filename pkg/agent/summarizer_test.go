package agent

import (
	"context"
	"testing"

	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relevantResults() []models.AdjudicationResult {
	return []models.AdjudicationResult{
		{
			Profile:        models.ProfileMatch{ProfileID: 1, SimilarityScore: 0.9, ProfileText: profileText("Alpha Tax", "UAE", "Tax Consultancy")},
			RelevanceScore: 0.9, IsRelevant: true, Confidence: 0.8,
		},
		{
			Profile:        models.ProfileMatch{ProfileID: 2, SimilarityScore: 0.8, ProfileText: profileText("Beta Audit", "UAE", "Audit Firm")},
			RelevanceScore: 0.8, IsRelevant: true, Confidence: 0.7,
		},
		{
			Profile:        models.ProfileMatch{ProfileID: 3, SimilarityScore: 0.75, ProfileText: profileText("Gamma Legal", "Qatar", "Tax Consultancy")},
			RelevanceScore: 0.75, IsRelevant: true, Confidence: 0.6,
		},
	}
}

func TestSummarizer_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("structured summary end to end", func(t *testing.T) {
		fake := &fakeLLM{jsonReplies: []string{
			`{"executive_summary": "Three strong tax providers.", "provider_recommendations": ["**[Alpha Tax](https://growbal.io/profiles/1)**", "**[Beta Audit](https://growbal.io/profiles/2)**", "**[Gamma Legal](https://growbal.io/profiles/3)**"], "key_insights": ["UAE dominates the results."]}`,
		}}
		c := &collector{}

		output, err := NewSummarizer(fake, "https://growbal.io").Run(ctx, models.QueryContext{Query: "tax help"}, relevantResults(), models.StyleComprehensive, c.emit)
		require.NoError(t, err)

		assert.Equal(t, []events.Type{
			events.TypeStatisticsComplete,
			events.TypePreparationStart,
			events.TypeProfilePrepared,
			events.TypeProfilePrepared,
			events.TypeProfilePrepared,
			events.TypeSummarizationStart,
			events.TypeComplete,
		}, c.types())

		assert.Equal(t, "Three strong tax providers.", output.ExecutiveSummary)
		assert.Len(t, output.ProviderRecommendations, 3)
		assert.Equal(t, 3, output.Statistics.TotalProviders)
		assert.Equal(t, 2, output.Statistics.ByCountry["UAE"])
		assert.Equal(t, 1, output.Statistics.ByCountry["Qatar"])
		assert.Equal(t, 2, output.Statistics.ByProviderType["Tax Consultancy"])
		assert.InDelta(t, 0.9, output.Confidence, 1e-9)

		statsEvent := c.events[0]
		require.NotNil(t, statsEvent.Statistics)
		assert.Equal(t, 3, statsEvent.Statistics.TotalProviders)
	})

	t.Run("parse failure falls back to basic summary", func(t *testing.T) {
		fake := &fakeLLM{jsonReplies: []string{"no json"}}
		c := &collector{}

		output, err := NewSummarizer(fake, "https://growbal.io").Run(ctx, models.QueryContext{Query: "tax help"}, relevantResults(), models.StyleBrief, c.emit)
		require.NoError(t, err)

		assert.Contains(t, output.ExecutiveSummary, "3 relevant providers")
		require.Len(t, output.ProviderRecommendations, 3)
		assert.Equal(t, "**[Alpha Tax](https://growbal.io/profiles/1)** (UAE)", output.ProviderRecommendations[0])
		assert.Len(t, output.KeyInsights, 3)
		assert.Equal(t, events.TypeComplete, c.events[len(c.events)-1].Type)
	})

	t.Run("confidence caps at 0.9", func(t *testing.T) {
		assert.InDelta(t, 0.7, summaryConfidence(1), 1e-9)
		assert.InDelta(t, 0.8, summaryConfidence(2), 1e-9)
		assert.InDelta(t, 0.9, summaryConfidence(3), 1e-9)
		assert.InDelta(t, 0.9, summaryConfidence(10), 1e-9)
	})
}

func TestComputeStatistics(t *testing.T) {
	stats := computeStatistics(relevantResults())
	assert.Equal(t, 3, stats.TotalProviders)
	assert.Equal(t, map[string]int{"UAE": 2, "Qatar": 1}, stats.ByCountry)
	assert.Equal(t, map[string]int{"Tax Consultancy": 2, "Audit Firm": 1}, stats.ByProviderType)

	empty := computeStatistics(nil)
	assert.Equal(t, 0, empty.TotalProviders)
	assert.Empty(t, empty.ByCountry)
}
