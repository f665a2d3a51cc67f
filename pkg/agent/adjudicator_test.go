package agent

import (
	"context"
	"testing"

	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjudicator_Run(t *testing.T) {
	ctx := context.Background()
	candidates := []models.ProfileMatch{
		{ProfileID: 1, SimilarityScore: 0.9, ProfileText: profileText("Alpha Tax", "UAE", "Tax Consultancy")},
		{ProfileID: 2, SimilarityScore: 0.8, ProfileText: profileText("Beta Audit", "Qatar", "Audit Firm")},
	}

	t.Run("sequential evaluation with non-interleaved events", func(t *testing.T) {
		fake := &fakeLLM{streamScripts: [][]string{
			{"Strong match. ", `{"relevance_score": 0.9, "reasoning": "Exact service and location match.", "confidence": 0.8}`},
			{"Wrong country. ", `{"relevance_score": 0.3, "reasoning": "Based in the wrong location for this request.", "confidence": 0.7}`},
		}}
		c := &collector{}

		output, err := NewAdjudicator(fake).Run(ctx, models.QueryContext{Query: "tax help in UAE"}, candidates, 0.7, c.emit)
		require.NoError(t, err)

		assert.Equal(t, []events.Type{
			events.TypeProfileStart,
			events.TypeProfileStreaming,
			events.TypeProfileStreaming,
			events.TypeProfileComplete,
			events.TypeProfileStart,
			events.TypeProfileStreaming,
			events.TypeProfileStreaming,
			events.TypeProfileComplete,
			events.TypeComplete,
		}, c.types())

		// Per-candidate events carry the candidate's index, in order.
		for _, ev := range c.events[:4] {
			if ev.Index != nil {
				assert.Equal(t, 0, *ev.Index)
			}
		}
		for _, ev := range c.events[4:8] {
			if ev.Index != nil {
				assert.Equal(t, 1, *ev.Index)
			}
		}

		assert.Equal(t, "Alpha Tax", c.events[0].ProfileName)
		require.NotNil(t, c.events[0].Total)
		assert.Equal(t, 2, *c.events[0].Total)

		require.Len(t, output.Results, 2)
		assert.True(t, output.Results[0].IsRelevant)
		assert.False(t, output.Results[1].IsRelevant)
		require.Len(t, output.RelevantProfiles, 1)
		assert.Equal(t, 1, output.RelevantProfiles[0].Profile.ProfileID)
		assert.InDelta(t, 0.75, output.AverageConfidence, 1e-9)
	})

	t.Run("partial text is cumulative", func(t *testing.T) {
		fake := &fakeLLM{streamScripts: [][]string{
			{"First ", "second ", `{"relevance_score": 0.8, "reasoning": "ok", "confidence": 0.5}`},
		}}
		c := &collector{}

		_, err := NewAdjudicator(fake).Run(ctx, models.QueryContext{Query: "q"}, candidates[:1], 0.7, c.emit)
		require.NoError(t, err)

		var partials []string
		for _, ev := range c.events {
			if ev.Type == events.TypeProfileStreaming {
				partials = append(partials, ev.PartialText)
			}
		}
		require.Len(t, partials, 3)
		assert.Equal(t, "First ", partials[0])
		assert.Equal(t, "First second ", partials[1])
		for i := 1; i < len(partials); i++ {
			assert.True(t, len(partials[i]) > len(partials[i-1]))
			assert.Contains(t, partials[i], partials[i-1])
		}
	})

	t.Run("relevance exactly at threshold is relevant", func(t *testing.T) {
		fake := &fakeLLM{streamScripts: [][]string{
			{`{"relevance_score": 0.7, "reasoning": "borderline", "confidence": 0.5}`},
		}}
		c := &collector{}

		output, err := NewAdjudicator(fake).Run(ctx, models.QueryContext{Query: "q"}, candidates[:1], 0.7, c.emit)
		require.NoError(t, err)
		assert.True(t, output.Results[0].IsRelevant)
	})

	t.Run("failed candidate recorded and pipeline continues", func(t *testing.T) {
		fake := &fakeLLM{
			streamScripts: [][]string{
				{"no json here"},
				{`{"relevance_score": 0.9, "reasoning": "good fit", "confidence": 0.8}`},
			},
		}
		c := &collector{}

		output, err := NewAdjudicator(fake).Run(ctx, models.QueryContext{Query: "q"}, candidates, 0.7, c.emit)
		require.NoError(t, err)

		require.Len(t, output.Results, 2)
		failed := output.Results[0]
		assert.False(t, failed.IsRelevant)
		assert.Equal(t, 0.0, failed.RelevanceScore)
		assert.Contains(t, failed.Reasoning, "Failed to evaluate:")

		var sawProfileError bool
		for _, ev := range c.events {
			if ev.Type == events.TypeProfileError {
				sawProfileError = true
				require.NotNil(t, ev.Index)
				assert.Equal(t, 0, *ev.Index)
			}
		}
		assert.True(t, sawProfileError)

		assert.True(t, output.Results[1].IsRelevant)
		assert.Equal(t, events.TypeComplete, c.events[len(c.events)-1].Type)
	})

	t.Run("stream error on one candidate does not stop the rest", func(t *testing.T) {
		fake := &fakeLLM{
			streamScripts: [][]string{{}, {`{"relevance_score": 0.8, "reasoning": "fine", "confidence": 0.6}`}},
			streamErrs:    []error{assert.AnError, nil},
		}
		c := &collector{}

		output, err := NewAdjudicator(fake).Run(ctx, models.QueryContext{Query: "q"}, candidates, 0.7, c.emit)
		require.NoError(t, err)
		assert.False(t, output.Results[0].IsRelevant)
		assert.True(t, output.Results[1].IsRelevant)
	})

	t.Run("cancellation stops at candidate boundary", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		fake := &fakeLLM{}
		c := &collector{}
		_, err := NewAdjudicator(fake).Run(cancelled, models.QueryContext{Query: "q"}, candidates, 0.7, c.emit)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, c.events)
	})
}

func TestRejectionSummary(t *testing.T) {
	results := []models.AdjudicationResult{
		{IsRelevant: true, Reasoning: "great"},
		{IsRelevant: false, Reasoning: "wrong country for the request"},
		{IsRelevant: false, Reasoning: "does not offer the requested service"},
		{IsRelevant: false, Reasoning: "lacks expertise in this field"},
		{IsRelevant: false, Reasoning: "profile too sparse to judge"},
	}

	summary := rejectionSummary(results)
	assert.Contains(t, summary, "4 candidates rejected")
	assert.Contains(t, summary, "1 on location")
	assert.Contains(t, summary, "1 on service fit")
	assert.Contains(t, summary, "1 on expertise")
	assert.Contains(t, summary, "1 for other reasons")

	assert.Equal(t, "No candidates were rejected.",
		rejectionSummary([]models.AdjudicationResult{{IsRelevant: true}}))
}

func TestAverageConfidence(t *testing.T) {
	assert.Equal(t, 0.0, averageConfidence(nil))
	results := []models.AdjudicationResult{{Confidence: 0.6}, {Confidence: 0.8}}
	assert.InDelta(t, 0.7, averageConfidence(results), 1e-9)
}
