package agent

import (
	"context"
	"testing"

	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchAgent_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("semantic strategy end to end", func(t *testing.T) {
		fake := &fakeLLM{jsonReplies: []string{
			`{"strategy": "semantic", "extracted_tags": [], "rewritten_query": "We provide tax advisory for startups", "rationale": "free-form need"}`,
		}}
		r := &fakeRetriever{
			matches: []models.ProfileMatch{
				{ProfileID: 1, SimilarityScore: 0.9, ProfileText: profileText("Alpha Tax", "UAE", "Tax Consultancy")},
				{ProfileID: 2, SimilarityScore: 0.8, ProfileText: profileText("Beta Audit", "UAE", "Audit Firm")},
			},
			total: 120,
		}
		c := &collector{}

		output, err := NewSearchAgent(fake, r).Run(ctx, models.QueryContext{Query: "tax help for my startup"}, 7, 0.5, c.emit)
		require.NoError(t, err)

		assert.Equal(t, []events.Type{
			events.TypeStrategyStart,
			events.TypeStrategyComplete,
			events.TypeSearchStart,
			events.TypeSearchProgress,
			events.TypeComplete,
		}, c.types())

		assert.Equal(t, 1, r.semanticCalls)
		assert.Equal(t, "We provide tax advisory for startups", r.lastQuery)
		assert.Len(t, output.CandidateProfiles, 2)
		assert.Equal(t, 120, output.TotalProfilesSearched)
		assert.Equal(t, models.StrategySemantic, output.SearchStrategy)
		assert.GreaterOrEqual(t, output.SearchTimeSeconds, 0.0)

		progress := c.events[3]
		require.NotNil(t, progress.Found)
		assert.Equal(t, 2, *progress.Found)
		require.NotNil(t, progress.TotalSearched)
		assert.Equal(t, 120, *progress.TotalSearched)
	})

	t.Run("tags strategy dispatches to tag search", func(t *testing.T) {
		fake := &fakeLLM{jsonReplies: []string{
			`{"strategy": "tags", "extracted_tags": ["vat", "audit"], "rewritten_query": "We provide VAT and audit services", "rationale": "concrete services"}`,
		}}
		r := &fakeRetriever{matches: []models.ProfileMatch{{ProfileID: 3, SimilarityScore: 1.0}}}
		c := &collector{}

		_, err := NewSearchAgent(fake, r).Run(ctx, models.QueryContext{Query: "vat and audit"}, 7, 0.5, c.emit)
		require.NoError(t, err)
		assert.Equal(t, 1, r.tagCalls)
		assert.Equal(t, 0, r.semanticCalls)
		assert.Equal(t, []string{"vat", "audit"}, r.lastTags)
	})

	t.Run("hybrid without tags degrades to semantic", func(t *testing.T) {
		fake := &fakeLLM{jsonReplies: []string{
			`{"strategy": "hybrid", "extracted_tags": [], "rewritten_query": "We help with company setup", "rationale": "mixed"}`,
		}}
		r := &fakeRetriever{}
		c := &collector{}

		_, err := NewSearchAgent(fake, r).Run(ctx, models.QueryContext{Query: "company setup"}, 7, 0.5, c.emit)
		require.NoError(t, err)
		assert.Equal(t, 1, r.semanticCalls)
		assert.Equal(t, 0, r.hybridCalls)
	})

	t.Run("strategy parse failure falls back to semantic", func(t *testing.T) {
		fake := &fakeLLM{jsonReplies: []string{"not json at all"}}
		r := &fakeRetriever{}
		c := &collector{}

		output, err := NewSearchAgent(fake, r).Run(ctx, models.QueryContext{Query: "find me an auditor"}, 7, 0.5, c.emit)
		require.NoError(t, err)

		assert.Equal(t, 1, r.semanticCalls)
		assert.Equal(t, "find me an auditor", r.lastQuery)
		assert.Equal(t, models.StrategySemantic, output.SearchStrategy)

		strategyComplete := c.events[1]
		assert.Equal(t, "fallback", strategyComplete.Rationale)
	})

	t.Run("retriever error emits error event and fails", func(t *testing.T) {
		fake := &fakeLLM{jsonReplies: []string{
			`{"strategy": "semantic", "rewritten_query": "x", "rationale": "r"}`,
		}}
		r := &fakeRetriever{err: assert.AnError}
		c := &collector{}

		_, err := NewSearchAgent(fake, r).Run(ctx, models.QueryContext{Query: "query"}, 7, 0.5, c.emit)
		require.Error(t, err)

		last := c.events[len(c.events)-1]
		assert.Equal(t, events.TypeError, last.Type)
		assert.NotEmpty(t, last.Error)
	})
}
