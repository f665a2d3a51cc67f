package prompt

import (
	"testing"

	"github.com/growbal/discovery/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scopedQuery() models.QueryContext {
	return models.QueryContext{
		Query:       "corporate tax help",
		Country:     "UAE",
		ServiceType: "Tax Services",
		Transcript:  "User: hello\nAssistant: Hi! What do you need?",
	}
}

func TestBuildStrategyMessages(t *testing.T) {
	t.Run("carries scope and transcript", func(t *testing.T) {
		msgs := BuildStrategyMessages(scopedQuery())
		require.Len(t, msgs, 2)

		assert.Contains(t, msgs[0].Content, "Tax Services providers in UAE")
		assert.Contains(t, msgs[1].Content, "Recent conversation:")
		assert.Contains(t, msgs[1].Content, "User: hello")
		assert.Contains(t, msgs[1].Content, "User query: corporate tax help")
	})

	t.Run("bare query omits the transcript block", func(t *testing.T) {
		msgs := BuildStrategyMessages(models.QueryContext{Query: "corporate tax help"})
		require.Len(t, msgs, 2)

		assert.Contains(t, msgs[0].Content, "service providers")
		assert.NotContains(t, msgs[1].Content, "Recent conversation:")
		assert.Equal(t, "User query: corporate tax help", msgs[1].Content)
	})
}

func TestBuildAdjudicationMessages(t *testing.T) {
	profile := models.ProfileMatch{
		ProfileID:   1,
		ProfileText: "Company Name: Alpha Tax\nCountry: UAE\nProvider Type: Tax Consultancy",
	}
	msgs := BuildAdjudicationMessages(scopedQuery(), profile, 0.7)
	require.Len(t, msgs, 2)

	assert.Contains(t, msgs[0].Content, "Tax Services providers in UAE")
	assert.Contains(t, msgs[0].Content, "0.70")
	assert.Contains(t, msgs[1].Content, "Recent conversation:")
	assert.Contains(t, msgs[1].Content, "User request: corporate tax help")
	assert.Contains(t, msgs[1].Content, "Company Name: Alpha Tax")
}

func TestBuildSummaryMessages(t *testing.T) {
	stats := models.SummaryStatistics{
		TotalProviders: 1,
		ByCountry:      map[string]int{"UAE": 1},
		ByProviderType: map[string]int{"Tax Consultancy": 1},
	}
	links := map[string]string{"Alpha Tax": "https://growbal.io/profiles/1"}

	msgs := BuildSummaryMessages(scopedQuery(), "1. profile block", stats, models.StyleBrief, links)
	require.Len(t, msgs, 2)

	assert.Contains(t, msgs[0].Content, "Tax Services providers in UAE")
	assert.Contains(t, msgs[0].Content, "https://growbal.io/profiles/1")
	assert.Contains(t, msgs[1].Content, "Recent conversation:")
	assert.Contains(t, msgs[1].Content, "User request: corporate tax help")
	assert.Contains(t, msgs[1].Content, "1. profile block")
}

func TestFormatTranscript(t *testing.T) {
	turns := []models.Turn{
		{UserContent: "hello", AssistantContent: "Hi!"},
		{UserContent: "find a tax advisor", AssistantContent: "Searching now."},
	}
	got := FormatTranscript(turns)
	assert.Equal(t,
		"User: hello\nAssistant: Hi!\nUser: find a tax advisor\nAssistant: Searching now.",
		got)
}
