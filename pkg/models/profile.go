package models

// ProfileMatch is one candidate returned by the profile retriever.
// ProfileText is the canonical textual representation of the provider
// profile — fully materialized, no lazy fields.
type ProfileMatch struct {
	ProfileID       int     `json:"profile_id"`
	SimilarityScore float64 `json:"similarity_score"` // normalized to [0,1]
	ProfileText     string  `json:"profile_text"`
}

// SearchStrategy enumerates the retrieval modes the search agent can pick.
type SearchStrategy string

const (
	StrategySemantic SearchStrategy = "semantic"
	StrategyTags     SearchStrategy = "tags"
	StrategyHybrid   SearchStrategy = "hybrid"
)

// SearchStrategyDecision is the structured output of the strategy-selection
// LLM call. RewrittenQuery is phrased as a provider self-description so it
// embeds close to profile texts.
type SearchStrategyDecision struct {
	Strategy       SearchStrategy `json:"strategy"`
	ExtractedTags  []string       `json:"extracted_tags"`
	RewrittenQuery string         `json:"rewritten_query"`
	Rationale      string         `json:"rationale"`
}

// SearchOutput is the terminal payload of the search agent.
type SearchOutput struct {
	CandidateProfiles     []ProfileMatch `json:"candidate_profiles"`
	TotalProfilesSearched int            `json:"total_profiles_searched"`
	SearchTimeSeconds     float64        `json:"search_time_seconds"`
	SearchStrategy        SearchStrategy `json:"search_strategy"`
}

// AdjudicationResult is the per-candidate relevance verdict.
// IsRelevant is always derived as RelevanceScore >= threshold.
type AdjudicationResult struct {
	Profile        ProfileMatch `json:"profile"`
	RelevanceScore float64      `json:"relevance_score"`
	IsRelevant     bool         `json:"is_relevant"`
	Reasoning      string       `json:"reasoning"`
	Confidence     float64      `json:"confidence"`
}

// AdjudicatorOutput is the terminal payload of the adjudicator agent.
type AdjudicatorOutput struct {
	Results           []AdjudicationResult `json:"results"`
	RelevantProfiles  []AdjudicationResult `json:"relevant_profiles"`
	RejectionSummary  string               `json:"rejection_summary"`
	AverageConfidence float64              `json:"average_confidence"`
}

// SummaryStatistics aggregates the surviving candidates for the final answer.
type SummaryStatistics struct {
	TotalProviders int            `json:"total_providers"`
	ByCountry      map[string]int `json:"by_country"`
	ByProviderType map[string]int `json:"by_provider_type"`
}

// SummarizerOutput is the terminal payload of the summarizer agent.
type SummarizerOutput struct {
	ExecutiveSummary        string            `json:"executive_summary"`
	ProviderRecommendations []string          `json:"provider_recommendations"`
	KeyInsights             []string          `json:"key_insights"`
	Statistics              SummaryStatistics `json:"summary_statistics"`
	Confidence              float64           `json:"confidence"`
}

// SummaryStyle controls prose depth of the final answer.
type SummaryStyle string

const (
	StyleBrief         SummaryStyle = "brief"
	StyleComprehensive SummaryStyle = "comprehensive"
	StyleDetailed      SummaryStyle = "detailed"
)
