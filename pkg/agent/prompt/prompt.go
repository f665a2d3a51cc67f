// Package prompt builds all prompt text for the orchestrator and the
// pipeline agents. Stateless — all state comes from parameters.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/growbal/discovery/pkg/llm"
	"github.com/growbal/discovery/pkg/models"
)

// BuildStrategyMessages builds the search-strategy selection conversation.
// The model must answer with a SearchStrategyDecision JSON object.
func BuildStrategyMessages(q models.QueryContext) []llm.Message {
	system := fmt.Sprintf(`You route queries against a directory of %s.
Pick exactly one retrieval strategy:
- "semantic": free-form needs best matched by meaning.
- "tags": the query names concrete services or attributes that work as tags.
- "hybrid": both a free-form need and concrete taggable attributes.

Also rewrite the query as a provider self-description (first person plural,
e.g. "We provide corporate tax advisory for startups"), so it embeds close
to profile texts.

Respond with ONLY a JSON object:
{"strategy": "semantic|tags|hybrid", "extracted_tags": ["..."], "rewritten_query": "...", "rationale": "..."}`, scope(q))

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: withTranscript(q, fmt.Sprintf("User query: %s", q.Query))},
	}
}

// BuildAdjudicationMessages builds the per-candidate relevance evaluation
// conversation. The model streams prose reasoning and must end with a JSON
// verdict object.
func BuildAdjudicationMessages(q models.QueryContext, profile models.ProfileMatch, threshold float64) []llm.Message {
	system := fmt.Sprintf(`You judge whether ONE service provider is relevant to a user's request.
The user is searching a directory of %s.
Evaluate four axes: service match, location relevance, expertise alignment,
and capacity to serve. Reason briefly in prose first, then finish with ONLY
a JSON object on the final lines:
{"relevance_score": 0.0-1.0, "reasoning": "one or two sentences", "confidence": 0.0-1.0}

A provider is relevant when relevance_score >= %.2f.`, scope(q), threshold)

	user := withTranscript(q, fmt.Sprintf("User request: %s\n\nProvider profile:\n%s", q.Query, profile.ProfileText))

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}
}

// BuildSummaryMessages builds the final summarization conversation over the
// numbered relevant-profile block.
func BuildSummaryMessages(q models.QueryContext, profileBlock string, stats models.SummaryStatistics, style models.SummaryStyle, deepLinks map[string]string) []llm.Message {
	depth := "Write a concise summary."
	switch style {
	case models.StyleComprehensive:
		depth = "Write a thorough summary covering every recommended provider."
	case models.StyleDetailed:
		depth = "Write a detailed summary with per-provider specifics."
	}

	names := make([]string, 0, len(deepLinks))
	for name := range deepLinks {
		names = append(names, name)
	}
	sort.Strings(names)
	var links strings.Builder
	for _, name := range names {
		fmt.Fprintf(&links, "- %s: %s\n", name, deepLinks[name])
	}
	linkInstr := ""
	if links.Len() > 0 {
		linkInstr = fmt.Sprintf(`
Known provider links (when recommending one of these providers, the
recommendation line MUST be a bold Markdown link, i.e. **[Name](url)**):
%s`, links.String())
	}

	system := fmt.Sprintf(`You write the final answer for a search over a directory of %s. %s
Respond with ONLY a JSON object:
{"executive_summary": "...", "provider_recommendations": ["one short line per provider, best first"], "key_insights": ["..."]}
%s`, scope(q), depth, linkInstr)

	user := withTranscript(q, fmt.Sprintf(
		"User request: %s\n\nStatistics: %d providers (%d countries, %d provider types).\n\nRelevant profiles:\n%s",
		q.Query, stats.TotalProviders, len(stats.ByCountry), len(stats.ByProviderType), profileBlock))

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}
}

// scope renders the session constraints as a directory description, e.g.
// "Tax Services providers in UAE".
func scope(q models.QueryContext) string {
	serviceType := q.ServiceType
	if serviceType == "" {
		serviceType = "service"
	}
	if q.Country == "" {
		return serviceType + " providers"
	}
	return fmt.Sprintf("%s providers in %s", serviceType, q.Country)
}

// withTranscript prefixes the current request with the recent conversation
// when one exists.
func withTranscript(q models.QueryContext, current string) string {
	if q.Transcript == "" {
		return current
	}
	return fmt.Sprintf("Recent conversation:\n%s\n\n%s", q.Transcript, current)
}

// BuildClassificationMessages builds the per-turn routing conversation. The
// model must answer with an OrchestratorDecision JSON object.
func BuildClassificationMessages(message, country, serviceType, transcript string) []llm.Message {
	system := fmt.Sprintf(`You route one user turn in a service-provider discovery chat
(scope: %s providers in %s). Decide between two tools:
- "search": the user wants providers found, compared, or recommended.
- "conversational": greetings, thanks, or questions about the chat itself.

Respond with ONLY a JSON object:
{"tool_needed": true|false, "tool": "search"|"conversational", "summary": "one-line task statement", "direct_response": null}`,
		serviceType, country)

	user := message
	if transcript != "" {
		user = fmt.Sprintf("Recent conversation:\n%s\n\nCurrent message: %s", transcript, message)
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}
}

// BuildConversationalMessages builds the lightweight no-retrieval reply
// conversation.
func BuildConversationalMessages(message, country, serviceType, transcript string) []llm.Message {
	system := fmt.Sprintf(`You are the assistant of a directory of %s providers in %s.
Reply briefly and helpfully (a few sentences at most). Do not invent
providers; suggest describing what the user needs so you can search.`,
		serviceType, country)

	user := message
	if transcript != "" {
		user = fmt.Sprintf("Recent conversation:\n%s\n\nCurrent message: %s", transcript, message)
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}
}

// FormatTranscript renders recent turns as a compact transcript block.
func FormatTranscript(turns []models.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turn.UserContent, turn.AssistantContent)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatProfileBlock renders the relevant profiles as a numbered block with
// their similarity scores.
func FormatProfileBlock(results []models.AdjudicationResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. (similarity %.2f)\n%s\n\n", i+1, r.Profile.SimilarityScore, r.Profile.ProfileText)
	}
	return strings.TrimRight(b.String(), "\n")
}
