// Package events defines the streaming envelope emitted by the agents and
// the workflow coordinator, the bounded emitter they publish through, and
// the status/final frame classification used for display and persistence.
package events

import (
	"time"

	"github.com/growbal/discovery/pkg/models"
)

// Type identifies an event on the wire.
type Type string

// Agent-level and workflow-level event types. Field names and values are a
// wire compatibility surface; renaming breaks consumers.
const (
	// Search agent
	TypeStrategyStart    Type = "strategy_start"
	TypeStrategyComplete Type = "strategy_complete"
	TypeSearchStart      Type = "search_start"
	TypeSearchProgress   Type = "search_progress"

	// Adjudicator agent
	TypeProfileStart     Type = "profile_start"
	TypeProfileStreaming Type = "profile_streaming"
	TypeProfileComplete  Type = "profile_complete"
	TypeProfileError     Type = "profile_error"

	// Summarizer agent
	TypeStatisticsComplete Type = "statistics_complete"
	TypePreparationStart   Type = "preparation_start"
	TypeProfilePrepared    Type = "profile_prepared"
	TypeSummarizationStart Type = "summarization_start"

	// Workflow / orchestrator
	TypeStart     Type = "start"
	TypeAnalysis  Type = "analysis"
	TypeFinal     Type = "final"
	TypeNoResults Type = "no_results"
	TypeComplete  Type = "complete"
	TypeError     Type = "error"
	TypeCancelled Type = "cancelled"
)

// Agent names used in the envelope's agent field.
const (
	AgentSearch       = "search"
	AgentAdjudicator  = "adjudicator"
	AgentSummarizer   = "summarizer"
	AgentWorkflow     = "workflow"
	AgentOrchestrator = "orchestrator"
)

// Event is the immutable streaming envelope. It is flat: each event type
// populates its own subset of fields, everything else stays zero and is
// omitted from the JSON encoding.
type Event struct {
	Agent string `json:"agent,omitempty"`
	Type  Type   `json:"type"`

	// Workflow-level fields.
	WorkflowID string                    `json:"workflow_id,omitempty"`
	Query      string                    `json:"query,omitempty"`
	Success    *bool                     `json:"success,omitempty"`
	Summary    string                    `json:"summary,omitempty"`
	Statistics *models.SummaryStatistics `json:"statistics,omitempty"`
	NoResults  *bool                     `json:"no_results,omitempty"`
	Message    string                    `json:"message,omitempty"`
	Error      string                    `json:"error,omitempty"`

	// Search agent fields.
	Strategy       models.SearchStrategy `json:"strategy,omitempty"`
	ExtractedTags  []string              `json:"extracted_tags,omitempty"`
	RewrittenQuery string                `json:"rewritten_query,omitempty"`
	Rationale      string                `json:"rationale,omitempty"`
	Found          *int                  `json:"found,omitempty"`
	TotalSearched  *int                  `json:"total_searched,omitempty"`

	// Adjudicator fields.
	Index          *int     `json:"index,omitempty"`
	Total          *int     `json:"total,omitempty"`
	ProfileName    string   `json:"profile_name,omitempty"`
	PartialText    string   `json:"partial_text,omitempty"`
	IsRelevant     *bool    `json:"is_relevant,omitempty"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
	Reasoning      string   `json:"reasoning,omitempty"`

	// Terminal payload of an agent's complete event.
	Data any `json:"data,omitempty"`

	Timestamp string `json:"timestamp,omitempty"` // RFC3339Nano, set by the emitter
}

// Terminal reports whether this event ends a workflow-level stream.
func (e Event) Terminal() bool {
	if e.Agent != "" && e.Agent != AgentWorkflow && e.Agent != AgentOrchestrator {
		return false
	}
	switch e.Type {
	case TypeComplete, TypeNoResults, TypeError, TypeCancelled, TypeFinal:
		return true
	}
	return false
}

// Helpers for the pointer-typed optional fields.

func Bool(v bool) *bool { return &v }

func Int(v int) *int { return &v }

func Float(v float64) *float64 { return &v }

func stamp() string { return time.Now().UTC().Format(time.RFC3339Nano) }
