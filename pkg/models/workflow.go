package models

import "time"

// QueryContext carries one user request together with the session scope
// and the recent transcript. Every pipeline prompt is built from it, so
// the country and service type constraints reach each stage even when the
// query text itself omits them.
type QueryContext struct {
	Query       string `json:"query"`
	Country     string `json:"country,omitempty"`
	ServiceType string `json:"service_type,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
}

// WorkflowPhase is the coordinator state machine phase.
type WorkflowPhase string

const (
	PhaseInit         WorkflowPhase = "init"
	PhaseSearching    WorkflowPhase = "searching"
	PhaseAdjudicating WorkflowPhase = "adjudicating"
	PhaseSummarizing  WorkflowPhase = "summarizing"
	PhaseNoResults    WorkflowPhase = "no_results"
	PhaseDone         WorkflowPhase = "done"
	PhaseError        WorkflowPhase = "error"
	PhaseCancelled    WorkflowPhase = "cancelled"
)

// StageRecord captures one agent stage's lifecycle inside a workflow run.
type StageRecord struct {
	Agent     string     `json:"agent"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	OK        bool       `json:"ok"`
	Message   string     `json:"message,omitempty"`
}

// WorkflowState is the per-request state owned by a single coordinator
// instance. Each stage writes its own slot exactly once; only the
// coordinator mutates the struct.
type WorkflowState struct {
	WorkflowID    string             `json:"workflow_id"`
	OriginalQuery string             `json:"original_query"`
	MaxResults    int                `json:"max_results"`
	Phase         WorkflowPhase      `json:"phase"`
	Search        *SearchOutput      `json:"search_result,omitempty"`
	Adjudication  *AdjudicatorOutput `json:"adjudication_result,omitempty"`
	Summary       *SummarizerOutput  `json:"summary,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	EndedAt       *time.Time         `json:"ended_at,omitempty"`
	Errors        []string           `json:"errors,omitempty"`
	StageLog      []StageRecord      `json:"stage_log,omitempty"`
}
