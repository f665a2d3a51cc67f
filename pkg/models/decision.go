package models

// Orchestrator tool names.
const (
	ToolSearch         = "search"
	ToolConversational = "conversational"
)

// OrchestratorDecision is the structured output of the per-turn
// classification call. When ToolNeeded is false, DirectResponse may carry
// an immediate answer.
type OrchestratorDecision struct {
	ToolNeeded     bool   `json:"tool_needed"`
	Tool           string `json:"tool,omitempty"`
	Summary        string `json:"summary"`
	DirectResponse string `json:"direct_response,omitempty"`
}
