package activities

import (
	"github.com/prime-labs/prime-orchestrator/internal/citations"
	"github.com/prime-labs/prime-orchestrator/internal/research"
)

// PlanInput asks the planner to decompose a query.
type PlanInput struct {
	Query   string                 `json:"query"`
	Depth   string                 `json:"depth"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// PlanResult carries the decomposed plan back to the workflow.
type PlanResult struct {
	Plan []research.SubQuestion `json:"plan"`
}

// ConductInput runs one conductor over a single sub-question.
type ConductInput struct {
	SubQuestion research.SubQuestion   `json:"sub_question"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Depth       string                 `json:"depth"`
}

// ConductResult wraps the finding so the payload stays an object on
// the wire.
type ConductResult struct {
	Finding research.Finding `json:"finding"`
}

// SynthesizeInput merges all findings into the final report.
type SynthesizeInput struct {
	Query    string             `json:"query"`
	Findings []research.Finding `json:"findings"`
	Depth    string             `json:"depth"`
}

// SynthesizeResult is the synthesizer's output.
type SynthesizeResult struct {
	Report    string               `json:"report"`
	Citations []citations.Citation `json:"citations"`
}

// ProgressInput records a stage checkpoint for a background task.
type ProgressInput struct {
	TaskID   string `json:"task_id"`
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
}

// OutcomeInput records a task's terminal state.
type OutcomeInput struct {
	TaskID string           `json:"task_id"`
	Report *research.Report `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// PersistInput stores a finished report in Postgres.
type PersistInput struct {
	TaskID     string           `json:"task_id"`
	Report     *research.Report `json:"report"`
	DurationMs int64            `json:"duration_ms"`
}
