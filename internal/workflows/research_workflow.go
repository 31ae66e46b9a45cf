// Package workflows contains the Temporal workflow driving background
// research tasks: plan, fan out conductor activities, synthesize, then
// record the outcome and persist the report.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/prime-labs/prime-orchestrator/internal/activities"
	"github.com/prime-labs/prime-orchestrator/internal/citations"
	"github.com/prime-labs/prime-orchestrator/internal/research"
)

// TaskQueue is the queue both the worker and the task API use.
const TaskQueue = "prime-research"

// ResearchInput starts one background research task.
type ResearchInput struct {
	TaskID  string                 `json:"task_id"`
	Query   string                 `json:"query"`
	Depth   string                 `json:"depth"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// ResearchWorkflow runs the full pipeline as activities. Stage
// checkpoints are recorded through RecordTaskProgress so polling
// clients and SSE subscribers see the same progression the synchronous
// API reports. Conductor activities run in parallel, one per plan
// entry, and results are collected positionally.
func ResearchWorkflow(ctx workflow.Context, in ResearchInput) (*research.Report, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting research workflow",
		"task_id", in.TaskID,
		"depth", in.Depth,
	)
	startedAt := workflow.Now(ctx)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	// Status bookkeeping gets a short timeout and more retries: these
	// are Redis writes, not LLM calls.
	statusCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})
	progress := func(stage string, pct int) {
		_ = workflow.ExecuteActivity(statusCtx, "RecordTaskProgress", activities.ProgressInput{
			TaskID:   in.TaskID,
			Stage:    stage,
			Progress: pct,
		}).Get(ctx, nil)
	}

	fail := func(msg string) {
		_ = workflow.ExecuteActivity(statusCtx, "RecordTaskOutcome", activities.OutcomeInput{
			TaskID: in.TaskID,
			Error:  msg,
		}).Get(ctx, nil)
	}

	progress(research.StagePlanning, 0)
	var planRes activities.PlanResult
	if err := workflow.ExecuteActivity(ctx, "PlanResearch", activities.PlanInput{
		Query:   in.Query,
		Depth:   in.Depth,
		Context: in.Context,
	}).Get(ctx, &planRes); err != nil {
		fail(err.Error())
		return nil, err
	}

	progress(research.StageConducting, 20)
	futures := make([]workflow.Future, len(planRes.Plan))
	for i, subQ := range planRes.Plan {
		futures[i] = workflow.ExecuteActivity(ctx, "ConductSubQuestion", activities.ConductInput{
			SubQuestion: subQ,
			Context:     in.Context,
			Depth:       in.Depth,
		})
	}
	findings := make([]research.Finding, len(planRes.Plan))
	for i, f := range futures {
		var res activities.ConductResult
		if err := f.Get(ctx, &res); err != nil {
			// Conductor activities contain their own failures; an
			// activity-level error here means retries were exhausted.
			// Degrade the finding and keep going.
			findings[i] = degradedFinding(planRes.Plan[i], err.Error())
			continue
		}
		findings[i] = res.Finding
	}

	progress(research.StageSynthesizing, 70)
	var synth activities.SynthesizeResult
	if err := workflow.ExecuteActivity(ctx, "SynthesizeFindings", activities.SynthesizeInput{
		Query:    in.Query,
		Findings: findings,
		Depth:    in.Depth,
	}).Get(ctx, &synth); err != nil {
		fail(err.Error())
		return nil, err
	}

	progress(research.StageFinalizing, 95)
	report := &research.Report{
		Query:                in.Query,
		Depth:                in.Depth,
		Report:               synth.Report,
		Citations:            synth.Citations,
		Plan:                 planRes.Plan,
		Findings:             findings,
		SubQuestionsAnswered: len(findings),
		SourcesConsulted:     research.CountSources(findings),
		AssembledAt:          workflow.Now(ctx).UTC().Format(time.RFC3339),
	}

	if err := workflow.ExecuteActivity(statusCtx, "RecordTaskOutcome", activities.OutcomeInput{
		TaskID: in.TaskID,
		Report: report,
	}).Get(ctx, nil); err != nil {
		logger.Warn("failed to record task outcome", "error", err)
	}

	durationMs := workflow.Now(ctx).Sub(startedAt).Milliseconds()
	_ = workflow.ExecuteActivity(ctx, "PersistReport", activities.PersistInput{
		TaskID:     in.TaskID,
		Report:     report,
		DurationMs: durationMs,
	}).Get(ctx, nil)

	logger.Info("Research workflow complete",
		"task_id", in.TaskID,
		"sub_questions", len(findings),
		"sources", report.SourcesConsulted,
	)
	return report, nil
}

func degradedFinding(subQ research.SubQuestion, msg string) research.Finding {
	return research.Finding{
		Index:         subQ.Index,
		SubQuestion:   subQ.Question,
		Focus:         subQ.Focus,
		Answer:        "[conductor error: " + msg + "]",
		Citations:     []citations.Citation{},
		ToolCallsMade: []string{},
		Degraded:      true,
	}
}
