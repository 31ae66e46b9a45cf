package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/metrics"
	"github.com/prime-labs/prime-orchestrator/internal/streaming"
)

// PlanResearch decomposes the query into sub-questions. The planner
// contains its own fallbacks, so this activity only fails on context
// cancellation inside the LLM call.
func (a *Activities) PlanResearch(ctx context.Context, in PlanInput) (PlanResult, error) {
	plan := a.pipeline.Plan(ctx, in.Query, in.Depth)
	a.logger.Info("research plan generated",
		zap.String("depth", in.Depth),
		zap.Int("sub_questions", len(plan)),
	)
	return PlanResult{Plan: plan}, nil
}

// ConductSubQuestion answers one sub-question with tool access. Errors
// are contained in a degraded finding, so the activity itself never
// retries a failed conductor run.
func (a *Activities) ConductSubQuestion(ctx context.Context, in ConductInput) (ConductResult, error) {
	if activity.IsActivity(ctx) {
		info := activity.GetInfo(ctx)
		a.logger.Debug("conductor activity started",
			zap.String("workflow_id", info.WorkflowExecution.ID),
			zap.Int("sub_question", in.SubQuestion.Index),
		)
	}
	finding := a.pipeline.ConductSubQuestion(ctx, in.SubQuestion, in.Context, in.Depth)
	return ConductResult{Finding: finding}, nil
}

// SynthesizeFindings produces the final report. Unlike the other
// stages this one propagates errors; the workflow fails the task.
func (a *Activities) SynthesizeFindings(ctx context.Context, in SynthesizeInput) (SynthesizeResult, error) {
	text, cites, err := a.pipeline.Synthesize(ctx, in.Query, in.Findings, in.Depth)
	if err != nil {
		return SynthesizeResult{}, err
	}
	return SynthesizeResult{Report: text, Citations: cites}, nil
}

// RecordTaskProgress advances the stored task state and publishes a
// stage event to stream subscribers.
func (a *Activities) RecordTaskProgress(ctx context.Context, in ProgressInput) error {
	if err := a.status.SetProgress(ctx, in.TaskID, in.Stage, in.Progress); err != nil {
		return fmt.Errorf("failed to record progress for task %s: %w", in.TaskID, err)
	}
	a.streams.Publish(in.TaskID, streaming.Event{
		Type:     streaming.TypeStageChanged,
		Stage:    in.Stage,
		Progress: in.Progress,
	})
	return nil
}

// RecordTaskOutcome marks a task COMPLETED or FAILED and emits the
// terminal stream event.
func (a *Activities) RecordTaskOutcome(ctx context.Context, in OutcomeInput) error {
	if in.Error != "" {
		if err := a.status.Fail(ctx, in.TaskID, in.Error); err != nil {
			return err
		}
		metrics.TasksCompleted.WithLabelValues("failure").Inc()
		a.streams.Publish(in.TaskID, streaming.Event{
			Type:    streaming.TypeTaskFailed,
			Message: in.Error,
		})
		return nil
	}

	if err := a.status.Complete(ctx, in.TaskID, in.Report); err != nil {
		return err
	}
	metrics.TasksCompleted.WithLabelValues("success").Inc()
	a.streams.Publish(in.TaskID, streaming.Event{
		Type:     streaming.TypeTaskCompleted,
		Progress: 100,
	})
	return nil
}

// PersistReport writes the finished report to Postgres. A disabled or
// unreachable database is logged, never fatal: the report already lives
// in the task store.
func (a *Activities) PersistReport(ctx context.Context, in PersistInput) error {
	if a.reports == nil {
		return nil
	}
	_, err := a.reports.SaveReport(ctx, in.TaskID, in.Report, time.Duration(in.DurationMs)*time.Millisecond)
	if err != nil {
		a.logger.Warn("report persistence failed",
			zap.String("task_id", in.TaskID),
			zap.Error(err),
		)
	}
	return nil
}
