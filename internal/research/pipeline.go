package research

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prime-labs/prime-orchestrator/internal/llm"
	"github.com/prime-labs/prime-orchestrator/internal/metrics"
)

// ChatClient is the slice of the LLM client the pipeline needs.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, p llm.Params) (*llm.Completion, error)
	ChatWithTools(ctx context.Context, messages []llm.Message, maxRounds int, p llm.Params, forceFirstTool string) (*llm.Completion, error)
}

// Stage names reported through the progress callback, with the
// checkpoint percentages the task API exposes.
const (
	StagePlanning     = "planning"     // 0%
	StageConducting   = "conducting"   // 20%
	StageSynthesizing = "synthesizing" // 70%
	StageFinalizing   = "finalizing"   // 95%
)

// ProgressFunc receives coarse stage checkpoints during a run. May be nil.
type ProgressFunc func(stage string, progress int)

// Options tune the pipeline beyond its fixed contract.
type Options struct {
	// SynthesisPreviewChars bounds each finding's answer preview in the
	// synthesis prompt. Zero means the default of 800.
	SynthesisPreviewChars int
}

// Pipeline runs plan → conduct → synthesize.
type Pipeline struct {
	client       ChatClient
	previewChars int
	logger       *zap.Logger
}

// NewPipeline builds a pipeline around a chat client.
func NewPipeline(client ChatClient, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	preview := opts.SynthesisPreviewChars
	if preview <= 0 {
		preview = 800
	}
	return &Pipeline{client: client, previewChars: preview, logger: logger}
}

// Run executes the full pipeline for one request. The request must
// already be normalized and validated; Run re-validates as a guard and
// performs no LLM call on bad input.
//
// Conductor runs are dispatched concurrently, one goroutine per plan
// entry, and joined before synthesis: results land positionally, so the
// findings order always matches plan order regardless of completion
// order, and a failing run never cancels its siblings.
func (p *Pipeline) Run(ctx context.Context, req Request, progress ProgressFunc) (*Report, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	report := func(stage string, pct int) {
		if progress != nil {
			progress(stage, pct)
		}
	}

	report(StagePlanning, 0)
	start := time.Now()
	plan := p.Plan(ctx, req.Query, req.Depth)
	metrics.StageDuration.WithLabelValues(StagePlanning).Observe(time.Since(start).Seconds())
	p.logger.Info("research plan ready",
		zap.String("depth", req.Depth),
		zap.Int("sub_questions", len(plan)),
	)

	report(StageConducting, 20)
	start = time.Now()
	findings := make([]Finding, len(plan))
	g, gctx := errgroup.WithContext(ctx)
	for i, subQ := range plan {
		g.Go(func() error {
			findings[i] = p.ConductSubQuestion(gctx, subQ, req.Context, req.Depth)
			return nil
		})
	}
	// Conductor errors are contained in degraded findings; the join
	// only waits.
	_ = g.Wait()
	metrics.StageDuration.WithLabelValues(StageConducting).Observe(time.Since(start).Seconds())

	report(StageSynthesizing, 70)
	start = time.Now()
	reportText, cites, err := p.Synthesize(ctx, req.Query, findings, req.Depth)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues(StageSynthesizing).Observe(time.Since(start).Seconds())

	report(StageFinalizing, 95)
	return &Report{
		Query:                req.Query,
		Depth:                req.Depth,
		Report:               reportText,
		Citations:            cites,
		Plan:                 plan,
		Findings:             findings,
		SubQuestionsAnswered: len(findings),
		SourcesConsulted:     CountSources(findings),
		AssembledAt:          time.Now().UTC().Format(time.RFC3339),
	}, nil
}
