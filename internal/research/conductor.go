package research

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/citations"
	"github.com/prime-labs/prime-orchestrator/internal/identity"
	"github.com/prime-labs/prime-orchestrator/internal/llm"
	"github.com/prime-labs/prime-orchestrator/internal/metrics"
)

const conductorTemperature = 0.3

// ConductSubQuestion answers one sub-question with the full tool loop,
// bounded by the depth-derived round cap. Runs are stateless and
// independent: researchCtx is read-shared across concurrent runs and
// never written.
//
// Failure is contained here: any error from the tool-enabled call
// becomes a degraded Finding carrying a bracketed error marker, never a
// returned error. There is deliberately no plain-chat fallback on tool
// failure, unlike the general chat path.
func (p *Pipeline) ConductSubQuestion(ctx context.Context, subQ SubQuestion, researchCtx map[string]interface{}, depth string) Finding {
	maxRounds := ToolRoundCap(depth)

	system := identity.PrimeIdentity +
		"\n\n## RESEARCH MODE\n" +
		"You are answering ONE focused research question. Your job:\n" +
		"  1. Use tools to find the actual evidence (read files, search codebase, query DB).\n" +
		"  2. State your finding clearly and concisely.\n" +
		"  3. Cite every source using [CITE: ...] inline.\n" +
		"  4. Do not pad. Do not hedge. If the answer is short, that is fine.\n" +
		identity.CitationRules

	user := fmt.Sprintf("Research sub-question %d: %s\n", subQ.Index, subQ.Question)
	if subQ.Focus != "" {
		user += fmt.Sprintf("Focus area: %s\n", subQ.Focus)
	}

	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}

	resp, err := p.client.ChatWithTools(ctx, messages, maxRounds, llm.Params{Temperature: conductorTemperature}, "")
	if err != nil {
		p.logger.Warn("conductor run degraded",
			zap.Int("sub_question", subQ.Index),
			zap.Error(err),
		)
		metrics.ConductorDegraded.Inc()
		return Finding{
			Index:         subQ.Index,
			SubQuestion:   subQ.Question,
			Focus:         subQ.Focus,
			Answer:        fmt.Sprintf("[conductor error: %v]", err),
			Citations:     []citations.Citation{},
			ToolCallsMade: []string{},
			Degraded:      true,
		}
	}

	toolNames := make([]string, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		toolNames = append(toolNames, tc.Name)
	}
	cites := resp.Citations
	if cites == nil {
		cites = []citations.Citation{}
	}

	return Finding{
		Index:         subQ.Index,
		SubQuestion:   subQ.Question,
		Focus:         subQ.Focus,
		Answer:        resp.Text,
		Citations:     cites,
		ToolCallsMade: toolNames,
	}
}
