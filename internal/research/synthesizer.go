package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/prime-labs/prime-orchestrator/internal/citations"
	"github.com/prime-labs/prime-orchestrator/internal/identity"
	"github.com/prime-labs/prime-orchestrator/internal/llm"
)

// Warmer than the planner for prose quality, cooler than conversational
// defaults for consistency in long-form writing.
const (
	synthesizerTemperature = 0.4
	synthesizerMaxTokens   = 4096
)

// Synthesize weaves all findings into one report and merges citations.
// Unlike the planner and conductor, synthesis has no containment: an
// error here propagates to the orchestration layer.
func (p *Pipeline) Synthesize(ctx context.Context, query string, findings []Finding, depth string) (string, []citations.Citation, error) {
	blocks := make([]string, 0, len(findings))
	for _, f := range findings {
		blocks = append(blocks, fmt.Sprintf("FINDING %d — %s\n%s",
			f.Index, f.SubQuestion, truncateRunes(f.Answer, p.previewChars)))
	}
	findingsBlock := strings.Join(blocks, "\n\n")

	system := "You are PRIME. You have completed a multi-step research task. " +
		"Your job now is to synthesize the findings below into one authoritative, " +
		"coherent report. Rules:\n" +
		"  - Write in flowing, direct prose. No bullet points.\n" +
		"  - Lead with the most important insight.\n" +
		"  - Integrate findings naturally — do not just list them sequentially.\n" +
		"  - Be specific. Reference actual file names, function names, column names " +
		"wherever findings mention them.\n" +
		"  - Cite sources inline using [CITE: ...] wherever a finding cites a source.\n" +
		"  - Do not invent sources not mentioned in the findings.\n" +
		identity.CitationRules

	user := fmt.Sprintf(
		"Original research query: %s\nResearch depth: %s (%d sub-questions answered)\n\n"+
			"FINDINGS:\n\n%s\n\nWrite the final synthesized research report now.",
		query, depth, len(findings), findingsBlock,
	)

	resp, err := p.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, llm.Params{Temperature: synthesizerTemperature, MaxTokens: synthesizerMaxTokens})
	if err != nil {
		return "", nil, fmt.Errorf("synthesis failed: %w", err)
	}

	return resp.Text, MergeCitations(resp.Citations, findings), nil
}

// MergeCitations combines synthesis-level citations with finding-level
// ones, deduplicated by source. Synthesis citations come first, in
// order, with their original indices untouched; unseen non-empty
// finding sources are appended with sequential renumbering continuing
// from where the synthesis list left off. Finding citations with an
// empty source are never merged (they cannot be deduplicated) but stay
// on the Finding itself.
func MergeCitations(synthCites []citations.Citation, findings []Finding) []citations.Citation {
	merged := make([]citations.Citation, len(synthCites))
	copy(merged, synthCites)

	seen := map[string]struct{}{}
	for _, c := range synthCites {
		seen[c.Source] = struct{}{}
	}

	for _, f := range findings {
		for _, c := range f.Citations {
			if c.Source == "" {
				continue
			}
			if _, ok := seen[c.Source]; ok {
				continue
			}
			seen[c.Source] = struct{}{}
			c.Index = len(merged) + 1
			merged = append(merged, c)
		}
	}
	return merged
}

// truncateRunes bounds a finding's answer preview going into the
// synthesis prompt. Counted in runes so a multibyte character is never
// split.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
