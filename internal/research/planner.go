package research

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/llm"
	"github.com/prime-labs/prime-orchestrator/internal/metrics"
)

// The planner runs near-deterministic: decomposition quality should not
// vary run to run. The conductor and synthesizer sample warmer.
const plannerTemperature = 0.1

var (
	codeFenceOpen  = regexp.MustCompile("(?m)^```(?:json)?\\s*")
	codeFenceClose = regexp.MustCompile("(?m)\\s*```$")
	questionValue  = regexp.MustCompile(`"question"\s*:\s*"([^"]+)"`)
)

// Plan decomposes a research query into focused sub-questions. The
// target count follows depth (quick 3, standard 5, deep 7).
//
// Parsing is three-tier: strict JSON after stripping any code fence the
// model added; then a regex scrape of "question" values from the raw
// text; then a single sub-question holding the query verbatim. Total
// failure degrades to the single-item plan -- Plan never fails the
// pipeline.
func (p *Pipeline) Plan(ctx context.Context, query, depth string) []SubQuestion {
	n := SubQuestionCount(depth)

	prompt := fmt.Sprintf(
		"Break this research query into exactly %d focused sub-questions.\n\n"+
			"Query: %s\n\n"+
			"Output ONLY a valid JSON array. Each item must have:\n"+
			"  \"question\": the focused sub-question to answer\n"+
			"  \"focus\": one short phrase describing what aspect it covers\n\n"+
			"Example:\n"+
			"[{\"question\": \"What files handle PDF ingestion?\", \"focus\": \"file discovery\"},\n"+
			" {\"question\": \"Which function processes the payload?\", \"focus\": \"handler logic\"}]\n\n"+
			"Output ONLY the JSON array. No prose, no markdown, no code fences.",
		n, query,
	)

	raw := ""
	resp, err := p.client.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.Params{Temperature: plannerTemperature})
	if err == nil {
		raw = resp.Text
		if plan, ok := parsePlanJSON(raw, n); ok {
			return plan
		}
	} else {
		p.logger.Warn("planner LLM call failed, falling back", zap.Error(err))
	}

	// Regex fallback: pull any quoted question values out of whatever
	// text we do have.
	if matches := questionValue.FindAllStringSubmatch(raw, n); len(matches) > 0 {
		metrics.PlannerFallbacks.WithLabelValues("regex").Inc()
		plan := make([]SubQuestion, 0, len(matches))
		for i, m := range matches {
			plan = append(plan, SubQuestion{Index: i + 1, Question: m[1]})
		}
		return plan
	}

	// Last resort: treat the full query as a single sub-question.
	metrics.PlannerFallbacks.WithLabelValues("single_question").Inc()
	return []SubQuestion{{Index: 1, Question: query, Focus: "full query"}}
}

// parsePlanJSON attempts the strict-JSON tier. It strips markdown code
// fences, parses the array, keeps up to n non-empty questions, and
// assigns indices by position in the returned list.
func parsePlanJSON(raw string, n int) ([]SubQuestion, bool) {
	text := strings.TrimSpace(raw)
	text = codeFenceOpen.ReplaceAllString(text, "")
	text = codeFenceClose.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	var items []struct {
		Question string `json:"question"`
		Focus    string `json:"focus"`
	}
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, false
	}

	if len(items) > n {
		items = items[:n]
	}
	plan := make([]SubQuestion, 0, len(items))
	for _, item := range items {
		if item.Question == "" {
			continue
		}
		plan = append(plan, SubQuestion{
			Index:    len(plan) + 1,
			Question: item.Question,
			Focus:    item.Focus,
		})
	}
	if len(plan) == 0 {
		return nil, false
	}
	return plan, true
}
