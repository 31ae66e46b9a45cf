// Package research implements the PRIME multi-step research pipeline:
// plan (decompose a query into sub-questions), conduct (answer each
// sub-question with tool access, concurrently), and synthesize (weave
// the findings into one report with a merged citation list).
package research

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/prime-labs/prime-orchestrator/internal/citations"
)

// Depth controls both how many sub-questions the planner produces and
// how many tool rounds each conductor run is allowed.
const (
	DepthQuick    = "quick"
	DepthStandard = "standard"
	DepthDeep     = "deep"
)

var (
	depthSubQuestions = map[string]int{DepthQuick: 3, DepthStandard: 5, DepthDeep: 7}
	depthToolRounds   = map[string]int{DepthQuick: 2, DepthStandard: 4, DepthDeep: 6}
)

// SubQuestionCount maps depth to the planner's target sub-question
// count. Unrecognized depth falls back to the standard count.
func SubQuestionCount(depth string) int {
	if n, ok := depthSubQuestions[depth]; ok {
		return n
	}
	return depthSubQuestions[DepthStandard]
}

// ToolRoundCap maps depth to the conductor's tool-round budget.
// Unrecognized depth falls back to the standard cap.
func ToolRoundCap(depth string) int {
	if n, ok := depthToolRounds[depth]; ok {
		return n
	}
	return depthToolRounds[DepthStandard]
}

// ValidDepths lists the accepted depth values, sorted.
func ValidDepths() []string {
	depths := make([]string, 0, len(depthSubQuestions))
	for d := range depthSubQuestions {
		depths = append(depths, d)
	}
	sort.Strings(depths)
	return depths
}

// SubQuestion is one focused question from the planner. Index equals
// its 1-based position in the plan.
type SubQuestion struct {
	Index    int    `json:"index"`
	Question string `json:"question"`
	Focus    string `json:"focus"`
}

// Finding is the answer to one sub-question, produced by a conductor
// run. Degraded marks findings whose answer is an error marker rather
// than real evidence; the answer string keeps the bracketed form for
// wire compatibility.
type Finding struct {
	Index         int                  `json:"index"`
	SubQuestion   string               `json:"sub_question"`
	Focus         string               `json:"focus"`
	Answer        string               `json:"answer"`
	Citations     []citations.Citation `json:"citations"`
	ToolCallsMade []string             `json:"tool_calls_made"`
	Degraded      bool                 `json:"degraded,omitempty"`
}

// Request is one research pipeline invocation.
type Request struct {
	Query   string                 `json:"query"`
	Depth   string                 `json:"depth"`
	Domain  string                 `json:"domain,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Report is the terminal aggregate returned to the caller.
type Report struct {
	Query                string               `json:"query"`
	Depth                string               `json:"depth"`
	Report               string               `json:"report"`
	Citations            []citations.Citation `json:"citations"`
	Plan                 []SubQuestion        `json:"plan"`
	Findings             []Finding            `json:"findings"`
	SubQuestionsAnswered int                  `json:"sub_questions_answered"`
	SourcesConsulted     int                  `json:"sources_consulted"`
	AssembledAt          string               `json:"assembled_at"`
}

// Normalize applies request defaults: standard depth, non-nil context.
func (r *Request) Normalize() {
	if r.Depth == "" {
		r.Depth = DepthStandard
	}
	if r.Context == nil {
		r.Context = map[string]interface{}{}
	}
}

// ValidateRequest rejects bad input before any LLM call is made. The
// messages are part of the API contract.
func ValidateRequest(req Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return errors.New("Query cannot be empty.")
	}
	if _, ok := depthSubQuestions[req.Depth]; !ok {
		return fmt.Errorf("depth must be one of: %s", strings.Join(ValidDepths(), ", "))
	}
	return nil
}

// CountSources returns the number of distinct non-empty citation
// sources across all findings. Computed independently of the
// synthesizer's merge; used for reporting only.
func CountSources(findings []Finding) int {
	seen := map[string]struct{}{}
	for _, f := range findings {
		for _, c := range f.Citations {
			if c.Source != "" {
				seen[c.Source] = struct{}{}
			}
		}
	}
	return len(seen)
}
