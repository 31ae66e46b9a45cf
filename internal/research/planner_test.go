package research

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/citations"
	"github.com/prime-labs/prime-orchestrator/internal/llm"
)

// fakeClient scripts Chat and ChatWithTools responses and counts calls.
type fakeClient struct {
	mu            sync.Mutex
	chatFn        func(msgs []llm.Message, p llm.Params) (*llm.Completion, error)
	toolsFn       func(msgs []llm.Message, maxRounds int) (*llm.Completion, error)
	chatCalls     int
	toolCalls     int
	lastChatMsgs  []llm.Message
	lastToolMsgs  []llm.Message
	lastMaxRounds int
}

func (f *fakeClient) Chat(_ context.Context, msgs []llm.Message, p llm.Params) (*llm.Completion, error) {
	f.mu.Lock()
	f.chatCalls++
	f.lastChatMsgs = msgs
	f.mu.Unlock()
	if f.chatFn == nil {
		return &llm.Completion{Text: "ok"}, nil
	}
	return f.chatFn(msgs, p)
}

func (f *fakeClient) ChatWithTools(_ context.Context, msgs []llm.Message, maxRounds int, _ llm.Params, _ string) (*llm.Completion, error) {
	f.mu.Lock()
	f.toolCalls++
	f.lastToolMsgs = msgs
	f.lastMaxRounds = maxRounds
	f.mu.Unlock()
	if f.toolsFn == nil {
		return &llm.Completion{Text: "finding"}, nil
	}
	return f.toolsFn(msgs, maxRounds)
}

func (f *fakeClient) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls, f.toolCalls
}

func newTestPipeline(client ChatClient) *Pipeline {
	return NewPipeline(client, Options{}, zap.NewNop())
}

func TestPlanDepthCounts(t *testing.T) {
	// The model over-delivers; the planner must cap at the depth target.
	long := "["
	for i := 0; i < 10; i++ {
		if i > 0 {
			long += ","
		}
		long += fmt.Sprintf(`{"question": "q%d", "focus": "f%d"}`, i, i)
	}
	long += "]"

	for depth, want := range map[string]int{DepthQuick: 3, DepthStandard: 5, DepthDeep: 7} {
		client := &fakeClient{chatFn: func(_ []llm.Message, _ llm.Params) (*llm.Completion, error) {
			return &llm.Completion{Text: long}, nil
		}}
		plan := newTestPipeline(client).Plan(context.Background(), "query", depth)
		require.Len(t, plan, want, depth)
		for i, sq := range plan {
			assert.Equal(t, i+1, sq.Index)
			assert.NotEmpty(t, sq.Question)
		}
	}
}

func TestPlanUnrecognizedDepthFallsBackToStandard(t *testing.T) {
	assert.Equal(t, 5, SubQuestionCount("ultra"))
	assert.Equal(t, 4, ToolRoundCap("ultra"))
}

func TestPlanStripsCodeFences(t *testing.T) {
	client := &fakeClient{chatFn: func(_ []llm.Message, _ llm.Params) (*llm.Completion, error) {
		return &llm.Completion{Text: "```json\n[{\"question\": \"What handles PDFs?\", \"focus\": \"ingest\"}]\n```"}, nil
	}}
	plan := newTestPipeline(client).Plan(context.Background(), "query", DepthQuick)
	require.Len(t, plan, 1)
	assert.Equal(t, "What handles PDFs?", plan[0].Question)
	assert.Equal(t, "ingest", plan[0].Focus)
}

func TestPlanDropsEmptyQuestions(t *testing.T) {
	client := &fakeClient{chatFn: func(_ []llm.Message, _ llm.Params) (*llm.Completion, error) {
		return &llm.Completion{Text: `[{"question": "a", "focus": ""}, {"focus": "orphan"}, {"question": "b"}]`}, nil
	}}
	plan := newTestPipeline(client).Plan(context.Background(), "query", DepthStandard)
	require.Len(t, plan, 2)
	assert.Equal(t, 1, plan[0].Index)
	assert.Equal(t, "a", plan[0].Question)
	assert.Equal(t, 2, plan[1].Index)
	assert.Equal(t, "b", plan[1].Question)
}

func TestPlanRegexFallback(t *testing.T) {
	// Malformed JSON, but question values survive a regex scrape.
	client := &fakeClient{chatFn: func(_ []llm.Message, _ llm.Params) (*llm.Completion, error) {
		return &llm.Completion{Text: `Here is the plan: {"question": "first?", oops "question": "second?"`}, nil
	}}
	plan := newTestPipeline(client).Plan(context.Background(), "query", DepthStandard)
	require.Len(t, plan, 2)
	assert.Equal(t, "first?", plan[0].Question)
	assert.Equal(t, "second?", plan[1].Question)
	assert.Empty(t, plan[0].Focus)
}

func TestPlanSingleQuestionFallbackOnError(t *testing.T) {
	client := &fakeClient{chatFn: func(_ []llm.Message, _ llm.Params) (*llm.Completion, error) {
		return nil, errors.New("connection refused")
	}}
	plan := newTestPipeline(client).Plan(context.Background(), "What files handle PDF ingestion?", DepthDeep)
	require.Len(t, plan, 1)
	assert.Equal(t, SubQuestion{Index: 1, Question: "What files handle PDF ingestion?", Focus: "full query"}, plan[0])
}

func TestPlanSingleQuestionFallbackOnGarbage(t *testing.T) {
	client := &fakeClient{chatFn: func(_ []llm.Message, _ llm.Params) (*llm.Completion, error) {
		return &llm.Completion{Text: "I cannot decompose this."}, nil
	}}
	plan := newTestPipeline(client).Plan(context.Background(), "query", DepthStandard)
	require.Len(t, plan, 1)
	assert.Equal(t, "full query", plan[0].Focus)
}

func TestConductSubQuestion(t *testing.T) {
	client := &fakeClient{toolsFn: func(msgs []llm.Message, maxRounds int) (*llm.Completion, error) {
		return &llm.Completion{
			Text:      "Ingestion lives in router.py [1].",
			Citations: []citations.Citation{{Index: 1, Source: "app/prime/ingest/router.py"}},
			ToolCalls: []llm.ToolCall{
				{Name: "search_codebase"},
				{Name: "read_file"},
			},
		}, nil
	}}
	p := newTestPipeline(client)
	f := p.ConductSubQuestion(context.Background(),
		SubQuestion{Index: 2, Question: "What handles ingestion?", Focus: "ingest"}, nil, DepthQuick)

	assert.Equal(t, 2, f.Index)
	assert.Equal(t, "What handles ingestion?", f.SubQuestion)
	assert.Equal(t, "ingest", f.Focus)
	assert.Equal(t, "Ingestion lives in router.py [1].", f.Answer)
	assert.Equal(t, []string{"search_codebase", "read_file"}, f.ToolCallsMade)
	require.Len(t, f.Citations, 1)
	assert.False(t, f.Degraded)
	assert.Equal(t, 2, client.lastMaxRounds) // quick depth cap
}

func TestConductDepthRoundCaps(t *testing.T) {
	for depth, want := range map[string]int{DepthQuick: 2, DepthStandard: 4, DepthDeep: 6} {
		client := &fakeClient{}
		newTestPipeline(client).ConductSubQuestion(context.Background(),
			SubQuestion{Index: 1, Question: "q"}, nil, depth)
		assert.Equal(t, want, client.lastMaxRounds, depth)
	}
}

func TestConductContainsFailure(t *testing.T) {
	client := &fakeClient{toolsFn: func(_ []llm.Message, _ int) (*llm.Completion, error) {
		return nil, errors.New("tool loop exploded")
	}}
	f := newTestPipeline(client).ConductSubQuestion(context.Background(),
		SubQuestion{Index: 3, Question: "q", Focus: "f"}, nil, DepthStandard)

	assert.Equal(t, 3, f.Index)
	assert.Equal(t, "[conductor error: tool loop exploded]", f.Answer)
	assert.NotEmpty(t, f.Answer)
	assert.Empty(t, f.Citations)
	assert.Empty(t, f.ToolCallsMade)
	assert.True(t, f.Degraded)
}

func TestConductSystemPromptLayersIdentity(t *testing.T) {
	client := &fakeClient{}
	newTestPipeline(client).ConductSubQuestion(context.Background(),
		SubQuestion{Index: 1, Question: "q", Focus: "area"}, nil, DepthStandard)

	require.Len(t, client.lastToolMsgs, 2)
	assert.Equal(t, "system", client.lastToolMsgs[0].Role)
	assert.Contains(t, client.lastToolMsgs[0].Content, "RESEARCH MODE")
	assert.Contains(t, client.lastToolMsgs[0].Content, "CITATION FORMAT")
	assert.Contains(t, client.lastToolMsgs[1].Content, "Research sub-question 1: q")
	assert.Contains(t, client.lastToolMsgs[1].Content, "Focus area: area")
}
