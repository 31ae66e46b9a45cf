package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prime-labs/prime-orchestrator/internal/citations"
	"github.com/prime-labs/prime-orchestrator/internal/llm"
)

func TestSynthesizePromptAndResult(t *testing.T) {
	client := &fakeClient{chatFn: func(msgs []llm.Message, p llm.Params) (*llm.Completion, error) {
		require.Len(t, msgs, 2)
		assert.Contains(t, msgs[0].Content, "synthesize the findings")
		assert.Contains(t, msgs[1].Content, "Original research query: how does ingest work?")
		assert.Contains(t, msgs[1].Content, "standard (2 sub-questions answered)")
		assert.Contains(t, msgs[1].Content, "FINDING 1 — first q")
		assert.Contains(t, msgs[1].Content, "FINDING 2 — second q")
		assert.InDelta(t, 0.4, p.Temperature, 1e-9)
		assert.Equal(t, 4096, p.MaxTokens)
		return &llm.Completion{
			Text:      "The answer [1].",
			Citations: []citations.Citation{{Index: 1, Source: "a.py"}},
		}, nil
	}}
	p := newTestPipeline(client)

	findings := []Finding{
		{Index: 1, SubQuestion: "first q", Answer: "alpha"},
		{Index: 2, SubQuestion: "second q", Answer: "beta",
			Citations: []citations.Citation{{Index: 1, Source: "b.py"}}},
	}
	text, cites, err := p.Synthesize(context.Background(), "how does ingest work?", findings, DepthStandard)
	require.NoError(t, err)
	assert.Equal(t, "The answer [1].", text)
	require.Len(t, cites, 2)
	assert.Equal(t, "a.py", cites[0].Source)
	assert.Equal(t, "b.py", cites[1].Source)
	assert.Equal(t, 2, cites[1].Index)
}

func TestSynthesizeErrorPropagates(t *testing.T) {
	client := &fakeClient{chatFn: func(_ []llm.Message, _ llm.Params) (*llm.Completion, error) {
		return nil, errors.New("upstream 500")
	}}
	_, _, err := newTestPipeline(client).Synthesize(context.Background(), "q", nil, DepthQuick)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesis failed")
	assert.Contains(t, err.Error(), "upstream 500")
}

func TestSynthesizeTruncatesAnswerPreviews(t *testing.T) {
	long := strings.Repeat("é", 1000) // multibyte, must cut on rune boundary
	client := &fakeClient{chatFn: func(msgs []llm.Message, _ llm.Params) (*llm.Completion, error) {
		assert.Contains(t, msgs[1].Content, strings.Repeat("é", 10))
		assert.NotContains(t, msgs[1].Content, strings.Repeat("é", 11))
		return &llm.Completion{Text: "done"}, nil
	}}
	p := NewPipeline(client, Options{SynthesisPreviewChars: 10}, nil)
	_, _, err := p.Synthesize(context.Background(), "q",
		[]Finding{{Index: 1, SubQuestion: "sq", Answer: long}}, DepthQuick)
	require.NoError(t, err)
}

func TestMergeCitationsDedup(t *testing.T) {
	synth := []citations.Citation{
		{Index: 1, Source: "a"},
		{Index: 2, Source: "b"},
	}
	findings := []Finding{
		{Citations: []citations.Citation{{Index: 1, Source: "b"}, {Index: 2, Source: "c"}}},
		{Citations: []citations.Citation{{Index: 1, Source: "c"}, {Index: 2, Source: "d"}}},
	}

	merged := MergeCitations(synth, findings)
	require.Len(t, merged, 4)
	// Synthesis citations keep their original indices and positions.
	assert.Equal(t, citations.Citation{Index: 1, Source: "a"}, merged[0])
	assert.Equal(t, citations.Citation{Index: 2, Source: "b"}, merged[1])
	// New finding sources continue the numbering; duplicates are dropped.
	assert.Equal(t, citations.Citation{Index: 3, Source: "c"}, merged[2])
	assert.Equal(t, citations.Citation{Index: 4, Source: "d"}, merged[3])
}

func TestMergeCitationsSkipsEmptySources(t *testing.T) {
	findings := []Finding{
		{Citations: []citations.Citation{{Index: 1, Source: ""}, {Index: 2, Source: "x"}}},
	}
	merged := MergeCitations(nil, findings)
	require.Len(t, merged, 1)
	assert.Equal(t, "x", merged[0].Source)
	assert.Equal(t, 1, merged[0].Index)
}

func TestCountSources(t *testing.T) {
	findings := []Finding{
		{Citations: []citations.Citation{{Source: "a"}, {Source: "b"}, {Source: ""}}},
		{Citations: []citations.Citation{{Source: "b"}, {Source: "c"}}},
		{},
	}
	assert.Equal(t, 3, CountSources(findings))
	assert.Equal(t, 0, CountSources(nil))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 0))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
}
