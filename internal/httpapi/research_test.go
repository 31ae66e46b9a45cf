package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/citations"
	"github.com/prime-labs/prime-orchestrator/internal/research"
)

type fakeRunner struct {
	report *research.Report
	err    error
	calls  int
	last   research.Request
}

func (f *fakeRunner) Run(_ context.Context, req research.Request, _ research.ProgressFunc) (*research.Report, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func newResearchServer(runner Runner, token string) *httptest.Server {
	mux := http.NewServeMux()
	NewResearchHandler(runner, zap.NewNop(), token).RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestResearchEndpoint(t *testing.T) {
	runner := &fakeRunner{report: &research.Report{
		Query:  "how does ingest work?",
		Depth:  "standard",
		Report: "The answer [1].",
		Citations: []citations.Citation{
			{Index: 1, Source: "app/main.py", Type: "file"},
		},
		Plan:                 []research.SubQuestion{{Index: 1, Question: "q1"}},
		Findings:             []research.Finding{{Index: 1, Answer: "a1"}},
		SubQuestionsAnswered: 1,
		SourcesConsulted:     1,
		AssembledAt:          "2026-08-24T10:00:00Z",
	}}
	srv := newResearchServer(runner, "")
	defer srv.Close()

	resp, out := postJSON(t, srv.URL+"/prime/research/",
		`{"query": "how does ingest work?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The wire contract's field names.
	for _, field := range []string{"query", "depth", "report", "citations", "plan",
		"findings", "sub_questions_answered", "sources_consulted", "assembled_at"} {
		assert.Contains(t, out, field)
	}
	assert.Equal(t, "The answer [1].", out["report"])
	assert.Equal(t, float64(1), out["sub_questions_answered"])

	// Depth defaulted before the pipeline ran.
	assert.Equal(t, "standard", runner.last.Depth)
	assert.NotNil(t, runner.last.Context)
}

func TestResearchEndpointValidation(t *testing.T) {
	runner := &fakeRunner{}
	srv := newResearchServer(runner, "")
	defer srv.Close()

	resp, out := postJSON(t, srv.URL+"/prime/research/", `{"query": "   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Query cannot be empty.", out["detail"])

	resp, out = postJSON(t, srv.URL+"/prime/research/", `{"query": "q", "depth": "extreme"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "depth must be one of: deep, quick, standard", out["detail"])

	resp, out = postJSON(t, srv.URL+"/prime/research/", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid JSON", out["detail"])

	assert.Zero(t, runner.calls)
}

func TestResearchEndpointPipelineError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("synthesis failed: model overloaded")}
	srv := newResearchServer(runner, "")
	defer srv.Close()

	resp, out := postJSON(t, srv.URL+"/prime/research/", `{"query": "q", "depth": "quick"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Research pipeline error: synthesis failed: model overloaded", out["detail"])
}

func TestResearchEndpointMethodAndAuth(t *testing.T) {
	runner := &fakeRunner{report: &research.Report{}}
	srv := newResearchServer(runner, "secret")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/prime/research/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/prime/research/", `{"query": "q"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/prime/research/", strings.NewReader(`{"query": "q"}`))
	req.Header.Set("Authorization", "Bearer secret")
	authResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	authResp.Body.Close()
	assert.Equal(t, http.StatusOK, authResp.StatusCode)
}
