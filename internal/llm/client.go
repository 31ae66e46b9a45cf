// Package llm wraps the external chat-completion API: a plain Chat call
// and a tool-enabled ChatWithTools loop that executes registry tools
// across bounded rounds. Citations and tool-call shapes are resolved
// here so the research pipeline works with typed records only.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prime-labs/prime-orchestrator/internal/citations"
	"github.com/prime-labs/prime-orchestrator/internal/metrics"
	"github.com/prime-labs/prime-orchestrator/internal/tools"
)

// Executor runs a tool by name. *tools.Registry satisfies this; tests
// substitute fakes.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]interface{}) string
}

// Client calls the chat-completion API.
type Client struct {
	cfg      Config
	http     *http.Client
	limiter  *rate.Limiter
	registry Executor
	defs     []tools.Definition
	logger   *zap.Logger
}

// NewClient builds a client. registry may be nil when tool-enabled chat
// is not needed.
func NewClient(cfg Config, registry Executor, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  limiter,
		registry: registry,
		defs:     tools.Definitions(),
		logger:   logger,
	}
}

// Chat sends one plain chat completion request.
func (c *Client) Chat(ctx context.Context, messages []Message, p Params) (*Completion, error) {
	req := c.newRequest(messages, p)
	resp, err := c.post(ctx, req)
	if err != nil {
		metrics.LLMCalls.WithLabelValues("chat", "error").Inc()
		return nil, err
	}
	metrics.LLMCalls.WithLabelValues("chat", "ok").Inc()
	return c.completionFrom(resp, nil), nil
}

// ChatWithTools runs the OpenAI-style function-calling loop. Round 0
// requires a tool call (evidence-first: PRIME must read before it
// speaks); later rounds leave the choice to the model. When the round
// cap is hit without a plain-text reply, the model is asked for a
// summary via Chat. forceFirstTool, when non-empty, pins round 0 to
// that specific tool.
func (c *Client) ChatWithTools(ctx context.Context, messages []Message, maxRounds int, p Params, forceFirstTool string) (*Completion, error) {
	if c.registry == nil {
		return nil, fmt.Errorf("tool-enabled chat requires a tool registry")
	}
	if maxRounds < 1 {
		maxRounds = 1
	}

	wire := make([]wireMessage, 0, len(messages)+maxRounds*2)
	for _, m := range messages {
		content := m.Content
		wire = append(wire, wireMessage{Role: m.Role, Content: &content})
	}

	var invoked []ToolCall

	for round := 0; round < maxRounds; round++ {
		req := c.newRequest(nil, p)
		req.Messages = wire
		req.Tools = c.defs
		switch {
		case round == 0 && forceFirstTool != "":
			req.ToolChoice = map[string]interface{}{
				"type":     "function",
				"function": map[string]string{"name": forceFirstTool},
			}
		case round == 0:
			req.ToolChoice = "required"
		default:
			req.ToolChoice = "auto"
		}

		resp, err := c.post(ctx, req)
		if err != nil {
			metrics.LLMCalls.WithLabelValues("chat_with_tools", "error").Inc()
			return nil, err
		}
		metrics.LLMCalls.WithLabelValues("chat_with_tools", "ok").Inc()

		choice := resp.Choices[0].Message
		if len(choice.ToolCalls) == 0 {
			return c.completionFrom(resp, invoked), nil
		}

		wire = append(wire, wireMessage{
			Role:      "assistant",
			Content:   choice.Content,
			ToolCalls: choice.ToolCalls,
		})

		for _, wtc := range choice.ToolCalls {
			tc := wtc.resolve()
			invoked = append(invoked, tc)
			metrics.ToolInvocations.WithLabelValues(tc.Name).Inc()

			result := c.registry.Execute(ctx, tc.Name, tc.Arguments)
			c.logger.Debug("tool round",
				zap.Int("round", round),
				zap.String("tool", tc.Name),
				zap.Int("result_bytes", len(result)),
			)
			wire = append(wire, wireMessage{
				Role:       "tool",
				Content:    &result,
				ToolCallID: tc.ID,
			})
		}
	}

	// Round cap hit: drop tool plumbing and ask for a plain summary.
	summary := "Summarize what you found."
	safe := make([]Message, 0, len(wire)+1)
	for _, m := range wire {
		if m.ToolCallID != "" || m.Content == nil || *m.Content == "" {
			continue
		}
		if m.Role != "user" && m.Role != "assistant" && m.Role != "system" {
			continue
		}
		safe = append(safe, Message{Role: m.Role, Content: *m.Content})
	}
	safe = append(safe, Message{Role: "user", Content: summary})

	out, err := c.Chat(ctx, safe, p)
	if err != nil {
		return nil, err
	}
	out.ToolCalls = invoked
	return out, nil
}

func (c *Client) newRequest(messages []Message, p Params) chatRequest {
	maxTokens := c.cfg.MaxTokens
	if p.MaxTokens > 0 {
		maxTokens = p.MaxTokens
	}
	temp := c.cfg.Temperature
	if p.Temperature > 0 {
		temp = p.Temperature
	}
	wire := make([]wireMessage, len(messages))
	for i, m := range messages {
		content := m.Content
		wire[i] = wireMessage{Role: m.Role, Content: &content}
	}
	return chatRequest{
		Model:       c.cfg.Model,
		Messages:    wire,
		MaxTokens:   maxTokens,
		Temperature: temp,
		TopP:        c.cfg.TopP,
		Stream:      false,
	}
}

func (c *Client) post(ctx context.Context, req chatRequest) (*chatResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	apiKey := os.Getenv(c.cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s is not set in environment", c.cfg.APIKeyEnv)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat API call failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("chat API returned status %d", httpResp.StatusCode)
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat API returned no choices")
	}

	metrics.LLMTokens.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokens.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))
	return &resp, nil
}

// completionFrom builds the typed Completion, extracting [CITE: ...]
// markers out of the response text.
func (c *Client) completionFrom(resp *chatResponse, invoked []ToolCall) *Completion {
	raw := ""
	if resp.Choices[0].Message.Content != nil {
		raw = strings.TrimSpace(*resp.Choices[0].Message.Content)
	}
	clean, cites := citations.Extract(raw)
	model := resp.Model
	if model == "" {
		model = c.cfg.Model
	}
	return &Completion{
		Text:             clean,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Citations:        cites,
		ToolCalls:        invoked,
	}
}
