package llm

import (
	"encoding/json"
	"time"

	"github.com/prime-labs/prime-orchestrator/internal/citations"
)

// Config holds connection and sampling defaults for the chat API.
type Config struct {
	BaseURL     string
	Model       string
	APIKeyEnv   string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Timeout     time.Duration
	// Client-side request rate limit; zero disables.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// DefaultConfig mirrors the provider defaults the service ships with.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.deepseek.com",
		Model:       "deepseek-chat",
		APIKeyEnv:   "DEEPSEEK_API_KEY",
		MaxTokens:   2048,
		Temperature: 0.85,
		TopP:        0.9,
		Timeout:     120 * time.Second,
	}
}

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params override the config's sampling defaults for a single call.
// Zero values fall back to the config.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// ToolCall is one resolved tool invocation. The wire shape (nested
// function object with stringified arguments) is normalized here, at the
// client boundary, so callers never sniff map shapes.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// Completion is the result of a chat call. Text has inline [CITE: ...]
// markers already replaced by [N] references; Citations carries the
// parsed records.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Citations        []citations.Citation
	ToolCalls        []ToolCall
}

// ── wire format (OpenAI-compatible chat completions) ─────────────────────

type wireToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function wireToolCallFunction `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream"`
	Tools       interface{}   `json:"tools,omitempty"`
	ToolChoice  interface{}   `json:"tool_choice,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   *string        `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// resolve normalizes a wire tool call into the typed form. Malformed
// argument JSON degrades to an empty argument map rather than an error;
// the tool layer reports missing arguments back to the model.
func (w wireToolCall) resolve() ToolCall {
	args := map[string]interface{}{}
	if w.Function.Arguments != "" {
		_ = json.Unmarshal([]byte(w.Function.Arguments), &args)
	}
	return ToolCall{ID: w.ID, Name: w.Function.Name, Arguments: args}
}
