// Package providers wraps concrete LLM APIs (Claude, OpenAI) behind one
// LLMProvider contract, grounded on picoclaw's pkg/providers, so the agent
// tool-calling loop (pkg/agent) never depends on a specific vendor SDK.
package providers

import "context"

// Message is one turn in an LLMProvider conversation. Role is one of
// "system", "user", "assistant", "tool".
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
	Function  *FunctionCall
}

// FunctionCall is the OpenAI-shaped raw tool-call payload, kept alongside
// the parsed Arguments so a provider can recover from a model that only
// fills Function.Arguments (a raw JSON string) and not Arguments.
type FunctionCall struct {
	Name      string
	Arguments string
}

// ToolDefinition is a tool advertised to the model in OpenAI function-call
// shape; Claude's provider translates it into Anthropic's own tool shape.
type ToolDefinition struct {
	Type     string
	Function ToolFunction
}

// ToolFunction is the OpenAI-shaped function schema inside a ToolDefinition.
type ToolFunction struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// UsageInfo reports token usage for one Chat call.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMResponse is one provider call's result.
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *UsageInfo
}

// StreamCallback receives incremental text deltas during ChatStream.
type StreamCallback func(delta string)

// LLMProvider is the contract the agent tool-calling loop drives.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error)
	GetDefaultModel() string
}

// StreamingProvider is implemented by providers that can stream partial
// text deltas as they arrive; FallbackProvider and the agent loop use this
// optionally, falling back to plain Chat when a provider doesn't support it.
type StreamingProvider interface {
	LLMProvider
	ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}, onContent StreamCallback) (*LLMResponse, error)
}
