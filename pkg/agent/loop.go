// Package agent implements the two concrete hub.Agent kinds — DefaultAgent
// and HandoffAgent — and their shared LLM tool-calling loop, grounded on
// the original source's hygroup/agent/default (registry.py, prompt.py)
// and on picoclaw's pkg/agent tool-calling loop structure.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hybridchat/hub/pkg/bus"
	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/mcp"
	"github.com/hybridchat/hub/pkg/metrics"
	"github.com/hybridchat/hub/pkg/providers"
	"github.com/hybridchat/hub/pkg/tools"
)

// streamFlushInterval throttles how often a StreamingProvider's accumulated
// text deltas are pushed out as a StreamElem.Delta, so a gateway editing a
// message in place doesn't hammer its API once per token.
const streamFlushInterval = 1500 * time.Millisecond

// Settings configures one agent's LLM provider, model, system instructions
// and available tools (spec §4.1d agent registry record).
type Settings struct {
	Provider      providers.LLMProvider
	Model         string
	Instructions  string
	Tools         *tools.ToolRegistry
	MaxIterations int
	AllowHandoff  bool
	Metrics       *metrics.Tracker

	// MCPServers, if non-empty, are started fresh for every RequestScope
	// and bridged into a per-request tool registry (spec §4.1c); their
	// `${NAME}` placeholders are resolved against the invoking user's
	// secrets merged with the process environment.
	MCPServers []mcp.ServerConfig
}

// startMCPScope starts settings.MCPServers (if any), resolving `${NAME}`
// placeholders against configValues ∪ the process environment, and returns
// a tool registry combining settings.Tools with every bridged MCP tool,
// plus a closer that stops the MCP servers. Returns (nil, nil, nil) if no
// MCP servers are configured, signalling the caller to use settings.Tools
// unmodified.
func startMCPScope(settings Settings, configValues map[string]string) (*tools.ToolRegistry, func(), error) {
	if len(settings.MCPServers) == 0 {
		return nil, nil, nil
	}

	manager := mcp.NewManager()
	vars := mcp.MergeVars(configValues, os.Environ())
	manager.StartFromConfig(settings.MCPServers, vars)

	combined := tools.NewToolRegistry()
	if settings.Tools != nil {
		for _, t := range settings.Tools.All() {
			combined.Register(t)
		}
	}
	mcp.RegisterTools(manager, combined)

	return combined, manager.StopAll, nil
}

const defaultMaxIterations = 12

const handoffToolName = "handoff"

func (s Settings) maxIterations() int {
	if s.MaxIterations > 0 {
		return s.MaxIterations
	}
	return defaultMaxIterations
}

func (s Settings) toolDefinitions() []providers.ToolDefinition {
	var defs []providers.ToolDefinition
	if s.Tools != nil {
		for _, t := range s.Tools.All() {
			defs = append(defs, providers.ToolDefinition{
				Type: "function",
				Function: providers.ToolFunction{
					Name:        t.Name(),
					Description: t.Description(),
					Parameters:  t.Parameters(),
				},
			})
		}
	}
	if s.AllowHandoff {
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunction{
				Name:        handoffToolName,
				Description: "Hand off part of this task to another agent, identified by name, with a query for it to address. May be called more than once in the same turn.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"agent_name": map[string]interface{}{"type": "string"},
						"query":      map[string]interface{}{"type": "string"},
					},
					"required": []string{"agent_name", "query"},
				},
			},
		})
	}
	return defs
}

// runLoop drives the shared tool-calling loop: it calls the provider,
// executes any requested tools (yielding PermissionRequests for gated
// ones), and repeats until the model returns a final answer with no
// further tool calls or MaxIterations is exhausted. handoffs accumulates
// across iterations so a HandoffAgent's terminal AgentResponse carries
// every handoff invoked during the turn (spec §4.1a).
func runLoop(ctx context.Context, agentName string, settings Settings, request hub.AgentRequest, updates []hub.Message, threads []hub.Thread, history []providers.Message, out chan<- hub.StreamElem) []providers.Message {
	messages := append([]providers.Message(nil), history...)
	if settings.Instructions != "" && !historyHasSystem(history) {
		messages = append([]providers.Message{{Role: "system", Content: settings.Instructions}}, messages...)
	}
	messages = append(messages, providers.Message{Role: "user", Content: formatInput(request, agentName, updates, threads)})

	toolDefs := settings.toolDefinitions()
	handoffs := map[string]string{}

	for iteration := 0; iteration < settings.maxIterations(); iteration++ {
		resp, err := chatOrStream(ctx, settings, messages, toolDefs, out)
		if err != nil {
			return finishWithError(ctx, agentName, settings, request, messages, out, fmt.Errorf("provider call: %w", err))
		}

		if settings.Metrics != nil && resp.Usage != nil {
			settings.Metrics.Record(metrics.TokenEvent{
				SessionID:    request.Sender,
				AgentName:    agentName,
				Model:        settings.Model,
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
				Iteration:    iteration,
			})
		}

		if len(resp.ToolCalls) == 0 {
			messages = append(messages, providers.Message{Role: "assistant", Content: resp.Content})
			out <- hub.StreamElem{Response: &hub.AgentResponse{Text: resp.Content, Final: true, Handoffs: nonEmpty(handoffs)}}
			return messages
		}

		messages = append(messages, providers.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			result := executeToolCall(ctx, settings, call, handoffs, out)
			messages = append(messages, providers.Message{Role: "tool", ToolCallID: call.ID, Content: result})
		}
	}

	logger.WarnCF("agent", "max tool-calling iterations reached", map[string]interface{}{"agent": agentName})
	out <- hub.StreamElem{Response: &hub.AgentResponse{
		Text:     "I wasn't able to finish within the allotted number of steps.",
		Final:    true,
		Handoffs: nonEmpty(handoffs),
	}}
	return messages
}

// chatOrStream calls the provider, streaming progressive StreamElem.Delta
// updates through out when settings.Provider implements
// providers.StreamingProvider, falling back to a single blocking Chat call
// otherwise.
func chatOrStream(ctx context.Context, settings Settings, messages []providers.Message, toolDefs []providers.ToolDefinition, out chan<- hub.StreamElem) (*providers.LLMResponse, error) {
	sp, ok := settings.Provider.(providers.StreamingProvider)
	if !ok {
		return settings.Provider.Chat(ctx, messages, toolDefs, settings.Model, nil)
	}

	notifier := bus.NewStreamNotifier(streamFlushInterval, func(fullText string) {
		out <- hub.StreamElem{Delta: &fullText}
	})
	resp, err := sp.ChatStream(ctx, messages, toolDefs, settings.Model, nil, func(delta string) {
		notifier.Append(delta)
	})
	notifier.Flush()
	return resp, err
}

func executeToolCall(ctx context.Context, settings Settings, call providers.ToolCall, handoffs map[string]string, out chan<- hub.StreamElem) string {
	if settings.AllowHandoff && call.Name == handoffToolName {
		agentName, _ := call.Arguments["agent_name"].(string)
		query, _ := call.Arguments["query"].(string)
		if agentName == "" || query == "" {
			return "handoff requires agent_name and query"
		}
		handoffs[agentName] = query
		return fmt.Sprintf("queued handoff to %q", agentName)
	}

	if settings.Tools == nil {
		return fmt.Sprintf("no tools available to call %q", call.Name)
	}

	if settings.Tools.RequiresPermission(call.Name) {
		req := hub.NewPermissionRequest(call.Name, nil, call.Arguments)
		out <- hub.StreamElem{Permission: req}
		if level := req.Response(); level == hub.PermissionDeny {
			return fmt.Sprintf("permission denied for tool %q", call.Name)
		}
	}

	result := settings.Tools.Execute(ctx, call.Name, call.Arguments)
	if result.Err != nil {
		logger.WarnCF("agent", "tool execution failed", map[string]interface{}{"tool": call.Name, "error": result.Err.Error()})
	}
	return result.ForLLM
}

func finishWithError(ctx context.Context, agentName string, settings Settings, request hub.AgentRequest, messages []providers.Message, out chan<- hub.StreamElem, err error) []providers.Message {
	logger.ErrorCF("agent", "agent run failed", map[string]interface{}{"agent": agentName, "error": err.Error()})
	out <- hub.StreamElem{Response: &hub.AgentResponse{Text: fmt.Sprintf("agent %q failed: %v", agentName, err), Final: true}}
	return messages
}

func historyHasSystem(history []providers.Message) bool {
	for _, m := range history {
		if m.Role == "system" {
			return true
		}
	}
	return false
}

func nonEmpty(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}

// encodeHistory/decodeHistory round-trip the opaque agent history through
// GetState/SetState's `any` shape (spec §3 "agents" shape: opaque history).
func encodeHistory(history []providers.Message) (any, error) {
	data, err := json.Marshal(history)
	if err != nil {
		return nil, err
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeHistory(raw any) ([]providers.Message, error) {
	if history, ok := raw.([]providers.Message); ok {
		return history, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var history []providers.Message
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}
