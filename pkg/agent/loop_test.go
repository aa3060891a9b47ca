package agent

import (
	"context"
	"testing"
	"time"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/providers"
	"github.com/hybridchat/hub/pkg/tools"
)

// scriptedProvider returns one queued response per Chat call, recording the
// messages it was given each time.
type scriptedProvider struct {
	responses []*providers.LLMResponse
	calls     [][]providers.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition, model string, options map[string]interface{}) (*providers.LLMResponse, error) {
	p.calls = append(p.calls, messages)
	if len(p.calls) > len(p.responses) {
		return &providers.LLMResponse{Content: "out of script"}, nil
	}
	return p.responses[len(p.calls)-1], nil
}

func (p *scriptedProvider) GetDefaultModel() string { return "scripted-model" }

func drain(t *testing.T, out <-chan hub.StreamElem) []hub.StreamElem {
	t.Helper()
	var elems []hub.StreamElem
	for {
		select {
		case elem, ok := <-out:
			if !ok {
				return elems
			}
			elems = append(elems, elem)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out draining agent run stream")
		}
	}
}

func TestRunLoopFinishesWithoutToolCalls(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{Content: "hello there"},
	}}
	a := NewDefaultAgent("helper", Settings{Provider: provider, Model: "scripted-model"})

	out := a.Run(context.Background(), hub.AgentRequest{Sender: "alice", Query: "hi"}, nil, nil)
	elems := drain(t, out)

	if len(elems) != 1 || elems[0].Response == nil {
		t.Fatalf("expected exactly one response elem, got %+v", elems)
	}
	if elems[0].Response.Text != "hello there" {
		t.Errorf("Text = %q, want %q", elems[0].Response.Text, "hello there")
	}
	if !elems[0].Response.Final {
		t.Errorf("expected the response to be Final")
	}
}

func TestRunLoopExecutesToolThenFinishes(t *testing.T) {
	registry := tools.NewToolRegistry()
	registry.Register(tools.NewThinkTool())

	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{ToolCalls: []providers.ToolCall{{ID: "call-1", Name: "think", Arguments: map[string]interface{}{"thought": "pondering"}}}},
		{Content: "done thinking"},
	}}

	a := NewDefaultAgent("helper", Settings{Provider: provider, Model: "scripted-model", Tools: registry})

	out := a.Run(context.Background(), hub.AgentRequest{Sender: "alice", Query: "think it over"}, nil, nil)
	elems := drain(t, out)

	if len(elems) != 1 || elems[0].Response == nil {
		t.Fatalf("expected exactly one terminal response elem, got %+v", elems)
	}
	if elems[0].Response.Text != "done thinking" {
		t.Errorf("Text = %q, want %q", elems[0].Response.Text, "done thinking")
	}
	if len(provider.calls) != 2 {
		t.Fatalf("provider.calls = %d, want 2 (one before and one after the tool call)", len(provider.calls))
	}

	secondCallMessages := provider.calls[1]
	var sawToolResult bool
	for _, m := range secondCallMessages {
		if m.Role == "tool" && m.ToolCallID == "call-1" {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Errorf("expected the second Chat call to include the tool result message")
	}
}

func TestRunLoopGivesUpAfterMaxIterations(t *testing.T) {
	registry := tools.NewToolRegistry()
	registry.Register(tools.NewThinkTool())

	// Every response requests another tool call, so the loop never reaches
	// a final answer on its own.
	var responses []*providers.LLMResponse
	for i := 0; i < 20; i++ {
		responses = append(responses, &providers.LLMResponse{
			ToolCalls: []providers.ToolCall{{ID: "call", Name: "think", Arguments: map[string]interface{}{"thought": "again"}}},
		})
	}
	provider := &scriptedProvider{responses: responses}

	a := NewDefaultAgent("helper", Settings{Provider: provider, Model: "scripted-model", Tools: registry, MaxIterations: 2})

	out := a.Run(context.Background(), hub.AgentRequest{Sender: "alice", Query: "loop forever"}, nil, nil)
	elems := drain(t, out)

	if len(elems) != 1 || elems[0].Response == nil {
		t.Fatalf("expected exactly one terminal response elem, got %+v", elems)
	}
	if !elems[0].Response.Final {
		t.Errorf("expected the give-up response to be Final")
	}
	if len(provider.calls) != 2 {
		t.Errorf("provider.calls = %d, want 2 (bounded by MaxIterations)", len(provider.calls))
	}
}

func TestRunLoopRequestsPermissionForGatedTool(t *testing.T) {
	registry := tools.NewToolRegistry()
	registry.Register(&permissionedEchoTool{})

	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{ToolCalls: []providers.ToolCall{{ID: "call-1", Name: "gated", Arguments: map[string]interface{}{}}}},
		{Content: "finished after permission"},
	}}

	a := NewDefaultAgent("helper", Settings{Provider: provider, Model: "scripted-model", Tools: registry})

	out := a.Run(context.Background(), hub.AgentRequest{Sender: "alice", Query: "do the gated thing"}, nil, nil)

	var permReq *hub.PermissionRequest
	var elems []hub.StreamElem
	for {
		select {
		case elem, ok := <-out:
			if !ok {
				goto done
			}
			elems = append(elems, elem)
			if elem.Permission != nil {
				permReq = elem.Permission
				permReq.Respond(hub.PermissionAlways)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for the permission request")
		}
	}
done:
	if permReq == nil {
		t.Fatalf("expected a PermissionRequest elem for the gated tool")
	}

	var finalText string
	for _, e := range elems {
		if e.Response != nil {
			finalText = e.Response.Text
		}
	}
	if finalText != "finished after permission" {
		t.Errorf("final response text = %q, want %q", finalText, "finished after permission")
	}
}

type permissionedEchoTool struct{}

func (permissionedEchoTool) Name() string                        { return "gated" }
func (permissionedEchoTool) Description() string                 { return "a tool that requires permission" }
func (permissionedEchoTool) Parameters() map[string]interface{}  { return map[string]interface{}{"type": "object"} }
func (permissionedEchoTool) RequiresPermission() bool             { return true }

func (permissionedEchoTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	return tools.SilentResult("done")
}

// streamingScriptedProvider implements providers.StreamingProvider,
// pushing every queued delta through onContent before returning its final
// response.
type streamingScriptedProvider struct {
	deltas   []string
	response *providers.LLMResponse
}

func (p *streamingScriptedProvider) Chat(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition, model string, options map[string]interface{}) (*providers.LLMResponse, error) {
	return p.response, nil
}

func (p *streamingScriptedProvider) GetDefaultModel() string { return "streaming-scripted-model" }

func (p *streamingScriptedProvider) ChatStream(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition, model string, options map[string]interface{}, onContent providers.StreamCallback) (*providers.LLMResponse, error) {
	for _, d := range p.deltas {
		onContent(d)
	}
	return p.response, nil
}

func TestRunLoopStreamsDeltasForStreamingProvider(t *testing.T) {
	provider := &streamingScriptedProvider{
		deltas:   []string{"hello", " world"},
		response: &providers.LLMResponse{Content: "hello world"},
	}
	a := NewDefaultAgent("helper", Settings{Provider: provider, Model: "streaming-scripted-model"})

	out := a.Run(context.Background(), hub.AgentRequest{Sender: "alice", Query: "hi"}, nil, nil)
	elems := drain(t, out)

	var deltas []string
	var final *hub.AgentResponse
	for _, e := range elems {
		if e.Delta != nil {
			deltas = append(deltas, *e.Delta)
		}
		if e.Response != nil {
			final = e.Response
		}
	}

	if len(deltas) == 0 {
		t.Fatalf("expected at least one Delta elem from a StreamingProvider, got %+v", elems)
	}
	if last := deltas[len(deltas)-1]; last != "hello world" {
		t.Errorf("last delta = %q, want the fully accumulated text %q", last, "hello world")
	}
	if final == nil || final.Text != "hello world" || !final.Final {
		t.Fatalf("expected a final AgentResponse with the full text, got %+v", final)
	}
}

func TestGetStateSetStateRoundTripsHistory(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{{Content: "ack"}}}
	a := NewDefaultAgent("helper", Settings{Provider: provider, Model: "scripted-model"})

	drain(t, a.Run(context.Background(), hub.AgentRequest{Sender: "alice", Query: "hi"}, nil, nil))

	state, err := a.GetState()
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}

	restored := NewDefaultAgent("helper", Settings{Provider: provider, Model: "scripted-model"})
	if err := restored.SetState(state); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	restoredState, err := restored.GetState()
	if err != nil {
		t.Fatalf("GetState after SetState: %v", err)
	}
	if len(restoredState.([]interface{})) != len(state.([]interface{})) {
		t.Errorf("restored history length mismatch: got %v, want %v", restoredState, state)
	}
}
