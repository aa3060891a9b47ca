package tools

import (
	"context"
	"testing"
)

func TestToolRegistryGetAndExecute(t *testing.T) {
	r := NewToolRegistry()
	r.Register(NewThinkTool())

	tool, ok := r.Get("think")
	if !ok {
		t.Fatalf("expected think tool to be registered")
	}
	if tool.Name() != "think" {
		t.Errorf("Name() = %q, want %q", tool.Name(), "think")
	}

	result := r.Execute(context.Background(), "think", map[string]interface{}{"thought": "hmm"})
	if result.IsError {
		t.Errorf("unexpected error result: %+v", result)
	}
	if !result.Silent {
		t.Errorf("think tool result should be silent")
	}
}

func TestToolRegistryExecuteUnknown(t *testing.T) {
	r := NewToolRegistry()
	result := r.Execute(context.Background(), "nonexistent", nil)
	if !result.IsError {
		t.Errorf("expected an error result for an unregistered tool")
	}
}

func TestToolRegistryAll(t *testing.T) {
	r := NewToolRegistry()
	r.Register(NewThinkTool())
	r.Register(NewRespondTool())

	all := r.All()
	if len(all) != 2 {
		t.Errorf("All() length = %d, want 2", len(all))
	}
}

func TestToolRegistryRequiresPermission(t *testing.T) {
	r := NewToolRegistry()
	r.Register(NewThinkTool())

	if r.RequiresPermission("think") {
		t.Errorf("think should never require permission")
	}
	if r.RequiresPermission("nonexistent") {
		t.Errorf("an unregistered tool should report false, not panic")
	}
}

func TestThinkToolExecuteMissingThought(t *testing.T) {
	tool := NewThinkTool()
	result := tool.Execute(context.Background(), map[string]interface{}{})
	if !result.IsError {
		t.Errorf("expected an error result when thought is missing")
	}
}

func TestRespondToolExecuteWithoutCallback(t *testing.T) {
	tool := NewRespondTool()
	result := tool.Execute(context.Background(), map[string]interface{}{"receiver": "alice", "text": "hi"})
	if !result.IsError {
		t.Errorf("expected an error result when no callback is configured")
	}
}

func TestRespondToolExecuteDelivers(t *testing.T) {
	tool := NewRespondTool()
	var gotReceiver, gotText string
	tool.SetCallback(func(receiver, text string) error {
		gotReceiver, gotText = receiver, text
		return nil
	})

	result := tool.Execute(context.Background(), map[string]interface{}{"receiver": "alice", "text": "hello there"})
	if result.IsError {
		t.Errorf("unexpected error result: %+v", result)
	}
	if gotReceiver != "alice" || gotText != "hello there" {
		t.Errorf("callback got (%q, %q), want (%q, %q)", gotReceiver, gotText, "alice", "hello there")
	}
	if tool.SentCount() != 1 {
		t.Errorf("SentCount() = %d, want 1", tool.SentCount())
	}
}

func TestRespondToolExecuteMissingArgs(t *testing.T) {
	tool := NewRespondTool()
	tool.SetCallback(func(receiver, text string) error { return nil })

	result := tool.Execute(context.Background(), map[string]interface{}{"receiver": "alice"})
	if !result.IsError {
		t.Errorf("expected an error result when text is missing")
	}
}

func TestRespondToolSetCallbackResetsSentCount(t *testing.T) {
	tool := NewRespondTool()
	tool.SetCallback(func(receiver, text string) error { return nil })
	tool.Execute(context.Background(), map[string]interface{}{"receiver": "alice", "text": "hi"})

	tool.SetCallback(func(receiver, text string) error { return nil })
	if tool.SentCount() != 0 {
		t.Errorf("SentCount() after SetCallback = %d, want 0", tool.SentCount())
	}
}
