package agent

import (
	"context"
	"testing"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/providers"
	"github.com/hybridchat/hub/pkg/tools"
)

type stubProvider struct{}

func (stubProvider) Chat(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition, model string, options map[string]interface{}) (*providers.LLMResponse, error) {
	return &providers.LLMResponse{Content: "stub response"}, nil
}

func (stubProvider) GetDefaultModel() string { return "stub-model" }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	path := t.TempDir() + "/agents.json"
	symbols := map[string]ToolFactory{
		"tools.think": func() tools.Tool { return tools.NewThinkTool() },
	}
	llmProviders := map[string]providers.LLMProvider{"stub": stubProvider{}}
	return NewRegistry(path, symbols, llmProviders, nil)
}

func TestRegistryAddAndCreateAgent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	rec := Record{
		Description: "a test agent",
		Provider:    "stub",
		Model:       "stub-model",
		ToolRefs:    []ToolRef{{Package: "tools", Symbol: "think"}},
	}
	if err := r.AddConfig("helper", rec); err != nil {
		t.Fatalf("AddConfig: %v", err)
	}

	a, err := r.CreateAgent(ctx, "helper")
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if a.Name() != "helper" {
		t.Errorf("Name() = %q, want %q", a.Name(), "helper")
	}
	if _, ok := a.(*DefaultAgent); !ok {
		t.Errorf("non-handoff record should hydrate a *DefaultAgent, got %T", a)
	}
}

func TestRegistryAddConfigDuplicateRejected(t *testing.T) {
	r := newTestRegistry(t)

	rec := Record{Provider: "stub"}
	if err := r.AddConfig("helper", rec); err != nil {
		t.Fatalf("first AddConfig: %v", err)
	}
	if err := r.AddConfig("helper", rec); err == nil {
		t.Errorf("expected an error re-adding an existing agent name")
	}
}

func TestRegistryCreateAgentUnknown(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.CreateAgent(context.Background(), "nobody"); err != hub.ErrAgentNotRegistered {
		t.Errorf("CreateAgent(unknown) = %v, want hub.ErrAgentNotRegistered", err)
	}
}

func TestRegistryCreateAgentHandoff(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.AddConfig("router", Record{Provider: "stub", Handoff: true}); err != nil {
		t.Fatalf("AddConfig: %v", err)
	}

	a, err := r.CreateAgent(context.Background(), "router")
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if _, ok := a.(*HandoffAgent); !ok {
		t.Errorf("handoff record should hydrate a *HandoffAgent, got %T", a)
	}
}

func TestRegistryCreateAgentUnresolvedToolRefIsDroppedNotFatal(t *testing.T) {
	r := newTestRegistry(t)

	rec := Record{
		Provider: "stub",
		ToolRefs: []ToolRef{{Package: "tools", Symbol: "nonexistent"}},
	}
	if err := r.AddConfig("helper", rec); err != nil {
		t.Fatalf("AddConfig: %v", err)
	}

	if _, err := r.CreateAgent(context.Background(), "helper"); err != nil {
		t.Errorf("CreateAgent with an unresolved tool_ref should not fail: %v", err)
	}
}

func TestRegistryCreateAgentUnknownProvider(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.AddConfig("helper", Record{Provider: "does-not-exist"}); err != nil {
		t.Fatalf("AddConfig: %v", err)
	}

	if _, err := r.CreateAgent(context.Background(), "helper"); err == nil {
		t.Errorf("expected an error hydrating an agent with an unknown provider")
	}
}

func TestRegistryRemoveConfig(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.AddConfig("helper", Record{Provider: "stub"}); err != nil {
		t.Fatalf("AddConfig: %v", err)
	}
	if err := r.RemoveConfig("helper"); err != nil {
		t.Fatalf("RemoveConfig: %v", err)
	}
	if err := r.RemoveConfig("helper"); err == nil {
		t.Errorf("expected an error removing an already-removed agent")
	}
}

func TestRegistryDescriptions(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.AddConfig("helper", Record{Description: "helps with things", Provider: "stub"}); err != nil {
		t.Fatalf("AddConfig: %v", err)
	}

	descs, err := r.Descriptions(context.Background())
	if err != nil {
		t.Fatalf("Descriptions: %v", err)
	}
	if descs["helper"] != "helps with things" {
		t.Errorf("Descriptions()[helper] = %q, want %q", descs["helper"], "helps with things")
	}
}
