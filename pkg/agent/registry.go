package agent

import (
	"context"
	"fmt"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/mcp"
	"github.com/hybridchat/hub/pkg/metrics"
	"github.com/hybridchat/hub/pkg/providers"
	"github.com/hybridchat/hub/pkg/state"
	"github.com/hybridchat/hub/pkg/tools"
)

// ToolRef identifies a tool by the symbol it was registered under in a
// Registry's symbol table (spec §4.1d "a missing symbol is logged and
// dropped"; Go has no runtime dynamic import, unlike the original source's
// importlib-based rebind).
type ToolRef struct {
	Package string `json:"package"`
	Symbol  string `json:"symbol"`
}

// Record is one agent's persisted configuration (spec §4.1d).
type Record struct {
	Description  string             `json:"description"`
	Handoff      bool               `json:"handoff"`
	Provider     string             `json:"provider"` // "claude" | "openai" | "fallback"
	Model        string             `json:"model"`
	Instructions string             `json:"instructions"`
	ToolRefs     []ToolRef          `json:"tool_refs"`
	MCPServers   []mcp.ServerConfig `json:"mcp_servers"`
}

type document struct {
	Agents map[string]Record `json:"agents"`
}

// ToolFactory builds a fresh tools.Tool instance for one agent. The symbol
// table maps "package.symbol" to a factory (cmd/hubd registers the
// built-ins at startup).
type ToolFactory func() tools.Tool

// Registry is a flat-JSON-file-backed hub.AgentRegistry (spec §4.1d),
// grounded on the original source's
// hygroup/agent/default/registry.py (TinyDB-backed there; this repo's
// file-persistence idiom uses one atomic JSON document instead, per
// SPEC_FULL.md §4.1d).
type Registry struct {
	path      string
	symbols   map[string]ToolFactory
	providers map[string]providers.LLMProvider
	metrics   *metrics.Tracker
}

// NewRegistry creates a Registry persisted at path, resolving tool_refs
// against symbols and LLMProvider names against llmProviders. tracker may
// be nil, disabling token-usage recording for every hydrated agent.
func NewRegistry(path string, symbols map[string]ToolFactory, llmProviders map[string]providers.LLMProvider, tracker *metrics.Tracker) *Registry {
	return &Registry{path: path, symbols: symbols, providers: llmProviders, metrics: tracker}
}

func (r *Registry) load() (document, error) {
	var doc document
	if !state.Exists(r.path) {
		return document{Agents: map[string]Record{}}, nil
	}
	if err := state.LoadJSON(r.path, &doc); err != nil {
		return document{}, err
	}
	if doc.Agents == nil {
		doc.Agents = map[string]Record{}
	}
	return doc, nil
}

// AddConfig persists a new agent record under name. Returns an error if an
// agent with that name already exists (spec §4.1d, mirroring
// registry.py's add_config).
func (r *Registry) AddConfig(name string, rec Record) error {
	doc, err := r.load()
	if err != nil {
		return err
	}
	if _, exists := doc.Agents[name]; exists {
		return fmt.Errorf("agent %q already exists", name)
	}
	doc.Agents[name] = rec
	return state.SaveAtomic(r.path, doc)
}

// RemoveConfig deletes an agent's persisted record.
func (r *Registry) RemoveConfig(name string) error {
	doc, err := r.load()
	if err != nil {
		return err
	}
	if _, exists := doc.Agents[name]; !exists {
		return fmt.Errorf("no agent registered with name %q", name)
	}
	delete(doc.Agents, name)
	return state.SaveAtomic(r.path, doc)
}

// CreateAgent hydrates a hub.Agent from its persisted Record (spec §4.1d).
func (r *Registry) CreateAgent(ctx context.Context, name string) (hub.Agent, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	rec, ok := doc.Agents[name]
	if !ok {
		return nil, hub.ErrAgentNotRegistered
	}

	provider, ok := r.providers[rec.Provider]
	if !ok {
		return nil, fmt.Errorf("agent %q references unknown provider %q", name, rec.Provider)
	}

	toolRegistry := tools.NewToolRegistry()
	for _, ref := range rec.ToolRefs {
		factory, ok := r.symbols[ref.Package+"."+ref.Symbol]
		if !ok {
			logger.WarnCF("agent", "dropping unresolved tool symbol", map[string]interface{}{
				"agent": name, "package": ref.Package, "symbol": ref.Symbol,
			})
			continue
		}
		toolRegistry.Register(factory())
	}

	settings := Settings{
		Provider:     provider,
		Model:        rec.Model,
		Instructions: rec.Instructions,
		Tools:        toolRegistry,
		MCPServers:   rec.MCPServers,
		Metrics:      r.metrics,
	}

	if rec.Handoff {
		return NewHandoffAgent(name, settings), nil
	}
	return NewDefaultAgent(name, settings), nil
}

// RegisteredNames returns the name of every persisted agent record.
func (r *Registry) RegisteredNames(ctx context.Context) (map[string]struct{}, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(doc.Agents))
	for name := range doc.Agents {
		names[name] = struct{}{}
	}
	return names, nil
}

// Descriptions returns every registered agent's name-to-description
// mapping (spec §4.1d, mirroring registry.py's get_descriptions — used by
// the Agent Selector to build its routing catalog).
func (r *Registry) Descriptions(ctx context.Context) (map[string]string, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(doc.Agents))
	for name, rec := range doc.Agents {
		out[name] = rec.Description
	}
	return out, nil
}
