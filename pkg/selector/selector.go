// Package selector implements the Agent Selector: an LLM-backed router
// that watches unaddressed messages and proposes an agent+query routing
// decision, grounded on the original source's
// hygroup/agent/select/agent.py (AgentSelector).
package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/providers"
	"github.com/hybridchat/hub/pkg/session"
)

const defaultInstructions = `You silently watch a multi-party conversation between humans and agents.
For every new message, decide whether it should be routed to one of the
registered agents below. If so, call select with the agent's name and a
concise query capturing what it should do; otherwise call select with
both fields empty. Never address a message that already names its
receiver explicitly — you only route genuinely unaddressed messages.`

const selectToolName = "select"

// DescriptionProvider supplies the catalog of agent names and
// descriptions the selector advertises to the model (spec §4.1d).
type DescriptionProvider interface {
	Descriptions(ctx context.Context) (map[string]string, error)
}

// Selector implements session.Selector.
type Selector struct {
	registry     DescriptionProvider
	provider     providers.LLMProvider
	model        string
	instructions string

	mu      sync.Mutex
	history []providers.Message
}

// New creates a Selector that routes via provider/model, consulting
// registry for its agents catalog.
func New(registry DescriptionProvider, provider providers.LLMProvider, model string) *Selector {
	return &Selector{registry: registry, provider: provider, model: model, instructions: defaultInstructions}
}

func selectToolDefinition() providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunction{
			Name:        selectToolName,
			Description: "Route the current message to an agent, or decline to route it.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"agent_name": map[string]interface{}{"type": "string"},
					"query":      map[string]interface{}{"type": "string"},
					"reasoning":  map[string]interface{}{"type": "string"},
				},
			},
		},
	}
}

func formatSelectorMessage(msg hub.Message) string {
	return fmt.Sprintf("<message sender=%q receiver=%q>\n%s\n</message>", msg.Sender, msg.ReceiverOr(), msg.Text)
}

// seed lazily prepends the system instructions and the agents catalog to
// the selector's history on first use, mirroring agent.py's `add`/`run`
// "init" branch.
func (s *Selector) seed(ctx context.Context) error {
	if len(s.history) > 0 {
		return nil
	}

	s.history = append(s.history, providers.Message{Role: "system", Content: s.instructions})

	descriptions, err := s.registry.Descriptions(ctx)
	if err != nil {
		return fmt.Errorf("loading agent descriptions: %w", err)
	}
	s.history = append(s.history, providers.Message{Role: "user", Content: formatCatalog(descriptions)})
	return nil
}

func formatCatalog(descriptions map[string]string) string {
	if len(descriptions) == 0 {
		return "Registered agents: none."
	}
	var b strings.Builder
	b.WriteString("Registered agents:\n")
	for name, desc := range descriptions {
		fmt.Fprintf(&b, "- %s: %s\n", name, desc)
	}
	return b.String()
}

// Add appends msg to the selector's history without running a selection
// (spec §4.1 `select` short-circuit path: sender/receiver is an agent, or
// sender is "system").
func (s *Selector) Add(ctx context.Context, msg hub.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.seed(ctx); err != nil {
		return err
	}
	s.history = append(s.history, providers.Message{Role: "user", Content: formatSelectorMessage(msg)})
	return nil
}

// Run appends msg to the selector's history and asks the model for a
// routing decision.
func (s *Selector) Run(ctx context.Context, msg hub.Message) (session.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.seed(ctx); err != nil {
		return session.Selection{}, err
	}
	s.history = append(s.history, providers.Message{Role: "user", Content: formatSelectorMessage(msg)})

	resp, err := s.provider.Chat(ctx, s.history, []providers.ToolDefinition{selectToolDefinition()}, s.model, map[string]interface{}{"max_tokens": 512})
	if err != nil {
		return session.Selection{}, fmt.Errorf("selector provider call: %w", err)
	}

	s.history = append(s.history, providers.Message{Role: "assistant", Content: resp.Content})

	for _, call := range resp.ToolCalls {
		if call.Name != selectToolName {
			continue
		}
		agentName, _ := call.Arguments["agent_name"].(string)
		query, _ := call.Arguments["query"].(string)
		reasoning, _ := call.Arguments["reasoning"].(string)
		return session.Selection{AgentName: agentName, Query: query, Reasoning: reasoning}, nil
	}

	return session.Selection{}, nil
}

// selectorState is the opaque-bytes shape persisted for a selector (spec
// §9 "opaque selector history").
type selectorState struct {
	History []providers.Message `json:"history"`
}

func (s *Selector) GetState() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(selectorState{History: s.history})
	if err != nil {
		return nil, err
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *Selector) SetState(state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	var decoded selectorState
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	s.mu.Lock()
	s.history = decoded.History
	s.mu.Unlock()
	return nil
}
