package agent

import (
	"context"
	"sync"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/providers"
	"github.com/hybridchat/hub/pkg/tools"
)

// DefaultAgent runs an LLM tool-calling loop with no handoff capability
// (spec §4.1a).
type DefaultAgent struct {
	name     string
	settings Settings

	mu           sync.Mutex
	history      []providers.Message
	requestTools *tools.ToolRegistry
}

// NewDefaultAgent constructs a DefaultAgent. settings.AllowHandoff is
// forced false regardless of its input value.
func NewDefaultAgent(name string, settings Settings) *DefaultAgent {
	settings.AllowHandoff = false
	return &DefaultAgent{name: name, settings: settings}
}

func (a *DefaultAgent) Name() string { return a.name }

// Tools exposes the agent's base tool registry so a caller that hydrates
// agents (pkg/session's loadAgent) can reach into it and wire
// request-independent callbacks, e.g. RespondTool.SetCallback.
func (a *DefaultAgent) Tools() *tools.ToolRegistry { return a.settings.Tools }

func (a *DefaultAgent) SessionScope(ctx context.Context) (func(), error) {
	return nil, nil
}

func (a *DefaultAgent) RequestScope(ctx context.Context, configValues map[string]string) (func(), error) {
	combined, closer, err := startMCPScope(a.settings, configValues)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.requestTools = combined
	a.mu.Unlock()
	return closer, nil
}

func (a *DefaultAgent) Run(ctx context.Context, request hub.AgentRequest, updates []hub.Message, threads []hub.Thread) <-chan hub.StreamElem {
	out := make(chan hub.StreamElem, 4)

	a.mu.Lock()
	history := append([]providers.Message(nil), a.history...)
	settings := a.settings
	if a.requestTools != nil {
		settings.Tools = a.requestTools
	}
	a.mu.Unlock()

	go func() {
		defer close(out)
		newHistory := runLoop(ctx, a.name, settings, request, updates, threads, history, out)
		a.mu.Lock()
		a.history = newHistory
		a.mu.Unlock()
	}()

	return out
}

func (a *DefaultAgent) GetState() (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return encodeHistory(a.history)
}

func (a *DefaultAgent) SetState(state any) error {
	history, err := decodeHistory(state)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.history = history
	a.mu.Unlock()
	return nil
}
