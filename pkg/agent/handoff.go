package agent

import (
	"context"
	"sync"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/providers"
	"github.com/hybridchat/hub/pkg/tools"
)

// HandoffAgent is a DefaultAgent that may additionally emit a non-empty
// AgentResponse.Handoffs, via a reserved `handoff` tool call the model can
// invoke one or more times per turn (spec §4.1a).
type HandoffAgent struct {
	name     string
	settings Settings

	mu           sync.Mutex
	history      []providers.Message
	requestTools *tools.ToolRegistry
}

// NewHandoffAgent constructs a HandoffAgent. settings.AllowHandoff is
// forced true regardless of its input value.
func NewHandoffAgent(name string, settings Settings) *HandoffAgent {
	settings.AllowHandoff = true
	return &HandoffAgent{name: name, settings: settings}
}

func (a *HandoffAgent) Name() string { return a.name }

// Tools exposes the agent's base tool registry so a caller that hydrates
// agents (pkg/session's loadAgent) can reach into it and wire
// request-independent callbacks, e.g. RespondTool.SetCallback.
func (a *HandoffAgent) Tools() *tools.ToolRegistry { return a.settings.Tools }

func (a *HandoffAgent) SessionScope(ctx context.Context) (func(), error) {
	return nil, nil
}

func (a *HandoffAgent) RequestScope(ctx context.Context, configValues map[string]string) (func(), error) {
	combined, closer, err := startMCPScope(a.settings, configValues)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.requestTools = combined
	a.mu.Unlock()
	return closer, nil
}

func (a *HandoffAgent) Run(ctx context.Context, request hub.AgentRequest, updates []hub.Message, threads []hub.Thread) <-chan hub.StreamElem {
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

func (a *HandoffAgent) GetState() (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return encodeHistory(a.history)
}

func (a *HandoffAgent) SetState(state any) error {
	history, err := decodeHistory(state)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.history = history
	a.mu.Unlock()
	return nil
}
