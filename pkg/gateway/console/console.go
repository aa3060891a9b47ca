// Package console implements the in-process terminal gateway: a readline
// loop that feeds typed lines into one fixed session and prints agent
// output back out, grounded on picoclaw's interactive-terminal surface
// (same chzyer/readline dependency) and on the console Request Channel's
// readline usage in pkg/reqchannel/console.go.
package console

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/hybridchat/hub/pkg/gateway"
	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/session"
)

// Gateway is the terminal transport: one session, one human user, stdin/stdout.
type Gateway struct {
	manager   *session.Manager
	factory   session.AgentFactory
	sessionID string
	user      string

	mu sync.Mutex
	rl *readline.Instance
}

// New creates a console Gateway bound to sessionID, speaking for user.
func New(manager *session.Manager, factory session.AgentFactory, sessionID, user string) (*Gateway, error) {
	rl, err := readline.New(fmt.Sprintf("%s> ", user))
	if err != nil {
		return nil, fmt.Errorf("initializing console: %w", err)
	}
	return &Gateway{manager: manager, factory: factory, sessionID: sessionID, user: user, rl: rl}, nil
}

// Start reads lines from stdin until ctx is cancelled or the user sends
// "/quit", dispatching each non-empty line into the session.
func (g *Gateway) Start(ctx context.Context) error {
	defer g.rl.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := g.rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}

		gateway.Dispatch(ctx, g.manager, g, g.factory, g.sessionID, g.user, line, uuid.NewString())
	}
}

func (g *Gateway) HandleSelectorActivation(ctx context.Context, messageID, sessionID string) {
	g.print("...")
}

func (g *Gateway) HandleAgentActivation(ctx context.Context, messageID, sessionID string) {
	g.print("...")
}

func (g *Gateway) HandleAgentResponse(ctx context.Context, response hub.AgentResponse, sender, receiver, sessionID string) {
	if response.Text == "" {
		return
	}
	g.print(fmt.Sprintf("%s: %s", sender, response.Text))
}

func (g *Gateway) print(line string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fmt.Fprintln(g.rl.Stdout(), line)
	logger.DebugCF("gateway.console", "printed line", map[string]interface{}{"line": line})
}
