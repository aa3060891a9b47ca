package reqchannel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
)

// ConsoleChannel is the in-process console Request Channel: it blocks on
// console input via readline, and supports a default auto-response mode
// (e.g. always grant-once) to drive batch/scripted scenarios without a
// human at the keyboard — grounded on the "in-process console handler"
// described in spec §4.7 and on picoclaw's interactive-terminal surface
// (which pulls in the same chzyer/readline dependency).
type ConsoleChannel struct {
	mu    sync.Mutex
	rl    *readline.Instance
	auto  *hub.PermissionLevel // non-nil => auto-respond with this level, no prompt
}

// NewConsoleChannel creates a console channel. If autoGrantOnce is true,
// permission requests are answered with PermissionOnce without prompting —
// used for batch scenarios (spec §4.7).
func NewConsoleChannel(autoGrantOnce bool) (*ConsoleChannel, error) {
	rl, err := readline.New("> ")
	if err != nil {
		return nil, fmt.Errorf("initializing console: %w", err)
	}

	c := &ConsoleChannel{rl: rl}
	if autoGrantOnce {
		level := hub.PermissionOnce
		c.auto = &level
	}
	return c, nil
}

func (c *ConsoleChannel) HandlePermissionRequest(ctx context.Context, req *hub.PermissionRequest, sender, receiver, sessionID string) {
	if c.auto != nil {
		req.Respond(*c.auto)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.rl.Stdout(), "\n[%s -> %s] permission requested for tool %q: deny(0)/once(1)/session(2)/always(3)? ", sender, receiver, req.ToolName)
	line, err := c.rl.Readline()
	if err != nil {
		logger.WarnCF("reqchannel", "console read failed, denying", map[string]interface{}{"error": err.Error()})
		req.Deny()
		return
	}

	level, err := parseLevel(line)
	if err != nil {
		req.Deny()
		return
	}
	req.Respond(level)
}

func (c *ConsoleChannel) HandleFeedbackRequest(ctx context.Context, req *hub.FeedbackRequest, sender, receiver, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.rl.Stdout(), "\n[%s -> %s] %s\n", sender, receiver, req.Question)
	line, err := c.rl.Readline()
	if err != nil {
		req.Respond("")
		return
	}
	req.Respond(line)
}

func (c *ConsoleChannel) HandleConfirmationRequest(ctx context.Context, req *hub.ConfirmationRequest, sender, receiver, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.rl.Stdout(), "\n%s proposes inviting %q to answer with: %q. Confirm? [y/N] ", sender, req.AgentName, req.Query)
	line, err := c.rl.Readline()
	if err != nil {
		req.Respond(hub.ConfirmationResponse{Confirmed: false})
		return
	}

	confirmed := strings.EqualFold(strings.TrimSpace(line), "y") || strings.EqualFold(strings.TrimSpace(line), "yes")
	req.Respond(hub.ConfirmationResponse{Confirmed: confirmed})
}

// Close releases the underlying readline instance.
func (c *ConsoleChannel) Close() error {
	return c.rl.Close()
}

func parseLevel(s string) (hub.PermissionLevel, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 3 {
		return 0, fmt.Errorf("invalid permission level %q", s)
	}
	return hub.PermissionLevel(n), nil
}
