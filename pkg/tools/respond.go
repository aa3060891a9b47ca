package tools

import (
	"context"
	"fmt"
)

// RespondCallback delivers text to receiver as an immediate Message from
// the calling agent, independent of the agent's own final AgentResponse. Adapted
// from picoclaw's channel-addressed MessageTool: the hub addresses
// recipients by session participant name, not by external channel/chat id.
type RespondCallback func(receiver, text string) error

// RespondTool lets a running agent address a *different* participant than
// its invoking sender mid-run — used by specialist hand-back flows, where
// an agent wants to loop in a third party before it finishes its own turn
// (spec §4.1b).
type RespondTool struct {
	send      RespondCallback
	sentCount int
}

func NewRespondTool() *RespondTool {
	return &RespondTool{}
}

func (t *RespondTool) Name() string {
	return "respond"
}

func (t *RespondTool) Description() string {
	return "Send a message to a specific session participant (a user or another agent) without waiting for your own turn to end. Use this to loop someone in mid-task."
}

func (t *RespondTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"receiver": map[string]interface{}{
				"type":        "string",
				"description": "Name of the user or agent to address",
			},
			"text": map[string]interface{}{
				"type":        "string",
				"description": "The message content to send",
			},
		},
		"required": []string{"receiver", "text"},
	}
}

// SetCallback wires the function RespondTool uses to deliver messages and
// resets SentCount. It must be called before Execute is reachable;
// pkg/session calls it once, when it loads the agent.
func (t *RespondTool) SetCallback(send RespondCallback) {
	t.send = send
	t.sentCount = 0
}

// SentCount reports how many messages were sent since the last
// SetCallback.
func (t *RespondTool) SentCount() int {
	return t.sentCount
}

func (t *RespondTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	receiver, _ := args["receiver"].(string)
	text, _ := args["text"].(string)
	if receiver == "" || text == "" {
		return ErrorResult("receiver and text are required")
	}
	if t.send == nil {
		return ErrorResult("respond tool not configured for this request")
	}

	if err := t.send(receiver, text); err != nil {
		return &ToolResult{ForLLM: fmt.Sprintf("sending to %s: %v", receiver, err), IsError: true, Err: err}
	}

	t.sentCount++
	return SilentResult(fmt.Sprintf("Message sent to %s.", receiver))
}
