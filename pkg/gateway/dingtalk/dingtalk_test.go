package dingtalk

import (
	"context"
	"testing"

	"github.com/hybridchat/hub/pkg/hub"
)

func TestHandleAgentResponseDropsWithoutCachedWebhook(t *testing.T) {
	g := &Gateway{webhooks: map[string]string{}}

	// No webhook was ever cached for "sess-1" (no inbound message seen yet),
	// so this must return without attempting delivery rather than panic on
	// a nil replier.
	g.HandleAgentResponse(context.Background(), hub.AgentResponse{Text: "hello"}, "helper", "alice", "sess-1")
}

func TestHandleAgentResponseIgnoresEmptyText(t *testing.T) {
	g := &Gateway{webhooks: map[string]string{"sess-1": "https://example.invalid/webhook"}}

	g.HandleAgentResponse(context.Background(), hub.AgentResponse{Text: ""}, "helper", "alice", "sess-1")
}

