// Package gateway holds the shared inbound-dispatch helper every concrete
// transport adapter (console, discord, telegram, slack, lark, dingtalk, qq)
// drives against a session.Manager, plus per-transport subpackages
// implementing hub.Gateway for outbound delivery.
package gateway

import (
	"context"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/session"
)

// Dispatch routes one inbound platform message into the hub: it loads or
// creates the session named sessionID, then either Invokes the leading
// `@name`/`<@id>` mention (spec §6) as an addressed request, or otherwise
// Updates the session log for the selector to consider. id, if non-empty,
// becomes the message's dedup id (spec §3 `Session.Contains`).
func Dispatch(ctx context.Context, manager *session.Manager, gw hub.Gateway, factory session.AgentFactory, sessionID, sender, text, id string) {
	sess := loadOrCreate(ctx, manager, gw, factory, sessionID)

	var msgID *string
	if id != "" {
		msgID = &id
	}

	mention, rest := hub.ExtractInitialMention(text)
	if mention != "" {
		sess.Invoke(ctx, hub.AgentRequest{Query: rest, Sender: sender, ID: msgID}, mention)
		return
	}

	sess.Update(ctx, hub.Message{Sender: sender, Text: text, ID: msgID})
}

func loadOrCreate(ctx context.Context, manager *session.Manager, gw hub.Gateway, factory session.AgentFactory, sessionID string) *session.Session {
	if sess, ok := manager.Get(sessionID); ok {
		return sess
	}

	sess, err := manager.LoadSession(ctx, sessionID, factory)
	if err != nil || sess == nil {
		sess = manager.CreateSession(sessionID, factory)
	}
	sess.SetGateway(gw)
	return sess
}
