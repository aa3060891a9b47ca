// Package dingtalk implements hub.Gateway over
// open-dingtalk/dingtalk-stream-sdk-go's chatbot stream, restricted to
// plain-text message delivery per spec §1.
package dingtalk

import (
	"context"
	"fmt"
	"sync"

	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	dtclient "github.com/open-dingtalk/dingtalk-stream-sdk-go/client"

	"github.com/hybridchat/hub/pkg/gateway"
	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/session"
)

// Gateway bridges one DingTalk chatbot stream into the hub. Each
// conversation id is treated as its own session id. DingTalk chatbot
// replies are only deliverable via the per-message SessionWebhook handed
// out at receive time (no generic "send to conversation" API), so the
// webhook seen for each conversation's most recent inbound message is
// cached and reused for outbound delivery.
type Gateway struct {
	client  *dtclient.StreamClient
	replier *chatbot.ChatbotReplier

	mu       sync.Mutex
	webhooks map[string]string

	manager *session.Manager
	factory session.AgentFactory
}

// New creates a DingTalk Gateway. Call Start to connect.
func New(manager *session.Manager, factory session.AgentFactory, clientID, clientSecret string) *Gateway {
	cli := dtclient.NewStreamClient(dtclient.WithAppCredential(dtclient.NewAppCredentialConfig(clientID, clientSecret)))
	return &Gateway{
		client:   cli,
		replier:  chatbot.NewChatbotReplier(),
		webhooks: map[string]string{},
		manager:  manager,
		factory:  factory,
	}
}

func (g *Gateway) Start(ctx context.Context) error {
	g.client.RegisterChatBotCallbackRouter(func(callbackCtx context.Context, data *chatbot.BotCallbackDataModel) ([]byte, error) {
		g.onMessage(ctx, data)
		return []byte(""), nil
	})

	if err := g.client.Start(ctx); err != nil {
		return fmt.Errorf("starting dingtalk stream client: %w", err)
	}
	logger.InfoCF("gateway.dingtalk", "connected", nil)
	return nil
}

func (g *Gateway) onMessage(ctx context.Context, data *chatbot.BotCallbackDataModel) {
	content := data.Text.Content
	if content == "" {
		return
	}

	g.mu.Lock()
	g.webhooks[data.ConversationId] = data.SessionWebhook
	g.mu.Unlock()

	gateway.Dispatch(ctx, g.manager, g, g.factory, data.ConversationId, data.SenderNick, content, data.MsgId)
}

func (g *Gateway) HandleSelectorActivation(ctx context.Context, messageID, sessionID string) {}

func (g *Gateway) HandleAgentActivation(ctx context.Context, messageID, sessionID string) {}

func (g *Gateway) HandleAgentResponse(ctx context.Context, response hub.AgentResponse, sender, receiver, sessionID string) {
	if response.Text == "" {
		return
	}

	g.mu.Lock()
	webhook, ok := g.webhooks[sessionID]
	g.mu.Unlock()
	if !ok {
		logger.WarnCF("gateway.dingtalk", "dropping response, no session webhook retained", map[string]interface{}{"session_id": sessionID})
		return
	}

	if err := g.replier.ReplyText(ctx, webhook, fmt.Sprintf("%s: %s", sender, response.Text)); err != nil {
		logger.WarnCF("gateway.dingtalk", "send failed", map[string]interface{}{"error": err.Error()})
	}
}
