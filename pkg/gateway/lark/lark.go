// Package lark implements hub.Gateway over larksuite/oapi-sdk-go/v3's
// long-connection event stream, restricted to plain-text message delivery
// per spec §1 (richer Lark card/attachment formats are out of scope).
package lark

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/hybridchat/hub/pkg/gateway"
	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/session"
)

// Gateway bridges one Lark (Feishu) app into the hub via the long-connection
// event stream. Each chat id is treated as its own session id.
type Gateway struct {
	appID     string
	appSecret string
	client    *lark.Client
	ws        *larkws.Client

	manager *session.Manager
	factory session.AgentFactory
}

// New creates a Lark Gateway. Call Start to connect.
func New(manager *session.Manager, factory session.AgentFactory, appID, appSecret string) *Gateway {
	return &Gateway{
		appID:     appID,
		appSecret: appSecret,
		client:    lark.NewClient(appID, appSecret),
		manager:   manager,
		factory:   factory,
	}
}

type textContent struct {
	Text string `json:"text"`
}

func (g *Gateway) Start(ctx context.Context) error {
	handler := dispatcher.NewEventDispatcher("", "").OnP2MessageReceiveV1(
		func(eventCtx context.Context, evt *larkim.P2MessageReceiveV1) error {
			g.onMessage(ctx, evt)
			return nil
		},
	)
	g.ws = larkws.NewClient(g.appID, g.appSecret, larkws.WithEventHandler(handler))

	go func() {
		if err := g.ws.Start(ctx); err != nil {
			logger.ErrorCF("gateway.lark", "long-connection stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	logger.InfoCF("gateway.lark", "connected", nil)
	return nil
}

func (g *Gateway) onMessage(ctx context.Context, evt *larkim.P2MessageReceiveV1) {
	msg := evt.Event.Message
	sender := evt.Event.Sender

	var content textContent
	if err := json.Unmarshal([]byte(*msg.Content), &content); err != nil || content.Text == "" {
		return
	}

	senderID := ""
	if sender != nil && sender.SenderId != nil && sender.SenderId.OpenId != nil {
		senderID = *sender.SenderId.OpenId
	}

	gateway.Dispatch(ctx, g.manager, g, g.factory, *msg.ChatId, senderID, content.Text, *msg.MessageId)
}

func (g *Gateway) HandleSelectorActivation(ctx context.Context, messageID, sessionID string) {}

func (g *Gateway) HandleAgentActivation(ctx context.Context, messageID, sessionID string) {}

func (g *Gateway) HandleAgentResponse(ctx context.Context, response hub.AgentResponse, sender, receiver, sessionID string) {
	if response.Text == "" {
		return
	}

	body, err := json.Marshal(textContent{Text: fmt.Sprintf("%s: %s", sender, response.Text)})
	if err != nil {
		return
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(sessionID).
			MsgType("text").
			Content(string(body)).
			Build()).
		Build()

	if resp, err := g.client.Im.Message.Create(ctx, req); err != nil || !resp.Success() {
		logger.WarnCF("gateway.lark", "send failed", map[string]interface{}{"error": fmt.Sprint(err)})
	}
}
