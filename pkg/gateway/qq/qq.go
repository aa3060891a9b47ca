// Package qq implements hub.Gateway over tencent-connect/botgo's WebSocket
// gateway, restricted to at-message text delivery per spec §1 (voice/audio
// subpackages are out of scope).
package qq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tencent-connect/botgo"
	"github.com/tencent-connect/botgo/dto"
	"github.com/tencent-connect/botgo/event"
	"github.com/tencent-connect/botgo/openapi"
	"github.com/tencent-connect/botgo/token"
	"github.com/tencent-connect/botgo/websocket"

	"github.com/hybridchat/hub/pkg/gateway"
	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/session"
)

// Gateway bridges one QQ channel bot into the hub via botgo's WebSocket
// session manager. Each QQ channel id is treated as its own session id.
type Gateway struct {
	api openapi.OpenAPI
	tok *token.Token

	manager *session.Manager
	factory session.AgentFactory
}

// New creates a QQ Gateway. Call Start to connect.
func New(manager *session.Manager, factory session.AgentFactory, appID, botToken string) *Gateway {
	tok := token.New(appID, botToken)
	return &Gateway{
		api:     botgo.NewOpenAPI(appID, botToken).WithTimeout(5 * time.Second),
		tok:     tok,
		manager: manager,
		factory: factory,
	}
}

func (g *Gateway) Start(ctx context.Context) error {
	wsInfo, err := g.api.WS(ctx, nil, "")
	if err != nil {
		return fmt.Errorf("fetching qq websocket info: %w", err)
	}

	intent := websocket.RegisterHandlers(g.atMessageHandler(ctx))
	if err := botgo.NewSessionManager().Start(wsInfo, g.tok, &intent); err != nil {
		return fmt.Errorf("starting qq session manager: %w", err)
	}

	logger.InfoCF("gateway.qq", "connected", nil)
	return nil
}

func (g *Gateway) atMessageHandler(ctx context.Context) event.ATMessageEventHandler {
	return func(payload *dto.WSPayload, data *dto.WSATMessageData) error {
		content := strings.TrimSpace(data.Content)
		if content == "" {
			return nil
		}
		gateway.Dispatch(ctx, g.manager, g, g.factory, data.ChannelID, data.Author.Username, content, data.ID)
		return nil
	}
}

func (g *Gateway) HandleSelectorActivation(ctx context.Context, messageID, sessionID string) {}

func (g *Gateway) HandleAgentActivation(ctx context.Context, messageID, sessionID string) {}

func (g *Gateway) HandleAgentResponse(ctx context.Context, response hub.AgentResponse, sender, receiver, sessionID string) {
	if response.Text == "" {
		return
	}
	_, err := g.api.PostMessage(ctx, sessionID, &dto.MessageToCreate{
		Content: fmt.Sprintf("%s: %s", sender, response.Text),
		MsgID:   messageIDHint,
	})
	if err != nil {
		logger.WarnCF("gateway.qq", "send failed", map[string]interface{}{"error": err.Error()})
	}
}

// messageIDHint is left blank: botgo only requires MsgID to reply within the
// passive-reply window of a specific inbound message, which this gateway's
// asynchronous agent responses generally fall outside of.
const messageIDHint = ""
