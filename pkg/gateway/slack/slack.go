// Package slack implements hub.Gateway over slack-go/slack's Socket Mode,
// grounded on alfred-ai's internal/adapter/channel/slack.go.
package slack

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/hybridchat/hub/pkg/gateway"
	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/session"
)

// Gateway bridges one Slack workspace app into the hub via Socket Mode.
// Each Slack channel id is treated as its own session id.
type Gateway struct {
	api       *slack.Client
	socketCli *socketmode.Client
	botUserID string
	userNames sync.Map

	manager *session.Manager
	factory session.AgentFactory

	cancel context.CancelFunc
}

// New creates a Slack Gateway. Call Start to connect.
func New(manager *session.Manager, factory session.AgentFactory, botToken, appToken string) *Gateway {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	return &Gateway{
		api:       api,
		socketCli: socketmode.New(api),
		manager:   manager,
		factory:   factory,
	}
}

func (g *Gateway) Start(ctx context.Context) error {
	auth, err := g.api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	g.botUserID = auth.UserID

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	go g.eventLoop(runCtx)
	go func() {
		if err := g.socketCli.Run(); err != nil {
			logger.ErrorCF("gateway.slack", "socket mode run failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	logger.InfoCF("gateway.slack", "connected", map[string]interface{}{"bot_user_id": g.botUserID})
	return nil
}

func (g *Gateway) Stop() error {
	if g.cancel != nil {
		g.cancel()
	}
	return nil
}

func (g *Gateway) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-g.socketCli.Events:
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			g.socketCli.Ack(*evt.Request)

			if ev, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
				g.handleMessage(ctx, ev)
			}
		}
	}
}

func (g *Gateway) resolveUserName(userID string) string {
	if v, ok := g.userNames.Load(userID); ok {
		return v.(string)
	}
	info, err := g.api.GetUserInfo(userID)
	if err != nil {
		return userID
	}
	name := info.RealName
	if name == "" {
		name = info.Name
	}
	g.userNames.Store(userID, name)
	return name
}

func (g *Gateway) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev.User == "" || ev.User == g.botUserID || ev.BotID != "" {
		return
	}

	content := strings.ReplaceAll(ev.Text, "<@"+g.botUserID+">", "")
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}

	id := ev.TimeStamp
	gateway.Dispatch(ctx, g.manager, g, g.factory, ev.Channel, g.resolveUserName(ev.User), content, id)
}

func (g *Gateway) HandleSelectorActivation(ctx context.Context, messageID, sessionID string) {}

func (g *Gateway) HandleAgentActivation(ctx context.Context, messageID, sessionID string) {}

func (g *Gateway) HandleAgentResponse(ctx context.Context, response hub.AgentResponse, sender, receiver, sessionID string) {
	if response.Text == "" {
		return
	}
	if _, _, err := g.api.PostMessage(sessionID, slack.MsgOptionText(fmt.Sprintf("*%s:* %s", sender, response.Text), false)); err != nil {
		logger.WarnCF("gateway.slack", "send failed", map[string]interface{}{"error": err.Error()})
	}
}
