// Package discord implements hub.Gateway over discordgo, grounded on
// alfred-ai's internal/adapter/channel/discord.go (handler registration,
// mention stripping, self-message filtering).
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/hybridchat/hub/pkg/gateway"
	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/session"
)

// Gateway bridges one Discord bot connection into the hub. Each Discord
// channel id is treated as its own session id (spec §1 "channel = session").
type Gateway struct {
	token   string
	session *discordgo.Session
	botID   string

	manager *session.Manager
	factory session.AgentFactory
}

// New creates a Discord Gateway. Call Start to connect.
func New(manager *session.Manager, factory session.AgentFactory, botToken string) *Gateway {
	return &Gateway{manager: manager, factory: factory, token: botToken}
}

func (g *Gateway) Start(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + g.token)
	if err != nil {
		return fmt.Errorf("creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages

	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		g.onMessageCreate(ctx, m)
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	g.session = dg
	g.botID = dg.State.User.ID
	logger.InfoCF("gateway.discord", "connected", map[string]interface{}{"user_id": g.botID})
	return nil
}

func (g *Gateway) Stop() error {
	if g.session == nil {
		return nil
	}
	return g.session.Close()
}

func (g *Gateway) onMessageCreate(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author.ID == g.botID {
		return
	}

	content := m.Content
	for _, u := range m.Mentions {
		if u.ID == g.botID {
			content = strings.TrimSpace(strings.NewReplacer(
				"<@"+g.botID+">", "",
				"<@!"+g.botID+">", "",
			).Replace(content))
			break
		}
	}

	gateway.Dispatch(ctx, g.manager, g, g.factory, m.ChannelID, m.Author.Username, content, m.ID)
}

func (g *Gateway) HandleSelectorActivation(ctx context.Context, messageID, sessionID string) {
	_ = g.session.ChannelTyping(sessionID)
}

func (g *Gateway) HandleAgentActivation(ctx context.Context, messageID, sessionID string) {
	_ = g.session.ChannelTyping(sessionID)
}

func (g *Gateway) HandleAgentResponse(ctx context.Context, response hub.AgentResponse, sender, receiver, sessionID string) {
	if response.Text == "" {
		return
	}
	if _, err := g.session.ChannelMessageSend(sessionID, fmt.Sprintf("**%s:** %s", sender, response.Text)); err != nil {
		logger.WarnCF("gateway.discord", "send failed", map[string]interface{}{"error": err.Error()})
	}
}
