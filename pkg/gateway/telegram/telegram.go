// Package telegram implements hub.Gateway over mymmrac/telego, grounded on
// picoclaw's pkg/tools/telegram.go (telego/telegoutil usage conventions).
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/hybridchat/hub/pkg/gateway"
	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/session"
)

// Gateway bridges one Telegram bot into the hub. Each chat id is treated as
// its own session id.
type Gateway struct {
	bot    *telego.Bot
	botID  int64
	cancel context.CancelFunc

	mu        sync.Mutex
	streaming map[string]int // session id -> message id of the in-progress streamed reply

	manager *session.Manager
	factory session.AgentFactory
}

// New creates a Telegram Gateway. Call Start to begin long-polling.
func New(manager *session.Manager, factory session.AgentFactory, botToken string) (*Gateway, error) {
	bot, err := telego.NewBot(botToken)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return &Gateway{bot: bot, streaming: map[string]int{}, manager: manager, factory: factory}, nil
}

func (g *Gateway) Start(ctx context.Context) error {
	me, err := g.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("getting bot identity: %w", err)
	}
	g.botID = me.ID

	pollCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	updates, err := g.bot.UpdatesViaLongPolling(pollCtx, nil)
	if err != nil {
		return fmt.Errorf("starting long polling: %w", err)
	}

	go func() {
		for update := range updates {
			if update.Message != nil {
				g.onMessage(ctx, update.Message)
			}
		}
	}()

	logger.InfoCF("gateway.telegram", "connected", map[string]interface{}{"user_id": g.botID})
	return nil
}

func (g *Gateway) Stop() error {
	if g.cancel != nil {
		g.cancel()
	}
	return nil
}

func (g *Gateway) onMessage(ctx context.Context, m *telego.Message) {
	if m.From != nil && m.From.ID == g.botID {
		return
	}

	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	sessionID := strconv.FormatInt(m.Chat.ID, 10)
	sender := m.From.Username
	if sender == "" {
		sender = m.From.FirstName
	}

	gateway.Dispatch(ctx, g.manager, g, g.factory, sessionID, sender, text, strconv.Itoa(m.MessageID))
}

func (g *Gateway) HandleSelectorActivation(ctx context.Context, messageID, sessionID string) {
	g.sendChatAction(sessionID)
}

func (g *Gateway) HandleAgentActivation(ctx context.Context, messageID, sessionID string) {
	g.sendChatAction(sessionID)
}

func (g *Gateway) sendChatAction(sessionID string) {
	chatID, err := strconv.ParseInt(sessionID, 10, 64)
	if err != nil {
		return
	}
	_ = g.bot.SendChatAction(context.Background(), &telego.SendChatActionParams{
		ChatID: tu.ID(chatID),
		Action: telego.ChatActionTyping,
	})
}

func (g *Gateway) HandleAgentResponse(ctx context.Context, response hub.AgentResponse, sender, receiver, sessionID string) {
	g.mu.Lock()
	delete(g.streaming, sessionID)
	g.mu.Unlock()

	if response.Text == "" {
		return
	}
	chatID, err := strconv.ParseInt(sessionID, 10, 64)
	if err != nil {
		logger.WarnCF("gateway.telegram", "invalid session id", map[string]interface{}{"session_id": sessionID})
		return
	}
	if _, err := g.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), fmt.Sprintf("%s: %s", sender, response.Text))); err != nil {
		logger.WarnCF("gateway.telegram", "send failed", map[string]interface{}{"error": err.Error()})
	}
}

// HandleAgentStreamUpdate edits a single in-progress reply in place as
// text streams in, rather than sending one message per delta: the first
// delta of a turn sends a new message and remembers its id, every
// subsequent delta for the same session edits that message (spec §4.1a
// streaming, grounded on picoclaw's bus.StreamNotifier throttling).
func (g *Gateway) HandleAgentStreamUpdate(ctx context.Context, text, sender, receiver, sessionID string) {
	if text == "" {
		return
	}
	chatID, err := strconv.ParseInt(sessionID, 10, 64)
	if err != nil {
		return
	}

	body := fmt.Sprintf("%s: %s", sender, text)

	g.mu.Lock()
	messageID, inProgress := g.streaming[sessionID]
	g.mu.Unlock()

	if inProgress {
		_, err := g.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
			ChatID:    tu.ID(chatID),
			MessageID: messageID,
			Text:      body,
		})
		if err != nil {
			logger.WarnCF("gateway.telegram", "stream edit failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	sent, err := g.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), body))
	if err != nil {
		logger.WarnCF("gateway.telegram", "stream send failed", map[string]interface{}{"error": err.Error()})
		return
	}
	g.mu.Lock()
	g.streaming[sessionID] = sent.MessageID
	g.mu.Unlock()
}
