package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/hybridchat/hub/pkg/session"
)

func newTestManager(t *testing.T) *session.Manager {
	t.Helper()
	return session.NewManager(context.Background(), t.TempDir(), session.Dependencies{})
}

func TestOnMessageCreateIgnoresSelf(t *testing.T) {
	manager := newTestManager(t)
	g := &Gateway{manager: manager, botID: "bot-1"}

	g.onMessageCreate(context.Background(), &discordgo.MessageCreate{Message: &discordgo.Message{
		Author:    &discordgo.User{ID: "bot-1", Username: "helper-bot"},
		ChannelID: "chan-1",
		Content:   "hello from myself",
		ID:        "m-1",
	}})

	if _, ok := manager.Get("chan-1"); ok {
		t.Errorf("a message from the bot itself should never create a session")
	}
}

func TestOnMessageCreateStripsMentionAndDispatches(t *testing.T) {
	manager := newTestManager(t)
	g := &Gateway{manager: manager, botID: "bot-1"}

	g.onMessageCreate(context.Background(), &discordgo.MessageCreate{Message: &discordgo.Message{
		Author:    &discordgo.User{ID: "u-1", Username: "alice"},
		ChannelID: "chan-2",
		Content:   "<@bot-1> are you there?",
		Mentions:  []*discordgo.User{{ID: "bot-1"}},
		ID:        "m-2",
	}})

	sess, ok := manager.Get("chan-2")
	if !ok {
		t.Fatalf("expected a session to be created for chan-2")
	}
	msgs := sess.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Messages() length = %d, want 1", len(msgs))
	}
	if msgs[0].Text != "are you there?" {
		t.Errorf("Text = %q, want the bot mention stripped", msgs[0].Text)
	}
}
