package telegram

import (
	"context"
	"testing"

	"github.com/mymmrac/telego"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/session"
)

func newTestManager(t *testing.T) *session.Manager {
	t.Helper()
	return session.NewManager(context.Background(), t.TempDir(), session.Dependencies{})
}

func TestOnMessageIgnoresSelf(t *testing.T) {
	manager := newTestManager(t)
	g := &Gateway{manager: manager, botID: 42}

	g.onMessage(context.Background(), &telego.Message{
		From: &telego.User{ID: 42, Username: "helper-bot"},
		Chat: telego.Chat{ID: 100},
		Text: "hello from myself",
	})

	if _, ok := manager.Get("100"); ok {
		t.Errorf("a message from the bot itself should never create a session")
	}
}

func TestOnMessageIgnoresBlankText(t *testing.T) {
	manager := newTestManager(t)
	g := &Gateway{manager: manager, botID: 42}

	g.onMessage(context.Background(), &telego.Message{
		From: &telego.User{ID: 1, Username: "alice"},
		Chat: telego.Chat{ID: 101},
		Text: "   ",
	})

	if _, ok := manager.Get("101"); ok {
		t.Errorf("a blank-text message should not create a session")
	}
}

func TestOnMessageFallsBackToFirstNameWhenNoUsername(t *testing.T) {
	manager := newTestManager(t)
	g := &Gateway{manager: manager, botID: 42}

	g.onMessage(context.Background(), &telego.Message{
		From:      &telego.User{ID: 1, FirstName: "Alice"},
		Chat:      telego.Chat{ID: 102},
		Text:      "hi there",
		MessageID: 7,
	})

	sess, ok := manager.Get("102")
	if !ok {
		t.Fatalf("expected a session to be created for chat 102")
	}
	msgs := sess.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Messages() length = %d, want 1", len(msgs))
	}
	if msgs[0].Sender != "Alice" {
		t.Errorf("Sender = %q, want the FirstName fallback %q", msgs[0].Sender, "Alice")
	}
}

func TestHandleAgentResponseClearsStreamingState(t *testing.T) {
	g := &Gateway{streaming: map[string]int{"102": 55}}

	// Empty text short-circuits before ever touching the bot, but the
	// in-progress streamed-message bookkeeping for this session must still
	// be cleared so the next turn starts a fresh message.
	g.HandleAgentResponse(context.Background(), hub.AgentResponse{Text: ""}, "helper", "alice", "102")

	if _, ok := g.streaming["102"]; ok {
		t.Errorf("expected HandleAgentResponse to clear streaming[%q]", "102")
	}
}

func TestHandleAgentStreamUpdateIgnoresEmptyText(t *testing.T) {
	g := &Gateway{streaming: map[string]int{}}
	g.HandleAgentStreamUpdate(context.Background(), "", "helper", "alice", "102")
	if len(g.streaming) != 0 {
		t.Errorf("empty delta text should never start tracking a streamed message")
	}
}

func TestHandleAgentStreamUpdateIgnoresInvalidSessionID(t *testing.T) {
	g := &Gateway{streaming: map[string]int{}}
	g.HandleAgentStreamUpdate(context.Background(), "partial text", "helper", "alice", "not-a-chat-id")
	if len(g.streaming) != 0 {
		t.Errorf("an unparseable session id should never start tracking a streamed message")
	}
}
