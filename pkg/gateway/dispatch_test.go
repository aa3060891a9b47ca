package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/session"
)

type recordingGateway struct {
	mu        sync.Mutex
	responses []hub.AgentResponse
	notify    chan struct{}
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{notify: make(chan struct{}, 16)}
}

func (g *recordingGateway) HandleSelectorActivation(ctx context.Context, messageID, sessionID string) {}
func (g *recordingGateway) HandleAgentActivation(ctx context.Context, messageID, sessionID string)     {}
func (g *recordingGateway) HandleAgentResponse(ctx context.Context, response hub.AgentResponse, sender, receiver, sessionID string) {
	g.mu.Lock()
	g.responses = append(g.responses, response)
	g.mu.Unlock()
	g.notify <- struct{}{}
}

func (g *recordingGateway) waitForResponse(t *testing.T) hub.AgentResponse {
	t.Helper()
	select {
	case <-g.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a gateway response")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.responses[len(g.responses)-1]
}

type noopChannel struct{}

func (noopChannel) HandlePermissionRequest(ctx context.Context, req *hub.PermissionRequest, sender, receiver, sessionID string) {
}
func (noopChannel) HandleFeedbackRequest(ctx context.Context, req *hub.FeedbackRequest, sender, receiver, sessionID string) {
}
func (noopChannel) HandleConfirmationRequest(ctx context.Context, req *hub.ConfirmationRequest, sender, receiver, sessionID string) {
}

func newTestManager(t *testing.T) *session.Manager {
	t.Helper()
	return session.NewManager(context.Background(), t.TempDir(), session.Dependencies{
		Requests: noopChannel{},
	})
}

func TestDispatchAddressedMessageInvokesAgent(t *testing.T) {
	manager := newTestManager(t)
	gw := newRecordingGateway()

	Dispatch(context.Background(), manager, gw, nil, "sess-1", "alice", "@helper do the thing", "msg-1")

	resp := gw.waitForResponse(t)
	if resp.Text == "" {
		t.Errorf("expected a system response for the unknown 'helper' agent")
	}

	if _, ok := manager.Get("sess-1"); !ok {
		t.Fatalf("expected Dispatch to create session %q", "sess-1")
	}
}

func TestDispatchUnaddressedMessageUpdatesLog(t *testing.T) {
	manager := newTestManager(t)
	gw := newRecordingGateway()

	Dispatch(context.Background(), manager, gw, nil, "sess-2", "alice", "just chatting, no mention", "msg-2")

	sess, ok := manager.Get("sess-2")
	if !ok {
		t.Fatalf("expected Dispatch to create session %q", "sess-2")
	}
	if !sess.Contains("msg-2") {
		t.Errorf("expected the unaddressed message's id to be recorded in the session log")
	}
}

func TestDispatchReusesExistingSession(t *testing.T) {
	manager := newTestManager(t)
	gw := newRecordingGateway()

	Dispatch(context.Background(), manager, gw, nil, "sess-3", "alice", "hello", "msg-a")
	Dispatch(context.Background(), manager, gw, nil, "sess-3", "alice", "hello again", "msg-b")

	sess, ok := manager.Get("sess-3")
	if !ok {
		t.Fatalf("expected session %q to exist", "sess-3")
	}
	if got := len(sess.Messages()); got != 2 {
		t.Errorf("Messages() length = %d, want 2 (one session reused across both dispatches)", got)
	}
}
