// Package session implements the Session — the conversational state
// machine — its Per-Agent Workers, and the Session Manager, grounded on
// hygroup/session.py (SessionAgent, Session, SessionManager).
package session

import (
	"context"
	"sync"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
)

// workItem is either an update Message or an invocation
// (AgentRequest, secrets).
type workItem struct {
	message *hub.Message
	request *hub.AgentRequest
	secrets map[string]string
}

// worker is the Per-Agent Worker: it serializes updates and invocations for
// one Agent inside one Session (spec §4.2).
type worker struct {
	agent   hub.Agent
	session *Session

	mu      sync.Mutex
	updates []hub.Message

	items  chan workItem
	done   chan struct{}
}

func newWorker(ctx context.Context, agent hub.Agent, session *Session, initialUpdates []hub.Message) *worker {
	w := &worker{
		agent:   agent,
		session: session,
		updates: append([]hub.Message(nil), initialUpdates...),
		items:   make(chan workItem, 64),
		done:    make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

// GetState returns the persisted shape of this worker: its buffered
// updates plus the agent's own opaque history (spec §3 "agents" shape).
func (w *worker) GetState() (map[string]any, error) {
	w.mu.Lock()
	updates := append([]hub.Message(nil), w.updates...)
	w.mu.Unlock()

	history, err := w.agent.GetState()
	if err != nil {
		return nil, err
	}
	return map[string]any{"updates": updates, "history": history}, nil
}

// SetState restores updates and the agent's opaque history from a
// previously persisted state map.
func (w *worker) SetState(state map[string]any) error {
	if raw, ok := state["updates"]; ok {
		msgs, err := decodeMessages(raw)
		if err != nil {
			return err
		}
		w.mu.Lock()
		w.updates = msgs
		w.mu.Unlock()
	}
	if history, ok := state["history"]; ok {
		return w.agent.SetState(history)
	}
	return nil
}

// update enqueues a Message for this worker to fold into its updates
// buffer (spec §4.2).
func (w *worker) update(msg hub.Message) {
	select {
	case w.items <- workItem{message: &msg}:
	case <-w.done:
	}
}

// invoke enqueues an AgentRequest, with the invoking user's secrets, for
// this worker to run.
func (w *worker) invoke(req hub.AgentRequest, secrets map[string]string) {
	select {
	case w.items <- workItem{request: &req, secrets: secrets}:
	case <-w.done:
	}
}

// stop signals the worker loop to exit after its current item.
func (w *worker) stop() {
	close(w.done)
}

func (w *worker) run(ctx context.Context) {
	closer, err := w.agent.SessionScope(ctx)
	if err != nil {
		logger.ErrorCF("worker", "session_scope failed, worker exiting", map[string]interface{}{"agent": w.agent.Name(), "error": err.Error()})
		return
	}
	if closer != nil {
		defer closer()
	}

	for {
		select {
		case item := <-w.items:
			w.process(ctx, item)
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *worker) process(ctx context.Context, item workItem) {
	if item.message != nil {
		w.mu.Lock()
		w.updates = append(w.updates, *item.message)
		w.mu.Unlock()
		return
	}

	w.runInvocation(ctx, *item.request, item.secrets)
}

func (w *worker) runInvocation(ctx context.Context, request hub.AgentRequest, secrets map[string]string) {
	closer, err := w.agent.RequestScope(ctx, secrets)
	if err != nil {
		w.session.emitAgentError(ctx, w.agent.Name(), request.Sender, err)
		w.clearUpdates()
		return
	}
	if closer != nil {
		defer closer()
	}

	w.mu.Lock()
	updates := append([]hub.Message(nil), w.updates...)
	w.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorCF("worker", "agent run panicked", map[string]interface{}{"agent": w.agent.Name(), "panic": r})
				w.session.emitAgentPanic(ctx, w.agent.Name(), request.Sender, r)
			}
		}()

		stream := w.agent.Run(ctx, request, updates, request.Threads)
		for elem := range stream {
			switch {
			case elem.Permission != nil:
				w.session.handlePermissionRequest(ctx, elem.Permission, w.agent.Name(), request.Sender)
			case elem.Feedback != nil:
				w.session.handleFeedbackRequest(ctx, elem.Feedback, w.agent.Name(), request.Sender)
			case elem.Response != nil:
				w.session.handleAgentResponse(ctx, *elem.Response, w.agent.Name(), request.Sender)
			case elem.Delta != nil:
				w.session.handleAgentStreamUpdate(ctx, *elem.Delta, w.agent.Name(), request.Sender)
			}
		}
	}()

	// The agent now has these updates folded into its own history, so the
	// buffer is cleared exactly at this point (spec §3 invariant).
	w.clearUpdates()
}

func (w *worker) clearUpdates() {
	w.mu.Lock()
	w.updates = nil
	w.mu.Unlock()
}
