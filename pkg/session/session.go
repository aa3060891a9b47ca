package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/reqchannel"
	"github.com/hybridchat/hub/pkg/tools"
)

// PermissionStore is the subset of permission.Store the Session needs.
type PermissionStore interface {
	GetPermission(toolName, username, sessionID string) (hub.PermissionLevel, bool)
	SetPermission(toolName, username, sessionID string, level hub.PermissionLevel) error
}

// SecretsProvider is the subset of secretstore.Store the Session needs.
type SecretsProvider interface {
	Authenticated(username string) bool
	GetSecrets(username string) (map[string]string, error)
}

// Selection is the Agent Selector's routing decision for one message.
type Selection struct {
	AgentName string
	Query     string
	Reasoning string
}

// Selector is the contract Session drives for unaddressed-message routing
// (spec §4.3).
type Selector interface {
	Add(ctx context.Context, msg hub.Message) error
	Run(ctx context.Context, msg hub.Message) (Selection, error)
	GetState() (any, error)
	SetState(state any) error
}

// Session owns a message log, its agent workers, its selector, and its
// gateway link; it enforces the hub's delivery rules (spec §4.1).
type Session struct {
	ID      string
	manager *Manager

	registry    hub.AgentRegistry
	secrets     SecretsProvider
	permissions PermissionStore
	requests    reqchannel.Channel
	selector    Selector

	mu       sync.Mutex
	gateway  hub.Gateway
	agents   map[string]*worker
	messages []hub.Message

	bgCtx context.Context
}

// New constructs a Session bound to the given collaborators. bgCtx governs
// the lifetime of worker goroutines and detached selection tasks; it
// should outlive any single Update/Invoke call.
func New(
	bgCtx context.Context,
	id string,
	manager *Manager,
	registry hub.AgentRegistry,
	secrets SecretsProvider,
	permissions PermissionStore,
	requests reqchannel.Channel,
	selector Selector,
) *Session {
	return &Session{
		ID:          id,
		manager:     manager,
		registry:    registry,
		secrets:     secrets,
		permissions: permissions,
		requests:    requests,
		selector:    selector,
		agents:      map[string]*worker{},
		bgCtx:       bgCtx,
	}
}

// SetGateway binds the transport this session emits outbound events to.
func (s *Session) SetGateway(gw hub.Gateway) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway = gw
}

func (s *Session) gw() (hub.Gateway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gateway == nil {
		return nil, hub.ErrGatewayNotSet
	}
	return s.gateway, nil
}

// Messages returns a snapshot copy of the session's message log.
func (s *Session) Messages() []hub.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hub.Message(nil), s.messages...)
}

// AddAgent registers an already-constructed Agent with the session,
// starting its Per-Agent Worker. The worker's initial `updates` buffer is
// seeded with a copy of the session's current message log, so a
// late-joining agent still sees prior context (spec §4.2).
func (s *Session) AddAgent(agent hub.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	initial := append([]hub.Message(nil), s.messages...)
	s.agents[agent.Name()] = newWorker(s.bgCtx, agent, s, initial)
}

// agentNames returns every currently-loaded agent name plus every name the
// registry knows about (spec §4.1 Session.agent_names).
func (s *Session) agentNames(ctx context.Context) map[string]struct{} {
	s.mu.Lock()
	names := make(map[string]struct{}, len(s.agents))
	for name := range s.agents {
		names[name] = struct{}{}
	}
	s.mu.Unlock()

	if s.registry != nil {
		if registered, err := s.registry.RegisteredNames(ctx); err == nil {
			for name := range registered {
				names[name] = struct{}{}
			}
		}
	}
	return names
}

func (s *Session) userAuthenticated(username string) bool {
	if s.secrets == nil {
		return true
	}
	return s.secrets.Authenticated(username)
}

func (s *Session) userSecrets(username string) map[string]string {
	if s.secrets == nil {
		return map[string]string{}
	}
	secrets, err := s.secrets.GetSecrets(username)
	if err != nil {
		return map[string]string{}
	}
	return secrets
}

func (s *Session) getPermission(toolName, username string) (hub.PermissionLevel, bool) {
	if s.permissions == nil {
		return 0, false
	}
	return s.permissions.GetPermission(toolName, username, s.ID)
}

func (s *Session) setPermission(toolName, username string, level hub.PermissionLevel) {
	if s.permissions == nil {
		return
	}
	if err := s.permissions.SetPermission(toolName, username, s.ID, level); err != nil {
		logger.WarnCF("session", "failed to persist permission", map[string]interface{}{"error": err.Error()})
	}
}

// loadAgent attempts to hydrate and register receiver from the registry.
// Failure is swallowed (spec §4.1 Session._load_agent / §7 "Addressing").
func (s *Session) loadAgent(ctx context.Context, receiver string) {
	if s.registry == nil {
		return
	}
	agent, err := s.registry.CreateAgent(ctx, receiver)
	if err != nil {
		return
	}
	s.wireRespondTool(agent, receiver)
	s.AddAgent(agent)
}

// toolProvider is implemented by every concrete hub.Agent this package
// hydrates (DefaultAgent, HandoffAgent), exposing the base registry built
// at CreateAgent time so loadAgent can reach in and bind request-independent
// callbacks before the agent is ever run.
type toolProvider interface {
	Tools() *tools.ToolRegistry
}

// wireRespondTool binds a live RespondCallback into agent's "respond" tool,
// if it has one, so that tool can post a Message (sender: the agent) through
// this Session instead of erroring "not configured for this request" (spec
// §4.1b specialist hand-back flow).
func (s *Session) wireRespondTool(agent hub.Agent, agentName string) {
	tp, ok := agent.(toolProvider)
	if !ok || tp.Tools() == nil {
		return
	}
	t, ok := tp.Tools().Get("respond")
	if !ok {
		return
	}
	rt, ok := t.(*tools.RespondTool)
	if !ok {
		return
	}
	rt.SetCallback(func(receiver, text string) error {
		s.handleAgentResponse(context.Background(), hub.AgentResponse{Text: text, Final: true}, agentName, receiver)
		return nil
	})
}

func (s *Session) hasAgent(name string) (*worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.agents[name]
	return w, ok
}

// Contains reports whether id has already been seen in this session's
// message log (spec §4.1 `contains`).
func (s *Session) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID != nil && *m.ID == id {
			return true
		}
	}
	return false
}

// Update appends msg to the log (unless its id was already seen), fans it
// out to every worker whose agent name is not {msg.Sender, msg.Receiver},
// and kicks off an asynchronous selection pass (spec §4.1).
func (s *Session) Update(ctx context.Context, msg hub.Message) {
	s.mu.Lock()
	if msg.ID != nil {
		for _, m := range s.messages {
			if m.ID != nil && *m.ID == *msg.ID {
				s.mu.Unlock()
				return // idempotency (spec §3, §7)
			}
		}
	}

	s.messages = append(s.messages, msg)

	receiver := msg.ReceiverOr()
	for name, w := range s.agents {
		if name == msg.Sender || name == receiver {
			continue
		}
		w.update(msg)
	}
	s.mu.Unlock()

	go s.runSelection(s.bgCtx, msg)
}

func (s *Session) runSelection(ctx context.Context, msg hub.Message) {
	if s.selector == nil {
		return
	}

	names := s.agentNames(ctx)
	_, senderIsAgent := names[msg.Sender]
	_, receiverIsAgent := names[msg.ReceiverOr()]

	if msg.Sender == "system" || senderIsAgent || receiverIsAgent {
		if err := s.selector.Add(ctx, msg); err != nil {
			logger.WarnCF("session", "selector add failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	selection, err := s.selector.Run(ctx, msg)
	if err != nil {
		logger.WarnCF("session", "selector run failed", map[string]interface{}{"error": err.Error()})
		return
	}

	if _, known := names[selection.AgentName]; !known || selection.Query == "" {
		return
	}

	confirmation := hub.NewConfirmationRequest(selection.Query, selection.Reasoning, selection.AgentName)
	s.requests.HandleConfirmationRequest(ctx, confirmation, selection.AgentName, msg.Sender, s.ID)
	resp := confirmation.Response()
	if !resp.Confirmed {
		return
	}

	s.Invoke(ctx, hub.AgentRequest{Query: selection.Query, Sender: msg.Sender}, selection.AgentName)
}

// Invoke addresses request to receiver (spec §4.1).
func (s *Session) Invoke(ctx context.Context, request hub.AgentRequest, receiver string) {
	if !s.userAuthenticated(request.Sender) {
		s.handleSystemResponse(ctx, fmt.Sprintf("User %q is not authenticated", request.Sender), request.Sender)
		return
	}

	if _, ok := s.hasAgent(receiver); !ok {
		s.loadAgent(ctx, receiver)
	}

	w, ok := s.hasAgent(receiver)
	if !ok {
		go s.handleSystemResponse(ctx, fmt.Sprintf("Agent %q does not exist", receiver), request.Sender)
		return
	}

	if ids := hub.ExtractThreadReferences(request.Query); len(ids) > 0 {
		request.Threads = s.manager.LoadThreads(ids)
	}

	secrets := s.userSecrets(request.Sender)
	w.invoke(request, secrets)

	msg := hub.Message{Sender: request.Sender, Receiver: hub.StrPtr(receiver), Text: request.Query, ID: request.ID}
	s.Update(ctx, msg)
}

func (s *Session) handleSystemResponse(ctx context.Context, text, receiver string) {
	gw, err := s.gw()
	if err != nil {
		logger.WarnCF("session", "dropping system response, no gateway set", map[string]interface{}{"error": err.Error()})
		return
	}
	gw.HandleAgentResponse(ctx, hub.AgentResponse{Text: text, Final: true}, "system", receiver, s.ID)
}

func (s *Session) emitAgentError(ctx context.Context, agentName, receiver string, err error) {
	s.handleAgentResponse(ctx, hub.AgentResponse{
		Text:  fmt.Sprintf("agent %q failed: %v", agentName, err),
		Final: true,
	}, agentName, receiver)
}

func (s *Session) emitAgentPanic(ctx context.Context, agentName, receiver string, r any) {
	s.handleAgentResponse(ctx, hub.AgentResponse{
		Text:  fmt.Sprintf("agent %q crashed: %v", agentName, r),
		Final: true,
	}, agentName, receiver)
}

// handleAgentResponse implements spec §4.1 Session.handle_agent_response:
// every yielded AgentResponse — final or not — is appended to the log,
// fires an Invoke for each of its own Handoffs, then reaches the gateway,
// strictly in the order the worker forwards them.
func (s *Session) handleAgentResponse(ctx context.Context, resp hub.AgentResponse, sender, receiver string) {
	var handoffs map[string]string
	if len(resp.Handoffs) > 0 {
		handoffs = resp.Handoffs
	}
	msg := hub.Message{Sender: sender, Receiver: hub.StrPtr(receiver), Text: resp.Text, Handoffs: handoffs}
	s.Update(ctx, msg)

	for _, agent := range sortedKeys(resp.Handoffs) {
		query := resp.Handoffs[agent]
		s.Invoke(ctx, hub.AgentRequest{Query: query, Sender: receiver}, agent)
	}

	gw, err := s.gw()
	if err != nil {
		logger.WarnCF("session", "dropping agent response, no gateway set", map[string]interface{}{"error": err.Error()})
		return
	}
	gw.HandleAgentResponse(ctx, resp, sender, receiver, s.ID)
}

// handleAgentStreamUpdate forwards a progressive (non-final) text delta to
// the gateway, if it supports editing a message in place. Unlike
// handleAgentResponse, this never appends to the session log: the
// terminal AgentResponse still carries the message of record.
func (s *Session) handleAgentStreamUpdate(ctx context.Context, text, sender, receiver string) {
	gw, err := s.gw()
	if err != nil {
		return
	}
	sg, ok := gw.(hub.StreamingGateway)
	if !ok {
		return
	}
	sg.HandleAgentStreamUpdate(ctx, text, sender, receiver, s.ID)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// handlePermissionRequest implements spec §4.1
// Session.handle_permission_request: a remembered decision short-circuits
// the human; otherwise the Request Channel arbitrates, and Session/Always
// answers are persisted.
func (s *Session) handlePermissionRequest(ctx context.Context, req *hub.PermissionRequest, sender, receiver string) {
	if level, ok := s.getPermission(req.ToolName, receiver); ok {
		req.Respond(level)
		return
	}

	s.requests.HandlePermissionRequest(ctx, req, sender, receiver, s.ID)
	level := req.Response()

	if level == hub.PermissionSession || level == hub.PermissionAlways {
		s.setPermission(req.ToolName, receiver, level)
	}
}

func (s *Session) handleFeedbackRequest(ctx context.Context, req *hub.FeedbackRequest, sender, receiver string) {
	s.requests.HandleFeedbackRequest(ctx, req, sender, receiver, s.ID)
	req.Response()
}

// Save returns this session's persistable state document (spec §4.4, §6).
func (s *Session) Save() (documentState, error) {
	s.mu.Lock()
	messages := append([]hub.Message(nil), s.messages...)
	agentNames := make([]string, 0, len(s.agents))
	workers := make(map[string]*worker, len(s.agents))
	for name, w := range s.agents {
		agentNames = append(agentNames, name)
		workers[name] = w
	}
	s.mu.Unlock()

	doc := documentState{Messages: messages, Agents: map[string]map[string]any{}}
	for _, name := range agentNames {
		state, err := workers[name].GetState()
		if err != nil {
			return documentState{}, fmt.Errorf("saving agent %q state: %w", name, err)
		}
		doc.Agents[name] = state
	}

	if s.selector != nil {
		selState, err := s.selector.GetState()
		if err != nil {
			return documentState{}, fmt.Errorf("saving selector state: %w", err)
		}
		doc.Selector = selState
	}

	return doc, nil
}

// Load restores agent and selector states from a previously saved
// document. The session's own message log is replaced wholesale (spec
// §4.4 `load`).
func (s *Session) Load(doc documentState) error {
	s.mu.Lock()
	s.messages = append([]hub.Message(nil), doc.Messages...)
	workers := make(map[string]*worker, len(s.agents))
	for name, w := range s.agents {
		workers[name] = w
	}
	s.mu.Unlock()

	for name, state := range doc.Agents {
		if w, ok := workers[name]; ok {
			if err := w.SetState(state); err != nil {
				return fmt.Errorf("restoring agent %q state: %w", name, err)
			}
		}
	}

	if s.selector != nil && doc.Selector != nil {
		if err := s.selector.SetState(doc.Selector); err != nil {
			return fmt.Errorf("restoring selector state: %w", err)
		}
	}

	return nil
}

// Shutdown cancels every worker's processing loop. In-flight items are
// allowed to finish (workers stop between items, per spec §4.2
// "Cancellation").
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.agents {
		w.stop()
	}
}
