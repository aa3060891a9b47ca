package reqchannel

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
)

// Authenticator is the subset of the Secret Store the remote channel needs
// to verify a login envelope (spec §4.7).
type Authenticator interface {
	Authenticate(username, password string) bool
}

// envelope is the wire shape of every frame on the websocket (spec §6
// "Remote Request Channel wire protocol"). Fields are a superset of every
// envelope kind; unused fields are omitted by omitempty.
type envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	// login
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Success  bool   `json:"success,omitempty"`
	Message  string `json:"message,omitempty"`

	// permission_request / permission_response
	ToolName   string         `json:"tool_name,omitempty"`
	ToolArgs   []any          `json:"tool_args,omitempty"`
	ToolKwargs map[string]any `json:"tool_kwargs,omitempty"`
	Granted    *int           `json:"granted,omitempty"`

	// feedback_request / feedback_response
	Question string `json:"question,omitempty"`
	Text     string `json:"text,omitempty"`

	// confirmation_request / confirmation_response
	Query     string `json:"query,omitempty"`
	Thoughts  string `json:"thoughts,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	Confirmed bool   `json:"confirmed,omitempty"`
	Comment   string `json:"comment,omitempty"`

	Sender    string `json:"sender,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type conn struct {
	mu sync.Mutex // serializes writes; gorilla/websocket forbids concurrent writers
	ws *websocket.Conn
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// RemoteChannel is the websocket-backed Request Channel: at most one
// connection per authenticated user; the pending-requests map and the
// connections map are shared by every connection's reader goroutine and
// the request senders, guarded by mu (spec §5: "protected by the server's task
// loop (single-threaded cooperative)").
type RemoteChannel struct {
	auth     Authenticator
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[string]*conn                    // username -> connection
	pending  map[string]chan envelope             // request_id -> response waiter
}

// NewRemoteChannel creates a RemoteChannel that authenticates logins via auth.
func NewRemoteChannel(auth Authenticator) *RemoteChannel {
	return &RemoteChannel{
		auth:    auth,
		conns:   map[string]*conn{},
		pending: map[string]chan envelope{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection, requires a login envelope first, then
// reads response envelopes for the remainder of the connection's life.
func (c *RemoteChannel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("reqchannel", "websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer ws.Close()

	var login envelope
	if err := ws.ReadJSON(&login); err != nil || login.Type != "login" {
		ws.WriteJSON(envelope{Type: "login_response", Success: false, Message: "first frame must be a login envelope"})
		return
	}

	if !c.auth.Authenticate(login.Username, login.Password) {
		ws.WriteJSON(envelope{Type: "login_response", Success: false, Message: "invalid credentials"})
		return
	}

	if err := ws.WriteJSON(envelope{Type: "login_response", Success: true}); err != nil {
		return
	}

	cn := &conn{ws: ws}
	c.register(login.Username, cn)
	defer c.unregister(login.Username, cn)

	for {
		var env envelope
		if err := ws.ReadJSON(&env); err != nil {
			return
		}
		c.dispatchResponse(env)
	}
}

func (c *RemoteChannel) register(username string, cn *conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[username] = cn
}

func (c *RemoteChannel) unregister(username string, cn *conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns[username] == cn {
		delete(c.conns, username)
	}
}

func (c *RemoteChannel) dispatchResponse(env envelope) {
	c.mu.Lock()
	waiter, ok := c.pending[env.RequestID]
	if ok {
		delete(c.pending, env.RequestID)
	}
	c.mu.Unlock()

	if ok {
		waiter <- env
	}
}

func (c *RemoteChannel) connFor(username string) (*conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cn, ok := c.conns[username]
	return cn, ok
}

// awaitResponse registers a pending waiter, sends req over cn, and blocks
// for the matching response envelope or ctx cancellation.
func (c *RemoteChannel) awaitResponse(ctx context.Context, cn *conn, req envelope) (envelope, error) {
	waiter := make(chan envelope, 1)

	c.mu.Lock()
	c.pending[req.RequestID] = waiter
	c.mu.Unlock()

	if err := cn.writeJSON(req); err != nil {
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return envelope{}, fmt.Errorf("sending request: %w", err)
	}

	select {
	case resp := <-waiter:
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return envelope{}, ctx.Err()
	}
}

func (c *RemoteChannel) HandlePermissionRequest(ctx context.Context, req *hub.PermissionRequest, sender, receiver, sessionID string) {
	cn, ok := c.connFor(receiver)
	if !ok {
		req.Deny()
		return
	}

	env := envelope{
		Type:       "permission_request",
		RequestID:  uuid.NewString(),
		ToolName:   req.ToolName,
		ToolArgs:   req.ToolArgs,
		ToolKwargs: req.ToolKwargs,
		Sender:     sender,
		SessionID:  sessionID,
	}

	resp, err := c.awaitResponse(ctx, cn, env)
	if err != nil || resp.Granted == nil {
		req.Deny()
		return
	}
	req.Respond(hub.PermissionLevel(*resp.Granted))
}

func (c *RemoteChannel) HandleFeedbackRequest(ctx context.Context, req *hub.FeedbackRequest, sender, receiver, sessionID string) {
	cn, ok := c.connFor(receiver)
	if !ok {
		req.Respond("")
		return
	}

	env := envelope{
		Type:      "feedback_request",
		RequestID: uuid.NewString(),
		Question:  req.Question,
		Sender:    sender,
		SessionID: sessionID,
	}

	resp, err := c.awaitResponse(ctx, cn, env)
	if err != nil {
		req.Respond("")
		return
	}
	req.Respond(resp.Text)
}

func (c *RemoteChannel) HandleConfirmationRequest(ctx context.Context, req *hub.ConfirmationRequest, sender, receiver, sessionID string) {
	cn, ok := c.connFor(receiver)
	if !ok {
		req.Respond(hub.ConfirmationResponse{Confirmed: false, Comment: "User not connected"})
		return
	}

	env := envelope{
		Type:      "confirmation_request",
		RequestID: uuid.NewString(),
		Query:     req.Query,
		Thoughts:  req.Thoughts,
		AgentName: req.AgentName,
		Sender:    sender,
		SessionID: sessionID,
	}

	resp, err := c.awaitResponse(ctx, cn, env)
	if err != nil {
		req.Respond(hub.ConfirmationResponse{Confirmed: false, Comment: "User not connected"})
		return
	}
	req.Respond(hub.ConfirmationResponse{Confirmed: resp.Confirmed, Comment: resp.Comment})
}
