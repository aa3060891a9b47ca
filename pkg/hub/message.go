// Package hub defines the shared data model and contracts of the
// conversational hub: messages, threads, agent requests/responses, the
// permission/feedback/confirmation one-shot request objects, and the
// Agent / AgentRegistry / Gateway interfaces that the Session and Per-Agent
// Worker are built against.
package hub

// Message is a single entry in a session's conversation log.
//
// Invariant: Sender is non-empty. ID, when present, is unique within a
// session — the Session uses it for inbound idempotency (spec §3).
type Message struct {
	Sender   string            `json:"sender"`
	Receiver *string           `json:"receiver"`
	Text     string            `json:"text"`
	Handoffs map[string]string `json:"handoffs,omitempty"`
	ID       *string           `json:"id,omitempty"`
}

// ReceiverOr returns Receiver's value, or "" if Receiver is nil.
func (m Message) ReceiverOr() string {
	if m.Receiver == nil {
		return ""
	}
	return *m.Receiver
}

// IDOr returns ID's value, or "" if ID is nil.
func (m Message) IDOr() string {
	if m.ID == nil {
		return ""
	}
	return *m.ID
}

// Thread is a read-only snapshot of another session's messages, loaded as
// context via a `thread:<id>` reference (spec §6).
type Thread struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// AgentRequest is an invocation addressed to a specific agent.
type AgentRequest struct {
	Query   string
	Sender  string
	Threads []Thread
	ID      *string
}

// AgentResponse is a single element an Agent.Run stream yields for a
// completed (or partial) turn.
//
// Final=false permits streaming partials; Handoffs, when non-empty,
// triggers further invocations of the named agents within the same
// session as soon as the response carrying them is handled, whether or
// not it is the stream's terminal (Final=true) response.
type AgentResponse struct {
	Text     string
	Final    bool
	Handoffs map[string]string
}

// PermissionLevel is the ordinal permission-decision scale from spec §3/§6.
type PermissionLevel int

const (
	PermissionDeny PermissionLevel = iota
	PermissionOnce
	PermissionSession
	PermissionAlways
)

// PermissionRequest is a one-shot request for a tool-call permission
// decision. Respond (or Deny/GrantOnce/GrantSession/GrantAlways) may be
// called at most once; Response blocks until one of them is.
type PermissionRequest struct {
	ToolName string
	ToolArgs []any
	ToolKwargs map[string]any

	resp chan PermissionLevel
}

// NewPermissionRequest creates a PermissionRequest ready to be responded to.
func NewPermissionRequest(toolName string, args []any, kwargs map[string]any) *PermissionRequest {
	return &PermissionRequest{
		ToolName:   toolName,
		ToolArgs:   args,
		ToolKwargs: kwargs,
		resp:       make(chan PermissionLevel, 1),
	}
}

// Response blocks until the request has been responded to. The level is
// put back into the slot after reading, so every caller (the agent
// awaiting the decision and the Session persisting it) sees the same value.
func (r *PermissionRequest) Response() PermissionLevel {
	level := <-r.resp
	r.resp <- level
	return level
}

// Respond resolves the request's one-shot response slot. The slot holds a
// single value: a second call blocks forever.
func (r *PermissionRequest) Respond(level PermissionLevel) {
	r.resp <- level
}

func (r *PermissionRequest) Deny()         { r.Respond(PermissionDeny) }
func (r *PermissionRequest) GrantOnce()    { r.Respond(PermissionOnce) }
func (r *PermissionRequest) GrantSession() { r.Respond(PermissionSession) }
func (r *PermissionRequest) GrantAlways()  { r.Respond(PermissionAlways) }

// FeedbackRequest is a one-shot request for free-text human feedback.
type FeedbackRequest struct {
	Question string

	resp chan string
}

// NewFeedbackRequest creates a FeedbackRequest ready to be responded to.
func NewFeedbackRequest(question string) *FeedbackRequest {
	return &FeedbackRequest{Question: question, resp: make(chan string, 1)}
}

// Response blocks until the request has been responded to. The text is
// put back into the slot after reading, so every caller sees the same value.
func (r *FeedbackRequest) Response() string {
	text := <-r.resp
	r.resp <- text
	return text
}

// Respond resolves the request's one-shot response slot.
func (r *FeedbackRequest) Respond(text string) {
	r.resp <- text
}

// ConfirmationResponse is the user's answer to a ConfirmationRequest.
type ConfirmationResponse struct {
	Confirmed bool
	Comment   string
}

// ConfirmationRequest is a one-shot request asking a human to confirm (or
// refuse) the Agent Selector's proposed agent+query routing decision.
type ConfirmationRequest struct {
	Query     string
	Thoughts  string
	AgentName string

	resp chan ConfirmationResponse
}

// NewConfirmationRequest creates a ConfirmationRequest ready to be responded to.
func NewConfirmationRequest(query, thoughts, agentName string) *ConfirmationRequest {
	return &ConfirmationRequest{
		Query:     query,
		Thoughts:  thoughts,
		AgentName: agentName,
		resp:      make(chan ConfirmationResponse, 1),
	}
}

// Response blocks until the request has been responded to.
func (r *ConfirmationRequest) Response() ConfirmationResponse {
	return <-r.resp
}

// Respond resolves the request's one-shot response slot.
func (r *ConfirmationRequest) Respond(resp ConfirmationResponse) {
	r.resp <- resp
}

// StrPtr is a small helper for constructing Message.Receiver / Message.ID
// optional-string fields from a literal.
func StrPtr(s string) *string {
	return &s
}
