package hub

import "context"

// StreamElem is one element of the stream an Agent.Run yields: exactly one
// of Response, Permission, Feedback, or Delta is non-nil. Delta elements are
// optional progressive-text updates that may arrive zero or more times
// before the terminal Response (spec §4.1a streaming); a Gateway that
// cannot edit messages in place is free to ignore them.
type StreamElem struct {
	Response   *AgentResponse
	Permission *PermissionRequest
	Feedback   *FeedbackRequest
	Delta      *string
}

// Agent is the polymorphic unit that, given a request, yields a stream of
// response / permission-request / feedback-request events (spec §2, §9).
//
// Implementations are driven exclusively by the Per-Agent Worker: SessionScope
// is entered once per worker lifetime, RequestScope once per invocation
// (parameterized by the invoking user's secrets, for tool variable
// substitution — spec §6).
type Agent interface {
	Name() string

	// SessionScope wraps the lifetime of the worker's goroutine. Call the
	// returned closer when the worker exits.
	SessionScope(ctx context.Context) (closer func(), err error)

	// RequestScope wraps a single invocation, configured with the secrets of
	// the authenticated invoking user.
	RequestScope(ctx context.Context, configValues map[string]string) (closer func(), err error)

	// Run streams elements for a single AgentRequest. The channel is closed
	// when the turn completes (normally or via ctx cancellation).
	Run(ctx context.Context, request AgentRequest, updates []Message, threads []Thread) <-chan StreamElem

	GetState() (any, error)
	SetState(state any) error
}

// AgentRegistry is a named catalog of agent configurations; it produces
// Agent instances on demand (spec §2, §4.1d).
type AgentRegistry interface {
	CreateAgent(ctx context.Context, name string) (Agent, error)
	RegisteredNames(ctx context.Context) (map[string]struct{}, error)
}

// Gateway is the narrow contract the core uses to emit outbound responses
// back to a transport (spec §4.8). It also carries two activation UI-hint
// hooks; the Session calls only HandleAgentResponse, never the hooks.
type Gateway interface {
	HandleSelectorActivation(ctx context.Context, messageID, sessionID string)
	HandleAgentActivation(ctx context.Context, messageID, sessionID string)
	HandleAgentResponse(ctx context.Context, response AgentResponse, sender, receiver, sessionID string)
}

// StreamingGateway is optionally implemented by a Gateway whose transport
// supports editing an already-sent message in place (in this repo only the
// Telegram gateway implements it); the Session type-asserts for it rather than growing the base
// Gateway contract, so transports without this capability (console,
// DingTalk's webhook-reply model, ...) need not implement a no-op.
type StreamingGateway interface {
	Gateway
	HandleAgentStreamUpdate(ctx context.Context, text, sender, receiver, sessionID string)
}
