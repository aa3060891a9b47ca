package hub

import "errors"

// ErrAgentNotRegistered is returned by an AgentRegistry when no agent is
// configured under the requested name.
var ErrAgentNotRegistered = errors.New("agent not registered")

// ErrGatewayNotSet is returned by a Session's internal gateway lookup when
// it has an outbound event to emit before SetGateway has been called.
var ErrGatewayNotSet = errors.New("gateway not set")
