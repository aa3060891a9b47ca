// Package reqchannel implements the Request Channel: transport-neutral
// delivery of permission/feedback/confirmation requests to a human and
// collection of their response (spec §4.7). Two variants are provided: an
// in-process Console channel and a websocket-backed Remote channel.
package reqchannel

import (
	"context"

	"github.com/hybridchat/hub/pkg/hub"
)

// Channel is the contract the Session drives to reach a human (spec §4.7).
type Channel interface {
	HandlePermissionRequest(ctx context.Context, req *hub.PermissionRequest, sender, receiver, sessionID string)
	HandleFeedbackRequest(ctx context.Context, req *hub.FeedbackRequest, sender, receiver, sessionID string)
	HandleConfirmationRequest(ctx context.Context, req *hub.ConfirmationRequest, sender, receiver, sessionID string)
}
