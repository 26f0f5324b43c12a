// Package dwn implements the DWN Client facade: the uniform request/reply
// envelope the rest of the agent core issues Records/Protocols/Messages
// operations through. The DWN message-processing engine itself — message
// signing validation, protocol rule enforcement — is out of scope; this
// package is the thin client around it, local (an in-memory message log
// standing in for a real node) and remote (HTTP to another agent's DWN
// endpoint).
package dwn

import (
	"context"

	"github.com/sage-x-project/dwn-agent-core/types"
)

// Client is the uniform facade every message type flows through. Process
// serves a request against the local DWN (an in-process Node in this
// core); Send dispatches a request to a remote DWN endpoint.
type Client interface {
	Process(ctx context.Context, req types.RequestEnvelope) (*types.ResponseEnvelope, error)
	Send(ctx context.Context, dwnURL string, req types.RequestEnvelope) (*types.ResponseEnvelope, error)
	Subscribe(ctx context.Context, author string) (<-chan types.Record, func(), error)
}
