package dwn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sage-x-project/dwn-agent-core/config"
	"github.com/sage-x-project/dwn-agent-core/did"
	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/logger"
	"github.com/sage-x-project/dwn-agent-core/types"
)

// AgentClient is the Client an agent actually holds: Process and Subscribe
// serve the agent's own DWN (an in-process Node standing in for a real
// one), Send posts to another agent's remote DWN endpoint over HTTP.
type AgentClient struct {
	local      *Node
	httpClient *http.Client
	log        *logger.Logger
}

func NewAgentClient(local *Node) *AgentClient {
	return &AgentClient{
		local:      local,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        logger.GetLogger().WithField("component", "dwn.client"),
	}
}

// Node returns the local Node this client serves, so a caller can mount a
// Server over it to accept incoming sync traffic from other agents.
func (c *AgentClient) Node() *Node { return c.local }

func (c *AgentClient) Process(ctx context.Context, req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	return c.local.Process(ctx, req)
}

func (c *AgentClient) Subscribe(ctx context.Context, author string) (<-chan types.Record, func(), error) {
	return c.local.Subscribe(ctx, author)
}

// wireRequest/wireResponse are the JSON shapes an HTTP DWN endpoint
// exchanges; RequestEnvelope/ResponseEnvelope carry Go-only fields
// (DataStream as raw bytes, a func cursor) that don't serialize directly.
type wireRequest struct {
	Author        string            `json:"author"`
	Target        string            `json:"target"`
	MessageType   types.MessageType `json:"messageType"`
	MessageParams map[string]any    `json:"messageParams,omitempty"`
	RawMessage    *types.Record     `json:"rawMessage,omitempty"`
}

type wireResponse struct {
	Message    *types.Record `json:"message,omitempty"`
	MessageCID string        `json:"messageCid,omitempty"`
	Reply      types.Reply   `json:"reply"`
}

func (c *AgentClient) Send(ctx context.Context, dwnURL string, req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	body, err := json.Marshal(wireRequest{
		Author:        req.Author,
		Target:        req.Target,
		MessageType:   req.MessageType,
		MessageParams: req.MessageParams,
		RawMessage:    req.RawMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, dwnURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Warnf("dwn send to %s failed: %v", dwnURL, err)
		return nil, errs.ErrEndpointUnreachable
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.ErrEndpointUnreachable
	}
	if resp.StatusCode >= 500 {
		return nil, errs.ErrEndpointUnreachable
	}

	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &types.ResponseEnvelope{Message: wr.Message, MessageCID: wr.MessageCID, Reply: wr.Reply}, nil
}

// SendToDID resolves authorDID's DID document and dispatches req to its
// #dwn service endpoints in order. With EndpointsFirstSuccess (the
// default) it returns as soon as one endpoint accepts the request; with
// EndpointsAll it sends to every endpoint regardless of earlier
// successes, for callers that want full replication, and returns the
// first successful response once every endpoint has been tried.
func SendToDID(ctx context.Context, client Client, resolver did.Resolver, authorDID string, req types.RequestEnvelope, selection config.EndpointsSelection) (*types.ResponseEnvelope, error) {
	doc, err := resolver.Resolve(ctx, authorDID)
	if err != nil {
		return nil, err
	}
	endpoints := doc.DWNEndpoints()
	if len(endpoints) == 0 {
		return nil, errs.ErrEndpointUnreachable
	}

	var first *types.ResponseEnvelope
	var lastErr error
	for _, endpoint := range endpoints {
		resp, err := client.Send(ctx, endpoint, req)
		if err != nil {
			lastErr = err
			continue
		}
		if selection != config.EndpointsAll {
			return resp, nil
		}
		if first == nil {
			first = resp
		}
	}
	if first != nil {
		return first, nil
	}
	return nil, lastErr
}
