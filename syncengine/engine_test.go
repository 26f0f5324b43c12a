package syncengine

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sage-x-project/dwn-agent-core/did"
	"github.com/sage-x-project/dwn-agent-core/dwn"
	"github.com/sage-x-project/dwn-agent-core/types"
)

func newTestEngine(t *testing.T, client dwn.Client, resolver did.Resolver) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sync.db")
	e, err := New(client, resolver, dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// twoAgentFixture wires a local node (standing in for the agent's own
// DWN) and a remote node served over HTTP (standing in for the synced
// identity's real DWN), both addressed by the same identity DID.
type twoAgentFixture struct {
	local    *dwn.Node
	remote   *dwn.Node
	client   *dwn.AgentClient
	resolver *did.MemoryResolver
	identity string
	endpoint string
	server   *httptest.Server
}

func newFixture(t *testing.T) *twoAgentFixture {
	t.Helper()
	local := dwn.NewNode()
	remote := dwn.NewNode()
	server := httptest.NewServer(dwn.NewServer(remote))
	t.Cleanup(server.Close)

	client := dwn.NewAgentClient(local)
	resolver := did.NewMemoryResolver()
	identity := "did:example:alice"
	resolver.Register(&types.DIDDocument{
		ID: identity,
		Service: []types.ServiceEndpoint{
			{ID: "#dwn", Type: "DecentralizedWebNode", ServiceEndpoint: []string{server.URL}},
		},
	})

	return &twoAgentFixture{
		local: local, remote: remote, client: client, resolver: resolver,
		identity: identity, endpoint: server.URL, server: server,
	}
}

func TestPushMirrorsLocalMessageToRemote(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	e := newTestEngine(t, fx.client, fx.resolver)
	e.RegisterIdentity(fx.identity)

	_, err := fx.local.Process(ctx, types.RequestEnvelope{
		Author:      fx.identity,
		MessageType: types.MessageRecordsWrite,
		MessageParams: map[string]any{
			"protocol": "https://example.org/notes",
			"id":       "n1",
			"data":     "dGVzdA",
		},
	})
	if err != nil {
		t.Fatalf("local write: %v", err)
	}

	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	queryResp, err := fx.remote.Process(ctx, types.RequestEnvelope{
		Target:        fx.identity,
		MessageType:   types.MessageRecordsQuery,
		MessageParams: map[string]any{"protocol": "https://example.org/notes"},
	})
	if err != nil {
		t.Fatalf("remote query: %v", err)
	}
	if len(queryResp.Reply.Entries) != 1 {
		t.Fatalf("expected message mirrored to remote, got %d entries", len(queryResp.Reply.Entries))
	}
}

func TestPushIsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	e := newTestEngine(t, fx.client, fx.resolver)
	e.RegisterIdentity(fx.identity)

	_, err := fx.local.Process(ctx, types.RequestEnvelope{
		Author:      fx.identity,
		MessageType: types.MessageRecordsWrite,
		MessageParams: map[string]any{
			"protocol": "https://example.org/notes",
			"id":       "n1",
			"data":     "dGVzdA",
		},
	})
	if err != nil {
		t.Fatalf("local write: %v", err)
	}

	if err := e.Tick(ctx); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("third tick: %v", err)
	}

	queryResp, err := fx.remote.Process(ctx, types.RequestEnvelope{
		Target:        fx.identity,
		MessageType:   types.MessageRecordsQuery,
		MessageParams: map[string]any{"protocol": "https://example.org/notes"},
	})
	if err != nil {
		t.Fatalf("remote query: %v", err)
	}
	if len(queryResp.Reply.Entries) != 1 {
		t.Fatalf("expected exactly one mirrored record despite repeated ticks, got %d", len(queryResp.Reply.Entries))
	}
}

func TestPullMirrorsRemoteMessageToLocal(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	e := newTestEngine(t, fx.client, fx.resolver)
	e.RegisterIdentity(fx.identity)

	_, err := fx.remote.Process(ctx, types.RequestEnvelope{
		Author:      fx.identity,
		MessageType: types.MessageRecordsWrite,
		MessageParams: map[string]any{
			"protocol": "https://example.org/notes",
			"id":       "remote-note",
			"data":     "cmVtb3Rl",
		},
	})
	if err != nil {
		t.Fatalf("remote write: %v", err)
	}

	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	localResp, err := fx.local.Process(ctx, types.RequestEnvelope{
		Target:        fx.identity,
		MessageType:   types.MessageRecordsQuery,
		MessageParams: map[string]any{"protocol": "https://example.org/notes"},
	})
	if err != nil {
		t.Fatalf("local query: %v", err)
	}
	if len(localResp.Reply.Entries) != 1 {
		t.Fatalf("expected remote message pulled locally, got %d entries", len(localResp.Reply.Entries))
	}
}

func TestUnregisteredIdentityIsNotSynced(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	e := newTestEngine(t, fx.client, fx.resolver)
	// identity never registered

	_, err := fx.local.Process(ctx, types.RequestEnvelope{
		Author:      fx.identity,
		MessageType: types.MessageRecordsWrite,
		MessageParams: map[string]any{
			"protocol": "https://example.org/notes",
			"id":       "n1",
			"data":     "dGVzdA",
		},
	})
	if err != nil {
		t.Fatalf("local write: %v", err)
	}
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	queryResp, _ := fx.remote.Process(ctx, types.RequestEnvelope{
		Target:        fx.identity,
		MessageType:   types.MessageRecordsQuery,
		MessageParams: map[string]any{"protocol": "https://example.org/notes"},
	})
	if len(queryResp.Reply.Entries) != 0 {
		t.Fatal("expected no sync activity for an unregistered identity")
	}
}

