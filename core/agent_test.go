package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sage-x-project/dwn-agent-core/types"
	"github.com/sage-x-project/dwn-agent-core/vault"
)

func TestNewAssemblesAgent(t *testing.T) {
	ctx := context.Background()
	agent, err := New(ctx, Config{
		AgentDID:   "did:example:agent",
		VaultStore: vault.NewMemoryStore(),
		VaultOpts:  vault.Options{WorkFactor: 1000},
		SyncDBPath: filepath.Join(t.TempDir(), "sync.db"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer agent.Close()

	if agent.DID != "did:example:agent" {
		t.Fatalf("unexpected agent DID: %s", agent.DID)
	}

	if _, err := agent.Vault.Initialize(ctx, "hunter2", nil, types.AlgEd25519); err != nil {
		t.Fatalf("vault initialize: %v", err)
	}

	h := agent.Handle()
	if h.AgentDID != agent.DID || h.Client == nil || h.Resolver == nil {
		t.Fatalf("unexpected handle: %+v", h)
	}
}
