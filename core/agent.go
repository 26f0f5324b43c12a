// Package core assembles the agent aggregate: the vault, key manager,
// DID resolver, DWN client, typed data stores, identity registry and
// sync engine a running agent holds, wired together per SPEC_FULL's
// component design.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/sage-x-project/dwn-agent-core/config"
	"github.com/sage-x-project/dwn-agent-core/did"
	"github.com/sage-x-project/dwn-agent-core/dwn"
	"github.com/sage-x-project/dwn-agent-core/identity"
	"github.com/sage-x-project/dwn-agent-core/keymanager"
	"github.com/sage-x-project/dwn-agent-core/syncengine"
	"github.com/sage-x-project/dwn-agent-core/types"
	"github.com/sage-x-project/dwn-agent-core/vault"
)

// Handle is the opaque capability passed into component methods that
// need to call back into the agent's collaborators (DWN client, DID
// resolver) without holding a pointer to the aggregate itself — this
// breaks the component/aggregate reference cycle the Key Manager, Vault
// and Typed Data Store would otherwise form with the Agent.
type Handle struct {
	AgentDID string
	Client   dwn.Client
	Resolver did.Resolver
}

// Agent is the running aggregate: every component a CLI or embedding
// program needs, already wired together.
type Agent struct {
	DID string

	Keys       keymanager.Manager
	Vault      *vault.Vault
	Resolver   did.Resolver
	Node       *dwn.Node
	DWN        dwn.Client
	Identities *identity.Registry
	Sync       *syncengine.Engine

	endpointsSelection config.EndpointsSelection
}

// Config collects New's dependencies. VaultStore and SyncDBPath back the
// vault's persisted state and the sync engine's bbolt store
// respectively. IndexTTL and EndpointsSelection mirror §6
// Configuration's fields of the same name; both are optional and fall
// back to their documented defaults when left zero.
type Config struct {
	AgentDID   string
	VaultStore vault.Store
	VaultOpts  vault.Options
	Resolver   did.Resolver
	SyncDBPath string

	IndexTTL           time.Duration
	EndpointsSelection config.EndpointsSelection
}

// New builds an Agent from Config: a fresh local DWN node, a vault bound
// to VaultStore, a key manager, an identity registry and a sync engine
// bound to SyncDBPath. The agent's own identity is auto-registered with
// the sync engine.
func New(ctx context.Context, cfg Config) (*Agent, error) {
	if cfg.AgentDID == "" {
		return nil, fmt.Errorf("core: AgentDID is required")
	}

	v, err := vault.New(ctx, cfg.VaultStore, cfg.VaultOpts)
	if err != nil {
		return nil, fmt.Errorf("core: init vault: %w", err)
	}

	keys := keymanager.NewManager()

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = did.NewMemoryResolver()
	}

	node := dwn.NewNode()
	client := dwn.NewAgentClient(node)

	identities, err := identity.New(client, cfg.AgentDID, cfg.IndexTTL)
	if err != nil {
		return nil, fmt.Errorf("core: init identity registry: %w", err)
	}

	syncEngine, err := syncengine.New(client, resolver, cfg.SyncDBPath)
	if err != nil {
		return nil, fmt.Errorf("core: init sync engine: %w", err)
	}
	syncEngine.RegisterIdentity(cfg.AgentDID)

	selection := cfg.EndpointsSelection
	if selection == "" {
		selection = config.EndpointsFirstSuccess
	}

	return &Agent{
		DID:                cfg.AgentDID,
		Keys:               keys,
		Vault:              v,
		Resolver:           resolver,
		Node:               node,
		DWN:                client,
		Identities:         identities,
		Sync:               syncEngine,
		endpointsSelection: selection,
	}, nil
}

// Handle returns the opaque capability components use to call back into
// this agent's DWN client and DID resolver.
func (a *Agent) Handle() Handle {
	return Handle{AgentDID: a.DID, Client: a.DWN, Resolver: a.Resolver}
}

// Close releases the agent's persistent resources (the sync engine's
// bbolt store).
func (a *Agent) Close() error {
	return a.Sync.Close()
}

// SendToDID sends req directly to targetDID's resolved #dwn endpoints,
// outside the sync engine's own push/pull loop, using the agent's
// configured EndpointsSelection strategy.
func (a *Agent) SendToDID(ctx context.Context, targetDID string, req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	return dwn.SendToDID(ctx, a.DWN, a.Resolver, targetDID, req, a.endpointsSelection)
}
