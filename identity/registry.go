// Package identity implements the Identity Registry: additional
// identities an agent manages, persisted through the Typed Data Store
// under the agent's own tenant.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sage-x-project/dwn-agent-core/dwn"
	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/types"
	"github.com/sage-x-project/dwn-agent-core/typedstore"
)

const (
	identityProtocol = "https://identity.foundation/schemas/web5/portable-identity"
	identitySchema   = "https://identity.foundation/schemas/web5/portable-identity"
	identityPath     = "identity"
)

// PortableDIDBundle is the opaque payload carried in PortableIdentity's
// PortableDID: the DID document plus the exported private keys needed to
// act as that identity elsewhere.
type PortableDIDBundle struct {
	DIDDocument types.DIDDocument `json:"didDocument"`
	Keys        []types.StoredKey `json:"keys"`
}

// CreateParams collects Registry.Create's inputs.
type CreateParams struct {
	DIDMethod string
	Metadata  types.IdentityMetadata
	Bundle    PortableDIDBundle
	Store     bool // Create persists only when true; the zero value false skips persistence (preview only)
}

// Registry is the Identity Registry, a thin wrapper over
// typedstore.Store[types.PortableIdentity].
type Registry struct {
	store *typedstore.Store[types.PortableIdentity]
}

// New builds a Registry whose underlying Typed Data Store caches
// record-id lookups for indexTTL (§6 Configuration's "IndexTTL"); a
// non-positive indexTTL leaves the store's own default in place.
func New(client dwn.Client, agentDID string, indexTTL time.Duration) (*Registry, error) {
	store, err := typedstore.New[types.PortableIdentity](client, agentDID, types.CollectionDescriptor{
		Protocol:     identityProtocol,
		ProtocolPath: identityPath,
		Schema:       identitySchema,
	})
	if err != nil {
		return nil, err
	}
	store.WithIndexTTL(indexTTL)
	return &Registry{store: store}, nil
}

func (r *Registry) Create(ctx context.Context, p CreateParams) (types.PortableIdentity, error) {
	bundleJSON, err := json.Marshal(p.Bundle)
	if err != nil {
		return types.PortableIdentity{}, fmt.Errorf("encode portable did: %w", err)
	}

	identity := types.PortableIdentity{
		DIDURI:      p.Bundle.DIDDocument.ID,
		Metadata:    p.Metadata,
		PortableDID: bundleJSON,
	}

	if p.Store {
		// create always inserts: two creates for the same DID URI are a
		// duplicate, not a silent overwrite.
		if err := r.store.Set(ctx, identity.DIDURI, identity, typedstore.SetOptions{PreventDuplicates: true}); err != nil {
			return types.PortableIdentity{}, err
		}
	}
	return identity, nil
}

func (r *Registry) Get(ctx context.Context, didURI string) (types.PortableIdentity, bool, error) {
	return r.store.Get(ctx, didURI, typedstore.GetOptions{})
}

func (r *Registry) List(ctx context.Context) ([]types.PortableIdentity, error) {
	return r.store.List(ctx, typedstore.ListOptions{})
}

func (r *Registry) Delete(ctx context.Context, didURI string) (bool, error) {
	return r.store.Delete(ctx, didURI, typedstore.DeleteOptions{})
}

func (r *Registry) Export(ctx context.Context, didURI string) (types.PortableIdentity, error) {
	identity, ok, err := r.store.Get(ctx, didURI, typedstore.GetOptions{})
	if err != nil {
		return types.PortableIdentity{}, err
	}
	if !ok {
		return types.PortableIdentity{}, errs.ErrIdentityNotFound
	}
	return identity, nil
}

func (r *Registry) Import(ctx context.Context, identity types.PortableIdentity) error {
	return r.store.Set(ctx, identity.DIDURI, identity, typedstore.SetOptions{})
}

// SetDwnEndpoints updates (or appends, id="dwn") the identity's
// DecentralizedWebNode service entry. A no-op call (same URL set) fails
// NoChangesDetected and never touches the store.
func (r *Registry) SetDwnEndpoints(ctx context.Context, didURI string, urls []string) error {
	identity, ok, err := r.store.Get(ctx, didURI, typedstore.GetOptions{})
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrIdentityNotFound
	}

	var bundle PortableDIDBundle
	if err := json.Unmarshal(identity.PortableDID, &bundle); err != nil {
		return fmt.Errorf("decode portable did: %w", err)
	}

	changed := false
	found := false
	for i, svc := range bundle.DIDDocument.Service {
		if svc.Type == "DecentralizedWebNode" {
			found = true
			if !sameEndpoints(svc.ServiceEndpoint, urls) {
				bundle.DIDDocument.Service[i].ServiceEndpoint = urls
				changed = true
			}
			break
		}
	}
	if !found {
		bundle.DIDDocument.Service = append(bundle.DIDDocument.Service, types.ServiceEndpoint{
			ID:              "dwn",
			Type:            "DecentralizedWebNode",
			ServiceEndpoint: urls,
		})
		changed = true
	}
	if !changed {
		return errs.ErrNoChangesDetected
	}

	bundleJSON, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode portable did: %w", err)
	}
	identity.PortableDID = bundleJSON
	return r.store.Set(ctx, didURI, identity, typedstore.SetOptions{})
}

// SetMetadataName updates the identity's display name. A no-op call
// fails NoChangesDetected and never touches the store.
func (r *Registry) SetMetadataName(ctx context.Context, didURI, name string) error {
	identity, ok, err := r.store.Get(ctx, didURI, typedstore.GetOptions{})
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrIdentityNotFound
	}
	if identity.Metadata.Name == name {
		return errs.ErrNoChangesDetected
	}
	identity.Metadata.Name = name
	return r.store.Set(ctx, didURI, identity, typedstore.SetOptions{})
}

// ConnectedIdentity returns the identity connected to connectedDID, or
// the agent's own primary identity when connectedDID is empty.
func (r *Registry) ConnectedIdentity(ctx context.Context, connectedDID string) (types.PortableIdentity, bool, error) {
	all, err := r.store.List(ctx, typedstore.ListOptions{})
	if err != nil {
		return types.PortableIdentity{}, false, err
	}
	for _, identity := range all {
		if connectedDID == "" && identity.Metadata.ConnectedDID == "" {
			return identity, true, nil
		}
		if identity.Metadata.ConnectedDID == connectedDID {
			return identity, true, nil
		}
	}
	return types.PortableIdentity{}, false, nil
}

func sameEndpoints(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
