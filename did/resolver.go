// Package did implements the DID resolution facade the agent core depends
// on: resolve a DID URI to a DID Document carrying the subject's
// verification methods and DWN service endpoints. Resolution itself — the
// DID method logic — is out of this core's scope; this package only
// defines the facade and the two concrete resolvers the rest of the code
// is grounded on (an in-memory registry for tests and local agents, and
// an Ethereum-anchored one for did:ethr-style deployments).
package did

import (
	"context"

	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/types"
)

// Resolver resolves a DID URI to its current DID Document.
type Resolver interface {
	Resolve(ctx context.Context, didURI string) (*types.DIDDocument, error)
}

// MemoryResolver is a mutable in-process registry, used by tests and by
// agents that publish their own identities directly rather than through a
// chain.
type MemoryResolver struct {
	docs map[string]*types.DIDDocument
}

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{docs: make(map[string]*types.DIDDocument)}
}

func (r *MemoryResolver) Register(doc *types.DIDDocument) {
	r.docs[doc.ID] = doc
}

func (r *MemoryResolver) Resolve(ctx context.Context, didURI string) (*types.DIDDocument, error) {
	doc, ok := r.docs[didURI]
	if !ok {
		return nil, errs.ErrResolutionFailed
	}
	return doc, nil
}
