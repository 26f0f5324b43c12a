package keymanager

import (
	"context"

	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/types"
)

// deterministicManager is the test-fixture variant: generate_key returns a
// predetermined sequence of JWKs instead of fresh randomness, so tests can
// assert on exact key URIs. Every other operation behaves exactly like the
// production manager, which is why this type embeds it rather than
// reimplementing the capability set.
type deterministicManager struct {
	*memoryManager
	predefined []types.JWK
	next       int
}

// NewDeterministicManager returns a Manager whose GenerateKey calls consume
// addPredefinedKeys' queue in order; once exhausted, GenerateKey falls back
// to the production random-generation path.
func NewDeterministicManager() interface {
	Manager
	AddPredefinedKeys(jwks []types.JWK)
} {
	return &deterministicManager{memoryManager: &memoryManager{keys: make(map[types.KeyURI]types.StoredKey)}}
}

// AddPredefinedKeys appends jwks to the queue GenerateKey draws from.
func (d *deterministicManager) AddPredefinedKeys(jwks []types.JWK) {
	d.predefined = append(d.predefined, jwks...)
}

func (d *deterministicManager) GenerateKey(ctx context.Context, algorithm types.Algorithm) (types.KeyURI, error) {
	if d.next >= len(d.predefined) {
		return d.memoryManager.GenerateKey(ctx, algorithm)
	}
	jwk := d.predefined[d.next]
	d.next++
	alg, err := algorithmOf(jwk)
	if err != nil {
		return "", errs.ErrAlgorithmNotSupported
	}
	return d.memoryManager.store(jwk, alg)
}
