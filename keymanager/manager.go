// Package keymanager implements the algorithm-tagged key store and the
// cryptographic operations the rest of the agent core performs through
// it. Keys are held in process memory only; they do not survive a
// restart. No other package may hold private key bytes: callers only
// ever see a Key URI, and the thumbprint-derived URI is decidable by string
// comparison alone.
package keymanager

import (
	"context"

	"github.com/sage-x-project/dwn-agent-core/types"
)

// Manager is the capability set higher layers depend on: generate, import,
// export, delete, get_public, get_uri, sign, verify, encrypt, decrypt,
// wrap, unwrap. It is implemented once for production use (memoryManager,
// an in-process key table that is not persisted) and once more for
// deterministic test fixtures (deterministicManager, built by
// NewDeterministicManager) — both satisfy this single interface rather
// than sharing a base type.
type Manager interface {
	GenerateKey(ctx context.Context, algorithm types.Algorithm) (types.KeyURI, error)
	ImportKey(ctx context.Context, jwk types.JWK) (types.KeyURI, error)
	ExportKey(ctx context.Context, uri types.KeyURI) (types.JWK, error)
	DeleteKey(ctx context.Context, uri types.KeyURI) error
	GetPublicKey(ctx context.Context, uri types.KeyURI) (types.JWK, error)
	GetKeyURI(jwk types.JWK) (types.KeyURI, error)

	Sign(ctx context.Context, uri types.KeyURI, data []byte) ([]byte, error)
	Verify(pub types.JWK, data, signature []byte) (bool, error)

	Encrypt(ctx context.Context, req EncryptRequest) ([]byte, error)
	Decrypt(ctx context.Context, req DecryptRequest) ([]byte, error)

	WrapKey(ctx context.Context, req WrapRequest) ([]byte, error)
	UnwrapKey(ctx context.Context, req UnwrapRequest) (types.JWK, error)
}

// EncryptRequest/DecryptRequest mirror the component contract's
// {key_uri, data, iv, aad?, tag_length=128} shape. tag_length is fixed at
// 128 bits by the two AEADs this core supports and is not a caller knob.
type EncryptRequest struct {
	KeyURI types.KeyURI
	Data   []byte
	IV     []byte
	AAD    []byte
}

type DecryptRequest struct {
	KeyURI     types.KeyURI
	Ciphertext []byte
	Tag        []byte
	IV         []byte
	AAD        []byte
}

type WrapRequest struct {
	EncryptionKeyURI types.KeyURI
	UnwrappedKey     types.JWK
}

type UnwrapRequest struct {
	WrappedKeyBytes     []byte
	WrappedKeyAlgorithm types.Algorithm
	DecryptionKeyURI    types.KeyURI
}
