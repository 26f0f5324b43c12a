package keymanager

import (
	"context"
	"sync"

	"github.com/sage-x-project/dwn-agent-core/corecrypto"
	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/types"
)

// memoryManager is the production Manager: an in-process, mutex-guarded
// key table. Persistence (surviving a process restart) is layered on by
// wrapping Manager, not by this type — the vault is the only component
// that currently needs key material to survive a restart, and it persists
// the agent DID's own keys itself rather than through this store.
type memoryManager struct {
	mu   sync.Mutex
	keys map[types.KeyURI]types.StoredKey
}

// NewManager returns the production in-memory Key Manager.
func NewManager() Manager {
	return &memoryManager{keys: make(map[types.KeyURI]types.StoredKey)}
}

func symmetricByteLen(alg types.Algorithm) (int, bool) {
	switch alg {
	case types.AlgA128KW, types.AlgA128GCM:
		return 16, true
	case types.AlgA192KW, types.AlgA192GCM:
		return 24, true
	case types.AlgA256KW, types.AlgA256GCM:
		return 32, true
	default:
		return 0, false
	}
}

func isAsymmetric(alg types.Algorithm) bool {
	switch alg {
	case types.AlgEd25519, types.AlgSecp256k1, types.AlgSecp256r1:
		return true
	default:
		return false
	}
}

func (m *memoryManager) GenerateKey(ctx context.Context, algorithm types.Algorithm) (types.KeyURI, error) {
	var jwk types.JWK
	var err error
	switch {
	case isAsymmetric(algorithm):
		jwk, err = corecrypto.GenerateJWK(algorithm)
	default:
		if n, ok := symmetricByteLen(algorithm); ok {
			jwk, err = corecrypto.GenerateSymmetricJWK(algorithm, n)
		} else {
			return "", errs.ErrAlgorithmNotSupported
		}
	}
	if err != nil {
		return "", err
	}
	return m.store(jwk, algorithm)
}

func (m *memoryManager) store(jwk types.JWK, algorithm types.Algorithm) (types.KeyURI, error) {
	uri, err := corecrypto.KeyURI(jwk)
	if err != nil {
		return "", err
	}
	if jwk.Kid == "" {
		jwk.Kid = string(uri[len("urn:jwk:"):])
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[uri] = types.StoredKey{URI: uri, Algorithm: algorithm, JWK: jwk}
	return uri, nil
}

func (m *memoryManager) ImportKey(ctx context.Context, jwk types.JWK) (types.KeyURI, error) {
	alg, err := algorithmOf(jwk)
	if err != nil {
		return "", err
	}
	return m.store(jwk, alg)
}

// algorithmOf infers the Algorithm tag for an imported JWK from its
// kty/crv/alg members, since import_key has no separate algorithm
// parameter.
func algorithmOf(jwk types.JWK) (types.Algorithm, error) {
	switch {
	case jwk.Kty == "OKP" && jwk.Crv == "Ed25519":
		return types.AlgEd25519, nil
	case jwk.Kty == "EC" && jwk.Crv == "secp256k1":
		return types.AlgSecp256k1, nil
	case jwk.Kty == "EC" && jwk.Crv == "P-256":
		return types.AlgSecp256r1, nil
	case jwk.Kty == "oct" && jwk.Alg != "":
		return types.Algorithm(jwk.Alg), nil
	default:
		return "", errs.ErrAlgorithmNotSupported
	}
}

func (m *memoryManager) lookup(uri types.KeyURI) (types.StoredKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sk, ok := m.keys[uri]
	if !ok {
		return types.StoredKey{}, errs.ErrKeyNotFound
	}
	return sk, nil
}

func (m *memoryManager) ExportKey(ctx context.Context, uri types.KeyURI) (types.JWK, error) {
	sk, err := m.lookup(uri)
	if err != nil {
		return types.JWK{}, err
	}
	return sk.JWK, nil
}

func (m *memoryManager) DeleteKey(ctx context.Context, uri types.KeyURI) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[uri]; !ok {
		return errs.ErrKeyNotFound
	}
	delete(m.keys, uri)
	return nil
}

func (m *memoryManager) GetPublicKey(ctx context.Context, uri types.KeyURI) (types.JWK, error) {
	sk, err := m.lookup(uri)
	if err != nil {
		return types.JWK{}, err
	}
	return sk.JWK.Public(), nil
}

func (m *memoryManager) GetKeyURI(jwk types.JWK) (types.KeyURI, error) {
	return corecrypto.KeyURI(jwk)
}

func (m *memoryManager) Sign(ctx context.Context, uri types.KeyURI, data []byte) ([]byte, error) {
	sk, err := m.lookup(uri)
	if err != nil {
		return nil, err
	}
	return corecrypto.Sign(sk.JWK, data)
}

func (m *memoryManager) Verify(pub types.JWK, data, signature []byte) (bool, error) {
	return corecrypto.Verify(pub, data, signature)
}

func (m *memoryManager) Encrypt(ctx context.Context, req EncryptRequest) ([]byte, error) {
	sk, err := m.lookup(req.KeyURI)
	if err != nil {
		return nil, err
	}
	key, err := corecrypto.RawSymmetricKey(sk.JWK)
	if err != nil {
		return nil, err
	}
	result, err := corecrypto.GCMEncrypt(key, req.IV, req.Data, req.AAD)
	if err != nil {
		return nil, err
	}
	return append(result.Ciphertext, result.Tag...), nil
}

func (m *memoryManager) Decrypt(ctx context.Context, req DecryptRequest) ([]byte, error) {
	sk, err := m.lookup(req.KeyURI)
	if err != nil {
		return nil, err
	}
	key, err := corecrypto.RawSymmetricKey(sk.JWK)
	if err != nil {
		return nil, err
	}
	return corecrypto.GCMDecrypt(key, req.IV, req.Ciphertext, req.Tag, req.AAD)
}

func (m *memoryManager) WrapKey(ctx context.Context, req WrapRequest) ([]byte, error) {
	sk, err := m.lookup(req.EncryptionKeyURI)
	if err != nil {
		return nil, err
	}
	kek, err := corecrypto.RawSymmetricKey(sk.JWK)
	if err != nil {
		return nil, err
	}
	if req.UnwrappedKey.Kty != "oct" {
		return nil, errs.ErrAlgorithmNotSupported
	}
	plaintext, err := corecrypto.RawSymmetricKey(req.UnwrappedKey)
	if err != nil {
		return nil, err
	}
	return corecrypto.AESKWWrap(kek, plaintext)
}

func (m *memoryManager) UnwrapKey(ctx context.Context, req UnwrapRequest) (types.JWK, error) {
	sk, err := m.lookup(req.DecryptionKeyURI)
	if err != nil {
		return types.JWK{}, err
	}
	kek, err := corecrypto.RawSymmetricKey(sk.JWK)
	if err != nil {
		return types.JWK{}, err
	}
	plaintext, err := corecrypto.AESKWUnwrap(kek, req.WrappedKeyBytes)
	if err != nil {
		return types.JWK{}, err
	}
	jwk := corecrypto.SymmetricJWKFromBytes(req.WrappedKeyAlgorithm, plaintext)
	uri, err := corecrypto.KeyURI(jwk)
	if err != nil {
		return types.JWK{}, err
	}
	jwk.Kid = string(uri[len("urn:jwk:"):])
	return jwk, nil
}
