package corecrypto

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/sage-x-project/dwn-agent-core/errs"
	"golang.org/x/crypto/chacha20poly1305"
)

// AEADResult is the detached ciphertext/tag pair an encrypt call produces.
type AEADResult struct {
	Ciphertext []byte
	Tag        []byte
}

// XChaChaEncrypt seals plaintext with XChaCha20-Poly1305 (24-byte nonce,
// 16-byte tag), used by the vault envelope.
func XChaChaEncrypt(key, nonce, plaintext, aad []byte) (AEADResult, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return AEADResult{}, err
	}
	if len(nonce) != aead.NonceSize() {
		return AEADResult{}, errs.ErrInvalidJWK
	}
	sealed := aead.Seal(nil, nonce, plaintext, aad)
	return splitTag(sealed, aead.Overhead()), nil
}

// XChaChaDecrypt opens a detached ciphertext/tag pair sealed by
// XChaChaEncrypt. Returns ErrAuthenticationFailed on tag mismatch.
func XChaChaDecrypt(key, nonce, ciphertext, tag, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	pt, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, errs.ErrAuthenticationFailed
	}
	return pt, nil
}

// GCMEncrypt seals plaintext with AES-GCM (12-byte nonce, 16-byte tag),
// used for content-encryption keys managed by the Key Manager.
func GCMEncrypt(key, nonce, plaintext, aad []byte) (AEADResult, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return AEADResult{}, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return AEADResult{}, err
	}
	if len(nonce) != aead.NonceSize() {
		return AEADResult{}, errs.ErrInvalidJWK
	}
	sealed := aead.Seal(nil, nonce, plaintext, aad)
	return splitTag(sealed, aead.Overhead()), nil
}

// GCMDecrypt opens a detached ciphertext/tag pair sealed by GCMEncrypt.
// Returns ErrAuthenticationFailed on tag mismatch.
func GCMDecrypt(key, nonce, ciphertext, tag, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	pt, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, errs.ErrAuthenticationFailed
	}
	return pt, nil
}

func splitTag(sealed []byte, tagLen int) AEADResult {
	n := len(sealed) - tagLen
	return AEADResult{
		Ciphertext: append([]byte{}, sealed[:n]...),
		Tag:        append([]byte{}, sealed[n:]...),
	}
}
