// Package corecrypto implements the crypto primitives component: the
// password-based KDFs, AEADs, key wrap, signature algorithms and JWK
// thumbprint the rest of the agent core builds on. Every function here
// is pure with respect to its inputs — no package-level state, no
// randomness except where the operation itself calls for it (nonce/salt
// generation).
package corecrypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"io"

	"github.com/sage-x-project/dwn-agent-core/errs"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// HashAlg identifies a hash function accepted by PBKDF2 and HKDF.
type HashAlg string

const (
	SHA256 HashAlg = "SHA-256"
	SHA384 HashAlg = "SHA-384"
	SHA512 HashAlg = "SHA-512"
)

// MinIterationsSHA256 and MinIterationsSHA512 are the floors the vault's
// PBKDF2 call SHOULD warn below, per the component contract. They are
// advisory only — WarnIfBelowFloor is the caller's opt-in check, PBKDF2
// itself never rejects a low iteration count.
const (
	MinIterationsSHA256 = 600_000
	MinIterationsSHA512 = 210_000
)

func hashFunc(alg HashAlg) (func() hash.Hash, error) {
	switch alg {
	case SHA256:
		return sha256.New, nil
	case SHA384:
		return sha512.New384, nil
	case SHA512:
		return sha512.New, nil
	default:
		return nil, errs.ErrUnsupportedHash
	}
}

// PBKDF2 derives outBits/8 bytes of key material from password and salt
// using the given hash and iteration count.
func PBKDF2(password, salt []byte, iterations int, alg HashAlg, outBits int) ([]byte, error) {
	hf, err := hashFunc(alg)
	if err != nil {
		return nil, err
	}
	return pbkdf2.Key(password, salt, iterations, outBits/8, hf), nil
}

// WarnIfBelowFloor reports whether iterations falls below the recommended
// floor for alg, so a caller's logger can emit a warning without PBKDF2
// itself having an opinion about rejecting the call.
func WarnIfBelowFloor(iterations int, alg HashAlg) bool {
	switch alg {
	case SHA256:
		return iterations < MinIterationsSHA256
	case SHA512:
		return iterations < MinIterationsSHA512
	default:
		return false
	}
}

// HKDF derives outBits/8 bytes from ikm via HKDF-Extract-and-Expand. salt
// and info default to empty when nil.
func HKDF(ikm, salt, info []byte, alg HashAlg, outBits int) ([]byte, error) {
	hf, err := hashFunc(alg)
	if err != nil {
		return nil, err
	}
	r := hkdf.New(hf, ikm, salt, info)
	out := make([]byte, outBits/8)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
