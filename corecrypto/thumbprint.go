package corecrypto

import (
	"crypto/sha256"
	"fmt"

	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/types"
)

// Thumbprint computes the RFC 7638 JWK thumbprint: the SHA-256 digest of
// the JWK's required members, serialized as JSON with lexicographically
// ordered keys and no insignificant whitespace. secp256k1 is not one of
// the curves RFC 7518 names, but the same canonicalization applies to it
// unchanged — this is why the computation is hand-rolled here rather than
// delegated to a JOSE library that validates crv against a fixed set.
func Thumbprint(jwk types.JWK) (string, error) {
	canonical, err := canonicalJSON(jwk)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return b64Encode(sum[:]), nil
}

// KeyURI computes the urn:jwk: handle for jwk, the only reference other
// components may hold to a key the Key Manager owns.
func KeyURI(jwk types.JWK) (types.KeyURI, error) {
	tp, err := Thumbprint(jwk)
	if err != nil {
		return "", err
	}
	return types.KeyURI("urn:jwk:" + tp), nil
}

// canonicalJSON builds the exact byte sequence RFC 7638 section 3.2
// specifies for each key type, in field order, with no library-controlled
// map ordering involved.
func canonicalJSON(jwk types.JWK) ([]byte, error) {
	switch jwk.Kty {
	case "OKP":
		if jwk.Crv == "" || jwk.X == "" {
			return nil, errs.ErrInvalidJWK
		}
		return []byte(fmt.Sprintf(`{"crv":%q,"kty":"OKP","x":%q}`, jwk.Crv, jwk.X)), nil
	case "EC":
		if jwk.Crv == "" || jwk.X == "" || jwk.Y == "" {
			return nil, errs.ErrInvalidJWK
		}
		return []byte(fmt.Sprintf(`{"crv":%q,"kty":"EC","x":%q,"y":%q}`, jwk.Crv, jwk.X, jwk.Y)), nil
	case "oct":
		if jwk.K == "" {
			return nil, errs.ErrInvalidJWK
		}
		return []byte(fmt.Sprintf(`{"k":%q,"kty":"oct"}`, jwk.K)), nil
	default:
		return nil, errs.ErrAlgorithmNotSupported
	}
}
