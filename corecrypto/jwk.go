package corecrypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/types"
)

// GenerateJWK creates a new private key for alg and returns it as a JWK
// with all private and public members populated.
func GenerateJWK(alg types.Algorithm) (types.JWK, error) {
	switch alg {
	case types.AlgEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return types.JWK{}, err
		}
		return types.JWK{
			Kty: "OKP",
			Crv: "Ed25519",
			X:   b64Encode(pub),
			D:   b64Encode(priv.Seed()),
		}, nil

	case types.AlgSecp256k1:
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return types.JWK{}, err
		}
		ecdsaPub := priv.PubKey().ToECDSA()
		return types.JWK{
			Kty: "EC",
			Crv: "secp256k1",
			X:   b64Encode(fixedBytes(ecdsaPub.X, 32)),
			Y:   b64Encode(fixedBytes(ecdsaPub.Y, 32)),
			D:   b64Encode(priv.Serialize()),
		}, nil

	case types.AlgSecp256r1:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return types.JWK{}, err
		}
		return types.JWK{
			Kty: "EC",
			Crv: "P-256",
			X:   b64Encode(fixedBytes(priv.PublicKey.X, 32)),
			Y:   b64Encode(fixedBytes(priv.PublicKey.Y, 32)),
			D:   b64Encode(fixedBytes(priv.D, 32)),
		}, nil

	default:
		return types.JWK{}, errs.ErrAlgorithmNotSupported
	}
}

// GenerateSymmetricJWK creates a new random oct key of byteLen bytes, used
// for content-encryption and key-wrap keys.
func GenerateSymmetricJWK(alg types.Algorithm, byteLen int) (types.JWK, error) {
	k := make([]byte, byteLen)
	if _, err := rand.Read(k); err != nil {
		return types.JWK{}, err
	}
	return types.JWK{Kty: "oct", Alg: string(alg), K: b64Encode(k)}, nil
}

func fixedBytes(v *big.Int, size int) []byte {
	out := make([]byte, size)
	v.FillBytes(out)
	return out
}

// RawSymmetricKey decodes the k member of an oct JWK.
func RawSymmetricKey(jwk types.JWK) ([]byte, error) {
	if jwk.Kty != "oct" || jwk.K == "" {
		return nil, errs.ErrInvalidJWK
	}
	return b64Decode(jwk.K)
}

// SymmetricJWKFromBytes builds an oct JWK, tagged with alg, from raw key
// material — used to materialize the result of an unwrap operation.
func SymmetricJWKFromBytes(alg types.Algorithm, raw []byte) types.JWK {
	return types.JWK{Kty: "oct", Alg: string(alg), K: b64Encode(raw)}
}

// B64URLEncode and B64URLDecode expose this package's base64url codec
// (unpadded, per RFC 7515 appendix C) to callers building JWK members.
func B64URLEncode(b []byte) string { return b64Encode(b) }

func B64URLDecode(s string) ([]byte, error) { return b64Decode(s) }
