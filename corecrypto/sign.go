package corecrypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/types"
)

// Curve identifies which signature algorithm a JWK's crv/kty selects.
type Curve string

const (
	CurveEd25519   Curve = "Ed25519"
	CurveSecp256k1 Curve = "secp256k1"
	CurveSecp256r1 Curve = "P-256"
)

// CurveOf infers the signature curve from a JWK's kty/crv members.
func CurveOf(jwk types.JWK) (Curve, error) {
	switch {
	case jwk.Kty == "OKP" && jwk.Crv == "Ed25519":
		return CurveEd25519, nil
	case jwk.Kty == "EC" && jwk.Crv == "secp256k1":
		return CurveSecp256k1, nil
	case jwk.Kty == "EC" && jwk.Crv == "P-256":
		return CurveSecp256r1, nil
	default:
		return "", errs.ErrAlgorithmNotSupported
	}
}

func b64Decode(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errs.ErrInvalidJWK
	}
	return b, nil
}

func b64Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Sign produces a signature over data using the private key jwk, selecting
// the algorithm (EdDSA / ES256K / ES256) from the JWK's curve.
func Sign(jwk types.JWK, data []byte) ([]byte, error) {
	curve, err := CurveOf(jwk)
	if err != nil {
		return nil, err
	}
	d, err := b64Decode(jwk.D)
	if err != nil {
		return nil, err
	}

	switch curve {
	case CurveEd25519:
		if len(d) != ed25519.SeedSize {
			return nil, errs.ErrInvalidJWK
		}
		priv := ed25519.NewKeyFromSeed(d)
		return ed25519.Sign(priv, data), nil

	case CurveSecp256k1:
		priv := secp256k1.PrivKeyFromBytes(d)
		digest := sha256.Sum256(data)
		sig := dcrecdsa.Sign(priv, digest[:])
		return sig.Serialize(), nil

	case CurveSecp256r1:
		priv := new(ecdsa.PrivateKey)
		priv.Curve = elliptic.P256()
		priv.D = new(big.Int).SetBytes(d)
		priv.PublicKey.X, priv.PublicKey.Y = priv.Curve.ScalarBaseMult(d)
		digest := sha256.Sum256(data)
		r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
		if err != nil {
			return nil, err
		}
		return marshalRS(r, s, 32), nil
	}
	return nil, errs.ErrAlgorithmNotSupported
}

// Verify checks signature against data using the public JWK pub,
// inferring the algorithm from its curve.
func Verify(pub types.JWK, data, signature []byte) (bool, error) {
	curve, err := CurveOf(pub)
	if err != nil {
		return false, err
	}
	x, err := b64Decode(pub.X)
	if err != nil {
		return false, err
	}

	switch curve {
	case CurveEd25519:
		if len(x) != ed25519.PublicKeySize {
			return false, errs.ErrInvalidJWK
		}
		return ed25519.Verify(ed25519.PublicKey(x), data, signature), nil

	case CurveSecp256k1:
		y, err := b64Decode(pub.Y)
		if err != nil {
			return false, err
		}
		pk, err := secp256k1PublicFromXY(x, y)
		if err != nil {
			return false, err
		}
		sig, err := dcrecdsa.ParseDERSignature(signature)
		if err != nil {
			return false, nil
		}
		digest := sha256.Sum256(data)
		return sig.Verify(digest[:], pk), nil

	case CurveSecp256r1:
		y, err := b64Decode(pub.Y)
		if err != nil {
			return false, err
		}
		pk := &ecdsa.PublicKey{Curve: elliptic.P256(), X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)}
		r, s, err := unmarshalRS(signature, 32)
		if err != nil {
			return false, nil
		}
		digest := sha256.Sum256(data)
		return ecdsa.Verify(pk, digest[:], r, s), nil
	}
	return false, errs.ErrAlgorithmNotSupported
}

func secp256k1PublicFromXY(x, y []byte) (*secp256k1.PublicKey, error) {
	xb := make([]byte, 32)
	copy(xb[32-len(x):], x)
	yb := make([]byte, 32)
	copy(yb[32-len(y):], y)
	sec1 := make([]byte, 0, 65)
	sec1 = append(sec1, 0x04)
	sec1 = append(sec1, xb...)
	sec1 = append(sec1, yb...)
	pk, err := secp256k1.ParsePubKey(sec1)
	if err != nil {
		return nil, errs.ErrInvalidJWK
	}
	return pk, nil
}

// marshalRS encodes an ECDSA (r, s) pair as fixed-width big-endian halves,
// the IEEE P1363 format JOSE/ES256 signatures use (as opposed to ASN.1 DER).
func marshalRS(r, s *big.Int, size int) []byte {
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])
	return out
}

func unmarshalRS(sig []byte, size int) (r, s *big.Int, err error) {
	if len(sig) != 2*size {
		return nil, nil, errs.ErrInvalidJWK
	}
	r = new(big.Int).SetBytes(sig[:size])
	s = new(big.Int).SetBytes(sig[size:])
	return r, s, nil
}
