package vault

import (
	"encoding/json"

	"github.com/sage-x-project/dwn-agent-core/corecrypto"
	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/types"
)

const (
	envelopeAlg = "PBES2-HS512+XC20PKW"
	envelopeEnc = "XC20P"
)

// The envelope's protected header is types.VaultHeader; its field order
// is the JSON serialization order, which must be identical at encrypt
// time and at every later decrypt time since the header's own bytes are
// the AEAD's additional authenticated data.

func newHeader(iterations int, salt []byte, publicJWK types.JWK) types.VaultHeader {
	return types.VaultHeader{
		Alg:        envelopeAlg,
		Enc:        envelopeEnc,
		Crit:       []string{"wrappedKey"},
		P2C:        iterations,
		P2S:        corecrypto.B64URLEncode(salt),
		WrappedKey: publicJWK,
	}
}

// envelope is the parsed form of the five-segment compact string.
type envelope struct {
	header     types.VaultHeader
	headerJSON []byte
	ciphertext []byte
	nonce      []byte
	tag        []byte
}

func (e envelope) encode() string {
	return corecrypto.B64URLEncode(e.headerJSON) + "." +
		corecrypto.B64URLEncode(e.ciphertext) + "." +
		corecrypto.B64URLEncode(e.nonce) + "." +
		corecrypto.B64URLEncode([]byte("unused")) + "." +
		corecrypto.B64URLEncode(e.tag)
}

func buildEnvelope(iterations int, salt, nonce, ciphertext, tag []byte, publicJWK types.JWK) (envelope, error) {
	h := newHeader(iterations, salt, publicJWK)
	hj, err := json.Marshal(h)
	if err != nil {
		return envelope{}, err
	}
	return envelope{header: h, headerJSON: hj, ciphertext: ciphertext, nonce: nonce, tag: tag}, nil
}

// decodeEnvelope parses the five dot-separated base64url segments back
// into an envelope. headerJSON is the literal decoded segment bytes, not
// a re-marshal of the parsed header: it must match the encrypt-time AAD
// byte-for-byte, which only the original bytes guarantee.
func decodeEnvelope(compact string) (envelope, error) {
	segs, err := splitCompact(compact)
	if err != nil {
		return envelope{}, err
	}
	headerJSON, err := corecrypto.B64URLDecode(segs[0])
	if err != nil {
		return envelope{}, errs.ErrInvalidJWK
	}
	var h types.VaultHeader
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		return envelope{}, errs.ErrInvalidJWK
	}
	ciphertext, err := corecrypto.B64URLDecode(segs[1])
	if err != nil {
		return envelope{}, errs.ErrInvalidJWK
	}
	nonce, err := corecrypto.B64URLDecode(segs[2])
	if err != nil {
		return envelope{}, errs.ErrInvalidJWK
	}
	tag, err := corecrypto.B64URLDecode(segs[4])
	if err != nil {
		return envelope{}, errs.ErrInvalidJWK
	}
	return envelope{header: h, headerJSON: headerJSON, ciphertext: ciphertext, nonce: nonce, tag: tag}, nil
}

func splitCompact(compact string) ([5]string, error) {
	var segs [5]string
	start := 0
	idx := 0
	for i := 0; i <= len(compact); i++ {
		if i == len(compact) || compact[i] == '.' {
			if idx >= 5 {
				return segs, errs.ErrInvalidJWK
			}
			segs[idx] = compact[start:i]
			idx++
			start = i + 1
		}
	}
	if idx != 5 {
		return segs, errs.ErrInvalidJWK
	}
	return segs, nil
}
