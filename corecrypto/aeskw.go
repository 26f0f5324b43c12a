package corecrypto

import (
	"crypto/aes"
	"encoding/binary"

	"github.com/sage-x-project/dwn-agent-core/errs"
)

// kwIV is the default initial value from RFC 3394 section 2.2.3.1.
var kwIV = [8]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// AESKWWrap wraps plaintextKey under kek per RFC 3394. plaintextKey must be
// a multiple of 8 bytes; output is len(plaintextKey)+8 bytes.
func AESKWWrap(kek, plaintextKey []byte) ([]byte, error) {
	if len(plaintextKey)%8 != 0 || len(plaintextKey) < 16 {
		return nil, errs.ErrInvalidJWK
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(plaintextKey) / 8
	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], plaintextKey[i*8:(i+1)*8])
	}

	a := kwIV

	var buf [16]byte
	for j := 0; j <= 5; j++ {
		for i := 0; i < n; i++ {
			copy(buf[:8], a[:])
			copy(buf[8:], r[i][:])
			block.Encrypt(buf[:], buf[:])

			copy(a[:], buf[:8])
			t := uint64(n*j + i + 1)
			xorUint64(&a, t)
			copy(r[i][:], buf[8:])
		}
	}

	out := make([]byte, 8+len(plaintextKey))
	copy(out[:8], a[:])
	for i := 0; i < n; i++ {
		copy(out[8+i*8:8+(i+1)*8], r[i][:])
	}
	return out, nil
}

// AESKWUnwrap reverses AESKWWrap, returning ErrAuthenticationFailed if the
// integrity check value does not match the RFC 3394 default IV.
func AESKWUnwrap(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped)%8 != 0 || len(wrapped) < 24 {
		return nil, errs.ErrInvalidJWK
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(wrapped)/8 - 1
	var a [8]byte
	copy(a[:], wrapped[:8])

	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], wrapped[8+i*8:8+(i+1)*8])
	}

	var buf [16]byte
	for j := 5; j >= 0; j-- {
		for i := n - 1; i >= 0; i-- {
			t := uint64(n*j + i + 1)
			xorUint64(&a, t)

			copy(buf[:8], a[:])
			copy(buf[8:], r[i][:])
			block.Decrypt(buf[:], buf[:])

			copy(a[:], buf[:8])
			copy(r[i][:], buf[8:])
		}
	}

	if a != kwIV {
		return nil, errs.ErrAuthenticationFailed
	}

	out := make([]byte, n*8)
	for i := 0; i < n; i++ {
		copy(out[i*8:(i+1)*8], r[i][:])
	}
	return out, nil
}

func xorUint64(a *[8]byte, t uint64) {
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], t)
	for i := range a {
		a[i] ^= tb[i]
	}
}
