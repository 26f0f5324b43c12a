package keymanager

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/types"
)

func TestGenerateSignVerify(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	for _, alg := range []types.Algorithm{types.AlgEd25519, types.AlgSecp256k1, types.AlgSecp256r1} {
		uri, err := m.GenerateKey(ctx, alg)
		if err != nil {
			t.Fatalf("GenerateKey(%s): %v", alg, err)
		}

		pub, err := m.GetPublicKey(ctx, uri)
		if err != nil {
			t.Fatalf("GetPublicKey: %v", err)
		}
		if pub.IsPrivate() {
			t.Fatalf("GetPublicKey leaked private material for %s", alg)
		}

		data := []byte("message")
		sig, err := m.Sign(ctx, uri, data)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		ok, err := m.Verify(pub, data, sig)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if !ok {
			t.Fatalf("Verify returned false for %s", alg)
		}
	}
}

func TestGetKeyURIMatchesPublicAndPrivate(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	uri, err := m.GenerateKey(ctx, types.AlgEd25519)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	priv, err := m.ExportKey(ctx, uri)
	if err != nil {
		t.Fatalf("ExportKey: %v", err)
	}
	pub, err := m.GetPublicKey(ctx, uri)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}
	uriFromPriv, err := m.GetKeyURI(priv)
	if err != nil {
		t.Fatalf("GetKeyURI(priv): %v", err)
	}
	uriFromPub, err := m.GetKeyURI(pub)
	if err != nil {
		t.Fatalf("GetKeyURI(pub): %v", err)
	}
	if uriFromPriv != uri || uriFromPub != uri {
		t.Fatalf("key URI not stable across public/private form: %s / %s / %s", uri, uriFromPriv, uriFromPub)
	}
}

func TestDeleteAndNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	uri, err := m.GenerateKey(ctx, types.AlgEd25519)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if err := m.DeleteKey(ctx, uri); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
	if _, err := m.ExportKey(ctx, uri); !errors.Is(err, errs.ErrKeyNotFound) {
		t.Fatalf("ExportKey after delete = %v, want ErrKeyNotFound", err)
	}
	if err := m.DeleteKey(ctx, uri); !errors.Is(err, errs.ErrKeyNotFound) {
		t.Fatalf("second DeleteKey = %v, want ErrKeyNotFound", err)
	}
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	kekURI, err := m.GenerateKey(ctx, types.AlgA256KW)
	if err != nil {
		t.Fatalf("GenerateKey(kek): %v", err)
	}
	cekURI, err := m.GenerateKey(ctx, types.AlgA256GCM)
	if err != nil {
		t.Fatalf("GenerateKey(cek): %v", err)
	}
	cek, err := m.ExportKey(ctx, cekURI)
	if err != nil {
		t.Fatalf("ExportKey(cek): %v", err)
	}

	wrapped, err := m.WrapKey(ctx, WrapRequest{EncryptionKeyURI: kekURI, UnwrappedKey: cek})
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}
	unwrapped, err := m.UnwrapKey(ctx, UnwrapRequest{
		WrappedKeyBytes:     wrapped,
		WrappedKeyAlgorithm: types.AlgA256GCM,
		DecryptionKeyURI:    kekURI,
	})
	if err != nil {
		t.Fatalf("UnwrapKey: %v", err)
	}
	if unwrapped.K != cek.K {
		t.Fatalf("unwrapped key material differs from original")
	}
	if unwrapped.Alg != string(types.AlgA256GCM) {
		t.Fatalf("unwrapped alg = %s, want %s", unwrapped.Alg, types.AlgA256GCM)
	}
}

func TestWrapKeyFixture(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	kek := types.JWK{Kty: "oct", Alg: "A256KW", K: "47Fn3ZXGbmntoAKErKN5-d7yuwMejCJtOqgAeq_Ojk0"}
	kekURI, err := m.ImportKey(ctx, kek)
	if err != nil {
		t.Fatalf("ImportKey(kek): %v", err)
	}

	wrapped, err := hex.DecodeString("8c55fb6fc4c7bb0b6b483df65ba52bee7ed6e0f861ac8097b2394f61067d1157901295aba72c514b")
	if err != nil {
		t.Fatalf("decode wrapped: %v", err)
	}
	unwrapped, err := m.UnwrapKey(ctx, UnwrapRequest{
		WrappedKeyBytes:     wrapped,
		WrappedKeyAlgorithm: types.AlgA256GCM,
		DecryptionKeyURI:    kekURI,
	})
	if err != nil {
		t.Fatalf("UnwrapKey: %v", err)
	}
	if unwrapped.K != "hX-1yAAU6aZCwGqViYfAhIiaTyu1PURMswoI4IQmiY4" {
		t.Fatalf("unwrapped k = %s, want fixture value", unwrapped.K)
	}

	rewrapped, err := m.WrapKey(ctx, WrapRequest{EncryptionKeyURI: kekURI, UnwrappedKey: unwrapped})
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}
	if !bytes.Equal(rewrapped, wrapped) {
		t.Fatalf("rewrapped = %x, want %x", rewrapped, wrapped)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	uri, err := m.GenerateKey(ctx, types.AlgA128GCM)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	iv := make([]byte, 12)
	plaintext := []byte("content key payload")

	sealed, err := m.Encrypt(ctx, EncryptRequest{KeyURI: uri, Data: plaintext, IV: iv})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ciphertext, tag := sealed[:len(sealed)-16], sealed[len(sealed)-16:]

	got, err := m.Decrypt(ctx, DecryptRequest{KeyURI: uri, Ciphertext: ciphertext, Tag: tag, IV: iv})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestGenerateKeyUnsupportedAlgorithm(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	if _, err := m.GenerateKey(ctx, types.Algorithm("bogus")); !errors.Is(err, errs.ErrAlgorithmNotSupported) {
		t.Fatalf("got %v, want ErrAlgorithmNotSupported", err)
	}
}

func TestDeterministicManagerReturnsPredefinedKeysInOrder(t *testing.T) {
	ctx := context.Background()
	dm := NewDeterministicManager()

	a := types.JWK{Kty: "OKP", Crv: "Ed25519", X: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", D: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"}
	b := types.JWK{Kty: "oct", Alg: "A256KW", K: "47Fn3ZXGbmntoAKErKN5-d7yuwMejCJtOqgAeq_Ojk0"}
	dm.AddPredefinedKeys([]types.JWK{a, b})

	uri1, err := dm.GenerateKey(ctx, types.AlgEd25519)
	if err != nil {
		t.Fatalf("GenerateKey 1: %v", err)
	}
	wantURI1, _ := (&memoryManager{}).GetKeyURI(a)
	if uri1 != wantURI1 {
		t.Fatalf("first key uri = %s, want %s", uri1, wantURI1)
	}

	uri2, err := dm.GenerateKey(ctx, types.AlgA256KW)
	if err != nil {
		t.Fatalf("GenerateKey 2: %v", err)
	}
	wantURI2, _ := (&memoryManager{}).GetKeyURI(b)
	if uri2 != wantURI2 {
		t.Fatalf("second key uri = %s, want %s", uri2, wantURI2)
	}

	uri3, err := dm.GenerateKey(ctx, types.AlgSecp256k1)
	if err != nil {
		t.Fatalf("GenerateKey 3 (fallback to random): %v", err)
	}
	if uri3 == "" {
		t.Fatalf("expected a generated key uri once predefined queue is exhausted")
	}
}
