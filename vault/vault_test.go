package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/types"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(context.Background(), NewMemoryStore(), Options{WorkFactor: 1000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestPasswordRoundTrip(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)

	if _, err := v.Initialize(ctx, "pw-0", nil, types.AlgSecp256k1); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := v.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := v.Unlock(ctx, "pw-0"); err != nil {
		t.Fatalf("Unlock(pw-0): %v", err)
	}
	if err := v.Unlock(ctx, "wrong"); !errors.Is(err, errs.ErrInvalidPassword) {
		t.Fatalf("Unlock(wrong) = %v, want ErrInvalidPassword", err)
	}
	if err := v.ChangePassword(ctx, "pw-0", "pw-1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if err := v.Unlock(ctx, "pw-0"); !errors.Is(err, errs.ErrInvalidPassword) {
		t.Fatalf("Unlock(pw-0) after change = %v, want ErrInvalidPassword", err)
	}
	if err := v.Unlock(ctx, "pw-1"); err != nil {
		t.Fatalf("Unlock(pw-1): %v", err)
	}
}

func TestInitializeTwiceFails(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)
	if _, err := v.Initialize(ctx, "pw-0", nil, types.AlgEd25519); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := v.Initialize(ctx, "pw-0", nil, types.AlgEd25519); !errors.Is(err, errs.ErrAlreadyInitialized) {
		t.Fatalf("second Initialize = %v, want ErrAlreadyInitialized", err)
	}
}

func TestUnlockBeforeInitializeFails(t *testing.T) {
	v := newTestVault(t)
	if err := v.Unlock(context.Background(), "pw"); !errors.Is(err, errs.ErrNotInitialized) {
		t.Fatalf("Unlock = %v, want ErrNotInitialized", err)
	}
}

func TestLockedPreventsPrivateKeyAccess(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)
	if _, err := v.Initialize(ctx, "pw-0", nil, types.AlgEd25519); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := v.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := v.PrivateKey(); !errors.Is(err, errs.ErrLocked) {
		t.Fatalf("PrivateKey while locked = %v, want ErrLocked", err)
	}
}

func TestUnlockRecoversExactPrivateKeyBytes(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)
	pub, err := v.Initialize(ctx, "pw-0", nil, types.AlgSecp256k1)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := v.Unlock(ctx, "pw-0"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	priv, err := v.PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey: %v", err)
	}
	if priv.X != pub.X || priv.Y != pub.Y {
		t.Fatalf("private key public members do not match returned public key")
	}

	if err := v.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := v.Unlock(ctx, "pw-0"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	priv2, err := v.PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey after unlock: %v", err)
	}
	if priv2.D != priv.D {
		t.Fatalf("recovered private key bytes differ across lock/unlock")
	}
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)
	if _, err := v.Initialize(ctx, "pw-0", nil, types.AlgEd25519); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	backup, err := v.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if backup.Size == 0 {
		t.Fatalf("backup size is zero")
	}

	v2 := newTestVault(t)
	if err := v2.Restore(ctx, backup, "wrong"); err == nil {
		t.Fatalf("Restore with wrong password should fail")
	}
	if v2.IsUnlocked() {
		t.Fatalf("failed restore must not unlock the vault")
	}

	if err := v2.Restore(ctx, backup, "pw-0"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !v2.IsUnlocked() {
		t.Fatalf("successful restore should leave the vault unlocked")
	}
}
