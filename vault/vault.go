// Package vault implements the Identity Vault: the state machine that
// protects an agent's DID private key material behind a password, using a
// compact authenticated-encryption envelope modeled on JOSE's JWE compact
// serialization (adapted here since the curve and KDF choices are not
// ones a standard JWE library supports end to end).
package vault

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/sage-x-project/dwn-agent-core/corecrypto"
	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/logger"
	"github.com/sage-x-project/dwn-agent-core/types"
)

type state int

const (
	stateUninitialized state = iota
	stateLocked
	stateUnlocked
)

const (
	envelopeKey = "vault.envelope"
	metaKey     = "vault.meta"

	saltInputInfo = "vault_unlock_salt"
	nonceSize     = 24
	vukSize       = 32
)

// Vault is the agent's Identity Vault. Zero value is not usable; construct
// with New.
type Vault struct {
	mu    sync.Mutex
	store Store

	st state

	workFactor int

	vuk        []byte
	privateJWK types.JWK
}

// Options configures a Vault's KDF work factor. WorkFactor defaults to
// corecrypto.MinIterationsSHA512 (210,000) when zero.
type Options struct {
	WorkFactor int
}

// New constructs a Vault backed by store, resuming Uninitialized or
// Locked state depending on whether a prior envelope is persisted.
func New(ctx context.Context, store Store, opts Options) (*Vault, error) {
	wf := opts.WorkFactor
	if wf == 0 {
		wf = corecrypto.MinIterationsSHA512
	}
	v := &Vault{store: store, workFactor: wf, st: stateUninitialized}

	_, ok, err := store.Get(ctx, envelopeKey)
	if err != nil {
		return nil, err
	}
	if ok {
		v.st = stateLocked
	}
	return v, nil
}

// Meta is the vault's small persisted metadata record.
type Meta struct {
	Initialized bool       `json:"initialized"`
	LastBackup  *time.Time `json:"lastBackup"`
	LastRestore *time.Time `json:"lastRestore"`
}

func (v *Vault) readMeta(ctx context.Context) (Meta, error) {
	raw, ok, err := v.store.Get(ctx, metaKey)
	if err != nil {
		return Meta{}, err
	}
	if !ok {
		return Meta{}, nil
	}
	var m Meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

func (v *Vault) writeMeta(ctx context.Context, m Meta) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return v.store.Put(ctx, metaKey, raw)
}

// Initialize runs the initialization algorithm for password, generating a
// fresh identity key pair for algorithm (or using identityKey if it
// already carries private material). It fails with ErrAlreadyInitialized
// unless the vault is Uninitialized.
func (v *Vault) Initialize(ctx context.Context, password string, identityKey *types.JWK, algorithm types.Algorithm) (types.JWK, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.st != stateUninitialized {
		return types.JWK{}, errs.ErrAlreadyInitialized
	}

	var priv types.JWK
	if identityKey != nil && identityKey.IsPrivate() {
		priv = *identityKey
	} else {
		var err error
		priv, err = corecrypto.GenerateJWK(algorithm)
		if err != nil {
			return types.JWK{}, err
		}
	}
	pub := priv.Public()

	pubKeyBytes, err := publicKeyBytes(pub)
	if err != nil {
		return types.JWK{}, err
	}
	saltInput, err := corecrypto.HKDF(pubKeyBytes, nil, []byte(saltInputInfo), corecrypto.SHA256, 256)
	if err != nil {
		return types.JWK{}, err
	}
	salt := append(append([]byte(envelopeAlg), 0x00), saltInput...)

	if corecrypto.WarnIfBelowFloor(v.workFactor, corecrypto.SHA512) {
		logger.Warnf("vault: keyDerivationWorkFactor %d is below the recommended floor for SHA-512", v.workFactor)
	}

	vuk, err := corecrypto.PBKDF2([]byte(password), salt, v.workFactor, corecrypto.SHA512, vukSize*8)
	if err != nil {
		return types.JWK{}, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return types.JWK{}, err
	}

	privKeyBytes, err := corecrypto.B64URLDecode(priv.D)
	if err != nil {
		return types.JWK{}, err
	}

	env, err := buildEnvelope(v.workFactor, salt, nonce, nil, nil, pub)
	if err != nil {
		return types.JWK{}, err
	}
	result, err := corecrypto.XChaChaEncrypt(vuk, nonce, privKeyBytes, env.headerJSON)
	if err != nil {
		return types.JWK{}, err
	}
	env.ciphertext = result.Ciphertext
	env.tag = result.Tag

	if err := v.store.Put(ctx, envelopeKey, []byte(env.encode())); err != nil {
		return types.JWK{}, err
	}
	if err := v.writeMeta(ctx, Meta{Initialized: true}); err != nil {
		return types.JWK{}, err
	}

	v.st = stateLocked
	return pub, nil
}

// publicKeyBytes returns the raw bytes the initialization algorithm hashes
// as the identity public key: x for OKP keys, x||y for EC keys.
func publicKeyBytes(pub types.JWK) ([]byte, error) {
	x, err := corecrypto.B64URLDecode(pub.X)
	if err != nil {
		return nil, err
	}
	if pub.Y == "" {
		return x, nil
	}
	y, err := corecrypto.B64URLDecode(pub.Y)
	if err != nil {
		return nil, err
	}
	return append(x, y...), nil
}

// Unlock validates password against the persisted envelope, caching the
// decrypted private key and unlock key on success. It may be called
// repeatedly regardless of current Locked/Unlocked state — each call
// independently re-validates the password.
func (v *Vault) Unlock(ctx context.Context, password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unlockLocked(ctx, password)
}

func (v *Vault) unlockLocked(ctx context.Context, password string) error {
	if v.st == stateUninitialized {
		return errs.ErrNotInitialized
	}

	raw, ok, err := v.store.Get(ctx, envelopeKey)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrNotInitialized
	}

	priv, vuk, err := decryptEnvelope(string(raw), password)
	if err != nil {
		return err
	}

	v.vuk = vuk
	v.privateJWK = priv
	v.st = stateUnlocked
	return nil
}

// decryptEnvelope recomputes vuk from the stored header and password and
// decrypts the envelope, returning the reconstructed private JWK (header's
// wrappedKey public members plus the decrypted d) and the derived vuk.
func decryptEnvelope(compact, password string) (types.JWK, []byte, error) {
	env, err := decodeEnvelope(compact)
	if err != nil {
		return types.JWK{}, nil, err
	}
	salt, err := corecrypto.B64URLDecode(env.header.P2S)
	if err != nil {
		return types.JWK{}, nil, errs.ErrInvalidJWK
	}
	vuk, err := corecrypto.PBKDF2([]byte(password), salt, env.header.P2C, corecrypto.SHA512, vukSize*8)
	if err != nil {
		return types.JWK{}, nil, err
	}
	plaintext, err := corecrypto.XChaChaDecrypt(vuk, env.nonce, env.ciphertext, env.tag, env.headerJSON)
	if err != nil {
		return types.JWK{}, nil, errs.ErrInvalidPassword
	}

	priv := env.header.WrappedKey
	priv.D = corecrypto.B64URLEncode(plaintext)
	return priv, vuk, nil
}

// Lock overwrites the in-memory unlock key and cached private key with
// zeros. It is immediate and may be called from Locked or Unlocked state;
// on an uninitialized vault it returns ErrNotInitialized.
func (v *Vault) Lock(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.st == stateUninitialized {
		return errs.ErrNotInitialized
	}
	for i := range v.vuk {
		v.vuk[i] = 0
	}
	v.vuk = nil
	v.privateJWK = types.JWK{}
	v.st = stateLocked
	return nil
}

// ChangePassword requires a successful unlock with oldPassword, then
// re-derives vuk from newPassword and re-encrypts the stored private key
// material under it.
func (v *Vault) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.unlockLocked(ctx, oldPassword); err != nil {
		return err
	}

	pub := v.privateJWK.Public()
	pubKeyBytes, err := publicKeyBytes(pub)
	if err != nil {
		return err
	}
	saltInput, err := corecrypto.HKDF(pubKeyBytes, nil, []byte(saltInputInfo), corecrypto.SHA256, 256)
	if err != nil {
		return err
	}
	salt := append(append([]byte(envelopeAlg), 0x00), saltInput...)

	newVuk, err := corecrypto.PBKDF2([]byte(newPassword), salt, v.workFactor, corecrypto.SHA512, vukSize*8)
	if err != nil {
		return err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	privKeyBytes, err := corecrypto.B64URLDecode(v.privateJWK.D)
	if err != nil {
		return err
	}
	env, err := buildEnvelope(v.workFactor, salt, nonce, nil, nil, pub)
	if err != nil {
		return err
	}
	result, err := corecrypto.XChaChaEncrypt(newVuk, nonce, privKeyBytes, env.headerJSON)
	if err != nil {
		return err
	}
	env.ciphertext = result.Ciphertext
	env.tag = result.Tag

	if err := v.store.Put(ctx, envelopeKey, []byte(env.encode())); err != nil {
		return err
	}

	for i := range v.vuk {
		v.vuk[i] = 0
	}
	v.vuk = newVuk
	v.st = stateUnlocked
	return nil
}

// Backup returns the current persisted envelope as a portable record.
func (v *Vault) Backup(ctx context.Context) (types.VaultBackup, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw, ok, err := v.store.Get(ctx, envelopeKey)
	if err != nil {
		return types.VaultBackup{}, err
	}
	if !ok {
		return types.VaultBackup{}, errs.ErrNotInitialized
	}

	now := time.Now().UTC()
	meta, err := v.readMeta(ctx)
	if err != nil {
		return types.VaultBackup{}, err
	}
	meta.LastBackup = &now
	if err := v.writeMeta(ctx, meta); err != nil {
		return types.VaultBackup{}, err
	}

	return types.VaultBackup{DateCreated: now, Size: len(raw), Data: string(raw)}, nil
}

// Restore swaps the persisted envelope for backup.Data only after
// decrypting it with password succeeds; on failure the current envelope
// is left untouched.
func (v *Vault) Restore(ctx context.Context, backup types.VaultBackup, password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	priv, vuk, err := decryptEnvelope(backup.Data, password)
	if err != nil {
		return err
	}

	if err := v.store.Put(ctx, envelopeKey, []byte(backup.Data)); err != nil {
		return err
	}
	now := time.Now().UTC()
	meta, err := v.readMeta(ctx)
	if err != nil {
		return err
	}
	meta.Initialized = true
	meta.LastRestore = &now
	if err := v.writeMeta(ctx, meta); err != nil {
		return err
	}

	for i := range v.vuk {
		v.vuk[i] = 0
	}
	v.vuk = vuk
	v.privateJWK = priv
	v.st = stateUnlocked
	return nil
}

// PrivateKey returns the cached private JWK. Requires Unlocked state.
func (v *Vault) PrivateKey() (types.JWK, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.st != stateUnlocked {
		return types.JWK{}, errs.ErrLocked
	}
	return v.privateJWK, nil
}

// PublicKey returns the public JWK from the persisted envelope header,
// available whenever the vault is Initialized regardless of lock state.
func (v *Vault) PublicKey(ctx context.Context) (types.JWK, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	raw, ok, err := v.store.Get(ctx, envelopeKey)
	if err != nil {
		return types.JWK{}, err
	}
	if !ok {
		return types.JWK{}, errs.ErrNotInitialized
	}
	env, err := decodeEnvelope(string(raw))
	if err != nil {
		return types.JWK{}, err
	}
	return env.header.WrappedKey, nil
}

// IsUnlocked reports whether the vault currently holds a valid unlock key.
func (v *Vault) IsUnlocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.st == stateUnlocked
}
