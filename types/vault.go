package types

import "time"

// VaultState is the Identity Vault's durable status metadata — it never
// holds key material itself, only whether the vault has been initialized
// and when it was last backed up or restored.
type VaultState struct {
	Initialized bool       `json:"initialized"`
	LastBackup  *time.Time `json:"lastBackup,omitempty"`
	LastRestore *time.Time `json:"lastRestore,omitempty"`
}

// VaultBackup is the exported snapshot of a vault: the compact envelope
// string plus bookkeeping metadata, as returned by Vault.Backup and
// accepted by Vault.Restore.
type VaultBackup struct {
	DateCreated time.Time `json:"dateCreated"`
	Size        int       `json:"size"`
	Data        string    `json:"data"`
}

// VaultHeader is the JSON object encoded as the first compact-envelope
// segment (the "protected header" in JOSE terms), describing how the
// envelope's ciphertext segment was produced.
type VaultHeader struct {
	Alg        string `json:"alg"`
	Enc        string `json:"enc"`
	Crit       []string `json:"crit"`
	P2C        int    `json:"p2c"`
	P2S        string `json:"p2s"`
	WrappedKey JWK    `json:"wrappedKey"`
}
