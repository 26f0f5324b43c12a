package types

// Algorithm identifies a cryptographic algorithm a Stored Key or wrap
// operation is tagged with. String values match the JWA-ish algorithm
// identifiers used throughout the vault envelope and wrap/unwrap fixtures.
type Algorithm string

const (
	AlgEd25519   Algorithm = "Ed25519"
	AlgSecp256k1 Algorithm = "secp256k1"
	AlgSecp256r1 Algorithm = "secp256r1"
	AlgA128KW    Algorithm = "A128KW"
	AlgA192KW    Algorithm = "A192KW"
	AlgA256KW    Algorithm = "A256KW"
	AlgA128GCM   Algorithm = "A128GCM"
	AlgA192GCM   Algorithm = "A192GCM"
	AlgA256GCM   Algorithm = "A256GCM"
)

// KeyURI is the stable handle for a key: urn:jwk:<thumbprint>. It is the
// only representation of a key other components are allowed to hold.
type KeyURI string

// JWK is a JSON Web Key in the narrow shape this core needs: OKP (Ed25519),
// EC (secp256k1 / secp256r1) and oct (symmetric) keys. Unlike a general
// JOSE library's key type, this struct carries the secp256k1 "crv" value
// directly, which the standard JWA registry — and therefore every
// off-the-shelf JWK library in the ecosystem — does not recognize.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	D   string `json:"d,omitempty"`
	K   string `json:"k,omitempty"`
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`
}

// Public returns a copy of the JWK with all private-key members stripped.
func (j JWK) Public() JWK {
	pub := j
	pub.D = ""
	pub.K = ""
	return pub
}

// IsPrivate reports whether the JWK carries private-key material.
func (j JWK) IsPrivate() bool {
	return j.D != "" || (j.Kty == "oct" && j.K != "")
}

// StoredKey is a private JWK tagged with the algorithm it was generated or
// imported for, as kept by the Key Manager's content-addressed store.
type StoredKey struct {
	URI       KeyURI
	Algorithm Algorithm
	JWK       JWK
}
