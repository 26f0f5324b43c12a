// Package errs defines the error kinds shared across the agent core, one
// sentinel per failure mode named in the component contracts. Components
// wrap these with fmt.Errorf("...: %w", ...) so callers can still use
// errors.Is against the sentinel after context is attached.
package errs

import "errors"

// Auth / crypto
var (
	ErrInvalidPassword       = errors.New("invalid password")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrAlgorithmNotSupported = errors.New("algorithm not supported")
	ErrUnsupportedHash       = errors.New("unsupported hash")
	ErrInvalidJWK            = errors.New("invalid jwk")
)

// State
var (
	ErrNotInitialized     = errors.New("not initialized")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrLocked             = errors.New("locked")
	ErrNoChangesDetected  = errors.New("no changes detected")
)

// Lookup
var (
	ErrKeyNotFound      = errors.New("key not found")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrRecordNotFound   = errors.New("record not found")
	ErrDwnInconsistent  = errors.New("dwn inconsistent")
)

// Protocol / store
var (
	ErrDuplicateEntry        = errors.New("duplicate entry")
	ErrObjectTooLarge        = errors.New("object too large")
	ErrProtocolInstallFailed = errors.New("protocol install failed")
	ErrWriteFailed           = errors.New("write failed")
	ErrDeleteFailed          = errors.New("delete failed")
)

// Remote
var (
	ErrEndpointUnreachable = errors.New("endpoint unreachable")
	ErrResolutionFailed    = errors.New("resolution failed")
	ErrMethodNotSupported  = errors.New("method not supported")
)

// Composite
var ErrTenantResolutionFailed = errors.New("tenant resolution failed")

// Code returns the stable string code for a sentinel, falling back to
// "UNKNOWN" for errors that don't originate from this package. Matches the
// Code field the teacher's SAGEVerificationError carries, minus the
// per-instance message/detail payload this core has no transport to send.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPassword):
		return "INVALID_PASSWORD"
	case errors.Is(err, ErrAuthenticationFailed):
		return "AUTHENTICATION_FAILED"
	case errors.Is(err, ErrAlgorithmNotSupported):
		return "ALGORITHM_NOT_SUPPORTED"
	case errors.Is(err, ErrUnsupportedHash):
		return "UNSUPPORTED_HASH"
	case errors.Is(err, ErrInvalidJWK):
		return "INVALID_JWK"
	case errors.Is(err, ErrNotInitialized):
		return "NOT_INITIALIZED"
	case errors.Is(err, ErrAlreadyInitialized):
		return "ALREADY_INITIALIZED"
	case errors.Is(err, ErrLocked):
		return "LOCKED"
	case errors.Is(err, ErrNoChangesDetected):
		return "NO_CHANGES_DETECTED"
	case errors.Is(err, ErrKeyNotFound):
		return "KEY_NOT_FOUND"
	case errors.Is(err, ErrIdentityNotFound):
		return "IDENTITY_NOT_FOUND"
	case errors.Is(err, ErrRecordNotFound):
		return "RECORD_NOT_FOUND"
	case errors.Is(err, ErrDwnInconsistent):
		return "DWN_INCONSISTENT"
	case errors.Is(err, ErrDuplicateEntry):
		return "DUPLICATE_ENTRY"
	case errors.Is(err, ErrObjectTooLarge):
		return "OBJECT_TOO_LARGE"
	case errors.Is(err, ErrProtocolInstallFailed):
		return "PROTOCOL_INSTALL_FAILED"
	case errors.Is(err, ErrWriteFailed):
		return "WRITE_FAILED"
	case errors.Is(err, ErrDeleteFailed):
		return "DELETE_FAILED"
	case errors.Is(err, ErrEndpointUnreachable):
		return "ENDPOINT_UNREACHABLE"
	case errors.Is(err, ErrResolutionFailed):
		return "RESOLUTION_FAILED"
	case errors.Is(err, ErrMethodNotSupported):
		return "METHOD_NOT_SUPPORTED"
	case errors.Is(err, ErrTenantResolutionFailed):
		return "TENANT_RESOLUTION_FAILED"
	default:
		return "UNKNOWN"
	}
}
