// Package tenant implements the tenant resolver: a pure function
// determining the DID a data-store operation runs under when the caller
// doesn't name one explicitly.
package tenant

import "github.com/sage-x-project/dwn-agent-core/errs"

// Resolve returns the DID a Typed Data Store operation should run
// against: explicit, if given; otherwise subject; otherwise agentDID.
// Fails TenantResolutionFailed only if none of the three is set — the
// agent DID is expected to always be present in practice.
func Resolve(agentDID, explicit, subject string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if subject != "" {
		return subject, nil
	}
	if agentDID != "" {
		return agentDID, nil
	}
	return "", errs.ErrTenantResolutionFailed
}
