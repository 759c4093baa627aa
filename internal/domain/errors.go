package domain

import "errors"

// Infrastructure failures are the only conditions that surface as Go errors
// from the governance pipeline. Everything denial-shaped is data, not error.
var (
	// ErrStorageUnavailable marks an audit persistence failure. The engine
	// fails closed on it: a decision that cannot be durably recorded is
	// converted to a denial rather than executing un-audited.
	ErrStorageUnavailable = errors.New("audit storage unavailable")

	// ErrApprovalNotFound keeps approval lookups consistent across stores.
	ErrApprovalNotFound = errors.New("approval not found")
)
