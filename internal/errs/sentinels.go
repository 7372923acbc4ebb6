// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a nonce or order id was already accepted (unique constraint hit).
	ErrDuplicate = errors.New("duplicate")

	// ErrKeyUnavailable indicates no private key exists for the requested key id.
	ErrKeyUnavailable = errors.New("key unavailable")

	// ErrIdentityUnavailable indicates the merchant session could not be resolved.
	ErrIdentityUnavailable = errors.New("identity unavailable")

	// ErrStaleOrder indicates the order exists but was created outside the freshness window.
	ErrStaleOrder = errors.New("stale order")

	// ErrRowErrors indicates the upload API accepted the request but reported row-level errors.
	ErrRowErrors = errors.New("upload reported row errors")
)
