package services

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Soft outcomes (nothing in range, already claimed, rejected settings) are
// result values, not errors. These are the hard failures.

var (
	// ErrStorageUnavailable wraps any failure of the durable claim write.
	// Nothing was committed; the request is safe to retry.
	ErrStorageUnavailable = errors.New("storage unavailable, retry the claim")

	ErrInvalidPosition = errors.New("invalid coordinates")
	ErrUnknownNode     = errors.New("node not found")
	ErrInvalidNode     = errors.New("invalid node definition")
	ErrNoPosition      = errors.New("no position reported yet")
	ErrMissingPlayer   = errors.New("missing player id")
)
