package domain

import "errors"

// Rejection and failure taxonomy. Boundary rejections never reach the
// verdict log and carry no scoring consequence for either party.
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrDuplicateVerdict = errors.New("duplicate verdict")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrMissingEvidence  = errors.New("missing evidence")
	ErrDuplicateNonce   = errors.New("duplicate nonce")
	ErrDeadlineElapsed  = errors.New("payment deadline elapsed")

	// ErrObserverUnavailable marks a transient chain-observer failure. It is
	// retried and never promotes or demotes a pending verdict.
	ErrObserverUnavailable = errors.New("chain observer unavailable")

	ErrNotBlacklisted = errors.New("peer is not blacklisted")
)
