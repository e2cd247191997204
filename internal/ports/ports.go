package ports

import "context"

// KeyManager verifies peer signatures. Key distribution and storage live
// outside this service; implementations only need lookup and verify.
type KeyManager interface {
	Verify(peerID string, payload, signature []byte) bool
}

// ChainObserver reports the confirmation depth of an on-chain transaction.
// It may be transiently unavailable; callers retry and never treat absence
// of information as confirmation.
type ChainObserver interface {
	Confirmations(ctx context.Context, txHash string) (int, error)
}
