package ports

import (
	"context"
	"time"

	"peertrust/internal/domain"
)

// VerdictRepository is the append-only durable log of confirmed verdicts.
// An append must complete before a verdict takes scoring effect, so a crash
// never loses an accepted verdict. The log is replayed at startup to rebuild
// in-memory state.
type VerdictRepository interface {
	AppendVerdict(ctx context.Context, v domain.TransactionVerdict) error
	// LoadVerdicts streams every retained confirmed verdict ordered by
	// issued_at ascending.
	LoadVerdicts(ctx context.Context) ([]domain.TransactionVerdict, error)
	PruneVerdicts(ctx context.Context, before time.Time) (int64, error)
}

// ReplayGuardRepository persists the validator's replay state: per-issuer
// sequence-number high-water marks and per-sender payment nonces.
type ReplayGuardRepository interface {
	SetIssuerSeqNo(ctx context.Context, issuerID string, seqNo uint64) error
	LoadIssuerSeqNos(ctx context.Context) (map[string]uint64, error)
	AddPaymentNonce(ctx context.Context, sender string, nonce uint64) error
	LoadPaymentNonces(ctx context.Context) (map[string]map[uint64]struct{}, error)
}

// BlacklistRepository persists blacklist entries keyed by peer id.
type BlacklistRepository interface {
	UpsertBlacklistEntry(ctx context.Context, e domain.BlacklistEntry) error
	DeleteBlacklistEntry(ctx context.Context, peerID string) error
	LoadBlacklistEntries(ctx context.Context) ([]domain.BlacklistEntry, error)
}
