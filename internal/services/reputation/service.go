package reputation

import (
	"context"

	"go.uber.org/zap"

	"peertrust/internal/domain"
	"peertrust/internal/services/analytics"
	"peertrust/internal/services/blacklist"
	"peertrust/internal/services/scoring"
	"peertrust/internal/services/validator"
	"peertrust/internal/workers/confirmer"
)

// Service is the exposed surface of the trust core. Peer-selection logic
// calls GetScore and IsBlacklisted before admitting a counterpart; the
// settlement layer feeds verdicts and payment messages in.
type Service struct {
	validator *validator.Service
	tracker   *confirmer.Tracker
	engine    *scoring.Engine
	blacklist *blacklist.Manager
	analytics *analytics.Aggregator
	log       *zap.Logger
}

func New(v *validator.Service, t *confirmer.Tracker, e *scoring.Engine, b *blacklist.Manager, a *analytics.Aggregator, log *zap.Logger) *Service {
	return &Service{validator: v, tracker: t, engine: e, blacklist: b, analytics: a, log: log}
}

// SubmitVerdict validates a verdict and routes it: payment-backed verdicts
// wait for chain confirmation, evidence-only complaints score immediately
// (decay and maturity damping provide the safety margin there).
func (s *Service) SubmitVerdict(ctx context.Context, v domain.TransactionVerdict) error {
	if err := s.validator.Validate(ctx, v); err != nil {
		s.log.Debug("verdict rejected",
			zap.String("issuer", v.IssuerID),
			zap.String("target", v.TargetID),
			zap.Error(err))
		return err
	}
	if v.PaymentBacked() {
		return s.tracker.Track(v)
	}
	return s.engine.AppendConfirmed(ctx, v)
}

// ValidatePayment pre-validates a downloader-signed payment message.
func (s *Service) ValidatePayment(ctx context.Context, m domain.SignedTransactionMessage) error {
	return s.validator.ValidatePayment(ctx, m)
}

// GetScore returns the cache-backed (score, tier) for a peer. Unknown peers
// score the neutral default.
func (s *Service) GetScore(peerID string) (float64, domain.TrustLevel) {
	return s.engine.Score(peerID)
}

// IsBlacklisted reports the peer's current blacklist status.
func (s *Service) IsBlacklisted(peerID string) bool {
	return s.blacklist.IsBlacklisted(peerID)
}

// Summary composes the per-peer read model.
func (s *Service) Summary(peerID string) domain.PeerReputationSummary {
	out := s.engine.Summary(peerID)
	out.Blacklisted = s.blacklist.IsBlacklisted(peerID)
	return out
}

// GetAnalytics returns the network-wide snapshot.
func (s *Service) GetAnalytics() domain.ReputationAnalytics {
	return s.analytics.Snapshot()
}

// BlacklistPeer records a manual blacklist entry.
func (s *Service) BlacklistPeer(ctx context.Context, peerID, reason string, evidence *string) error {
	return s.blacklist.AddManual(ctx, peerID, reason, evidence)
}

// UnblacklistPeer removes a peer's entry, manual or automatic.
func (s *Service) UnblacklistPeer(ctx context.Context, peerID string) error {
	return s.blacklist.Remove(ctx, peerID)
}

// BlacklistEntry returns the peer's current entry, if any.
func (s *Service) BlacklistEntry(peerID string) (domain.BlacklistEntry, bool) {
	return s.blacklist.Entry(peerID)
}
