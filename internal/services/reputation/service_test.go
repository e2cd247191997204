package reputation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"peertrust/internal/adapters/keyring"
	"peertrust/internal/adapters/memory"
	"peertrust/internal/config"
	"peertrust/internal/domain"
	"peertrust/internal/services/analytics"
	"peertrust/internal/services/blacklist"
	"peertrust/internal/services/scoring"
	"peertrust/internal/services/validator"
	"peertrust/internal/workers/confirmer"
)

type fakeObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeObserver) Confirmations(_ context.Context, txHash string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[txHash], nil
}

func (f *fakeObserver) set(txHash string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[txHash] = count
}

func e2eCfg() config.Reputation {
	return config.Reputation{
		ConfirmationThreshold:  2,
		ConfirmationTimeout:    time.Hour,
		MaturityThreshold:      3,
		DecayHalfLifeDays:      0,
		MaxVerdictSize:         1024,
		CacheTTL:               time.Minute,
		BlacklistMode:          config.BlacklistAutomatic,
		BlacklistAutoEnabled:   true,
		BlacklistScoreMax:      0.2,
		BlacklistBadVerdicts:   3,
		BlacklistRetentionDays: 30,
		PaymentGracePeriod:     time.Minute,
	}
}

type stack struct {
	svc      *Service
	signer   *keyring.Signer
	observer *fakeObserver
	tracker  *confirmer.Tracker
	store    *memory.Store
	seqNo    uint64
}

func newStack(t *testing.T) *stack {
	t.Helper()
	cfg := e2eCfg()
	log := zap.NewNop()

	signer, err := keyring.NewSigner("issuer-1")
	require.NoError(t, err)
	ring := keyring.New()
	ring.Register(signer.ID, signer.Public())

	store := memory.New()
	engine := scoring.NewEngine(cfg, store, log)
	blm := blacklist.NewManager(cfg, store, log)
	engine.SetObserver(blm)
	vld := validator.New(ring, store, cfg, log)
	observer := &fakeObserver{counts: make(map[string]int)}
	tracker := confirmer.NewTracker(observer, engine, cfg, log)
	agg := analytics.New(engine, blm)

	return &stack{
		svc:      New(vld, tracker, engine, blm, agg, log),
		signer:   signer,
		observer: observer,
		tracker:  tracker,
		store:    store,
	}
}

func (s *stack) verdict(t *testing.T, target string, outcome domain.VerdictOutcome, txHash *string) domain.TransactionVerdict {
	t.Helper()
	s.seqNo++
	v := domain.TransactionVerdict{
		TargetID:    target,
		TxHash:      txHash,
		Outcome:     outcome,
		IssuedAt:    time.Now(),
		IssuerID:    s.signer.ID,
		IssuerSeqNo: s.seqNo,
	}
	if txHash == nil {
		v.EvidenceBlobs = [][]byte{[]byte("proof")}
	}
	payload, err := domain.VerdictSignable(v)
	require.NoError(t, err)
	v.IssuerSig = s.signer.Sign(payload)
	return v
}

func TestEvidenceOnlyVerdictScoresImmediately(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.svc.SubmitVerdict(ctx, s.verdict(t, "peer-a", domain.OutcomeGood, nil)))
	}

	score, level := s.svc.GetScore("peer-a")
	require.Equal(t, 1.0, score)
	require.Equal(t, domain.TrustTrusted, level)
	require.Equal(t, 0, s.tracker.PendingCount())
}

func TestPaymentBackedVerdictWaitsForConfirmation(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	tx := "0xabc123"
	require.NoError(t, s.svc.SubmitVerdict(ctx, s.verdict(t, "peer-a", domain.OutcomeGood, &tx)))
	require.Equal(t, 1, s.tracker.PendingCount())

	// Not enough confirmations yet: no scoring effect.
	s.observer.set(tx, 1)
	s.tracker.Poll(ctx, 1)
	score, _ := s.svc.GetScore("peer-a")
	require.Equal(t, 0.5, score)

	// Threshold reached: the verdict lands and the cached score moves.
	s.observer.set(tx, 2)
	s.tracker.Poll(ctx, 1)
	require.Equal(t, 0, s.tracker.PendingCount())
	score, _ = s.svc.GetScore("peer-a")
	require.Greater(t, score, 0.5)
}

func TestResubmittedSeqNoIsRejected(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	v := s.verdict(t, "peer-a", domain.OutcomeGood, nil)
	require.NoError(t, s.svc.SubmitVerdict(ctx, v))
	require.ErrorIs(t, s.svc.SubmitVerdict(ctx, v), domain.ErrDuplicateVerdict)
}

func TestRepeatedBadVerdictsAutoBlacklist(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.svc.SubmitVerdict(ctx, s.verdict(t, "peer-bad", domain.OutcomeBad, nil)))
	}

	require.True(t, s.svc.IsBlacklisted("peer-bad"))
	sum := s.svc.Summary("peer-bad")
	require.True(t, sum.Blacklisted)
	require.Equal(t, 3, sum.BadCount)
	require.Equal(t, 0.0, sum.Score)
}

func TestAnalyticsReflectsNetworkState(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.svc.SubmitVerdict(ctx, s.verdict(t, "peer-good", domain.OutcomeGood, nil)))
		require.NoError(t, s.svc.SubmitVerdict(ctx, s.verdict(t, "peer-bad", domain.OutcomeBad, nil)))
	}

	snap := s.svc.GetAnalytics()
	require.Equal(t, 2, snap.TotalPeers)
	require.Equal(t, 1, snap.BlacklistedPeers)
	require.Len(t, snap.RecentVerdicts, 6)
	require.Equal(t, "peer-good", snap.TopPeers[0].PeerID)
}

func TestManualBlacklistRoundTrip(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	require.NoError(t, s.svc.BlacklistPeer(ctx, "peer-a", "operator decision", nil))
	require.True(t, s.svc.IsBlacklisted("peer-a"))

	entry, ok := s.svc.BlacklistEntry("peer-a")
	require.True(t, ok)
	require.False(t, entry.IsAutomatic)

	require.NoError(t, s.svc.UnblacklistPeer(ctx, "peer-a"))
	require.False(t, s.svc.IsBlacklisted("peer-a"))
	require.ErrorIs(t, s.svc.UnblacklistPeer(ctx, "peer-a"), domain.ErrNotBlacklisted)
}
