package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"peertrust/internal/adapters/memory"
	"peertrust/internal/config"
	"peertrust/internal/domain"
)

type captureObserver struct {
	events []ConfirmedEvent
}

func (c *captureObserver) VerdictConfirmed(_ context.Context, ev ConfirmedEvent) {
	c.events = append(c.events, ev)
}

func newTestEngine(t *testing.T, cfg config.Reputation, now time.Time) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	e := NewEngine(cfg, store, zap.NewNop())
	e.now = func() time.Time { return now }
	return e, store
}

func TestEngineUnknownPeerScoresNeutral(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e, _ := newTestEngine(t, testRepCfg(), now)

	score, level := e.Score("never-seen")
	require.Equal(t, 0.5, score)
	require.Equal(t, domain.TrustMedium, level)
}

func TestEngineAppendInvalidatesCacheSynchronously(t *testing.T) {
	cfg := config.Reputation{MaturityThreshold: 1, CacheTTL: time.Hour}
	now := time.Unix(1_700_000_000, 0)
	e, _ := newTestEngine(t, cfg, now)

	// Prime the cache with the neutral score, well within its TTL.
	score, _ := e.Score("peer-a")
	require.Equal(t, 0.5, score)

	v := verdictAt(domain.OutcomeGood, now)
	require.NoError(t, e.AppendConfirmed(context.Background(), v))

	// The confirmed verdict must be visible immediately despite the TTL.
	score, level := e.Score("peer-a")
	require.Equal(t, 1.0, score)
	require.Equal(t, domain.TrustTrusted, level)
}

func TestEngineScoreComputedBeforeAppendCannotMaskIt(t *testing.T) {
	cfg := config.Reputation{MaturityThreshold: 1, CacheTTL: time.Hour}
	now := time.Unix(1_700_000_000, 0)
	e, _ := newTestEngine(t, cfg, now)
	ctx := context.Background()

	// A reader snapshots the generation and computes a favorable score from
	// the pre-append log, but a Bad verdict is confirmed before it installs
	// the result.
	gen := e.cache.Generation("peer-a")
	stale := domain.CachedScore{Score: 1.0, TrustLevel: domain.TrustTrusted, CachedAt: now}

	require.NoError(t, e.AppendConfirmed(ctx, verdictAt(domain.OutcomeBad, now)))
	require.False(t, e.cache.Put("peer-a", gen, stale))

	// The cache still serves the post-append score.
	score, level := e.Score("peer-a")
	require.Equal(t, 0.0, score)
	require.Equal(t, domain.TrustUnknown, level)
}

func TestEngineAppendIsDurableBeforeEffect(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e, store := newTestEngine(t, testRepCfg(), now)

	require.NoError(t, e.AppendConfirmed(context.Background(), verdictAt(domain.OutcomeGood, now)))

	persisted, err := store.LoadVerdicts(context.Background())
	require.NoError(t, err)
	require.Len(t, persisted, 1)
}

func TestEngineNotifiesObserverWithFreshState(t *testing.T) {
	cfg := config.Reputation{MaturityThreshold: 3, CacheTTL: time.Minute}
	now := time.Unix(1_700_000_000, 0)
	e, _ := newTestEngine(t, cfg, now)
	obs := &captureObserver{}
	e.SetObserver(obs)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		v := verdictAt(domain.OutcomeBad, now)
		v.IssuerSeqNo = uint64(i + 1)
		require.NoError(t, e.AppendConfirmed(ctx, v))
	}

	require.Len(t, obs.events, 3)
	last := obs.events[2]
	require.Equal(t, "peer-a", last.PeerID)
	require.Equal(t, 3, last.BadCount)
	require.InDelta(t, 0.0, last.Score, 1e-12)
}

func TestEngineReplayRebuildsState(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := memory.New()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		v := verdictAt(domain.OutcomeGood, now.Add(-time.Duration(i)*time.Hour))
		v.IssuerSeqNo = uint64(i + 1)
		require.NoError(t, store.AppendVerdict(ctx, v))
	}

	e := NewEngine(testRepCfg(), store, zap.NewNop())
	e.now = func() time.Time { return now }
	require.NoError(t, e.Replay(ctx))

	sum := e.Summary("peer-a")
	require.Equal(t, 4, sum.VerdictCount)
	require.Equal(t, 4, sum.GoodCount)
	require.Equal(t, 1, e.PeerCount())
}

func TestEngineRecentWindowIsBounded(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e, _ := newTestEngine(t, testRepCfg(), now)
	ctx := context.Background()

	for i := 0; i < recentWindow+10; i++ {
		v := verdictAt(domain.OutcomeGood, now)
		v.IssuerSeqNo = uint64(i + 1)
		require.NoError(t, e.AppendConfirmed(ctx, v))
	}
	require.Len(t, e.Recent(), recentWindow)
}

func TestEngineKeepsLogOrderedByIssuedAt(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e, _ := newTestEngine(t, testRepCfg(), now)
	ctx := context.Background()

	// Confirmation order differs from issue order.
	newer := verdictAt(domain.OutcomeGood, now)
	newer.IssuerSeqNo = 1
	older := verdictAt(domain.OutcomeBad, now.Add(-time.Hour))
	older.IssuerSeqNo = 2
	require.NoError(t, e.AppendConfirmed(ctx, newer))
	require.NoError(t, e.AppendConfirmed(ctx, older))

	rec := e.lookup("peer-a")
	require.NotNil(t, rec)
	require.Equal(t, domain.OutcomeBad, rec.verdicts[0].Outcome)
	require.Equal(t, domain.OutcomeGood, rec.verdicts[1].Outcome)
}
