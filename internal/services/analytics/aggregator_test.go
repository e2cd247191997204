package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"peertrust/internal/domain"
)

type fakeScores struct {
	summaries []domain.PeerReputationSummary
	recent    []domain.RecentVerdict
}

func (f *fakeScores) Summaries() []domain.PeerReputationSummary { return f.summaries }
func (f *fakeScores) Recent() []domain.RecentVerdict            { return f.recent }

type fakeBlacklist struct {
	entries []domain.BlacklistEntry
}

func (f *fakeBlacklist) Entries() []domain.BlacklistEntry { return f.entries }

func summary(peerID string, score float64, level domain.TrustLevel) domain.PeerReputationSummary {
	return domain.PeerReputationSummary{PeerID: peerID, Score: score, TrustLevel: level}
}

func TestSnapshotAggregates(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	scores := &fakeScores{
		summaries: []domain.PeerReputationSummary{
			summary("peer-a", 0.9, domain.TrustTrusted),
			summary("peer-b", 0.5, domain.TrustMedium),
			summary("peer-c", 0.1, domain.TrustUnknown),
		},
		recent: []domain.RecentVerdict{{TargetID: "peer-a", Outcome: domain.OutcomeGood}},
	}
	bl := &fakeBlacklist{entries: []domain.BlacklistEntry{{PeerID: "peer-c"}}}

	a := New(scores, bl)
	a.now = func() time.Time { return now }
	snap := a.Snapshot()

	require.Equal(t, 3, snap.TotalPeers)
	require.Equal(t, 1, snap.BlacklistedPeers)
	require.InDelta(t, 0.5, snap.AverageScore, 1e-12)
	require.Equal(t, 1, snap.TrustHistogram["trusted"])
	require.Equal(t, 1, snap.TrustHistogram["medium"])
	require.Equal(t, 1, snap.TrustHistogram["unknown"])
	require.Equal(t, 0, snap.TrustHistogram["high"])
	require.Len(t, snap.RecentVerdicts, 1)
	require.Equal(t, now, snap.ComputedAt)
}

func TestSnapshotRanksTopPeers(t *testing.T) {
	scores := &fakeScores{}
	for i := 0; i < topPeerCount+5; i++ {
		scores.summaries = append(scores.summaries,
			summary(string(rune('a'+i)), float64(i)/20.0, domain.TrustLow))
	}

	a := New(scores, &fakeBlacklist{})
	snap := a.Snapshot()

	require.Len(t, snap.TopPeers, topPeerCount)
	for i := 1; i < len(snap.TopPeers); i++ {
		require.GreaterOrEqual(t, snap.TopPeers[i-1].Score, snap.TopPeers[i].Score)
	}
}

func TestSnapshotEmptyNetwork(t *testing.T) {
	a := New(&fakeScores{}, &fakeBlacklist{})
	snap := a.Snapshot()

	require.Equal(t, 0, snap.TotalPeers)
	require.Equal(t, 0.0, snap.AverageScore)
	require.Empty(t, snap.TopPeers)
}
