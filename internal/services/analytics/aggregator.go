package analytics

import (
	"sort"
	"time"

	"peertrust/internal/domain"
)

// topPeerCount bounds the ranking in the analytics snapshot.
const topPeerCount = 10

// ScoreSource is the read surface the aggregator needs from the score engine.
type ScoreSource interface {
	Summaries() []domain.PeerReputationSummary
	Recent() []domain.RecentVerdict
}

// BlacklistSource is the read surface from the blacklist manager.
type BlacklistSource interface {
	Entries() []domain.BlacklistEntry
}

// Aggregator computes read-only network-wide statistics. It never mutates
// peer state.
type Aggregator struct {
	scores    ScoreSource
	blacklist BlacklistSource
	now       func() time.Time
}

func New(scores ScoreSource, blacklist BlacklistSource) *Aggregator {
	return &Aggregator{scores: scores, blacklist: blacklist, now: time.Now}
}

// Snapshot builds the current analytics read model.
func (a *Aggregator) Snapshot() domain.ReputationAnalytics {
	summaries := a.scores.Summaries()

	hist := map[string]int{
		domain.TrustUnknown.String(): 0,
		domain.TrustLow.String():     0,
		domain.TrustMedium.String():  0,
		domain.TrustHigh.String():    0,
		domain.TrustTrusted.String(): 0,
	}
	var scoreSum float64
	for _, s := range summaries {
		hist[s.TrustLevel.String()]++
		scoreSum += s.Score
	}

	avg := 0.0
	if len(summaries) > 0 {
		avg = scoreSum / float64(len(summaries))
	}

	ranked := make([]domain.PeerScoreSummary, 0, len(summaries))
	for _, s := range summaries {
		ranked = append(ranked, domain.PeerScoreSummary{
			PeerID:     s.PeerID,
			Score:      s.Score,
			TrustLevel: s.TrustLevel,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].PeerID < ranked[j].PeerID
	})
	if len(ranked) > topPeerCount {
		ranked = ranked[:topPeerCount]
	}

	return domain.ReputationAnalytics{
		TotalPeers:       len(summaries),
		BlacklistedPeers: len(a.blacklist.Entries()),
		AverageScore:     avg,
		TrustHistogram:   hist,
		RecentVerdicts:   a.scores.Recent(),
		TopPeers:         ranked,
		ComputedAt:       a.now(),
	}
}
