package scoring

import (
	"math"
	"time"

	"peertrust/internal/config"
	"peertrust/internal/domain"
)

const secondsPerDay = 86400

// neutralScore is what a peer with no confirmed history scores, and what a
// thin history is damped toward.
const neutralScore = 0.5

// Score computes the decayed, maturity-damped score of a confirmed-verdict
// log at the given instant. It is a pure function of (verdicts, now, cfg)
// and always returns a value in [0,1].
func Score(verdicts []domain.TransactionVerdict, now time.Time, cfg config.Reputation) float64 {
	if len(verdicts) == 0 {
		return neutralScore
	}

	var weightSum, valueSum float64
	for _, v := range verdicts {
		ageDays := now.Sub(v.IssuedAt).Seconds() / secondsPerDay
		weight := 1.0
		if cfg.DecayHalfLifeDays > 0 {
			weight = math.Exp(-math.Ln2 * ageDays / cfg.DecayHalfLifeDays)
		}
		weightSum += weight
		valueSum += weight * v.Outcome.Value()
	}

	raw := neutralScore
	if weightSum > 0 {
		raw = valueSum / weightSum
	}

	maturity := 1.0
	if cfg.MaturityThreshold > 0 {
		maturity = math.Min(float64(len(verdicts))/float64(cfg.MaturityThreshold), 1.0)
	}

	final := raw*maturity + neutralScore*(1-maturity)
	return clamp(final)
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
