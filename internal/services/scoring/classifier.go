package scoring

import "peertrust/internal/domain"

// Classify maps a score onto its trust tier. Ranges are half-open except the
// top one, which includes 1.0.
func Classify(score float64) domain.TrustLevel {
	switch {
	case score < 0.2:
		return domain.TrustUnknown
	case score < 0.4:
		return domain.TrustLow
	case score < 0.6:
		return domain.TrustMedium
	case score < 0.8:
		return domain.TrustHigh
	default:
		return domain.TrustTrusted
	}
}
