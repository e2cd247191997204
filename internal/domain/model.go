package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Core domain models. Everything here is immutable once validated; only a
// verdict's confirmation status (tracked outside the struct) transitions.

// VerdictOutcome is the closed set of outcomes a peer can claim for a
// transaction.
type VerdictOutcome int

const (
	OutcomeGood VerdictOutcome = iota
	OutcomeDisputed
	OutcomeBad
)

func (o VerdictOutcome) String() string {
	switch o {
	case OutcomeGood:
		return "good"
	case OutcomeDisputed:
		return "disputed"
	case OutcomeBad:
		return "bad"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Value returns the scoring contribution of the outcome.
func (o VerdictOutcome) Value() float64 {
	switch o {
	case OutcomeGood:
		return 1.0
	case OutcomeDisputed:
		return 0.5
	default:
		return 0.0
	}
}

func (o VerdictOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *VerdictOutcome) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func ParseOutcome(s string) (VerdictOutcome, error) {
	switch s {
	case "good":
		return OutcomeGood, nil
	case "disputed":
		return OutcomeDisputed, nil
	case "bad":
		return OutcomeBad, nil
	}
	return 0, fmt.Errorf("unknown verdict outcome %q", s)
}

// TrustLevel is the closed ordered set of trust tiers over half-open score
// ranges [0,.2) [.2,.4) [.4,.6) [.6,.8) [.8,1].
type TrustLevel int

const (
	TrustUnknown TrustLevel = iota
	TrustLow
	TrustMedium
	TrustHigh
	TrustTrusted
)

func (t TrustLevel) String() string {
	switch t {
	case TrustUnknown:
		return "unknown"
	case TrustLow:
		return "low"
	case TrustMedium:
		return "medium"
	case TrustHigh:
		return "high"
	case TrustTrusted:
		return "trusted"
	}
	return fmt.Sprintf("trust(%d)", int(t))
}

func (t TrustLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TrustLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTrustLevel(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func ParseTrustLevel(s string) (TrustLevel, error) {
	switch s {
	case "unknown":
		return TrustUnknown, nil
	case "low":
		return TrustLow, nil
	case "medium":
		return TrustMedium, nil
	case "high":
		return TrustHigh, nil
	case "trusted":
		return TrustTrusted, nil
	}
	return 0, fmt.Errorf("unknown trust level %q", s)
}

// TransactionVerdict is a signed claim by issuerID about the outcome of a
// transaction with targetID. A nil TxHash marks a non-payment complaint,
// which must carry at least one evidence blob.
type TransactionVerdict struct {
	TargetID      string         `json:"target_id"`
	TxHash        *string        `json:"tx_hash,omitempty"`
	Outcome       VerdictOutcome `json:"outcome"`
	Details       *string        `json:"details,omitempty"`
	Metric        string         `json:"metric,omitempty"`
	IssuedAt      time.Time      `json:"issued_at"`
	IssuerID      string         `json:"issuer_id"`
	IssuerSeqNo   uint64         `json:"issuer_seq_no"`
	IssuerSig     []byte         `json:"issuer_sig"`
	TxReceipt     *string        `json:"tx_receipt,omitempty"`
	EvidenceBlobs [][]byte       `json:"evidence_blobs,omitempty"`
}

// DefaultMetric is assumed when a verdict carries no metric.
const DefaultMetric = "transaction"

// MetricOrDefault returns the verdict's metric, falling back to DefaultMetric.
func (v TransactionVerdict) MetricOrDefault() string {
	if v.Metric == "" {
		return DefaultMetric
	}
	return v.Metric
}

// PaymentBacked reports whether the verdict references an on-chain
// transaction and therefore requires chain confirmation before scoring.
func (v TransactionVerdict) PaymentBacked() bool {
	return v.TxHash != nil && *v.TxHash != ""
}

// Key identifies a verdict by its replay-guard coordinates.
func (v TransactionVerdict) Key() string {
	return fmt.Sprintf("%s/%d", v.IssuerID, v.IssuerSeqNo)
}

// SignedTransactionMessage is the downloader-signed payment intent validated
// before a transfer is paid for. Nonce is unique per sender and guards
// against replay.
type SignedTransactionMessage struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	Amount        uint64    `json:"amount"`
	FileHash      string    `json:"file_hash"`
	Nonce         uint64    `json:"nonce"`
	Deadline      time.Time `json:"deadline"`
	DownloaderSig []byte    `json:"downloader_sig"`
}

// BlacklistEntry records one blacklisted peer. Manual entries
// (IsAutomatic=false) never expire on their own.
type BlacklistEntry struct {
	PeerID        string    `json:"peer_id"`
	Reason        string    `json:"reason"`
	BlacklistedAt time.Time `json:"blacklisted_at"`
	IsAutomatic   bool      `json:"is_automatic"`
	Evidence      *string   `json:"evidence,omitempty"`
	// RenewedAt is the start of the current retention window for automatic
	// entries; a new confirmed Bad verdict moves it forward.
	RenewedAt time.Time `json:"renewed_at"`
}

// CachedScore is a derived (score, tier) snapshot, never authoritative.
type CachedScore struct {
	Score      float64    `json:"score"`
	TrustLevel TrustLevel `json:"trust_level"`
	CachedAt   time.Time  `json:"cached_at"`
}

// PeerReputationSummary is the per-peer read model.
type PeerReputationSummary struct {
	PeerID        string     `json:"peer_id"`
	Score         float64    `json:"score"`
	TrustLevel    TrustLevel `json:"trust_level"`
	VerdictCount  int        `json:"verdict_count"`
	GoodCount     int        `json:"good_count"`
	DisputedCount int        `json:"disputed_count"`
	BadCount      int        `json:"bad_count"`
	Blacklisted   bool       `json:"blacklisted"`
	LastVerdictAt *time.Time `json:"last_verdict_at,omitempty"`
}

// RecentVerdict is the bounded-window analytics view of a confirmed verdict.
type RecentVerdict struct {
	TargetID    string         `json:"target_id"`
	IssuerID    string         `json:"issuer_id"`
	Outcome     VerdictOutcome `json:"outcome"`
	Metric      string         `json:"metric"`
	IssuedAt    time.Time      `json:"issued_at"`
	ConfirmedAt time.Time      `json:"confirmed_at"`
}

// ReputationAnalytics is the network-wide read model.
type ReputationAnalytics struct {
	TotalPeers       int                `json:"total_peers"`
	BlacklistedPeers int                `json:"blacklisted_peers"`
	AverageScore     float64            `json:"average_score"`
	TrustHistogram   map[string]int     `json:"trust_histogram"`
	RecentVerdicts   []RecentVerdict    `json:"recent_verdicts"`
	TopPeers         []PeerScoreSummary `json:"top_peers"`
	ComputedAt       time.Time          `json:"computed_at"`
}

// PeerScoreSummary is one row of the top-K ranking.
type PeerScoreSummary struct {
	PeerID     string     `json:"peer_id"`
	Score      float64    `json:"score"`
	TrustLevel TrustLevel `json:"trust_level"`
}
