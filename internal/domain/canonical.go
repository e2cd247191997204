package domain

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonical signable payloads. Signatures cover the RFC 8785 (JCS) canonical
// JSON of a fixed field set with an embedded version tag, so that any two
// peers produce byte-identical bytes for the same logical message. Timestamps
// are encoded as unix seconds to keep the form independent of time zone and
// sub-second precision.

// sigVersion tags the canonical encoding so it can evolve without breaking
// verification of already-signed messages.
const sigVersion = 1

type verdictSignable struct {
	SigV        int      `json:"sig_v"`
	TargetID    string   `json:"target_id"`
	TxHash      *string  `json:"tx_hash"`
	Outcome     string   `json:"outcome"`
	Details     *string  `json:"details"`
	Metric      string   `json:"metric"`
	IssuedAt    int64    `json:"issued_at"`
	IssuerID    string   `json:"issuer_id"`
	IssuerSeqNo uint64   `json:"issuer_seq_no"`
	TxReceipt   *string  `json:"tx_receipt"`
	Evidence    [][]byte `json:"evidence"`
}

// VerdictSignable returns the canonical bytes covered by IssuerSig. Every
// field of the verdict except the signature itself participates.
func VerdictSignable(v TransactionVerdict) ([]byte, error) {
	payload := verdictSignable{
		SigV:        sigVersion,
		TargetID:    v.TargetID,
		TxHash:      v.TxHash,
		Outcome:     v.Outcome.String(),
		Details:     v.Details,
		Metric:      v.MetricOrDefault(),
		IssuedAt:    v.IssuedAt.Unix(),
		IssuerID:    v.IssuerID,
		IssuerSeqNo: v.IssuerSeqNo,
		TxReceipt:   v.TxReceipt,
		Evidence:    v.EvidenceBlobs,
	}
	return canonicalize(payload)
}

type paymentSignable struct {
	SigV     int    `json:"sig_v"`
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   uint64 `json:"amount"`
	FileHash string `json:"file_hash"`
	Nonce    uint64 `json:"nonce"`
	Deadline int64  `json:"deadline"`
}

// PaymentSignable returns the canonical bytes covered by DownloaderSig.
func PaymentSignable(m SignedTransactionMessage) ([]byte, error) {
	payload := paymentSignable{
		SigV:     sigVersion,
		From:     m.From,
		To:       m.To,
		Amount:   m.Amount,
		FileHash: m.FileHash,
		Nonce:    m.Nonce,
		Deadline: m.Deadline.Unix(),
	}
	return canonicalize(payload)
}

func canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical transform: %w", err)
	}
	return out, nil
}
