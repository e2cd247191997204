package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"peertrust/internal/domain"
)

// VerdictRepository

func (db *DB) AppendVerdict(ctx context.Context, v domain.TransactionVerdict) error {
	// ON CONFLICT keeps the append idempotent when a confirmation sweep is
	// retried after the insert landed but before the tracker recorded it.
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO verdicts
            (id, target_id, tx_hash, outcome, details, metric, issued_at,
             issuer_id, issuer_seq_no, issuer_sig, tx_receipt, evidence)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (issuer_id, issuer_seq_no) DO NOTHING
    `, uuid.NewString(), v.TargetID, v.TxHash, v.Outcome.String(), v.Details,
		v.MetricOrDefault(), v.IssuedAt, v.IssuerID, int64(v.IssuerSeqNo),
		v.IssuerSig, v.TxReceipt, v.EvidenceBlobs)
	return err
}

func (db *DB) LoadVerdicts(ctx context.Context) ([]domain.TransactionVerdict, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT target_id, tx_hash, outcome, details, metric, issued_at,
               issuer_id, issuer_seq_no, issuer_sig, tx_receipt, evidence
        FROM verdicts
        ORDER BY issued_at
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransactionVerdict
	for rows.Next() {
		var v domain.TransactionVerdict
		var outcome string
		var seqNo int64
		if err := rows.Scan(&v.TargetID, &v.TxHash, &outcome, &v.Details, &v.Metric,
			&v.IssuedAt, &v.IssuerID, &seqNo, &v.IssuerSig, &v.TxReceipt, &v.EvidenceBlobs); err != nil {
			return nil, err
		}
		parsed, err := domain.ParseOutcome(outcome)
		if err != nil {
			return nil, err
		}
		v.Outcome = parsed
		v.IssuerSeqNo = uint64(seqNo)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (db *DB) PruneVerdicts(ctx context.Context, before time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM verdicts WHERE issued_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReplayGuardRepository

func (db *DB) SetIssuerSeqNo(ctx context.Context, issuerID string, seqNo uint64) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO issuer_seqnos (issuer_id, seq_no)
        VALUES ($1, $2)
        ON CONFLICT (issuer_id) DO UPDATE SET seq_no = EXCLUDED.seq_no
    `, issuerID, int64(seqNo))
	return err
}

func (db *DB) LoadIssuerSeqNos(ctx context.Context) (map[string]uint64, error) {
	rows, err := db.Pool.Query(ctx, `SELECT issuer_id, seq_no FROM issuer_seqnos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var issuer string
		var seqNo int64
		if err := rows.Scan(&issuer, &seqNo); err != nil {
			return nil, err
		}
		out[issuer] = uint64(seqNo)
	}
	return out, rows.Err()
}

func (db *DB) AddPaymentNonce(ctx context.Context, sender string, nonce uint64) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO payment_nonces (sender, nonce)
        VALUES ($1, $2)
        ON CONFLICT DO NOTHING
    `, sender, int64(nonce))
	return err
}

func (db *DB) LoadPaymentNonces(ctx context.Context) (map[string]map[uint64]struct{}, error) {
	rows, err := db.Pool.Query(ctx, `SELECT sender, nonce FROM payment_nonces`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[uint64]struct{})
	for rows.Next() {
		var sender string
		var nonce int64
		if err := rows.Scan(&sender, &nonce); err != nil {
			return nil, err
		}
		if out[sender] == nil {
			out[sender] = make(map[uint64]struct{})
		}
		out[sender][uint64(nonce)] = struct{}{}
	}
	return out, rows.Err()
}

// BlacklistRepository

func (db *DB) UpsertBlacklistEntry(ctx context.Context, e domain.BlacklistEntry) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO blacklist_entries (peer_id, reason, blacklisted_at, renewed_at, is_automatic, evidence)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (peer_id) DO UPDATE SET
            reason = EXCLUDED.reason,
            blacklisted_at = EXCLUDED.blacklisted_at,
            renewed_at = EXCLUDED.renewed_at,
            is_automatic = EXCLUDED.is_automatic,
            evidence = EXCLUDED.evidence
    `, e.PeerID, e.Reason, e.BlacklistedAt, e.RenewedAt, e.IsAutomatic, e.Evidence)
	return err
}

func (db *DB) DeleteBlacklistEntry(ctx context.Context, peerID string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM blacklist_entries WHERE peer_id = $1`, peerID)
	return err
}

func (db *DB) LoadBlacklistEntries(ctx context.Context) ([]domain.BlacklistEntry, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT peer_id, reason, blacklisted_at, renewed_at, is_automatic, evidence
        FROM blacklist_entries
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BlacklistEntry
	for rows.Next() {
		var e domain.BlacklistEntry
		if err := rows.Scan(&e.PeerID, &e.Reason, &e.BlacklistedAt, &e.RenewedAt, &e.IsAutomatic, &e.Evidence); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
