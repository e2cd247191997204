package validator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"peertrust/internal/config"
	"peertrust/internal/domain"
	"peertrust/internal/ports"
)

// Service is the structural/signature/freshness gatekeeper for incoming
// verdicts and payment messages. Replay marks (issuer seqno high-water marks,
// payment nonces) advance only on acceptance and are write-through persisted.
type Service struct {
	keys  ports.KeyManager
	guard ports.ReplayGuardRepository
	cfg   config.Reputation
	log   *zap.Logger
	now   func() time.Time

	mu      sync.RWMutex
	issuers map[string]*issuerState

	senderMu sync.RWMutex
	senders  map[string]*senderState
}

type issuerState struct {
	mu   sync.Mutex
	seen bool
	last uint64
}

type senderState struct {
	mu     sync.Mutex
	nonces map[uint64]struct{}
}

func New(keys ports.KeyManager, guard ports.ReplayGuardRepository, cfg config.Reputation, log *zap.Logger) *Service {
	return &Service{
		keys:    keys,
		guard:   guard,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		issuers: make(map[string]*issuerState),
		senders: make(map[string]*senderState),
	}
}

// Replay loads persisted replay-guard state at startup.
func (s *Service) Replay(ctx context.Context) error {
	seqnos, err := s.guard.LoadIssuerSeqNos(ctx)
	if err != nil {
		return err
	}
	for issuer, seq := range seqnos {
		s.issuers[issuer] = &issuerState{seen: true, last: seq}
	}
	nonces, err := s.guard.LoadPaymentNonces(ctx)
	if err != nil {
		return err
	}
	for sender, set := range nonces {
		if set == nil {
			set = make(map[uint64]struct{})
		}
		s.senders[sender] = &senderState{nonces: set}
	}
	s.log.Info("replay guards loaded", zap.Int("issuers", len(seqnos)), zap.Int("senders", len(nonces)))
	return nil
}

// Validate accepts or rejects a verdict. A nil error means accepted, and the
// issuer's seqno high-water mark has advanced.
func (s *Service) Validate(ctx context.Context, v domain.TransactionVerdict) error {
	payload, err := domain.VerdictSignable(v)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	if !s.keys.Verify(v.IssuerID, payload, v.IssuerSig) {
		return domain.ErrInvalidSignature
	}

	ist := s.issuer(v.IssuerID)
	ist.mu.Lock()
	defer ist.mu.Unlock()

	if ist.seen && v.IssuerSeqNo <= ist.last {
		return fmt.Errorf("%w: seqno %d <= %d", domain.ErrDuplicateVerdict, v.IssuerSeqNo, ist.last)
	}
	if v.Details != nil && len(*v.Details) > s.cfg.MaxVerdictSize {
		return fmt.Errorf("%w: %d bytes > %d", domain.ErrPayloadTooLarge, len(*v.Details), s.cfg.MaxVerdictSize)
	}
	if !v.PaymentBacked() && len(v.EvidenceBlobs) == 0 {
		return domain.ErrMissingEvidence
	}

	if err := s.guard.SetIssuerSeqNo(ctx, v.IssuerID, v.IssuerSeqNo); err != nil {
		return fmt.Errorf("persist seqno: %w", err)
	}
	ist.seen = true
	ist.last = v.IssuerSeqNo
	return nil
}

// ValidatePayment accepts or rejects a downloader-signed payment message.
// On acceptance the sender's nonce is recorded.
func (s *Service) ValidatePayment(ctx context.Context, m domain.SignedTransactionMessage) error {
	payload, err := domain.PaymentSignable(m)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	if !s.keys.Verify(m.From, payload, m.DownloaderSig) {
		return domain.ErrInvalidSignature
	}
	if m.Deadline.Before(s.now()) {
		return domain.ErrDeadlineElapsed
	}

	st := s.sender(m.From)
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, dup := st.nonces[m.Nonce]; dup {
		return fmt.Errorf("%w: nonce %d from %s", domain.ErrDuplicateNonce, m.Nonce, m.From)
	}
	if err := s.guard.AddPaymentNonce(ctx, m.From, m.Nonce); err != nil {
		return fmt.Errorf("persist nonce: %w", err)
	}
	st.nonces[m.Nonce] = struct{}{}
	return nil
}

// PaymentExpired reports whether settlement of m is past deadline plus grace.
// The settlement layer is expected to raise its own verdict; this only
// reports.
func (s *Service) PaymentExpired(m domain.SignedTransactionMessage, now time.Time) bool {
	return now.After(m.Deadline.Add(s.cfg.PaymentGracePeriod))
}

func (s *Service) sender(id string) *senderState {
	s.senderMu.RLock()
	st, ok := s.senders[id]
	s.senderMu.RUnlock()
	if ok {
		return st
	}
	s.senderMu.Lock()
	defer s.senderMu.Unlock()
	if st, ok = s.senders[id]; ok {
		return st
	}
	st = &senderState{nonces: make(map[uint64]struct{})}
	s.senders[id] = st
	return st
}

func (s *Service) issuer(id string) *issuerState {
	s.mu.RLock()
	ist, ok := s.issuers[id]
	s.mu.RUnlock()
	if ok {
		return ist
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ist, ok = s.issuers[id]; ok {
		return ist
	}
	ist = &issuerState{}
	s.issuers[id] = ist
	return ist
}
