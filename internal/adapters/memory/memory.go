// Package memory provides an in-process implementation of the persistence
// ports with the same semantics as the postgres adapter. It backs tests and
// single-node experiments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"peertrust/internal/domain"
)

type Store struct {
	mu        sync.Mutex
	verdicts  []domain.TransactionVerdict
	seqNos    map[string]uint64
	nonces    map[string]map[uint64]struct{}
	blacklist map[string]domain.BlacklistEntry
}

func New() *Store {
	return &Store{
		seqNos:    make(map[string]uint64),
		nonces:    make(map[string]map[uint64]struct{}),
		blacklist: make(map[string]domain.BlacklistEntry),
	}
}

func (s *Store) AppendVerdict(_ context.Context, v domain.TransactionVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.verdicts {
		if existing.IssuerID == v.IssuerID && existing.IssuerSeqNo == v.IssuerSeqNo {
			return nil
		}
	}
	s.verdicts = append(s.verdicts, v)
	return nil
}

func (s *Store) LoadVerdicts(_ context.Context) ([]domain.TransactionVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TransactionVerdict, len(s.verdicts))
	copy(out, s.verdicts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

func (s *Store) PruneVerdicts(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.verdicts[:0]
	var pruned int64
	for _, v := range s.verdicts {
		if v.IssuedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, v)
	}
	s.verdicts = kept
	return pruned, nil
}

func (s *Store) SetIssuerSeqNo(_ context.Context, issuerID string, seqNo uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqNos[issuerID] = seqNo
	return nil
}

func (s *Store) LoadIssuerSeqNos(_ context.Context) (map[string]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.seqNos))
	for k, v := range s.seqNos {
		out[k] = v
	}
	return out, nil
}

func (s *Store) AddPaymentNonce(_ context.Context, sender string, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nonces[sender] == nil {
		s.nonces[sender] = make(map[uint64]struct{})
	}
	s.nonces[sender][nonce] = struct{}{}
	return nil
}

func (s *Store) LoadPaymentNonces(_ context.Context) (map[string]map[uint64]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[uint64]struct{}, len(s.nonces))
	for sender, set := range s.nonces {
		cp := make(map[uint64]struct{}, len(set))
		for n := range set {
			cp[n] = struct{}{}
		}
		out[sender] = cp
	}
	return out, nil
}

func (s *Store) UpsertBlacklistEntry(_ context.Context, e domain.BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[e.PeerID] = e
	return nil
}

func (s *Store) DeleteBlacklistEntry(_ context.Context, peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blacklist, peerID)
	return nil
}

func (s *Store) LoadBlacklistEntries(_ context.Context) ([]domain.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.BlacklistEntry, 0, len(s.blacklist))
	for _, e := range s.blacklist {
		out = append(out, e)
	}
	return out, nil
}
