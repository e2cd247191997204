package blacklist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"peertrust/internal/config"
	"peertrust/internal/domain"
	"peertrust/internal/ports"
	"peertrust/internal/services/scoring"
)

// Manager runs the per-peer blacklist state machine:
// Clear -> Flagged -> Blacklisted -> Clear (auto expiry or manual removal).
// Flagged is observability-only and carries no functional effect. Automatic
// transitions require BOTH a score at or below the threshold and enough
// retained Bad verdicts; manual entries exist in any mode, take precedence
// and never expire on their own.
type Manager struct {
	cfg  config.Reputation
	repo ports.BlacklistRepository
	log  *zap.Logger
	now  func() time.Time

	mu    sync.RWMutex
	peers map[string]*peerState
}

type peerState struct {
	mu      sync.Mutex
	entry   *domain.BlacklistEntry
	flagged bool
}

func NewManager(cfg config.Reputation, repo ports.BlacklistRepository, log *zap.Logger) *Manager {
	return &Manager{
		cfg:   cfg,
		repo:  repo,
		log:   log,
		now:   time.Now,
		peers: make(map[string]*peerState),
	}
}

// Replay loads persisted blacklist entries at startup.
func (m *Manager) Replay(ctx context.Context) error {
	entries, err := m.repo.LoadBlacklistEntries(ctx)
	if err != nil {
		return err
	}
	for i := range entries {
		e := entries[i]
		st := m.state(e.PeerID)
		st.entry = &e
	}
	m.log.Info("blacklist replayed", zap.Int("entries", len(entries)))
	return nil
}

// VerdictConfirmed reacts to a freshly confirmed verdict: renews the
// retention window of an automatic entry on a new Bad verdict, or evaluates
// the auto-blacklist trigger.
func (m *Manager) VerdictConfirmed(ctx context.Context, ev scoring.ConfirmedEvent) {
	st := m.state(ev.PeerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	m.expireLocked(ctx, ev.PeerID, st, ev.At)

	if st.entry != nil {
		if st.entry.IsAutomatic && ev.Verdict.Outcome == domain.OutcomeBad {
			st.entry.RenewedAt = ev.At
			if err := m.repo.UpsertBlacklistEntry(ctx, *st.entry); err != nil {
				m.log.Error("blacklist renewal persist failed", zap.String("peer", ev.PeerID), zap.Error(err))
			}
			m.log.Info("blacklist retention renewed", zap.String("peer", ev.PeerID))
		}
		return
	}

	if !m.cfg.BlacklistAutoEnabled || !m.cfg.BlacklistMode.AllowsAutomatic() {
		return
	}

	scoreHit := ev.Score <= m.cfg.BlacklistScoreMax
	badHit := ev.BadCount >= m.cfg.BlacklistBadVerdicts
	if scoreHit && badHit {
		entry := domain.BlacklistEntry{
			PeerID:        ev.PeerID,
			Reason:        fmt.Sprintf("score %.3f at or below %.3f with %d bad verdicts", ev.Score, m.cfg.BlacklistScoreMax, ev.BadCount),
			BlacklistedAt: ev.At,
			RenewedAt:     ev.At,
			IsAutomatic:   true,
		}
		if err := m.repo.UpsertBlacklistEntry(ctx, entry); err != nil {
			m.log.Error("blacklist persist failed", zap.String("peer", ev.PeerID), zap.Error(err))
			return
		}
		st.entry = &entry
		st.flagged = false
		m.log.Warn("peer auto-blacklisted",
			zap.String("peer", ev.PeerID),
			zap.Float64("score", ev.Score),
			zap.Int("bad_verdicts", ev.BadCount))
		return
	}

	if flagged := scoreHit || badHit; flagged != st.flagged {
		st.flagged = flagged
		if flagged {
			m.log.Info("peer flagged",
				zap.String("peer", ev.PeerID),
				zap.Float64("score", ev.Score),
				zap.Int("bad_verdicts", ev.BadCount))
		} else {
			m.log.Info("peer flag cleared", zap.String("peer", ev.PeerID))
		}
	}
}

// IsBlacklisted reports the peer's current status, expiring stale automatic
// entries on the way.
func (m *Manager) IsBlacklisted(peerID string) bool {
	st := m.lookup(peerID)
	if st == nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	m.expireLocked(context.Background(), peerID, st, m.now())
	return st.entry != nil
}

// AddManual records an administrative blacklist entry. It replaces any
// automatic entry for the peer; manual entries take precedence.
func (m *Manager) AddManual(ctx context.Context, peerID, reason string, evidence *string) error {
	now := m.now()
	entry := domain.BlacklistEntry{
		PeerID:        peerID,
		Reason:        reason,
		BlacklistedAt: now,
		RenewedAt:     now,
		IsAutomatic:   false,
		Evidence:      evidence,
	}
	st := m.state(peerID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.repo.UpsertBlacklistEntry(ctx, entry); err != nil {
		return err
	}
	st.entry = &entry
	st.flagged = false
	m.log.Warn("peer manually blacklisted", zap.String("peer", peerID), zap.String("reason", reason))
	return nil
}

// Remove clears the peer's entry, manual or automatic.
func (m *Manager) Remove(ctx context.Context, peerID string) error {
	st := m.lookup(peerID)
	if st == nil {
		return domain.ErrNotBlacklisted
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.entry == nil {
		return domain.ErrNotBlacklisted
	}
	if err := m.repo.DeleteBlacklistEntry(ctx, peerID); err != nil {
		return err
	}
	st.entry = nil
	m.log.Info("peer removed from blacklist", zap.String("peer", peerID))
	return nil
}

// Entry returns the peer's current entry, if any.
func (m *Manager) Entry(peerID string) (domain.BlacklistEntry, bool) {
	st := m.lookup(peerID)
	if st == nil {
		return domain.BlacklistEntry{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	m.expireLocked(context.Background(), peerID, st, m.now())
	if st.entry == nil {
		return domain.BlacklistEntry{}, false
	}
	return *st.entry, true
}

// Entries lists all current (non-expired) entries.
func (m *Manager) Entries() []domain.BlacklistEntry {
	m.mu.RLock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var out []domain.BlacklistEntry
	for _, id := range ids {
		if e, ok := m.Entry(id); ok {
			out = append(out, e)
		}
	}
	return out
}

// expireLocked drops an automatic entry whose retention window has elapsed.
// Caller holds st.mu.
func (m *Manager) expireLocked(ctx context.Context, peerID string, st *peerState, now time.Time) {
	if st.entry == nil || !st.entry.IsAutomatic || m.cfg.BlacklistRetentionDays <= 0 {
		return
	}
	expiresAt := st.entry.RenewedAt.AddDate(0, 0, m.cfg.BlacklistRetentionDays)
	if now.Before(expiresAt) {
		return
	}
	if err := m.repo.DeleteBlacklistEntry(ctx, peerID); err != nil {
		m.log.Error("blacklist expiry persist failed", zap.String("peer", peerID), zap.Error(err))
		return
	}
	st.entry = nil
	m.log.Info("automatic blacklist entry expired", zap.String("peer", peerID))
}

func (m *Manager) state(peerID string) *peerState {
	m.mu.RLock()
	st, ok := m.peers[peerID]
	m.mu.RUnlock()
	if ok {
		return st
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok = m.peers[peerID]; ok {
		return st
	}
	st = &peerState{}
	m.peers[peerID] = st
	return st
}

func (m *Manager) lookup(peerID string) *peerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peers[peerID]
}
