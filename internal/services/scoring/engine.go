package scoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"peertrust/internal/config"
	"peertrust/internal/domain"
	"peertrust/internal/ports"
)

// recentWindow bounds the analytics view of recently confirmed verdicts.
const recentWindow = 50

// ConfirmedEvent is published after a verdict is durably appended. Score and
// BadCount are computed from the post-append log so observers never act on a
// stale view.
type ConfirmedEvent struct {
	PeerID   string
	Verdict  domain.TransactionVerdict
	Score    float64
	Level    domain.TrustLevel
	BadCount int
	At       time.Time
}

// Observer is notified synchronously for every confirmed verdict.
type Observer interface {
	VerdictConfirmed(ctx context.Context, ev ConfirmedEvent)
}

// Engine owns each peer's confirmed-verdict log. Per-peer records carry
// their own lock so unrelated peers never contend; the outer map lock only
// guards record lookup.
type Engine struct {
	cfg      config.Reputation
	repo     ports.VerdictRepository
	cache    *Cache
	log      *zap.Logger
	now      func() time.Time
	observer Observer

	mu    sync.RWMutex
	peers map[string]*peerRecord

	recentMu sync.Mutex
	recent   []domain.RecentVerdict
}

type peerRecord struct {
	mu       sync.Mutex
	verdicts []domain.TransactionVerdict // ordered by IssuedAt
	good     int
	disputed int
	bad      int
	lastAt   time.Time
}

func NewEngine(cfg config.Reputation, repo ports.VerdictRepository, log *zap.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		repo:  repo,
		cache: NewCache(cfg.CacheTTL),
		log:   log,
		now:   time.Now,
		peers: make(map[string]*peerRecord),
	}
}

// SetObserver wires the confirmed-verdict listener. Must be called during
// startup, before verdicts flow.
func (e *Engine) SetObserver(o Observer) { e.observer = o }

// Replay rebuilds in-memory state from the durable log. Replayed verdicts
// are not re-persisted and raise no events.
func (e *Engine) Replay(ctx context.Context) error {
	verdicts, err := e.repo.LoadVerdicts(ctx)
	if err != nil {
		return err
	}
	cutoff := e.retentionCutoff(e.now())
	for _, v := range verdicts {
		if !cutoff.IsZero() && v.IssuedAt.Before(cutoff) {
			continue
		}
		rec := e.record(v.TargetID)
		rec.mu.Lock()
		rec.insert(v)
		rec.mu.Unlock()
	}
	e.log.Info("verdict log replayed",
		zap.Int("verdicts", len(verdicts)),
		zap.Int("peers", e.PeerCount()))
	return nil
}

// AppendConfirmed durably appends a confirmed verdict, updates the peer's
// log, invalidates the cached score and notifies the observer with the fresh
// score. The durable append happens before any in-memory effect.
func (e *Engine) AppendConfirmed(ctx context.Context, v domain.TransactionVerdict) error {
	now := e.now()
	rec := e.record(v.TargetID)

	rec.mu.Lock()
	if err := e.repo.AppendVerdict(ctx, v); err != nil {
		rec.mu.Unlock()
		return err
	}
	rec.insert(v)
	rec.prune(e.retentionCutoff(now))
	gen := e.cache.Invalidate(v.TargetID)
	score := Score(rec.verdicts, now, e.cfg)
	level := Classify(score)
	badCount := rec.bad
	rec.mu.Unlock()

	e.cache.Put(v.TargetID, gen, domain.CachedScore{Score: score, TrustLevel: level, CachedAt: now})
	e.pushRecent(domain.RecentVerdict{
		TargetID:    v.TargetID,
		IssuerID:    v.IssuerID,
		Outcome:     v.Outcome,
		Metric:      v.MetricOrDefault(),
		IssuedAt:    v.IssuedAt,
		ConfirmedAt: now,
	})

	e.log.Debug("verdict confirmed",
		zap.String("peer", v.TargetID),
		zap.String("issuer", v.IssuerID),
		zap.Stringer("outcome", v.Outcome),
		zap.Float64("score", score))

	if e.observer != nil {
		e.observer.VerdictConfirmed(ctx, ConfirmedEvent{
			PeerID:   v.TargetID,
			Verdict:  v,
			Score:    score,
			Level:    level,
			BadCount: badCount,
			At:       now,
		})
	}
	return nil
}

// Score returns the cache-backed (score, tier) for a peer. Unknown peers
// yield the neutral default.
func (e *Engine) Score(peerID string) (float64, domain.TrustLevel) {
	now := e.now()
	if entry, ok := e.cache.Get(peerID, now); ok {
		return entry.Score, entry.TrustLevel
	}

	// The generation is read before the log so a verdict confirmed during
	// the computation fences this result out of the cache.
	gen := e.cache.Generation(peerID)
	var score float64
	if rec := e.lookup(peerID); rec != nil {
		rec.mu.Lock()
		score = Score(rec.verdicts, now, e.cfg)
		rec.mu.Unlock()
	} else {
		score = Score(nil, now, e.cfg)
	}
	level := Classify(score)
	e.cache.Put(peerID, gen, domain.CachedScore{Score: score, TrustLevel: level, CachedAt: now})
	return score, level
}

// BadCount returns the peer's retained confirmed-Bad verdict count.
func (e *Engine) BadCount(peerID string) int {
	rec := e.lookup(peerID)
	if rec == nil {
		return 0
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.bad
}

// Summary builds the per-peer read model. Blacklist status is composed by
// the caller, which owns that state.
func (e *Engine) Summary(peerID string) domain.PeerReputationSummary {
	score, level := e.Score(peerID)
	out := domain.PeerReputationSummary{
		PeerID:     peerID,
		Score:      score,
		TrustLevel: level,
	}
	if rec := e.lookup(peerID); rec != nil {
		rec.mu.Lock()
		out.VerdictCount = len(rec.verdicts)
		out.GoodCount = rec.good
		out.DisputedCount = rec.disputed
		out.BadCount = rec.bad
		if !rec.lastAt.IsZero() {
			last := rec.lastAt
			out.LastVerdictAt = &last
		}
		rec.mu.Unlock()
	}
	return out
}

// Summaries snapshots every known peer.
func (e *Engine) Summaries() []domain.PeerReputationSummary {
	e.mu.RLock()
	ids := make([]string, 0, len(e.peers))
	for id := range e.peers {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	out := make([]domain.PeerReputationSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.Summary(id))
	}
	return out
}

// Recent returns a copy of the bounded recent-verdict window, newest first.
func (e *Engine) Recent() []domain.RecentVerdict {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	out := make([]domain.RecentVerdict, len(e.recent))
	copy(out, e.recent)
	return out
}

func (e *Engine) PeerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.peers)
}

func (e *Engine) retentionCutoff(now time.Time) time.Time {
	if e.cfg.VerdictRetentionDays <= 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -e.cfg.VerdictRetentionDays)
}

func (e *Engine) record(peerID string) *peerRecord {
	e.mu.RLock()
	rec, ok := e.peers[peerID]
	e.mu.RUnlock()
	if ok {
		return rec
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok = e.peers[peerID]; ok {
		return rec
	}
	rec = &peerRecord{}
	e.peers[peerID] = rec
	return rec
}

func (e *Engine) lookup(peerID string) *peerRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.peers[peerID]
}

func (e *Engine) pushRecent(rv domain.RecentVerdict) {
	e.recentMu.Lock()
	e.recent = append([]domain.RecentVerdict{rv}, e.recent...)
	if len(e.recent) > recentWindow {
		e.recent = e.recent[:recentWindow]
	}
	e.recentMu.Unlock()
}

// insert keeps the log ordered by IssuedAt. Confirmation order can differ
// from issue order, so late arrivals are placed, not blindly appended.
func (r *peerRecord) insert(v domain.TransactionVerdict) {
	i := len(r.verdicts)
	for i > 0 && r.verdicts[i-1].IssuedAt.After(v.IssuedAt) {
		i--
	}
	r.verdicts = append(r.verdicts, domain.TransactionVerdict{})
	copy(r.verdicts[i+1:], r.verdicts[i:])
	r.verdicts[i] = v
	r.count(v.Outcome, 1)
	if v.IssuedAt.After(r.lastAt) {
		r.lastAt = v.IssuedAt
	}
}

func (r *peerRecord) prune(cutoff time.Time) {
	if cutoff.IsZero() {
		return
	}
	n := 0
	for n < len(r.verdicts) && r.verdicts[n].IssuedAt.Before(cutoff) {
		r.count(r.verdicts[n].Outcome, -1)
		n++
	}
	if n > 0 {
		r.verdicts = append([]domain.TransactionVerdict(nil), r.verdicts[n:]...)
	}
}

func (r *peerRecord) count(o domain.VerdictOutcome, delta int) {
	switch o {
	case domain.OutcomeGood:
		r.good += delta
	case domain.OutcomeDisputed:
		r.disputed += delta
	case domain.OutcomeBad:
		r.bad += delta
	}
}
