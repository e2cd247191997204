package confirmer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"peertrust/internal/config"
	"peertrust/internal/domain"
	"peertrust/internal/ports"
)

// observerRetries bounds how often one poll sweep retries a flaky observer
// before leaving the verdict pending for the next tick.
const observerRetries = 3

// Appender receives verdicts once their transaction is confirmed deep enough.
type Appender interface {
	AppendConfirmed(ctx context.Context, v domain.TransactionVerdict) error
}

// Tracker holds payment-backed verdicts while their transaction gathers
// confirmations: Pending -> Confirmed (forwarded) or Pending -> Expired
// (dropped without penalty). Observer failures keep a verdict pending;
// absence of information never promotes it.
type Tracker struct {
	observer ports.ChainObserver
	appender Appender
	cfg      config.Reputation
	log      *zap.Logger
	now      func() time.Time

	// retryInterval seeds the exponential backoff between observer retries.
	retryInterval time.Duration

	mu      sync.Mutex
	pending map[string]*pendingVerdict
}

type pendingVerdict struct {
	verdict   domain.TransactionVerdict
	trackedAt time.Time
}

func NewTracker(observer ports.ChainObserver, appender Appender, cfg config.Reputation, log *zap.Logger) *Tracker {
	return &Tracker{
		observer:      observer,
		appender:      appender,
		cfg:           cfg,
		log:           log,
		now:           time.Now,
		retryInterval: 500 * time.Millisecond,
		pending:       make(map[string]*pendingVerdict),
	}
}

// Track enqueues an accepted payment-backed verdict for confirmation.
func (t *Tracker) Track(v domain.TransactionVerdict) error {
	if !v.PaymentBacked() {
		return fmt.Errorf("verdict %s has no tx hash", v.Key())
	}
	t.mu.Lock()
	t.pending[v.Key()] = &pendingVerdict{verdict: v, trackedAt: t.now()}
	t.mu.Unlock()
	return nil
}

// PendingCount returns the number of verdicts awaiting confirmation.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Run polls the chain observer at the given interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, pollInterval time.Duration, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Poll(ctx, concurrency)
		}
	}
}

// Poll runs one sweep: expires stale entries, then checks confirmation depth
// for the rest with bounded concurrency.
func (t *Tracker) Poll(ctx context.Context, concurrency int) {
	now := t.now()

	t.mu.Lock()
	batch := make([]*pendingVerdict, 0, len(t.pending))
	for key, p := range t.pending {
		if now.Sub(p.trackedAt) >= t.cfg.ConfirmationTimeout {
			delete(t.pending, key)
			// Expiry is silent and penalty-free: absence of proof is not
			// evidence of wrongdoing.
			t.log.Debug("pending verdict expired unconfirmed",
				zap.String("verdict", key),
				zap.String("tx", *p.verdict.TxHash))
			continue
		}
		batch = append(batch, p)
	}
	t.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, p := range batch {
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(p *pendingVerdict) {
			defer wg.Done()
			defer func() { <-sem }()
			t.check(ctx, p)
		}(p)
	}
	wg.Wait()
}

func (t *Tracker) check(ctx context.Context, p *pendingVerdict) {
	txHash := *p.verdict.TxHash

	var count int
	op := func() error {
		c, err := t.observer.Confirmations(ctx, txHash)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrObserverUnavailable, err)
		}
		count = c
		return nil
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = t.retryInterval
	bo := backoff.WithContext(backoff.WithMaxRetries(exp, observerRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if !errors.Is(err, context.Canceled) {
			t.log.Debug("observer poll failed, verdict stays pending",
				zap.String("tx", txHash), zap.Error(err))
		}
		return
	}

	if count < t.cfg.ConfirmationThreshold {
		return
	}
	if err := t.appender.AppendConfirmed(ctx, p.verdict); err != nil {
		// Keep it pending; the append is retried on the next sweep.
		t.log.Error("confirmed verdict append failed",
			zap.String("verdict", p.verdict.Key()), zap.Error(err))
		return
	}
	t.mu.Lock()
	delete(t.pending, p.verdict.Key())
	t.mu.Unlock()
}
