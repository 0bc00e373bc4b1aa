package escrow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coduet-labs/escrow-layer/internal/chain"
	"github.com/coduet-labs/escrow-layer/internal/market"
	"github.com/coduet-labs/escrow-layer/internal/metrics"
	"github.com/coduet-labs/escrow-layer/internal/storage"
	"github.com/coduet-labs/escrow-layer/pkg/logger"
)

const defaultReconcileInterval = 30 * time.Second

// Reconciler periodically repairs index rows that drifted from chain state.
// Rows are enqueued by setting needs_sync; the reconciler re-reads the
// authoritative account for each and rewrites the projection to match.
type Reconciler struct {
	ledger   Ledger
	index    storage.Index
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewReconciler builds a reconciler over the same ledger and index the
// orchestrator uses. A non-positive interval gets the default.
func NewReconciler(ledger Ledger, index storage.Index, interval time.Duration, log *logger.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	if log == nil {
		log = logger.NewDefault("reconciler")
	}
	return &Reconciler{
		ledger:   ledger,
		index:    index,
		interval: interval,
		log:      log,
	}
}

// Name implements system.Service.
func (r *Reconciler) Name() string { return "reconciler" }

// Start launches the background loop. Idempotent.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.loop(loopCtx)
	r.log.Infof("reconciler started, interval %s", r.interval)
	return nil
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.log.Errorf("reconcile sweep: %v", err)
			}
		}
	}
}

// Sweep reconciles every flagged row once. Exposed for tests and for a
// manual trigger; a row whose chain read fails keeps its flag and is
// retried on the next sweep.
func (r *Reconciler) Sweep(ctx context.Context) error {
	posts, err := r.index.ListPostsNeedingSync(ctx)
	if err != nil {
		metrics.ObserveReconcileRun("error")
		return fmt.Errorf("list posts needing sync: %w", err)
	}
	metrics.SetRowsNeedingSync(len(posts))
	if len(posts) == 0 {
		metrics.ObserveReconcileRun("clean")
		return nil
	}

	var failed int
	for _, post := range posts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.reconcileOne(ctx, post); err != nil {
			failed++
			r.log.Warnf("reconcile post %d: %v", post.PostID, err)
		}
	}

	if failed > 0 {
		metrics.ObserveReconcileRun("partial")
	} else {
		metrics.ObserveReconcileRun("repaired")
	}
	metrics.SetRowsNeedingSync(failed)
	r.log.Infof("reconcile sweep: %d rows checked, %d still drifted", len(posts), failed)
	return nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, post market.Post) error {
	acct, err := r.ledger.GetPost(ctx, post.PostID)
	if err != nil {
		return fmt.Errorf("read chain account: %w", err)
	}

	status := statusFromAccount(acct)

	// A reopened post whose chain account still carries the old accepted
	// helper is expected drift, not corruption. The flag clears once the
	// statuses agree or chain has moved past the stale record.
	if post.Status == market.PostOpen && status == market.PostInProgress && !acct.IsCompleted {
		r.log.Infof("post %d reopened locally, chain helper record still stale", post.PostID)
		post.NeedsSync = false
		_, err = r.index.UpdatePost(ctx, post)
		return err
	}

	if status != post.Status {
		r.log.Infof("post %d drifted: index %s, chain %s", post.PostID, post.Status, status)
		post.Status = status
	}

	// Re-derive the fee split from the authoritative escrowed value in
	// case the money columns drifted too.
	value := chain.FromBaseUnits(acct.Value)
	if quote, qErr := chain.QuoteDeposit(value); qErr == nil {
		post.Value = quote.Value
		post.PlatformFee = quote.PlatformFee
		post.TotalDeposit = quote.TotalDeposit
	}

	post.NeedsSync = false
	if _, err := r.index.UpdatePost(ctx, post); err != nil {
		return fmt.Errorf("rewrite projection: %w", err)
	}
	return nil
}

func statusFromAccount(acct *chain.PostAccount) market.PostStatus {
	switch {
	case acct.IsCompleted:
		return market.PostCompleted
	case acct.AcceptedHelper != nil:
		return market.PostInProgress
	case acct.IsOpen:
		return market.PostOpen
	default:
		return market.PostCancelled
	}
}
