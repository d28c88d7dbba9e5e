// Package reconciler tracks the single in-flight payment across restarts and
// reconciles its status from synchronous responses, status reads and the
// transaction's event stream.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/storefront-checkout/internal/common"
	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/service"
)

const storeTimeout = 5 * time.Second

// Update is one status change of the tracked transaction.
type Update struct {
	Status        model.Status
	TransactionID string
}

// Config holds the reconciler's collaborators.
type Config struct {
	Store          service.KVStore
	Fetcher        service.StatusFetcher
	Feed           service.EventFeed
	Logger         *slog.Logger
	AfterFunc      AfterFunc
	Now            func() time.Time
	OnStatusChange func(Update)
}

// Reconciler owns the PENDING and terminal part of a payment's lifecycle.
// All state changes are serialized; updates are delivered in order outside
// the lock.
type Reconciler struct {
	store     service.KVStore
	fetcher   service.StatusFetcher
	feed      service.EventFeed
	logger    *slog.Logger
	afterFunc AfterFunc
	now       func() time.Time

	onChange   func(Update)
	outbox     []Update
	delivering bool

	cancelFeed context.CancelFunc
	timer      Timer
	payment    model.PendingPayment
	delivered  model.Status
	generation uint64

	mu sync.Mutex
}

// New creates a reconciler. Store, Fetcher and Feed are required.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, errors.New("reconciler: store is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("reconciler: status fetcher is required")
	}
	if cfg.Feed == nil {
		return nil, errors.New("reconciler: event feed is required")
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = realAfterFunc
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Reconciler{
		store:     cfg.Store,
		fetcher:   cfg.Fetcher,
		feed:      cfg.Feed,
		logger:    common.ComponentLogger(cfg.Logger, "reconciler"),
		afterFunc: cfg.AfterFunc,
		now:       cfg.Now,
		onChange:  cfg.OnStatusChange,
		payment:   model.PendingPayment{Status: model.StatusUnstarted},
	}, nil
}

// OnStatusChange replaces the single status subscriber.
func (r *Reconciler) OnStatusChange(fn func(Update)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Snapshot returns a copy of the tracked payment.
func (r *Reconciler) Snapshot() model.PendingPayment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payment
}

// BeginTracking persists transactionID as the payment in flight and starts
// resolving its status. It panics if a payment is already tracked. The only
// error is a failed durable write, in which case nothing is tracked.
func (r *Reconciler) BeginTracking(ctx context.Context, transactionID string) error {
	if transactionID == "" {
		panic("reconciler: BeginTracking with empty transaction id")
	}

	r.mu.Lock()
	if r.payment.IsTracked() {
		tracked := r.payment.TransactionID
		r.mu.Unlock()
		panic(fmt.Sprintf("reconciler: BeginTracking(%s) while tracking %s", transactionID, tracked))
	}
	if err := r.store.Set(ctx, service.PendingTransactionKey, transactionID); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to persist pending transaction: %w", err)
	}
	r.generation++
	gen := r.generation
	r.payment = model.PendingPayment{
		TransactionID:  transactionID,
		Status:         model.StatusPending,
		CreatedAtLocal: r.now(),
	}
	r.delivered = ""
	r.mu.Unlock()

	r.logger.Info("Tracking payment", "transaction_id", transactionID)

	status, err := r.fetcher.GetStatus(ctx, transactionID)
	if err != nil {
		r.logger.Warn("Initial status read failed, waiting on events",
			"transaction_id", transactionID, "error", err)
	}

	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		return nil
	}
	if err == nil && status.IsTerminal() {
		r.advanceLocked(status)
	} else {
		r.deliverPendingLocked()
		r.connectLocked(gen, transactionID)
	}
	r.mu.Unlock()

	r.flush()
	return nil
}

// ResumeTrackingIfPending starts tracking the persisted payment, if any.
func (r *Reconciler) ResumeTrackingIfPending(ctx context.Context) (bool, error) {
	id, ok, err := r.PendingID(ctx)
	if err != nil || !ok {
		return false, err
	}

	r.mu.Lock()
	tracked := r.payment.TransactionID
	r.mu.Unlock()
	if tracked == id {
		return true, nil
	}

	r.logger.Info("Resuming pending payment", "transaction_id", id)
	if err := r.BeginTracking(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// PendingID reads the durable key without tracking it.
func (r *Reconciler) PendingID(ctx context.Context) (string, bool, error) {
	id, ok, err := r.store.Get(ctx, service.PendingTransactionKey)
	if err != nil {
		return "", false, fmt.Errorf("failed to read pending transaction: %w", err)
	}
	return id, ok && id != "", nil
}

// EndTracking forgets the payment: the durable key is removed, the feed is
// closed and any scheduled reconnect is cancelled. Safe to call repeatedly.
func (r *Reconciler) EndTracking() {
	r.mu.Lock()
	id := r.payment.TransactionID
	r.stopLocked()
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.store.Remove(ctx, service.PendingTransactionKey); err != nil {
		common.LogError(err, "Failed to clear pending transaction", common.Fields{"transaction_id": id})
	}

	if id != "" {
		r.logger.Info("Stopped tracking payment", "transaction_id", id)
	}
}

// Detach stops waiting for the payment but keeps the durable key, so a
// later ResumeTrackingIfPending picks it up again.
func (r *Reconciler) Detach() {
	r.mu.Lock()
	id := r.payment.TransactionID
	r.stopLocked()
	r.mu.Unlock()

	if id != "" {
		r.logger.Info("Detached from payment", "transaction_id", id)
	}
}

// Resolve feeds a synchronously learned status through the same guard as
// pushed events. It reports whether the status was applied.
func (r *Reconciler) Resolve(transactionID string, status model.Status) bool {
	r.mu.Lock()
	if !r.payment.IsTracked() || r.payment.TransactionID != transactionID {
		r.mu.Unlock()
		r.logger.Debug("Ignoring status for untracked transaction",
			"transaction_id", transactionID, "status", status)
		return false
	}
	applied := r.advanceLocked(status)
	r.mu.Unlock()

	r.flush()
	return applied
}

// stopLocked bumps the generation so that in-flight work for the previous
// payment is discarded, and releases the feed and timer.
func (r *Reconciler) stopLocked() {
	r.generation++
	if r.cancelFeed != nil {
		r.cancelFeed()
		r.cancelFeed = nil
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.payment = model.PendingPayment{Status: model.StatusUnstarted}
	r.delivered = ""
	// Queued updates belong to the payment just dropped.
	r.outbox = nil
}

// advanceLocked applies a forward status change. Reaching a terminal status
// closes the feed and cancels any reconnect.
func (r *Reconciler) advanceLocked(status model.Status) bool {
	if status == model.StatusPending {
		return r.deliverPendingLocked()
	}
	if !r.payment.Status.CanAdvanceTo(status) {
		return false
	}

	r.payment.Status = status
	r.enqueueLocked(status)

	if status.IsTerminal() {
		if r.cancelFeed != nil {
			r.cancelFeed()
			r.cancelFeed = nil
		}
		if r.timer != nil {
			r.timer.Stop()
			r.timer = nil
		}
		r.logger.Info("Payment resolved",
			"transaction_id", r.payment.TransactionID,
			"status", status)
	}
	return true
}

func (r *Reconciler) deliverPendingLocked() bool {
	if r.payment.Status != model.StatusPending || r.delivered == model.StatusPending {
		return false
	}
	r.enqueueLocked(model.StatusPending)
	return true
}

func (r *Reconciler) enqueueLocked(status model.Status) {
	r.delivered = status
	r.outbox = append(r.outbox, Update{Status: status, TransactionID: r.payment.TransactionID})
}

// flush delivers queued updates in order. A callback that re-enters the
// reconciler only queues; the active flush delivers what it queued.
func (r *Reconciler) flush() {
	r.mu.Lock()
	if r.delivering {
		r.mu.Unlock()
		return
	}
	r.delivering = true

	for len(r.outbox) > 0 {
		update := r.outbox[0]
		r.outbox = r.outbox[1:]
		fn := r.onChange
		r.mu.Unlock()

		if fn != nil {
			fn(update)
		}

		r.mu.Lock()
	}

	r.delivering = false
	r.mu.Unlock()
}
