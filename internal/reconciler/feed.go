package reconciler

import (
	"context"
	"time"

	"github.com/Veraticus/storefront-checkout/internal/events"
)

const refreshTimeout = 10 * time.Second

// connectLocked opens a feed connection for generation gen unless that
// generation is gone or the payment is already resolved.
func (r *Reconciler) connectLocked(gen uint64, transactionID string) {
	if gen != r.generation || r.payment.Status.IsTerminal() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancelFeed = cancel
	r.timer = nil

	handler := &feedHandler{r: r, ctx: ctx, gen: gen, transactionID: transactionID}
	go func() {
		err := r.feed.Subscribe(ctx, transactionID, handler)
		cancel()
		r.feedEnded(gen, transactionID, err)
	}()
}

// reconnect runs when a scheduled reconnect fires.
func (r *Reconciler) reconnect(gen uint64, transactionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectLocked(gen, transactionID)
}

// feedEnded schedules a reconnect unless the connection was closed on
// purpose. Every deliberate close either bumps the generation or follows a
// terminal status.
func (r *Reconciler) feedEnded(gen uint64, transactionID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.generation || r.payment.Status.IsTerminal() {
		return
	}

	r.cancelFeed = nil
	r.payment.RetryCount = nextAttempt(r.payment.RetryCount)
	delay := ReconnectDelay(r.payment.RetryCount)

	r.logger.Warn("Event stream lost, reconnecting",
		"transaction_id", transactionID,
		"attempt", r.payment.RetryCount,
		"delay", delay,
		"error", err)

	r.timer = r.afterFunc(delay, func() { r.reconnect(gen, transactionID) })
}

func (r *Reconciler) feedOpened(gen uint64, transactionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return
	}
	r.payment.RetryCount = 0
	r.logger.Debug("Event stream connected", "transaction_id", transactionID)
}

func (r *Reconciler) feedMessage(ctx context.Context, gen uint64, transactionID string, data []byte) {
	msg, err := events.ParseStatusMessage(data)
	if err != nil {
		r.logger.Warn("Ignoring unreadable event", "transaction_id", transactionID, "error", err)
		return
	}

	if msg.HasStatus() {
		r.mu.Lock()
		if gen == r.generation {
			r.advanceLocked(msg.Status)
		}
		r.mu.Unlock()
		r.flush()
		return
	}

	if msg.ID != "" {
		r.refresh(ctx, gen, transactionID)
	}
}

// refresh reads the tracked transaction's status after an event that
// named the transaction without carrying a status.
func (r *Reconciler) refresh(ctx context.Context, gen uint64, transactionID string) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	status, err := r.fetcher.GetStatus(ctx, transactionID)
	if err != nil {
		r.logger.Warn("Status refresh failed", "transaction_id", transactionID, "error", err)
		return
	}

	r.mu.Lock()
	if gen == r.generation {
		r.advanceLocked(status)
	}
	r.mu.Unlock()
	r.flush()
}

type feedHandler struct {
	r             *Reconciler
	ctx           context.Context
	transactionID string
	gen           uint64
}

func (h *feedHandler) OnOpen() {
	h.r.feedOpened(h.gen, h.transactionID)
}

func (h *feedHandler) OnMessage(data []byte) {
	h.r.feedMessage(h.ctx, h.gen, h.transactionID, data)
}
