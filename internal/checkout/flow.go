// Package checkout drives one purchase from delivery details to a resolved
// payment.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/storefront-checkout/internal/common"
	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/reconciler"
	"github.com/Veraticus/storefront-checkout/internal/service"
)

const (
	updateBuffer         = 16
	statusRecheckTimeout = 10 * time.Second
)

// ErrPaymentInFlight is returned when a new checkout would start while
// another payment is unresolved.
var ErrPaymentInFlight = common.ErrPaymentInFlight

// Config holds the flow's collaborators. History is optional.
type Config struct {
	Backend    service.TransactionBackend
	Tokenizer  service.CardTokenizer
	Reconciler *reconciler.Reconciler
	History    service.HistoryStore
	Logger     *slog.Logger
	Now        func() time.Time
}

// Summary is what the buyer confirms before paying.
type Summary struct {
	Order         model.Order
	Quote         model.Quote
	TransactionID string
	Card          string
	Brand         model.CardBrand
}

// Flow owns the lifecycle up to SUBMITTING; the reconciler owns the rest.
type Flow struct {
	backend    service.TransactionBackend
	tokenizer  service.CardTokenizer
	reconciler *reconciler.Reconciler
	history    service.HistoryStore
	logger     *slog.Logger
	now        func() time.Time
	updates    chan reconciler.Update

	order         model.Order
	quote         model.Quote
	status        model.Status
	transactionID string
	attempt       uint64

	mu sync.Mutex
}

// New creates a flow and subscribes it to the reconciler.
func New(cfg Config) (*Flow, error) {
	if cfg.Backend == nil || cfg.Tokenizer == nil || cfg.Reconciler == nil {
		return nil, errors.New("checkout: backend, tokenizer and reconciler are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	f := &Flow{
		backend:    cfg.Backend,
		tokenizer:  cfg.Tokenizer,
		reconciler: cfg.Reconciler,
		history:    cfg.History,
		logger:     common.ComponentLogger(cfg.Logger, "checkout"),
		now:        cfg.Now,
		updates:    make(chan reconciler.Update, updateBuffer),
		status:     model.StatusUnstarted,
	}
	cfg.Reconciler.OnStatusChange(f.publish)
	return f, nil
}

// Updates delivers every status change of the tracked payment.
func (f *Flow) Updates() <-chan reconciler.Update {
	return f.updates
}

func (f *Flow) publish(update reconciler.Update) {
	select {
	case f.updates <- update:
	default:
		f.logger.Warn("Dropping status update, nobody is listening",
			"transaction_id", update.TransactionID, "status", update.Status)
	}
}

// Status is the current lifecycle status, whoever owns it.
func (f *Flow) Status() model.Status {
	if snap := f.reconciler.Snapshot(); snap.IsTracked() {
		return snap.Status
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// TransactionID is the backend id of the current payment, if any.
func (f *Flow) TransactionID() string {
	if snap := f.reconciler.Snapshot(); snap.IsTracked() {
		return snap.TransactionID
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transactionID
}

// Start validates the order and creates its backend transaction.
func (f *Flow) Start(ctx context.Context, order model.Order) (model.Quote, error) {
	if err := f.ensureNothingPending(ctx); err != nil {
		return model.Quote{}, err
	}
	if err := order.Validate(); err != nil {
		return model.Quote{}, err
	}

	f.mu.Lock()
	if f.status != model.StatusUnstarted {
		status := f.status
		f.mu.Unlock()
		return model.Quote{}, fmt.Errorf("%w: cannot start from %s", common.ErrWrongStep, status)
	}
	f.attempt++
	attempt := f.attempt
	f.order = order
	f.quote = order.Quote()
	f.status = model.StatusCreating
	quote := f.quote
	f.mu.Unlock()

	id, err := f.backend.InitTransaction(ctx, service.InitRequest{
		ProductID:        order.ProductID,
		CustomerEmail:    order.Customer.Email,
		CustomerFullName: order.Customer.FullName,
		CustomerPhone:    order.Customer.Phone,
		City:             order.Delivery.City,
		Address:          order.Delivery.Address,
		Quantity:         order.Quantity,
		Amount:           quote.Total,
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if attempt != f.attempt {
		return model.Quote{}, fmt.Errorf("%w: checkout was abandoned", common.ErrWrongStep)
	}
	if err != nil {
		f.status = model.StatusUnstarted
		return model.Quote{}, common.NewUserError("Could not start the transaction", err)
	}

	f.transactionID = id
	f.status = model.StatusAwaitingCard
	f.logger.Info("Transaction created", "transaction_id", id, "total", quote.Total)
	return quote, nil
}

// Summary returns what the buyer is about to pay for with card.
func (f *Flow) Summary(card model.Card) (Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != model.StatusAwaitingCard {
		return Summary{}, fmt.Errorf("%w: summary needs a transaction awaiting a card", common.ErrWrongStep)
	}
	return Summary{
		Order:         f.order,
		Quote:         f.quote,
		TransactionID: f.transactionID,
		Card:          card.Masked(),
		Brand:         card.Brand(),
	}, nil
}

// Submit pays with card. Tracking starts before the card leaves the
// process, so an interrupted submission is resumed rather than repeated.
// A cancelled ctx leaves the payment PENDING with its key saved. Other
// failures resolve it to ERROR unless the backend reports a verdict.
func (f *Flow) Submit(ctx context.Context, card model.Card) error {
	f.mu.Lock()
	if f.status != model.StatusAwaitingCard {
		status := f.status
		f.mu.Unlock()
		return fmt.Errorf("%w: cannot submit from %s", common.ErrWrongStep, status)
	}
	if err := card.Validate(f.now()); err != nil {
		f.mu.Unlock()
		return err
	}
	id := f.transactionID
	delivery := f.order.Delivery
	f.status = model.StatusSubmitting
	f.mu.Unlock()

	acceptance, err := f.backend.AcceptanceToken(ctx)
	if err != nil {
		f.setStatus(model.StatusAwaitingCard)
		return common.NewUserError("Could not load the payment terms", err)
	}

	if err := f.reconciler.BeginTracking(ctx, id); err != nil {
		f.setStatus(model.StatusAwaitingCard)
		return common.NewUserError("Could not save the pending payment", err)
	}
	f.setStatus(model.StatusPending)

	if f.reconciler.Snapshot().Status.IsTerminal() {
		f.logger.Warn("Transaction already resolved before submission", "transaction_id", id)
		return nil
	}

	token, err := f.tokenizer.TokenizeCard(ctx, card)
	if err != nil {
		if ctx.Err() != nil {
			return f.interrupted(id, err)
		}
		f.reconciler.Resolve(id, model.StatusError)
		return common.NewUserError("The card could not be validated", err)
	}

	status, err := f.backend.ProcessPayment(ctx, id, service.ProcessRequest{
		CardToken:       token,
		AcceptanceToken: acceptance.Token,
		Address:         delivery.Address,
		City:            delivery.City,
	})
	if err != nil {
		if ctx.Err() != nil {
			return f.interrupted(id, err)
		}
		f.reconciler.Resolve(id, f.statusAfterFailure(ctx, id, err))
		return common.NewUserError("The payment could not be processed", err)
	}

	f.logger.Info("Payment submitted", "transaction_id", id, "status", status)
	if status.IsTerminal() {
		f.reconciler.Resolve(id, status)
	}
	return nil
}

// interrupted leaves id tracked so a later run can resume it.
func (f *Flow) interrupted(id string, err error) error {
	f.logger.Warn("Submission interrupted, payment left pending", "transaction_id", id)
	return common.NewUserError("Payment submission was interrupted", err)
}

// statusAfterFailure decides how a failed process call resolves. A backend
// answer is final. Without one the request may still have been charged, so
// the backend is asked once before settling on ERROR.
func (f *Flow) statusAfterFailure(ctx context.Context, id string, err error) model.Status {
	var httpErr *common.HTTPError
	if errors.As(err, &httpErr) {
		return model.StatusError
	}
	readCtx, cancel := context.WithTimeout(ctx, statusRecheckTimeout)
	defer cancel()
	status, readErr := f.backend.GetStatus(readCtx, id)
	if readErr != nil {
		f.logger.Warn("Status re-read failed", "transaction_id", id, "error", readErr)
		return model.StatusError
	}
	if status.IsTerminal() {
		f.logger.Info("Backend resolved payment despite failed submission", "transaction_id", id, "status", status)
		return status
	}
	return model.StatusError
}

// Resume picks up a payment left pending by an earlier run.
func (f *Flow) Resume(ctx context.Context) (bool, error) {
	f.mu.Lock()
	if f.status != model.StatusUnstarted {
		status := f.status
		f.mu.Unlock()
		return false, fmt.Errorf("%w: cannot resume from %s", common.ErrWrongStep, status)
	}
	f.mu.Unlock()

	resumed, err := f.reconciler.ResumeTrackingIfPending(ctx)
	if err != nil || !resumed {
		return false, err
	}

	f.mu.Lock()
	f.status = model.StatusPending
	f.transactionID = f.reconciler.Snapshot().TransactionID
	f.mu.Unlock()
	return true, nil
}

// Abandon drops a checkout that has not submitted a card. A created
// backend transaction is left unpaid.
func (f *Flow) Abandon() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.status {
	case model.StatusUnstarted, model.StatusCreating, model.StatusAwaitingCard:
	default:
		return fmt.Errorf("%w: payment already submitted", ErrPaymentInFlight)
	}

	if f.transactionID != "" {
		f.logger.Info("Checkout abandoned", "transaction_id", f.transactionID)
	}
	f.attempt++
	f.resetLocked()
	return nil
}

// Detach stops waiting for a submitted payment without forgetting it.
func (f *Flow) Detach() {
	f.reconciler.Detach()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
}

// Acknowledge closes a resolved payment: it is recorded in the history and
// the durable key is cleared.
func (f *Flow) Acknowledge(ctx context.Context) (model.PaymentRecord, error) {
	snap := f.reconciler.Snapshot()
	if !snap.IsTracked() || !snap.Status.IsTerminal() {
		return model.PaymentRecord{}, fmt.Errorf("%w: payment is not resolved", common.ErrWrongStep)
	}

	record := model.PaymentRecord{
		TransactionID: snap.TransactionID,
		Status:        snap.Status,
		StartedAt:     snap.CreatedAtLocal,
		ResolvedAt:    f.now(),
	}
	if f.history != nil {
		if err := f.history.RecordPayment(ctx, record); err != nil {
			common.LogError(err, "Failed to record payment history", common.Fields{
				"transaction_id": record.TransactionID,
			})
		}
	}

	f.reconciler.EndTracking()

	f.mu.Lock()
	f.resetLocked()
	f.mu.Unlock()
	return record, nil
}

func (f *Flow) ensureNothingPending(ctx context.Context) error {
	if snap := f.reconciler.Snapshot(); snap.IsTracked() {
		return fmt.Errorf("%w: %s", ErrPaymentInFlight, snap.TransactionID)
	}
	id, ok, err := f.reconciler.PendingID(ctx)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrPaymentInFlight, id)
	}
	return nil
}

func (f *Flow) setStatus(status model.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *Flow) resetLocked() {
	f.status = model.StatusUnstarted
	f.transactionID = ""
	f.order = model.Order{}
	f.quote = model.Quote{}
}
