package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/storefront-checkout/internal/backend"
	"github.com/Veraticus/storefront-checkout/internal/common"
	"github.com/Veraticus/storefront-checkout/internal/events"
	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/reconciler"
	"github.com/Veraticus/storefront-checkout/internal/service"
	"github.com/Veraticus/storefront-checkout/internal/storage"
	"github.com/Veraticus/storefront-checkout/internal/testutil"
	"github.com/Veraticus/storefront-checkout/internal/tokenizer"
)

type fixture struct {
	flow  *Flow
	fake  *testutil.FakeBackend
	store *storage.SQLiteStorage
}

func newFixture(t *testing.T, fake *testutil.FakeBackend, store *storage.SQLiteStorage) *fixture {
	t.Helper()
	return newWrappedFixture(t, fake, store, nil)
}

// newWrappedFixture lets wrap sit between the flow and the backend client.
func newWrappedFixture(
	t *testing.T,
	fake *testutil.FakeBackend,
	store *storage.SQLiteStorage,
	wrap func(service.TransactionBackend) service.TransactionBackend,
) *fixture {
	t.Helper()
	if fake == nil {
		fake = testutil.NewFakeBackend(t)
	}
	if store == nil {
		store = testutil.SetupTestDB(t)
	}

	backendClient := backend.NewClient(fake.URL(), 5*time.Second)
	rec, err := reconciler.New(reconciler.Config{
		Store:   store,
		Fetcher: backendClient,
		Feed:    events.NewClient(fake.URL()),
	})
	require.NoError(t, err)
	t.Cleanup(rec.Detach)

	var flowBackend service.TransactionBackend = backendClient
	if wrap != nil {
		flowBackend = wrap(backendClient)
	}

	flow, err := New(Config{
		Backend:    flowBackend,
		Tokenizer:  tokenizer.NewClient(fake.URL(), testutil.TestPublicKey),
		Reconciler: rec,
		History:    store,
	})
	require.NoError(t, err)

	return &fixture{flow: flow, fake: fake, store: store}
}

// lostResponseBackend lets the payment reach the backend, then fails the
// call as if the response never arrived.
type lostResponseBackend struct {
	service.TransactionBackend
	fail func() error
}

func (b *lostResponseBackend) ProcessPayment(
	ctx context.Context, id string, req service.ProcessRequest,
) (model.Status, error) {
	if _, err := b.TransactionBackend.ProcessPayment(context.WithoutCancel(ctx), id, req); err != nil {
		return "", err
	}
	return "", b.fail()
}

func testOrder() model.Order {
	return model.Order{
		Customer: model.Customer{
			Email:    "ana@example.com",
			FullName: "Ana Gomez",
			Phone:    "+57 300 123 4567",
		},
		Delivery: model.Delivery{
			Address: "Calle 123 # 45-67",
			City:    "Bogota",
		},
		ProductID: "prod-1",
		UnitPrice: 150000,
		Quantity:  2,
	}
}

func testCard() model.Card {
	return model.Card{
		Number:   "4242 4242 4242 4242",
		CVC:      "123",
		Holder:   "Ana Gomez",
		ExpMonth: 12,
		ExpYear:  time.Now().Year() + 3,
	}
}

func nextUpdate(t *testing.T, flow *Flow) reconciler.Update {
	t.Helper()
	select {
	case u := <-flow.Updates():
		return u
	case <-time.After(3 * time.Second):
		t.Fatal("no status update")
		return reconciler.Update{}
	}
}

func TestFlow_ApprovedSynchronously(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.fake.SetProcessStatus(model.StatusApproved)
	ctx := context.Background()

	quote, err := fx.flow.Start(ctx, testOrder())
	require.NoError(t, err)
	assert.Equal(t, int64(300000), quote.Subtotal)
	assert.Equal(t, int64(9000), quote.BaseFee)
	assert.Equal(t, int64(314000), quote.Total)
	assert.Equal(t, model.StatusAwaitingCard, fx.flow.Status())

	id := fx.flow.TransactionID()
	assert.Equal(t, int64(314000), fx.fake.InitRequest(id).Amount)

	summary, err := fx.flow.Summary(testCard())
	require.NoError(t, err)
	assert.Equal(t, "**** **** **** 4242", summary.Card)
	assert.Equal(t, model.BrandVisa, summary.Brand)
	assert.Equal(t, id, summary.TransactionID)

	require.NoError(t, fx.flow.Submit(ctx, testCard()))
	assert.Equal(t, reconciler.Update{Status: model.StatusPending, TransactionID: id}, nextUpdate(t, fx.flow))
	assert.Equal(t, reconciler.Update{Status: model.StatusApproved, TransactionID: id}, nextUpdate(t, fx.flow))

	processed := fx.fake.ProcessRequest(id)
	require.NotNil(t, processed)
	assert.Equal(t, "accept-123", processed.AcceptanceToken)
	assert.Equal(t, "Bogota", processed.City)
	_, ok := fx.fake.Tokenized(processed.CardToken)
	assert.True(t, ok)

	record, err := fx.flow.Acknowledge(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, record.Status)
	assert.Equal(t, model.StatusUnstarted, fx.flow.Status())

	history, err := fx.store.ListPayments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].TransactionID)

	_, ok, err = fx.store.Get(ctx, service.PendingTransactionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlow_PendingResolvedByEvent(t *testing.T) {
	fx := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := fx.flow.Start(ctx, testOrder())
	require.NoError(t, err)
	id := fx.flow.TransactionID()

	require.NoError(t, fx.flow.Submit(ctx, testCard()))
	assert.Equal(t, model.StatusPending, nextUpdate(t, fx.flow).Status)
	assert.Equal(t, model.StatusPending, fx.flow.Status())

	require.Eventually(t, func() bool { return fx.fake.StreamOpens(id) == 1 }, 3*time.Second, 10*time.Millisecond)
	fx.fake.Push(id, `{"data":{"status":"declined"}}`)

	assert.Equal(t, reconciler.Update{Status: model.StatusDeclined, TransactionID: id}, nextUpdate(t, fx.flow))
	assert.Equal(t, model.StatusDeclined, fx.flow.Status())
}

func TestFlow_TokenizationFailureResolvesToError(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.fake.FailTokenize(1)
	ctx := context.Background()

	_, err := fx.flow.Start(ctx, testOrder())
	require.NoError(t, err)
	id := fx.flow.TransactionID()

	err = fx.flow.Submit(ctx, testCard())
	require.ErrorIs(t, err, common.ErrTokenization)
	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)

	assert.Equal(t, model.StatusPending, nextUpdate(t, fx.flow).Status)
	assert.Equal(t, reconciler.Update{Status: model.StatusError, TransactionID: id}, nextUpdate(t, fx.flow))
	assert.Nil(t, fx.fake.ProcessRequest(id))
}

func TestFlow_ProcessFailureResolvesToError(t *testing.T) {
	fx := newFixture(t, nil, nil)
	fx.fake.FailProcess(1)
	ctx := context.Background()

	_, err := fx.flow.Start(ctx, testOrder())
	require.NoError(t, err)

	err = fx.flow.Submit(ctx, testCard())
	require.ErrorIs(t, err, common.ErrBackend)
	assert.Equal(t, model.StatusPending, nextUpdate(t, fx.flow).Status)
	assert.Equal(t, model.StatusError, nextUpdate(t, fx.flow).Status)
}

func TestFlow_StartRefusedWhilePaymentPending(t *testing.T) {
	fx := newFixture(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, fx.store.Set(ctx, service.PendingTransactionKey, "tx-old"))

	_, err := fx.flow.Start(ctx, testOrder())
	require.ErrorIs(t, err, ErrPaymentInFlight)
	assert.Equal(t, model.StatusUnstarted, fx.flow.Status())
}

func TestFlow_StartRejectsInvalidOrder(t *testing.T) {
	fx := newFixture(t, nil, nil)
	order := testOrder()
	order.Customer.Email = "not-an-email"

	_, err := fx.flow.Start(context.Background(), order)
	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, model.StatusUnstarted, fx.flow.Status())
}

func TestFlow_SubmitRejectsInvalidCardWithoutTracking(t *testing.T) {
	fx := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := fx.flow.Start(ctx, testOrder())
	require.NoError(t, err)

	card := testCard()
	card.Number = "5555 5555 5555 444"
	err = fx.flow.Submit(ctx, card)

	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, model.StatusAwaitingCard, fx.flow.Status())
	_, ok, err := fx.store.Get(ctx, service.PendingTransactionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlow_WrongSteps(t *testing.T) {
	fx := newFixture(t, nil, nil)
	ctx := context.Background()

	require.ErrorIs(t, fx.flow.Submit(ctx, testCard()), common.ErrWrongStep)
	_, err := fx.flow.Summary(testCard())
	require.ErrorIs(t, err, common.ErrWrongStep)
	_, err = fx.flow.Acknowledge(ctx)
	require.ErrorIs(t, err, common.ErrWrongStep)

	_, err = fx.flow.Start(ctx, testOrder())
	require.NoError(t, err)
	_, err = fx.flow.Start(ctx, testOrder())
	require.ErrorIs(t, err, common.ErrWrongStep)
}

func TestFlow_Abandon(t *testing.T) {
	fx := newFixture(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, fx.flow.Abandon())

	_, err := fx.flow.Start(ctx, testOrder())
	require.NoError(t, err)
	require.NoError(t, fx.flow.Abandon())
	assert.Equal(t, model.StatusUnstarted, fx.flow.Status())
	assert.Empty(t, fx.flow.TransactionID())

	_, err = fx.flow.Start(ctx, testOrder())
	require.NoError(t, err)
	require.NoError(t, fx.flow.Submit(ctx, testCard()))
	require.ErrorIs(t, fx.flow.Abandon(), ErrPaymentInFlight)
}

func TestFlow_ResumeAfterDetach(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	first := newFixture(t, fake, store)
	_, err := first.flow.Start(ctx, testOrder())
	require.NoError(t, err)
	id := first.flow.TransactionID()
	require.NoError(t, first.flow.Submit(ctx, testCard()))
	assert.Equal(t, model.StatusPending, nextUpdate(t, first.flow).Status)
	first.flow.Detach()

	_, err = first.flow.Start(ctx, testOrder())
	require.ErrorIs(t, err, ErrPaymentInFlight)

	fake.SetStatus(id, model.StatusApproved)
	second := newFixture(t, fake, store)
	resumed, err := second.flow.Resume(ctx)
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, reconciler.Update{Status: model.StatusApproved, TransactionID: id}, nextUpdate(t, second.flow))

	_, err = second.flow.Acknowledge(ctx)
	require.NoError(t, err)
	resumed, err = second.flow.Resume(ctx)
	require.NoError(t, err)
	assert.False(t, resumed)
}

func TestFlow_InterruptedSubmitKeepsPaymentPending(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	store := testutil.SetupTestDB(t)
	fake.SetProcessStatus(model.StatusApproved)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := newWrappedFixture(t, fake, store, func(b service.TransactionBackend) service.TransactionBackend {
		return &lostResponseBackend{TransactionBackend: b, fail: func() error {
			cancel()
			return ctx.Err()
		}}
	})
	_, err := first.flow.Start(ctx, testOrder())
	require.NoError(t, err)
	id := first.flow.TransactionID()

	err = first.flow.Submit(ctx, testCard())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.StatusPending, nextUpdate(t, first.flow).Status)
	first.flow.Detach()

	pending, ok, err := store.Get(context.Background(), service.PendingTransactionKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, pending)

	second := newFixture(t, fake, store)
	resumed, err := second.flow.Resume(context.Background())
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, reconciler.Update{Status: model.StatusApproved, TransactionID: id}, nextUpdate(t, second.flow))
}

func TestFlow_LostProcessResponseRereadsStatus(t *testing.T) {
	tests := []struct {
		name          string
		processStatus model.Status
		want          model.Status
	}{
		{name: "backend approved", processStatus: model.StatusApproved, want: model.StatusApproved},
		{name: "backend declined", processStatus: model.StatusDeclined, want: model.StatusDeclined},
		{name: "backend still pending", processStatus: model.StatusPending, want: model.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeBackend(t)
			fake.SetProcessStatus(tt.processStatus)
			fx := newWrappedFixture(t, fake, nil, func(b service.TransactionBackend) service.TransactionBackend {
				return &lostResponseBackend{TransactionBackend: b, fail: func() error {
					return errors.New("connection reset by peer")
				}}
			})
			ctx := context.Background()

			_, err := fx.flow.Start(ctx, testOrder())
			require.NoError(t, err)

			require.Error(t, fx.flow.Submit(ctx, testCard()))
			assert.Equal(t, model.StatusPending, nextUpdate(t, fx.flow).Status)
			assert.Equal(t, tt.want, nextUpdate(t, fx.flow).Status)
		})
	}
}
