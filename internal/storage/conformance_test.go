package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/service"
)

// runStorageConformance exercises the behavior every Storage must share.
func runStorageConformance(t *testing.T, store service.Storage) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		value, ok, err := store.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, value)
	})

	t.Run("set get overwrite remove", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, service.PendingTransactionKey, "tx-1"))
		value, ok, err := store.Get(ctx, service.PendingTransactionKey)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "tx-1", value)

		require.NoError(t, store.Set(ctx, service.PendingTransactionKey, "tx-2"))
		value, _, err = store.Get(ctx, service.PendingTransactionKey)
		require.NoError(t, err)
		assert.Equal(t, "tx-2", value)

		require.NoError(t, store.Remove(ctx, service.PendingTransactionKey))
		_, ok, err = store.Get(ctx, service.PendingTransactionKey)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("remove missing key", func(t *testing.T) {
		require.NoError(t, store.Remove(ctx, "never-set"))
	})

	t.Run("empty key rejected", func(t *testing.T) {
		_, _, err := store.Get(ctx, "")
		require.ErrorIs(t, err, ErrEmptyString)
		require.ErrorIs(t, store.Set(ctx, " ", "v"), ErrEmptyString)
		require.ErrorIs(t, store.Remove(ctx, ""), ErrEmptyString)
	})

	t.Run("history newest first", func(t *testing.T) {
		base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		records := []model.PaymentRecord{
			{TransactionID: "tx-a", Status: model.StatusApproved, StartedAt: base, ResolvedAt: base.Add(time.Second)},
			{TransactionID: "tx-b", Status: model.StatusDeclined, StartedAt: base, ResolvedAt: base.Add(2 * time.Second)},
			{TransactionID: "tx-c", Status: model.StatusError, ResolvedAt: base.Add(3 * time.Second)},
		}
		for _, r := range records {
			require.NoError(t, store.RecordPayment(ctx, r))
		}

		got, err := store.ListPayments(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "tx-c", got[0].TransactionID)
		assert.Equal(t, model.StatusError, got[0].Status)
		assert.True(t, got[0].StartedAt.IsZero())
		assert.Equal(t, "tx-b", got[1].TransactionID)
		assert.True(t, got[1].ResolvedAt.Equal(base.Add(2*time.Second)))

		all, err := store.ListPayments(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("history rejects unresolved payments", func(t *testing.T) {
		err := store.RecordPayment(ctx, model.PaymentRecord{
			TransactionID: "tx-p",
			Status:        model.StatusPending,
			ResolvedAt:    time.Now(),
		})
		require.ErrorIs(t, err, ErrInvalidRecord)

		err = store.RecordPayment(ctx, model.PaymentRecord{Status: model.StatusApproved, ResolvedAt: time.Now()})
		require.ErrorIs(t, err, ErrInvalidRecord)

		err = store.RecordPayment(ctx, model.PaymentRecord{TransactionID: "tx-q", Status: model.StatusApproved})
		require.ErrorIs(t, err, ErrInvalidRecord)
	})
}
