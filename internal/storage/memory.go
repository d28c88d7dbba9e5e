package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/service"
)

// MemoryStore is a process-local Storage. Nothing survives a restart.
type MemoryStore struct {
	values  map[string]string
	history map[string]model.PaymentRecord
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:  make(map[string]string),
		history: make(map[string]model.PaymentRecord),
	}
}

// Get reads a value.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateContext(ctx); err != nil {
		return "", false, err
	}
	if err := validateString(key, "key"); err != nil {
		return "", false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok, nil
}

// Set writes a value.
func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Remove deletes a key.
func (m *MemoryStore) Remove(ctx context.Context, key string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// RecordPayment stores a resolved payment, replacing any earlier record for
// the same transaction.
func (m *MemoryStore) RecordPayment(ctx context.Context, record model.PaymentRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecord(record); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[record.TransactionID] = record
	return nil
}

// ListPayments returns the most recently resolved payments first.
func (m *MemoryStore) ListPayments(ctx context.Context, limit int) ([]model.PaymentRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	m.mu.RLock()
	records := make([]model.PaymentRecord, 0, len(m.history))
	for _, r := range m.history {
		records = append(records, r)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].ResolvedAt.Equal(records[j].ResolvedAt) {
			return records[i].TransactionID < records[j].TransactionID
		}
		return records[i].ResolvedAt.After(records[j].ResolvedAt)
	})

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

var _ service.Storage = (*MemoryStore)(nil)
