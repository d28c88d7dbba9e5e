package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/service"
)

const (
	defaultNamespace  = "checkout"
	historyKey        = "payment_history"
	maxHistoryEntries = 100
)

// RedisStore keeps checkout state in Redis so that several terminals can
// share one pending payment.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore connects to addr and verifies the server is reachable.
func NewRedisStore(ctx context.Context, addr, namespace string) (*RedisStore, error) {
	if err := validateString(addr, "addr"); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}

	return NewRedisStoreFromClient(client, namespace), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &RedisStore{client: client, namespace: namespace}
}

func (r *RedisStore) key(name string) string {
	return r.namespace + ":" + name
}

// Get reads a value. A missing key is reported with ok=false.
func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateContext(ctx); err != nil {
		return "", false, err
	}
	if err := validateString(key, "key"); err != nil {
		return "", false, err
	}

	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes a value without expiry.
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Remove deletes a key. Removing a missing key is not an error.
func (r *RedisStore) Remove(ctx context.Context, key string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

// RecordPayment pushes a resolved payment onto a capped list.
func (r *RedisStore) RecordPayment(ctx context.Context, record model.PaymentRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecord(record); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode payment record: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key(historyKey), data)
	pipe.LTrim(ctx, r.key(historyKey), 0, maxHistoryEntries-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record payment %s: %w", record.TransactionID, err)
	}
	return nil
}

// ListPayments returns the most recently recorded payments first.
func (r *RedisStore) ListPayments(ctx context.Context, limit int) ([]model.PaymentRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	entries, err := r.client.LRange(ctx, r.key(historyKey), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read payment history: %w", err)
	}

	records := make([]model.PaymentRecord, 0, len(entries))
	for _, entry := range entries {
		var record model.PaymentRecord
		if err := json.Unmarshal([]byte(entry), &record); err != nil {
			return nil, fmt.Errorf("failed to decode payment record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ service.Storage = (*RedisStore)(nil)
