package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/storefront-checkout/internal/service"
)

func fastRetry(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry(t *testing.T) {
	transient := &HTTPError{Err: ErrBackend, StatusCode: 503, Body: "unavailable"}
	permanent := &HTTPError{Err: ErrBackend, StatusCode: 404, Body: "missing"}

	tests := []struct {
		wantErr   error
		failures  []error
		name      string
		attempts  int
		wantCalls int
		wantFail  bool
	}{
		{
			name:      "succeeds first time",
			attempts:  3,
			wantCalls: 1,
		},
		{
			name:      "recovers after transient failures",
			failures:  []error{transient, transient},
			attempts:  3,
			wantCalls: 3,
		},
		{
			name:      "gives up after max attempts",
			failures:  []error{transient, transient, transient},
			attempts:  3,
			wantCalls: 3,
			wantErr:   ErrMaxRetries,
			wantFail:  true,
		},
		{
			name:      "does not retry permanent errors",
			failures:  []error{permanent},
			attempts:  3,
			wantCalls: 1,
			wantErr:   ErrBackend,
			wantFail:  true,
		},
		{
			name:      "respects non-retryable wrapper",
			failures:  []error{&RetryableError{Err: errors.New("nope"), Retryable: false}},
			attempts:  3,
			wantCalls: 1,
			wantFail:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), func() error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			}, fastRetry(tt.attempts))

			assert.Equal(t, tt.wantCalls, calls)
			if !tt.wantFail {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, func() error {
		return &RetryableError{Err: errors.New("flaky"), Retryable: true}
	}, service.RetryOptions{MaxAttempts: 5, InitialDelay: time.Hour})

	require.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limit", err: fmt.Errorf("wrapped: %w", ErrRateLimit), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "server error", err: &HTTPError{Err: ErrBackend, StatusCode: 502}, want: true},
		{name: "too many requests", err: &HTTPError{Err: ErrBackend, StatusCode: 429}, want: true},
		{name: "client error", err: &HTTPError{Err: ErrBackend, StatusCode: 422}, want: false},
		{name: "retryable wrapper", err: &RetryableError{Err: errors.New("x"), Retryable: true}, want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestUserError(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewUserError("Could not reach the store", inner)

	assert.Equal(t, "Could not reach the store: connection refused", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "just a message", NewUserError("just a message", nil).Error())
}

func TestRetryWait(t *testing.T) {
	base := 10 * time.Millisecond
	maxDelay := time.Second

	assert.Equal(t, base, retryWait(errors.New("x"), base, maxDelay))
	assert.Equal(t, maxDelay, retryWait(ErrRateLimit, base, maxDelay))
	assert.Equal(t, 200*time.Millisecond, retryWait(&HTTPError{StatusCode: 429, RetryAfter: 200 * time.Millisecond}, base, maxDelay))
	assert.Equal(t, maxDelay, retryWait(&HTTPError{StatusCode: 503, RetryAfter: time.Minute}, base, maxDelay))
}

func TestDefaultRetryOptions(t *testing.T) {
	opts := DefaultRetryOptions(service.RetryOptions{MaxAttempts: 5})
	assert.Equal(t, 5, opts.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, opts.InitialDelay)
	assert.Equal(t, 30*time.Second, opts.MaxDelay)
	assert.InDelta(t, 2.0, opts.Multiplier, 0)
}
