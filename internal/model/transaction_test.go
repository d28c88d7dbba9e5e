package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "upper case", input: "APPROVED", want: StatusApproved},
		{name: "lower case", input: "approved", want: StatusApproved},
		{name: "mixed case with spaces", input: "  Declined ", want: StatusDeclined},
		{name: "pending", input: "pending", want: StatusPending},
		{name: "voided", input: "VOIDED", want: StatusVoided},
		{name: "local status", input: "awaiting_card", want: StatusAwaitingCard},
		{name: "unknown", input: "SETTLED", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_Classification(t *testing.T) {
	terminal := []Status{StatusApproved, StatusDeclined, StatusError, StatusVoided}
	inFlight := []Status{StatusCreating, StatusAwaitingCard, StatusSubmitting, StatusPending}

	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.IsInFlight(), s)
	}
	for _, s := range inFlight {
		assert.False(t, s.IsTerminal(), s)
		assert.True(t, s.IsInFlight(), s)
	}
	assert.False(t, StatusUnstarted.IsTerminal())
	assert.False(t, StatusUnstarted.IsInFlight())
	assert.Equal(t, -1, Status("BOGUS").Rank())
}

func TestStatus_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusUnstarted, StatusCreating, true},
		{StatusCreating, StatusAwaitingCard, true},
		{StatusAwaitingCard, StatusSubmitting, true},
		{StatusSubmitting, StatusPending, true},
		{StatusUnstarted, StatusPending, true},
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusVoided, true},
		{StatusSubmitting, StatusError, true},
		{StatusPending, StatusPending, false},
		{StatusPending, StatusSubmitting, false},
		{StatusApproved, StatusPending, false},
		{StatusApproved, StatusDeclined, false},
		{StatusDeclined, StatusDeclined, false},
		{StatusPending, Status("NOPE"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestPendingPayment_IsTracked(t *testing.T) {
	assert.False(t, PendingPayment{}.IsTracked())
	assert.True(t, PendingPayment{TransactionID: "tx-1"}.IsTracked())
}

func TestPaymentRecord_Duration(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	r := PaymentRecord{StartedAt: start, ResolvedAt: start.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, r.Duration())

	r = PaymentRecord{ResolvedAt: start}
	assert.Zero(t, r.Duration())

	r = PaymentRecord{StartedAt: start, ResolvedAt: start.Add(-time.Second)}
	assert.Zero(t, r.Duration())
}
