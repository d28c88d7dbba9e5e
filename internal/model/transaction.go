// Package model defines the core domain models used throughout the application.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidStatus is returned when a status string is not a known lifecycle value.
var ErrInvalidStatus = errors.New("invalid transaction status")

// Status is a stage in the lifecycle of a payment.
type Status string

// Lifecycle status constants.
const (
	StatusUnstarted    Status = "UNSTARTED"
	StatusCreating     Status = "CREATING"
	StatusAwaitingCard Status = "AWAITING_CARD"
	StatusSubmitting   Status = "SUBMITTING"
	StatusPending      Status = "PENDING"
	StatusApproved     Status = "APPROVED"
	StatusDeclined     Status = "DECLINED"
	StatusError        Status = "ERROR"
	StatusVoided       Status = "VOIDED"
)

// rank orders statuses along the lifecycle. All terminal statuses share the top rank.
var rank = map[Status]int{
	StatusUnstarted:    0,
	StatusCreating:     1,
	StatusAwaitingCard: 2,
	StatusSubmitting:   3,
	StatusPending:      4,
	StatusApproved:     5,
	StatusDeclined:     5,
	StatusError:        5,
	StatusVoided:       5,
}

// ParseStatus normalizes a status string (case-insensitive, surrounding
// whitespace ignored) into a known Status.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rank[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// IsValid reports whether s is a known lifecycle status.
func (s Status) IsValid() bool {
	_, ok := rank[s]
	return ok
}

// IsTerminal reports whether the status is a final payment outcome.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusDeclined, StatusError, StatusVoided:
		return true
	default:
		return false
	}
}

// IsInFlight reports whether the status belongs to a payment that has been
// started and not yet resolved.
func (s Status) IsInFlight() bool {
	switch s {
	case StatusCreating, StatusAwaitingCard, StatusSubmitting, StatusPending:
		return true
	default:
		return false
	}
}

// Rank returns the lifecycle position of the status, or -1 when unknown.
func (s Status) Rank() int {
	r, ok := rank[s]
	if !ok {
		return -1
	}
	return r
}

// CanAdvanceTo reports whether moving from s to next is a forward step.
// Terminal statuses never change, and a status never repeats.
func (s Status) CanAdvanceTo(next Status) bool {
	if !next.IsValid() || s.IsTerminal() {
		return false
	}
	return next.Rank() > s.Rank()
}

func (s Status) String() string {
	return string(s)
}

// PendingPayment is the client-held view of the single payment in flight.
type PendingPayment struct {
	CreatedAtLocal time.Time
	TransactionID  string
	Status         Status
	RetryCount     int
}

// IsTracked reports whether the payment has a backend transaction id.
func (p PendingPayment) IsTracked() bool {
	return p.TransactionID != ""
}

// PaymentRecord is a resolved payment kept in the local history.
type PaymentRecord struct {
	StartedAt     time.Time `json:"started_at"`
	ResolvedAt    time.Time `json:"resolved_at"`
	TransactionID string    `json:"transaction_id"`
	Status        Status    `json:"status"`
}

// Duration returns how long the payment took to resolve.
func (r PaymentRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.ResolvedAt.Before(r.StartedAt) {
		return 0
	}
	return r.ResolvedAt.Sub(r.StartedAt)
}

// Transaction is the backend's record of a purchase. Product and Delivery
// are nil when the backend leaves them out.
type Transaction struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Product   *Product
	Delivery  *Delivery
	Customer  Customer
	ID        string
	Reference string
	ProductID string
	Status    Status
	Quantity  int
	Amount    int64
}
