// Package storage provides the durable state for the checkout client.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/storefront-checkout/internal/model"
)

const defaultHistoryLimit = 20

// Validation errors.
var (
	ErrNilContext    = errors.New("context cannot be nil")
	ErrEmptyString   = errors.New("string parameter cannot be empty")
	ErrInvalidRecord = errors.New("invalid payment record")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRecord only accepts resolved payments.
func validateRecord(record model.PaymentRecord) error {
	if strings.TrimSpace(record.TransactionID) == "" {
		return fmt.Errorf("%w: missing transaction id", ErrInvalidRecord)
	}
	if !record.Status.IsTerminal() {
		return fmt.Errorf("%w: status %s is not terminal", ErrInvalidRecord, record.Status)
	}
	if record.ResolvedAt.IsZero() {
		return fmt.Errorf("%w: missing resolution time", ErrInvalidRecord)
	}
	return nil
}
