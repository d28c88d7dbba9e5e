// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/storefront-checkout/internal/model"
)

// PendingTransactionKey is the durable-store key holding the id of the
// payment in flight. Only the reconciler writes it.
const PendingTransactionKey = "pending_transaction_id"

// KVStore is a durable string store that survives process restarts.
// Get returns ok=false when the key is absent.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// HistoryStore keeps resolved payments for diagnostics.
type HistoryStore interface {
	RecordPayment(ctx context.Context, record model.PaymentRecord) error
	ListPayments(ctx context.Context, limit int) ([]model.PaymentRecord, error)
}

// Storage is a durable store that also keeps payment history.
type Storage interface {
	KVStore
	HistoryStore
	Close() error
}

// StatusFetcher reads the current status of a transaction from the backend.
type StatusFetcher interface {
	GetStatus(ctx context.Context, transactionID string) (model.Status, error)
}

// InitRequest creates a transaction for an order.
type InitRequest struct {
	ProductID        string `json:"productId"`
	CustomerEmail    string `json:"customerEmail"`
	CustomerFullName string `json:"customerFullName"`
	CustomerPhone    string `json:"customerPhone"`
	City             string `json:"city"`
	Address          string `json:"address"`
	Quantity         int    `json:"quantity"`
	Amount           int64  `json:"amount"`
}

// ProcessRequest submits a tokenized card for a transaction.
type ProcessRequest struct {
	CardToken       string `json:"cardToken"`
	AcceptanceToken string `json:"acceptanceToken"`
	Address         string `json:"address"`
	City            string `json:"city"`
}

// AcceptanceToken represents the user's consent to the processor's terms.
type AcceptanceToken struct {
	Token     string `json:"acceptance_token"`
	Permalink string `json:"permalink"`
	Type      string `json:"type"`
}

// TransactionBackend is the remote transaction API.
type TransactionBackend interface {
	StatusFetcher
	InitTransaction(ctx context.Context, req InitRequest) (string, error)
	ProcessPayment(ctx context.Context, transactionID string, req ProcessRequest) (model.Status, error)
	AcceptanceToken(ctx context.Context) (*AcceptanceToken, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, productID string) (*model.Product, error)
}

// CardTokenizer exchanges raw card data for an opaque card token.
type CardTokenizer interface {
	TokenizeCard(ctx context.Context, card model.Card) (string, error)
}

// FeedHandler receives the lifecycle of a single event-feed connection.
// OnOpen is called once the connection is established; OnMessage for every
// message payload, in order.
type FeedHandler interface {
	OnOpen()
	OnMessage(data []byte)
}

// EventFeed opens server-push connections scoped to one transaction.
// Subscribe blocks until the connection ends. It returns nil only when ctx
// is cancelled; any other end of the stream is a connection error.
type EventFeed interface {
	Subscribe(ctx context.Context, transactionID string, handler FeedHandler) error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
