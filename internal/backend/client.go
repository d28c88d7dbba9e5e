// Package backend is the HTTP client for the storefront transaction API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/storefront-checkout/internal/common"
	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/service"
)

const maxErrorBody = 4096

// Client implements service.TransactionBackend over HTTP.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	newKey     func() string
	baseURL    string
	retry      service.RetryOptions
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetryOptions sets the retry policy for idempotent reads.
func WithRetryOptions(opts service.RetryOptions) Option {
	return func(c *Client) { c.retry = opts }
}

// WithIdempotencyKeys replaces the generator for Idempotency-Key headers.
func WithIdempotencyKeys(gen func() string) Option {
	return func(c *Client) { c.newKey = gen }
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		newKey:     uuid.NewString,
		retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = common.ComponentLogger(c.logger, "backend")
	return c
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type transactionData struct {
	ID            string `json:"id"`
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Transaction   *struct {
		Status string `json:"status"`
	} `json:"transaction"`
}

// InitTransaction creates a transaction and returns its id.
func (c *Client) InitTransaction(ctx context.Context, req service.InitRequest) (string, error) {
	var env envelope
	if err := c.post(ctx, "/transactions/init", req, &env); err != nil {
		return "", err
	}

	data, err := decodeTransactionData(env)
	if err != nil {
		return "", err
	}

	id := data.ID
	if id == "" {
		id = data.TransactionID
	}
	if id == "" {
		return "", fmt.Errorf("%w: no transaction id in init response", common.ErrBadResponse)
	}

	c.logger.Debug("Initialized transaction", "transaction_id", id, "amount", req.Amount)
	return id, nil
}

// GetStatus reads the current status of a transaction.
func (c *Client) GetStatus(ctx context.Context, transactionID string) (model.Status, error) {
	if transactionID == "" {
		return "", fmt.Errorf("%w: empty transaction id", common.ErrNoTransaction)
	}

	var env envelope
	if err := c.get(ctx, "/transactions/"+url.PathEscape(transactionID), &env); err != nil {
		return "", err
	}

	data, err := decodeTransactionData(env)
	if err != nil {
		return "", err
	}

	text := data.Status
	if text == "" {
		text = env.Status
	}
	return parseStatus(text)
}

type transactionDetail struct {
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Product   *model.Product  `json:"product"`
	Delivery  *model.Delivery `json:"delivery"`
	Customer  struct {
		Email    string `json:"email"`
		FullName string `json:"fullName"`
		Phone    string `json:"phone"`
	} `json:"customer"`
	ID        string `json:"id"`
	Reference string `json:"reference"`
	ProductID string `json:"productId"`
	Status    string `json:"status"`
	Quantity  int    `json:"quantity"`
	Amount    int64  `json:"amount"`
}

// GetTransaction reads the full record of a transaction.
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("%w: empty transaction id", common.ErrNoTransaction)
	}

	var env envelope
	err := c.get(ctx, "/transactions/"+url.PathEscape(transactionID), &env)
	var httpErr *common.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, transactionID)
	}
	if err != nil {
		return nil, err
	}

	var detail transactionDetail
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &detail) != nil {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrBadResponse, transactionID)
	}
	status, err := parseStatus(detail.Status)
	if err != nil {
		return nil, err
	}
	if detail.ID == "" {
		detail.ID = transactionID
	}

	tx := &model.Transaction{
		CreatedAt: detail.CreatedAt,
		UpdatedAt: detail.UpdatedAt,
		Product:   detail.Product,
		Delivery:  detail.Delivery,
		Customer: model.Customer{
			Email:    detail.Customer.Email,
			FullName: detail.Customer.FullName,
			Phone:    detail.Customer.Phone,
		},
		ID:        detail.ID,
		Reference: detail.Reference,
		ProductID: detail.ProductID,
		Status:    status,
		Quantity:  detail.Quantity,
		Amount:    detail.Amount,
	}
	if tx.ProductID == "" && tx.Product != nil {
		tx.ProductID = tx.Product.ID
	}
	return tx, nil
}

// ProcessPayment submits the tokenized card and returns the status the
// backend reports synchronously.
func (c *Client) ProcessPayment(ctx context.Context, transactionID string, req service.ProcessRequest) (model.Status, error) {
	if transactionID == "" {
		return "", fmt.Errorf("%w: empty transaction id", common.ErrNoTransaction)
	}

	var env envelope
	path := "/transactions/" + url.PathEscape(transactionID) + "/process"
	if err := c.post(ctx, path, req, &env); err != nil {
		return "", err
	}

	data, err := decodeTransactionData(env)
	if err != nil {
		return "", err
	}

	text := data.Status
	if text == "" && data.Transaction != nil {
		text = data.Transaction.Status
	}
	if text == "" {
		text = env.Status
	}
	return parseStatus(text)
}

// AcceptanceToken fetches the processor's current terms acceptance token.
func (c *Client) AcceptanceToken(ctx context.Context) (*service.AcceptanceToken, error) {
	var env envelope
	if err := c.get(ctx, "/payments/acceptance-data", &env); err != nil {
		return nil, err
	}

	var token service.AcceptanceToken
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &token) != nil || token.Token == "" {
		return nil, fmt.Errorf("%w: no acceptance token", common.ErrBadResponse)
	}
	return &token, nil
}

// ListProducts returns the catalogue. Both a bare array and a
// {"data": [...]} envelope are accepted.
func (c *Client) ListProducts(ctx context.Context) ([]model.Product, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/products", &raw); err != nil {
		return nil, err
	}

	body := bytes.TrimSpace(raw)
	if len(body) > 0 && body[0] == '{' {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrBadResponse, err)
		}
		body = env.Data
	}

	var products []model.Product
	if err := json.Unmarshal(body, &products); err != nil {
		return nil, fmt.Errorf("%w: products: %w", common.ErrBadResponse, err)
	}
	return products, nil
}

// GetProduct fetches one product.
func (c *Client) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: empty product id", common.ErrNotFound)
	}

	var env envelope
	err := c.get(ctx, "/products/"+url.PathEscape(productID), &env)
	var httpErr *common.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: product %s", common.ErrNotFound, productID)
	}
	if err != nil {
		return nil, err
	}

	var product model.Product
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &product) != nil || product.ID == "" {
		return nil, fmt.Errorf("%w: product %s", common.ErrBadResponse, productID)
	}
	return &product, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return common.WithRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	}, c.retry)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", c.newKey())
	}

	c.logger.Debug("Backend request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &common.HTTPError{
			Err:        common.ErrBackend,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %w", common.ErrBadResponse, method, path, err)
	}
	return nil
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func decodeTransactionData(env envelope) (transactionData, error) {
	var data transactionData
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return data, nil
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return data, fmt.Errorf("%w: %w", common.ErrBadResponse, err)
	}
	return data, nil
}

func parseStatus(text string) (model.Status, error) {
	if text == "" {
		return "", fmt.Errorf("%w: no status in response", common.ErrBadResponse)
	}
	status, err := model.ParseStatus(text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrBadResponse, err)
	}
	return status, nil
}

var _ service.TransactionBackend = (*Client)(nil)
