// Package tokenizer exchanges card details for a single-use card token.
package tokenizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/storefront-checkout/internal/common"
	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/service"
)

// Client implements service.CardTokenizer against the processor's API.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	baseURL    string
	publicKey  string
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

// WithClock sets the clock used for expiry validation.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a tokenizer client.
func NewClient(baseURL, publicKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		publicKey:  publicKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = common.ComponentLogger(c.logger, "tokenizer")
	return c
}

type tokenRequest struct {
	Number     string `json:"number"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	CVC        string `json:"cvc"`
	CardHolder string `json:"card_holder"`
}

type tokenResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// TokenizeCard validates the card locally and returns the processor's token.
// Raw card data is never logged.
func (c *Client) TokenizeCard(ctx context.Context, card model.Card) (string, error) {
	if c.publicKey == "" {
		return "", fmt.Errorf("%w: tokenizer public key", common.ErrMissingConfig)
	}
	if err := card.Validate(c.now()); err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrTokenization, err)
	}

	body, err := json.Marshal(tokenRequest{
		Number:     card.CleanNumber(),
		ExpMonth:   card.ExpMonthString(),
		ExpYear:    card.ExpYearString(),
		CVC:        strings.TrimSpace(card.CVC),
		CardHolder: strings.TrimSpace(card.Holder),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tokens/cards", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.publicKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrTokenization, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &common.HTTPError{
			Err:        common.ErrTokenization,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrBadResponse, err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("%w: no card token in response", common.ErrBadResponse)
	}

	c.logger.Debug("Card tokenized", "brand", card.Brand(), "card", card.Masked())
	return out.Data.ID, nil
}

var _ service.CardTokenizer = (*Client)(nil)
