package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Veraticus/storefront-checkout/internal/common"
	"github.com/Veraticus/storefront-checkout/internal/service"
)

// ErrStreamClosed reports that the server ended the stream.
var ErrStreamClosed = errors.New("event stream closed by server")

// Client subscribes to a transaction's event stream over HTTP.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. It must not set a Timeout,
// since streams stay open indefinitely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a feed client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = common.ComponentLogger(c.logger, "events")
	return c
}

// StreamURL is the event stream location for a transaction.
func (c *Client) StreamURL(transactionID string) string {
	return c.baseURL + "/transactions/" + url.PathEscape(transactionID) + "/events"
}

// Subscribe opens the stream and delivers messages to handler until the
// stream ends or ctx is cancelled. It returns nil only on cancellation.
func (c *Client) Subscribe(ctx context.Context, transactionID string, handler service.FeedHandler) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StreamURL(transactionID), nil)
	if err != nil {
		return fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &common.HTTPError{Err: common.ErrBackend, StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.logger.Debug("Event stream open", "transaction_id", transactionID)
	handler.OnOpen()

	decoder := NewDecoder(resp.Body)
	for {
		event, err := decoder.Next()
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return ErrStreamClosed
		}
		if err != nil {
			return fmt.Errorf("failed to read event stream: %w", err)
		}

		if event.Type != "" && event.Type != "message" {
			c.logger.Debug("Skipping named event", "type", event.Type)
			continue
		}
		handler.OnMessage([]byte(event.Data))
	}
}

var _ service.EventFeed = (*Client)(nil)
