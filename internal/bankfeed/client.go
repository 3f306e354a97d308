// Package bankfeed pulls booked transactions from a bank account data API.
package bankfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"property-reconciliation-backend/internal/breaker"
	"property-reconciliation-backend/internal/config"
)

// ErrRejected marks a 4xx answer. The upstream answered, so the breaker
// counts it as a success.
var ErrRejected = errors.New("bank feed rejected request")

type Client struct {
	baseURL  string
	token    string
	http     *retryablehttp.Client
	breakers *breaker.Set
	logger   *slog.Logger
}

// NewClient builds a feed client. Breakers are keyed by account id, so one
// failing institution does not block imports from the others.
func NewClient(cfg config.BankFeedConfig, breakers *breaker.Set, logger *slog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = logger.With("system", "bankfeed-http")

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		http:     rc,
		breakers: breakers,
		logger:   logger.With("system", "bankfeed"),
	}
}

type transactionsResponse struct {
	Transactions struct {
		Booked  []Booked `json:"booked"`
		Pending []Booked `json:"pending"`
	} `json:"transactions"`
}

// FetchBooked returns the booked transactions of one account. Pending
// ones are dropped; they can still change.
func (c *Client) FetchBooked(ctx context.Context, accountID string) ([]Booked, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("bank feed base url not configured")
	}
	if accountID == "" {
		return nil, fmt.Errorf("account id is required")
	}

	var booked []Booked
	err := c.breakers.For(accountID).Do(func() error {
		var err error
		booked, err = c.fetch(ctx, accountID)
		return err
	}, classify)
	switch {
	case errors.Is(err, breaker.ErrOpen):
		c.logger.Warn("bank feed call short-circuited", "account", accountID)
		return nil, fmt.Errorf("account %s: %w", accountID, err)
	case err != nil && classify(err) == breaker.Failed:
		c.logger.Error("bank feed fetch failed", "account", accountID, "error", err)
	}
	return booked, err
}

// classify counts a 4xx as a healthy upstream. A canceled call says
// nothing about the upstream, so it only frees the trial slot.
func classify(err error) breaker.Outcome {
	switch {
	case err == nil, errors.Is(err, ErrRejected):
		return breaker.Succeeded
	case errors.Is(err, context.Canceled):
		return breaker.Neutral
	default:
		return breaker.Failed
	}
}

func (c *Client) fetch(ctx context.Context, accountID string) ([]Booked, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/transactions/", c.baseURL, url.PathEscape(accountID))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions for %s: %w", accountID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch transactions for %s: unexpected status %d", accountID, resp.StatusCode)
	}

	var out transactionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode transactions for %s: %w", accountID, err)
	}

	c.logger.Debug("fetched bank feed", "account", accountID,
		"booked", len(out.Transactions.Booked), "pending", len(out.Transactions.Pending))
	return out.Transactions.Booked, nil
}
