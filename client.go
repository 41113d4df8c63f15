package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/blocknetprivacy/blocksim/chain"
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type apiErrorBody struct {
	Error string `json:"error"`
}

// Client talks to a running daemon's API.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for baseURL authenticated with token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return resp != nil && resp.StatusCode() == http.StatusTooManyRequests
		})
	return &Client{http: r}
}

// NewClientFromDataDir reads the cookie written by the daemon in dataDir.
func NewClientFromDataDir(addr, dataDir string, timeout time.Duration) (*Client, error) {
	token, err := readCookie(dataDir)
	if err != nil {
		return nil, errors.Wrap(err, "reading API cookie (is the daemon running?)")
	}
	return NewClient("http://"+addr, token, timeout), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, headers map[string]string) error {
	req := c.http.R().
		SetContext(ctx).
		SetError(&apiErrorBody{}).
		SetHeaders(headers)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode(), Message: resp.Status()}
		if e, ok := resp.Error().(*apiErrorBody); ok && e.Error != "" {
			apiErr.Message = e.Error
		}
		return errors.WithStack(apiErr)
	}
	return nil
}

// Status fetches daemon stats.
func (c *Client) Status(ctx context.Context) (DaemonStats, error) {
	var out DaemonStats
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out, nil)
	return out, err
}

// AddTransaction queues a transaction. A non-empty idempotencyKey makes
// retries safe.
func (c *Client) AddTransaction(ctx context.Context, from, to string, amount float64, idempotencyKey string) (chain.Transaction, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}
	var out chain.Transaction
	err := c.do(ctx, http.MethodPost, "/api/transactions",
		TransactionRequest{From: from, To: to, Amount: amount}, &out, headers)
	return out, err
}

// Mine mines one block and waits for it.
func (c *Client) Mine(ctx context.Context) (*chain.Block, error) {
	var out chain.Block
	if err := c.do(ctx, http.MethodPost, "/api/mine", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tamper changes the amount of one transaction in a block.
func (c *Client) Tamper(ctx context.Context, id string, txIndex int, amount float64) (TamperResponse, error) {
	var out TamperResponse
	err := c.do(ctx, http.MethodPost, "/api/block/"+url.PathEscape(id)+"/tamper",
		TamperRequest{TxIndex: &txIndex, Amount: &amount}, &out, nil)
	return out, err
}

// Path fetches the path ending at tip and its validation.
func (c *Client) Path(ctx context.Context, tip string) (PathResponse, error) {
	var out PathResponse
	err := c.do(ctx, http.MethodGet, "/api/path/"+url.PathEscape(tip), nil, &out, nil)
	return out, err
}

// Tips lists chain tips.
func (c *Client) Tips(ctx context.Context) (TipsResponse, error) {
	var out TipsResponse
	err := c.do(ctx, http.MethodGet, "/api/tips", nil, &out, nil)
	return out, err
}

// Validation returns the active path's validation.
func (c *Client) Validation(ctx context.Context) (ValidationResponse, error) {
	var out ValidationResponse
	err := c.do(ctx, http.MethodGet, "/api/validation", nil, &out, nil)
	return out, err
}

// Select makes tip active. An empty tip selects the longest chain.
func (c *Client) Select(ctx context.Context, tip string) (ValidationResponse, error) {
	var out ValidationResponse
	err := c.do(ctx, http.MethodPost, "/api/select", map[string]string{"tip": tip}, &out, nil)
	return out, err
}

// Reset restores a fresh chain.
func (c *Client) Reset(ctx context.Context) (ResetResponse, error) {
	var out ResetResponse
	err := c.do(ctx, http.MethodPost, "/api/reset", nil, &out, nil)
	return out, err
}
