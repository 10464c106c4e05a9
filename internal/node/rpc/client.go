// Package rpc provides a minimal JSON-RPC 1.0 client for wallet nodes.
package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

//nolint:gochecknoglobals // shared codec configuration
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseBodySize bounds how much of a node reply is read.
const maxResponseBodySize = 8 << 20

// ErrorObject is the error member of a JSON-RPC reply.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Client is a JSON-RPC client bound to one node endpoint.
type Client struct {
	url        string
	username   string
	userAgent  string
	password   string
	httpClient *http.Client
	idCounter  atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

// WithBasicAuth sets the credentials sent with every request.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithUserAgent sets the User-Agent header sent with every call.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// NewClient creates a new RPC client.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request represents a JSON-RPC 1.0 request.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

// response represents a JSON-RPC reply. Field matching is case-insensitive,
// so nodes answering with "Result"/"Error" decode as well.
type response struct {
	ID     uint64              `json:"id"`
	Result jsoniter.RawMessage `json:"result"`
	Error  *ErrorObject        `json:"error,omitempty"`
}

// Call performs a JSON-RPC call and decodes the result into out.
// Transport failures are reported as ErrNetwork; error replies from the node
// as ErrRPC wrapping an *ErrorObject.
func (c *Client) Call(ctx context.Context, out any, method string, params ...any) error {
	if params == nil {
		params = []any{}
	}

	req := request{
		JSONRPC: "1.0",
		Method:  method,
		Params:  params,
		ID:      c.idCounter.Add(1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if c.username != "" || c.password != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return coinerr.WithCause(coinerr.ErrNetwork, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodySize))
	if err != nil {
		return coinerr.WithCause(coinerr.ErrNetwork, fmt.Errorf("reading response body: %w", err))
	}

	if httpResp.StatusCode >= http.StatusInternalServerError && len(respBody) == 0 {
		return coinerr.WithCause(coinerr.ErrNetwork, fmt.Errorf("HTTP %d", httpResp.StatusCode))
	}

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		if httpResp.StatusCode != http.StatusOK {
			return coinerr.WithCause(coinerr.ErrNetwork, fmt.Errorf("HTTP %d", httpResp.StatusCode))
		}
		return coinerr.WithCause(coinerr.ErrRPC, fmt.Errorf("unmarshaling response: %w", err))
	}

	if resp.Error != nil {
		return coinerr.WithCause(coinerr.ErrRPC, resp.Error)
	}

	if out == nil {
		return nil
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return coinerr.WithCause(coinerr.ErrRPC, fmt.Errorf("%s: empty result", method))
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return coinerr.WithCause(coinerr.ErrRPC, fmt.Errorf("parsing %s result: %w", method, err))
	}

	return nil
}
