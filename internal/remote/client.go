package remote

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
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/dispatch-prep/internal/picking"
)

const (
	detailPath = "/api/dispatches/detail"

	// RequestIDHeader carries a per-call id the backend logs alongside errors
	RequestIDHeader = "X-Request-ID"
)

// Client implements picking.Remote over the dispatch HTTP API
type Client struct {
	baseURL  string
	username string
	password string
	timeout  time.Duration
	client   *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithBasicAuth sets the credentials sent on every request
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithTimeout bounds every request. Zero means no timeout. It applies to
// the client given with WithHTTPClient too, whatever the option order.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a new Client for the API at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		return nil, errors.New("http client is required")
	}
	if c.timeout != 0 {
		// Copy so a shared http.Client keeps its own timeout
		hc := *c.client
		hc.Timeout = c.timeout
		c.client = &hc
	}
	return c, nil
}

type orderRequest struct {
	OrderID    string `json:"orderId"`
	SubOrderID string `json:"subOrderId"`
}

type scanRequest struct {
	orderRequest
	ProductCode string      `json:"productCode"`
	Quantity    json.Number `json:"quantity"`
	LabelID     string      `json:"labelId"`
}

type resetRequest struct {
	orderRequest
	ProductCode string `json:"productCode"`
}

type assignRequest struct {
	orderRequest
	PreparerCode string `json:"preparerCode"`
	PreparerName string `json:"preparerName"`
}

// envelope is the shape of every API response body
type envelope struct {
	Msg            string          `json:"msg"`
	Detail         json.RawMessage `json:"detail"`
	Header         json.RawMessage `json:"header"`
	ElapsedMinutes *int            `json:"elapsedMinutes"`
}

func newOrderRequest(key picking.OrderKey) orderRequest {
	return orderRequest{OrderID: key.OrderID, SubOrderID: key.SubOrderID}
}

func orderQuery(key picking.OrderKey) url.Values {
	q := url.Values{}
	q.Set("orderId", key.OrderID)
	q.Set("subOrderId", key.SubOrderID)
	return q
}

// ReadDetail returns the current line set
func (c *Client) ReadDetail(ctx context.Context, key picking.OrderKey) ([]picking.OrderLine, error) {
	env, err := c.do(ctx, http.MethodGet, detailPath+"?"+orderQuery(key).Encode(), nil)
	if err != nil {
		return nil, err
	}
	return picking.DecodeLines(env.Detail)
}

// SubmitScan persists one label read and returns the updated line set
func (c *Client) SubmitScan(ctx context.Context, key picking.OrderKey, req picking.ScanRequest) ([]picking.OrderLine, error) {
	body := scanRequest{
		orderRequest: newOrderRequest(key),
		ProductCode:  req.ProductCode,
		Quantity:     json.Number(req.Quantity.String()),
		LabelID:      req.LabelID,
	}
	env, err := c.do(ctx, http.MethodPost, detailPath+"/scan", body)
	if err != nil {
		return nil, err
	}
	return picking.DecodeLines(env.Detail)
}

// ResetProductScan zeroes the scanned quantity of a product
func (c *Client) ResetProductScan(ctx context.Context, key picking.OrderKey, productCode string) ([]picking.OrderLine, error) {
	body := resetRequest{
		orderRequest: newOrderRequest(key),
		ProductCode:  productCode,
	}
	env, err := c.do(ctx, http.MethodPost, detailPath+"/reset", body)
	if err != nil {
		return nil, err
	}
	return picking.DecodeLines(env.Detail)
}

// StartPreparation starts the preparation timer
func (c *Client) StartPreparation(ctx context.Context, key picking.OrderKey) error {
	_, err := c.do(ctx, http.MethodPost, detailPath+"/start", newOrderRequest(key))
	var rej *picking.RejectionError
	if errors.As(err, &rej) && rej.Status == http.StatusConflict {
		rej.Err = picking.ErrPreparerRequired
	}
	return err
}

// FinishPreparation stops the preparation timer. The elapsed minutes come
// from the returned header, or from the top level when the header has none.
func (c *Client) FinishPreparation(ctx context.Context, key picking.OrderKey) (*picking.FinishResult, error) {
	env, err := c.do(ctx, http.MethodPost, detailPath+"/finish", newOrderRequest(key))
	if err != nil {
		return nil, err
	}
	header, err := picking.DecodeHeader(env.Header)
	if err != nil {
		return nil, err
	}

	res := &picking.FinishResult{Message: env.Msg, ElapsedMinutes: header.ElapsedMinutes}
	if res.ElapsedMinutes == nil {
		res.ElapsedMinutes = env.ElapsedMinutes
	}
	return res, nil
}

// AssignPreparer sets who prepares the order and returns the updated header
func (c *Client) AssignPreparer(ctx context.Context, key picking.OrderKey, code, name string) (*picking.Header, error) {
	body := assignRequest{
		orderRequest: newOrderRequest(key),
		PreparerCode: code,
		PreparerName: name,
	}
	env, err := c.do(ctx, http.MethodPost, detailPath+"/assign", body)
	if err != nil {
		return nil, err
	}
	return picking.DecodeHeader(env.Header)
}

// CloseOrder saves the finished order and removes it from the open orders
func (c *Client) CloseOrder(ctx context.Context, key picking.OrderKey) error {
	_, err := c.do(ctx, http.MethodPost, detailPath+"/close", newOrderRequest(key))
	return err
}

// ReadHeader returns the order header
func (c *Client) ReadHeader(ctx context.Context, key picking.OrderKey) (*picking.Header, error) {
	env, err := c.do(ctx, http.MethodGet, detailPath+"/header?"+orderQuery(key).Encode(), nil)
	if err != nil {
		return nil, err
	}
	return picking.DecodeHeader(env.Header)
}

// do sends one request and maps the outcome onto the picking error kinds
func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling %s %s: %w", picking.ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", picking.ErrUnavailable, err)
	}

	var env envelope
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &env, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, picking.ErrUnauthorized
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		slog.Warn("Dispatch service rejected request", "method", method, "path", path, "status", resp.StatusCode, "request_id", requestID, "msg", env.Msg)
		return nil, &picking.RejectionError{Status: resp.StatusCode, Message: env.Msg}
	default:
		slog.Error("Dispatch service error", "method", method, "path", path, "status", resp.StatusCode, "request_id", requestID)
		return nil, fmt.Errorf("%w (status %d): %s", picking.ErrUnavailable, resp.StatusCode, env.Msg)
	}
}

var (
	_ picking.Remote     = (*Client)(nil)
	_ picking.OrderAdmin = (*Client)(nil)
)
