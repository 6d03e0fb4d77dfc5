package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultTimeout            = 10 * time.Second
	defaultBreakerMaxFailures = 5
	defaultBreakerOpenTimeout = 30 * time.Second
	responseBodyReadLimit     = int64(1 << 20)
)

var errBaseURLRequired = errors.New("marketplace base url is required")

// Client talks to the remote marketplace service. Every call runs through a
// circuit breaker: transport failures and 5xx responses count against it,
// 4xx rejections do not.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	breaker    *gobreaker.CircuitBreaker[[]byte]

	maxFailures uint32
	openTimeout time.Duration
	onState     func(name string, from, to gobreaker.State)
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIToken sends the token as a bearer credential on every request.
func WithAPIToken(token string) Option {
	return func(c *Client) {
		c.apiToken = strings.TrimSpace(token)
	}
}

// WithBreaker tunes the circuit breaker trip threshold and open duration.
func WithBreaker(maxFailures uint32, openTimeout time.Duration) Option {
	return func(c *Client) {
		if maxFailures > 0 {
			c.maxFailures = maxFailures
		}
		if openTimeout > 0 {
			c.openTimeout = openTimeout
		}
	}
}

// WithStateChangeHook observes breaker transitions.
func WithStateChangeHook(fn func(name string, from, to gobreaker.State)) Option {
	return func(c *Client) {
		c.onState = fn
	}
}

// NewClient builds a marketplace client rooted at baseURL (for example
// https://api.example.com/api/v1).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:     trimmed,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		maxFailures: defaultBreakerMaxFailures,
		openTimeout: defaultBreakerOpenTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	maxFailures := client.maxFailures
	client.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "marketplace",
		Timeout: client.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful:  countsAsSuccess,
		OnStateChange: client.onState,
	})

	return client, nil
}

// BreakerState reports the current circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// CreateOrder submits one order for a single listing.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "marketplace client not configured")
	}
	if strings.TrimSpace(req.ListingID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	if req.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var order Order
	if err := c.doJSON(ctx, http.MethodPost, "orders", req, &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnknown, "create order response missing id")
	}
	return &order, nil
}

// ConfirmPayment marks the order's payment as confirmed.
func (c *Client) ConfirmPayment(ctx context.Context, orderID string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "marketplace client not configured")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return c.doJSON(ctx, http.MethodPost, joinPath("orders", trimmed, "confirm-payment"), nil, nil)
}

// SellerDemand fetches the demand snapshot for a seller.
func (c *Client) SellerDemand(ctx context.Context, sellerID string) (*SellerDemand, error) {
	trimmed := strings.TrimSpace(sellerID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	var out SellerDemand
	if err := c.doJSON(ctx, http.MethodGet, joinPath("insights", "sellers", trimmed, "demand"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PriceCoach fetches pricing guidance for a product.
func (c *Client) PriceCoach(ctx context.Context, productID string) (*PriceCoach, error) {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	var out PriceCoach
	if err := c.doJSON(ctx, http.MethodGet, joinPath("insights", "products", trimmed, "price-coach"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecommendedListings fetches listings related to a product.
func (c *Client) RecommendedListings(ctx context.Context, productID string) ([]RecommendedListing, error) {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	var out struct {
		Listings []RecommendedListing `json:"listings"`
	}
	if err := c.doJSON(ctx, http.MethodGet, joinPath("insights", "products", trimmed, "recommendations"), nil, &out); err != nil {
		return nil, err
	}
	if out.Listings == nil {
		out.Listings = []RecommendedListing{}
	}
	return out.Listings, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeUnknown, err, "marshal marketplace request")
		}
		body = encoded
	}

	respBody, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, body)
	})
	if err != nil {
		return classify(err)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		if out != nil {
			return pkgerrors.New(pkgerrors.CodeUnknown, "empty marketplace response")
		}
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnknown, err, "decode marketplace response")
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnknown, err, "build marketplace request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, &transportError{err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Detail: extractDetail(respBody)}
	}
	return respBody, nil
}

// StatusError is a non-2xx response from the marketplace.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	return e.Message()
}

// Message is the rejection text: the response detail when present, otherwise
// "HTTP {code}".
func (e *StatusError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.StatusCode < http.StatusInternalServerError
	}
	return false
}

func classify(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "marketplace temporarily unavailable")
	}
	var status *StatusError
	if errors.As(err, &status) {
		return pkgerrors.New(pkgerrors.CodeRemoteRejection, status.Message()).
			WithDetails(map[string]any{"status": status.StatusCode})
	}
	var transport *transportError
	if errors.As(err, &transport) {
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, transport.err, "marketplace unreachable")
	}
	return pkgerrors.Wrap(pkgerrors.CodeUnknown, err, "marketplace request failed")
}

// extractDetail pulls the "detail" field out of an error body. String details
// are returned as-is; structured details are returned as compact JSON.
func extractDetail(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}
	raw := bytes.TrimSpace(envelope.Detail)
	if bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}

func joinPath(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, part := range parts {
		escaped = append(escaped, url.PathEscape(part))
	}
	return strings.Join(escaped, "/")
}
