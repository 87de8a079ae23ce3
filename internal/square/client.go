// Package square talks to the Square Orders and Catalog APIs: it builds
// order payloads from a cart and converts priced orders back to the model.
package square

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

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"square-pos/internal/model"
)

// =============================================================================
// SQUARE API CLIENT
// =============================================================================
//
// Every call carries the merchant's OAuth access token as a Bearer token and
// pins the API version with the Square-Version header.
//
// Outbound calls are paced by a token-bucket limiter and guarded by a circuit
// breaker. Only transport failures and 5xx responses count against the
// breaker; a 4xx is the caller's problem, not Square's.
// =============================================================================

const (
	// DefaultBaseURL is Square's production API.
	DefaultBaseURL = "https://connect.squareup.com"

	// DefaultAPIVersion is the Square-Version sent when none is configured.
	DefaultAPIVersion = "2024-10-17"

	pathCalculateOrder = "/v2/orders/calculate"
	pathOrders         = "/v2/orders"
	pathCatalogList    = "/v2/catalog/list"

	userAgent = "Square-POS/1.0"
)

// ClientConfig configures NewClient. Zero values fall back to defaults.
type ClientConfig struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	Transport  http.RoundTripper

	// RateLimit is the sustained requests per second; Burst the bucket size.
	RateLimit float64
	Burst     int

	// BreakerFailures consecutive failures open the breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client is the Square API HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiVersion string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *slog.Logger
}

// NewClient creates a new Square API client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "square",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAgainstBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: cfg.APIVersion,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		breaker:    breaker,
		logger:     logger,
	}
}

// === Orders ===

// CalculateOrder prices an order without creating it.
func (c *Client) CalculateOrder(ctx context.Context, accessToken string, body *CalculateOrderRequest) (*Order, error) {
	var resp OrderResponse
	if err := c.call(ctx, http.MethodPost, pathCalculateOrder, body, accessToken, &resp); err != nil {
		return nil, fmt.Errorf("calculating order: %w", err)
	}
	if resp.Order == nil {
		return nil, model.NewUpstreamError("Square", errors.New("calculate response has no order"))
	}
	return resp.Order, nil
}

// CreateOrder creates the order. Retrying with the same idempotency key
// returns the original order instead of creating another.
func (c *Client) CreateOrder(ctx context.Context, accessToken string, body *CreateOrderRequest) (*Order, error) {
	var resp OrderResponse
	if err := c.call(ctx, http.MethodPost, pathOrders, body, accessToken, &resp); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	if resp.Order == nil {
		return nil, model.NewUpstreamError("Square", errors.New("create response has no order"))
	}
	return resp.Order, nil
}

// === Catalog ===

// ListCatalog returns every catalog object of the given types, following cursors.
func (c *Client) ListCatalog(ctx context.Context, accessToken string, types ...string) ([]CatalogObject, error) {
	var objects []CatalogObject
	cursor := ""

	for {
		q := url.Values{}
		q.Set("types", strings.Join(types, ","))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var page CatalogListResponse
		if err := c.call(ctx, http.MethodGet, pathCatalogList+"?"+q.Encode(), nil, accessToken, &page); err != nil {
			return nil, fmt.Errorf("listing catalog: %w", err)
		}
		objects = append(objects, page.Objects...)

		if page.Cursor == "" || page.Cursor == cursor {
			return objects, nil
		}
		cursor = page.Cursor
	}
}

// ListTaxes returns the merchant's enabled catalog taxes.
func (c *Client) ListTaxes(ctx context.Context, accessToken string) ([]model.TaxRate, error) {
	objects, err := c.ListCatalog(ctx, accessToken, "TAX")
	if err != nil {
		return nil, err
	}
	return TaxesFromCatalog(objects), nil
}

// ListDiscounts returns the merchant's catalog discounts.
func (c *Client) ListDiscounts(ctx context.Context, accessToken string) ([]model.Discount, error) {
	objects, err := c.ListCatalog(ctx, accessToken, "DISCOUNT")
	if err != nil {
		return nil, err
	}
	return DiscountsFromCatalog(objects), nil
}

// === HTTP Helpers ===

// call waits for the limiter, runs the request through the breaker and
// decodes a successful response into result.
func (c *Client) call(ctx context.Context, method, path string, body any, accessToken string, result any) error {
	if accessToken == "" {
		return model.NewUnauthorizedError("missing Square access token")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return model.NewRateLimitError("Square")
	}

	payload, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := c.newRequest(ctx, method, path, body, accessToken)
		if err != nil {
			return nil, err
		}
		return c.do(req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return model.NewUpstreamError("Square", err)
	}
	if err != nil {
		return err
	}

	if result != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, result); err != nil {
			return model.NewUpstreamError("Square", fmt.Errorf("parsing response: %w", err))
		}
	}
	return nil
}

// newRequest creates an HTTP request with OAuth Bearer token authentication.
func (c *Client) newRequest(ctx context.Context, method, path string, body any, accessToken string) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Square-Version", c.apiVersion)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return req, nil
}

// do executes the request and returns the raw success body.
func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("Square", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewUpstreamError("Square", fmt.Errorf("reading response: %w", err))
	}

	c.logger.Debug("square request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 400 {
		return nil, c.parseError(resp.StatusCode, body)
	}
	return body, nil
}

// parseError converts Square API errors to model.APIError.
func (c *Client) parseError(statusCode int, body []byte) error {
	var sqErr ErrorResponse
	_ = json.Unmarshal(body, &sqErr) // Best effort parse

	detail, code := "", ""
	if len(sqErr.Errors) > 0 {
		detail = sqErr.Errors[0].Detail
		code = sqErr.Errors[0].Code
	}

	switch statusCode {
	case 401:
		return model.NewUnauthorizedError("Square authentication failed")
	case 403:
		return model.NewUnauthorizedError("Square access denied")
	case 404:
		return model.NewNotFoundError("Square resource")
	case 429:
		return model.NewRateLimitError("Square")
	case 400, 422:
		if detail == "" {
			detail = "invalid request"
		}
		field := "order"
		if len(sqErr.Errors) > 0 && sqErr.Errors[0].Field != "" {
			field = sqErr.Errors[0].Field
		}
		return model.NewValidationError(field, detail)
	default:
		return model.NewUpstreamError("Square",
			fmt.Errorf("status %d: %s %s", statusCode, code, detail))
	}
}

// countsAgainstBreaker reports whether err indicates Square is unhealthy.
func countsAgainstBreaker(err error) bool {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return true
}
