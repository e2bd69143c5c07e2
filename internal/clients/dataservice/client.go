// Package dataservice provides a client for the remote portfolio data service
package dataservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/sharesrus/internal/circuitbreaker"
	"github.com/bobmcallan/sharesrus/internal/common"
	"github.com/bobmcallan/sharesrus/internal/interfaces"
	"github.com/bobmcallan/sharesrus/internal/models"
)

const (
	DefaultBaseURL   = "http://localhost:8000/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements the DataServiceClient interface over HTTP/JSON
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBreaker guards calls with a circuit breaker
func WithBreaker(cb *circuitbreaker.CircuitBreaker) ClientOption {
	return func(c *Client) {
		c.breaker = cb
	}
}

// NewClient creates a new data service client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-2xx response from the data service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("data service error: status %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus exposes the upstream status to the error taxonomy.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// IsServerFailure reports whether err should count against the circuit
// breaker. Client errors (4xx) mean the service is healthy.
func IsServerFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return err != nil
}

// flexID accepts both numeric and string identifiers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type assetResponse struct {
	ID            flexID  `json:"id"`
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	PurchasePrice float64 `json:"purchase_price"`
	CurrentPrice  float64 `json:"current_price"`
}

type portfolioResponse struct {
	ID          flexID          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Assets      []assetResponse `json:"assets"`
	TotalValue  float64         `json:"total_value"`
}

func (p portfolioResponse) toModel() *models.Portfolio {
	out := &models.Portfolio{
		ID:          string(p.ID),
		Name:        p.Name,
		Description: p.Description,
		Assets:      make([]models.Asset, 0, len(p.Assets)),
	}
	for _, a := range p.Assets {
		out.Assets = append(out.Assets, models.Asset{
			ID:            string(a.ID),
			Symbol:        strings.ToUpper(strings.TrimSpace(a.Symbol)),
			Quantity:      a.Quantity,
			PurchasePrice: a.PurchasePrice,
			CurrentPrice:  a.CurrentPrice,
		})
	}
	// Totals are derived locally so they always agree with quantity × price
	out.Recompute()
	return out
}

type errorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// GetPortfolio retrieves a portfolio with its assets
func (c *Client) GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	var resp portfolioResponse
	if err := c.do(ctx, http.MethodGet, "/portfolios/"+url.PathEscape(portfolioID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// ListPortfolios retrieves all portfolios
func (c *Client) ListPortfolios(ctx context.Context) ([]models.PortfolioSummary, error) {
	var resp []portfolioResponse
	if err := c.do(ctx, http.MethodGet, "/portfolios", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]models.PortfolioSummary, 0, len(resp))
	for _, p := range resp {
		m := p.toModel()
		out = append(out, models.PortfolioSummary{ID: m.ID, Name: m.Name, TotalValue: m.TotalValue})
	}
	return out, nil
}

// GetPortfolioHistory retrieves the ordered value series for a range
func (c *Client) GetPortfolioHistory(ctx context.Context, portfolioID string, r models.TimeRange) ([]models.HistoryPoint, error) {
	path := fmt.Sprintf("/portfolios/%s/history?range=%s", url.PathEscape(portfolioID), url.QueryEscape(string(r)))
	var resp []models.HistoryPoint
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		resp = []models.HistoryPoint{}
	}
	return resp, nil
}

// AddAsset adds an asset to a portfolio
func (c *Client) AddAsset(ctx context.Context, portfolioID string, asset models.NewAsset) error {
	return c.do(ctx, http.MethodPost, "/portfolios/"+url.PathEscape(portfolioID)+"/assets", asset, nil)
}

// RemoveAsset removes an asset from a portfolio
func (c *Client) RemoveAsset(ctx context.Context, portfolioID, assetID string) error {
	path := fmt.Sprintf("/portfolios/%s/assets/%s", url.PathEscape(portfolioID), url.PathEscape(assetID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// UpdatePortfolio edits name and/or description
func (c *Client) UpdatePortfolio(ctx context.Context, portfolioID string, edit models.PortfolioEdit) (*models.Portfolio, error) {
	var resp portfolioResponse
	if err := c.do(ctx, http.MethodPut, "/portfolios/"+url.PathEscape(portfolioID), edit, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// DeletePortfolio deletes a portfolio
func (c *Client) DeletePortfolio(ctx context.Context, portfolioID string) error {
	return c.do(ctx, http.MethodDelete, "/portfolios/"+url.PathEscape(portfolioID), nil, nil)
}

// do executes one request through the rate limiter and breaker, decoding a
// 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	call := func() error { return c.roundTrip(ctx, method, path, body, out) }
	if c.breaker != nil {
		return c.breaker.Execute(ctx, call)
	}
	return call()
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Error().Err(err).Str("method", method).Str("path", path).Dur("elapsed", elapsed).Msg("Data service request failed")
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("Data service non-OK response")
		return &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp)}
	}

	c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("Data service call")

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// readErrorMessage extracts a human-readable message from an error body.
func readErrorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil {
		if er.Detail != "" {
			return er.Detail
		}
		if er.Error != "" {
			return er.Error
		}
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode) + " (" + strconv.Itoa(resp.StatusCode) + ")"
}

// Ensure Client implements DataServiceClient
var _ interfaces.DataServiceClient = (*Client)(nil)
