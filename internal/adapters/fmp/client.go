package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the FMP stable API.
	DefaultBaseURL = "https://financialmodelingprep.com/stable"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 4
)

// Client is an FMP API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// NewClient creates a new FMP API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request to the API.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return &RateLimitError{RetryAfter: time.Second}
	}

	// Add API key
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)

	// Build URL
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	// Create request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Log request
	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("FMP API request")
	}

	// Execute request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	// Check status
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Second
		if header := resp.Header.Get("Retry-After"); header != "" {
			if secs, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	// Parse response
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// GetQuote retrieves the quote for a single symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*QuoteData, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var result []QuoteData
	if err := c.get(ctx, "/quote", params, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	return &result[0], nil
}

// GetBatchQuotes retrieves quotes for multiple symbols in one call.
func (c *Client) GetBatchQuotes(ctx context.Context, symbols []string) ([]QuoteData, error) {
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))

	var result []QuoteData
	if err := c.get(ctx, "/batch-quote", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetCryptoQuotes retrieves the full crypto quote table.
func (c *Client) GetCryptoQuotes(ctx context.Context) ([]QuoteData, error) {
	var result []QuoteData
	if err := c.get(ctx, "/batch-crypto-quotes", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetCommodityQuotes retrieves the full commodity quote table.
func (c *Client) GetCommodityQuotes(ctx context.Context) ([]QuoteData, error) {
	var result []QuoteData
	if err := c.get(ctx, "/batch-commodity-quotes", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTreasuryRates retrieves the treasury yield curve, newest first.
func (c *Client) GetTreasuryRates(ctx context.Context) ([]TreasuryRates, error) {
	var result []TreasuryRates
	if err := c.get(ctx, "/treasury-rates", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetProfile retrieves the company profile for a symbol.
func (c *Client) GetProfile(ctx context.Context, symbol string) (*ProfileData, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var result []ProfileData
	if err := c.get(ctx, "/profile", params, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	return &result[0], nil
}

// GetRatiosTTM retrieves trailing-twelve-month ratios for a symbol.
func (c *Client) GetRatiosTTM(ctx context.Context, symbol string) (*RatiosTTM, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var result []RatiosTTM
	if err := c.get(ctx, "/ratios-ttm", params, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	return &result[0], nil
}

// GetKeyMetricsTTM retrieves trailing-twelve-month key metrics for a symbol.
func (c *Client) GetKeyMetricsTTM(ctx context.Context, symbol string) (*KeyMetricsTTM, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var result []KeyMetricsTTM
	if err := c.get(ctx, "/key-metrics-ttm", params, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	return &result[0], nil
}

// GetIncomeStatements retrieves income statements, newest first.
func (c *Client) GetIncomeStatements(ctx context.Context, symbol string, opts ...QueryOption) ([]IncomeStatement, error) {
	params := &queryParams{Period: "quarter", Limit: 4}
	for _, opt := range opts {
		opt(params)
	}

	queryParams := url.Values{}
	queryParams.Set("symbol", symbol)
	queryParams.Set("period", params.Period)
	queryParams.Set("limit", strconv.Itoa(params.Limit))

	var result []IncomeStatement
	if err := c.get(ctx, "/income-statement", queryParams, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetCashFlowStatements retrieves cash flow statements, newest first.
func (c *Client) GetCashFlowStatements(ctx context.Context, symbol string, opts ...QueryOption) ([]CashFlowStatement, error) {
	params := &queryParams{Period: "quarter", Limit: 4}
	for _, opt := range opts {
		opt(params)
	}

	queryParams := url.Values{}
	queryParams.Set("symbol", symbol)
	queryParams.Set("period", params.Period)
	queryParams.Set("limit", strconv.Itoa(params.Limit))

	var result []CashFlowStatement
	if err := c.get(ctx, "/cash-flow-statement", queryParams, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetStockPeers retrieves peer companies for a symbol.
func (c *Client) GetStockPeers(ctx context.Context, symbol string) ([]PeerCompany, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var result []PeerCompany
	if err := c.get(ctx, "/stock-peers", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetBiggestGainers retrieves the day's biggest risers.
func (c *Client) GetBiggestGainers(ctx context.Context) ([]MoverData, error) {
	var result []MoverData
	if err := c.get(ctx, "/biggest-gainers", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetBiggestLosers retrieves the day's biggest decliners.
func (c *Client) GetBiggestLosers(ctx context.Context) ([]MoverData, error) {
	var result []MoverData
	if err := c.get(ctx, "/biggest-losers", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetStockNews retrieves news for specific symbols, or the latest
// market-wide stock news when symbols is empty.
func (c *Client) GetStockNews(ctx context.Context, symbols []string, opts ...QueryOption) ([]NewsData, error) {
	params := &queryParams{Limit: 50}
	for _, opt := range opts {
		opt(params)
	}

	queryParams := url.Values{}
	queryParams.Set("page", strconv.Itoa(params.Page))
	queryParams.Set("limit", strconv.Itoa(params.Limit))

	path := "/news/stock-latest"
	if len(symbols) > 0 {
		path = "/news/stock"
		queryParams.Set("symbols", strings.Join(symbols, ","))
	}

	var result []NewsData
	if err := c.get(ctx, path, queryParams, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAnalystEstimates retrieves consensus estimates, nearest period first.
func (c *Client) GetAnalystEstimates(ctx context.Context, symbol string, opts ...QueryOption) ([]AnalystEstimate, error) {
	params := &queryParams{Period: "annual", Limit: 4}
	for _, opt := range opts {
		opt(params)
	}

	queryParams := url.Values{}
	queryParams.Set("symbol", symbol)
	queryParams.Set("period", params.Period)
	queryParams.Set("limit", strconv.Itoa(params.Limit))

	var result []AnalystEstimate
	if err := c.get(ctx, "/analyst-estimates", queryParams, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetHistoricalPrices retrieves daily EOD bars, newest first.
func (c *Client) GetHistoricalPrices(ctx context.Context, symbol string, opts ...QueryOption) (*HistoricalResponse, error) {
	params := &queryParams{}
	for _, opt := range opts {
		opt(params)
	}

	queryParams := url.Values{}
	queryParams.Set("symbol", symbol)
	if !params.From.IsZero() {
		queryParams.Set("from", params.From.Format("2006-01-02"))
	}
	if !params.To.IsZero() {
		queryParams.Set("to", params.To.Format("2006-01-02"))
	}

	// The endpoint returns either {symbol, historical: [...]} or a bare
	// array depending on plan, so decode in two steps.
	var raw json.RawMessage
	if err := c.get(ctx, "/historical-price-eod/full", queryParams, &raw); err != nil {
		return nil, err
	}

	var result HistoricalResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		var bars []HistoricalBar
		if arrErr := json.Unmarshal(raw, &bars); arrErr != nil {
			return nil, fmt.Errorf("failed to decode historical prices: %w", err)
		}
		result = HistoricalResponse{Symbol: symbol, Historical: bars}
	}
	return &result, nil
}

// GetSectorPerformance retrieves the day's sector performance snapshot.
func (c *Client) GetSectorPerformance(ctx context.Context) ([]SectorSnapshot, error) {
	var result []SectorSnapshot
	if err := c.get(ctx, "/sector-performance-snapshot", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}
