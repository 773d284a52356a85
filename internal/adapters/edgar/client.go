// Package edgar provides a client for SEC EDGAR filings data. EDGAR
// has no API key but requires a descriptive User-Agent and fair-access
// request rates on every endpoint.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL serves the submissions JSON feeds.
	DefaultBaseURL = "https://data.sec.gov"

	// DefaultArchiveURL serves filing documents and the ticker table.
	DefaultArchiveURL = "https://www.sec.gov"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 20 * time.Second

	// DefaultRateLimit stays under the SEC fair-access limit of 10/s.
	DefaultRateLimit = 5
)

// APIError represents an error response from EDGAR.
type APIError struct {
	StatusCode int
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EDGAR error: status %d (%s)", e.StatusCode, e.URL)
}

// RateLimitError represents an EDGAR throttle response.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("EDGAR rate limit exceeded, retry after %v", e.RetryAfter)
}

// Client fetches EDGAR data with the required headers and rate cap.
type Client struct {
	baseURL    string
	archiveURL string
	userAgent  string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter

	mu       sync.RWMutex
	cikTable map[string]string // upper ticker -> zero-padded CIK
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom submissions base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithArchiveURL sets a custom archive base URL.
func WithArchiveURL(archiveURL string) ClientOption {
	return func(c *Client) {
		c.archiveURL = strings.TrimRight(archiveURL, "/")
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

// NewClient creates an EDGAR client. The userAgent must identify the
// operator with a contact address or the SEC blocks the requests.
func NewClient(userAgent string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		archiveURL: DefaultArchiveURL,
		userAgent:  userAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		cikTable: nil,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get fetches a URL with the fair-access headers applied.
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &RateLimitError{RetryAfter: time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	if c.logger != nil {
		c.logger.Debug().Str("url", reqURL).Msg("EDGAR request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		// EDGAR signals throttling with 403 as often as 429
		return nil, &RateLimitError{RetryAfter: 10 * time.Second}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, URL: reqURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// tickerEntry is one row of the SEC company tickers table.
type tickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// loadCIKTable fetches and caches the ticker-to-CIK mapping.
func (c *Client) loadCIKTable(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.cikTable != nil
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	body, err := c.get(ctx, c.archiveURL+"/files/company_tickers.json")
	if err != nil {
		return fmt.Errorf("failed to fetch ticker table: %w", err)
	}

	var entries map[string]tickerEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return fmt.Errorf("failed to decode ticker table: %w", err)
	}

	table := make(map[string]string, len(entries))
	for _, entry := range entries {
		table[strings.ToUpper(entry.Ticker)] = fmt.Sprintf("%010d", entry.CIK)
	}

	c.mu.Lock()
	c.cikTable = table
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Debug().Int("tickers", len(table)).Msg("EDGAR CIK table loaded")
	}
	return nil
}

// LookupCIK resolves a ticker to its zero-padded 10-digit CIK.
func (c *Client) LookupCIK(ctx context.Context, ticker string) (string, error) {
	if err := c.loadCIKTable(ctx); err != nil {
		return "", err
	}

	c.mu.RLock()
	cik, ok := c.cikTable[strings.ToUpper(ticker)]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no CIK for ticker %s", ticker)
	}
	return cik, nil
}

// submissionsRecent holds the parallel arrays of the recent filings feed.
type submissionsRecent struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
	PrimaryDocDesc  []string `json:"primaryDocDescription"`
	Items           []string `json:"items"`
}

// submissionsResponse is the CIK submissions feed body.
type submissionsResponse struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent submissionsRecent `json:"recent"`
	} `json:"filings"`
}

// GetSubmissions fetches the recent filings feed for a CIK.
func (c *Client) GetSubmissions(ctx context.Context, cik string) (*submissionsResponse, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/submissions/CIK%s.json", c.baseURL, cik))
	if err != nil {
		return nil, err
	}

	var result submissionsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode submissions: %w", err)
	}
	return &result, nil
}

// DocumentURL builds the archive URL for one filing document.
func (c *Client) DocumentURL(cik, accessionNo, document string) string {
	accession := strings.ReplaceAll(accessionNo, "-", "")
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s", c.archiveURL, cik, accession, document)
}

// IndexURL builds the archive directory URL for one filing.
func (c *Client) IndexURL(cik, accessionNo string) string {
	accession := strings.ReplaceAll(accessionNo, "-", "")
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/", c.archiveURL, cik, accession)
}

// FetchDocument downloads a filing document.
func (c *Client) FetchDocument(ctx context.Context, docURL string) ([]byte, error) {
	return c.get(ctx, docURL)
}
