// Package transcripts provides a client for the earnings call
// transcript API and deterministic guidance extraction.
package transcripts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// DefaultTimeout is the default HTTP timeout. Transcript bodies are
// large, so this runs longer than the quote endpoints.
const DefaultTimeout = 60 * time.Second

// APIError represents an error from the transcript API.
type APIError struct {
	StatusCode int
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transcript API error: status %d (%s)", e.StatusCode, e.Endpoint)
}

// EventData is one earnings event, newest first in the feed.
type EventData struct {
	Year    int    `json:"year"`
	Quarter int    `json:"quarter"`
	Date    string `json:"date"`
}

// SpeakerData is one speaker turn in a level-2 transcript.
type SpeakerData struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// TranscriptData is the transcript endpoint body. Level 1 responses
// carry text only; level 2 adds the speaker turns.
type TranscriptData struct {
	Date     string        `json:"date"`
	Text     string        `json:"text"`
	Content  string        `json:"content"`
	Speakers []SpeakerData `json:"speakers"`
}

// Client is a transcript API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

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

// NewClient creates a transcript API client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request to the API.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("transcript API URL not configured")
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	if c.logger != nil {
		c.logger.Debug().Str("url", c.baseURL+path).Msg("Transcript API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Endpoint: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetCompanyEvents returns the earnings events for a ticker, newest
// first.
func (c *Client) GetCompanyEvents(ctx context.Context, ticker string) ([]EventData, error) {
	var result struct {
		Events []EventData `json:"events"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/company/%s/events", ticker), nil, &result); err != nil {
		return nil, err
	}
	return result.Events, nil
}

// GetTranscript returns the transcript for a specific quarter. Level 1
// is plain text, level 2 includes speaker turns.
func (c *Client) GetTranscript(ctx context.Context, ticker string, year, quarter, level int) (*TranscriptData, error) {
	params := url.Values{}
	params.Set("year", fmt.Sprintf("%d", year))
	params.Set("quarter", fmt.Sprintf("%d", quarter))
	params.Set("level", fmt.Sprintf("%d", level))

	var result TranscriptData
	if err := c.get(ctx, fmt.Sprintf("/api/company/%s/transcript", ticker), params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
