package edgar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/arbor"
)

const adapterName = "edgar"

// materialItems are the 8-K item codes treated as market-moving.
// Results of operations (2.02) and M&A (2.01) drive most event
// candidates; the rest are the classic bad-news items.
var materialItems = map[string]bool{
	"1.01": true, // entry into a material agreement
	"1.03": true, // bankruptcy or receivership
	"2.01": true, // completed acquisition or disposition
	"2.02": true, // results of operations
	"4.02": true, // non-reliance on prior financials
	"5.02": true, // officer departures and appointments
}

// scanDepth is how many recent filings to inspect when filtering for
// material events.
const scanDepth = 40

// Adapter normalizes EDGAR feeds into filing records and markdown text.
type Adapter struct {
	client    *Client
	converter *md.Converter
	logger    arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.FilingsAdapter = (*Adapter)(nil)

// NewAdapter creates a filings adapter from provider config.
func NewAdapter(config *common.EdgarConfig, logger arbor.ILogger) *Adapter {
	opts := []ClientOption{WithLogger(logger)}
	if config.BaseURL != "" {
		opts = append(opts, WithBaseURL(config.BaseURL))
	}
	if config.RequestsPerSec > 0 {
		opts = append(opts, WithRateLimit(config.RequestsPerSec))
	}
	if timeout := common.Duration(config.Timeout, DefaultTimeout); timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: timeout}))
	}

	return NewAdapterWithClient(NewClient(config.UserAgent, opts...), logger)
}

// NewAdapterWithClient wires an existing client, used by tests.
func NewAdapterWithClient(client *Client, logger arbor.ILogger) *Adapter {
	return &Adapter{
		client:    client,
		converter: md.NewConverter("www.sec.gov", true, nil),
		logger:    logger,
	}
}

// toFetchError classifies a client failure for the evidence builder.
func toFetchError(field string, err error) *interfaces.FetchError {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		fe := interfaces.NewFetchError(interfaces.FailureRateLimited, adapterName, field, err)
		fe.RetryAfter = rateErr.RetryAfter
		return fe
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound {
			return interfaces.NewFetchError(interfaces.FailureNotFound, adapterName, field, err)
		}
		if apiErr.StatusCode >= 500 {
			return interfaces.NewFetchError(interfaces.FailureTimeout, adapterName, field, err)
		}
		return interfaces.NewFetchError(interfaces.FailureNotFound, adapterName, field, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return interfaces.NewFetchError(interfaces.FailureTimeout, adapterName, field, err)
	}
	if strings.Contains(err.Error(), "no CIK") {
		return interfaces.NewFetchError(interfaces.FailureNotFound, adapterName, field, err)
	}
	return interfaces.NewFetchError(interfaces.FailureTimeout, adapterName, field, err)
}

// RecentFilings returns the most recent filings for a ticker, newest
// first, with 8-Ks classified for materiality.
func (a *Adapter) RecentFilings(ctx context.Context, ticker string, limit int) ([]models.Filing, error) {
	if limit <= 0 {
		limit = 10
	}
	return a.recentFilings(ctx, ticker, limit)
}

func (a *Adapter) recentFilings(ctx context.Context, ticker string, limit int) ([]models.Filing, error) {
	cik, err := a.client.LookupCIK(ctx, ticker)
	if err != nil {
		return nil, toFetchError("filings", err)
	}

	subs, err := a.client.GetSubmissions(ctx, cik)
	if err != nil {
		return nil, toFetchError("filings", err)
	}

	recent := subs.Filings.Recent
	count := len(recent.Form)
	if count > limit {
		count = limit
	}

	filings := make([]models.Filing, 0, count)
	for i := 0; i < count; i++ {
		filedAt, err := time.Parse("2006-01-02", recent.FilingDate[i])
		if err != nil {
			a.logger.Warn().Str("date", recent.FilingDate[i]).Msg("Unparseable filing date")
			continue
		}

		var items, description, document string
		if i < len(recent.Items) {
			items = recent.Items[i]
		}
		if i < len(recent.PrimaryDocDesc) {
			description = recent.PrimaryDocDesc[i]
		}
		if i < len(recent.PrimaryDocument) {
			document = recent.PrimaryDocument[i]
		}

		form := recent.Form[i]
		filings = append(filings, models.Filing{
			Ticker:      ticker,
			CIK:         cik,
			Form:        form,
			AccessionNo: recent.AccessionNumber[i],
			FiledAt:     filedAt,
			Description: description,
			DocumentURL: a.client.DocumentURL(cik, recent.AccessionNumber[i], document),
			Material:    isMaterial8K(form, items),
		})
	}
	return filings, nil
}

// isMaterial8K reports whether a filing is a market-moving 8-K. Items
// are a comma-joined code list; when the feed omits them every 8-K
// counts as material.
func isMaterial8K(form, items string) bool {
	if form != "8-K" && form != "8-K/A" {
		return false
	}
	if items == "" {
		return true
	}
	for _, item := range strings.Split(items, ",") {
		if materialItems[strings.TrimSpace(item)] {
			return true
		}
	}
	return false
}

// MaterialEvents returns recent material 8-K filings, newest first.
func (a *Adapter) MaterialEvents(ctx context.Context, ticker string, limit int) ([]models.Filing, error) {
	if limit <= 0 {
		limit = 5
	}

	filings, err := a.recentFilings(ctx, ticker, scanDepth)
	if err != nil {
		return nil, err
	}

	events := make([]models.Filing, 0, limit)
	for _, filing := range filings {
		if !filing.Material {
			continue
		}
		events = append(events, filing)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

// FilingText fetches a filing document and normalizes it to markdown.
// HTML is converted; PDF exhibits are text-extracted. When the primary
// document is missing the filing index is scanned for a readable one.
func (a *Adapter) FilingText(ctx context.Context, filing *models.Filing) (string, error) {
	data, err := a.client.FetchDocument(ctx, filing.DocumentURL)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return a.filingTextFromIndex(ctx, filing)
		}
		return "", toFetchError("filing_text", err)
	}
	return a.normalizeDocument(filing.DocumentURL, data)
}

// filingTextFromIndex falls back to the first readable document listed
// in the filing's archive directory.
func (a *Adapter) filingTextFromIndex(ctx context.Context, filing *models.Filing) (string, error) {
	docs, err := a.listFilingDocuments(ctx, filing)
	if err != nil {
		return "", err
	}

	for _, docURL := range docs {
		lower := strings.ToLower(docURL)
		if !strings.HasSuffix(lower, ".htm") && !strings.HasSuffix(lower, ".html") &&
			!strings.HasSuffix(lower, ".txt") && !strings.HasSuffix(lower, ".pdf") {
			continue
		}
		data, err := a.client.FetchDocument(ctx, docURL)
		if err != nil {
			continue
		}
		text, err := a.normalizeDocument(docURL, data)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return "", interfaces.NewFetchError(interfaces.FailureNotFound, adapterName, "filing_text",
		fmt.Errorf("no readable document for %s", filing.AccessionNo))
}

// listFilingDocuments parses the archive directory listing for a filing.
func (a *Adapter) listFilingDocuments(ctx context.Context, filing *models.Filing) ([]string, error) {
	indexURL := a.client.IndexURL(filing.CIK, filing.AccessionNo)
	body, err := a.client.FetchDocument(ctx, indexURL)
	if err != nil {
		return nil, toFetchError("filing_index", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse filing index: %w", err)
	}

	var urls []string
	doc.Find("table a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		switch {
		case strings.HasPrefix(href, "http"):
			urls = append(urls, href)
		case strings.HasPrefix(href, "/"):
			urls = append(urls, strings.TrimRight(a.client.archiveURL, "/")+href)
		default:
			urls = append(urls, indexURL+href)
		}
	})
	return urls, nil
}

// normalizeDocument converts a filing document to markdown text.
func (a *Adapter) normalizeDocument(docURL string, data []byte) (string, error) {
	if bytes.HasPrefix(data, []byte("%PDF")) || strings.HasSuffix(strings.ToLower(docURL), ".pdf") {
		return extractPDFText(data)
	}
	return a.htmlToMarkdown(data)
}

// htmlToMarkdown strips boilerplate nodes and converts the remainder.
func (a *Adapter) htmlToMarkdown(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse filing HTML: %w", err)
	}
	doc.Find("script, style, head").Remove()

	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize filing HTML: %w", err)
	}

	markdown, err := a.converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert filing to markdown: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}
