package edgar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/arbor"
)

const testTickerTable = `{
	"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
	"1": {"cik_str": 1045810, "ticker": "NVDA", "title": "NVIDIA CORP"}
}`

const testSubmissions = `{
	"cik": "1045810",
	"name": "NVIDIA CORP",
	"filings": {
		"recent": {
			"accessionNumber": ["0001045810-25-000023", "0001045810-25-000020", "0001045810-25-000015"],
			"filingDate": ["2025-03-12", "2025-03-01", "2025-02-26"],
			"form": ["8-K", "4", "8-K"],
			"primaryDocument": ["nvda-8k.htm", "form4.xml", "nvda-8k-fd.htm"],
			"primaryDocDescription": ["8-K", "OWNERSHIP DOCUMENT", "8-K"],
			"items": ["2.02,9.01", "", "7.01"]
		}
	}
}`

func testServer(t *testing.T) (*httptest.Server, *Adapter) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testTickerTable)
	})
	mux.HandleFunc("/submissions/CIK0001045810.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testSubmissions)
	})
	mux.HandleFunc("/Archives/edgar/data/0001045810/000104581025000023/nvda-8k.htm", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><style>p{color:red}</style></head><body>
			<h1>Results of Operations</h1>
			<p>Revenue was <b>$39.3 billion</b>, up 78% year over year.</p>
			<script>alert("x")</script></body></html>`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient("aestimo-test test@example.com",
		WithBaseURL(server.URL),
		WithArchiveURL(server.URL),
		WithHTTPClient(server.Client()),
		WithRateLimit(1000))
	return server, NewAdapterWithClient(client, arbor.NewLogger())
}

func TestRecentFilingsResolvesCIK(t *testing.T) {
	_, adapter := testServer(t)

	filings, err := adapter.RecentFilings(context.Background(), "nvda", 10)
	if err != nil {
		t.Fatalf("RecentFilings: %v", err)
	}
	if len(filings) != 3 {
		t.Fatalf("expected 3 filings, got %d", len(filings))
	}

	first := filings[0]
	if first.CIK != "0001045810" {
		t.Errorf("expected zero-padded CIK, got %s", first.CIK)
	}
	if first.Form != "8-K" {
		t.Errorf("expected form 8-K, got %s", first.Form)
	}
	if !strings.HasSuffix(first.DocumentURL, "/Archives/edgar/data/0001045810/000104581025000023/nvda-8k.htm") {
		t.Errorf("unexpected document URL: %s", first.DocumentURL)
	}
	if !first.Material {
		t.Error("8-K with item 2.02 should be material")
	}
}

func TestRecentFilingsUnknownTicker(t *testing.T) {
	_, adapter := testServer(t)

	_, err := adapter.RecentFilings(context.Background(), "ZZZZ", 10)
	fe, ok := interfaces.AsFetchError(err)
	if !ok {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != interfaces.FailureNotFound {
		t.Errorf("expected not_found for unknown ticker, got %s", fe.Kind)
	}
}

func TestMaterialEventsFiltersItems(t *testing.T) {
	_, adapter := testServer(t)

	events, err := adapter.MaterialEvents(context.Background(), "NVDA", 5)
	if err != nil {
		t.Fatalf("MaterialEvents: %v", err)
	}
	// Form 4 is not an 8-K; the 7.01-only 8-K is routine disclosure
	if len(events) != 1 {
		t.Fatalf("expected 1 material event, got %d", len(events))
	}
	if events[0].AccessionNo != "0001045810-25-000023" {
		t.Errorf("unexpected event: %s", events[0].AccessionNo)
	}
}

func TestIsMaterial8K(t *testing.T) {
	tests := []struct {
		form     string
		items    string
		expected bool
	}{
		{"8-K", "2.02,9.01", true},
		{"8-K", "7.01", false},
		{"8-K", "", true},
		{"8-K/A", "4.02", true},
		{"10-Q", "2.02", false},
		{"4", "", false},
	}

	for _, tt := range tests {
		if got := isMaterial8K(tt.form, tt.items); got != tt.expected {
			t.Errorf("isMaterial8K(%q, %q) = %v, expected %v", tt.form, tt.items, got, tt.expected)
		}
	}
}

func TestFilingTextConvertsHTML(t *testing.T) {
	_, adapter := testServer(t)

	filings, err := adapter.RecentFilings(context.Background(), "NVDA", 1)
	if err != nil {
		t.Fatal(err)
	}

	text, err := adapter.FilingText(context.Background(), &filings[0])
	if err != nil {
		t.Fatalf("FilingText: %v", err)
	}
	if !strings.Contains(text, "Results of Operations") {
		t.Errorf("expected heading in markdown, got: %s", text)
	}
	if !strings.Contains(text, "$39.3 billion") {
		t.Errorf("expected body text in markdown, got: %s", text)
	}
	if strings.Contains(text, "alert(") || strings.Contains(text, "color:red") {
		t.Errorf("script/style content leaked into markdown: %s", text)
	}
}

func TestFilingTextIndexFallback(t *testing.T) {
	mux := http.NewServeMux()
	// Exact-path handler so the subtree pattern below doesn't serve the
	// index listing for the missing primary document with a 200.
	mux.HandleFunc("/Archives/edgar/data/0001045810/000104581025000099/missing.htm", http.NotFound)
	mux.HandleFunc("/Archives/edgar/data/0001045810/000104581025000099/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><table>
			<tr><td><a href="exhibit99.htm">exhibit99.htm</a></td></tr>
			<tr><td><a href="graph.jpg">graph.jpg</a></td></tr>
			</table></body></html>`)
	})
	mux.HandleFunc("/Archives/edgar/data/0001045810/000104581025000099/exhibit99.htm", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Press release body.</p></body></html>`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient("aestimo-test test@example.com",
		WithBaseURL(server.URL),
		WithArchiveURL(server.URL),
		WithHTTPClient(server.Client()),
		WithRateLimit(1000))
	adapter := NewAdapterWithClient(client, arbor.NewLogger())

	filing := &models.Filing{
		Ticker:      "NVDA",
		CIK:         "0001045810",
		Form:        "8-K",
		AccessionNo: "0001045810-25-000099",
		DocumentURL: server.URL + "/Archives/edgar/data/0001045810/000104581025000099/missing.htm",
	}

	text, err := adapter.FilingText(context.Background(), filing)
	if err != nil {
		t.Fatalf("FilingText: %v", err)
	}
	if !strings.Contains(text, "Press release body.") {
		t.Errorf("expected fallback document text, got: %s", text)
	}
}
