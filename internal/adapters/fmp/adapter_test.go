package fmp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/arbor"
)

func testAdapter(server *httptest.Server) *Adapter {
	client := NewClient("test-key",
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithRateLimit(1000))
	return NewAdapterWithClient(client, arbor.NewLogger())
}

func TestGetQuoteComputesChangeLocally(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/quote" && r.URL.Query().Get("symbol") == "NVDA" {
			// changesPercentage is deliberately wrong; the adapter must
			// recompute from price and previous close
			json.NewEncoder(w).Encode([]QuoteData{{
				Symbol:        "NVDA",
				Price:         110,
				PreviousClose: 100,
				ChangesPct:    99.9,
				Volume:        1234,
			}})
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	quote, err := testAdapter(server).GetQuote(context.Background(), "NVDA")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if quote.ChangePct != 10.0 {
		t.Errorf("expected change 10.0, got %v", quote.ChangePct)
	}
	if quote.PreviousClose != 100 {
		t.Errorf("expected previous close 100, got %v", quote.PreviousClose)
	}
}

func TestGetQuoteNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]QuoteData{})
	}))
	defer server.Close()

	_, err := testAdapter(server).GetQuote(context.Background(), "NOPE")
	fe, ok := interfaces.AsFetchError(err)
	if !ok {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != interfaces.FailureNotFound {
		t.Errorf("expected not_found, got %s", fe.Kind)
	}
}

func TestRateLimitMapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testAdapter(server).GetQuote(context.Background(), "NVDA")
	fe, ok := interfaces.AsFetchError(err)
	if !ok {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Kind != interfaces.FailureRateLimited {
		t.Errorf("expected rate_limited, got %s", fe.Kind)
	}
	if fe.RetryAfter != 3*time.Second {
		t.Errorf("expected retry after 3s, got %v", fe.RetryAfter)
	}
	if !fe.Transient() {
		t.Error("rate limit should be transient")
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testAdapter(server).GetProfile(context.Background(), "NVDA")
	fe, ok := interfaces.AsFetchError(err)
	if !ok {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if !fe.Transient() {
		t.Errorf("5xx should map to a transient failure, got %s", fe.Kind)
	}
}

func TestGetPriceHistoryOrdersOldestFirst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/historical-price-eod/full" {
			json.NewEncoder(w).Encode(HistoricalResponse{
				Symbol: "NVDA",
				Historical: []HistoricalBar{
					{Date: "2025-03-14", Close: 120},
					{Date: "2025-03-13", Close: 118},
					{Date: "2025-03-12", Close: 115},
				},
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	bars, err := testAdapter(server).GetPriceHistory(context.Background(), "NVDA", from, to)
	if err != nil {
		t.Fatalf("GetPriceHistory: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	if bars[0].Date != "2025-03-12" || bars[2].Date != "2025-03-14" {
		t.Errorf("bars not oldest first: %s .. %s", bars[0].Date, bars[2].Date)
	}
}

func TestGetPriceHistoryBareArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]HistoricalBar{
			{Date: "2025-03-14", Close: 120},
			{Date: "2025-03-13", Close: 118},
		})
	}))
	defer server.Close()

	bars, err := testAdapter(server).GetPriceHistory(context.Background(), "NVDA", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetPriceHistory: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
}

func TestGetQuarterlyFinancialsJoinsCashFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/income-statement":
			json.NewEncoder(w).Encode([]IncomeStatement{
				{Date: "2025-01-26", Period: "Q4", CalendarYear: "2025", Revenue: 39331e6, EPSDiluted: 0.89, OperatingRatio: 0.62},
				{Date: "2024-10-27", Period: "Q3", CalendarYear: "2025", Revenue: 35082e6, EPSDiluted: 0.78, OperatingRatio: 0.62},
			})
		case "/cash-flow-statement":
			json.NewEncoder(w).Encode([]CashFlowStatement{
				{Date: "2025-01-26", FreeCashFlow: 15000e6},
				{Date: "2024-10-27", FreeCashFlow: 14000e6},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	quarters, err := testAdapter(server).GetQuarterlyFinancials(context.Background(), "NVDA", 2)
	if err != nil {
		t.Fatalf("GetQuarterlyFinancials: %v", err)
	}
	if len(quarters) != 2 {
		t.Fatalf("expected 2 quarters, got %d", len(quarters))
	}
	if quarters[0].Period != "2025-Q4" {
		t.Errorf("expected period 2025-Q4, got %s", quarters[0].Period)
	}
	if quarters[0].FCF != 15000e6 {
		t.Errorf("expected FCF joined from cash flow, got %v", quarters[0].FCF)
	}
}

func TestGetMarketSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/batch-quote":
			json.NewEncoder(w).Encode([]QuoteData{
				{Symbol: "SPY", Price: 560, PreviousClose: 555},
				{Symbol: "QQQ", Price: 480, PreviousClose: 476},
				{Symbol: "DIA", Price: 430, PreviousClose: 431},
			})
		case "/batch-crypto-quotes":
			json.NewEncoder(w).Encode([]QuoteData{
				{Symbol: "ETHUSD", Price: 3000},
				{Symbol: "BTCUSD", Price: 95000, PreviousClose: 94000},
			})
		case "/batch-commodity-quotes":
			json.NewEncoder(w).Encode([]QuoteData{
				{Symbol: "GCUSD", Price: 2900, PreviousClose: 2890},
				{Symbol: "SIUSD", Price: 32},
				{Symbol: "CLUSD", Price: 68, PreviousClose: 69},
			})
		case "/treasury-rates":
			json.NewEncoder(w).Encode([]TreasuryRates{
				{Date: "2025-03-14", Year10: 4.31},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	snapshot, err := testAdapter(server).GetMarketSnapshot(context.Background())
	if err != nil {
		t.Fatalf("GetMarketSnapshot: %v", err)
	}
	// 3 ETFs + BTC + gold + oil + 10Y
	if len(snapshot.Quotes) != 7 {
		t.Fatalf("expected 7 snapshot quotes, got %d", len(snapshot.Quotes))
	}

	var sawYield bool
	for _, q := range snapshot.Quotes {
		if q.Ticker == "US10Y" {
			sawYield = true
			if q.Price != 4.31 {
				t.Errorf("expected 10Y at 4.31, got %v", q.Price)
			}
		}
		if q.Ticker == "ETHUSD" || q.Ticker == "SIUSD" {
			t.Errorf("unexpected symbol in snapshot: %s", q.Ticker)
		}
	}
	if !sawYield {
		t.Error("expected US10Y in snapshot")
	}
}

func TestGetPeersExcludesSelf(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]PeerCompany{
			{Symbol: "NVDA"},
			{Symbol: "AMD"},
			{Symbol: "AVGO"},
			{Symbol: ""},
		})
	}))
	defer server.Close()

	peers, err := testAdapter(server).GetPeers(context.Background(), "NVDA")
	if err != nil {
		t.Fatalf("GetPeers: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %d: %v", len(peers), peers)
	}
	for _, p := range peers {
		if p == "NVDA" {
			t.Error("subject ticker should be excluded from peers")
		}
	}
}

func TestGetMoversCombinesBothSides(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/biggest-gainers":
			json.NewEncoder(w).Encode([]MoverData{
				{Symbol: "SMCI", Price: 55, Change: 5},
			})
		case "/biggest-losers":
			json.NewEncoder(w).Encode([]MoverData{
				{Symbol: "LULU", Price: 270, Change: -30},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	movers, err := testAdapter(server).GetMovers(context.Background())
	if err != nil {
		t.Fatalf("GetMovers: %v", err)
	}
	if len(movers) != 2 {
		t.Fatalf("expected 2 movers, got %d", len(movers))
	}
	if movers[0].Ticker != "SMCI" || movers[0].PriceMovePct != 10.0 {
		t.Errorf("gainer = %+v, want SMCI +10%%", movers[0])
	}
	if movers[1].Ticker != "LULU" || movers[1].PriceMovePct != -10.0 {
		t.Errorf("loser = %+v, want LULU -10%%", movers[1])
	}
}

func TestGetMoversToleratesOneSideDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/biggest-gainers" {
			json.NewEncoder(w).Encode([]MoverData{{Symbol: "SMCI", Price: 55, Change: 5}})
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	movers, err := testAdapter(server).GetMovers(context.Background())
	if err != nil {
		t.Fatalf("GetMovers: %v", err)
	}
	if len(movers) != 1 || movers[0].Ticker != "SMCI" {
		t.Errorf("expected the surviving side only, got %+v", movers)
	}
}
