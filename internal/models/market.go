package models

import "time"

// Quote is a normalized real-time quote from the market data provider.
type Quote struct {
	Ticker        string    `json:"ticker"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	ChangePct     float64   `json:"change_pct"` // computed from price and previous close, not trusted from the API
	Volume        int64     `json:"volume"`
	MarketCap     float64   `json:"market_cap,omitempty"`
	AsOf          time.Time `json:"as_of"`
}

// CompanyProfile is the static company record behind a ticker.
type CompanyProfile struct {
	Ticker      string `json:"ticker"`
	Name        string `json:"name"`
	Sector      string `json:"sector"`
	Industry    string `json:"industry"`
	Description string `json:"description,omitempty"`
	CIK         string `json:"cik,omitempty"`
	Website     string `json:"website,omitempty"`
}

// AnalystEstimates carries consensus forward estimates.
type AnalystEstimates struct {
	Ticker      string    `json:"ticker"`
	NTMEPS      float64   `json:"ntm_eps"`
	NTMRevenue  float64   `json:"ntm_revenue,omitempty"`
	NumAnalysts int       `json:"num_analysts"`
	AsOf        time.Time `json:"as_of"`
}

// Ratios carries valuation ratios for a ticker.
type Ratios struct {
	Ticker      string    `json:"ticker"`
	ForwardPE   float64   `json:"forward_pe,omitempty"`
	TrailingPE  float64   `json:"trailing_pe,omitempty"`
	EVEBITDA    float64   `json:"ev_ebitda,omitempty"`
	PriceToFCF  float64   `json:"price_to_fcf,omitempty"`
	FCFPerShare float64   `json:"fcf_per_share,omitempty"`
	AsOf        time.Time `json:"as_of"`
}

// PriceBar is one day of OHLCV history.
type PriceBar struct {
	Date     string  `json:"date"` // YYYY-MM-DD
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adj_close,omitempty"`
	Volume   int64   `json:"volume"`
}

// NewsItem is one provider news record before deduplication.
type NewsItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Site        string    `json:"site"`
	Tickers     []string  `json:"tickers,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Text        string    `json:"text,omitempty"`
}

// SectorPerformance is one sector's day move.
type SectorPerformance struct {
	Sector    string  `json:"sector"`
	ChangePct float64 `json:"change_pct"`
}

// MarketSnapshot is the cross-asset table for the daily brief.
type MarketSnapshot struct {
	AsOf   time.Time `json:"as_of"`
	Quotes []Quote   `json:"quotes"` // index ETFs, treasuries proxy, crypto, commodities
}

// QuarterlyFinancials is one reported quarter used in the deep dive.
type QuarterlyFinancials struct {
	Ticker   string  `json:"ticker"`
	Period   string  `json:"period"` // e.g. 2025-Q4
	Revenue  float64 `json:"revenue"`
	EPS      float64 `json:"eps"`
	FCF      float64 `json:"fcf,omitempty"`
	Margin   float64 `json:"margin,omitempty"` // operating margin fraction
	ReportAt string  `json:"report_at,omitempty"`
}
