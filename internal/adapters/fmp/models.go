package fmp

// Wire types for the FMP stable endpoints. Field names follow the JSON
// the API actually returns; normalization into internal models happens
// in the adapter, not here.

// QuoteData is one entry from /quote, /batch-quote,
// /batch-crypto-quotes or /batch-commodity-quotes.
type QuoteData struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangesPct    float64 `json:"changesPercentage"`
	PreviousClose float64 `json:"previousClose"`
	Volume        int64   `json:"volume"`
	MarketCap     float64 `json:"marketCap"`
	PE            float64 `json:"pe"`
	EPS           float64 `json:"eps"`
	Timestamp     int64   `json:"timestamp"`
}

// ProfileData is one entry from /profile.
type ProfileData struct {
	Symbol        string  `json:"symbol"`
	CompanyName   string  `json:"companyName"`
	Sector        string  `json:"sector"`
	Industry      string  `json:"industry"`
	Description   string  `json:"description"`
	CIK           string  `json:"cik"`
	Website       string  `json:"website"`
	MktCap        float64 `json:"mktCap"`
	ExchangeShort string  `json:"exchangeShortName"`
}

// RatiosTTM is one entry from /ratios-ttm.
type RatiosTTM struct {
	Symbol              string  `json:"symbol"`
	PERatioTTM          float64 `json:"peRatioTTM"`
	PriceToSalesTTM     float64 `json:"priceToSalesRatioTTM"`
	PriceToBookTTM      float64 `json:"priceToBookRatioTTM"`
	EVOverEBITDATTM     float64 `json:"enterpriseValueOverEBITDATTM"`
	PriceToFreeCashTTM  float64 `json:"priceToFreeCashFlowsRatioTTM"`
	DividendYieldTTM    float64 `json:"dividendYielTTM"`
	PayoutRatioTTM      float64 `json:"payoutRatioTTM"`
	GrossProfitMgnTTM   float64 `json:"grossProfitMarginTTM"`
	OperatingProfitsTTM float64 `json:"operatingProfitMarginTTM"`
}

// KeyMetricsTTM is one entry from /key-metrics-ttm.
type KeyMetricsTTM struct {
	Symbol                  string  `json:"symbol"`
	RevenuePerShareTTM      float64 `json:"revenuePerShareTTM"`
	NetIncomePerShareTTM    float64 `json:"netIncomePerShareTTM"`
	FreeCashFlowPerShareTTM float64 `json:"freeCashFlowPerShareTTM"`
}

// IncomeStatement is one entry from /income-statement.
type IncomeStatement struct {
	Date             string  `json:"date"` // YYYY-MM-DD
	Symbol           string  `json:"symbol"`
	Period           string  `json:"period"` // Q1..Q4 or FY
	CalendarYear     string  `json:"calendarYear"`
	Revenue          float64 `json:"revenue"`
	GrossProfitRatio float64 `json:"grossProfitRatio"`
	OperatingRatio   float64 `json:"operatingIncomeRatio"`
	NetIncome        float64 `json:"netIncome"`
	EPS              float64 `json:"eps"`
	EPSDiluted       float64 `json:"epsdiluted"`
}

// CashFlowStatement is one entry from /cash-flow-statement.
type CashFlowStatement struct {
	Date         string  `json:"date"`
	Symbol       string  `json:"symbol"`
	FreeCashFlow float64 `json:"freeCashFlow"`
}

// PeerCompany is one entry from /stock-peers. The endpoint returns full
// company records; only the symbol is consumed.
type PeerCompany struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	Price       float64 `json:"price"`
	MktCap      float64 `json:"mktCap"`
}

// MoverData is one entry from /biggest-gainers or /biggest-losers.
type MoverData struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Change     float64 `json:"change"`
	ChangesPct float64 `json:"changesPercentage"`
}

// NewsData is one entry from /news/stock or /news/stock-latest.
type NewsData struct {
	Symbol        string `json:"symbol"` // comma-separated tickers
	PublishedDate string `json:"publishedDate"`
	Title         string `json:"title"`
	Image         string `json:"image"`
	Site          string `json:"site"`
	Text          string `json:"text"`
	URL           string `json:"url"`
}

// AnalystEstimate is one entry from /analyst-estimates.
type AnalystEstimate struct {
	Symbol         string  `json:"symbol"`
	Date           string  `json:"date"` // period end, YYYY-MM-DD
	RevenueAvg     float64 `json:"revenueAvg"`
	EPSAvg         float64 `json:"epsAvg"`
	NumAnalystsEPS int     `json:"numAnalystsEps"`
}

// HistoricalBar is one day inside a HistoricalResponse.
type HistoricalBar struct {
	Date     string  `json:"date"` // YYYY-MM-DD
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adjClose"`
	Volume   int64   `json:"volume"`
}

// HistoricalResponse is the body of /historical-price-eod/full. Bars
// arrive newest first.
type HistoricalResponse struct {
	Symbol     string          `json:"symbol"`
	Historical []HistoricalBar `json:"historical"`
}

// SectorSnapshot is one entry from /sector-performance-snapshot.
type SectorSnapshot struct {
	Date          string  `json:"date"`
	Sector        string  `json:"sector"`
	Exchange      string  `json:"exchange"`
	AverageChange float64 `json:"averageChange"`
}

// TreasuryRates is one entry from /treasury-rates, newest first.
type TreasuryRates struct {
	Date   string  `json:"date"`
	Year2  float64 `json:"year2"`
	Year10 float64 `json:"year10"`
	Year30 float64 `json:"year30"`
}
