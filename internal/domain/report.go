package domain

// CategoryTotal accumulates one fee category inside a period bucket.
type CategoryTotal struct {
	Total    float64 `json:"total"`
	TotalUSD float64 `json:"total_usd"`
}

// PeriodData accumulates everything that landed in one daily, weekly or
// monthly bucket. Total sums native units across currencies and is advisory
// only; TotalUSD is the comparable figure.
type PeriodData struct {
	Total         float64                       `json:"total"`
	TotalUSD      float64                       `json:"total_usd"`
	Currencies    map[string]float64            `json:"currencies"`
	CurrenciesUSD map[string]float64            `json:"currencies_usd"`
	ByCategory    map[FeeCategory]CategoryTotal `json:"by_category"`
}

// BreakdownEntry is one row of the global currency breakdown.
type BreakdownEntry struct {
	Total      float64 `json:"total"`
	TotalUSD   float64 `json:"total_usd"`
	Percentage float64 `json:"percentage"`
}

// CategoryBreakdownEntry is one row of the global category breakdown.
type CategoryBreakdownEntry struct {
	Total      float64 `json:"total"`
	TotalUSD   float64 `json:"total_usd"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
}

// AggregatedFees is the report produced by one aggregation pass.
type AggregatedFees struct {
	Daily             map[string]*PeriodData                 `json:"daily"`
	Weekly            map[string]*PeriodData                 `json:"weekly"`
	Monthly           map[string]*PeriodData                 `json:"monthly"`
	CurrencyBreakdown map[string]BreakdownEntry              `json:"currency_breakdown"`
	CategoryBreakdown map[FeeCategory]CategoryBreakdownEntry `json:"category_breakdown"`
}

// ReportTier labels which fallback tier produced a report.
type ReportTier string

const (
	TierLive   ReportTier = "live"
	TierCached ReportTier = "cached"
	TierDemo   ReportTier = "demo"
)

// Report is the pull-based surface handed to the presentation layer.
type Report struct {
	Tier         ReportTier     `json:"tier"`
	Incomplete   bool           `json:"incomplete,omitempty"`
	Fees         AggregatedFees `json:"fees"`
	Transactions []Transaction  `json:"transactions"`
}
