package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"feeindex/internal/domain"
)

// PriceSource resolves USD unit prices for a batch of display symbols.
// Lookups never fail; unknown symbols price at zero.
type PriceSource interface {
	Prices(ctx context.Context, symbols []string) map[string]float64
}

// Aggregator folds classified transactions into period, currency and
// category totals. It holds no state between calls; the price cache inside
// the PriceSource is the only side effect.
type Aggregator struct {
	prices PriceSource
}

func NewAggregator(prices PriceSource) *Aggregator {
	return &Aggregator{prices: prices}
}

// Aggregate runs one pass over the transactions and returns the report plus
// USD-annotated copies of every transaction that contributed to it.
// Transactions missing a token symbol or carrying an unparseable value are
// skipped with a warning, never failing the whole pass. A symbol no price feed can resolve still
// contributes its native total; only its USD side is zero.
func (a *Aggregator) Aggregate(ctx context.Context, transactions []domain.Transaction) (domain.AggregatedFees, []domain.Transaction) {
	symbols := make([]string, 0, 8)
	seen := make(map[string]struct{}, 8)
	for _, tx := range transactions {
		if tx.TokenSymbol == "" {
			continue
		}
		if _, dup := seen[tx.TokenSymbol]; dup {
			continue
		}
		seen[tx.TokenSymbol] = struct{}{}
		symbols = append(symbols, tx.TokenSymbol)
	}
	prices := a.prices.Prices(ctx, symbols)

	fees := domain.AggregatedFees{
		Daily:             make(map[string]*domain.PeriodData),
		Weekly:            make(map[string]*domain.PeriodData),
		Monthly:           make(map[string]*domain.PeriodData),
		CurrencyBreakdown: make(map[string]domain.BreakdownEntry),
		CategoryBreakdown: make(map[domain.FeeCategory]domain.CategoryBreakdownEntry),
	}

	currencyTotals := make(map[string]float64)
	currencyTotalsUSD := make(map[string]float64)
	categoryTotals := make(map[domain.FeeCategory]float64)
	categoryTotalsUSD := make(map[domain.FeeCategory]float64)
	categoryCounts := make(map[domain.FeeCategory]int)

	annotated := make([]domain.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.TokenSymbol == "" {
			slog.Warn("skipping transaction without a token symbol", "hash", tx.Hash, "network", tx.Network)
			continue
		}
		raw, err := decimal.NewFromString(tx.Value)
		if err != nil {
			slog.Warn("skipping transaction with malformed value", "hash", tx.Hash, "value", tx.Value, "error", err)
			continue
		}
		native := raw.Shift(int32(-tx.TokenDecimal)).InexactFloat64()
		usd := native * prices[tx.TokenSymbol]

		category := tx.Category
		if category == "" {
			category = domain.CategoryUncategorized
		}

		when := time.UnixMilli(tx.Timestamp).UTC()
		// Daily and weekly keys collide on Mondays, so the buckets are
		// walked as explicit pairs rather than a key-indexed map.
		for _, slot := range []struct {
			key    string
			bucket map[string]*domain.PeriodData
		}{
			{dayKey(when), fees.Daily},
			{weekKey(when), fees.Weekly},
			{monthKey(when), fees.Monthly},
		} {
			key, bucket := slot.key, slot.bucket
			period := bucket[key]
			if period == nil {
				period = &domain.PeriodData{
					Currencies:    make(map[string]float64),
					CurrenciesUSD: make(map[string]float64),
					ByCategory:    make(map[domain.FeeCategory]domain.CategoryTotal),
				}
				bucket[key] = period
			}
			period.Total += native
			period.TotalUSD += usd
			period.Currencies[tx.TokenSymbol] += native
			period.CurrenciesUSD[tx.TokenSymbol] += usd
			byCategory := period.ByCategory[category]
			byCategory.Total += native
			byCategory.TotalUSD += usd
			period.ByCategory[category] = byCategory
		}

		currencyTotals[tx.TokenSymbol] += native
		currencyTotalsUSD[tx.TokenSymbol] += usd
		categoryTotals[category] += native
		categoryTotalsUSD[category] += usd
		categoryCounts[category]++

		priced := tx
		priced.Category = category
		priced.ValueUSD = usd
		annotated = append(annotated, priced)
	}

	var grandUSD float64
	for _, usd := range currencyTotalsUSD {
		grandUSD += usd
	}
	for symbol, total := range currencyTotals {
		fees.CurrencyBreakdown[symbol] = domain.BreakdownEntry{
			Total:      total,
			TotalUSD:   currencyTotalsUSD[symbol],
			Percentage: percentage(currencyTotalsUSD[symbol], grandUSD),
		}
	}
	for category, total := range categoryTotals {
		fees.CategoryBreakdown[category] = domain.CategoryBreakdownEntry{
			Total:      total,
			TotalUSD:   categoryTotalsUSD[category],
			Percentage: percentage(categoryTotalsUSD[category], grandUSD),
			Count:      categoryCounts[category],
		}
	}

	return fees, annotated
}

func percentage(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}

// Period keys are derived in UTC so a transaction lands in the same bucket
// regardless of where the service runs.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// weekKey is the Monday of the transaction's week.
func weekKey(t time.Time) string {
	monday := t.AddDate(0, 0, -int((t.Weekday()+6)%7))
	return monday.Format("2006-01-02")
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}
