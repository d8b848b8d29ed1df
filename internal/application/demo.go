package application

import (
	"time"

	"feeindex/internal/domain"
)

// DemoTransactions is the built-in dataset served when live and cached tiers
// are unavailable, and on explicit request. Timestamps are pinned so the
// bucketing is stable.
func DemoTransactions() []domain.Transaction {
	base := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	at := func(days int) int64 { return base.AddDate(0, 0, days).UnixMilli() }

	demo := []domain.Transaction{
		{Hash: "0xdemo01", Timestamp: at(0), BlockNumber: 19_000_101, Value: "250000000000000000", TokenSymbol: "WETH", TokenDecimal: 18, Network: domain.NetworkEthereum, Method: "repayLoan"},
		{Hash: "0xdemo02", Timestamp: at(0), BlockNumber: 19_000_154, Value: "1200000000", TokenSymbol: "USDC", TokenDecimal: 6, Network: domain.NetworkEthereum, Method: "acceptOffer"},
		{Hash: "0xdemo03", Timestamp: at(1), BlockNumber: 19_001_010, Value: "90000000000000000", TokenSymbol: "ETH", TokenDecimal: 18, Network: domain.NetworkEthereum, InternalNative: true},
		{Hash: "0xdemo04", Timestamp: at(2), BlockNumber: 52_100_400, Value: "340000000", TokenSymbol: domain.SymbolUSDCPolygon, TokenDecimal: 6, Network: domain.NetworkPolygon, Method: "borrow"},
		{Hash: "0xdemo05", Timestamp: at(6), BlockNumber: 52_140_912, Value: "410000000000000000000", TokenSymbol: "POL", TokenDecimal: 18, Network: domain.NetworkPolygon, Method: "buyNow"},
		{Hash: "0xdemo06", Timestamp: at(9), BlockNumber: 19_010_230, Value: "150000000000000000", TokenSymbol: "WETH", TokenDecimal: 18, Network: domain.NetworkEthereum, Method: "liquidateLoan"},
		{Hash: "0xdemo07", Timestamp: at(32), BlockNumber: 52_230_077, Value: "275000000", TokenSymbol: domain.SymbolUSDCPolygon, TokenDecimal: 6, Network: domain.NetworkPolygon, Method: "fulfillOrder"},
		{Hash: "0xdemo08", Timestamp: at(33), BlockNumber: 19_050_981, Value: "800000000", TokenSymbol: "USDC", TokenDecimal: 6, Network: domain.NetworkEthereum},
	}
	for i := range demo {
		demo[i].Type, demo[i].Category = Classify(demo[i])
	}
	return demo
}
