package application

import (
	"strings"

	"feeindex/internal/domain"
)

// Keyword lists matched case-insensitively by substring against resolved
// method names. Stems cover inflections ("liquidat" matches liquidate and
// liquidation).
var (
	loanKeywords = []string{"borrow", "repay", "loan", "liquidat", "lend"}
	saleKeywords = []string{"buy", "purchase", "sale", "accept", "fulfill", "match"}
)

// Classify infers the transaction type and fee category for one transaction.
// It is a pure function: the same input always yields the same pair. The
// primary signal is the resolved method name; a native transfer reached via
// an internal call trace is always a sale fee; with neither signal the type
// is unknown.
func Classify(tx domain.Transaction) (domain.TransactionType, domain.FeeCategory) {
	txType := classifyType(tx)
	return txType, categorize(txType, tx.TokenSymbol)
}

func classifyType(tx domain.Transaction) domain.TransactionType {
	if tx.InternalNative {
		return domain.TypeSale
	}
	method := strings.ToLower(tx.Method)
	if method == "" {
		return domain.TypeUnknown
	}
	for _, keyword := range loanKeywords {
		if strings.Contains(method, keyword) {
			return domain.TypeLoan
		}
	}
	for _, keyword := range saleKeywords {
		if strings.Contains(method, keyword) {
			return domain.TypeSale
		}
	}
	return domain.TypeUnknown
}

// categorize crosses the transaction type with the currency's asset bucket.
// Every network's native and wrapped-native symbols land in the native
// bucket, stables in the stable bucket; an unknown type or an unbucketed
// symbol is uncategorized.
func categorize(txType domain.TransactionType, symbol string) domain.FeeCategory {
	var native bool
	switch {
	case domain.IsNativeAsset(symbol):
		native = true
	case domain.IsStableAsset(symbol):
		native = false
	default:
		return domain.CategoryUncategorized
	}

	switch txType {
	case domain.TypeLoan:
		if native {
			return domain.CategoryLoanNative
		}
		return domain.CategoryLoanStable
	case domain.TypeSale:
		if native {
			return domain.CategorySaleNative
		}
		return domain.CategorySaleStable
	default:
		return domain.CategoryUncategorized
	}
}
