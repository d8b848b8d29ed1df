package domain

import "strings"

// SymbolUSDCPolygon is the network-qualified alias for polygon-side USDC so it
// never merges with the ethereum asset of the same ticker when aggregated.
const SymbolUSDCPolygon = "USDC.e"

// tokenDecimals holds the fixed-point scale for each canonical symbol, used
// when the source record omits the decimal count.
var tokenDecimals = map[string]int{
	"ETH":             18,
	"WETH":            18,
	"POL":             18,
	"USDC":            6,
	SymbolUSDCPolygon: 6,
}

// symbolAliases collapses known alternate spellings of the same asset into
// one canonical symbol per network. The polygon USDC remap is one-directional:
// nothing ever folds the alias back for aggregation purposes.
var symbolAliases = map[Network]map[string]string{
	NetworkEthereum: {
		"ETH":  "ETH",
		"WETH": "WETH",
		"USDC": "USDC",
	},
	NetworkPolygon: {
		"POL":    "POL",
		"WPOL":   "POL",
		"MATIC":  "POL",
		"WMATIC": "POL",
		"USDC":   SymbolUSDCPolygon,
		"USDC.E": SymbolUSDCPolygon,
	},
}

// CanonicalSymbol maps a raw provider ticker to the network's canonical symbol.
// The second return reports whether the symbol is on the network's allow-list.
func CanonicalSymbol(network Network, raw string) (string, bool) {
	aliases, ok := symbolAliases[network]
	if !ok {
		return "", false
	}
	canonical, ok := aliases[strings.ToUpper(strings.TrimSpace(raw))]
	return canonical, ok
}

// DefaultDecimals returns the fixed-point scale for a canonical symbol.
func DefaultDecimals(symbol string) (int, bool) {
	decimals, ok := tokenDecimals[symbol]
	return decimals, ok
}

// IsNativeAsset reports whether a canonical symbol belongs to the
// native/wrapped-native bucket used for fee categorization.
func IsNativeAsset(symbol string) bool {
	switch symbol {
	case "ETH", "WETH", "POL":
		return true
	}
	return false
}

// IsStableAsset reports whether a canonical symbol belongs to the stable bucket.
func IsStableAsset(symbol string) bool {
	switch symbol {
	case "USDC", SymbolUSDCPolygon:
		return true
	}
	return false
}

// PricingSymbol folds display-only aliasing back to the asset actually priced:
// the polygon USDC alias prices as USDC and wrapped native prices as its
// underlying asset. The display symbol is preserved in breakdowns. Matching is
// case-insensitive so callers may normalize case before or after folding.
func PricingSymbol(symbol string) string {
	switch {
	case strings.EqualFold(symbol, SymbolUSDCPolygon):
		return "USDC"
	case strings.EqualFold(symbol, "WETH"):
		return "ETH"
	}
	return symbol
}
