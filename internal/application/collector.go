package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"feeindex/internal/domain"
)

// TransferSource fetches raw provider records for one address. The boolean
// results report whether the ranged fetch completed without skipped windows.
type TransferSource interface {
	TokenTransfers(ctx context.Context, network domain.Network, address string, startBlock uint64) ([]domain.TokenTransfer, bool, error)
	InternalTransfers(ctx context.Context, network domain.Network, address string, startBlock uint64) ([]domain.TokenTransfer, bool, error)
	MethodNames(ctx context.Context, network domain.Network, address string, startBlock uint64) (map[string]string, error)
}

// Collector turns one network's raw provider records into normalized,
// classified fee transactions addressed to the fee-collection address.
type Collector struct {
	source     TransferSource
	network    domain.Network
	feeAddress string
}

func NewCollector(source TransferSource, network domain.Network, feeAddress string) (*Collector, error) {
	if source == nil {
		return nil, errors.New("transfer source is required")
	}
	if strings.TrimSpace(feeAddress) == "" {
		return nil, errors.New("fee address is required")
	}
	return &Collector{
		source:     source,
		network:    network,
		feeAddress: strings.ToLower(strings.TrimSpace(feeAddress)),
	}, nil
}

func (c *Collector) Network() domain.Network {
	return c.network
}

// Collect fetches everything from startBlock onward and returns normalized
// transactions. Internal native transfers and method names are best-effort
// extras on top of the token-transfer feed: their failure degrades the result
// instead of discarding it.
func (c *Collector) Collect(ctx context.Context, startBlock uint64) ([]domain.Transaction, bool, error) {
	transfers, complete, err := c.source.TokenTransfers(ctx, c.network, c.feeAddress, startBlock)
	if err != nil {
		return nil, false, err
	}

	if c.network == domain.NetworkEthereum {
		internal, internalComplete, err := c.source.InternalTransfers(ctx, c.network, c.feeAddress, startBlock)
		if err != nil {
			slog.Warn("internal transfer fetch failed", "network", c.network, "error", err)
			complete = false
		} else {
			transfers = append(transfers, internal...)
			complete = complete && internalComplete
		}
	}

	methods, err := c.source.MethodNames(ctx, c.network, c.feeAddress, startBlock)
	if err != nil {
		slog.Warn("method name fetch failed", "network", c.network, "error", err)
		methods = nil
	}

	transactions := make([]domain.Transaction, 0, len(transfers))
	for _, transfer := range transfers {
		tx, ok := c.normalize(transfer)
		if !ok {
			continue
		}
		tx.Method = methods[strings.ToLower(tx.Hash)]
		tx.Type, tx.Category = Classify(tx)
		transactions = append(transactions, tx)
	}

	slog.Info("collected transfers",
		"network", c.network,
		"raw", len(transfers),
		"kept", len(transactions),
		"start_block", startBlock,
		"complete", complete,
	)
	return transactions, complete, nil
}

// normalize applies the filter and aliasing rules: the transfer must be
// addressed to the fee address, carry a positive value, and use a symbol on
// the network's allow-list. Polygon's stablecoin ticker is remapped to its
// network-qualified alias here so cross-network aggregation never conflates
// the two assets.
func (c *Collector) normalize(transfer domain.TokenTransfer) (domain.Transaction, bool) {
	if !strings.EqualFold(transfer.To, c.feeAddress) {
		return domain.Transaction{}, false
	}
	if !positiveValue(transfer.Value) {
		return domain.Transaction{}, false
	}
	symbol, ok := domain.CanonicalSymbol(c.network, transfer.TokenSymbol)
	if !ok {
		return domain.Transaction{}, false
	}
	decimals := transfer.TokenDecimal
	if decimals <= 0 {
		if fallback, ok := domain.DefaultDecimals(symbol); ok {
			decimals = fallback
		}
	}
	return domain.Transaction{
		Hash:           transfer.Hash,
		Timestamp:      transfer.Timestamp,
		BlockNumber:    transfer.BlockNumber,
		Value:          transfer.Value,
		TokenSymbol:    symbol,
		TokenDecimal:   decimals,
		From:           strings.ToLower(transfer.From),
		To:             strings.ToLower(transfer.To),
		Network:        c.network,
		InternalNative: transfer.Internal,
	}, true
}

// positiveValue reports whether a raw decimal string is a nonzero unsigned
// integer without parsing it into a bounded type.
func positiveValue(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || value[0] == '-' {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return strings.Trim(value, "0") != ""
}
