package scanapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"feeindex/internal/domain"
)

// ErrFirstWindow wraps a failure on the very first window of a ranged fetch.
// With nothing collected yet there is no partial result worth keeping, so the
// whole collection attempt fails.
var ErrFirstWindow = errors.New("first window failed")

// fetchRange walks [startBlock, tip] in fixed windows, working around the
// provider's per-call result cap. Windows advance even when empty: a quiet
// range says nothing about later blocks. Once some data exists, a long run of
// consecutive empty windows is taken as exhaustion and the walk stops early.
// A failed window after the first is skipped so partial results survive, at
// the cost of marking the fetch incomplete.
func (c *Client) fetchRange(ctx context.Context, network domain.Network, query url.Values, startBlock uint64) ([]rawTransfer, bool, error) {
	params := perNetwork[network]

	var collected []rawTransfer
	complete := true
	emptyRun := 0
	first := true

	for from := startBlock; from <= maxBlockSentinel; {
		to := from + params.windowSize - 1
		if to > maxBlockSentinel {
			to = maxBlockSentinel
		}

		records, err := c.fetchWindow(ctx, network, query, from, to)
		if err != nil {
			if ctx.Err() != nil {
				return collected, false, ctx.Err()
			}
			if first {
				return nil, false, fmt.Errorf("%w: %w", ErrFirstWindow, err)
			}
			slog.Warn("window failed, skipping",
				"network", network,
				"from_block", from,
				"to_block", to,
				"error", err,
			)
			complete = false
			from = to + 1
			continue
		}
		first = false

		if c.observer != nil {
			c.observer.OnWindowFetched(network, len(records))
		}
		if len(records) == 0 {
			emptyRun++
		} else {
			emptyRun = 0
			collected = append(collected, records...)
		}

		if len(collected) > 0 && emptyRun > params.emptyLimit {
			break
		}

		from = to + 1
		if from > maxBlockSentinel {
			break
		}
		if err := c.sleep(ctx, c.windowDelay); err != nil {
			return collected, false, err
		}
	}

	return collected, complete, nil
}

// fetchWindow fetches one block window, recursively bisecting any window that
// comes back holding exactly the provider cap. A minimum-size window that
// still caps is accepted and flagged: data beyond the cap is lost there.
func (c *Client) fetchWindow(ctx context.Context, network domain.Network, query url.Values, fromBlock, toBlock uint64) ([]rawTransfer, error) {
	result, err := c.fetchPage(ctx, network, cloneQuery(query), fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	if !result.Truncated {
		return result.Records, nil
	}
	if toBlock-fromBlock+1 <= minWindowSize {
		slog.Warn("window truncated at page cap, results may be incomplete",
			"network", network,
			"from_block", fromBlock,
			"to_block", toBlock,
			"records", len(result.Records),
		)
		if c.observer != nil {
			c.observer.OnTruncated(network, fromBlock, toBlock)
		}
		return result.Records, nil
	}

	mid := fromBlock + (toBlock-fromBlock)/2
	left, err := c.fetchWindow(ctx, network, query, fromBlock, mid)
	if err != nil {
		return nil, err
	}
	right, err := c.fetchWindow(ctx, network, query, mid+1, toBlock)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

func cloneQuery(query url.Values) url.Values {
	clone := make(url.Values, len(query))
	for key, values := range query {
		clone[key] = append([]string(nil), values...)
	}
	return clone
}

// TokenTransfers returns every token transfer touching address from
// startBlock onward. The boolean reports whether the ranged fetch completed
// without skipped windows; cursors must not advance past an incomplete fetch.
func (c *Client) TokenTransfers(ctx context.Context, network domain.Network, address string, startBlock uint64) ([]domain.TokenTransfer, bool, error) {
	query, err := c.accountQuery(network, "tokentx", address)
	if err != nil {
		return nil, false, err
	}
	records, complete, err := c.fetchRange(ctx, network, query, startBlock)
	if err != nil {
		return nil, false, err
	}
	return c.convert(network, records, false), complete, nil
}

// InternalTransfers returns native-currency transfers reached through
// internal call traces. The provider omits token fields on these records, so
// the native symbol is filled in here.
func (c *Client) InternalTransfers(ctx context.Context, network domain.Network, address string, startBlock uint64) ([]domain.TokenTransfer, bool, error) {
	query, err := c.accountQuery(network, "txlistinternal", address)
	if err != nil {
		return nil, false, err
	}
	records, complete, err := c.fetchRange(ctx, network, query, startBlock)
	if err != nil {
		return nil, false, err
	}
	transfers := c.convert(network, records, true)
	for i := range transfers {
		transfers[i].TokenSymbol = "ETH"
		transfers[i].TokenDecimal = 18
	}
	return transfers, complete, nil
}

// MethodNames maps transaction hashes to resolved contract method names for
// address's outer transactions, the classifier's primary signal. Failures
// here degrade classification, not collection, so callers treat an error as
// an empty map.
func (c *Client) MethodNames(ctx context.Context, network domain.Network, address string, startBlock uint64) (map[string]string, error) {
	query, err := c.accountQuery(network, "txlist", address)
	if err != nil {
		return nil, err
	}
	records, _, err := c.fetchRange(ctx, network, query, startBlock)
	if err != nil {
		return nil, err
	}
	methods := make(map[string]string, len(records))
	for _, record := range records {
		name := methodName(record.FunctionName)
		if name == "" || record.Hash == "" {
			continue
		}
		methods[strings.ToLower(record.Hash)] = name
	}
	return methods, nil
}

// methodName strips the argument list from a resolved function signature,
// e.g. "acceptOffer(uint256 tokenId)" -> "acceptOffer".
func methodName(signature string) string {
	name := strings.TrimSpace(signature)
	if idx := strings.IndexByte(name, '('); idx >= 0 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}

func (c *Client) convert(network domain.Network, records []rawTransfer, internal bool) []domain.TokenTransfer {
	transfers := make([]domain.TokenTransfer, 0, len(records))
	for _, record := range records {
		if internal && record.IsError == "1" {
			continue
		}
		transfer, err := toTransfer(record)
		if err != nil {
			slog.Warn("skipping malformed provider record", "network", network, "hash", record.Hash, "error", err)
			continue
		}
		transfer.Internal = internal
		transfers = append(transfers, transfer)
	}
	return transfers
}
