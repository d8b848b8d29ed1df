package application

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"feeindex/internal/domain"
)

// CSV export column order. Amounts are human-scaled and must be requantized
// to the smallest-unit integer representation on import.
const (
	columnHash = iota
	columnBlockNumber
	columnUnixTimestamp
	columnISODateTime
	columnFrom
	columnTo
	columnAmount
	columnUSDAmount
	columnContractAddress
	columnTokenName
	columnTokenSymbol
	columnCount
)

// ImportCSV reads a delimited export and archives its rows as classified
// transactions for the given network. Malformed rows are skipped, never
// aborting the batch; the returned count is the number of rows kept.
func ImportCSV(ctx context.Context, reader io.Reader, network domain.Network, repo TransferRepository) (int, error) {
	if repo == nil {
		return 0, errors.New("transfer repository is required")
	}
	transactions, err := ParseCSV(reader, network)
	if err != nil {
		return 0, err
	}
	if len(transactions) == 0 {
		return 0, nil
	}
	if err := repo.StoreTransfers(ctx, transactions); err != nil {
		return 0, err
	}
	return len(transactions), nil
}

// ParseCSV converts export rows into normalized transactions. A leading
// header row is detected and skipped.
func ParseCSV(reader io.Reader, network domain.Network) ([]domain.Transaction, error) {
	records := csv.NewReader(reader)
	records.FieldsPerRecord = -1

	var transactions []domain.Transaction
	line := 0
	for {
		row, err := records.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv read failed: %w", err)
		}
		line++
		if line == 1 && looksLikeHeader(row) {
			continue
		}
		tx, err := parseRow(row, network)
		if err != nil {
			slog.Warn("skipping malformed import row", "line", line, "error", err)
			continue
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

func looksLikeHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(row[0]))
	return first == "txhash" || first == "hash"
}

func parseRow(row []string, network domain.Network) (domain.Transaction, error) {
	if len(row) < columnCount {
		return domain.Transaction{}, fmt.Errorf("expected %d columns, got %d", columnCount, len(row))
	}

	blockNumber, err := strconv.ParseUint(strings.TrimSpace(row[columnBlockNumber]), 10, 64)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("bad block number %q: %w", row[columnBlockNumber], err)
	}
	seconds, err := strconv.ParseInt(strings.TrimSpace(row[columnUnixTimestamp]), 10, 64)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("bad timestamp %q: %w", row[columnUnixTimestamp], err)
	}

	symbol, ok := domain.CanonicalSymbol(network, row[columnTokenSymbol])
	if !ok {
		return domain.Transaction{}, fmt.Errorf("symbol %q not allowed on %s", row[columnTokenSymbol], network)
	}
	decimals, ok := domain.DefaultDecimals(symbol)
	if !ok {
		return domain.Transaction{}, fmt.Errorf("no decimals known for %q", symbol)
	}

	value, err := requantize(row[columnAmount], decimals)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx := domain.Transaction{
		Hash:         strings.TrimSpace(row[columnHash]),
		Timestamp:    seconds * 1000,
		BlockNumber:  blockNumber,
		Value:        value,
		TokenSymbol:  symbol,
		TokenDecimal: decimals,
		From:         strings.ToLower(strings.TrimSpace(row[columnFrom])),
		To:           strings.ToLower(strings.TrimSpace(row[columnTo])),
		Network:      network,
	}
	if tx.Hash == "" {
		return domain.Transaction{}, errors.New("missing transaction hash")
	}
	tx.Type, tx.Category = Classify(tx)
	return tx, nil
}

// requantize turns a human-scaled amount back into the smallest-unit integer
// string, rounding to nearest at the half-unit boundary.
func requantize(amount string, decimals int) (string, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return "", fmt.Errorf("bad amount %q: %w", amount, err)
	}
	if parsed.IsNegative() {
		return "", fmt.Errorf("negative amount %q", amount)
	}
	return parsed.Shift(int32(decimals)).Round(0).String(), nil
}
