package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"feeindex/internal/domain"
)

// Repository archives collected fee transfers and the per-network fetch
// cursors in MySQL. This is the service-mode store; the sqlite package is
// its single-file counterpart for local and importer use.
type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if err := createSchema(db); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS transfers (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			network VARCHAR(16) NOT NULL,
			tx_hash VARCHAR(66) NOT NULL,
			block_number BIGINT UNSIGNED NOT NULL,
			timestamp_ms BIGINT NOT NULL,
			value DECIMAL(65,0) NOT NULL,
			token_symbol VARCHAR(16) NOT NULL,
			token_decimal INT NOT NULL,
			from_addr VARCHAR(42) NOT NULL,
			to_addr VARCHAR(42) NOT NULL,
			tx_type VARCHAR(8) NOT NULL DEFAULT '',
			category VARCHAR(16) NOT NULL DEFAULT '',
			method VARCHAR(128) NOT NULL DEFAULT '',
			internal_native TINYINT(1) NOT NULL DEFAULT 0,
			PRIMARY KEY (id),
			UNIQUE KEY transfers_unique (network, tx_hash, token_symbol, from_addr, value),
			KEY transfers_block_idx (network, block_number),
			KEY transfers_time_idx (timestamp_ms)
		)`,
		`CREATE TABLE IF NOT EXISTS cursors (
			network VARCHAR(16) NOT NULL,
			block_number BIGINT UNSIGNED NOT NULL,
			timestamp_ms BIGINT NOT NULL,
			tx_hash VARCHAR(66) NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (network)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) StoreTransfers(ctx context.Context, transactions []domain.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}
	ctx, span := startDBSpan(ctx, "mysql.StoreTransfers", attribute.Int("transfer.count", len(transactions)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return recordErr(span, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT IGNORE INTO transfers
		(network, tx_hash, block_number, timestamp_ms, value, token_symbol, token_decimal, from_addr, to_addr, tx_type, category, method, internal_native)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return recordErr(span, err)
	}
	defer stmt.Close()

	for _, entry := range transactions {
		internal := 0
		if entry.InternalNative {
			internal = 1
		}
		if _, err := stmt.ExecContext(ctx,
			string(entry.Network), entry.Hash, entry.BlockNumber, entry.Timestamp, entry.Value,
			entry.TokenSymbol, entry.TokenDecimal, entry.From, entry.To,
			string(entry.Type), string(entry.Category), entry.Method, internal,
		); err != nil {
			_ = tx.Rollback()
			return recordErr(span, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return recordErr(span, err)
	}
	return nil
}

func (r *Repository) AllTransfers(ctx context.Context) ([]domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT network, tx_hash, block_number, timestamp_ms, value, token_symbol, token_decimal, from_addr, to_addr, tx_type, category, method, internal_native
		FROM transfers ORDER BY timestamp_ms ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransfers(rows)
}

func (r *Repository) DeleteNetworkTransfers(ctx context.Context, network domain.Network) error {
	ctx, span := startDBSpan(ctx, "mysql.DeleteNetworkTransfers", attribute.String("network", string(network)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM transfers WHERE network = ?`, string(network))
	if err != nil {
		return recordErr(span, err)
	}
	return nil
}

func (r *Repository) Cursor(ctx context.Context, network domain.Network) (domain.Cursor, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cursor := domain.Cursor{Network: network}
	err := r.db.QueryRowContext(ctx, `SELECT block_number, timestamp_ms, tx_hash, updated_at FROM cursors WHERE network = ?`, string(network)).
		Scan(&cursor.BlockNumber, &cursor.Timestamp, &cursor.TxHash, &cursor.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cursor{}, false, nil
	}
	if err != nil {
		return domain.Cursor{}, false, err
	}
	return cursor, true, nil
}

// SetCursor upserts the cursor for one network. The update guards on the
// block number so a concurrent or stale writer can never regress it.
func (r *Repository) SetCursor(ctx context.Context, cursor domain.Cursor) error {
	ctx, span := startDBSpan(ctx, "mysql.SetCursor",
		attribute.String("network", string(cursor.Network)),
		attribute.Int64("block.number", int64(cursor.BlockNumber)),
	)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO cursors (network, block_number, timestamp_ms, tx_hash, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			timestamp_ms = IF(VALUES(block_number) > block_number, VALUES(timestamp_ms), timestamp_ms),
			tx_hash = IF(VALUES(block_number) > block_number, VALUES(tx_hash), tx_hash),
			updated_at = IF(VALUES(block_number) > block_number, VALUES(updated_at), updated_at),
			block_number = GREATEST(block_number, VALUES(block_number))`,
		string(cursor.Network), cursor.BlockNumber, cursor.Timestamp, cursor.TxHash, cursor.UpdatedAt.UTC())
	if err != nil {
		return recordErr(span, err)
	}
	return nil
}

func (r *Repository) ClearCursor(ctx context.Context, network domain.Network) error {
	ctx, span := startDBSpan(ctx, "mysql.ClearCursor", attribute.String("network", string(network)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM cursors WHERE network = ?`, string(network))
	if err != nil {
		return recordErr(span, err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func scanTransfers(rows *sql.Rows) ([]domain.Transaction, error) {
	var transactions []domain.Transaction
	for rows.Next() {
		var entry domain.Transaction
		var network, txType, category string
		var internal int
		if err := rows.Scan(&network, &entry.Hash, &entry.BlockNumber, &entry.Timestamp, &entry.Value,
			&entry.TokenSymbol, &entry.TokenDecimal, &entry.From, &entry.To,
			&txType, &category, &entry.Method, &internal); err != nil {
			return nil, err
		}
		entry.Network = domain.Network(network)
		entry.Type = domain.TransactionType(txType)
		entry.Category = domain.FeeCategory(category)
		entry.InternalNative = internal != 0
		transactions = append(transactions, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("feeindex/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func (r *Repository) Close() error {
	return r.db.Close()
}
