package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"feeindex/internal/domain"
)

// Repository is the single-file store used when no MySQL DSN is configured
// and by the bulk importer. It implements the same transfer-archive and
// cursor-store contracts as the mysql package.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
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
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			network TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			block_number INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			value TEXT NOT NULL,
			token_symbol TEXT NOT NULL,
			token_decimal INTEGER NOT NULL,
			from_addr TEXT NOT NULL,
			to_addr TEXT NOT NULL,
			tx_type TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			internal_native INTEGER NOT NULL DEFAULT 0,
			UNIQUE(network, tx_hash, token_symbol, from_addr, value)
		)`,
		`CREATE TABLE IF NOT EXISTS cursors (
			network TEXT PRIMARY KEY,
			block_number INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			tx_hash TEXT NOT NULL,
			updated_at TEXT NOT NULL
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
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transfers
		(network, tx_hash, block_number, timestamp_ms, value, token_symbol, token_decimal, from_addr, to_addr, tx_type, category, method, internal_native)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(network, tx_hash, token_symbol, from_addr, value) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return err
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
			return err
		}
	}

	return tx.Commit()
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

func (r *Repository) DeleteNetworkTransfers(ctx context.Context, network domain.Network) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM transfers WHERE network = ?`, string(network))
	return err
}

func (r *Repository) Cursor(ctx context.Context, network domain.Network) (domain.Cursor, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cursor := domain.Cursor{Network: network}
	var updatedAt string
	err := r.db.QueryRowContext(ctx, `SELECT block_number, timestamp_ms, tx_hash, updated_at FROM cursors WHERE network = ?`, string(network)).
		Scan(&cursor.BlockNumber, &cursor.Timestamp, &cursor.TxHash, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cursor{}, false, nil
	}
	if err != nil {
		return domain.Cursor{}, false, err
	}
	if parsed, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		cursor.UpdatedAt = parsed
	}
	return cursor, true, nil
}

// SetCursor upserts with a block-number guard so the cursor never regresses.
func (r *Repository) SetCursor(ctx context.Context, cursor domain.Cursor) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO cursors (network, block_number, timestamp_ms, tx_hash, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(network) DO UPDATE SET
			block_number = excluded.block_number,
			timestamp_ms = excluded.timestamp_ms,
			tx_hash = excluded.tx_hash,
			updated_at = excluded.updated_at
		WHERE excluded.block_number > cursors.block_number`,
		string(cursor.Network), cursor.BlockNumber, cursor.Timestamp, cursor.TxHash,
		cursor.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (r *Repository) ClearCursor(ctx context.Context, network domain.Network) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM cursors WHERE network = ?`, string(network))
	return err
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
