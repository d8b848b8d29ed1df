package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"feeindex/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTransaction(hash string, block uint64) domain.Transaction {
	return domain.Transaction{
		Hash: hash, Timestamp: int64(block) * 1000, BlockNumber: block,
		Value: "250000000000000000", TokenSymbol: "WETH", TokenDecimal: 18,
		From: "0xsender", To: "0xfee", Network: domain.NetworkEthereum,
		Type: domain.TypeLoan, Category: domain.CategoryLoanNative,
		Method: "repayLoan",
	}
}

func TestStoreAndLoadTransfers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	stored := sampleTransaction("0xa", 100)
	stored.InternalNative = true
	if err := repo.StoreTransfers(ctx, []domain.Transaction{stored, sampleTransaction("0xb", 200)}); err != nil {
		t.Fatalf("StoreTransfers: %v", err)
	}

	all, err := repo.AllTransfers(ctx)
	if err != nil {
		t.Fatalf("AllTransfers: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("rows = %d, want 2", len(all))
	}
	// Ordered by timestamp ascending.
	if all[0].Hash != "0xa" || all[1].Hash != "0xb" {
		t.Fatalf("order = %q %q", all[0].Hash, all[1].Hash)
	}
	if all[0] != stored {
		t.Fatalf("round trip changed row:\n got %+v\nwant %+v", all[0], stored)
	}
}

func TestStoreTransfers_DeduplicatesOnConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	row := sampleTransaction("0xa", 100)
	if err := repo.StoreTransfers(ctx, []domain.Transaction{row}); err != nil {
		t.Fatalf("first store: %v", err)
	}
	if err := repo.StoreTransfers(ctx, []domain.Transaction{row}); err != nil {
		t.Fatalf("second store: %v", err)
	}

	all, _ := repo.AllTransfers(ctx)
	if len(all) != 1 {
		t.Fatalf("rows = %d, want 1 after duplicate insert", len(all))
	}

	// The same hash with a different value is a distinct transfer.
	other := row
	other.Value = "999"
	if err := repo.StoreTransfers(ctx, []domain.Transaction{other}); err != nil {
		t.Fatalf("distinct store: %v", err)
	}
	all, _ = repo.AllTransfers(ctx)
	if len(all) != 2 {
		t.Fatalf("rows = %d, want 2 for distinct values", len(all))
	}
}

func TestDeleteNetworkTransfers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	polygon := sampleTransaction("0xp", 300)
	polygon.Network = domain.NetworkPolygon
	if err := repo.StoreTransfers(ctx, []domain.Transaction{sampleTransaction("0xa", 100), polygon}); err != nil {
		t.Fatalf("StoreTransfers: %v", err)
	}

	if err := repo.DeleteNetworkTransfers(ctx, domain.NetworkEthereum); err != nil {
		t.Fatalf("DeleteNetworkTransfers: %v", err)
	}
	all, _ := repo.AllTransfers(ctx)
	if len(all) != 1 || all[0].Network != domain.NetworkPolygon {
		t.Fatalf("rows = %+v, want only the polygon row", all)
	}
}

func TestCursor_MonotonicUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, ok, err := repo.Cursor(ctx, domain.NetworkEthereum); err != nil || ok {
		t.Fatalf("initial cursor = ok=%v err=%v, want absent", ok, err)
	}

	first := domain.Cursor{
		Network: domain.NetworkEthereum, BlockNumber: 100,
		Timestamp: 100000, TxHash: "0xa", UpdatedAt: time.Now().UTC(),
	}
	if err := repo.SetCursor(ctx, first); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}

	// A lower block must not overwrite.
	stale := first
	stale.BlockNumber = 50
	stale.TxHash = "0xstale"
	if err := repo.SetCursor(ctx, stale); err != nil {
		t.Fatalf("SetCursor stale: %v", err)
	}
	cursor, ok, err := repo.Cursor(ctx, domain.NetworkEthereum)
	if err != nil || !ok {
		t.Fatalf("Cursor: ok=%v err=%v", ok, err)
	}
	if cursor.BlockNumber != 100 || cursor.TxHash != "0xa" {
		t.Fatalf("cursor regressed: %+v", cursor)
	}

	// A higher block advances.
	ahead := first
	ahead.BlockNumber = 200
	ahead.TxHash = "0xb"
	if err := repo.SetCursor(ctx, ahead); err != nil {
		t.Fatalf("SetCursor ahead: %v", err)
	}
	cursor, _, _ = repo.Cursor(ctx, domain.NetworkEthereum)
	if cursor.BlockNumber != 200 || cursor.TxHash != "0xb" {
		t.Fatalf("cursor did not advance: %+v", cursor)
	}
}

func TestCursor_PerNetworkIsolation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SetCursor(ctx, domain.Cursor{Network: domain.NetworkEthereum, BlockNumber: 100, TxHash: "0xa", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	if err := repo.SetCursor(ctx, domain.Cursor{Network: domain.NetworkPolygon, BlockNumber: 900, TxHash: "0xb", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}

	eth, ok, _ := repo.Cursor(ctx, domain.NetworkEthereum)
	if !ok || eth.BlockNumber != 100 {
		t.Fatalf("ethereum cursor = %+v", eth)
	}
	pol, ok, _ := repo.Cursor(ctx, domain.NetworkPolygon)
	if !ok || pol.BlockNumber != 900 {
		t.Fatalf("polygon cursor = %+v", pol)
	}
}

func TestClearCursor(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SetCursor(ctx, domain.Cursor{Network: domain.NetworkEthereum, BlockNumber: 100, TxHash: "0xa", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	if err := repo.ClearCursor(ctx, domain.NetworkEthereum); err != nil {
		t.Fatalf("ClearCursor: %v", err)
	}
	if _, ok, _ := repo.Cursor(ctx, domain.NetworkEthereum); ok {
		t.Fatal("cursor survived clear")
	}
}
