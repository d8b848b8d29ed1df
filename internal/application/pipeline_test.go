package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"feeindex/internal/domain"
)

type memoryStore struct {
	mu        sync.Mutex
	cursors   map[domain.Network]domain.Cursor
	transfers []domain.Transaction

	storeErr error
	allErr   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{cursors: make(map[domain.Network]domain.Cursor)}
}

func (m *memoryStore) Cursor(ctx context.Context, network domain.Network) (domain.Cursor, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cursor, ok := m.cursors[network]
	return cursor, ok, nil
}

func (m *memoryStore) SetCursor(ctx context.Context, cursor domain.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.cursors[cursor.Network]; ok && existing.BlockNumber >= cursor.BlockNumber {
		return nil
	}
	m.cursors[cursor.Network] = cursor
	return nil
}

func (m *memoryStore) ClearCursor(ctx context.Context, network domain.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cursors, network)
	return nil
}

func (m *memoryStore) StoreTransfers(ctx context.Context, transactions []domain.Transaction) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, transactions...)
	return nil
}

func (m *memoryStore) AllTransfers(ctx context.Context) ([]domain.Transaction, error) {
	if m.allErr != nil {
		return nil, m.allErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Transaction(nil), m.transfers...), nil
}

func (m *memoryStore) DeleteNetworkTransfers(ctx context.Context, network domain.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.transfers[:0]
	for _, tx := range m.transfers {
		if tx.Network != network {
			kept = append(kept, tx)
		}
	}
	m.transfers = kept
	return nil
}

func (m *memoryStore) Ping(ctx context.Context) error { return nil }

type memoryCache struct {
	report domain.Report
	ok     bool
	stored int
}

func (m *memoryCache) StoreReport(ctx context.Context, report domain.Report) error {
	m.report = report
	m.ok = true
	m.stored++
	return nil
}

func (m *memoryCache) LastGoodReport(ctx context.Context) (domain.Report, bool, error) {
	return m.report, m.ok, nil
}

type memoryPublisher struct {
	mu        sync.Mutex
	published []domain.Transaction
	err       error
}

func (m *memoryPublisher) PublishTransfers(ctx context.Context, transactions []domain.Transaction) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, transactions...)
	return nil
}

// rangedSource serves canned transfers above the requested start block and
// records the start blocks it was asked for.
type rangedSource struct {
	mu          sync.Mutex
	transfers   []domain.TokenTransfer
	complete    bool
	err         error
	startBlocks []uint64
}

func (r *rangedSource) TokenTransfers(ctx context.Context, network domain.Network, address string, startBlock uint64) ([]domain.TokenTransfer, bool, error) {
	r.mu.Lock()
	r.startBlocks = append(r.startBlocks, startBlock)
	r.mu.Unlock()
	if r.err != nil {
		return nil, false, r.err
	}
	var out []domain.TokenTransfer
	for _, transfer := range r.transfers {
		if transfer.BlockNumber >= startBlock {
			out = append(out, transfer)
		}
	}
	return out, r.complete, nil
}

func (r *rangedSource) InternalTransfers(ctx context.Context, network domain.Network, address string, startBlock uint64) ([]domain.TokenTransfer, bool, error) {
	return nil, true, nil
}

func (r *rangedSource) MethodNames(ctx context.Context, network domain.Network, address string, startBlock uint64) (map[string]string, error) {
	return nil, nil
}

func feeTransfer(hash string, block uint64, value string) domain.TokenTransfer {
	return domain.TokenTransfer{
		Hash: hash, BlockNumber: block, Timestamp: int64(block) * 1000,
		From: "0xsender", To: testFeeAddress, Value: value,
		TokenSymbol: "WETH", TokenDecimal: 18,
	}
}

func newTestPipeline(t *testing.T, sources map[domain.Network]*rangedSource, store *memoryStore, cache ReportCache, publisher TransferPublisher) *Pipeline {
	t.Helper()
	collectors := make([]*Collector, 0, len(sources))
	for network, source := range sources {
		collector, err := NewCollector(source, network, testFeeAddress)
		if err != nil {
			t.Fatalf("NewCollector: %v", err)
		}
		collectors = append(collectors, collector)
	}
	aggregator := NewAggregator(&stubPrices{prices: map[string]float64{"WETH": 2000, "ETH": 2000, "POL": 0.4, "USDC": 1, "USDC.e": 1}})
	pipeline, err := NewPipeline(collectors, store, store, aggregator, cache, publisher, nil, PipelineConfig{RecentLimit: 10})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return pipeline
}

func TestReport_LiveHappyPath(t *testing.T) {
	store := newMemoryStore()
	publisher := &memoryPublisher{}
	sources := map[domain.Network]*rangedSource{
		domain.NetworkEthereum: {complete: true, transfers: []domain.TokenTransfer{
			feeTransfer("0xa", 100, "1000000000000000000"),
			feeTransfer("0xb", 200, "1000000000000000000"),
		}},
	}
	pipeline := newTestPipeline(t, sources, store, nil, publisher)

	report, err := pipeline.Report(context.Background(), ModeIncremental)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Tier != domain.TierLive {
		t.Fatalf("tier = %q, want live", report.Tier)
	}
	if report.Incomplete {
		t.Fatal("incomplete = true, want false")
	}
	if len(report.Transactions) != 2 {
		t.Fatalf("transactions = %d, want 2", len(report.Transactions))
	}
	if report.Transactions[0].Timestamp < report.Transactions[1].Timestamp {
		t.Fatal("transactions not newest first")
	}
	if len(publisher.published) != 2 {
		t.Fatalf("published = %d, want 2", len(publisher.published))
	}
	cursor, ok, _ := store.Cursor(context.Background(), domain.NetworkEthereum)
	if !ok || cursor.BlockNumber != 200 {
		t.Fatalf("cursor = %+v ok=%v, want block 200", cursor, ok)
	}
}

func TestReport_IncrementalResumesPastCursor(t *testing.T) {
	store := newMemoryStore()
	source := &rangedSource{complete: true, transfers: []domain.TokenTransfer{
		feeTransfer("0xa", 100, "1000000000000000000"),
	}}
	sources := map[domain.Network]*rangedSource{domain.NetworkEthereum: source}
	pipeline := newTestPipeline(t, sources, store, nil, nil)

	if _, err := pipeline.Report(context.Background(), ModeIncremental); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := pipeline.Report(context.Background(), ModeIncremental); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(source.startBlocks) != 2 {
		t.Fatalf("fetches = %d, want 2", len(source.startBlocks))
	}
	if source.startBlocks[0] != 0 {
		t.Fatalf("first start = %d, want 0", source.startBlocks[0])
	}
	if source.startBlocks[1] != 101 {
		t.Fatalf("second start = %d, want cursor+1 = 101", source.startBlocks[1])
	}
	// The second run found nothing new, so the archive holds one row.
	all, _ := store.AllTransfers(context.Background())
	if len(all) != 1 {
		t.Fatalf("archived = %d, want 1", len(all))
	}
}

func TestReport_CursorHeldBackWhenIncomplete(t *testing.T) {
	store := newMemoryStore()
	sources := map[domain.Network]*rangedSource{
		domain.NetworkEthereum: {complete: false, transfers: []domain.TokenTransfer{
			feeTransfer("0xa", 100, "1000000000000000000"),
		}},
	}
	pipeline := newTestPipeline(t, sources, store, nil, nil)

	report, err := pipeline.Report(context.Background(), ModeIncremental)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !report.Incomplete {
		t.Fatal("incomplete = false, want true")
	}
	// Data is still served and archived, but the cursor must not advance.
	if len(report.Transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(report.Transactions))
	}
	if _, ok, _ := store.Cursor(context.Background(), domain.NetworkEthereum); ok {
		t.Fatal("cursor advanced after incomplete fetch")
	}
}

func TestReport_PartialNetworkFailure(t *testing.T) {
	store := newMemoryStore()
	sources := map[domain.Network]*rangedSource{
		domain.NetworkEthereum: {complete: true, transfers: []domain.TokenTransfer{
			feeTransfer("0xa", 100, "1000000000000000000"),
		}},
		domain.NetworkPolygon: {err: errors.New("provider down")},
	}
	pipeline := newTestPipeline(t, sources, store, nil, nil)

	report, err := pipeline.Report(context.Background(), ModeIncremental)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Tier != domain.TierLive {
		t.Fatalf("tier = %q, want live", report.Tier)
	}
	if !report.Incomplete {
		t.Fatal("incomplete = false, want true after one network failed")
	}
	if len(report.Transactions) != 1 {
		t.Fatalf("transactions = %d, want the surviving network's 1", len(report.Transactions))
	}
}

func TestReport_FullModeRefetchesFromGenesis(t *testing.T) {
	store := newMemoryStore()
	source := &rangedSource{complete: true, transfers: []domain.TokenTransfer{
		feeTransfer("0xa", 100, "1000000000000000000"),
	}}
	sources := map[domain.Network]*rangedSource{domain.NetworkEthereum: source}
	pipeline := newTestPipeline(t, sources, store, nil, nil)

	if _, err := pipeline.Report(context.Background(), ModeIncremental); err != nil {
		t.Fatalf("first run: %v", err)
	}
	report, err := pipeline.Report(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("full run: %v", err)
	}
	if source.startBlocks[1] != 0 {
		t.Fatalf("full-mode start = %d, want 0", source.startBlocks[1])
	}
	// The archive was cleared first, so the refetched row is the only one.
	if len(report.Transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(report.Transactions))
	}
}

func TestReport_FallbackToArchive(t *testing.T) {
	store := newMemoryStore()
	store.transfers = []domain.Transaction{{
		Hash: "0xold", Timestamp: 1700000000000, Value: "1000000000000000000",
		TokenSymbol: "WETH", TokenDecimal: 18, Network: domain.NetworkEthereum,
		Category: domain.CategorySaleNative,
	}}
	sources := map[domain.Network]*rangedSource{
		domain.NetworkEthereum: {err: errors.New("provider down")},
	}
	pipeline := newTestPipeline(t, sources, store, nil, nil)

	report, err := pipeline.Report(context.Background(), ModeIncremental)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Tier != domain.TierCached {
		t.Fatalf("tier = %q, want cached", report.Tier)
	}
	if len(report.Transactions) != 1 || report.Transactions[0].Hash != "0xold" {
		t.Fatalf("transactions = %+v, want the archived row", report.Transactions)
	}
}

func TestReport_FallbackToCachedReport(t *testing.T) {
	store := newMemoryStore()
	cache := &memoryCache{}
	cache.StoreReport(context.Background(), domain.Report{
		Tier: domain.TierLive,
		Transactions: []domain.Transaction{{
			Hash: "0xcached", Timestamp: 1700000000000,
		}},
	})
	sources := map[domain.Network]*rangedSource{
		domain.NetworkEthereum: {err: errors.New("provider down")},
	}
	pipeline := newTestPipeline(t, sources, store, cache, nil)

	report, err := pipeline.Report(context.Background(), ModeIncremental)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Tier != domain.TierCached {
		t.Fatalf("tier = %q, want cached", report.Tier)
	}
	if len(report.Transactions) != 1 || report.Transactions[0].Hash != "0xcached" {
		t.Fatalf("transactions = %+v, want the cached row", report.Transactions)
	}
}

func TestReport_FallbackToDemo(t *testing.T) {
	store := newMemoryStore()
	sources := map[domain.Network]*rangedSource{
		domain.NetworkEthereum: {err: errors.New("provider down")},
	}
	pipeline := newTestPipeline(t, sources, store, nil, nil)

	report, err := pipeline.Report(context.Background(), ModeIncremental)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Tier != domain.TierDemo {
		t.Fatalf("tier = %q, want demo", report.Tier)
	}
	if len(report.Transactions) == 0 {
		t.Fatal("demo report has no transactions")
	}
}

func TestReport_DemoMode(t *testing.T) {
	store := newMemoryStore()
	sources := map[domain.Network]*rangedSource{
		domain.NetworkEthereum: {complete: true},
	}
	pipeline := newTestPipeline(t, sources, store, nil, nil)

	report, err := pipeline.Report(context.Background(), ModeDemo)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Tier != domain.TierDemo {
		t.Fatalf("tier = %q, want demo", report.Tier)
	}
	if len(report.Fees.Daily) == 0 {
		t.Fatal("demo report has no daily buckets")
	}
	// Demo mode never touches the provider.
	if len(sources[domain.NetworkEthereum].startBlocks) != 0 {
		t.Fatal("demo mode fetched from the provider")
	}
}

func TestReport_PublishFailureDoesNotFailRun(t *testing.T) {
	store := newMemoryStore()
	publisher := &memoryPublisher{err: errors.New("broker down")}
	sources := map[domain.Network]*rangedSource{
		domain.NetworkEthereum: {complete: true, transfers: []domain.TokenTransfer{
			feeTransfer("0xa", 100, "1000000000000000000"),
		}},
	}
	pipeline := newTestPipeline(t, sources, store, nil, publisher)

	report, err := pipeline.Report(context.Background(), ModeIncremental)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Tier != domain.TierLive {
		t.Fatalf("tier = %q, want live", report.Tier)
	}
}

func TestReport_CompleteRunStoresLastGood(t *testing.T) {
	store := newMemoryStore()
	cache := &memoryCache{}
	sources := map[domain.Network]*rangedSource{
		domain.NetworkEthereum: {complete: true, transfers: []domain.TokenTransfer{
			feeTransfer("0xa", 100, "1000000000000000000"),
		}},
	}
	pipeline := newTestPipeline(t, sources, store, cache, nil)

	if _, err := pipeline.Report(context.Background(), ModeIncremental); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if cache.stored != 1 {
		t.Fatalf("cache stores = %d, want 1", cache.stored)
	}
}

func TestRecent_LimitsAndSorts(t *testing.T) {
	store := newMemoryStore()
	for block := uint64(1); block <= 5; block++ {
		store.transfers = append(store.transfers, domain.Transaction{
			Hash: "0x1", Timestamp: int64(block) * 1000, Value: "1000000000000000000",
			TokenSymbol: "WETH", TokenDecimal: 18, Category: domain.CategorySaleNative,
		})
	}
	sources := map[domain.Network]*rangedSource{domain.NetworkEthereum: {complete: true}}
	pipeline := newTestPipeline(t, sources, store, nil, nil)

	recent, err := pipeline.Recent(context.Background(), 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("recent = %d, want 3", len(recent))
	}
	if recent[0].Timestamp != 5000 {
		t.Fatalf("first timestamp = %d, want newest", recent[0].Timestamp)
	}
}
