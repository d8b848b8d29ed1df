package application

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"feeindex/internal/domain"
)

// CursorStore persists the per-network incremental fetch position. Writes
// must never regress a cursor to a lower block.
type CursorStore interface {
	Cursor(ctx context.Context, network domain.Network) (domain.Cursor, bool, error)
	SetCursor(ctx context.Context, cursor domain.Cursor) error
	ClearCursor(ctx context.Context, network domain.Network) error
}

// TransferRepository archives collected transactions.
type TransferRepository interface {
	StoreTransfers(ctx context.Context, transactions []domain.Transaction) error
	AllTransfers(ctx context.Context) ([]domain.Transaction, error)
	DeleteNetworkTransfers(ctx context.Context, network domain.Network) error
	Ping(ctx context.Context) error
}

// ReportCache keeps the last good aggregate for the cached fallback tier.
type ReportCache interface {
	StoreReport(ctx context.Context, report domain.Report) error
	LastGoodReport(ctx context.Context) (domain.Report, bool, error)
}

// TransferPublisher streams newly collected transactions to downstream
// consumers.
type TransferPublisher interface {
	PublishTransfers(ctx context.Context, transactions []domain.Transaction) error
}

// PipelineObserver receives pipeline progress for operational metrics.
type PipelineObserver interface {
	OnNetworkCollected(network domain.Network, count int, complete bool)
	OnNetworkFailed(network domain.Network)
	OnCursor(network domain.Network, block uint64)
	OnReportServed(tier domain.ReportTier)
}

// FetchMode selects how a report request sources its data.
type FetchMode int

const (
	// ModeIncremental resumes each network from its stored cursor.
	ModeIncremental FetchMode = iota
	// ModeFull discards cursors and archives and refetches from genesis.
	ModeFull
	// ModeDemo serves the built-in demonstration dataset.
	ModeDemo
)

type Pipeline struct {
	collectors  []*Collector
	cursors     CursorStore
	repo        TransferRepository
	aggregator  *Aggregator
	cache       ReportCache
	publisher   TransferPublisher
	observer    PipelineObserver
	recentLimit int
}

type PipelineConfig struct {
	RecentLimit int
}

func NewPipeline(collectors []*Collector, cursors CursorStore, repo TransferRepository, aggregator *Aggregator, cache ReportCache, publisher TransferPublisher, observer PipelineObserver, cfg PipelineConfig) (*Pipeline, error) {
	if len(collectors) == 0 {
		return nil, errors.New("at least one collector is required")
	}
	if cursors == nil || repo == nil || aggregator == nil {
		return nil, errors.New("pipeline dependencies must not be nil")
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 50
	}
	return &Pipeline{
		collectors:  collectors,
		cursors:     cursors,
		repo:        repo,
		aggregator:  aggregator,
		cache:       cache,
		publisher:   publisher,
		observer:    observer,
		recentLimit: cfg.RecentLimit,
	}, nil
}

// StartBlockFor computes where the next ranged fetch should begin: one past
// the cursor, or genesis when no cursor exists.
func (p *Pipeline) StartBlockFor(ctx context.Context, network domain.Network) (uint64, error) {
	cursor, ok, err := p.cursors.Cursor(ctx, network)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return cursor.BlockNumber + 1, nil
}

type collectResult struct {
	network      domain.Network
	transactions []domain.Transaction
	complete     bool
	err          error
}

// Report runs the pipeline and produces the report for the presentation
// layer, degrading through live, cached and demo tiers. One network failing
// never suppresses the other network's data.
func (p *Pipeline) Report(ctx context.Context, mode FetchMode) (domain.Report, error) {
	if mode == ModeDemo {
		return p.demoReport(ctx), nil
	}

	if mode == ModeFull {
		for _, collector := range p.collectors {
			network := collector.Network()
			if err := p.cursors.ClearCursor(ctx, network); err != nil {
				return domain.Report{}, err
			}
			if err := p.repo.DeleteNetworkTransfers(ctx, network); err != nil {
				return domain.Report{}, err
			}
		}
	}

	results := make(chan collectResult, len(p.collectors))
	for _, collector := range p.collectors {
		go func(collector *Collector) {
			network := collector.Network()
			startBlock, err := p.StartBlockFor(ctx, network)
			if err != nil {
				results <- collectResult{network: network, err: err}
				return
			}
			transactions, complete, err := collector.Collect(ctx, startBlock)
			results <- collectResult{network: network, transactions: transactions, complete: complete, err: err}
		}(collector)
	}

	var (
		succeeded  int
		incomplete bool
	)
	for range p.collectors {
		result := <-results
		if result.err != nil {
			slog.Error("network collection failed", "network", result.network, "error", result.err)
			if p.observer != nil {
				p.observer.OnNetworkFailed(result.network)
			}
			incomplete = true
			continue
		}
		succeeded++
		if p.observer != nil {
			p.observer.OnNetworkCollected(result.network, len(result.transactions), result.complete)
		}
		if !result.complete {
			incomplete = true
		}
		if err := p.ingest(ctx, result); err != nil {
			return domain.Report{}, err
		}
	}

	if succeeded == 0 {
		return p.fallbackReport(ctx)
	}

	report, err := p.buildReport(ctx, domain.TierLive, incomplete)
	if err != nil {
		return domain.Report{}, err
	}
	if p.cache != nil && !incomplete {
		if err := p.cache.StoreReport(ctx, report); err != nil {
			slog.Warn("report cache store failed", "error", err)
		}
	}
	if p.observer != nil {
		p.observer.OnReportServed(report.Tier)
	}
	return report, nil
}

// ingest persists one network's freshly collected transactions, publishes
// them, and advances the cursor. The cursor only moves after a fetch that
// completed every window, so a skipped window is refetched next run.
func (p *Pipeline) ingest(ctx context.Context, result collectResult) error {
	if len(result.transactions) == 0 {
		return nil
	}
	if err := p.repo.StoreTransfers(ctx, result.transactions); err != nil {
		return err
	}
	if p.publisher != nil {
		if err := p.publisher.PublishTransfers(ctx, result.transactions); err != nil {
			slog.Warn("transfer publish failed", "network", result.network, "error", err)
		}
	}
	if !result.complete {
		return nil
	}

	var top domain.Transaction
	for _, tx := range result.transactions {
		if tx.BlockNumber > top.BlockNumber {
			top = tx
		}
	}
	if top.BlockNumber == 0 {
		return nil
	}
	cursor := domain.Cursor{
		Network:     result.network,
		BlockNumber: top.BlockNumber,
		Timestamp:   top.Timestamp,
		TxHash:      top.Hash,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := p.cursors.SetCursor(ctx, cursor); err != nil {
		return err
	}
	if p.observer != nil {
		p.observer.OnCursor(result.network, cursor.BlockNumber)
	}
	return nil
}

func (p *Pipeline) buildReport(ctx context.Context, tier domain.ReportTier, incomplete bool) (domain.Report, error) {
	transactions, err := p.repo.AllTransfers(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	fees, annotated := p.aggregator.Aggregate(ctx, transactions)
	return domain.Report{
		Tier:         tier,
		Incomplete:   incomplete,
		Fees:         fees,
		Transactions: recentFirst(annotated, p.recentLimit),
	}, nil
}

// fallbackReport degrades through the tiers when every live collection
// failed: the stored archive first, then the last good cached report, then
// the demo dataset.
func (p *Pipeline) fallbackReport(ctx context.Context) (domain.Report, error) {
	if stored, err := p.repo.AllTransfers(ctx); err == nil && len(stored) > 0 {
		report, err := p.buildReport(ctx, domain.TierCached, true)
		if err == nil {
			if p.observer != nil {
				p.observer.OnReportServed(report.Tier)
			}
			return report, nil
		}
		slog.Warn("archive fallback failed", "error", err)
	}
	if p.cache != nil {
		if cached, ok, err := p.cache.LastGoodReport(ctx); err == nil && ok {
			cached.Tier = domain.TierCached
			if p.observer != nil {
				p.observer.OnReportServed(cached.Tier)
			}
			return cached, nil
		}
	}
	return p.demoReport(ctx), nil
}

func (p *Pipeline) demoReport(ctx context.Context) domain.Report {
	fees, annotated := p.aggregator.Aggregate(ctx, DemoTransactions())
	if p.observer != nil {
		p.observer.OnReportServed(domain.TierDemo)
	}
	return domain.Report{
		Tier:         domain.TierDemo,
		Fees:         fees,
		Transactions: recentFirst(annotated, p.recentLimit),
	}
}

// Recent returns the newest archived transactions annotated with USD values,
// without triggering a live fetch.
func (p *Pipeline) Recent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 1000 {
		limit = p.recentLimit
	}
	transactions, err := p.repo.AllTransfers(ctx)
	if err != nil {
		return nil, err
	}
	_, annotated := p.aggregator.Aggregate(ctx, transactions)
	return recentFirst(annotated, limit), nil
}

// recentFirst returns the most recent transactions, newest first.
func recentFirst(transactions []domain.Transaction, limit int) []domain.Transaction {
	sorted := append([]domain.Transaction(nil), transactions...)
	sort.Slice(sorted, func(a, b int) bool {
		return sorted[a].Timestamp > sorted[b].Timestamp
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
