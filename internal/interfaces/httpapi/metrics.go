package httpapi

import (
	"sync"
	"time"

	"feeindex/internal/domain"
)

// Metrics is the in-process operational counter registry. It implements the
// collector and pipeline observer interfaces and is safe for concurrent use.
type Metrics struct {
	mu               sync.RWMutex
	startTime        time.Time
	windowsFetched   map[domain.Network]uint64
	emptyWindows     map[domain.Network]uint64
	truncatedWindows map[domain.Network]uint64
	retries          map[domain.Network]uint64
	collected        map[domain.Network]uint64
	incompleteRuns   map[domain.Network]uint64
	failures         map[domain.Network]uint64
	cursorBlocks     map[domain.Network]uint64
	reportsByTier    map[domain.ReportTier]uint64
	lastRunAt        time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime:        time.Now(),
		windowsFetched:   make(map[domain.Network]uint64),
		emptyWindows:     make(map[domain.Network]uint64),
		truncatedWindows: make(map[domain.Network]uint64),
		retries:          make(map[domain.Network]uint64),
		collected:        make(map[domain.Network]uint64),
		incompleteRuns:   make(map[domain.Network]uint64),
		failures:         make(map[domain.Network]uint64),
		cursorBlocks:     make(map[domain.Network]uint64),
		reportsByTier:    make(map[domain.ReportTier]uint64),
	}
}

func (m *Metrics) OnWindowFetched(network domain.Network, records int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windowsFetched[network]++
	if records == 0 {
		m.emptyWindows[network]++
	}
}

func (m *Metrics) OnRetry(network domain.Network) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[network]++
}

func (m *Metrics) OnTruncated(network domain.Network, fromBlock, toBlock uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.truncatedWindows[network]++
}

func (m *Metrics) OnNetworkCollected(network domain.Network, count int, complete bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collected[network] += uint64(count)
	if !complete {
		m.incompleteRuns[network]++
	}
	m.lastRunAt = time.Now()
}

func (m *Metrics) OnNetworkFailed(network domain.Network) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[network]++
	m.lastRunAt = time.Now()
}

func (m *Metrics) OnCursor(network domain.Network, block uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block > m.cursorBlocks[network] {
		m.cursorBlocks[network] = block
	}
}

func (m *Metrics) OnReportServed(tier domain.ReportTier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reportsByTier[tier]++
}

type Snapshot struct {
	StartTime        time.Time
	LastRunAt        time.Time
	WindowsFetched   map[domain.Network]uint64
	EmptyWindows     map[domain.Network]uint64
	TruncatedWindows map[domain.Network]uint64
	Retries          map[domain.Network]uint64
	Collected        map[domain.Network]uint64
	IncompleteRuns   map[domain.Network]uint64
	Failures         map[domain.Network]uint64
	CursorBlocks     map[domain.Network]uint64
	ReportsByTier    map[domain.ReportTier]uint64
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		StartTime:        m.startTime,
		LastRunAt:        m.lastRunAt,
		WindowsFetched:   copyCounts(m.windowsFetched),
		EmptyWindows:     copyCounts(m.emptyWindows),
		TruncatedWindows: copyCounts(m.truncatedWindows),
		Retries:          copyCounts(m.retries),
		Collected:        copyCounts(m.collected),
		IncompleteRuns:   copyCounts(m.incompleteRuns),
		Failures:         copyCounts(m.failures),
		CursorBlocks:     copyCounts(m.cursorBlocks),
		ReportsByTier:    copyTierCounts(m.reportsByTier),
	}
}

func copyCounts(source map[domain.Network]uint64) map[domain.Network]uint64 {
	clone := make(map[domain.Network]uint64, len(source))
	for key, value := range source {
		clone[key] = value
	}
	return clone
}

func copyTierCounts(source map[domain.ReportTier]uint64) map[domain.ReportTier]uint64 {
	clone := make(map[domain.ReportTier]uint64, len(source))
	for key, value := range source {
		clone[key] = value
	}
	return clone
}
