package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"feeindex/internal/domain"
)

// feedIDs maps a pricing symbol to the quote provider's asset identifier.
// Network-qualified aliases are folded to their pricing symbol before this
// table is consulted.
var feedIDs = map[string]string{
	"ETH":  "ethereum",
	"USDC": "usd-coin",
	"POL":  "polygon-ecosystem-token",
}

// fixedPrices short-circuits lookups for assets priced by definition rather
// than by market feed.
var fixedPrices = map[string]float64{
	"USDC": 1.0,
}

// fallbackPrices is the static table of last resort when a live lookup
// fails. An unknown symbol prices at zero, which zeroes its USD contribution
// while preserving native totals.
var fallbackPrices = map[string]float64{
	"ETH": 2500,
	"POL": 0.40,
}

// Cache is the injected price cache collaborator. Implementations must be
// safe for concurrent use; batch lookups hit it from multiple goroutines.
type Cache interface {
	Get(symbol string) (float64, bool)
	Set(symbol string, price float64)
}

// MemoryCache is an in-process TTL cache guarded by a lock.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	price   float64
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *MemoryCache) Get(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[symbol]
	if !ok || c.now().After(entry.expires) {
		return 0, false
	}
	return entry.price, true
}

func (c *MemoryCache) Set(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = cacheEntry{price: price, expires: c.now().Add(c.ttl)}
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	TTL     time.Duration
	Cache   Cache
}

// Client resolves current USD spot prices. All history is priced at the
// current spot price, an accepted approximation.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	cache      Cache
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("price api base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache(cfg.TTL)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		timeout:    cfg.Timeout,
		cache:      cache,
	}, nil
}

// Price returns the USD unit price for a display symbol. It never fails:
// lookup errors degrade to the fallback table, and wholly unknown symbols
// price at zero.
func (c *Client) Price(ctx context.Context, symbol string) float64 {
	pricing := domain.PricingSymbol(strings.ToUpper(strings.TrimSpace(symbol)))
	if pricing == "" {
		return 0
	}
	if fixed, ok := fixedPrices[pricing]; ok {
		return fixed
	}
	if cached, ok := c.cache.Get(pricing); ok {
		return cached
	}

	feedID, ok := feedIDs[pricing]
	if !ok {
		slog.Warn("no price feed for symbol", "symbol", symbol)
		return fallbackPrices[pricing]
	}

	price, err := c.lookup(ctx, feedID)
	if err != nil {
		slog.Warn("price lookup failed, using fallback", "symbol", symbol, "feed_id", feedID, "error", err)
		return fallbackPrices[pricing]
	}
	c.cache.Set(pricing, price)
	return price
}

// Prices resolves every distinct symbol concurrently. Individual failures
// never fail the batch; each symbol falls back independently.
func (c *Client) Prices(ctx context.Context, symbols []string) map[string]float64 {
	distinct := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		if symbol == "" {
			continue
		}
		distinct[symbol] = struct{}{}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	prices := make(map[string]float64, len(distinct))
	for symbol := range distinct {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			price := c.Price(ctx, symbol)
			mu.Lock()
			prices[symbol] = price
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return prices
}

func (c *Client) lookup(ctx context.Context, feedID string) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("ids", feedID)
	query.Set("vs_currencies", "usd")
	target := c.baseURL + "/simple/price?" + query.Encode()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("price feed status %d", resp.StatusCode)
	}

	var decoded map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, err
	}
	quote, ok := decoded[feedID]
	if !ok {
		return 0, fmt.Errorf("feed id %q missing from response", feedID)
	}
	price, ok := quote["usd"]
	if !ok {
		return 0, fmt.Errorf("usd quote missing for feed id %q", feedID)
	}
	return price, nil
}
