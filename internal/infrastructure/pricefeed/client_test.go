package pricefeed

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{BaseURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func quoteHandler(prices map[string]float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("ids")
		price, ok := prices[id]
		if !ok {
			w.Write([]byte("{}"))
			return
		}
		fmt.Fprintf(w, `{"%s":{"usd":%v}}`, id, price)
	}
}

func TestPrice_LiveLookup(t *testing.T) {
	server := httptest.NewServer(quoteHandler(map[string]float64{"ethereum": 2712.5}))
	defer server.Close()

	client := newTestClient(t, server)
	if got := client.Price(context.Background(), "ETH"); got != 2712.5 {
		t.Fatalf("price = %v, want 2712.5", got)
	}
}

func TestPrice_StableIsFixed(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if got := client.Price(context.Background(), "USDC"); got != 1.0 {
		t.Fatalf("USDC price = %v, want 1.0", got)
	}
	// The polygon alias prices as the same stable.
	if got := client.Price(context.Background(), "USDC.e"); got != 1.0 {
		t.Fatalf("USDC.e price = %v, want 1.0", got)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("feed calls = %d, want 0 for fixed prices", calls)
	}
}

func TestPrice_WrappedNativeFoldsToUnderlying(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != "ethereum" {
			t.Errorf("ids = %q, want ethereum", r.URL.Query().Get("ids"))
		}
		w.Write([]byte(`{"ethereum":{"usd":2000}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if got := client.Price(context.Background(), "WETH"); got != 2000 {
		t.Fatalf("WETH price = %v, want 2000", got)
	}
}

func TestPrice_FallbackOnLookupFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if got := client.Price(context.Background(), "ETH"); got != fallbackPrices["ETH"] {
		t.Fatalf("price = %v, want fallback %v", got, fallbackPrices["ETH"])
	}
	if got := client.Price(context.Background(), "POL"); got != fallbackPrices["POL"] {
		t.Fatalf("price = %v, want fallback %v", got, fallbackPrices["POL"])
	}
}

func TestPrice_UnknownSymbolIsZero(t *testing.T) {
	server := httptest.NewServer(quoteHandler(nil))
	defer server.Close()

	client := newTestClient(t, server)
	if got := client.Price(context.Background(), "SHIB"); got != 0 {
		t.Fatalf("price = %v, want 0", got)
	}
	if got := client.Price(context.Background(), ""); got != 0 {
		t.Fatalf("price = %v, want 0 for blank symbol", got)
	}
}

func TestPrice_CachesLookups(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"ethereum":{"usd":2000}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	client.Price(context.Background(), "ETH")
	client.Price(context.Background(), "ETH")
	client.Price(context.Background(), "WETH") // same pricing symbol
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("feed calls = %d, want 1", got)
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(time.Hour)
	cache.now = func() time.Time { return now }

	cache.Set("ETH", 2000)
	if price, ok := cache.Get("ETH"); !ok || price != 2000 {
		t.Fatalf("got %v %v, want fresh hit", price, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := cache.Get("ETH"); ok {
		t.Fatal("entry survived past its TTL")
	}
}

func TestPrices_Batch(t *testing.T) {
	server := httptest.NewServer(quoteHandler(map[string]float64{
		"ethereum":                2000,
		"polygon-ecosystem-token": 0.5,
	}))
	defer server.Close()

	client := newTestClient(t, server)
	prices := client.Prices(context.Background(), []string{"ETH", "WETH", "POL", "USDC", "USDC.e", "SHIB", ""})

	want := map[string]float64{
		"ETH": 2000, "WETH": 2000, "POL": 0.5,
		"USDC": 1, "USDC.e": 1, "SHIB": 0,
	}
	if len(prices) != len(want) {
		t.Fatalf("prices = %v, want %d entries", prices, len(want))
	}
	for symbol, price := range want {
		if math.Abs(prices[symbol]-price) > 1e-9 {
			t.Errorf("prices[%q] = %v, want %v", symbol, prices[symbol], price)
		}
	}
}
