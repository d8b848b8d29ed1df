package scanapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feeindex/internal/domain"
)

// pageCap is the provider's hard per-call result limit. A response holding
// exactly this many records may have been cut off mid-range.
const pageCap = 10000

// maxBlockSentinel stands in for "the chain tip" in endblock parameters.
const maxBlockSentinel = 99_999_999

// ErrMissingAPIKey distinguishes a configuration failure from transient
// provider trouble so callers can fall back to cached or demo data instead
// of retrying.
var ErrMissingAPIKey = errors.New("scan api key is not configured")

// RetryPolicy controls how often a failed provider call is reissued and how
// long to wait between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// LinearBackoff grows the delay by base for every attempt.
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// DefaultRetryPolicy matches the provider's documented rate limits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(time.Second)}
}

// Observer receives collection progress signals. All methods may be called
// from the paginator loop; a nil observer is valid.
type Observer interface {
	OnWindowFetched(network domain.Network, records int)
	OnRetry(network domain.Network)
	OnTruncated(network domain.Network, fromBlock, toBlock uint64)
}

type networkParams struct {
	chainID    uint64
	windowSize uint64
	emptyLimit int
}

// Window sizes are tuned per chain: polygon produces blocks far faster than
// ethereum, so its windows are smaller to bound single-call latency.
var perNetwork = map[domain.Network]networkParams{
	domain.NetworkEthereum: {chainID: 1, windowSize: 200_000, emptyLimit: 40},
	domain.NetworkPolygon:  {chainID: 137, windowSize: 50_000, emptyLimit: 80},
}

// minWindowSize bounds the bisection of capped windows. A window this small
// that still returns the page cap is flagged as truncated and accepted.
const minWindowSize = 1024

type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Retry       RetryPolicy
	WindowDelay time.Duration
	Observer    Observer
}

type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	timeout     time.Duration
	retry       RetryPolicy
	windowDelay time.Duration
	observer    Observer
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("scan api base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Retry.Backoff == nil {
		cfg.Retry.Backoff = LinearBackoff(time.Second)
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		httpClient:  &http.Client{},
		timeout:     cfg.Timeout,
		retry:       cfg.Retry,
		windowDelay: cfg.WindowDelay,
		observer:    cfg.Observer,
		sleep:       sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// rawTransfer is the provider's account-action record shape. All numeric
// fields arrive as decimal strings.
type rawTransfer struct {
	BlockNumber  string `json:"blockNumber"`
	TimeStamp    string `json:"timeStamp"`
	Hash         string `json:"hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	TokenSymbol  string `json:"tokenSymbol"`
	TokenDecimal string `json:"tokenDecimal"`
	FunctionName string `json:"functionName"`
	IsError      string `json:"isError"`
}

// page is the decoded outcome of one provider call. An empty Records slice
// with a nil error is the provider's "no records" success; Truncated marks a
// page that hit the result cap and may be missing data beyond it.
type page struct {
	Records   []rawTransfer
	Truncated bool
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// decodePage collapses the provider's stringly-typed status envelope into a
// tagged outcome right at the boundary so nothing downstream re-inspects
// status strings.
func decodePage(body []byte) (page, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return page{}, fmt.Errorf("malformed provider response: %w", err)
	}
	if env.Status != "1" {
		message := strings.ToLower(env.Message)
		if strings.Contains(message, "no transactions found") || strings.Contains(message, "no records found") {
			return page{}, nil
		}
		detail := env.Message
		var reason string
		if err := json.Unmarshal(env.Result, &reason); err == nil && reason != "" {
			detail = detail + ": " + reason
		}
		if strings.Contains(strings.ToLower(detail), "rate limit") {
			return page{}, fmt.Errorf("provider rate limited: %s", detail)
		}
		return page{}, fmt.Errorf("provider error: %s", detail)
	}
	var records []rawTransfer
	if err := json.Unmarshal(env.Result, &records); err != nil {
		return page{}, fmt.Errorf("malformed provider result: %w", err)
	}
	return page{Records: records, Truncated: len(records) >= pageCap}, nil
}

// fetchPage performs one bounded-time GET with the retry policy applied.
func (c *Client) fetchPage(ctx context.Context, network domain.Network, query url.Values, fromBlock, toBlock uint64) (page, error) {
	query.Set("startblock", strconv.FormatUint(fromBlock, 10))
	query.Set("endblock", strconv.FormatUint(toBlock, 10))
	target := c.baseURL + "?" + query.Encode()

	var result page
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if c.observer != nil {
				c.observer.OnRetry(network)
			}
			if err := c.sleep(ctx, c.retry.Backoff(attempt-1)); err != nil {
				return page{}, err
			}
		}
		result, lastErr = c.doFetch(ctx, target)
		if lastErr == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return page{}, ctx.Err()
		}
		slog.Warn("provider call failed",
			"network", network,
			"from_block", fromBlock,
			"to_block", toBlock,
			"attempt", attempt,
			"error", lastErr,
		)
	}
	return page{}, fmt.Errorf("provider call exhausted %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

func (c *Client) doFetch(ctx context.Context, target string) (page, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target, nil)
	if err != nil {
		return page{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return page{}, fmt.Errorf("provider status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return page{}, err
	}
	return decodePage(body)
}

func (c *Client) accountQuery(network domain.Network, action, address string) (url.Values, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	params, ok := perNetwork[network]
	if !ok {
		return nil, fmt.Errorf("unsupported network %q", network)
	}
	query := url.Values{}
	query.Set("chainid", strconv.FormatUint(params.chainID, 10))
	query.Set("module", "account")
	query.Set("action", action)
	query.Set("address", address)
	query.Set("sort", "asc")
	query.Set("apikey", c.apiKey)
	return query, nil
}

func toTransfer(raw rawTransfer) (domain.TokenTransfer, error) {
	blockNumber, err := strconv.ParseUint(raw.BlockNumber, 10, 64)
	if err != nil {
		return domain.TokenTransfer{}, fmt.Errorf("bad block number %q: %w", raw.BlockNumber, err)
	}
	seconds, err := strconv.ParseInt(raw.TimeStamp, 10, 64)
	if err != nil {
		return domain.TokenTransfer{}, fmt.Errorf("bad timestamp %q: %w", raw.TimeStamp, err)
	}
	decimals := 0
	if raw.TokenDecimal != "" {
		decimals, err = strconv.Atoi(raw.TokenDecimal)
		if err != nil {
			return domain.TokenTransfer{}, fmt.Errorf("bad token decimal %q: %w", raw.TokenDecimal, err)
		}
	}
	return domain.TokenTransfer{
		Hash:         raw.Hash,
		BlockNumber:  blockNumber,
		Timestamp:    seconds * 1000,
		From:         strings.ToLower(raw.From),
		To:           strings.ToLower(raw.To),
		Value:        raw.Value,
		TokenSymbol:  raw.TokenSymbol,
		TokenDecimal: decimals,
	}, nil
}
