package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"feeindex/internal/domain"
)

const (
	reportKey       = "feeindex:report:current"
	lastGoodKey     = "feeindex:report:lastgood"
	defaultCacheTTL = time.Hour
)

// Cache keeps the most recent aggregate report in redis: a TTL'd current
// copy plus a durable last-good copy that backs the cached fallback tier
// when every live fetch fails.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

type Config struct {
	Addr string
	TTL  time.Duration
}

func New(cfg Config) (*Cache, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Cache{client: client, ttl: cfg.TTL}, nil
}

func (c *Cache) StoreReport(ctx context.Context, report domain.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, reportKey, payload, c.ttl).Err(); err != nil {
		return err
	}
	return c.client.Set(ctx, lastGoodKey, payload, 0).Err()
}

func (c *Cache) LastGoodReport(ctx context.Context) (domain.Report, bool, error) {
	payload, err := c.client.Get(ctx, lastGoodKey).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Report{}, false, nil
	}
	if err != nil {
		return domain.Report{}, false, err
	}
	var report domain.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return domain.Report{}, false, err
	}
	return report, true, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
