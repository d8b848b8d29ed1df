package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ScanAPIURL         string
	ScanAPIKey         string
	PriceAPIURL        string
	FeeAddressEthereum string
	FeeAddressPolygon  string
	DBDSN              string
	SQLitePath         string
	HTTPAddr           string
	RedisAddr          string
	OtelEndpoint       string
	KafkaBrokers       []string
	KafkaTopicPrefix   string
	PollInterval       time.Duration
	RequestTimeout     time.Duration
	WindowDelay        time.Duration
	MaxRetries         int
	PriceTTL           time.Duration
	RecentLimit        int
	LogLevel           string
	LogFile            string
	LogMaxSizeMB       int
	LogMaxBackups      int
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	scanAPIURL, ok := source.Lookup("SCAN_API_URL")
	if !ok || strings.TrimSpace(scanAPIURL) == "" {
		scanAPIURL = "https://api.etherscan.io/v2/api"
	}

	// The API key may legitimately be absent: live fetches then fail with a
	// distinct configuration error and the pipeline serves cached or demo data.
	scanAPIKey, _ := source.Lookup("SCAN_API_KEY")
	scanAPIKey = strings.TrimSpace(scanAPIKey)

	priceAPIURL, ok := source.Lookup("PRICE_API_URL")
	if !ok || strings.TrimSpace(priceAPIURL) == "" {
		priceAPIURL = "https://api.coingecko.com/api/v3"
	}

	feeEthereum, ok := source.Lookup("FEE_ADDRESS_ETHEREUM")
	if !ok || strings.TrimSpace(feeEthereum) == "" {
		return Config{}, errors.New("FEE_ADDRESS_ETHEREUM is required")
	}
	feePolygon, ok := source.Lookup("FEE_ADDRESS_POLYGON")
	if !ok || strings.TrimSpace(feePolygon) == "" {
		return Config{}, errors.New("FEE_ADDRESS_POLYGON is required")
	}

	dbDSN, _ := source.Lookup("DB_DSN")
	dbDSN = strings.TrimSpace(dbDSN)

	sqlitePath, ok := source.Lookup("SQLITE_PATH")
	if !ok || strings.TrimSpace(sqlitePath) == "" {
		sqlitePath = "feeindex.db"
	}

	httpAddr := ":8080"
	if raw, ok := source.Lookup("HTTP_ADDR"); ok && raw != "" {
		httpAddr = raw
	}

	redisAddr := ""
	if raw, ok := source.Lookup("REDIS_ADDR"); ok {
		redisAddr = strings.TrimSpace(raw)
	}

	otelEndpoint, _ := source.Lookup("OTEL_EXPORTER_OTLP_ENDPOINT")
	otelEndpoint = strings.TrimSpace(otelEndpoint)

	kafkaBrokers := parseOptionalList(source, "KAFKA_BROKERS")
	kafkaTopicPrefix, ok := source.Lookup("KAFKA_TOPIC_PREFIX")
	if !ok || kafkaTopicPrefix == "" {
		kafkaTopicPrefix = "feeindex-transfers"
	}

	pollInterval, err := parseDurationEnv(source, "POLL_INTERVAL", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}
	requestTimeout, err := parseDurationEnv(source, "REQUEST_TIMEOUT", 20*time.Second)
	if err != nil {
		return Config{}, err
	}
	windowDelay, err := parseDurationEnv(source, "WINDOW_DELAY", 250*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	priceTTL, err := parseDurationEnv(source, "PRICE_TTL", time.Hour)
	if err != nil {
		return Config{}, err
	}

	maxRetries, err := parseIntEnv(source, "MAX_RETRIES", 3)
	if err != nil {
		return Config{}, err
	}
	recentLimit, err := parseIntEnv(source, "RECENT_LIMIT", 50)
	if err != nil {
		return Config{}, err
	}

	logLevel, _ := source.Lookup("LOG_LEVEL")
	logFile, _ := source.Lookup("LOG_FILE")
	logMaxSizeMB, err := parseIntEnv(source, "LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseIntEnv(source, "LOG_MAX_BACKUPS", 3)
	if err != nil {
		return Config{}, err
	}

	return Config{
		ScanAPIURL:         scanAPIURL,
		ScanAPIKey:         scanAPIKey,
		PriceAPIURL:        priceAPIURL,
		FeeAddressEthereum: strings.ToLower(strings.TrimSpace(feeEthereum)),
		FeeAddressPolygon:  strings.ToLower(strings.TrimSpace(feePolygon)),
		DBDSN:              dbDSN,
		SQLitePath:         sqlitePath,
		HTTPAddr:           httpAddr,
		RedisAddr:          redisAddr,
		OtelEndpoint:       otelEndpoint,
		KafkaBrokers:       kafkaBrokers,
		KafkaTopicPrefix:   kafkaTopicPrefix,
		PollInterval:       pollInterval,
		RequestTimeout:     requestTimeout,
		WindowDelay:        windowDelay,
		MaxRetries:         maxRetries,
		PriceTTL:           priceTTL,
		RecentLimit:        recentLimit,
		LogLevel:           logLevel,
		LogFile:            logFile,
		LogMaxSizeMB:       logMaxSizeMB,
		LogMaxBackups:      logMaxBackups,
	}, nil
}

func parseIntEnv(source EnvSource, key string, defaultValue int) (int, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}

func parseOptionalList(source EnvSource, key string) []string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	var values []string
	for _, item := range items {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	return values
}
