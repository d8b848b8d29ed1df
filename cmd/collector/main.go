package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feeindex/internal/application"
	"feeindex/internal/config"
	"feeindex/internal/domain"
	"feeindex/internal/infrastructure/kafka"
	"feeindex/internal/infrastructure/logging"
	"feeindex/internal/infrastructure/mysql"
	"feeindex/internal/infrastructure/pricefeed"
	"feeindex/internal/infrastructure/reportcache"
	"feeindex/internal/infrastructure/scanapi"
	"feeindex/internal/infrastructure/sqlite"
	"feeindex/internal/infrastructure/telemetry"
	"feeindex/internal/interfaces/httpapi"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// repository is the storage surface both backends satisfy.
type repository interface {
	application.CursorStore
	application.TransferRepository
}

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/collector.log"
	}
	if _, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		File:       logFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	}); err != nil {
		slog.Error("logger init error", "err", err)
	}

	var repo repository
	if cfg.DBDSN != "" {
		mysqlRepo, err := mysql.NewRepository(cfg.DBDSN)
		if err != nil {
			slog.Error("db error", "err", err)
			os.Exit(1)
		}
		defer mysqlRepo.Close()
		repo = mysqlRepo
	} else {
		sqliteRepo, err := sqlite.NewRepository(cfg.SQLitePath)
		if err != nil {
			slog.Error("sqlite error", "err", err)
			os.Exit(1)
		}
		defer sqliteRepo.Close()
		repo = sqliteRepo
	}

	shutdownTracing, err := telemetry.InitTracer(context.Background(), "feeindex-collector", cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				slog.Warn("tracing shutdown error", "err", err)
			}
		}()
	}

	metrics := httpapi.NewMetrics()

	scanClient, err := scanapi.NewClient(scanapi.Config{
		BaseURL:     cfg.ScanAPIURL,
		APIKey:      cfg.ScanAPIKey,
		Timeout:     cfg.RequestTimeout,
		Retry:       scanapi.RetryPolicy{MaxAttempts: cfg.MaxRetries, Backoff: scanapi.LinearBackoff(time.Second)},
		WindowDelay: cfg.WindowDelay,
		Observer:    metrics,
	})
	if err != nil {
		slog.Error("scan api error", "err", err)
		os.Exit(1)
	}

	priceClient, err := pricefeed.NewClient(pricefeed.Config{
		BaseURL: cfg.PriceAPIURL,
		Timeout: cfg.RequestTimeout,
		TTL:     cfg.PriceTTL,
	})
	if err != nil {
		slog.Error("price feed error", "err", err)
		os.Exit(1)
	}

	var cache application.ReportCache
	if cfg.RedisAddr != "" {
		reportCache, err := reportcache.New(reportcache.Config{Addr: cfg.RedisAddr})
		if err != nil {
			slog.Warn("report cache unavailable", "err", err)
		} else {
			defer reportCache.Close()
			cache = reportCache
		}
	}

	var publisher application.TransferPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:     cfg.KafkaBrokers,
			TopicPrefix: cfg.KafkaTopicPrefix,
		})
		if err != nil {
			slog.Error("kafka error", "err", err)
			os.Exit(1)
		}
		defer producer.Close()
		publisher = producer
	}

	feeAddresses := map[domain.Network]string{
		domain.NetworkEthereum: cfg.FeeAddressEthereum,
		domain.NetworkPolygon:  cfg.FeeAddressPolygon,
	}
	collectors := make([]*application.Collector, 0, len(domain.Networks))
	for _, network := range domain.Networks {
		collector, err := application.NewCollector(scanClient, network, feeAddresses[network])
		if err != nil {
			slog.Error("collector error", "network", network, "err", err)
			os.Exit(1)
		}
		collectors = append(collectors, collector)
	}

	aggregator := application.NewAggregator(priceClient)
	pipeline, err := application.NewPipeline(collectors, repo, repo, aggregator, cache, publisher, metrics, application.PipelineConfig{
		RecentLimit: cfg.RecentLimit,
	})
	if err != nil {
		slog.Error("pipeline error", "err", err)
		os.Exit(1)
	}

	httpServer, err := httpapi.NewServer(cfg, pipeline, repo, metrics, httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err != nil {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("http server error", "err", err)
			cancel()
		}
	}()

	slog.Info("collector started",
		"version", version,
		"poll_interval", cfg.PollInterval,
		"networks", len(collectors),
	)

	runOnce := func() {
		runCtx, cancelRun := context.WithTimeout(ctx, cfg.PollInterval)
		defer cancelRun()
		report, err := pipeline.Report(runCtx, application.ModeIncremental)
		if err != nil {
			slog.Error("collection run failed", "err", err)
			return
		}
		slog.Info("collection run finished",
			"tier", report.Tier,
			"incomplete", report.Incomplete,
			"transactions", len(report.Transactions),
		)
	}

	runOnce()
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
