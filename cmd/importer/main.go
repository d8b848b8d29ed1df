package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"feeindex/internal/application"
	"feeindex/internal/domain"
	"feeindex/internal/infrastructure/logging"
	"feeindex/internal/infrastructure/mysql"
	"feeindex/internal/infrastructure/sqlite"
)

func main() {
	var (
		filePath   = flag.String("file", "", "path to the exported transfer CSV")
		networkArg = flag.String("network", string(domain.NetworkEthereum), "network the export belongs to (ethereum or polygon)")
		sqlitePath = flag.String("sqlite", "feeindex.db", "sqlite database path")
		dsn        = flag.String("dsn", "", "mysql DSN; overrides -sqlite when set")
		logLevel   = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	if _, err := logging.Init(logging.Config{Level: *logLevel}); err != nil {
		slog.Error("logger init error", "err", err)
	}

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: importer -file export.csv [-network ethereum] [-sqlite feeindex.db]")
		os.Exit(2)
	}

	network := domain.Network(*networkArg)
	if network != domain.NetworkEthereum && network != domain.NetworkPolygon {
		slog.Error("unknown network", "network", *networkArg)
		os.Exit(2)
	}

	var repo application.TransferRepository
	if *dsn != "" {
		mysqlRepo, err := mysql.NewRepository(*dsn)
		if err != nil {
			slog.Error("db error", "err", err)
			os.Exit(1)
		}
		defer mysqlRepo.Close()
		repo = mysqlRepo
	} else {
		sqliteRepo, err := sqlite.NewRepository(*sqlitePath)
		if err != nil {
			slog.Error("sqlite error", "err", err)
			os.Exit(1)
		}
		defer sqliteRepo.Close()
		repo = sqliteRepo
	}

	file, err := os.Open(*filePath)
	if err != nil {
		slog.Error("open error", "err", err)
		os.Exit(1)
	}
	defer file.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	imported, err := application.ImportCSV(ctx, file, network, repo)
	if err != nil {
		slog.Error("import failed", "err", err)
		os.Exit(1)
	}
	slog.Info("import finished", "network", network, "imported", imported)
}
