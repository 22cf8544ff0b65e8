package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/datahub-lab/datahub/internal/analytics"
	corecfg "github.com/datahub-lab/datahub/internal/core/config"
	"github.com/datahub-lab/datahub/internal/core/storage/postgres"
	"github.com/datahub-lab/datahub/internal/files"
	"github.com/datahub-lab/datahub/internal/migrations"
	"github.com/datahub-lab/datahub/internal/server"
	"github.com/datahub-lab/datahub/internal/tracking"
)

func main() {
	configPath := flag.String("config", "datahub.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	urlTTL, err := cfg.BlobStore.ParsedURLTTL()
	if err != nil {
		slog.Error("Invalid blobstore URL TTL", "value", cfg.BlobStore.URLTTL, "error", err)
		os.Exit(1)
	}

	// 2. Initialize Storage (PostgreSQL)
	ledger, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(ledger.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 2.2. Prepare statements once the schema exists
	if err := ledger.Prepare(); err != nil {
		slog.Error("Failed to prepare database statements", "error", err)
		os.Exit(1)
	}

	statsStore := postgres.NewStatsAdapter(ledger.DB())
	catalog := postgres.NewCatalogAdapter(ledger.DB())

	// 3. Initialize Blob Store (S3 presigner)
	blobs, err := files.NewS3Store(context.Background(), cfg.BlobStore.Bucket, cfg.BlobStore.Region)
	if err != nil {
		slog.Error("Failed to initialize blob store", "error", err)
		os.Exit(1)
	}

	// 4. Initialize Services
	trackingSvc := tracking.NewService(ledger, ledger)

	analyticsSvc := analytics.NewService(ledger, ledger, statsStore, analytics.Options{
		TopN:         cfg.Analytics.TopN,
		HistoryLimit: cfg.Analytics.HistoryLimit,
		Windows:      cfg.ReportWindows,
	})

	filesSvc := files.NewService(catalog, blobs, trackingSvc, urlTTL)

	// 5. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), ledger.DB(), cfg.Server.Mode, cfg.Server.MaxBodySizeMB)
	trackingSvc.RegisterRoutes(srv.Engine)
	analyticsSvc.RegisterRoutes(srv.Engine)
	filesSvc.RegisterRoutes(srv.Engine)

	// 6. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
