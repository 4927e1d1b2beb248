// Package main implements the streamcatalog server binary.
// It serves the stream metadata API over HTTP and gRPC and runs the
// background purge daemon for deleted streams.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/arkilian/streamcatalog/internal/app"
	"github.com/arkilian/streamcatalog/internal/config"
	"github.com/arkilian/streamcatalog/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configFile  string
		dataDir     string
		httpAddr    string
		grpcAddr    string
		storageType string
		logLevel    string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP address for the stream API")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC server address")
	flag.StringVar(&storageType, "storage", "", "Storage type: local, s3")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "streamcatalog - stream metadata lifecycle service\n\n")
		fmt.Fprintf(os.Stderr, "Usage: streamcatalog [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  streamcatalog --data-dir /data/streamcatalog\n")
		fmt.Fprintf(os.Stderr, "  streamcatalog --config /etc/streamcatalog/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  STREAMCATALOG_DATA_DIR       Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  STREAMCATALOG_HTTP_ADDR      HTTP address\n")
		fmt.Fprintf(os.Stderr, "  STREAMCATALOG_GRPC_ADDR      gRPC server address\n")
		fmt.Fprintf(os.Stderr, "  STREAMCATALOG_STORAGE_TYPE   Storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  STREAMCATALOG_S3_BUCKET      S3 bucket for stream data\n")
		fmt.Fprintf(os.Stderr, "  STREAMCATALOG_LOG_LEVEL      Log level\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("streamcatalog version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := loadConfig(configFile, dataDir, httpAddr, grpcAddr, storageType, logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logStartup(logger, cfg)

	// Create and start the application
	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		logger.Error("failed to start application", "err", err)
		os.Exit(1)
	}

	// Block until SIGTERM/SIGINT; the shutdown manager closes servers and stores
	if err := application.WaitForShutdown(ctx); err != nil {
		logger.Warn("shutdown reported errors", "err", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := application.Stop(stopCtx); err != nil {
		logger.Error("shutdown error", "err", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, httpAddr, grpcAddr, storageType, logLevel string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if grpcAddr != "" {
		cfg.GRPC.Addr = grpcAddr
	}
	if storageType != "" {
		cfg.Storage.Type = storageType
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	return cfg, nil
}

// logStartup logs the configuration summary.
func logStartup(logger *slog.Logger, cfg *config.Config) {
	logger.Info("starting streamcatalog",
		"version", version,
		"commit", commit,
		"data_dir", cfg.DataDir,
		"storage", cfg.Storage.Type,
		"http_addr", cfg.HTTP.Addr,
	)
	if cfg.GRPC.Enabled {
		logger.Info("gRPC enabled", "addr", cfg.GRPC.Addr)
	}
	logger.Info("purge daemon", "check_interval", cfg.Compaction.CheckInterval)
}
