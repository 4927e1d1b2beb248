// Package app wires the stream catalog together and manages its lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "github.com/arkilian/streamcatalog/internal/api/grpc"
	httpapi "github.com/arkilian/streamcatalog/internal/api/http"
	"github.com/arkilian/streamcatalog/internal/cache"
	"github.com/arkilian/streamcatalog/internal/compaction"
	"github.com/arkilian/streamcatalog/internal/config"
	"github.com/arkilian/streamcatalog/internal/logging"
	"github.com/arkilian/streamcatalog/internal/manifest"
	"github.com/arkilian/streamcatalog/internal/metrics"
	"github.com/arkilian/streamcatalog/internal/server"
	"github.com/arkilian/streamcatalog/internal/stats"
	"github.com/arkilian/streamcatalog/internal/storage"
	"github.com/arkilian/streamcatalog/internal/stream"
)

// App manages the stream catalog service lifecycle.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// Shared resources
	storage     storage.ObjectStorage
	catalog     *manifest.Catalog
	schemas     *manifest.SchemaStore
	statsStore  *manifest.StatsStore
	schemaCache *cache.SchemaCache
	statsCache  *stats.Cache
	refresher   *stats.Refresher
	daemon      *compaction.Daemon
	service     *stream.Service
	shutdown    *server.ShutdownManager

	// Servers
	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration. A nil logger is built
// from the log section of cfg.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Resolve paths and validate
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	if logger == nil {
		var err error
		logger, err = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if err != nil {
			return nil, err
		}
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// Start initializes shared resources and starts the servers and background loops.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.initSharedResources(ctx); err != nil {
		return a.abort(fmt.Errorf("failed to initialize shared resources: %w", err))
	}

	if err := a.startBackground(ctx); err != nil {
		return a.abort(err)
	}

	if err := a.startHTTP(); err != nil {
		return a.abort(fmt.Errorf("failed to start HTTP server: %w", err))
	}

	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			return a.abort(fmt.Errorf("failed to start gRPC server: %w", err))
		}
	}

	a.registerClosers()
	a.logger.Info("stream catalog started", "storage", a.cfg.Storage.Type, "data_dir", a.cfg.DataDir)
	return nil
}

// abort tears down whatever Start managed to bring up and returns err.
func (a *App) abort(err error) error {
	if a.httpServer != nil {
		a.httpServer.Close()
	}
	if a.grpcListener != nil {
		a.grpcListener.Close()
	}
	a.cancel()
	a.wg.Wait()
	a.cleanup()

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return err
}

// initSharedResources initializes storage, the manifest catalog, caches and the service.
func (a *App) initSharedResources(ctx context.Context) error {
	var err error

	// Initialize storage
	switch a.cfg.Storage.Type {
	case config.StorageLocal:
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case config.StorageS3:
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.logger.Info("storage initialized", "type", a.cfg.Storage.Type,
		"bucket", a.cfg.Storage.S3.Bucket, "path", a.cfg.Storage.Path)

	// Initialize manifest catalog
	a.catalog, err = manifest.NewCatalog(a.cfg.ManifestPath())
	if err != nil {
		return fmt.Errorf("failed to initialize manifest catalog: %w", err)
	}
	a.logger.Info("manifest catalog initialized", "path", a.cfg.ManifestPath())

	a.schemas = manifest.NewSchemaStore(a.catalog)
	a.statsStore = manifest.NewStatsStore(a.catalog)
	compactionStore := manifest.NewCompactionStore(a.catalog)

	a.schemaCache = cache.NewSchemaCache(a.schemas, a.cfg.Cache.SchemaTTL)
	a.statsCache = stats.NewCache()
	a.refresher = stats.NewRefresher(a.statsCache, a.statsStore, a.cfg.Cache.StatsRefreshInterval, a.logger)

	purger := compaction.NewPurger(compactionStore, a.statsStore, a.storage, a.logger)
	a.daemon = compaction.NewDaemon(compaction.Config{CheckInterval: a.cfg.Compaction.CheckInterval},
		compactionStore, purger, a.logger)

	a.service = stream.NewService(stream.Deps{
		Schemas:     a.schemaCache,
		SchemaCache: a.schemaCache,
		Stats:       a.statsCache,
		Compactor:   a.daemon,
		Backend:     a.cfg,
		Logger:      a.logger,
	})

	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{Logger: a.logger})
	return nil
}

// startBackground starts the stats refresher and the purge daemon.
func (a *App) startBackground(ctx context.Context) error {
	if err := a.refresher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start stats refresher: %w", err)
	}
	if err := a.daemon.Start(ctx); err != nil {
		return fmt.Errorf("failed to start compaction daemon: %w", err)
	}
	a.logger.Info("background loops started",
		"stats_refresh_interval", a.cfg.Cache.StatsRefreshInterval,
		"purge_interval", a.cfg.Compaction.CheckInterval)
	return nil
}

// Handler returns the full HTTP handler: stream API, health, metrics and admin routes.
func (a *App) Handler() http.Handler {
	api := http.NewServeMux()
	httpapi.NewStreamHandler(a.service, a.logger).Register(api)
	api.HandleFunc("POST /v1/admin/purge", a.purgeHandler())

	middleware := httpapi.ChainMiddleware(
		server.ShutdownMiddleware(a.shutdown),
		httpapi.DefaultMiddleware(a.logger),
	)

	mux := http.NewServeMux()
	mux.Handle("/v1/", middleware(api))
	mux.HandleFunc("/health", a.healthHandler())
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (a *App) startHTTP() error {
	var err error
	a.httpListener, err = net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}

	a.httpServer = &http.Server{
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("HTTP server listening", "addr", a.httpListener.Addr().String())
		if err := a.httpServer.Serve(a.httpListener); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", "err", err)
		}
	}()
	return nil
}

func (a *App) startGRPC() error {
	var err error
	a.grpcListener, err = net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}

	a.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
		server.UnaryShutdownInterceptor(a.shutdown),
		grpcapi.UnaryLogging(a.logger),
	))
	grpcapi.NewStreamServer(a.service).Register(a.grpcServer)

	a.health = health.NewServer()
	a.health.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(a.grpcServer, a.health)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("gRPC server listening", "addr", a.grpcListener.Addr().String())
		if err := a.grpcServer.Serve(a.grpcListener); err != nil {
			a.logger.Error("gRPC server error", "err", err)
		}
	}()
	return nil
}

// HTTPAddr returns the bound HTTP address, or "" before Start.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// registerClosers hands the servers and shared resources to the shutdown
// manager. Closers run in reverse order: servers first, storage last.
func (a *App) registerClosers() {
	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		a.cleanup()
		return nil
	}))
	if a.grpcServer != nil {
		a.shutdown.RegisterCloser(server.GRPCServerCloser(a.grpcServer, 10*time.Second))
	}
	a.shutdown.RegisterCloser(server.HTTPServerCloser(a.httpServer, 30*time.Second))
	a.shutdown.OnShutdownStart(func() {
		if a.health != nil {
			a.health.Shutdown()
		}
	})
}

// Stop gracefully stops all services and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	err := a.shutdown.Shutdown(ctx, "stop requested")

	// Cancel context to signal background loops
	if a.cancel != nil {
		a.cancel()
	}

	// Wait for all goroutines to finish
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("shutdown timeout, some goroutines may not have finished")
	}

	a.logger.Info("stream catalog stopped")
	return err
}

// cleanup stops background loops and releases shared resources. It is safe
// to call more than once.
func (a *App) cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.daemon != nil {
		if err := a.daemon.Stop(); err != nil {
			a.logger.Warn("compaction daemon stop error", "err", err)
		}
	}
	if a.refresher != nil {
		if err := a.refresher.Stop(); err != nil {
			a.logger.Warn("stats refresher stop error", "err", err)
		}
	}
	if a.schemaCache != nil {
		a.schemaCache.Close()
		a.schemaCache = nil
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			a.logger.Warn("manifest catalog close error", "err", err)
		}
		a.catalog = nil
	}
}

// healthHandler returns the liveness handler.
func (a *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if a.shutdown != nil && a.shutdown.IsShuttingDown() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"shutting_down","service":"streamcatalog"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":"streamcatalog","storage":"%s"}`, a.cfg.Storage.Type)
	}
}

// purgeHandler triggers an immediate purge cycle.
func (a *App) purgeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.logger.Info("manual purge triggered", "request_id", httpapi.GetRequestID(r.Context()))
		a.daemon.Trigger()
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"status":"accepted","message":"purge cycle triggered"}`)
	}
}

// WaitForShutdown blocks until a shutdown signal is received or ctx ends.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}
