// Package server coordinates draining and teardown of the catalog's front ends.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errShuttingDown = status.Error(codes.Unavailable, "server is shutting down")

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// DrainTimeout bounds the wait for in-flight requests. Default: 15 seconds
	DrainTimeout time.Duration

	// Logger receives shutdown progress. Default: slog.Default()
	Logger *slog.Logger
}

// ShutdownManager gates requests on the HTTP and gRPC front ends and, once
// shutdown begins, rejects new ones, waits for the admitted ones, then
// closes registered resources last-registered first.
type ShutdownManager struct {
	drainTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	closing bool
	active  int
	idle    chan struct{} // closed when closing and active reaches zero
	closers []io.Closer
	onStart []func()

	once sync.Once
	done chan struct{}
	err  error
}

// NewShutdownManager creates a new shutdown manager with the given configuration.
func NewShutdownManager(config ShutdownConfig) *ShutdownManager {
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = 15 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &ShutdownManager{
		drainTimeout: config.DrainTimeout,
		logger:       config.Logger.With("component", "shutdown"),
		idle:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// RegisterCloser adds a resource to close during shutdown.
func (sm *ShutdownManager) RegisterCloser(closer io.Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, closer)
}

// OnShutdownStart registers fn to run as soon as new requests are refused.
func (sm *ShutdownManager) OnShutdownStart(fn func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onStart = append(sm.onStart, fn)
}

// ListenForSignals blocks until SIGTERM/SIGINT, ctx cancellation or another
// caller starting shutdown. The first two trigger Shutdown.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	select {
	case <-sigCtx.Done():
		reason := "received signal"
		if ctx.Err() != nil {
			reason = "context cancelled"
		}
		return sm.Shutdown(context.Background(), reason)
	case <-sm.done:
		return nil
	}
}

// Shutdown refuses new requests, drains admitted ones and closes registered
// resources. Later calls return the result of the first.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	sm.once.Do(func() {
		sm.mu.Lock()
		sm.closing = true
		inFlight := sm.active
		if sm.active == 0 {
			close(sm.idle)
		}
		closers := append([]io.Closer(nil), sm.closers...)
		onStart := append([]func(){}, sm.onStart...)
		sm.mu.Unlock()
		close(sm.done)

		sm.logger.Info("shutdown started", "reason", reason, "in_flight", inFlight)
		for _, fn := range onStart {
			fn()
		}

		var errs []error
		if err := sm.drain(ctx); err != nil {
			errs = append(errs, err)
		}
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				sm.logger.Warn("closer failed", "err", err)
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			sm.err = fmt.Errorf("server: shutdown: %w", errs[0])
		}
		sm.logger.Info("shutdown complete", "errors", len(errs))
	})
	return sm.err
}

func (sm *ShutdownManager) drain(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.drainTimeout)
	defer cancel()

	select {
	case <-sm.idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d requests still in flight", sm.InFlight())
	}
}

// enter admits a request unless shutdown has begun.
func (sm *ShutdownManager) enter() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.closing {
		return false
	}
	sm.active++
	return true
}

func (sm *ShutdownManager) leave() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.active--
	if sm.closing && sm.active == 0 {
		close(sm.idle)
	}
}

// IsShuttingDown reports whether new requests are being refused.
func (sm *ShutdownManager) IsShuttingDown() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.closing
}

// InFlight returns the number of admitted requests still running.
func (sm *ShutdownManager) InFlight() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// ShutdownMiddleware admits HTTP requests through sm and answers 503 once
// shutdown has begun.
func ShutdownMiddleware(sm *ShutdownManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sm.enter() {
				w.Header().Set("Connection", "close")
				http.Error(w, "stream catalog is shutting down", http.StatusServiceUnavailable)
				return
			}
			defer sm.leave()
			next.ServeHTTP(w, r)
		})
	}
}

// UnaryShutdownInterceptor is the gRPC counterpart of ShutdownMiddleware.
func UnaryShutdownInterceptor(sm *ShutdownManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !sm.enter() {
			return nil, errShuttingDown
		}
		defer sm.leave()
		return handler(ctx, req)
	}
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error {
	return f()
}

// HTTPServerCloser shuts srv down, waiting up to timeout for open connections.
func HTTPServerCloser(srv *http.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
}

// GRPCServerCloser stops srv gracefully, forcing a hard stop if in-flight
// RPCs outlast timeout.
func GRPCServerCloser(srv *grpc.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			srv.Stop()
		}
		return nil
	})
}
