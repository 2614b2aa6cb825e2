package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultTelemetryInterval is how often /telemetry pushes a sample.
const DefaultTelemetryInterval = time.Second

// TelemetryFunc returns the value pushed to websocket clients. It must be
// JSON-encodable and safe to call from any goroutine.
type TelemetryFunc func() any

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// WithTelemetry enables the /telemetry websocket.
func WithTelemetry(fn TelemetryFunc, interval time.Duration) ServerOption {
	return func(s *Server) {
		s.telemetry = fn
		if interval > 0 {
			s.interval = interval
		}
	}
}

// Server provides HTTP endpoints for Prometheus metrics, health checks and
// a websocket telemetry stream.
type Server struct {
	addr      string
	server    *http.Server
	logger    *slog.Logger
	gatherer  prometheus.Gatherer
	telemetry TelemetryFunc
	interval  time.Duration

	ready atomic.Bool

	mu       sync.Mutex
	listener net.Listener
	clients  map[*telemetryClient]struct{}
	closing  chan struct{}
}

// NewServer creates a new metrics server.
func NewServer(addr string, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		addr:     addr,
		logger:   logger,
		gatherer: prometheus.DefaultGatherer,
		interval: DefaultTelemetryInterval,
		clients:  make(map[*telemetryClient]struct{}),
		closing:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Health check endpoint
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/healthz", healthHandler)

	// Ready once playback has started
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/readyz", s.readyHandler)

	if s.telemetry != nil {
		mux.HandleFunc("/telemetry", s.handleTelemetry)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// healthHandler handles health check requests.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "starting")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// SetReady marks playback as started (or stopped) for /ready.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start binds the address and serves in a goroutine. Binding errors are
// returned; serving errors are logged. Use Shutdown to stop.
func (s *Server) Start() error {
	s.logger.Info("metrics_server_starting", "addr", s.addr)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown closes telemetry streams and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("metrics_server_shutting_down")

	s.mu.Lock()
	select {
	case <-s.closing:
	default:
		close(s.closing)
	}
	s.mu.Unlock()

	return s.server.Shutdown(ctx)
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// TelemetryClients returns the number of connected websocket clients.
func (s *Server) TelemetryClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
