package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/arl/statsviz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DebugServer serves the process's prometheus /metrics endpoint plus,
// when enabled, pprof and the statsviz live-monitoring UI. Adapted from
// the teacher's server.MetricsServer (server/metric_server.go), which
// served the same trio (expvar-backed /metrics, pprof, statsviz) behind
// its own config.DebugMode flags; DebugConfig plays that role here.
type DebugServer struct {
	server  *http.Server
	logger  *slog.Logger
	mu      sync.Mutex
	started bool
}

// NewDebugServer builds (but does not start) the debug HTTP server.
func NewDebugServer(addr string, registry *prometheus.Registry, pprofEnabled, monitorUIEnabled bool, logger *slog.Logger) *DebugServer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "debug_server")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if pprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		logger.Info("pprof profiling endpoints enabled on /debug/pprof")
	}

	if monitorUIEnabled {
		if err := statsviz.Register(mux,
			statsviz.Root("/debug/statsviz"),
			statsviz.SendFrequency(250*time.Millisecond),
		); err != nil {
			logger.Warn("failed to register statsviz UI", "error", err)
		} else {
			logger.Info("statsviz live monitoring UI enabled on /debug/statsviz")
		}
	}

	if addr == "" {
		addr = "0.0.0.0:6060"
	}
	return &DebugServer{
		server: &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start launches the debug server in the background. Errors after startup
// (other than a graceful Stop) are logged, not returned, matching the
// fire-and-forget lifecycle cmd/server/main.go gives the REST API server.
func (s *DebugServer) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		s.logger.Info("debug server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("debug server failed", "error", err)
		}
	}()
}

// Stop gracefully shuts the debug server down.
func (s *DebugServer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("debug server shutdown failed", "error", err)
	}
}
