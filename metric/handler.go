package metric

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/health"
)

// Server exposes the registry on its metrics path, aggregated component health on
// /health and a bare liveness probe on /livez.
type Server struct {
	port     int
	path     string
	registry *MetricsRegistry
	monitor  *health.Monitor

	mu  sync.Mutex
	srv *http.Server
}

// NewServer creates a server. Port 0 means 9090 and an empty path means /metrics.
// monitor may be nil, in which case /health always reports healthy.
func NewServer(port int, path string, registry *MetricsRegistry, monitor *health.Monitor) *Server {
	if port == 0 {
		port = 9090
	}
	if path == "" {
		path = "/metrics"
	}
	return &Server{port: port, path: path, registry: registry, monitor: monitor}
}

// Handler returns the routes without starting a listener
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", s.serveHealth)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	status := health.NewHealthy("semlink", "no monitor")
	if s.monitor != nil {
		status = s.monitor.AggregateHealth("semlink")
	}

	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// Start listens and serves until Stop. It returns nil after a clean stop.
func (s *Server) Start() error {
	if s.registry == nil {
		return errors.WrapFatal(fmt.Errorf("nil registry"), "Server", "Start", "check registry")
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("already running on :%d", s.port), "Server", "Start", "check state")
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srv = srv
	s.mu.Unlock()

	err := srv.ListenAndServe()
	if err == nil || err == http.ErrServerClosed {
		return nil
	}

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
	}
	s.mu.Unlock()
	return errors.WrapFatal(err, "Server", "Start", fmt.Sprintf("listen on :%d", s.port))
}

// Stop shuts the listener down, letting in-flight scrapes finish until ctx expires.
// The server can be started again afterwards.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return errors.WrapTransient(err, "Server", "Stop", "shut down http server")
	}
	return nil
}

// Address returns the scrape URL on localhost
func (s *Server) Address() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, s.path)
}
