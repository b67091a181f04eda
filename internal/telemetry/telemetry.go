// Package telemetry wires the ambient observability stack for the SDK's
// binaries: a logrus logger, a Prometheus-backed sdk.Observer and an
// OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Init initializes all telemetry components
func Init(cfg *Config) error {
	if err := InitLogger(cfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := InitTracing(cfg); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	L().WithFields(map[string]interface{}{
		"service":      cfg.ServiceName,
		"version":      cfg.ServiceVersion,
		"environment":  cfg.Environment,
		"exportToFile": cfg.ExportToFile,
		"tracing":      cfg.EnableTracing,
	}).Debug("Telemetry initialized")

	return nil
}

// Flush exports metrics to the configured sinks: the push gateway when
// PushGatewayURL is set and the metrics file when file export is enabled.
func Flush(ctx context.Context, cfg *Config, metrics *MetricsObserver) error {
	if metrics == nil || !cfg.EnableMetrics {
		return nil
	}

	if err := metrics.Push(ctx, cfg.PushGatewayURL, cfg.PushJob); err != nil {
		return err
	}

	if cfg.ExportToFile && cfg.MetricsFilePath != "" {
		if err := metrics.WriteFile(cfg.MetricsFilePath); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components
func Shutdown(ctx context.Context) error {
	if err := CloseTracing(ctx); err != nil {
		L().WithError(err).Error("Failed to close tracing")
	}

	if err := CloseLogger(); err != nil {
		L().WithError(err).Error("Failed to close logger")
	}

	return nil
}

// MetricsHandler serves the observer's registry in the Prometheus text format
func MetricsHandler(metrics *MetricsObserver) http.Handler {
	return promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})
}

// MetricsServer serves MetricsHandler on /metrics
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// ServeMetrics starts serving the observer's metrics on addr in the
// background. Use ":0" to pick a free port and Addr to find it.
func ServeMetrics(addr string, metrics *MetricsObserver) (*MetricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(metrics))

	s := &MetricsServer{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L().WithError(err).Error("Metrics server stopped")
		}
	}()

	return s, nil
}

// Addr returns the address the server is listening on
func (s *MetricsServer) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server and waits for the serve loop to exit
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	<-s.done
	return err
}
