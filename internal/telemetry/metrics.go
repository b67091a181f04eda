package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/roar-platform/assessment-sdk/sdk"
)

const metricsNamespace = "roar"

// MetricsObserver records command and request metrics in a Prometheus
// registry. It implements sdk.Observer.
type MetricsObserver struct {
	registry *prometheus.Registry

	attemptsTotal   *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	attemptsPerRun  *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var _ sdk.Observer = (*MetricsObserver)(nil)

// NewMetricsObserver registers the command metrics on a fresh registry
func NewMetricsObserver() *MetricsObserver {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &MetricsObserver{
		registry: reg,

		attemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "command_attempts_total",
			Help:      "Total number of command attempts",
		}, []string{"command"}),

		failuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "command_attempt_failures_total",
			Help:      "Total number of failed command attempts",
		}, []string{"command"}),

		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "command_retries_total",
			Help:      "Total number of retries scheduled after a failed attempt",
		}, []string{"command"}),

		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "command_runs_total",
			Help:      "Total number of command runs by outcome",
		}, []string{"command", "outcome"}),

		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "command_run_duration_seconds",
			Help:      "Duration of command runs including retry delays",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),

		attemptsPerRun: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "command_attempts_per_run",
			Help:      "Number of attempts made per command run",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}, []string{"command"}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of outbound HTTP requests",
		}, []string{"method", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Registry returns the registry the metrics live in
func (m *MetricsObserver) Registry() *prometheus.Registry {
	return m.registry
}

// OnAttemptStart counts the attempt
func (m *MetricsObserver) OnAttemptStart(command string, attempt, maxAttempts int) {
	m.attemptsTotal.WithLabelValues(command).Inc()
}

// OnAttemptEnd counts failed attempts
func (m *MetricsObserver) OnAttemptEnd(command string, attempt int, duration time.Duration, err error) {
	if err != nil {
		m.failuresTotal.WithLabelValues(command).Inc()
	}
}

// OnRetry counts scheduled retries
func (m *MetricsObserver) OnRetry(command string, attempt int, delay time.Duration, err error) {
	m.retriesTotal.WithLabelValues(command).Inc()
}

// OnRunEnd records the run outcome, duration and attempt count
func (m *MetricsObserver) OnRunEnd(command string, attempts int, duration time.Duration, err error) {
	m.runsTotal.WithLabelValues(command, runOutcome(err)).Inc()
	m.runDuration.WithLabelValues(command).Observe(duration.Seconds())
	m.attemptsPerRun.WithLabelValues(command).Observe(float64(attempts))
}

// OnRequestEnd records an outbound request. Transport failures are labelled
// with status "error".
func (m *MetricsObserver) OnRequestEnd(method, url string, duration time.Duration, status int, err error) {
	label := "error"
	if err == nil {
		label = strconv.Itoa(status)
	}
	m.requestsTotal.WithLabelValues(method, label).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func runOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, sdk.ErrCanceled):
		return "canceled"
	default:
		return "failure"
	}
}

// Push sends the current metrics to a Prometheus push gateway
func (m *MetricsObserver) Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// fileSample is one labelled value in the metrics file
type fileSample struct {
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
	Count  uint64            `json:"count,omitempty"`
}

// WriteFile dumps the current metrics as JSON for local-otel integration
func (m *MetricsObserver) WriteFile(filePath string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	out := map[string]interface{}{
		"timestamp": time.Now().Unix(),
	}
	for _, mf := range families {
		samples := make([]fileSample, 0, len(mf.GetMetric()))
		for _, metric := range mf.GetMetric() {
			sample := fileSample{}
			if len(metric.GetLabel()) > 0 {
				sample.Labels = make(map[string]string, len(metric.GetLabel()))
				for _, lp := range metric.GetLabel() {
					sample.Labels[lp.GetName()] = lp.GetValue()
				}
			}
			switch {
			case metric.GetCounter() != nil:
				sample.Value = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				sample.Value = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				sample.Value = metric.GetHistogram().GetSampleSum()
				sample.Count = metric.GetHistogram().GetSampleCount()
			}
			samples = append(samples, sample)
		}
		out[mf.GetName()] = samples
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
