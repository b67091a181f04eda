package sdk

import (
	"sync"
	"time"
)

// Observer provides hooks for monitoring command execution.
// Implement this interface to export metrics to your monitoring system.
// Observer methods are called synchronously on the run's goroutine and should
// be fast and non-blocking.
type Observer interface {
	// OnAttemptStart is called before each attempt. attempt is 1-based.
	OnAttemptStart(command string, attempt, maxAttempts int)

	// OnAttemptEnd is called after each attempt with its duration and error.
	OnAttemptEnd(command string, attempt int, duration time.Duration, err error)

	// OnRetry is called when a failed attempt will be followed by another
	// one after delay.
	OnRetry(command string, attempt int, delay time.Duration, err error)

	// OnRunEnd is called once per run with the number of attempts made and
	// the terminal error, nil on success.
	OnRunEnd(command string, attempts int, duration time.Duration, err error)

	// OnRequestEnd is called by the Receiver after each transport call.
	// status is 0 when the transport returned an error.
	OnRequestEnd(method, url string, duration time.Duration, status int, err error)
}

// NoopObserver is a no-op implementation of Observer.
// This is the default observer used when none is configured.
type NoopObserver struct{}

// OnAttemptStart does nothing
func (NoopObserver) OnAttemptStart(command string, attempt, maxAttempts int) {}

// OnAttemptEnd does nothing
func (NoopObserver) OnAttemptEnd(command string, attempt int, duration time.Duration, err error) {}

// OnRetry does nothing
func (NoopObserver) OnRetry(command string, attempt int, delay time.Duration, err error) {}

// OnRunEnd does nothing
func (NoopObserver) OnRunEnd(command string, attempts int, duration time.Duration, err error) {}

// OnRequestEnd does nothing
func (NoopObserver) OnRequestEnd(method, url string, duration time.Duration, status int, err error) {
}

// MetricsCollector is a simple in-memory Observer. It is intended for tests and
// debugging; for production export use a Prometheus-backed Observer.
//
// Example:
//
//	metrics := sdk.NewMetricsCollector()
//	cc.Observer = metrics
//	// ...
//	snap := metrics.Snapshot()
//	fmt.Println(snap.Attempts["listAdministrations"])
type MetricsCollector struct {
	mu        sync.RWMutex
	attempts  map[string]int64
	failures  map[string]int64
	retries   map[string]int64
	runs      map[string]int64
	runErrors map[string]int64
	latencies map[string][]time.Duration
	requests  map[string]int64
}

// MetricsSnapshot is a point-in-time copy of a MetricsCollector's counters.
type MetricsSnapshot struct {
	Attempts  map[string]int64
	Failures  map[string]int64
	Retries   map[string]int64
	Runs      map[string]int64
	RunErrors map[string]int64
	Requests  map[string]int64
}

// NewMetricsCollector creates a new metrics collector.
// The collector is thread-safe and can be shared by concurrent runs.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		attempts:  make(map[string]int64),
		failures:  make(map[string]int64),
		retries:   make(map[string]int64),
		runs:      make(map[string]int64),
		runErrors: make(map[string]int64),
		latencies: make(map[string][]time.Duration),
		requests:  make(map[string]int64),
	}
}

// OnAttemptStart increments the attempt count
func (m *MetricsCollector) OnAttemptStart(command string, attempt, maxAttempts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[command]++
}

// OnAttemptEnd records failures
func (m *MetricsCollector) OnAttemptEnd(command string, attempt int, duration time.Duration, err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[command]++
}

// OnRetry increments the retry count
func (m *MetricsCollector) OnRetry(command string, attempt int, delay time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[command]++
}

// OnRunEnd records run duration and terminal errors
func (m *MetricsCollector) OnRunEnd(command string, attempts int, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[command]++
	m.latencies[command] = append(m.latencies[command], duration)
	if err != nil {
		m.runErrors[command]++
	}
}

// OnRequestEnd counts transport calls per method and status
func (m *MetricsCollector) OnRequestEnd(method, url string, duration time.Duration, status int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[method]++
}

// Snapshot returns a copy of the collected counters
func (m *MetricsCollector) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		Attempts:  copyCounts(m.attempts),
		Failures:  copyCounts(m.failures),
		Retries:   copyCounts(m.retries),
		Runs:      copyCounts(m.runs),
		RunErrors: copyCounts(m.runErrors),
		Requests:  copyCounts(m.requests),
	}
}

// AverageLatency returns the mean run duration for command, 0 if none recorded
func (m *MetricsCollector) AverageLatency(command string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lat := m.latencies[command]
	if len(lat) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range lat {
		total += d
	}
	return total / time.Duration(len(lat))
}

// Reset clears all collected metrics
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = make(map[string]int64)
	m.failures = make(map[string]int64)
	m.retries = make(map[string]int64)
	m.runs = make(map[string]int64)
	m.runErrors = make(map[string]int64)
	m.latencies = make(map[string][]time.Duration)
	m.requests = make(map[string]int64)
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
