package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	FinishResultRequest = "request"
	FinishResultIdle    = "idle"
	FinishResultError   = "error"
)

const (
	TransportOperationFinish = "finish"
	TransportOperationNotice = "notice"
	TransportOperationReport = "report"
)

// RunnerMetrics captures poll loop health: how often the rollup server is asked for
// work, what it hands back and how each request ends.
type RunnerMetrics struct {
	finishCalls     *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decodeErrors    *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
	idleWait        prometheus.Observer
	totalOperations prometheus.Gauge
	subscribers     prometheus.Gauge
}

var (
	runnerMetricsOnce sync.Once
	runnerMetrics     *RunnerMetrics
)

// Runner returns the singleton runner metrics registry.
func Runner() *RunnerMetrics {
	return RunnerWithConfig(Config{})
}

// RunnerWithConfig returns the singleton runner metrics registry using config labels.
func RunnerWithConfig(cfg Config) *RunnerMetrics {
	runnerMetricsOnce.Do(func() {
		runnerMetrics = newRunnerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return runnerMetrics
}

// ResetRunnerMetricsForTest resets the runner metrics singleton for tests.
func ResetRunnerMetricsForTest() {
	runnerMetricsOnce = sync.Once{}
	runnerMetrics = nil
}

func newRunnerMetrics(registerer prometheus.Registerer, cfg Config) *RunnerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "subscription-coprocessor"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	finishCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "coprocessor_finish_calls_total",
		Help:        "Finish calls to the rollup server by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "coprocessor_requests_total",
		Help:        "Rollup requests handled by type and outcome.",
		ConstLabels: constLabels,
	}, []string{"request_type", "outcome"})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "coprocessor_request_duration_seconds",
		Help:        "Time spent handling a rollup request, notice and report calls included.",
		Buckets:     []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"request_type"})
	decodeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "coprocessor_decode_errors_total",
		Help:        "Request payloads rejected because they could not be decoded.",
		ConstLabels: constLabels,
	}, []string{"request_type"})
	transportErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "coprocessor_transport_errors_total",
		Help:        "Fatal failures talking to the rollup server by operation.",
		ConstLabels: constLabels,
	}, []string{"operation"})
	idleWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "coprocessor_idle_wait_seconds",
		Help:        "Backoff applied after the rollup server reported nothing pending.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		ConstLabels: constLabels,
	})
	totalOperations := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "coprocessor_total_operations",
		Help:        "Accepted advance requests since process start.",
		ConstLabels: constLabels,
	})
	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "coprocessor_subscribers",
		Help:        "Subscription records held in memory.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		finishCalls,
		requests,
		requestDuration,
		decodeErrors,
		transportErrors,
		idleWait,
		totalOperations,
		subscribers,
	)

	return &RunnerMetrics{
		finishCalls:     finishCalls,
		requests:        requests,
		requestDuration: requestDuration,
		decodeErrors:    decodeErrors,
		transportErrors: transportErrors,
		idleWait:        idleWait,
		totalOperations: totalOperations,
		subscribers:     subscribers,
	}
}

// IncFinish counts a finish call by result.
func (m *RunnerMetrics) IncFinish(result string) {
	if m == nil || m.finishCalls == nil {
		return
	}
	m.finishCalls.WithLabelValues(result).Inc()
}

// ObserveRequest records the outcome and latency of a handled request.
func (m *RunnerMetrics) ObserveRequest(requestType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if m.requests != nil {
		m.requests.WithLabelValues(requestType, outcome).Inc()
	}
	if m.requestDuration != nil {
		m.requestDuration.WithLabelValues(requestType).Observe(duration.Seconds())
	}
}

func (m *RunnerMetrics) IncDecodeError(requestType string) {
	if m == nil || m.decodeErrors == nil {
		return
	}
	m.decodeErrors.WithLabelValues(requestType).Inc()
}

func (m *RunnerMetrics) IncTransportError(operation string) {
	if m == nil || m.transportErrors == nil {
		return
	}
	m.transportErrors.WithLabelValues(operation).Inc()
}

func (m *RunnerMetrics) ObserveIdleWait(d time.Duration) {
	if m == nil || m.idleWait == nil || d <= 0 {
		return
	}
	m.idleWait.Observe(d.Seconds())
}

// SetStoreSize publishes the store counters after each accepted advance.
func (m *RunnerMetrics) SetStoreSize(totalOperations uint64, subscribers int) {
	if m == nil {
		return
	}
	if m.totalOperations != nil {
		m.totalOperations.Set(float64(totalOperations))
	}
	if m.subscribers != nil {
		m.subscribers.Set(float64(subscribers))
	}
}
