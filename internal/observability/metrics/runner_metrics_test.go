package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRunnerMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newRunnerMetrics(registry, Config{
		ServiceName: "subscription-coprocessor",
		Environment: "test",
	})

	m.IncFinish(FinishResultIdle)
	m.IncFinish(FinishResultIdle)
	m.IncFinish(FinishResultRequest)
	m.ObserveRequest("advance_state", "accept", 3*time.Millisecond)
	m.IncTransportError(TransportOperationNotice)
	m.SetStoreSize(4, 2)

	if got := testutil.ToFloat64(m.finishCalls.WithLabelValues(FinishResultIdle)); got != 2 {
		t.Fatalf("expected 2 idle finishes, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("advance_state", "accept")); got != 1 {
		t.Fatalf("expected 1 accepted advance, got %v", got)
	}
	if got := testutil.ToFloat64(m.transportErrors.WithLabelValues(TransportOperationNotice)); got != 1 {
		t.Fatalf("expected 1 notice transport error, got %v", got)
	}
	if got := testutil.ToFloat64(m.totalOperations); got != 4 {
		t.Fatalf("expected total operations 4, got %v", got)
	}
	if got := testutil.ToFloat64(m.subscribers); got != 2 {
		t.Fatalf("expected 2 subscribers, got %v", got)
	}
}

func TestRunnerMetricsNilSafe(t *testing.T) {
	var m *RunnerMetrics
	m.IncFinish(FinishResultError)
	m.ObserveRequest("inspect_state", "reject", time.Millisecond)
	m.IncDecodeError("inspect_state")
	m.IncTransportError(TransportOperationFinish)
	m.ObserveIdleWait(time.Second)
	m.SetStoreSize(1, 1)
}
