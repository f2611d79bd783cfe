package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AltairaLabs/remotemedia/runtime/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordNodeProcess(t *testing.T) {
	nodeProcessDuration.Reset()
	nodeChunksTotal.Reset()

	RecordNodeProcess("calculator", "success", 0.01)
	RecordNodeProcess("calculator", "success", 0.02)
	RecordNodeProcess("resample", "error", 0.005)

	count := testutil.CollectAndCount(nodeProcessDuration)
	if count == 0 {
		t.Error("Expected non-zero histogram observations")
	}

	successCount := testutil.ToFloat64(nodeChunksTotal.WithLabelValues("calculator", "success"))
	errorCount := testutil.ToFloat64(nodeChunksTotal.WithLabelValues("resample", "error"))
	if successCount != 2 {
		t.Errorf("Expected 2 success chunks, got %f", successCount)
	}
	if errorCount != 1 {
		t.Errorf("Expected 1 error chunk, got %f", errorCount)
	}
}

func TestRecordNodeProcessRetried(t *testing.T) {
	nodeChunksTotal.Reset()

	RecordNodeProcessRetried("vad")
	RecordNodeProcessRetried("vad")

	retried := testutil.ToFloat64(nodeChunksTotal.WithLabelValues("vad", "retried"))
	if retried != 2 {
		t.Errorf("Expected 2 retried chunks, got %f", retried)
	}
}

func TestRecordSessionStartEnd(t *testing.T) {
	sessionsActive.Set(0)
	sessionDuration.Reset()

	RecordSessionStart()
	active := testutil.ToFloat64(sessionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active session, got %f", active)
	}

	RecordSessionStart()
	active = testutil.ToFloat64(sessionsActive)
	if active != 2 {
		t.Errorf("Expected 2 active sessions, got %f", active)
	}

	RecordSessionEnd(statusCompleted, 5.0)
	active = testutil.ToFloat64(sessionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active session after end, got %f", active)
	}

	RecordSessionEnd(statusFailed, 2.0)
	active = testutil.ToFloat64(sessionsActive)
	if active != 0 {
		t.Errorf("Expected 0 active sessions after end, got %f", active)
	}
}

func TestRecordNodeInit(t *testing.T) {
	nodeInitDuration.Reset()

	RecordNodeInit("calculator", statusSuccess, 0.001)
	count := testutil.CollectAndCount(nodeInitDuration)
	if count == 0 {
		t.Error("Expected non-zero histogram observations")
	}
}

func TestRecordBackpressure(t *testing.T) {
	backpressureEventsTotal.Reset()

	RecordBackpressure("sink-1")
	RecordBackpressure("sink-1")

	count := testutil.ToFloat64(backpressureEventsTotal.WithLabelValues("sink-1"))
	if count != 2 {
		t.Errorf("Expected 2 backpressure events, got %f", count)
	}
}

func TestRecordStateEntryEvicted(t *testing.T) {
	stateEntriesEvictedTotal.Reset()

	RecordStateEntryEvicted("ttl")
	RecordStateEntryEvicted("capacity")
	RecordStateEntryEvicted("ttl")

	ttlCount := testutil.ToFloat64(stateEntriesEvictedTotal.WithLabelValues("ttl"))
	capacityCount := testutil.ToFloat64(stateEntriesEvictedTotal.WithLabelValues("capacity"))
	if ttlCount != 2 {
		t.Errorf("Expected 2 ttl evictions, got %f", ttlCount)
	}
	if capacityCount != 1 {
		t.Errorf("Expected 1 capacity eviction, got %f", capacityCount)
	}
}

func TestRecordPlanCompiled(t *testing.T) {
	RecordPlanCompiled(0.002)
	count := testutil.CollectAndCount(planCompileDuration)
	if count == 0 {
		t.Error("Expected non-zero histogram observations")
	}
}

func TestNewExporter(t *testing.T) {
	exporter := NewExporter(":9091")
	if exporter == nil {
		t.Fatal("Expected non-nil exporter")
	}
	if exporter.Registry() == nil {
		t.Error("Expected non-nil registry")
	}
}

func TestNewExporterWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9092", reg)

	if exporter.Registry() != reg {
		t.Error("Expected custom registry to be used")
	}
}

func TestExporterHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter",
	})
	reg.MustRegister(counter)
	counter.Inc()

	exporter := NewExporterWithRegistry(":9093", reg)
	handler := exporter.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "test_counter") {
		t.Error("Expected response to contain test_counter metric")
	}
}

func TestExporterRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9094", reg)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custom_counter",
		Help: "Custom counter",
	})

	err := exporter.Register(counter)
	if err != nil {
		t.Errorf("Expected no error registering counter, got %v", err)
	}

	// Registering again should fail
	err = exporter.Register(counter)
	if err == nil {
		t.Error("Expected error when registering duplicate counter")
	}
}

func TestExporterMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9095", reg)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "must_register_counter",
		Help: "Must register counter",
	})

	// Should not panic
	exporter.MustRegister(counter)
}

func TestExporterStartShutdown(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	errCh := make(chan error, 1)
	go func() {
		errCh <- exporter.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := exporter.Shutdown(ctx)
	if err != nil {
		t.Errorf("Expected no error on shutdown, got %v", err)
	}

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for server to stop")
	}
}

func TestExporterDoubleStart(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	go func() {
		_ = exporter.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	err := exporter.Start()
	if err != nil {
		t.Errorf("Expected nil on double start, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = exporter.Shutdown(ctx)
}

func TestMetricsListener(t *testing.T) {
	sessionsActive.Set(0)
	sessionDuration.Reset()
	nodeProcessDuration.Reset()
	nodeChunksTotal.Reset()
	nodeInitDuration.Reset()
	backpressureEventsTotal.Reset()
	stateEntriesEvictedTotal.Reset()
	compiledBefore := testutil.ToFloat64(plansCompiledTotal)

	listener := NewMetricsListener()

	listener.Handle(&events.Event{
		Type: events.EventSessionStarted,
		Data: &events.SessionStartedData{NodeCount: 2},
	})
	active := testutil.ToFloat64(sessionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active session after start event, got %f", active)
	}

	listener.Handle(&events.Event{
		Type: events.EventSessionCompleted,
		Data: &events.SessionCompletedData{Duration: 5 * time.Second},
	})
	active = testutil.ToFloat64(sessionsActive)
	if active != 0 {
		t.Errorf("Expected 0 active sessions after completed event, got %f", active)
	}

	sessionsActive.Inc()
	listener.Handle(&events.Event{
		Type: events.EventSessionFailed,
		Data: &events.SessionFailedData{Duration: 2 * time.Second},
	})
	active = testutil.ToFloat64(sessionsActive)
	if active != 0 {
		t.Errorf("Expected 0 active sessions after failed event, got %f", active)
	}

	listener.Handle(&events.Event{
		Type: events.EventNodeProcessCompleted,
		Data: &events.NodeProcessCompletedData{
			NodeType: "calculator",
			Duration: 10 * time.Millisecond,
		},
	})
	successCount := testutil.ToFloat64(nodeChunksTotal.WithLabelValues("calculator", "success"))
	if successCount != 1 {
		t.Errorf("Expected 1 node process success, got %f", successCount)
	}

	listener.Handle(&events.Event{
		Type: events.EventNodeProcessFailed,
		Data: &events.NodeProcessFailedData{
			NodeType: "calculator",
			Duration: 5 * time.Millisecond,
		},
	})
	errorCount := testutil.ToFloat64(nodeChunksTotal.WithLabelValues("calculator", "error"))
	if errorCount != 1 {
		t.Errorf("Expected 1 node process error, got %f", errorCount)
	}

	listener.Handle(&events.Event{
		Type: events.EventNodeProcessRetried,
		Data: &events.NodeProcessRetriedData{NodeType: "calculator", Attempt: 1},
	})
	retriedCount := testutil.ToFloat64(nodeChunksTotal.WithLabelValues("calculator", "retried"))
	if retriedCount != 1 {
		t.Errorf("Expected 1 node process retry, got %f", retriedCount)
	}

	listener.Handle(&events.Event{
		Type: events.EventNodeInitCompleted,
		Data: &events.NodeInitCompletedData{NodeType: "calculator", Duration: time.Millisecond},
	})
	if count := testutil.CollectAndCount(nodeInitDuration); count == 0 {
		t.Error("Expected node init duration to be recorded")
	}

	listener.Handle(&events.Event{
		Type: events.EventBackpressureBlocked,
		Data: &events.BackpressureBlockedData{NodeID: "sink"},
	})
	backpressure := testutil.ToFloat64(backpressureEventsTotal.WithLabelValues("sink"))
	if backpressure != 1 {
		t.Errorf("Expected 1 backpressure event, got %f", backpressure)
	}

	listener.Handle(&events.Event{
		Type: events.EventStateEntryEvicted,
		Data: &events.StateEntryEvictedData{Reason: "ttl"},
	})
	evicted := testutil.ToFloat64(stateEntriesEvictedTotal.WithLabelValues("ttl"))
	if evicted != 1 {
		t.Errorf("Expected 1 ttl eviction, got %f", evicted)
	}

	listener.Handle(&events.Event{
		Type: events.EventPlanCompiled,
		Data: &events.PlanCompiledData{Duration: time.Millisecond},
	})
	compiled := testutil.ToFloat64(plansCompiledTotal) - compiledBefore
	if compiled != 1 {
		t.Errorf("Expected 1 plan compiled, got %f", compiled)
	}
}

func TestMetricsListenerFunction(t *testing.T) {
	listener := NewMetricsListener()
	fn := listener.Listener()

	if fn == nil {
		t.Error("Expected non-nil listener function")
	}

	sessionsActive.Set(0)
	fn(&events.Event{
		Type: events.EventSessionStarted,
		Data: &events.SessionStartedData{},
	})

	active := testutil.ToFloat64(sessionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active session via listener function, got %f", active)
	}
}

func TestMetricsListenerIgnoresUnknownEvents(t *testing.T) {
	listener := NewMetricsListener()

	// Should not panic on an unrecognized event type.
	listener.Handle(&events.Event{Type: "unknown.event"})
}

func TestMetricsListenerNilData(t *testing.T) {
	listener := NewMetricsListener()

	// These should not panic even with nil data.
	listener.Handle(&events.Event{Type: events.EventSessionCompleted, Data: nil})
	listener.Handle(&events.Event{Type: events.EventNodeProcessCompleted, Data: nil})
}
