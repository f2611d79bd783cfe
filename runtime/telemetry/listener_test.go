package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AltairaLabs/remotemedia/runtime/events"
)

// newTestListener returns a listener, in-memory exporter, and TracerProvider
// for tests.
func newTestListener(t *testing.T) (*SpanListener, *tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	tracer := tp.Tracer(InstrumentationName)
	return NewSpanListener(tracer), exp, tp
}

// flushAndGetSpans forces span export and returns spans. Spans are read
// before Shutdown because InMemoryExporter.Shutdown resets the buffer.
func flushAndGetSpans(t *testing.T, tp *sdktrace.TracerProvider, exp *tracetest.InMemoryExporter) tracetest.SpanStubs {
	t.Helper()
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	spans := exp.GetSpans()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	return spans
}

func findSpan(t *testing.T, spans tracetest.SpanStubs, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("span %q not found in %d spans", name, len(spans))
	return tracetest.SpanStub{}
}

func hasAttr(span tracetest.SpanStub, key, want string) bool {
	for _, a := range span.Attributes {
		if string(a.Key) == key && a.Value.AsString() == want {
			return true
		}
	}
	return false
}

func TestSpanListenerSessionLifecycle(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.Handle(&events.Event{
		Type: events.EventSessionStarted, Timestamp: now, SessionID: "sess-1",
		Data: &events.SessionStartedData{NodeCount: 2},
	})
	listener.Handle(&events.Event{
		Type: events.EventSessionCompleted, Timestamp: now.Add(time.Second), SessionID: "sess-1",
		Data: &events.SessionCompletedData{Duration: time.Second},
	})

	spans := flushAndGetSpans(t, tp, exp)
	s := findSpan(t, spans, "remotemedia.session")
	if !hasAttr(s, "session.id", "sess-1") {
		t.Error("expected session.id attribute")
	}
	if s.Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", s.Status.Code)
	}
}

func TestSpanListenerSessionFailed(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.Handle(&events.Event{
		Type: events.EventSessionStarted, Timestamp: now, SessionID: "sess-1",
		Data: &events.SessionStartedData{NodeCount: 1},
	})
	listener.Handle(&events.Event{
		Type: events.EventSessionFailed, Timestamp: now.Add(time.Second), SessionID: "sess-1",
		Data: &events.SessionFailedData{Error: errors.New("boom"), Duration: time.Second},
	})

	spans := flushAndGetSpans(t, tp, exp)
	s := findSpan(t, spans, "remotemedia.session")
	if s.Status.Code != codes.Error {
		t.Errorf("expected Error status, got %v", s.Status.Code)
	}
	if s.Status.Description != "boom" {
		t.Errorf("expected status description 'boom', got %q", s.Status.Description)
	}
}

func TestSpanListenerNodeProcessSpanParentedUnderSession(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.Handle(&events.Event{
		Type: events.EventSessionStarted, Timestamp: now, SessionID: "sess-1",
		Data: &events.SessionStartedData{NodeCount: 1},
	})
	listener.Handle(&events.Event{
		Type: events.EventNodeProcessStarted, Timestamp: now, SessionID: "sess-1",
		Data: &events.NodeProcessStartedData{NodeID: "n1", NodeType: "calculator", Sequence: 0},
	})
	listener.Handle(&events.Event{
		Type: events.EventNodeProcessCompleted, Timestamp: now.Add(time.Millisecond), SessionID: "sess-1",
		Data: &events.NodeProcessCompletedData{NodeID: "n1", NodeType: "calculator", Sequence: 0, Duration: time.Millisecond, OutputSize: 1},
	})
	listener.Handle(&events.Event{
		Type: events.EventSessionCompleted, Timestamp: now.Add(2 * time.Millisecond), SessionID: "sess-1",
		Data: &events.SessionCompletedData{Duration: 2 * time.Millisecond},
	})

	spans := flushAndGetSpans(t, tp, exp)
	sessionSpan := findSpan(t, spans, "remotemedia.session")
	processSpan := findSpan(t, spans, "remotemedia.node.process")
	if processSpan.Parent.SpanID() != sessionSpan.SpanContext.SpanID() {
		t.Error("process span should be a child of the session span")
	}
	if !hasAttr(processSpan, "node.id", "n1") {
		t.Error("expected node.id attribute")
	}
}

func TestSpanListenerNodeProcessFailed(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.Handle(&events.Event{
		Type: events.EventNodeProcessStarted, Timestamp: now, SessionID: "sess-1",
		Data: &events.NodeProcessStartedData{NodeID: "n1", NodeType: "vad", Sequence: 3},
	})
	listener.Handle(&events.Event{
		Type: events.EventNodeProcessFailed, Timestamp: now.Add(time.Millisecond), SessionID: "sess-1",
		Data: &events.NodeProcessFailedData{NodeID: "n1", NodeType: "vad", Sequence: 3, Error: errors.New("bad chunk")},
	})

	spans := flushAndGetSpans(t, tp, exp)
	s := findSpan(t, spans, "remotemedia.node.process")
	if s.Status.Code != codes.Error {
		t.Errorf("expected Error status, got %v", s.Status.Code)
	}
}

// TestSpanListenerOutOfOrderCompletion exercises the case where a
// ProcessChunk completion is dispatched (by the EventBus's async Publish)
// before the matching started event is handled.
func TestSpanListenerOutOfOrderCompletion(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.Handle(&events.Event{
		Type: events.EventNodeProcessCompleted, Timestamp: now, SessionID: "sess-1",
		Data: &events.NodeProcessCompletedData{NodeID: "n1", NodeType: "calculator", Sequence: 0, Duration: time.Millisecond},
	})
	listener.Handle(&events.Event{
		Type: events.EventNodeProcessStarted, Timestamp: now, SessionID: "sess-1",
		Data: &events.NodeProcessStartedData{NodeID: "n1", NodeType: "calculator", Sequence: 0},
	})

	spans := flushAndGetSpans(t, tp, exp)
	s := findSpan(t, spans, "remotemedia.node.process")
	if s.Status.Code != codes.Ok {
		t.Errorf("expected Ok status despite out-of-order delivery, got %v", s.Status.Code)
	}
}

func TestSpanListenerBackpressureSpan(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.Handle(&events.Event{
		Type: events.EventBackpressureBlocked, Timestamp: now, SessionID: "sess-1",
		Data: &events.BackpressureBlockedData{NodeID: "n1", Port: "out"},
	})
	listener.Handle(&events.Event{
		Type: events.EventBackpressureResumed, Timestamp: now.Add(5 * time.Millisecond), SessionID: "sess-1",
		Data: &events.BackpressureResumedData{NodeID: "n1", Port: "out", Duration: 5 * time.Millisecond},
	})

	spans := flushAndGetSpans(t, tp, exp)
	s := findSpan(t, spans, "remotemedia.backpressure")
	if !hasAttr(s, "node.port", "out") {
		t.Error("expected node.port attribute")
	}
}

func TestSpanListenerFlushAndTeardownAreInstantaneous(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.Handle(&events.Event{
		Type: events.EventNodeFlushCompleted, Timestamp: now, SessionID: "sess-1",
		Data: &events.NodeFlushCompletedData{NodeID: "n1", NodeType: "resample", EnvelopeCount: 2},
	})
	listener.Handle(&events.Event{
		Type: events.EventNodeTeardownCompleted, Timestamp: now, SessionID: "sess-1",
		Data: &events.NodeTeardownCompletedData{NodeID: "n1", NodeType: "resample"},
	})

	spans := flushAndGetSpans(t, tp, exp)
	findSpan(t, spans, "remotemedia.node.flush")
	findSpan(t, spans, "remotemedia.node.teardown")
}
